// Package validate checks a set of statement snapshots for structural and
// referential problems before export or reporting.
package validate

import (
	"fmt"
	"math"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/snapshot"
)

// ValidationResult contains all validation errors and warnings for a ledger.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError represents a validation error.
type ValidationError struct {
	Entity  string // "snapshot", "transaction"
	ID      string
	Field   string
	Value   string
	Message string
}

// ValidationWarning represents a non-critical validation issue.
type ValidationWarning struct {
	Entity  string
	ID      string
	Field   string
	Value   string
	Message string
}

// Valid reports whether no errors were found. Warnings do not fail
// validation.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidateLedger checks every snapshot and its cached transactions:
// id well-formedness and id/month agreement, duplicate snapshot and row
// ids, cross-month row leakage, and sanity of amounts and totals.
func ValidateLedger(snapshots []domain.StatementSnapshot) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationWarning{},
	}

	snapshotIDs := make(map[string]bool)

	for i := range snapshots {
		snap := &snapshots[i]

		year, month, err := domain.ParseSnapshotID(snap.ID)
		if err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "snapshot",
				ID:      snap.ID,
				Field:   "ID",
				Value:   snap.ID,
				Message: fmt.Sprintf("malformed snapshot id: %v", err),
			})
			continue
		}
		if snap.StmtYear != year || snap.StmtMonth != month {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "snapshot",
				ID:      snap.ID,
				Field:   "StmtMonth",
				Value:   fmt.Sprintf("%d-%d", snap.StmtYear, snap.StmtMonth),
				Message: fmt.Sprintf("id %s disagrees with stored year/month", snap.ID),
			})
		}

		if snapshotIDs[snap.ID] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "snapshot",
				ID:      snap.ID,
				Field:   "ID",
				Value:   snap.ID,
				Message: "duplicate snapshot ID",
			})
		}
		snapshotIDs[snap.ID] = true

		validateTransactions(snap, result)
		validateTotals(snap, result)
	}

	return result
}

func validateTransactions(snap *domain.StatementSnapshot, result *ValidationResult) {
	rowIDs := make(map[string]bool)

	for _, tx := range snap.CachedTx {
		if tx.ID == "" {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      tx.ID,
				Field:   "ID",
				Value:   "",
				Message: fmt.Sprintf("empty transaction ID in snapshot %s", snap.ID),
			})
			continue
		}
		if rowIDs[tx.ID] {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      tx.ID,
				Field:   "ID",
				Value:   tx.ID,
				Message: fmt.Sprintf("duplicate transaction ID in snapshot %s", snap.ID),
			})
		}
		rowIDs[tx.ID] = true

		if tx.StatementID != "" && tx.StatementID != snap.ID {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      tx.ID,
				Field:   "StatementID",
				Value:   tx.StatementID,
				Message: fmt.Sprintf("cached in snapshot %s but claims %s", snap.ID, tx.StatementID),
			})
		}

		if tx.Cashback < 0 || tx.Cashback > math.Abs(tx.Amount) {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      tx.ID,
				Field:   "Cashback",
				Value:   fmt.Sprintf("%.2f", tx.Cashback),
				Message: "cashback must be in [0, |amount|]",
			})
		}

		if tx.Day < 0 || tx.Day > 31 {
			result.Errors = append(result.Errors, ValidationError{
				Entity:  "transaction",
				ID:      tx.ID,
				Field:   "Day",
				Value:   fmt.Sprintf("%d", tx.Day),
				Message: "day of month must be in [0, 31]",
			})
		}

		if tx.Amount == 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      tx.ID,
				Field:   "Amount",
				Value:   "0",
				Message: "zero-amount transaction, likely a parse artifact",
			})
		}
		if tx.EffectiveCategory() == domain.CategoryUncategorized {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Entity:  "transaction",
				ID:      tx.ID,
				Field:   "Category",
				Value:   string(domain.CategoryUncategorized),
				Message: "no rule or brand matched this description",
			})
		}
	}
}

// validateTotals flags user-entered totals that drifted past the auto-fix
// threshold but were somehow persisted anyway.
func validateTotals(snap *domain.StatementSnapshot, result *ValidationResult) {
	deposits, withdrawals := snap.ParsedTotals()
	reconciled := snapshot.ReconcileInputs(snap.Inputs, deposits, withdrawals)
	if reconciled != snap.Inputs {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Entity:  "snapshot",
			ID:      snap.ID,
			Field:   "Inputs",
			Value:   fmt.Sprintf("%.2f/%.2f", snap.Inputs.TotalDeposits, snap.Inputs.TotalWithdrawals),
			Message: fmt.Sprintf("stored totals drift from parsed %.2f/%.2f beyond the auto-fix threshold", deposits, withdrawals),
		})
	}
}
