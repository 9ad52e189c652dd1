package validate

import (
	"testing"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
)

func validSnapshot(t *testing.T) domain.StatementSnapshot {
	t.Helper()
	snap, err := domain.NewStatementSnapshot(2025, 3, "March")
	if err != nil {
		t.Fatalf("NewStatementSnapshot: %v", err)
	}
	snap.CachedTx = []domain.Transaction{
		{ID: "row-1", Description: "RENT", Amount: -1800, Category: domain.CategoryHousing, StatementID: "2025-03", Day: 1},
		{ID: "row-2", Description: "PAYROLL", Amount: 2500, Category: domain.CategoryIncome, StatementID: "2025-03", Day: 15},
	}
	snap.Inputs = domain.SnapshotInputs{TotalDeposits: 2500, TotalWithdrawals: 1800}
	return *snap
}

func TestValidateLedger_CleanLedger(t *testing.T) {
	result := ValidateLedger([]domain.StatementSnapshot{validSnapshot(t)})
	if !result.Valid() {
		t.Errorf("expected clean ledger, got errors: %+v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings, got: %+v", result.Warnings)
	}
}

func TestValidateLedger_MalformedID(t *testing.T) {
	snap := validSnapshot(t)
	snap.ID = "march-2025"
	result := ValidateLedger([]domain.StatementSnapshot{snap})
	if result.Valid() {
		t.Error("expected an error for malformed snapshot id")
	}
}

func TestValidateLedger_IDMonthDisagreement(t *testing.T) {
	snap := validSnapshot(t)
	snap.StmtMonth = 4
	result := ValidateLedger([]domain.StatementSnapshot{snap})
	if result.Valid() {
		t.Error("expected an error for id/month disagreement")
	}
}

func TestValidateLedger_DuplicateIDs(t *testing.T) {
	a := validSnapshot(t)
	b := validSnapshot(t)
	result := ValidateLedger([]domain.StatementSnapshot{a, b})
	if result.Valid() {
		t.Error("expected an error for duplicate snapshot ids")
	}

	c := validSnapshot(t)
	c.CachedTx = append(c.CachedTx, c.CachedTx[0])
	result = ValidateLedger([]domain.StatementSnapshot{c})
	if result.Valid() {
		t.Error("expected an error for duplicate transaction ids")
	}
}

func TestValidateLedger_CrossMonthLeak(t *testing.T) {
	snap := validSnapshot(t)
	snap.CachedTx[0].StatementID = "2025-01"
	result := ValidateLedger([]domain.StatementSnapshot{snap})
	if result.Valid() {
		t.Error("expected an error for a row claiming another month")
	}
}

func TestValidateLedger_CashbackBounds(t *testing.T) {
	snap := validSnapshot(t)
	snap.CachedTx[0].Cashback = 5000 // exceeds |amount|
	result := ValidateLedger([]domain.StatementSnapshot{snap})
	if result.Valid() {
		t.Error("expected an error for cashback beyond the gross amount")
	}
}

func TestValidateLedger_Warnings(t *testing.T) {
	snap := validSnapshot(t)
	snap.CachedTx = append(snap.CachedTx, domain.Transaction{
		ID: "row-3", Description: "MYSTERY", Amount: 0,
		Category: domain.CategoryUncategorized, StatementID: "2025-03",
	})
	result := ValidateLedger([]domain.StatementSnapshot{snap})
	if !result.Valid() {
		t.Errorf("warnings must not fail validation: %+v", result.Errors)
	}
	if len(result.Warnings) < 2 {
		t.Errorf("expected zero-amount and uncategorized warnings, got %+v", result.Warnings)
	}
}
