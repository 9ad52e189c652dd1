// Package snapshot persists per-month statement snapshots and the current
// month selection behind the storage port.
package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/storage"
)

const (
	snapshotPrefix = "snapshot/"
	keyCurrent     = "currentStatement"

	// DriftThreshold is the relative drift beyond which user-entered
	// totals are considered stale and replaced with parsed totals.
	DriftThreshold = 0.40
)

// Store reads and writes statement snapshots.
type Store struct {
	port storage.Port
}

// NewStore wraps a persistence port.
func NewStore(port storage.Port) *Store {
	return &Store{port: port}
}

func snapshotKey(id string) string {
	return snapshotPrefix + id
}

// Upsert validates and writes a snapshot, stamping every cached transaction
// with the owning month and reconciling drifted user totals first.
func (s *Store) Upsert(snap *domain.StatementSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	year, month, err := domain.ParseSnapshotID(snap.ID)
	if err != nil {
		return err
	}
	if snap.StmtYear != year || snap.StmtMonth != month {
		return fmt.Errorf("snapshot id %q disagrees with year/month %d-%d", snap.ID, snap.StmtYear, snap.StmtMonth)
	}

	for i := range snap.CachedTx {
		snap.CachedTx[i].StatementID = snap.ID
	}

	deposits, withdrawals := snap.ParsedTotals()
	snap.Inputs = ReconcileInputs(snap.Inputs, deposits, withdrawals)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %q: %w", snap.ID, err)
	}
	if err := s.port.Set(snapshotKey(snap.ID), data); err != nil {
		return fmt.Errorf("failed to write snapshot %q: %w", snap.ID, err)
	}
	return nil
}

// Read loads a snapshot by id. A missing key or an undecodable stored value
// both report found=false; corrupt state is recoverable by re-import, not
// an error the caller can act on.
func (s *Store) Read(id string) (*domain.StatementSnapshot, bool, error) {
	data, found, err := s.port.Get(snapshotKey(id))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot %q: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	var snap domain.StatementSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, nil
	}
	return &snap, true, nil
}

// Remove deletes a snapshot. Removing a missing id is a no-op. If the
// removed snapshot was the current selection, the selection is cleared.
func (s *Store) Remove(id string) error {
	if err := s.port.Delete(snapshotKey(id)); err != nil {
		return fmt.Errorf("failed to remove snapshot %q: %w", id, err)
	}
	current, err := s.CurrentID()
	if err != nil {
		return err
	}
	if current == id {
		return s.port.Delete(keyCurrent)
	}
	return nil
}

// ListIndex returns all stored snapshots ordered by id, which for the
// "YYYY-MM" scheme is chronological order. Snapshots that fail to decode
// are skipped.
func (s *Store) ListIndex() ([]domain.StatementSnapshot, error) {
	keys, err := s.port.Keys(snapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	index := make([]domain.StatementSnapshot, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, snapshotPrefix)
		snap, found, err := s.Read(id)
		if err != nil {
			return nil, err
		}
		if found {
			index = append(index, *snap)
		}
	}
	return index, nil
}

// CurrentID returns the currently selected month id, or "" when none is
// selected.
func (s *Store) CurrentID() (string, error) {
	data, found, err := s.port.Get(keyCurrent)
	if err != nil {
		return "", fmt.Errorf("failed to read current selection: %w", err)
	}
	if !found {
		return "", nil
	}
	return string(data), nil
}

// SetCurrentID records the selected month.
func (s *Store) SetCurrentID(id string) error {
	if _, _, err := domain.ParseSnapshotID(id); err != nil {
		return err
	}
	if err := s.port.Set(keyCurrent, []byte(id)); err != nil {
		return fmt.Errorf("failed to write current selection: %w", err)
	}
	return nil
}

// ReconcileInputs applies the drift auto-fix. User totals are replaced with
// parsed totals when both user totals are zero (a fresh snapshot) or when
// either total drifts from its parsed counterpart by strictly more than the
// threshold. Beginning balance is always preserved; small intentional
// corrections at or below the threshold are left alone.
func ReconcileInputs(inputs domain.SnapshotInputs, parsedDeposits, parsedWithdrawals float64) domain.SnapshotInputs {
	fresh := inputs.TotalDeposits == 0 && inputs.TotalWithdrawals == 0
	drifted := relativeDrift(inputs.TotalDeposits, parsedDeposits) > DriftThreshold ||
		relativeDrift(inputs.TotalWithdrawals, parsedWithdrawals) > DriftThreshold
	if fresh || drifted {
		inputs.TotalDeposits = parsedDeposits
		inputs.TotalWithdrawals = parsedWithdrawals
	}
	return inputs
}

// relativeDrift measures |user-parsed| relative to the parsed magnitude.
// A nonzero user value against a zero parsed value is full drift.
func relativeDrift(user, parsed float64) float64 {
	if parsed == 0 {
		if user == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(user-parsed) / parsed
}
