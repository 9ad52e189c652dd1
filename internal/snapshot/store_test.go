package snapshot

import (
	"testing"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/storage"
)

func testSnapshot(t *testing.T, year, month int, txs ...domain.Transaction) *domain.StatementSnapshot {
	t.Helper()
	snap, err := domain.NewStatementSnapshot(year, month, "")
	if err != nil {
		t.Fatalf("NewStatementSnapshot: %v", err)
	}
	snap.CachedTx = txs
	return snap
}

func TestUpsertReadRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemory())

	snap := testSnapshot(t, 2025, 3,
		domain.Transaction{ID: "row-1", Description: "PAYROLL", Amount: 2500},
		domain.Transaction{ID: "row-2", Description: "RENT", Amount: -1800},
	)
	if err := store.Upsert(snap); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, found, err := store.Read("2025-03")
	if err != nil || !found {
		t.Fatalf("Read: found=%v err=%v", found, err)
	}
	if got.ID != "2025-03" || len(got.CachedTx) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	// Cached transactions are stamped with the owning month.
	for _, tx := range got.CachedTx {
		if tx.StatementID != "2025-03" {
			t.Errorf("tx %s statementId = %q, want 2025-03", tx.ID, tx.StatementID)
		}
	}
}

func TestReadMissingAndCorrupt(t *testing.T) {
	port := storage.NewMemory()
	store := NewStore(port)

	_, found, err := store.Read("2025-01")
	if err != nil || found {
		t.Fatalf("missing snapshot: found=%v err=%v", found, err)
	}

	// Corrupt stored JSON is treated as missing, not an error.
	if err := port.Set("snapshot/2025-02", []byte("{not json")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, found, err = store.Read("2025-02")
	if err != nil || found {
		t.Errorf("corrupt snapshot: found=%v err=%v, want missing", found, err)
	}
}

func TestUpsertRejectsBadID(t *testing.T) {
	store := NewStore(storage.NewMemory())

	snap := testSnapshot(t, 2025, 3)
	snap.ID = "2025-13"
	if err := store.Upsert(snap); err == nil {
		t.Error("expected error for out-of-range month")
	}

	snap = testSnapshot(t, 2025, 3)
	snap.StmtMonth = 4
	if err := store.Upsert(snap); err == nil {
		t.Error("expected error for id/month disagreement")
	}
}

func TestListIndexOrdered(t *testing.T) {
	store := NewStore(storage.NewMemory())
	for _, m := range []int{11, 2, 7} {
		if err := store.Upsert(testSnapshot(t, 2025, m)); err != nil {
			t.Fatalf("Upsert month %d: %v", m, err)
		}
	}

	index, err := store.ListIndex()
	if err != nil {
		t.Fatalf("ListIndex: %v", err)
	}
	want := []string{"2025-02", "2025-07", "2025-11"}
	if len(index) != len(want) {
		t.Fatalf("index length = %d, want %d", len(index), len(want))
	}
	for i, snap := range index {
		if snap.ID != want[i] {
			t.Errorf("index[%d] = %q, want %q", i, snap.ID, want[i])
		}
	}
}

func TestCurrentSelection(t *testing.T) {
	store := NewStore(storage.NewMemory())

	id, err := store.CurrentID()
	if err != nil || id != "" {
		t.Fatalf("empty store CurrentID = %q, err=%v", id, err)
	}

	if err := store.SetCurrentID("2025-3"); err == nil {
		t.Error("expected error for malformed id")
	}
	if err := store.SetCurrentID("2025-03"); err != nil {
		t.Fatalf("SetCurrentID: %v", err)
	}
	id, err = store.CurrentID()
	if err != nil || id != "2025-03" {
		t.Fatalf("CurrentID = %q, err=%v", id, err)
	}

	// Removing the selected snapshot clears the selection.
	if err := store.Upsert(testSnapshot(t, 2025, 3)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Remove("2025-03"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	id, err = store.CurrentID()
	if err != nil || id != "" {
		t.Errorf("CurrentID after remove = %q, err=%v, want cleared", id, err)
	}
}

func TestReconcileInputs(t *testing.T) {
	tests := []struct {
		name            string
		inputs          domain.SnapshotInputs
		deposits        float64
		withdrawals     float64
		wantDeposits    float64
		wantWithdrawals float64
	}{
		{
			name:         "fresh snapshot adopts parsed totals",
			inputs:       domain.SnapshotInputs{BeginningBalance: 500},
			deposits:     1000,
			withdrawals:  400,
			wantDeposits: 1000, wantWithdrawals: 400,
		},
		{
			name: "drift at exactly the threshold is kept",
			// 1400 vs parsed 1000 is 40% drift, not strictly more.
			inputs:       domain.SnapshotInputs{TotalDeposits: 1400, TotalWithdrawals: 400},
			deposits:     1000,
			withdrawals:  400,
			wantDeposits: 1400, wantWithdrawals: 400,
		},
		{
			name: "drift beyond the threshold is replaced",
			// 1410 vs parsed 1000 is 41% drift.
			inputs:       domain.SnapshotInputs{TotalDeposits: 1410, TotalWithdrawals: 400},
			deposits:     1000,
			withdrawals:  400,
			wantDeposits: 1000, wantWithdrawals: 400,
		},
		{
			name:         "small corrections left alone",
			inputs:       domain.SnapshotInputs{TotalDeposits: 990, TotalWithdrawals: 410},
			deposits:     1000,
			withdrawals:  400,
			wantDeposits: 990, wantWithdrawals: 410,
		},
		{
			name:         "one drifted total replaces both",
			inputs:       domain.SnapshotInputs{TotalDeposits: 1000, TotalWithdrawals: 50},
			deposits:     1000,
			withdrawals:  400,
			wantDeposits: 1000, wantWithdrawals: 400,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.inputs.BeginningBalance = 777
			got := ReconcileInputs(tt.inputs, tt.deposits, tt.withdrawals)
			if got.TotalDeposits != tt.wantDeposits || got.TotalWithdrawals != tt.wantWithdrawals {
				t.Errorf("got %+v, want deposits=%v withdrawals=%v", got, tt.wantDeposits, tt.wantWithdrawals)
			}
			if got.BeginningBalance != 777 {
				t.Errorf("beginning balance = %v, want preserved 777", got.BeginningBalance)
			}
		})
	}
}
