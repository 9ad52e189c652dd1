package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
)

func monthSnapshot(t *testing.T, month int, txs ...domain.Transaction) domain.StatementSnapshot {
	t.Helper()
	snap, err := domain.NewStatementSnapshot(2025, month, "")
	if err != nil {
		t.Fatalf("NewStatementSnapshot: %v", err)
	}
	snap.CachedTx = txs
	return *snap
}

func TestWriteLedger(t *testing.T) {
	ledger := &Ledger{
		Snapshots: []domain.StatementSnapshot{
			monthSnapshot(t, 3, domain.Transaction{ID: "row-1", Description: "RENT", Amount: -1800}),
		},
	}

	var buf bytes.Buffer
	if err := WriteLedger(ledger, &buf); err != nil {
		t.Fatalf("WriteLedger: %v", err)
	}

	var decoded Ledger
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Version != CurrentVersion {
		t.Errorf("version = %d, want %d", decoded.Version, CurrentVersion)
	}
	if len(decoded.Snapshots) != 1 || decoded.Snapshots[0].ID != "2025-03" {
		t.Errorf("snapshots = %+v", decoded.Snapshots)
	}
}

func TestWriteLedger_NilRejected(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLedger(nil, &buf); err == nil {
		t.Error("expected error for nil ledger")
	}
}

func TestWriteLedgerToFile_MergeReplacesMonth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	first := &Ledger{Snapshots: []domain.StatementSnapshot{
		monthSnapshot(t, 1, domain.Transaction{ID: "row-a", Description: "JAN RENT", Amount: -1700}),
		monthSnapshot(t, 2, domain.Transaction{ID: "row-b", Description: "FEB RENT", Amount: -1700}),
	}}
	if err := WriteLedgerToFile(first, WriteOptions{FilePath: path}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// Re-export February with a corrected amount plus a new March.
	second := &Ledger{Snapshots: []domain.StatementSnapshot{
		monthSnapshot(t, 2, domain.Transaction{ID: "row-b", Description: "FEB RENT", Amount: -1800}),
		monthSnapshot(t, 3, domain.Transaction{ID: "row-c", Description: "MAR RENT", Amount: -1800}),
	}}
	if err := WriteLedgerToFile(second, WriteOptions{FilePath: path, MergeMode: true}); err != nil {
		t.Fatalf("merge write: %v", err)
	}

	merged, err := LoadLedger(path)
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if len(merged.Snapshots) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(merged.Snapshots))
	}
	ids := []string{merged.Snapshots[0].ID, merged.Snapshots[1].ID, merged.Snapshots[2].ID}
	want := []string{"2025-01", "2025-02", "2025-03"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
	// February was replaced, not duplicated.
	if merged.Snapshots[1].CachedTx[0].Amount != -1800 {
		t.Errorf("feb amount = %v, want re-exported -1800", merged.Snapshots[1].CachedTx[0].Amount)
	}
}

func TestWriteLedgerToFile_MergeWithoutExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ledger := &Ledger{Snapshots: []domain.StatementSnapshot{monthSnapshot(t, 3)}}

	if err := WriteLedgerToFile(ledger, WriteOptions{FilePath: path, MergeMode: true}); err != nil {
		t.Fatalf("merge into missing file: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestLoadLedger_RejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte(`{"version":99,"snapshots":[]}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadLedger(path); err == nil {
		t.Error("expected error for newer version")
	}
}
