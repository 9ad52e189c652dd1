package domain

import (
	"math"
	"testing"
)

func TestSnapshotID_RoundTrip(t *testing.T) {
	tests := []struct {
		year, month int
		want        string
	}{
		{2025, 1, "2025-01"},
		{2025, 12, "2025-12"},
		{1999, 7, "1999-07"},
	}
	for _, tt := range tests {
		id := SnapshotID(tt.year, tt.month)
		if id != tt.want {
			t.Errorf("SnapshotID(%d, %d) = %q, want %q", tt.year, tt.month, id, tt.want)
		}
		y, m, err := ParseSnapshotID(id)
		if err != nil {
			t.Fatalf("ParseSnapshotID(%q) error = %v", id, err)
		}
		if y != tt.year || m != tt.month {
			t.Errorf("ParseSnapshotID(%q) = (%d, %d), want (%d, %d)", id, y, m, tt.year, tt.month)
		}
	}
}

func TestParseSnapshotID_Invalid(t *testing.T) {
	for _, id := range []string{
		"", "2025", "2025-13", "2025-00", "abcd-01", "2025-xy",
		// only the canonical zero-padded form keys the index
		"2025-3", "2025-003", "25-03", "02025-03",
	} {
		if _, _, err := ParseSnapshotID(id); err == nil {
			t.Errorf("ParseSnapshotID(%q) expected error", id)
		}
	}
}

func TestNewStatementSnapshot_Validation(t *testing.T) {
	if _, err := NewStatementSnapshot(2025, 0, ""); err == nil {
		t.Error("expected error for month 0")
	}
	if _, err := NewStatementSnapshot(100, 5, ""); err == nil {
		t.Error("expected error for year 100")
	}
	snap, err := NewStatementSnapshot(2025, 3, "")
	if err != nil {
		t.Fatalf("NewStatementSnapshot() error = %v", err)
	}
	if snap.ID != "2025-03" {
		t.Errorf("ID = %q, want 2025-03", snap.ID)
	}
	if snap.Label != "2025-03" {
		t.Errorf("default Label = %q, want 2025-03", snap.Label)
	}
}

func TestTransaction_Kind(t *testing.T) {
	withdrawal := Transaction{Amount: -45.00}
	if withdrawal.Kind() != KindWithdrawal {
		t.Errorf("negative amount Kind = %s, want withdrawal", withdrawal.Kind())
	}
	deposit := Transaction{Amount: 45.00}
	if deposit.Kind() != KindDeposit {
		t.Errorf("positive amount Kind = %s, want deposit", deposit.Kind())
	}
}

func TestTransaction_EffectiveCategory(t *testing.T) {
	tx := Transaction{Category: CategoryGroceries}
	if got := tx.EffectiveCategory(); got != CategoryGroceries {
		t.Errorf("EffectiveCategory() = %s, want Groceries", got)
	}

	tx.CategoryOverride = CategoryDining
	if got := tx.EffectiveCategory(); got != CategoryDining {
		t.Errorf("EffectiveCategory() with override = %s, want Dining", got)
	}
	// Override never overwrites the source category.
	if tx.Category != CategoryGroceries {
		t.Errorf("Category mutated to %s after override", tx.Category)
	}

	empty := Transaction{}
	if got := empty.EffectiveCategory(); got != CategoryUncategorized {
		t.Errorf("EffectiveCategory() empty = %s, want Uncategorized", got)
	}
}

func TestParsedTotals(t *testing.T) {
	snap := StatementSnapshot{CachedTx: []Transaction{
		{Amount: 1200.00},
		{Amount: -300.50},
		{Amount: -99.50},
		{Amount: 50.00},
	}}
	dep, wd := snap.ParsedTotals()
	if math.Abs(dep-1250.00) > 1e-9 {
		t.Errorf("deposits = %f, want 1250.00", dep)
	}
	if math.Abs(wd-400.00) > 1e-9 {
		t.Errorf("withdrawals = %f, want 400.00", wd)
	}
}

func TestBuildSummary_BurnExcludesTransfersAndDebt(t *testing.T) {
	txs := []Transaction{
		{Amount: 2000, Category: CategoryIncome},
		{Amount: -800, Category: CategoryHousing},
		{Amount: -200, Category: CategoryTransfers},
		{Amount: -150, Category: CategoryDebt},
		{Amount: -50, Category: CategoryDining},
	}
	sum := BuildSummary(txs)
	if math.Abs(sum.TotalDeposits-2000) > 1e-9 {
		t.Errorf("TotalDeposits = %f", sum.TotalDeposits)
	}
	if math.Abs(sum.TotalWithdrawals-1200) > 1e-9 {
		t.Errorf("TotalWithdrawals = %f", sum.TotalWithdrawals)
	}
	if math.Abs(sum.Burn-850) > 1e-9 {
		t.Errorf("Burn = %f, want 850 (transfers and debt excluded)", sum.Burn)
	}
	if math.Abs(sum.ByCategory[CategoryHousing]-800) > 1e-9 {
		t.Errorf("ByCategory[Housing] = %f", sum.ByCategory[CategoryHousing])
	}
}

func TestSummary_TopCategories(t *testing.T) {
	sum := Summary{ByCategory: map[Category]float64{
		CategoryDining:  100,
		CategoryHousing: 900,
		CategoryDebt:    100,
	}}
	got := sum.TopCategories()
	if len(got) != 3 || got[0] != CategoryHousing {
		t.Fatalf("TopCategories() = %v, want Housing first", got)
	}
	// Equal spend ties break alphabetically.
	if got[1] != CategoryDebt || got[2] != CategoryDining {
		t.Errorf("tie order = %v, %v; want Debt, Dining", got[1], got[2])
	}
}
