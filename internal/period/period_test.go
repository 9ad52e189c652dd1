package period

import (
	"testing"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/rules"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/snapshot"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/storage"
)

func seedStore(t *testing.T) *snapshot.Store {
	t.Helper()
	store := snapshot.NewStore(storage.NewMemory())

	months := map[int][]domain.Transaction{
		1: {
			{ID: "row-a", Description: "JAN RENT", Amount: -1800, Category: domain.CategoryHousing},
			{ID: "row-b", Description: "NETFLIX.COM", Amount: -15.49, Category: domain.CategoryUncategorized},
		},
		2: {
			{ID: "row-c", Description: "FEB RENT", Amount: -1800, Category: domain.CategoryHousing},
		},
		// March belongs to a later period and must never leak into a
		// February-anchored YTD.
		3: {
			{ID: "row-d", Description: "MAR RENT", Amount: -1800, Category: domain.CategoryHousing},
		},
	}
	for m, txs := range months {
		snap, err := domain.NewStatementSnapshot(2025, m, "")
		if err != nil {
			t.Fatalf("NewStatementSnapshot: %v", err)
		}
		snap.CachedTx = txs
		if err := store.Upsert(snap); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	// A prior year must never be included.
	old, err := domain.NewStatementSnapshot(2024, 1, "")
	if err != nil {
		t.Fatalf("NewStatementSnapshot: %v", err)
	}
	old.CachedTx = []domain.Transaction{{ID: "row-z", Description: "OLD RENT", Amount: -1700}}
	if err := store.Upsert(old); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return store
}

func TestRowsForPeriod_CurrentVerbatim(t *testing.T) {
	agg := &Aggregator{Snapshots: seedStore(t)}
	live := []domain.Transaction{{ID: "row-x", Description: "LIVE", Amount: -1}}

	got, err := agg.RowsForPeriod(Current, "2025-02", live)
	if err != nil {
		t.Fatalf("RowsForPeriod: %v", err)
	}
	if len(got) != 1 || got[0].ID != "row-x" {
		t.Errorf("CURRENT rows = %+v, want live verbatim", got)
	}
}

func TestRowsForPeriod_YTDUnion(t *testing.T) {
	agg := &Aggregator{Snapshots: seedStore(t)}
	live := []domain.Transaction{
		{ID: "row-c", Description: "FEB RENT", Amount: -1800, Category: domain.CategoryHousing},
		{ID: "row-e", Description: "FEB GROCER", Amount: -92.40, Category: domain.CategoryGroceries},
	}

	got, err := agg.RowsForPeriod(YTD, "2025-02", live)
	if err != nil {
		t.Fatalf("RowsForPeriod: %v", err)
	}

	ids := map[string]bool{}
	for _, tx := range got {
		ids[tx.ID] = true
	}
	for _, want := range []string{"row-a", "row-b", "row-c", "row-e"} {
		if !ids[want] {
			t.Errorf("YTD union missing %s", want)
		}
	}
	if ids["row-d"] {
		t.Error("YTD union leaked a later month")
	}
	if ids["row-z"] {
		t.Error("YTD union leaked a prior year")
	}
	// Anchor month comes from the live rows, so there is exactly one
	// row-c even though the snapshot also caches it.
	count := 0
	for _, tx := range got {
		if tx.ID == "row-c" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("row-c appears %d times, want 1", count)
	}
}

func TestRowsForPeriod_YTDReappliesRules(t *testing.T) {
	store := seedStore(t)
	ruleStore := rules.NewStore(storage.NewMemory())
	if _, err := ruleStore.UpsertCategoryRule(rules.CategoryRule{
		Source: rules.SourceUser, Key: "netflix", Category: domain.CategorySubscriptions,
	}); err != nil {
		t.Fatalf("UpsertCategoryRule: %v", err)
	}
	engine, err := ruleStore.Engine()
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}

	agg := &Aggregator{Snapshots: store, Rules: engine}
	got, err := agg.RowsForPeriod(YTD, "2025-02", nil)
	if err != nil {
		t.Fatalf("RowsForPeriod: %v", err)
	}

	// The January Netflix row is recategorized by today's rule without
	// the stored snapshot changing.
	for _, tx := range got {
		if tx.ID == "row-b" && tx.Category != domain.CategorySubscriptions {
			t.Errorf("row-b category = %q, want Subscriptions via live rules", tx.Category)
		}
	}
	snap, found, err := store.Read("2025-01")
	if err != nil || !found {
		t.Fatalf("Read: found=%v err=%v", found, err)
	}
	for _, tx := range snap.CachedTx {
		if tx.ID == "row-b" && tx.Category != domain.CategoryUncategorized {
			t.Errorf("stored snapshot mutated: %q", tx.Category)
		}
	}
}

func TestRowsForPeriod_YTDIdempotent(t *testing.T) {
	ruleStore := rules.NewStore(storage.NewMemory())
	if err := ruleStore.SeedBrands(); err != nil {
		t.Fatalf("SeedBrands: %v", err)
	}
	engine, err := ruleStore.Engine()
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	agg := &Aggregator{Snapshots: seedStore(t), Rules: engine}

	once, err := agg.RowsForPeriod(YTD, "2025-02", nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	twice := engine.ApplyAll(once)
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("row %d changed on re-application: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestRowsForPeriod_AnchorWithoutSnapshot(t *testing.T) {
	agg := &Aggregator{Snapshots: seedStore(t)}
	live := []domain.Transaction{{ID: "row-f", Description: "APR COFFEE", Amount: -4.50}}

	got, err := agg.RowsForPeriod(YTD, "2025-04", live)
	if err != nil {
		t.Fatalf("RowsForPeriod: %v", err)
	}
	ids := map[string]bool{}
	for _, tx := range got {
		ids[tx.ID] = true
	}
	// All of Jan..Mar plus the live April rows.
	for _, want := range []string{"row-a", "row-b", "row-c", "row-d", "row-f"} {
		if !ids[want] {
			t.Errorf("missing %s", want)
		}
	}
}

func TestSelectAnchor(t *testing.T) {
	store := seedStore(t)
	if err := store.SetCurrentID("2025-02"); err != nil {
		t.Fatalf("SetCurrentID: %v", err)
	}

	id, err := SelectAnchor("", store)
	if err != nil || id != "2025-02" {
		t.Errorf("stored anchor = %q, err=%v, want 2025-02", id, err)
	}

	id, err = SelectAnchor("view=all&statement=2025-01", store)
	if err != nil || id != "2025-01" {
		t.Errorf("query anchor = %q, err=%v, want 2025-01", id, err)
	}

	if _, err = SelectAnchor("statement=garbage", store); err == nil {
		t.Error("expected error for malformed query anchor")
	}

	// Non-canonical months never silently miss the stored snapshot.
	if _, err = SelectAnchor("statement=2025-1", store); err == nil {
		t.Error("expected error for unpadded query anchor")
	}
}
