// Package domain defines the core ledger types shared by every stage of the
// statement import pipeline.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind is the deposit/withdrawal direction of a parsed row. On an enriched
// Transaction the sign of Amount is the single source of truth; Kind is only
// carried on ParsedRow where the amount is still unsigned.
type Kind string

const (
	KindWithdrawal Kind = "withdrawal"
	KindDeposit    Kind = "deposit"
)

// Category is a canonical spending category. The constants below are the
// standard set; user rules may introduce additional category names, so
// Category is deliberately an open string type.
type Category string

const (
	CategoryHousing       Category = "Housing"
	CategoryUtilities     Category = "Utilities"
	CategoryInsurance     Category = "Insurance"
	CategorySubscriptions Category = "Subscriptions"
	CategoryGroceries     Category = "Groceries"
	CategoryDining        Category = "Dining"
	CategoryTransport     Category = "Transportation"
	CategoryShopping      Category = "Shopping"
	CategoryHealthcare    Category = "Healthcare"
	CategoryIncome        Category = "Income"
	CategoryTransfers     Category = "Transfers"
	CategoryDebt          Category = "Debt"
	CategoryCashBack      Category = "Cash Back"
	CategoryUncategorized Category = "Uncategorized"
)

var standardCategories = map[Category]struct{}{
	CategoryHousing: {}, CategoryUtilities: {}, CategoryInsurance: {},
	CategorySubscriptions: {}, CategoryGroceries: {}, CategoryDining: {},
	CategoryTransport: {}, CategoryShopping: {}, CategoryHealthcare: {},
	CategoryIncome: {}, CategoryTransfers: {}, CategoryDebt: {},
	CategoryCashBack: {}, CategoryUncategorized: {},
}

// IsStandardCategory reports whether c is one of the built-in categories.
func IsStandardCategory(c Category) bool {
	_, ok := standardCategories[c]
	return ok
}

// ParsedRow is the output of applying an extraction profile to one logical
// statement line. Amount is unsigned; Kind carries the direction. ID is a
// pure function of SourceLine and its positional index, so re-parsing
// identical text yields identical IDs.
type ParsedRow struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"` // as it appeared in the source, e.g. "03/14"
	Description string  `json:"description"`
	Amount      float64 `json:"amount"` // unsigned
	Kind        Kind    `json:"kind"`
	CardLast4   string  `json:"cardLast4,omitempty"`
	SourceLine  string  `json:"sourceLine"`
}

// Transaction is an enriched, categorized row.
//
// Sign convention:
//
//	Positive = deposit/inflow
//	Negative = withdrawal/outflow
//
// No field duplicates the direction as a boolean; derive it from the sign.
// CategoryOverride, when set by the user, wins over Category but never
// overwrites it.
type Transaction struct {
	ID               string   `json:"id"`
	Date             string   `json:"date"`
	Description      string   `json:"description"`
	Amount           float64  `json:"amount"` // signed
	Merchant         string   `json:"merchant,omitempty"`
	Category         Category `json:"category"`
	CategoryOverride Category `json:"categoryOverride,omitempty"`
	Spender          string   `json:"spender,omitempty"`
	Cashback         float64  `json:"cashback,omitempty"`
	RecurrenceKey    string   `json:"recurrenceKey"`
	Day              int      `json:"day"` // day of month, 0 when unknown
	CardLast4        string   `json:"cardLast4,omitempty"`
	SourceLine       string   `json:"sourceLine"`
	StatementID      string   `json:"statementId,omitempty"` // owning snapshot, "YYYY-MM"
}

// Kind derives the direction from the amount sign.
func (t *Transaction) Kind() Kind {
	if t.Amount < 0 {
		return KindWithdrawal
	}
	return KindDeposit
}

// EffectiveCategory returns the override when present, else the rule-derived
// category.
func (t *Transaction) EffectiveCategory() Category {
	if t.CategoryOverride != "" {
		return t.CategoryOverride
	}
	if t.Category == "" {
		return CategoryUncategorized
	}
	return t.Category
}

// SnapshotInputs are the user-entered monthly totals. TotalDeposits and
// TotalWithdrawals are unsigned magnitudes.
type SnapshotInputs struct {
	BeginningBalance float64 `json:"beginningBalance"`
	TotalDeposits    float64 `json:"totalDeposits"`
	TotalWithdrawals float64 `json:"totalWithdrawals"`
}

// StatementSnapshot is one calendar month's persisted statement state.
type StatementSnapshot struct {
	ID        string         `json:"id"` // "YYYY-MM", unique per (year, month)
	Label     string         `json:"label"`
	StmtYear  int            `json:"stmtYear"`
	StmtMonth int            `json:"stmtMonth"`
	Inputs    SnapshotInputs `json:"inputs"`
	PagesRaw  []string       `json:"pagesRaw"`
	CachedTx  []Transaction  `json:"cachedTx"`
}

// SnapshotID builds the canonical "YYYY-MM" id for a statement month.
func SnapshotID(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ParseSnapshotID splits a "YYYY-MM" id back into year and month.
func ParseSnapshotID(id string) (year, month int, err error) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid snapshot id %q (want YYYY-MM)", id)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid snapshot id %q: %w", id, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid snapshot id %q: month out of range", id)
	}
	if SnapshotID(year, month) != id {
		return 0, 0, fmt.Errorf("invalid snapshot id %q (want canonical YYYY-MM)", id)
	}
	return year, month, nil
}

// NewStatementSnapshot creates a validated snapshot for the given month.
func NewStatementSnapshot(year, month int, label string) (*StatementSnapshot, error) {
	if year < 1900 || year > 9999 {
		return nil, fmt.Errorf("year %d out of range", year)
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month %d out of range", month)
	}
	if label == "" {
		label = SnapshotID(year, month)
	}
	return &StatementSnapshot{
		ID:        SnapshotID(year, month),
		Label:     label,
		StmtYear:  year,
		StmtMonth: month,
		PagesRaw:  []string{},
		CachedTx:  []Transaction{},
	}, nil
}

// ParsedTotals computes the unsigned deposit and withdrawal totals from the
// cached transaction list. Never the source of truth; used for drift checks
// and summaries.
func (s *StatementSnapshot) ParsedTotals() (deposits, withdrawals float64) {
	for _, tx := range s.CachedTx {
		if tx.Amount >= 0 {
			deposits += tx.Amount
		} else {
			withdrawals += -tx.Amount
		}
	}
	return deposits, withdrawals
}

// Summary is a derived monthly rollup, recomputed on demand.
type Summary struct {
	TotalDeposits    float64              `json:"totalDeposits"`
	TotalWithdrawals float64              `json:"totalWithdrawals"`
	Net              float64              `json:"net"`
	ByCategory       map[Category]float64 `json:"byCategory"` // unsigned spend per category
	Burn             float64              `json:"burn"`       // spend excluding transfers and debt servicing
}

// BuildSummary rolls up a transaction set. ByCategory counts withdrawals
// only, keyed by effective category. Burn excludes Transfers and Debt.
func BuildSummary(txs []Transaction) Summary {
	sum := Summary{ByCategory: map[Category]float64{}}
	for i := range txs {
		tx := &txs[i]
		if tx.Amount >= 0 {
			sum.TotalDeposits += tx.Amount
			continue
		}
		spend := -tx.Amount
		sum.TotalWithdrawals += spend
		cat := tx.EffectiveCategory()
		sum.ByCategory[cat] += spend
		if cat != CategoryTransfers && cat != CategoryDebt {
			sum.Burn += spend
		}
	}
	sum.Net = sum.TotalDeposits - sum.TotalWithdrawals
	return sum
}

// TopCategories returns category names ordered by descending spend, ties
// broken alphabetically for determinism.
func (s Summary) TopCategories() []Category {
	cats := make([]Category, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		a, b := s.ByCategory[cats[i]], s.ByCategory[cats[j]]
		if math.Abs(a-b) > 1e-9 {
			return a > b
		}
		return cats[i] < cats[j]
	})
	return cats
}
