// Package recurring detects recurring bills and income streams across
// statement months and projects a typical month's balance curve.
package recurring

import (
	"math"
	"regexp"
	"sort"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
)

// RowType is the direction of a recurring row.
type RowType string

const (
	TypeExpense RowType = "EXPENSE"
	TypeIncome  RowType = "INCOME"
)

// RecurringRow is one detected recurring bill or income stream.
type RecurringRow struct {
	Description string          `json:"description"`
	Day         int             `json:"day"`       // averaged day of month, rounded
	AvgAmount   float64         `json:"avgAmount"` // unsigned
	Type        RowType         `json:"type"`
	Category    domain.Category `json:"category"`
}

// allowedCategories are the categories a recurring group may come from.
// One-off spending categories like dining or shopping never qualify no
// matter how regular they look.
var allowedCategories = map[domain.Category]struct{}{
	domain.CategoryHousing:       {},
	domain.CategoryUtilities:     {},
	domain.CategoryInsurance:     {},
	domain.CategorySubscriptions: {},
	domain.CategoryDebt:          {},
	domain.CategoryTransfers:     {},
	domain.CategoryIncome:        {},
}

// excludedPatterns keep cash-back lines, raw card swipes and credit-card
// bill payments from surfacing as recurring bills.
var excludedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)cash\s*back`),
	regexp.MustCompile(`(?i)\bpos\b|\bdbt\s*crd\b|\bcheckcard\b`),
	regexp.MustCompile(`(?i)card\s*payment|payment\s*thank\s*you|\bautopay\b`),
}

// Build groups transactions by recurrence key and keeps the groups that
// look like genuine monthly bills or income: an allow-listed category,
// no exclusion pattern, and activity in at least two distinct calendar
// months. Rows are sorted by day then description.
func Build(txs []domain.Transaction) []RecurringRow {
	type group struct {
		rows   []domain.Transaction
		months map[string]struct{}
	}
	groups := map[string]*group{}

	for _, tx := range txs {
		if tx.RecurrenceKey == "" || excluded(tx) {
			continue
		}
		if _, ok := allowedCategories[tx.EffectiveCategory()]; !ok {
			continue
		}
		g := groups[tx.RecurrenceKey]
		if g == nil {
			g = &group{months: map[string]struct{}{}}
			groups[tx.RecurrenceKey] = g
		}
		g.rows = append(g.rows, tx)
		if tx.StatementID != "" {
			g.months[tx.StatementID] = struct{}{}
		}
	}

	var out []RecurringRow
	for _, g := range groups {
		if len(g.months) < 2 {
			continue
		}
		out = append(out, summarize(g.rows))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Description < out[j].Description
	})
	return out
}

func excluded(tx domain.Transaction) bool {
	if tx.Cashback > 0 {
		return true
	}
	for _, re := range excludedPatterns {
		if re.MatchString(tx.Description) {
			return true
		}
	}
	return false
}

// summarize collapses one qualifying group into a row. The label comes
// from the most recent statement month; day and amount are averages.
func summarize(rows []domain.Transaction) RecurringRow {
	latest := rows[0]
	var daySum, dayCount, amountSum, signedSum float64
	for _, tx := range rows {
		if tx.StatementID > latest.StatementID {
			latest = tx
		}
		if tx.Day > 0 {
			daySum += float64(tx.Day)
			dayCount++
		}
		amountSum += math.Abs(tx.Amount)
		signedSum += tx.Amount
	}

	day := 0
	if dayCount > 0 {
		day = int(math.Round(daySum / dayCount))
	}
	rowType := TypeExpense
	if signedSum > 0 {
		rowType = TypeIncome
	}
	label := latest.Merchant
	if label == "" {
		label = latest.Description
	}
	return RecurringRow{
		Description: label,
		Day:         day,
		AvgAmount:   amountSum / float64(len(rows)),
		Type:        rowType,
		Category:    latest.EffectiveCategory(),
	}
}

// ForecastPoint is one day of the typical-month projection.
type ForecastPoint struct {
	Day     int     `json:"day"`
	Delta   float64 `json:"delta"`   // net recurring flow on this day
	Balance float64 `json:"balance"` // running balance after this day
}

// ForecastTypicalMonth walks days 1..31, applying each recurring row's
// average amount on its day and accumulating the running balance from
// startBalance.
func ForecastTypicalMonth(rows []RecurringRow, startBalance float64) []ForecastPoint {
	byDay := map[int]float64{}
	for _, r := range rows {
		amt := r.AvgAmount
		if r.Type == TypeExpense {
			amt = -amt
		}
		byDay[r.Day] += amt
	}

	curve := make([]ForecastPoint, 0, 31)
	balance := startBalance
	for day := 1; day <= 31; day++ {
		delta := byDay[day]
		balance += delta
		curve = append(curve, ForecastPoint{Day: day, Delta: delta, Balance: balance})
	}
	return curve
}
