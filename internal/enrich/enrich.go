// Package enrich turns parsed rows into categorized ledger transactions:
// merchant canonicalization, default category inference, spender detection,
// cash-back extraction and recurrence keys.
package enrich

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/amount"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
)

// merchantRule canonicalizes one merchant. The list is ordered; the first
// matching pattern wins.
type merchantRule struct {
	pattern  *regexp.Regexp
	label    string
	category domain.Category
}

func mr(pattern, label string, cat domain.Category) merchantRule {
	return merchantRule{regexp.MustCompile(`(?i)` + pattern), label, cat}
}

// merchantRules is the built-in canonicalization table. Patterns tolerate the
// separator noise statements add between brand words.
var merchantRules = []merchantRule{
	mr(`\bnetflix\b`, "Netflix", domain.CategorySubscriptions),
	mr(`\bspotify\b`, "Spotify", domain.CategorySubscriptions),
	mr(`\bhulu\b`, "Hulu", domain.CategorySubscriptions),
	mr(`\bstarbucks\b`, "Starbucks", domain.CategoryDining),
	mr(`\bmcdonald'?s?\b`, "McDonald's", domain.CategoryDining),
	mr(`\bchipotle\b`, "Chipotle", domain.CategoryDining),
	mr(`\bdoordash\b|\bgrubhub\b`, "Food Delivery", domain.CategoryDining),
	mr(`\bwal[ -]?mart\b`, "Walmart", domain.CategoryGroceries),
	mr(`\bkroger\b`, "Kroger", domain.CategoryGroceries),
	mr(`\bsafeway\b`, "Safeway", domain.CategoryGroceries),
	mr(`\btrader[ -]?joe'?s?\b`, "Trader Joe's", domain.CategoryGroceries),
	mr(`\bwhole\s?foods\b`, "Whole Foods", domain.CategoryGroceries),
	mr(`\bcostco\b`, "Costco", domain.CategoryShopping),
	mr(`\bamazon\b|\bamzn\b`, "Amazon", domain.CategoryShopping),
	mr(`\btarget\b`, "Target", domain.CategoryShopping),
	mr(`\bshell\b|\bchevron\b|\bexxon\b`, "Gas Station", domain.CategoryTransport),
	mr(`\buber\s?eats\b`, "Uber Eats", domain.CategoryDining),
	mr(`\buber\b|\blyft\b`, "Rideshare", domain.CategoryTransport),
	mr(`\bcomcast\b|\bxfinity\b`, "Comcast", domain.CategoryUtilities),
	mr(`\bverizon\b|\bt[ -]?mobile\b|\bat&t\b`, "Phone Carrier", domain.CategoryUtilities),
	mr(`\bgeico\b|\ballstate\b|\bstate\s?farm\b`, "Auto Insurance", domain.CategoryInsurance),
	mr(`\bcvs\b|\bwalgreens\b`, "Pharmacy", domain.CategoryHealthcare),
	mr(`\bplanet\s?fitness\b`, "Planet Fitness", domain.CategorySubscriptions),
}

// keywordCategories is the fallback inference table for descriptions with no
// canonical merchant. Ordered; first hit wins.
var keywordCategories = []struct {
	pattern  *regexp.Regexp
	category domain.Category
}{
	{regexp.MustCompile(`(?i)\brent\b|\bmortgage\b|\blease\b`), domain.CategoryHousing},
	{regexp.MustCompile(`(?i)\belectric\b|\bwater\b|\bsewer\b|\binternet\b|\butility\b|\bgas co\b`), domain.CategoryUtilities},
	{regexp.MustCompile(`(?i)\binsurance\b|\bpremium\b`), domain.CategoryInsurance},
	{regexp.MustCompile(`(?i)\bpayroll\b|\bdirect dep\w*\b|\bsalary\b`), domain.CategoryIncome},
	{regexp.MustCompile(`(?i)\btransfer\b|\bzelle\b|\bvenmo\b|\bpaypal\b`), domain.CategoryTransfers},
	{regexp.MustCompile(`(?i)\bcard payment\b|\bpayment thank you\b|\bautopay\b|\bloan pmt\b|\bloan payment\b`), domain.CategoryDebt},
	{regexp.MustCompile(`(?i)\bgrocer\w*\b|\bmarket\b|\bsupermarket\b`), domain.CategoryGroceries},
	{regexp.MustCompile(`(?i)\brestaurant\b|\bcafe\b|\bcoffee\b|\bpizza\b|\bdiner\b|\bbar & grill\b`), domain.CategoryDining},
	{regexp.MustCompile(`(?i)\bfuel\b|\bgas station\b|\bparking\b|\btoll\b|\btransit\b`), domain.CategoryTransport},
	{regexp.MustCompile(`(?i)\bpharmacy\b|\bclinic\b|\bdental\b|\bmedical\b`), domain.CategoryHealthcare},
}

var (
	cashbackPattern = regexp.MustCompile(`(?i)cash\s*back\s*\$?(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
	monthNames      = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t|tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)
	digitRuns       = regexp.MustCompile(`\d+`)
	keyNoise        = regexp.MustCompile(`[#*\-/.,:;'()&]+`)
	keySpaces       = regexp.MustCompile(`\s+`)

	titleCaser = cases.Title(language.English)
)

// SpenderConfig maps card digits and description name tokens to spender
// identities. Card matches take priority over name matches.
type SpenderConfig struct {
	Cards map[string]string `json:"cards" yaml:"cards"` // last4 -> spender
	Names map[string]string `json:"names" yaml:"names"` // lowercase token -> spender
}

// Enricher converts ParsedRows into Transactions. The zero value is usable;
// Fallback defaults to Uncategorized.
type Enricher struct {
	Spenders SpenderConfig
	Fallback domain.Category
	DateFmt  string // "mdy", "dmy" or "ymd"; steers day-of-month extraction
}

// Enrich applies merchant canonicalization, category inference, spender
// detection, cash-back extraction and the recurrence key, in that order.
// The resulting amount is signed: withdrawals negative, deposits positive.
func (e *Enricher) Enrich(row domain.ParsedRow) domain.Transaction {
	merchant, category := CanonicalMerchant(row.Description)
	if category == "" {
		category = inferKeywordCategory(row.Description)
	}
	if category == "" {
		category = e.fallback()
	}

	signed := row.Amount
	if row.Kind == domain.KindWithdrawal {
		signed = -signed
	}

	return domain.Transaction{
		ID:            row.ID,
		Date:          row.Date,
		Description:   row.Description,
		Amount:        signed,
		Merchant:      merchant,
		Category:      category,
		Spender:       e.detectSpender(row),
		Cashback:      ExtractCashback(row.Description, row.Amount),
		RecurrenceKey: RecurrenceKey(merchant, row.Description),
		Day:           e.dayOfMonth(row.Date),
		CardLast4:     row.CardLast4,
		SourceLine:    row.SourceLine,
	}
}

// EnrichAll maps Enrich over a row slice.
func (e *Enricher) EnrichAll(rows []domain.ParsedRow) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, e.Enrich(row))
	}
	return txs
}

func (e *Enricher) fallback() domain.Category {
	if e.Fallback != "" {
		return e.Fallback
	}
	return domain.CategoryUncategorized
}

// CanonicalMerchant resolves a description against the ordered merchant
// table. First match wins. Returns empty strings when nothing matches.
func CanonicalMerchant(description string) (string, domain.Category) {
	for _, rule := range merchantRules {
		if rule.pattern.MatchString(description) {
			return rule.label, rule.category
		}
	}
	return "", ""
}

func inferKeywordCategory(description string) domain.Category {
	for _, kw := range keywordCategories {
		if kw.pattern.MatchString(description) {
			return kw.category
		}
	}
	return ""
}

// detectSpender resolves the spender identity. Card-last-4 has priority over
// name-token matches in the description.
func (e *Enricher) detectSpender(row domain.ParsedRow) string {
	if row.CardLast4 != "" {
		if who, ok := e.Spenders.Cards[row.CardLast4]; ok {
			return who
		}
	}
	lower := strings.ToLower(row.Description)
	tokens := make([]string, 0, len(e.Spenders.Names))
	for token := range e.Spenders.Names {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		if token != "" && strings.Contains(lower, strings.ToLower(token)) {
			return e.Spenders.Names[token]
		}
	}
	return ""
}

// ExtractCashback pulls an embedded "cash back $N.NN" amount out of a
// description, clamped so it never exceeds the gross transaction amount.
func ExtractCashback(description string, gross float64) float64 {
	m := cashbackPattern.FindStringSubmatch(description)
	if m == nil {
		return 0
	}
	v, err := amount.ParseMoney(m[1])
	if err != nil || v < 0 {
		return 0
	}
	if gross < 0 {
		gross = -gross
	}
	if v > gross {
		return gross
	}
	return v
}

// RecurrenceKey derives the stable grouping key for recurring-bill
// detection. A known canonical merchant is used directly; otherwise the
// description is stripped of month names, card digits and numeric or
// punctuation noise, lower-cased and underscore-joined. Trailing reference
// numbers therefore never split a recurring group across statements.
func RecurrenceKey(merchant, description string) string {
	base := merchant
	if base == "" {
		base = description
		base = monthNames.ReplaceAllString(base, " ")
		base = digitRuns.ReplaceAllString(base, " ")
		base = keyNoise.ReplaceAllString(base, " ")
	}
	base = strings.ToLower(strings.TrimSpace(base))
	return keySpaces.ReplaceAllString(base, "_")
}

// DisplayMerchant title-cases a raw description for presentation when no
// canonical merchant matched.
func DisplayMerchant(description string) string {
	cleaned := digitRuns.ReplaceAllString(description, "")
	cleaned = keyNoise.ReplaceAllString(cleaned, " ")
	cleaned = keySpaces.ReplaceAllString(strings.TrimSpace(cleaned), " ")
	if cleaned == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(cleaned))
}

// dayOfMonth extracts the day component from a raw statement date string
// according to the profile's date format.
func (e *Enricher) dayOfMonth(date string) int {
	parts := splitDate(date)
	if len(parts) < 2 {
		return 0
	}
	var dayStr string
	switch e.DateFmt {
	case "dmy":
		dayStr = parts[0]
	case "ymd":
		if len(parts) >= 3 {
			dayStr = parts[2]
		}
	default: // mdy
		dayStr = parts[1]
	}
	day := 0
	for _, r := range dayStr {
		if r < '0' || r > '9' {
			return 0
		}
		day = day*10 + int(r-'0')
	}
	if day < 1 || day > 31 {
		return 0
	}
	return day
}

func splitDate(date string) []string {
	return strings.FieldsFunc(date, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
}
