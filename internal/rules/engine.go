// Package rules implements layered category resolution for ledger
// transactions: explicit override, then user category rules, then
// brand-catalog inference, leaving the enrichment category in place when
// nothing matches. Alias and polarity rules run as separate passes.
package rules

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
)

//go:embed brands.yaml
var embeddedBrands []byte

// RuleSource identifies where a category rule came from.
type RuleSource string

const (
	SourceBrand RuleSource = "brand"
	SourceUser  RuleSource = "user"
	SourceAlias RuleSource = "alias"
)

// AliasMode defines how an alias pattern matches a merchant string.
type AliasMode string

const (
	AliasContains AliasMode = "contains"
	AliasPrefix   AliasMode = "prefix"
	AliasRegex    AliasMode = "regex"
)

// Polarity names the sign a polarity rule forces.
type Polarity string

const (
	PolarityDeposit    Polarity = "deposit"
	PolarityWithdrawal Polarity = "withdrawal"
)

// CategoryRule maps a match key to a canonical category. Keys are unique
// per source; the last stored rule for a key wins.
type CategoryRule struct {
	ID       string          `json:"id"`
	Source   RuleSource      `json:"source"`
	Key      string          `json:"key"`
	Category domain.Category `json:"category"`
}

// AliasRule renames or collapses a merchant string.
type AliasRule struct {
	ID      string    `json:"id"`
	Pattern string    `json:"pattern"`
	Mode    AliasMode `json:"mode"`
	Label   string    `json:"label"`
}

// PolarityRule forces a sign correction for matching descriptions.
type PolarityRule struct {
	ID      string   `json:"id"`
	Pattern string   `json:"pattern"`
	As      Polarity `json:"as"`
}

// Catalog is the embedded brand seed data, category name -> literal terms.
type Catalog struct {
	Brands map[string][]string `yaml:"brands"`
}

// LoadCatalog parses the embedded brand catalog.
func LoadCatalog() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(embeddedBrands, &c); err != nil {
		return nil, fmt.Errorf("failed to parse embedded brand catalog: %w", err)
	}
	return &c, nil
}

// brandMatcher is one compiled brand term. Phrase terms (containing a space)
// outrank single tokens so a high-signal literal like "la fitness" is never
// shadowed by a short token collision.
type brandMatcher struct {
	re       *regexp.Regexp
	phrase   bool
	category domain.Category
}

// Engine resolves categories, merchant aliases and sign corrections.
// Construct via NewEngine; rules with patterns that fail to compile are
// dropped at construction so a bad stored rule can never abort a batch.
type Engine struct {
	userPhrase []CategoryRule
	userToken  []CategoryRule
	brands     []brandMatcher
	aliases    []AliasRule
	aliasRe    map[string]*regexp.Regexp
	polarity   []PolarityRule
	polarityRe map[string]*regexp.Regexp
}

// NewEngine builds an engine from the stored rule lists. Brand-source
// category rules become tolerant word-boundary matchers; user-source rules
// match as normalized phrases or tokens. Invalid regex patterns in alias or
// polarity rules are skipped per-rule.
func NewEngine(categories []CategoryRule, aliases []AliasRule, polarity []PolarityRule) *Engine {
	e := &Engine{
		aliasRe:    make(map[string]*regexp.Regexp),
		polarityRe: make(map[string]*regexp.Regexp),
	}

	for _, r := range categories {
		key := normalizeKey(r.Key)
		if key == "" {
			continue
		}
		switch r.Source {
		case SourceBrand:
			re, err := compileBrandTerm(key)
			if err != nil {
				continue
			}
			e.brands = append(e.brands, brandMatcher{
				re:       re,
				phrase:   strings.Contains(key, " "),
				category: r.Category,
			})
		default:
			r.Key = key
			if strings.Contains(key, " ") {
				e.userPhrase = append(e.userPhrase, r)
			} else {
				e.userToken = append(e.userToken, r)
			}
		}
	}

	for _, a := range aliases {
		if a.Mode == AliasRegex {
			re, err := regexp.Compile("(?i)" + a.Pattern)
			if err != nil {
				continue
			}
			e.aliasRe[a.ID] = re
		}
		e.aliases = append(e.aliases, a)
	}

	for _, p := range polarity {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			continue
		}
		e.polarityRe[p.ID] = re
		e.polarity = append(e.polarity, p)
	}

	return e
}

// compileBrandTerm turns a literal catalog term into a word-boundary
// anchored matcher tolerant to space/hyphen variation between words.
func compileBrandTerm(term string) (*regexp.Regexp, error) {
	words := strings.Fields(term)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?i)\b` + strings.Join(words, `[ -]?`) + `\b`)
}

// normalizeKey lower-cases a key or description and strips digits and
// punctuation so stored keys and incoming descriptions compare on the same
// footing.
var keyStrip = regexp.MustCompile(`[^a-z& ]+`)
var keyCollapse = regexp.MustCompile(`\s+`)

func normalizeKey(s string) string {
	s = strings.ToLower(s)
	s = keyStrip.ReplaceAllString(s, " ")
	s = keyCollapse.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ResolveCategory returns the effective category for a transaction.
// Priority: explicit override, user phrase rules, user token rules, brand
// phrase matchers, brand token matchers, then the category the transaction
// already carries.
func (e *Engine) ResolveCategory(tx domain.Transaction) domain.Category {
	if tx.CategoryOverride != "" {
		return tx.CategoryOverride
	}
	return e.resolveBase(tx)
}

// resolveBase resolves against rules only, never the override, so the
// stored source category stays intact underneath a user override.
func (e *Engine) resolveBase(tx domain.Transaction) domain.Category {
	desc := normalizeKey(tx.Description)
	tokens := strings.Fields(desc)

	for _, r := range e.userPhrase {
		if strings.Contains(desc, r.Key) {
			return r.Category
		}
	}
	for _, r := range e.userToken {
		for _, tok := range tokens {
			if tok == r.Key {
				return r.Category
			}
		}
	}

	for _, b := range e.brands {
		if b.phrase && b.re.MatchString(tx.Description) {
			return b.category
		}
	}
	for _, b := range e.brands {
		if !b.phrase && b.re.MatchString(tx.Description) {
			return b.category
		}
	}

	return tx.Category
}

// applyAlias rewrites the merchant label when an alias rule matches.
// First matching rule wins.
func (e *Engine) applyAlias(tx domain.Transaction) string {
	target := tx.Merchant
	if target == "" {
		target = tx.Description
	}
	lower := strings.ToLower(target)
	for _, a := range e.aliases {
		switch a.Mode {
		case AliasContains:
			if strings.Contains(lower, strings.ToLower(a.Pattern)) {
				return a.Label
			}
		case AliasPrefix:
			if strings.HasPrefix(lower, strings.ToLower(a.Pattern)) {
				return a.Label
			}
		case AliasRegex:
			re, ok := e.aliasRe[a.ID]
			if ok && re.MatchString(target) {
				return a.Label
			}
		}
	}
	return tx.Merchant
}

// applyPolarity forces the transaction sign when a polarity rule matches
// the description. Rules whose patterns failed to compile were already
// dropped at construction.
func (e *Engine) applyPolarity(tx domain.Transaction) float64 {
	for _, p := range e.polarity {
		re := e.polarityRe[p.ID]
		if re == nil || !re.MatchString(tx.Description) {
			continue
		}
		mag := tx.Amount
		if mag < 0 {
			mag = -mag
		}
		if p.As == PolarityWithdrawal {
			return -mag
		}
		return mag
	}
	return tx.Amount
}

// Apply runs category resolution, alias rewriting and the polarity pass
// over one transaction. The input is not mutated; overrides are never
// touched. Applying an unchanged rule set twice is a no-op.
func (e *Engine) Apply(tx domain.Transaction) domain.Transaction {
	tx.Category = e.resolveBase(tx)
	tx.Merchant = e.applyAlias(tx)
	tx.Amount = e.applyPolarity(tx)
	return tx
}

// ApplyAll maps Apply over a transaction slice.
func (e *Engine) ApplyAll(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, e.Apply(tx))
	}
	return out
}
