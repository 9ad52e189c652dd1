// Package amount extracts transaction amounts and running balances from
// statement lines using currency-shape token heuristics.
package amount

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Source records which heuristic produced the extraction.
type Source string

const (
	SourceEOLPair Source = "eol-pair"
	SourceSingle  Source = "single"
	SourceNone    Source = "none"
)

// Extraction is the best-effort result of scanning one line.
type Extraction struct {
	Amount         *float64
	RunningBalance *float64
	Source         Source
}

var (
	tokenPattern = regexp.MustCompile(`\(?\$?-?\d{1,3}(?:,\d{3})*\.\d{2}\)?`)
	amountOnly   = regexp.MustCompile(`^\(?\$?-?\d{1,3}(?:,\d{3})*\.\d{2}\)?$`)
	wsOnly       = regexp.MustCompile(`^\s+$`)
)

// Tokens returns every currency-shaped substring in order of appearance.
func Tokens(line string) []string {
	return tokenPattern.FindAllString(line, -1)
}

// IsAmountOnly reports whether the trimmed line is a lone currency token
// with no other text.
func IsAmountOnly(line string) bool {
	return amountOnly.MatchString(strings.TrimSpace(line))
}

// HasToken reports whether the line contains at least one currency token.
func HasToken(line string) bool {
	return tokenPattern.MatchString(line)
}

// ParseMoney converts a currency token to a signed float64. Parenthesized
// values are negative; currency symbols and thousands separators are
// stripped. "(45.00)" -> -45, "-45.00" -> -45, "$1,234.56" -> 1234.56.
func ParseMoney(tok string) (float64, error) {
	s := strings.TrimSpace(tok)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a currency value %q: %w", tok, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// hasNegativeMarker reports an explicit sign on the raw token.
func hasNegativeMarker(tok string) bool {
	return strings.HasPrefix(tok, "(") || strings.HasPrefix(tok, "-") ||
		strings.HasPrefix(tok, "$-") || strings.HasPrefix(strings.TrimPrefix(tok, "$"), "-")
}

// Extract scans a line for its transaction amount and optional running
// balance.
//
// Heuristic order:
//  1. Line ends with two tokens separated only by whitespace: first is the
//     amount, second the running balance ("eol-pair").
//  2. Exactly one token: that is the amount ("single").
//  3. Two or more tokens elsewhere: prefer a token with an explicit negative
//     marker; otherwise pick the smaller magnitude, since running balances
//     are typically larger than individual transactions ("single").
//  4. No tokens: Source "none", amount undefined.
//
// Known limitation: step 3 can mispick when two similar-sized transaction
// amounts share a line; there is no structural way to disambiguate that.
func Extract(line string) Extraction {
	locs := tokenPattern.FindAllStringIndex(line, -1)
	if len(locs) == 0 {
		return Extraction{Source: SourceNone}
	}

	toks := make([]string, len(locs))
	for i, l := range locs {
		toks[i] = line[l[0]:l[1]]
	}

	if len(locs) >= 2 {
		last := locs[len(locs)-1]
		prev := locs[len(locs)-2]
		between := line[prev[1]:last[0]]
		if last[1] == len(strings.TrimRight(line, " \t")) || strings.TrimRight(line[last[1]:], " \t") == "" {
			if between != "" && wsOnly.MatchString(between) {
				amt, err1 := ParseMoney(toks[len(toks)-2])
				bal, err2 := ParseMoney(toks[len(toks)-1])
				if err1 == nil && err2 == nil {
					return Extraction{Amount: &amt, RunningBalance: &bal, Source: SourceEOLPair}
				}
			}
		}
	}

	if len(toks) == 1 {
		amt, err := ParseMoney(toks[0])
		if err != nil {
			return Extraction{Source: SourceNone}
		}
		return Extraction{Amount: &amt, Source: SourceSingle}
	}

	// Multiple tokens, no end-of-line pair. An explicit negative marker is
	// the strongest signal that a token is the transaction amount.
	for _, tok := range toks {
		if hasNegativeMarker(tok) {
			amt, err := ParseMoney(tok)
			if err == nil {
				return Extraction{Amount: &amt, Source: SourceSingle}
			}
		}
	}

	bestVal, err := ParseMoney(toks[0])
	if err != nil {
		return Extraction{Source: SourceNone}
	}
	for _, tok := range toks[1:] {
		v, err := ParseMoney(tok)
		if err != nil {
			continue
		}
		if abs(v) < abs(bestVal) {
			bestVal = v
		}
	}
	return Extraction{Amount: &bestVal, Source: SourceSingle}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
