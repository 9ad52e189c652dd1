// Package normalize cleans raw pasted statement text into a stable,
// whitespace-normalized form the rest of the pipeline can rely on.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// Dash variants that statements and PDFs commonly paste in place of a
	// plain hyphen: en dash, em dash, minus sign, figure dash, non-breaking
	// hyphen.
	dashReplacer = strings.NewReplacer(
		"–", "-", "—", "-", "−", "-", "‒", "-", "‑", "-",
	)

	// Non-breaking / narrow space variants collapsed to a plain space.
	spaceReplacer = strings.NewReplacer(
		" ", " ", " ", " ", " ", " ", " ", " ", "\t", " ",
	)

	multiSpace = regexp.MustCompile(` {2,}`)

	// moneyToken matches a currency-shaped token: optional $, optional sign,
	// thousands separators, exactly two decimal digits, or the whole thing
	// parenthesized for negatives.
	moneyToken = regexp.MustCompile(`\(?\$?-?\d{1,3}(?:,\d{3})*\.\d{2}\)?`)

	// balanceTail matches a trailing balance-labeled money token.
	balanceTail = regexp.MustCompile(`(?i)\s+(?:(?:running|new|ending|current)\s+)?(?:balance|bal)\.?:?\s+\(?\$?-?\d{1,3}(?:,\d{3})*\.\d{2}\)?$`)

	// pairTail matches the last of two adjacent money tokens at end of line.
	pairTail = regexp.MustCompile(`(\(?\$?-?\d{1,3}(?:,\d{3})*\.\d{2}\)?)\s+\(?\$?-?\d{1,3}(?:,\d{3})*\.\d{2}\)?$`)
)

// invisible strips format-class characters: zero-width spaces, bidi marks,
// BOMs and friends. Grounded in unicode.Cf plus a couple of strays that
// category matching alone misses.
var invisible = transform.Chain(
	norm.NFC,
	runes.Remove(runes.In(unicode.Cf)),
)

// Normalize cleans raw pasted text. It is a pure function, never fails, and
// is idempotent: Normalize(Normalize(x)) == Normalize(x). Garbage or empty
// input yields an empty string.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	cleaned, _, err := transform.String(invisible, raw)
	if err != nil {
		// Transform errors only occur on invalid UTF-8; fall back to the
		// raw bytes rather than failing the import.
		cleaned = raw
	}

	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	cleaned = dashReplacer.Replace(cleaned)
	cleaned = spaceReplacer.Replace(cleaned)

	lines := strings.Split(cleaned, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = multiSpace.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)
		line = stripRunningBalance(line)
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// stripRunningBalance removes exactly one trailing token that looks like a
// running balance. A trailing token qualifies when the line holds at least
// two money tokens AND either (a) the token is preceded by a balance label
// word, or (b) the line ends with an adjacent money-token pair and those are
// the only two tokens on the line. Case (b) is deliberately narrow: wider
// stripping would re-trigger on its own output and break idempotence, and
// the amount extractor already resolves end-of-line pairs on denser lines.
func stripRunningBalance(line string) string {
	tokens := moneyToken.FindAllString(line, -1)
	if len(tokens) < 2 {
		return line
	}
	if loc := balanceTail.FindStringIndex(line); loc != nil {
		return strings.TrimSpace(line[:loc[0]])
	}
	if len(tokens) == 2 {
		if m := pairTail.FindStringSubmatchIndex(line); m != nil {
			// Keep the first token of the pair, drop the trailing balance.
			return strings.TrimSpace(line[:m[3]])
		}
	}
	return line
}

// MoneyTokenPattern exposes the currency-shape pattern source so sibling
// packages (blocks, amount) agree on what counts as an amount token.
func MoneyTokenPattern() string {
	return moneyToken.String()
}
