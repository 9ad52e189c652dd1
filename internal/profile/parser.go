package profile

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/amount"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
)

// RowID derives the deterministic id for a parsed row from its source line
// and positional index. Re-parsing identical text yields identical ids,
// which makes snapshot re-imports dedupe-safe.
func RowID(sourceLine string, index int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", sourceLine, index)
	return fmt.Sprintf("row-%016x", h.Sum64())
}

// Parse applies a learned profile to statement lines. The profile's regex is
// compiled once; lines that fail to match are skipped silently, since
// statements legitimately contain headers and footers that are not
// transactions. A profile whose stored regex does not compile is reported as
// an error so the caller can degrade to an empty result.
func Parse(p *Profile, lines []string) ([]domain.ParsedRow, error) {
	if p == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}
	re, err := regexp.Compile(p.UnifiedRegex)
	if err != nil {
		return nil, fmt.Errorf("profile regex does not compile: %w", err)
	}

	names := re.SubexpNames()
	rows := make([]domain.ParsedRow, 0, len(lines))
	for idx, raw := range lines {
		line := p.CleanLine(raw)
		if line == "" {
			continue
		}
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		date, desc, amt, card := pickGroups(p, names, m)
		if date == "" || desc == "" || amt == "" {
			continue
		}

		value, err := amount.ParseMoney(amt)
		if err != nil {
			continue
		}
		marked := hasSignMarker(amt)

		// The amount group anchors at the end of the line, so when a
		// running balance survives normalization the group captures the
		// balance instead of the amount. Re-extract dense lines with the
		// token heuristics and trim the balance off the description.
		if len(amount.Tokens(line)) >= 2 {
			if ext := amount.Extract(line); ext.Amount != nil {
				value = *ext.Amount
				marked = value < 0
				if ext.RunningBalance != nil {
					desc = trimTrailingToken(desc)
				}
			}
		}

		kind := domain.KindDeposit
		switch {
		case value < 0:
			kind = domain.KindWithdrawal
		case p.InferDebitIfNoSign && !marked:
			kind = domain.KindWithdrawal
		}
		if value < 0 {
			value = -value
		}

		rows = append(rows, domain.ParsedRow{
			ID:          RowID(raw, idx),
			Date:        date,
			Description: strings.TrimSpace(desc),
			Amount:      value,
			Kind:        kind,
			CardLast4:   card,
			SourceLine:  raw,
		})
	}
	return rows, nil
}

// pickGroups resolves field captures by the profile's named-group map,
// falling back to positional groups 1..4 (date, description, amount,
// cardLast4) when the regex carries no names.
func pickGroups(p *Profile, names []string, m []string) (date, desc, amt, card string) {
	byName := map[string]string{}
	named := false
	for i, name := range names {
		if i == 0 || name == "" || i >= len(m) {
			continue
		}
		named = true
		byName[name] = m[i]
	}
	if named {
		return byName[p.Groups.Date], byName[p.Groups.Description],
			byName[p.Groups.Amount], byName[p.Groups.CardLast4]
	}
	get := func(i int) string {
		if i < len(m) {
			return m[i]
		}
		return ""
	}
	return get(1), get(2), get(3), get(4)
}

// hasSignMarker reports an explicit polarity marker on the raw amount text.
func hasSignMarker(amt string) bool {
	s := strings.TrimPrefix(strings.TrimSpace(amt), "$")
	return strings.HasPrefix(s, "(") || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+")
}

// trimTrailingToken drops a currency token left at the end of the
// description after the amount group captured a running balance.
func trimTrailingToken(desc string) string {
	s := strings.TrimSpace(desc)
	toks := amount.Tokens(s)
	if len(toks) == 0 {
		return s
	}
	last := toks[len(toks)-1]
	if strings.HasSuffix(s, last) {
		s = strings.TrimSpace(s[:len(s)-len(last)])
	}
	return s
}
