package profile

import (
	"regexp"
)

// MinScore is the acceptance threshold for a learned profile: below this
// fraction of matching sample lines the learner returns no profile and the
// caller must collect clearer samples.
const MinScore = 0.5

// amountGroup matches a signed or parenthesized currency token at the end
// of a line, with an optional trailing 4-digit card number after it.
const tailPattern = `\s+(?P<amount>\(?\$?-?[\d,]+\.\d{2}\)?)(?:\s+(?P<cardLast4>\d{4}))?$`

// candidate is one enumerable grammar the learner can select. The list is
// fixed and iterated in declaration order; score ties keep the earlier
// candidate, which makes learning deterministic for a given sample set.
type candidate struct {
	dateFmt DateFormat
	source  string
}

var candidates = []candidate{
	{DateMDY, `^(?P<date>\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?)\s+(?P<description>.+?)` + tailPattern},
	{DateDMY, `^(?P<date>\d{1,2}[./-]\d{1,2}(?:[./-]\d{2,4})?)\s+(?P<description>.+?)` + tailPattern},
	{DateYMD, `^(?P<date>\d{4}[/-]\d{1,2}[/-]\d{1,2})\s+(?P<description>.+?)` + tailPattern},
}

// LineReport records how one sample line fared against the selected
// candidate grammar.
type LineReport struct {
	Line    string
	Matched bool
}

// Learn generates and scores the candidate grammars against 1-2 exemplar
// lines (ideally one withdrawal and one deposit) and returns the
// best-scoring profile. A candidate's score is the fraction of sample lines
// producing non-empty date, description and amount groups. If the best
// score is below MinScore, Learn returns a nil profile; the per-line report
// tells the caller which samples failed.
func Learn(samples []string) (*Profile, []LineReport) {
	pre := defaultPreprocess()
	scratch := &Profile{Preprocess: pre}

	cleaned := make([]string, 0, len(samples))
	for _, s := range samples {
		if c := scratch.CleanLine(s); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	bestIdx := -1
	bestScore := -1.0
	var bestMatches []bool

	for i, cand := range candidates {
		re, err := regexp.Compile(cand.source)
		if err != nil {
			continue // a broken built-in candidate never aborts learning
		}
		matches := make([]bool, len(cleaned))
		hits := 0
		for j, line := range cleaned {
			if groupsNonEmpty(re, line) {
				matches[j] = true
				hits++
			}
		}
		score := float64(hits) / float64(len(cleaned))
		if score > bestScore {
			bestIdx, bestScore, bestMatches = i, score, matches
		}
	}

	reports := make([]LineReport, len(cleaned))
	for j, line := range cleaned {
		reports[j] = LineReport{Line: line, Matched: bestMatches != nil && bestMatches[j]}
	}

	if bestIdx < 0 || bestScore < MinScore {
		return nil, reports
	}

	cand := candidates[bestIdx]
	return &Profile{
		Version:      CurrentVersion,
		Unified:      true,
		UnifiedRegex: cand.source,
		Groups: Groups{
			Date:        "date",
			Description: "description",
			Amount:      "amount",
			CardLast4:   "cardLast4",
		},
		DateFmt: cand.dateFmt,
		// Many statement layouts list withdrawals without a sign; the
		// polarity rule pass corrects the exceptions.
		InferDebitIfNoSign: true,
		Preprocess:         pre,
	}, reports
}

// groupsNonEmpty reports whether matching the line yields non-empty date,
// description and amount captures.
func groupsNonEmpty(re *regexp.Regexp, line string) bool {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	var date, desc, amt string
	for i, name := range re.SubexpNames() {
		if i == 0 || i >= len(m) {
			continue
		}
		switch name {
		case "date":
			date = m[i]
		case "description":
			desc = m[i]
		case "amount":
			amt = m[i]
		}
	}
	return date != "" && desc != "" && amt != ""
}
