// Package profile learns and applies regex extraction profiles for
// free-form statement text.
//
// A profile is a persisted grammar: the regex source (never a compiled
// object), a named-group map, the winning date-format tag and preprocessing
// flags. Learning scores a fixed candidate list against 1-2 exemplar lines;
// parsing applies the stored regex to arbitrary lines, skipping whatever
// does not match.
package profile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// CurrentVersion is the persisted profile format version.
const CurrentVersion = 1

// DateFormat tags the field order of the date shape a profile was learned
// with.
type DateFormat string

const (
	DateMDY DateFormat = "mdy"
	DateDMY DateFormat = "dmy"
	DateYMD DateFormat = "ymd"
)

// Groups maps logical fields to the named capture groups in UnifiedRegex.
type Groups struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	CardLast4   string `json:"cardLast4"`
}

// Preprocess holds the line cleanup flags applied before matching.
type Preprocess struct {
	TrimExtraSpaces   bool     `json:"trimExtraSpaces"`
	StripPhoneNumbers bool     `json:"stripPhoneNumbers"`
	StripLeadingTags  []string `json:"stripLeadingTags"`
}

// Profile is a learned extraction grammar for one statement layout.
type Profile struct {
	Version            int        `json:"version"`
	Unified            bool       `json:"unified"`
	UnifiedRegex       string     `json:"unifiedRegex"`
	Groups             Groups     `json:"groups"`
	DateFmt            DateFormat `json:"dateFmt"`
	InferDebitIfNoSign bool       `json:"inferDebitIfNoSign"`
	Preprocess         Preprocess `json:"preprocess"`
}

// defaultPreprocess matches what the learner assumes when scoring samples.
func defaultPreprocess() Preprocess {
	return Preprocess{
		TrimExtraSpaces:   true,
		StripPhoneNumbers: false,
		StripLeadingTags:  []string{"POS", "DBT CRD", "CHECKCARD"},
	}
}

var (
	multiSpace   = regexp.MustCompile(` {2,}`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}\b`)
)

// CleanLine applies the profile's preprocessing flags to one line.
func (p *Profile) CleanLine(line string) string {
	line = strings.TrimSpace(line)
	for _, tag := range p.Preprocess.StripLeadingTags {
		if tag == "" {
			continue
		}
		upper := strings.ToUpper(line)
		prefix := strings.ToUpper(tag)
		if strings.HasPrefix(upper, prefix+" ") {
			line = strings.TrimSpace(line[len(tag):])
		}
	}
	if p.Preprocess.StripPhoneNumbers {
		line = phonePattern.ReplaceAllString(line, "")
	}
	if p.Preprocess.TrimExtraSpaces {
		line = multiSpace.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)
	}
	return line
}

// Marshal serializes the profile to its persisted JSON form.
func (p *Profile) Marshal() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Unmarshal restores a persisted profile, rejecting unknown versions.
func Unmarshal(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}
	if p.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported profile version %d (current version: %d)", p.Version, CurrentVersion)
	}
	if p.UnifiedRegex == "" {
		return nil, fmt.Errorf("profile has no regex")
	}
	return &p, nil
}
