// Package pipeline orchestrates a statement import end to end: normalize,
// reassemble blocks, learn or load the extraction profile, parse, enrich,
// categorize and cache the result into the month's snapshot.
package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/blocks"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/enrich"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/normalize"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/profile"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/rules"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/snapshot"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/storage"
)

const keyProfile = "profile/default"

// Importer wires the pipeline stages over one persistence port.
type Importer struct {
	port      storage.Port
	Rules     *rules.Store
	Snapshots *snapshot.Store
	Spenders  enrich.SpenderConfig
	Fallback  domain.Category
}

// New builds an importer over the given port and seeds the brand catalog.
func New(port storage.Port) (*Importer, error) {
	im := &Importer{
		port:      port,
		Rules:     rules.NewStore(port),
		Snapshots: snapshot.NewStore(port),
	}
	if err := im.Rules.SeedBrands(); err != nil {
		return nil, err
	}
	return im, nil
}

// Result reports what one import produced.
type Result struct {
	SnapshotID   string // id of the cached snapshot; empty when no layout matched
	Learned      bool   // a new profile was learned during this import
	Blocks       int
	Rows         []domain.ParsedRow
	Transactions []domain.Transaction
	Summary      domain.Summary
}

// Profile returns the stored extraction profile, if any.
func (im *Importer) Profile() (*profile.Profile, bool, error) {
	data, found, err := im.port.Get(keyProfile)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read profile: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	p, err := profile.Unmarshal(data)
	if err != nil {
		// An unreadable stored profile is relearned, not fatal.
		return nil, false, nil
	}
	return p, true, nil
}

// SaveProfile persists the extraction profile.
func (im *Importer) SaveProfile(p *profile.Profile) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := im.port.Set(keyProfile, data); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// Import runs the full pipeline for one pasted statement page and caches
// the outcome into the snapshot for (year, month). Every stage degrades to
// an empty or partial result; the only errors are persistence failures and
// an invalid month.
//
// Re-importing the same page is safe: row ids are pure functions of their
// source lines, so existing cached rows are replaced in place and user
// category overrides on them survive.
func (im *Importer) Import(raw string, year, month int, label string) (*Result, error) {
	id := domain.SnapshotID(year, month)
	if _, _, err := domain.ParseSnapshotID(id); err != nil {
		return nil, err
	}

	normalized := normalize.Normalize(raw)
	blks := blocks.Collapse(normalized)
	lines := make([]string, 0, len(blks))
	for _, b := range blks {
		lines = append(lines, b.Text())
	}

	prof, found, err := im.Profile()
	if err != nil {
		return nil, err
	}
	learned := false
	if !found {
		learnedProf, _ := profile.Learn(lines)
		if learnedProf != nil {
			prof = learnedProf
			learned = true
			if err := im.SaveProfile(prof); err != nil {
				return nil, err
			}
		}
	}

	result := &Result{Learned: learned, Blocks: len(blks)}
	if prof == nil {
		// No profile could be learned; the import yields an empty row
		// set and caches nothing, rather than failing.
		return result, nil
	}
	result.SnapshotID = id

	rows, err := profile.Parse(prof, lines)
	if err != nil {
		return nil, err
	}
	result.Rows = rows

	enricher := &enrich.Enricher{
		Spenders: im.Spenders,
		Fallback: im.Fallback,
		DateFmt:  string(prof.DateFmt),
	}
	txs := enricher.EnrichAll(rows)

	engine, err := im.Rules.Engine()
	if err != nil {
		return nil, err
	}
	txs = engine.ApplyAll(txs)

	snap, err := im.cache(id, year, month, label, raw, txs)
	if err != nil {
		return nil, err
	}
	result.Transactions = snap.CachedTx
	result.Summary = domain.BuildSummary(snap.CachedTx)

	if err := im.Snapshots.SetCurrentID(id); err != nil {
		return nil, err
	}
	return result, nil
}

// cache merges freshly parsed transactions into the month's snapshot.
// Rows are matched by id; replaced rows keep their category override.
func (im *Importer) cache(id string, year, month int, label, rawPage string, txs []domain.Transaction) (*domain.StatementSnapshot, error) {
	snap, found, err := im.Snapshots.Read(id)
	if err != nil {
		return nil, err
	}
	if !found {
		snap, err = domain.NewStatementSnapshot(year, month, label)
		if err != nil {
			return nil, err
		}
	} else if label != "" {
		snap.Label = label
	}

	pageSeen := false
	for _, page := range snap.PagesRaw {
		if page == rawPage {
			pageSeen = true
			break
		}
	}
	if !pageSeen {
		snap.PagesRaw = append(snap.PagesRaw, rawPage)
	}

	existing := make(map[string]int, len(snap.CachedTx))
	for i, tx := range snap.CachedTx {
		existing[tx.ID] = i
	}
	for _, tx := range txs {
		if i, ok := existing[tx.ID]; ok {
			tx.CategoryOverride = snap.CachedTx[i].CategoryOverride
			snap.CachedTx[i] = tx
			continue
		}
		existing[tx.ID] = len(snap.CachedTx)
		snap.CachedTx = append(snap.CachedTx, tx)
	}

	if err := im.Snapshots.Upsert(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// OverrideCategory sets (or clears, with "") the category override on one
// cached transaction and rewrites the snapshot.
func (im *Importer) OverrideCategory(snapshotID, txID string, category domain.Category) error {
	snap, found, err := im.Snapshots.Read(snapshotID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no snapshot %q", snapshotID)
	}
	for i := range snap.CachedTx {
		if snap.CachedTx[i].ID == txID {
			snap.CachedTx[i].CategoryOverride = category
			return im.Snapshots.Upsert(snap)
		}
	}
	return fmt.Errorf("no transaction %q in snapshot %q", txID, snapshotID)
}

// Wipe removes a month's snapshot entirely.
func (im *Importer) Wipe(id string) error {
	return im.Snapshots.Remove(id)
}

var (
	monthYearPattern = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	isoMonthPattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})\b`)
	rowDatePattern   = regexp.MustCompile(`(?m)^(\d{1,2})/\d{1,2}\b`)

	monthNumbers = map[string]int{
		"january": 1, "february": 2, "march": 3, "april": 4,
		"may": 5, "june": 6, "july": 7, "august": 8,
		"september": 9, "october": 10, "november": 11, "december": 12,
	}
)

// InferMonth guesses the statement month from the pasted text, looking for
// a "March 2025" style header first, then a bare "2025-03", then the most
// frequent leading MM/DD token across the rows. Falls back to the month
// containing now.
func InferMonth(raw string, now time.Time) (year, month int) {
	text := normalize.Normalize(raw)
	if m := monthYearPattern.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[2])
		return y, monthNumbers[strings.ToLower(m[1])]
	}
	if m := isoMonthPattern.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if mo >= 1 && mo <= 12 {
			return y, mo
		}
	}
	if mo := frequentRowMonth(text); mo != 0 {
		return now.Year(), mo
	}
	return now.Year(), int(now.Month())
}

// frequentRowMonth tallies leading MM/DD date tokens and returns the most
// common month, or 0 when no row carries one.
func frequentRowMonth(text string) int {
	counts := map[int]int{}
	for _, m := range rowDatePattern.FindAllStringSubmatch(text, -1) {
		mo, _ := strconv.Atoi(m[1])
		if mo >= 1 && mo <= 12 {
			counts[mo]++
		}
	}
	best, bestCount := 0, 0
	for mo, n := range counts {
		if n > bestCount || (n == bestCount && mo < best) {
			best, bestCount = mo, n
		}
	}
	return best
}
