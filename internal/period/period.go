// Package period assembles transaction sets for reporting periods: the
// current month's live rows, or a year-to-date union across snapshots.
package period

import (
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/rules"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/snapshot"
)

// Period selects the reporting window.
type Period string

const (
	Current Period = "CURRENT"
	YTD     Period = "YTD"
)

// Aggregator builds period row sets from the snapshot store, re-applying
// the latest rule set so rule edits reach prior months without mutating
// the stored snapshots.
type Aggregator struct {
	Snapshots *snapshot.Store
	Rules     *rules.Engine
}

// RowsForPeriod returns the transaction set for the given period anchored
// at anchorID ("YYYY-MM"). liveRows is the in-progress row set for the
// anchor month and is returned verbatim for CURRENT. For YTD, cached rows
// from every snapshot in the anchor's year up to and including the anchor
// month are unioned, with liveRows substituted for the anchor month, then
// the current rules are re-applied to the whole union.
func (a *Aggregator) RowsForPeriod(period Period, anchorID string, liveRows []domain.Transaction) ([]domain.Transaction, error) {
	switch period {
	case Current:
		return liveRows, nil
	case YTD:
		return a.ytdRows(anchorID, liveRows)
	default:
		return nil, fmt.Errorf("unknown period %q", period)
	}
}

func (a *Aggregator) ytdRows(anchorID string, liveRows []domain.Transaction) ([]domain.Transaction, error) {
	year, month, err := domain.ParseSnapshotID(anchorID)
	if err != nil {
		return nil, err
	}

	index, err := a.Snapshots.ListIndex()
	if err != nil {
		return nil, err
	}

	var union []domain.Transaction
	seen := map[string]struct{}{}
	add := func(stmtID string, txs []domain.Transaction) {
		for _, tx := range txs {
			if tx.StatementID == "" {
				tx.StatementID = stmtID
			}
			key := tx.StatementID + "|" + tx.ID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			union = append(union, tx)
		}
	}

	anchorInIndex := false
	for _, snap := range index {
		if snap.StmtYear != year || snap.StmtMonth > month {
			continue
		}
		if snap.ID == anchorID {
			anchorInIndex = true
			add(anchorID, liveRows)
			continue
		}
		add(snap.ID, snap.CachedTx)
	}
	// An anchor month that has no snapshot yet still contributes its live
	// rows.
	if !anchorInIndex {
		add(anchorID, liveRows)
	}

	if a.Rules != nil {
		union = a.Rules.ApplyAll(union)
	}
	return union, nil
}

// SelectAnchor resolves the anchor month id. A "statement=YYYY-MM" query
// parameter overrides the stored current selection; otherwise the store's
// current id is used. Returns "" when neither names a month.
func SelectAnchor(query string, store *snapshot.Store) (string, error) {
	if id := queryStatement(query); id != "" {
		if _, _, err := domain.ParseSnapshotID(id); err != nil {
			return "", err
		}
		return id, nil
	}
	return store.CurrentID()
}

// queryStatement pulls the statement parameter out of a raw query string.
func queryStatement(query string) string {
	for _, pair := range strings.Split(query, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k == "statement" {
			return v
		}
	}
	return ""
}
