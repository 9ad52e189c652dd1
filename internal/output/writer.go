// Package output serializes the ledger export document to JSON, with an
// optional merge against an existing export file.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/recurring"
)

// CurrentVersion is the export document format version.
const CurrentVersion = 1

// Ledger is the exported document: every snapshot plus the derived
// recurring rows and summary.
type Ledger struct {
	Version   int                        `json:"version"`
	Snapshots []domain.StatementSnapshot `json:"snapshots"`
	Recurring []recurring.RecurringRow   `json:"recurring,omitempty"`
	Summary   *domain.Summary            `json:"summary,omitempty"`
}

// WriteOptions configures how the ledger is written.
type WriteOptions struct {
	MergeMode bool   // If true, load existing file and merge
	FilePath  string // Output path (empty = stdout)
}

// WriteLedger serializes the ledger to JSON with 2-space indentation.
func WriteLedger(ledger *Ledger, w io.Writer) error {
	if ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if ledger.Version == 0 {
		ledger.Version = CurrentVersion
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ledger); err != nil {
		return fmt.Errorf("failed to encode ledger as JSON: %w", err)
	}
	return nil
}

// WriteLedgerToFile writes the ledger to file or stdout based on options.
func WriteLedgerToFile(ledger *Ledger, opts WriteOptions) (err error) {
	if ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}

	if opts.MergeMode && opts.FilePath != "" {
		existing, err := LoadLedger(opts.FilePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load existing ledger for merge: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Warning: merge mode requested but %s does not exist, creating new file\n", opts.FilePath)
		} else {
			mergeLedgers(existing, ledger)
			ledger = existing
		}
	}

	if opts.FilePath == "" {
		return WriteLedger(ledger, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteLedger(ledger, f); err != nil {
		return fmt.Errorf("failed to write ledger to %s: %w", opts.FilePath, err)
	}
	return nil
}

// LoadLedger reads an existing export for merge mode.
func LoadLedger(filePath string) (*Ledger, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	f, err := os.Open(filePath)
	if err != nil {
		// Return unwrapped error so caller can check os.IsNotExist
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", filePath, closeErr)
		}
	}()

	var ledger Ledger
	if err := json.NewDecoder(f).Decode(&ledger); err != nil {
		return nil, fmt.Errorf("failed to decode ledger JSON: %w", err)
	}
	if ledger.Version > CurrentVersion {
		return nil, fmt.Errorf("unsupported ledger version %d (current: %d)", ledger.Version, CurrentVersion)
	}
	return &ledger, nil
}

// mergeLedgers folds source into target. Snapshots merge by id with the
// source winning, since a re-export of the same month supersedes the old
// one. Recurring rows and the summary are derived data and are taken
// wholesale from the source.
func mergeLedgers(target, source *Ledger) {
	byID := make(map[string]int, len(target.Snapshots))
	for i, snap := range target.Snapshots {
		byID[snap.ID] = i
	}
	for _, snap := range source.Snapshots {
		if i, ok := byID[snap.ID]; ok {
			target.Snapshots[i] = snap
			continue
		}
		byID[snap.ID] = len(target.Snapshots)
		target.Snapshots = append(target.Snapshots, snap)
	}
	sort.Slice(target.Snapshots, func(i, j int) bool {
		return target.Snapshots[i].ID < target.Snapshots[j].ID
	})

	target.Recurring = source.Recurring
	target.Summary = source.Summary
	target.Version = source.Version
}
