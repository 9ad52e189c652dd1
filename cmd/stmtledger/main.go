package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/domain"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/enrich"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/output"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/period"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/pipeline"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/recurring"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/remote"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/rules"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/scanner"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/storage"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/ui"
	"github.com/rumor-ml/commons.systems/stmtledger/internal/validate"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	inputDir = flag.String("input", "", "Input directory containing statement text files (required)")
	dbPath   = flag.String("db", "", "SQLite ledger database path (default: in-memory)")
	dryRun   = flag.Bool("dry-run", false, "Show what would be imported without writing")
	verbose  = flag.Bool("verbose", false, "Show detailed import logs")

	// Report flags
	periodFlag    = flag.String("period", "current", "Reporting period: current or ytd")
	statementFlag = flag.String("statement", "", "Anchor statement month (YYYY-MM, default: current selection)")

	// Output and merge flags
	outputFile = flag.String("output", "", "Output JSON file (default: stdout)")
	mergeMode  = flag.Bool("merge", false, "Merge with existing output file")

	// Enrichment and sync flags
	spendersFile = flag.String("spenders", "", "YAML file mapping card digits and name tokens to spenders")
	projectID    = flag.String("project", "", "Firestore project for settings sync (optional)")
	credsFile    = flag.String("credentials", "", "Service account credentials file for sync")
	userID       = flag.String("user", "", "User id for synced settings documents")
)

func main() {
	// Custom usage message
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `stmtledger - Statement import, normalization and categorization engine

Usage:
  stmtledger [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Import all pasted statement text files and report the current month
  stmtledger -input ~/statements

  # Persist the ledger and produce a year-to-date report
  stmtledger -input ~/statements -db ledger.db -period ytd -output report.json

  # Dry run with verbose output
  stmtledger -input ~/statements -dry-run -verbose

`)
	}

	flag.Parse()

	// Handle version flag
	if *versionFlag {
		fmt.Printf("stmtledger version %s\n", version)
		os.Exit(0)
	}

	// Validate required flags
	if *inputDir == "" {
		fmt.Fprintf(os.Stderr, "Error: -input flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	reportPeriod, err := parsePeriod(*periodFlag)
	if err != nil {
		return err
	}

	s := scanner.New(*inputDir)

	if !*verbose {
		ui.Header("Importing Bank Statements")
		ui.Step(1, 4, "Scanning directory")
	} else {
		fmt.Fprintf(os.Stderr, "Scanning directory: %s\n", *inputDir)
	}

	files, err := s.Scan()
	if err != nil {
		return fmt.Errorf("failed to scan directory %s: %w", *inputDir, err)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Found %d statement files\n", len(files))
		for _, f := range files {
			fmt.Fprintf(os.Stderr, "  - %s (month: %s, label: %s)\n",
				f.Path, domain.SnapshotID(f.Year, f.Month), f.Label)
		}
	} else {
		ui.Success(fmt.Sprintf("Found %d statement files", len(files)))
	}

	// Dry run mode: stop after scanning, don't import
	if *dryRun {
		fmt.Printf("Dry run complete. Would import %d files.\n", len(files))
		return nil
	}

	if len(files) == 0 {
		return fmt.Errorf("no statement files found in %s\n\nPlease check:\n  - Directory path is correct\n  - Files have a .txt or .text extension\n  - You have read permissions on the directory and files\n\nRun with -verbose to see file discovery details", *inputDir)
	}

	if !*verbose {
		ui.Step(2, 4, "Opening ledger store")
	}
	port, closeStore, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	importer, err := pipeline.New(port)
	if err != nil {
		return fmt.Errorf("failed to initialize importer: %w", err)
	}

	if *spendersFile != "" {
		spenders, err := loadSpenders(*spendersFile)
		if err != nil {
			return fmt.Errorf("failed to load spenders file: %w", err)
		}
		importer.Spenders = spenders
		if *verbose {
			fmt.Fprintf(os.Stderr, "Loaded spender mapping: %d cards, %d names\n",
				len(spenders.Cards), len(spenders.Names))
		}
	}

	if !*verbose {
		ui.Step(3, 4, "Importing statements")
	} else {
		fmt.Fprintln(os.Stderr, "\nImporting statements...")
	}

	var (
		totalRows int
		learned   bool
		skipped   []string
	)
	for i, file := range files {
		if *verbose {
			fmt.Fprintf(os.Stderr, "  Importing %s as %s\n",
				file.Path, domain.SnapshotID(file.Year, file.Month))
		} else {
			percentage := float64(i+1) / float64(len(files)) * 100
			fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files (%.0f%%)...", i+1, len(files), percentage)
		}

		raw, err := os.ReadFile(file.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file.Path, err)
		}

		result, err := importer.Import(string(raw), file.Year, file.Month, file.Label)
		if err != nil {
			return fmt.Errorf("import failed for file %d of %d (%s): %w",
				i+1, len(files), file.Path, err)
		}

		if result.SnapshotID == "" {
			// No extraction profile could be learned from this file.
			skipped = append(skipped, file.Path)
			continue
		}
		totalRows += len(result.Transactions)
		learned = learned || result.Learned
	}

	if !*verbose {
		fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files (100%%) - Complete!\n", len(files), len(files))
	}

	if len(skipped) > 0 {
		if *verbose {
			fmt.Fprintf(os.Stderr, "Skipped %d files with no recognizable transaction layout:\n", len(skipped))
			for _, path := range skipped {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
		} else {
			ui.Warning(fmt.Sprintf("Skipped %d files with no recognizable transaction layout", len(skipped)))
		}
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "\nImport complete:\n")
		fmt.Fprintf(os.Stderr, "  Files: %d\n", len(files)-len(skipped))
		fmt.Fprintf(os.Stderr, "  Transactions: %d\n", totalRows)
		fmt.Fprintf(os.Stderr, "  Learned new layout profile: %v\n", learned)
	}

	if !*verbose {
		ui.Step(4, 4, "Building report")
	} else {
		fmt.Fprintln(os.Stderr, "\nBuilding report...")
	}

	ledger, err := buildLedger(importer, reportPeriod, *statementFlag)
	if err != nil {
		return err
	}

	// Validate the cached ledger before writing anything
	validationResult := validate.ValidateLedger(ledger.Snapshots)
	if len(validationResult.Errors) > 0 {
		if *verbose {
			fmt.Fprintf(os.Stderr, "\nValidation failed with %d errors:\n", len(validationResult.Errors))
			for _, e := range validationResult.Errors {
				fmt.Fprintf(os.Stderr, "  - %s %s [%s]: %s\n", e.Entity, e.ID, e.Field, e.Message)
			}
		} else {
			ui.Error(fmt.Sprintf("Validation failed with %d errors", len(validationResult.Errors)))
			for i, e := range validationResult.Errors {
				if i >= 5 {
					ui.Error(fmt.Sprintf("... and %d more errors", len(validationResult.Errors)-5))
					break
				}
				ui.Error(fmt.Sprintf("%s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message))
			}
			ui.Info("To fix: Review the errors above and check your statement files")
		}
		return fmt.Errorf("validation failed with %d errors", len(validationResult.Errors))
	}
	if len(validationResult.Warnings) > 0 {
		if *verbose {
			fmt.Fprintf(os.Stderr, "Validation warnings (%d):\n", len(validationResult.Warnings))
			for _, w := range validationResult.Warnings {
				fmt.Fprintf(os.Stderr, "  - %s %s [%s]: %s\n", w.Entity, w.ID, w.Field, w.Message)
			}
		} else {
			ui.Warning(fmt.Sprintf("Validation produced %d warnings", len(validationResult.Warnings)))
		}
	} else if !*verbose {
		ui.Success("Validation passed")
	}

	opts := output.WriteOptions{
		MergeMode: *mergeMode,
		FilePath:  *outputFile,
	}
	if err := output.WriteLedgerToFile(ledger, opts); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if *outputFile != "" {
		if *verbose {
			fmt.Printf("\nOutput written to %s\n", *outputFile)
		} else {
			fmt.Fprintf(os.Stderr, "\n")
			ui.Success(fmt.Sprintf("Output written to %s", *outputFile))
		}
	}

	// Mirror settings and the derived report to Firestore when a project
	// is configured.
	if *projectID != "" {
		if err := syncSettings(ctx, importer, ledger); err != nil {
			// Sync is best effort; the local write already succeeded.
			ui.Warning(fmt.Sprintf("Settings sync failed: %v", err))
		} else if *verbose {
			fmt.Fprintf(os.Stderr, "Settings synced to project %s\n", *projectID)
		}
	}

	return nil
}

// buildLedger assembles the export document: all cached snapshots, the
// selected period's rows rolled into a summary, and the recurring model
// derived from the anchor year's transactions.
func buildLedger(importer *pipeline.Importer, reportPeriod period.Period, anchorQuery string) (*output.Ledger, error) {
	snapshots, err := importer.Snapshots.ListIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to list cached statements: %w", err)
	}

	query := ""
	if anchorQuery != "" {
		query = "statement=" + anchorQuery
	}
	anchorID, err := period.SelectAnchor(query, importer.Snapshots)
	if err != nil {
		return nil, err
	}

	ledger := &output.Ledger{
		Version:   output.CurrentVersion,
		Snapshots: snapshots,
	}
	if anchorID == "" {
		// Nothing imported and nothing selected; export the empty ledger.
		return ledger, nil
	}

	engine, err := importer.Rules.Engine()
	if err != nil {
		return nil, fmt.Errorf("failed to build rules engine: %w", err)
	}
	agg := &period.Aggregator{Snapshots: importer.Snapshots, Rules: engine}

	live := liveRows(snapshots, anchorID)
	rows, err := agg.RowsForPeriod(reportPeriod, anchorID, live)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s rows: %w", reportPeriod, err)
	}
	summary := domain.BuildSummary(rows)
	ledger.Summary = &summary

	// Recurrence detection needs cross-month evidence, so it always runs
	// over the anchor year regardless of the reporting period.
	ytd, err := agg.RowsForPeriod(period.YTD, anchorID, live)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate recurring candidates: %w", err)
	}
	ledger.Recurring = recurring.Build(ytd)

	return ledger, nil
}

func liveRows(snapshots []domain.StatementSnapshot, anchorID string) []domain.Transaction {
	for i := range snapshots {
		if snapshots[i].ID == anchorID {
			return snapshots[i].CachedTx
		}
	}
	return nil
}

func openStore(path string) (storage.Port, func(), error) {
	if path == "" {
		return storage.NewMemory(), func() {}, nil
	}
	db, err := storage.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger database %s: %w", path, err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: Failed to close ledger database: %v\n", err)
		}
	}, nil
}

func loadSpenders(path string) (enrich.SpenderConfig, error) {
	var cfg enrich.SpenderConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid spender mapping in %s: %w", path, err)
	}
	return cfg, nil
}

func parsePeriod(value string) (period.Period, error) {
	switch strings.ToLower(value) {
	case "current":
		return period.Current, nil
	case "ytd":
		return period.YTD, nil
	default:
		return "", fmt.Errorf("invalid -period %q: must be current or ytd", value)
	}
}

// syncSettings mirrors the rule set, the learned layout profile and the
// derived report to per-user settings documents. A store with no user
// edits adopts the remotely synced rules first, so a fresh machine
// inherits edits made elsewhere.
func syncSettings(ctx context.Context, importer *pipeline.Importer, ledger *output.Ledger) error {
	if *userID == "" {
		return fmt.Errorf("-user is required when -project is set")
	}
	client, err := remote.NewClient(ctx, *projectID, *credsFile)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := adoptRemoteRules(ctx, client, importer.Rules); err != nil {
		// Pulling is advisory; publishing proceeds on local state.
		ui.Warning(fmt.Sprintf("Could not adopt synced rules: %v", err))
	}

	syncer := remote.NewSyncer(client, *userID, 200*time.Millisecond)
	defer syncer.Close()

	rulesDoc, err := marshalRules(importer.Rules)
	if err != nil {
		return err
	}
	syncer.Enqueue(remote.KindRules, rulesDoc)

	if prof, found, err := importer.Profile(); err == nil && found {
		if payload, err := json.Marshal(prof); err == nil {
			syncer.Enqueue(remote.KindProfile, payload)
		}
	}

	reportDoc, err := json.Marshal(struct {
		Recurring []recurring.RecurringRow `json:"recurring"`
		Summary   *domain.Summary          `json:"summary"`
	}{ledger.Recurring, ledger.Summary})
	if err != nil {
		return err
	}
	syncer.Enqueue(remote.KindReport, reportDoc)
	syncer.Flush()

	if *verbose {
		docs, err := client.List(ctx, *userID)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			fmt.Fprintf(os.Stderr, "  synced %s rev %d\n", doc.Kind, doc.Revision)
		}
	}
	return nil
}

// rulesPayload is the wire shape of the synced rule set.
type rulesPayload struct {
	Category []rules.CategoryRule `json:"category"`
	Alias    []rules.AliasRule    `json:"alias"`
	Polarity []rules.PolarityRule `json:"polarity"`
}

func marshalRules(store *rules.Store) ([]byte, error) {
	category, err := store.CategoryRules()
	if err != nil {
		return nil, err
	}
	alias, err := store.AliasRules()
	if err != nil {
		return nil, err
	}
	polarity, err := store.PolarityRules()
	if err != nil {
		return nil, err
	}
	return json.Marshal(rulesPayload{Category: category, Alias: alias, Polarity: polarity})
}

// adoptRemoteRules replaces the local rule set with the synced one, but
// only when the local store carries no user edits of its own.
func adoptRemoteRules(ctx context.Context, client *remote.Client, store *rules.Store) error {
	category, err := store.CategoryRules()
	if err != nil {
		return err
	}
	for _, r := range category {
		if r.Source == rules.SourceUser {
			return nil
		}
	}
	alias, err := store.AliasRules()
	if err != nil {
		return err
	}
	if len(alias) > 0 {
		return nil
	}

	doc, found, err := client.Fetch(ctx, *userID, remote.KindRules)
	if err != nil || !found {
		return err
	}
	var payload rulesPayload
	if err := json.Unmarshal(doc.Payload, &payload); err != nil {
		return fmt.Errorf("synced rules payload unreadable: %w", err)
	}
	if err := store.SaveCategoryRules(payload.Category); err != nil {
		return err
	}
	if err := store.SaveAliasRules(payload.Alias); err != nil {
		return err
	}
	return store.SavePolarityRules(payload.Polarity)
}
