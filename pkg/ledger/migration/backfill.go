package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog"
	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
)

// budgetReferenceTimestamp is the fixed clock value stamped on every
// BudgetCreated event emitted during a categories backfill, so re-running
// the migration against the same categories.yml yields the same budget
// payloads and timestamps (each event's event_id is still a fresh UUID).
var budgetReferenceTimestamp = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// filenamePrefix matches a YYYY-MM-DD- date prefix on a source filename.
var filenamePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-`)

// BackfillOptions configures a one-shot backfill run.
type BackfillOptions struct {
	// Force allows backfilling into a non-empty log. The precondition is
	// normally that the target log is absent or empty; when the caller
	// has already disposed of an existing log file (the eventlog.Log
	// interface has no delete-the-backing-store operation, so that step
	// is the workspace/CLI layer's job), Force skips the emptiness check
	// here.
	Force bool

	// Now is the wall-clock fallback used when neither the source
	// filename nor the transaction date yields a derivable timestamp.
	// Defaults to time.Now when zero.
	Now func() time.Time
}

func (o BackfillOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// BackfillReport summarizes a completed backfill run. Per-row errors are
// collected, not fatal.
type BackfillReport struct {
	TransactionsImported int
	CategorizationsImported int
	BudgetsImported      int
	CSVFilesProcessed     int
	RowErrors             []RowError
	FileErrors            []error
}

// Backfill reconstructs the event log from the legacy ledger CSVs in
// ledgerDir and the categories.yml at categoriesPath.
func Backfill(ctx context.Context, ledgerDir, categoriesPath string, log eventlog.Log, opts BackfillOptions) (*BackfillReport, error) {
	csvPaths, err := discoverCSVs(ledgerDir)
	if err != nil {
		return nil, err
	}
	if len(csvPaths) == 0 {
		return nil, fmt.Errorf("migration: %s contains no CSV files", ledgerDir)
	}

	if !opts.Force {
		latest, err := log.LatestSequence(ctx)
		if err != nil {
			return nil, err
		}
		if latest != 0 {
			return nil, fmt.Errorf("migration: target event log is not empty; pass BackfillOptions.Force to override")
		}
	}

	report := &BackfillReport{}

	for _, path := range csvPaths {
		if err := backfillCSVFile(ctx, path, log, opts, report); err != nil {
			report.FileErrors = append(report.FileErrors, fmt.Errorf("%s: %w", path, err))
			continue
		}
		report.CSVFilesProcessed++
	}

	if categoriesPath != "" {
		if err := backfillCategories(ctx, categoriesPath, log, report); err != nil {
			report.FileErrors = append(report.FileErrors, fmt.Errorf("%s: %w", categoriesPath, err))
		}
	}

	return report, nil
}

func discoverCSVs(ledgerDir string) ([]string, error) {
	entries, err := os.ReadDir(ledgerDir)
	if err != nil {
		return nil, ledgererr.NewStorageError("migration.discoverCSVs", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(ledgerDir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func backfillCSVFile(ctx context.Context, path string, log eventlog.Log, opts BackfillOptions, report *BackfillReport) error {
	f, err := os.Open(path)
	if err != nil {
		return ledgererr.NewStorageError("migration.backfillCSVFile", err)
	}
	defer f.Close()

	rows, rowErrs := ParseLedgerCSV(f)
	report.RowErrors = append(report.RowErrors, rowErrs...)

	filename := filepath.Base(path)
	for _, row := range rows {
		if row.RowType != RowPrimary {
			continue // duplicate/linked rows are derived from primaries
		}

		ts := deriveEventTimestamp(filename, row.Date, opts.now())

		imported := &event.TransactionImportedPayload{
			TransactionID:  row.TransactionID,
			Date:           row.Date,
			SourceFile:     row.SourceFile,
			SourceAccount:  row.AccountID,
			RawDescription: row.Description,
			Amount:         row.Amount,
			Currency:       row.Currency,
			RawData:        row.MetadataJSON,
		}
		evt, err := event.NewAt(event.AggregateTransaction, row.TransactionID, imported, ts)
		if err != nil {
			report.RowErrors = append(report.RowErrors, RowError{Err: fmt.Errorf("transaction %s: %w", row.TransactionID, err)})
			continue
		}
		if err := log.Append(ctx, evt); err != nil {
			return err
		}
		report.TransactionsImported++

		if row.Category == "" {
			continue
		}
		rationale := "Migrated from existing ledger"
		var subcategory *string
		if row.Subcategory != "" {
			sub := row.Subcategory
			subcategory = &sub
		}
		categorized := &event.TransactionCategorizedPayload{
			TransactionID: row.TransactionID,
			Category:      row.Category,
			Subcategory:   subcategory,
			Source:        event.SourceUser,
			Rationale:     &rationale,
		}
		catEvt, err := event.NewAt(event.AggregateTransaction, row.TransactionID, categorized, ts)
		if err != nil {
			report.RowErrors = append(report.RowErrors, RowError{Err: fmt.Errorf("categorization for %s: %w", row.TransactionID, err)})
			continue
		}
		if err := log.Append(ctx, catEvt); err != nil {
			return err
		}
		report.CategorizationsImported++
	}

	return nil
}

// deriveEventTimestamp picks, in order: a YYYY-MM-DD-* filename prefix,
// else the transaction date, else the fallback clock. The result is
// always pinned to noon on the chosen day so migrated events don't
// collide with or precede same-day live ingests.
func deriveEventTimestamp(filename, transactionDate string, fallback time.Time) time.Time {
	if m := filenamePrefix.FindStringSubmatch(filename); m != nil {
		if day, err := time.Parse("2006-01-02", m[1]); err == nil {
			return noon(day)
		}
	}
	if day, err := time.Parse("2006-01-02", transactionDate); err == nil {
		return noon(day)
	}
	return noon(fallback)
}

func noon(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC)
}

func backfillCategories(ctx context.Context, path string, log eventlog.Log, report *BackfillReport) error {
	f, err := os.Open(path)
	if err != nil {
		return ledgererr.NewStorageError("migration.backfillCategories", err)
	}
	defer f.Close()

	config, err := ParseCategories(f)
	if err != nil {
		return err
	}

	for _, cat := range config.Categories {
		if err := emitBudgetIfPresent(ctx, log, cat, nil, report); err != nil {
			return err
		}
		for _, sub := range cat.Subcategories {
			if err := emitBudgetIfPresent(ctx, log, cat, &sub, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func emitBudgetIfPresent(ctx context.Context, log eventlog.Log, cat Category, sub *Category, report *BackfillReport) error {
	spec := cat.Budget
	name := cat.Name
	var subcategory *string
	if sub != nil {
		spec = sub.Budget
		subName := sub.Name
		subcategory = &subName
		name = cat.Name + ":" + sub.Name
	}
	if spec == nil {
		return nil
	}

	payload := &event.BudgetCreatedPayload{
		BudgetID:    DeterministicBudgetID(name),
		Category:    cat.Name,
		Subcategory: subcategory,
		PeriodType:  event.PeriodType(spec.Period),
		StartDate:   budgetReferenceTimestamp.Format("2006-01-02"),
		Amount:      spec.Amount,
		Currency:    "CAD",
	}
	evt, err := event.NewAt(event.AggregateBudget, payload.BudgetID, payload, budgetReferenceTimestamp)
	if err != nil {
		return err
	}
	if err := log.Append(ctx, evt); err != nil {
		return err
	}
	report.BudgetsImported++
	return nil
}

// DeterministicBudgetID derives a stable budget_id from a category name
// (and, for subcategories, its "category:subcategory" form) so re-running
// the migration against an unchanged categories.yml produces the same
// budget_id and aggregate key every time. The BudgetCreated event_id is
// not derived from it and differs between runs.
func DeterministicBudgetID(categoryName string) string {
	sum := sha256.Sum256([]byte("budget|" + categoryName))
	return "budget-" + hex.EncodeToString(sum[:])[:16]
}
