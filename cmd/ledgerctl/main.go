// ledgerctl is the command-line entry point over the ledger core: backfill
// a workspace from legacy CSVs, validate the result, run a duplicate scan,
// and ingest fresh bank CSVs landed in ingest/.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/privateledger/ledger/pkg/ledger/duplicate"
	"github.com/privateledger/ledger/pkg/ledger/migration"
	"github.com/privateledger/ledger/pkg/ledger/workspace"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "backfill":
		err = runBackfill(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "scan":
		err = runScan(os.Args[2:])
	case "ingest":
		err = runIngest(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ledgerctl <backfill|validate|scan|ingest> [flags]")
}

func runBackfill(args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	root := fs.String("workspace", ".", "workspace root directory")
	force := fs.Bool("force", false, "backfill into a non-empty event log (existing events are kept)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := workspace.Open(*root)
	if err != nil {
		return err
	}
	defer ws.Close()

	report, err := migration.Backfill(context.Background(), ws.AccountsDir(), ws.CategoriesPath(), ws.Log, migration.BackfillOptions{Force: *force})
	if err != nil {
		return err
	}

	fmt.Printf("imported %d transactions, %d categorizations, %d budgets across %d files\n",
		report.TransactionsImported, report.CategorizationsImported, report.BudgetsImported, report.CSVFilesProcessed)
	for _, rowErr := range report.RowErrors {
		fmt.Fprintf(os.Stderr, "row error: %v\n", rowErr)
	}
	for _, fileErr := range report.FileErrors {
		fmt.Fprintf(os.Stderr, "file error: %v\n", fileErr)
	}
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	root := fs.String("workspace", ".", "workspace root directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := workspace.Open(*root)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := context.Background()
	result, err := migration.Validate(ctx, ws.Log, ws.Builder, ws.AccountsDir(), ws.CategoriesPath())
	if err != nil {
		return err
	}

	fmt.Printf("transactions: source=%d projected=%d match=%v\n",
		result.SourceTransactionCount, result.ProjectedTransactionCount, result.TransactionCountMatches)
	fmt.Printf("budgets: source=%d projected=%d match=%v\n",
		result.SourceBudgetCount, result.ProjectedBudgetCount, result.BudgetCountMatches)
	fmt.Printf("sample (%d checked): match=%v\n", result.SampledCount, result.SampleMatches)
	for _, mismatch := range result.FieldMismatches {
		fmt.Fprintf(os.Stderr, "mismatch: transaction=%s field=%s source=%q projected=%q\n",
			mismatch.TransactionID, mismatch.Field, mismatch.Source, mismatch.Projected)
	}

	if !result.Success() {
		os.Exit(1)
	}
	return nil
}

func runScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	root := fs.String("workspace", ".", "workspace root directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := workspace.Open(*root)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := context.Background()
	if _, err := ws.Builder.RebuildIncremental(ctx); err != nil {
		return err
	}

	txns, err := ws.Projections.ListTransactions(ctx)
	if err != nil {
		return err
	}

	svc := duplicate.NewService(ws.Log, ws.Projections, duplicate.NewDefaultClassifier())
	assessments, err := svc.Scan(ctx, txns, duplicate.DefaultCandidateOptions(), "ledgerctl", "v1")
	if err != nil {
		return err
	}

	for _, a := range assessments {
		fmt.Printf("%s <-> %s: duplicate=%v confidence=%.2f (%s)\n",
			a.Pair.TransactionID1, a.Pair.TransactionID2, a.IsDuplicate, a.Confidence, a.Reasoning)
	}
	return nil
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	root := fs.String("workspace", ".", "workspace root directory")
	account := fs.String("account", "", "destination account id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return fmt.Errorf("-account is required")
	}

	ws, err := workspace.Open(*root)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := context.Background()
	if _, err := ws.Builder.RebuildIncremental(ctx); err != nil {
		return err
	}

	entries, err := os.ReadDir(ws.IngestDir())
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(ws.IngestDir(), entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		report, err := migration.ImportBankCSV(ctx, f, entry.Name(), *account, ws.Log, ws.Projections)
		f.Close()
		if err != nil {
			return err
		}
		fmt.Printf("%s: imported=%d description_observed=%d collapsed=%d\n",
			entry.Name(), report.Imported, report.DescriptionObserved, report.Collapsed)
		for _, rowErr := range report.RowErrors {
			fmt.Fprintf(os.Stderr, "row error in %s: %v\n", entry.Name(), rowErr)
		}
		if _, err := ws.Builder.RebuildIncremental(ctx); err != nil {
			return err
		}
	}
	return nil
}
