package migration

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/privateledger/ledger/pkg/ledger/eventlog"
	"github.com/privateledger/ledger/pkg/ledger/projection"
)

// amountTolerance is the maximum allowed absolute difference between a
// backfilled source amount and its projected counterpart.
var amountTolerance = decimal.NewFromFloat(0.001)

// sampleSize is how many transactions Validate spot-checks field-by-field.
const sampleSize = 10

// FieldMismatch describes a single field disagreement found while
// spot-checking a sampled transaction.
type FieldMismatch struct {
	TransactionID string
	Field         string
	Source        string
	Projected     string
}

// ValidationResult reports whether a backfill's projection matches its
// source material, with specific diagnostics on failure.
type ValidationResult struct {
	TransactionCountMatches bool
	SourceTransactionCount  int
	ProjectedTransactionCount int

	BudgetCountMatches bool
	SourceBudgetCount  int
	ProjectedBudgetCount int

	SampleMatches  bool
	SampledCount   int
	FieldMismatches []FieldMismatch

	Errors []string
}

// Success reports whether every check passed.
func (r *ValidationResult) Success() bool {
	return r.TransactionCountMatches && r.BudgetCountMatches && r.SampleMatches && len(r.Errors) == 0
}

// Validate rebuilds projections from log and compares them against the
// source CSV ledgers and categories.yml.
func Validate(ctx context.Context, log eventlog.Log, projections *projection.Builder, ledgerDir, categoriesPath string) (*ValidationResult, error) {
	if _, err := projections.RebuildFromScratch(ctx); err != nil {
		return nil, err
	}
	store := projections.Store()

	result := &ValidationResult{}

	sourceRows, err := loadPrimaryRows(ledgerDir)
	if err != nil {
		return nil, err
	}
	result.SourceTransactionCount = len(sourceRows)

	projected, err := store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	result.ProjectedTransactionCount = len(projected)
	result.TransactionCountMatches = result.SourceTransactionCount == result.ProjectedTransactionCount
	if !result.TransactionCountMatches {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"transaction count mismatch: source=%d projected=%d", result.SourceTransactionCount, result.ProjectedTransactionCount))
	}

	if categoriesPath != "" {
		sourceBudgets, err := countBudgets(categoriesPath)
		if err != nil {
			return nil, err
		}
		result.SourceBudgetCount = sourceBudgets

		budgets, err := store.ListBudgets(ctx)
		if err != nil {
			return nil, err
		}
		active := 0
		for _, b := range budgets {
			if b.IsActive {
				active++
			}
		}
		result.ProjectedBudgetCount = active
		result.BudgetCountMatches = result.SourceBudgetCount == result.ProjectedBudgetCount
		if !result.BudgetCountMatches {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"budget count mismatch: source=%d projected=%d", result.SourceBudgetCount, result.ProjectedBudgetCount))
		}
	} else {
		result.BudgetCountMatches = true
	}

	result.SampleMatches = true
	for i, row := range sourceRows {
		if i >= sampleSize {
			break
		}
		result.SampledCount++
		record, err := store.GetTransaction(ctx, row.TransactionID)
		if err != nil {
			return nil, err
		}
		if record == nil {
			result.SampleMatches = false
			result.FieldMismatches = append(result.FieldMismatches, FieldMismatch{
				TransactionID: row.TransactionID, Field: "presence", Source: "present", Projected: "absent",
			})
			continue
		}
		result.FieldMismatches = append(result.FieldMismatches, compareSampledRow(row, record)...)
	}
	if len(result.FieldMismatches) > 0 {
		result.SampleMatches = false
	}

	return result, nil
}

func compareSampledRow(row LedgerRow, record *projection.TransactionRecord) []FieldMismatch {
	var mismatches []FieldMismatch
	if row.Date != record.TransactionDate {
		mismatches = append(mismatches, FieldMismatch{row.TransactionID, "date", row.Date, record.TransactionDate})
	}
	if row.Amount.Sub(record.Amount).Abs().GreaterThan(amountTolerance) {
		mismatches = append(mismatches, FieldMismatch{row.TransactionID, "amount", row.Amount.String(), record.Amount.String()})
	}
	sourceCategory := row.Category
	projectedCategory := ""
	if record.Category != nil {
		projectedCategory = *record.Category
	}
	if sourceCategory != projectedCategory {
		mismatches = append(mismatches, FieldMismatch{row.TransactionID, "category", sourceCategory, projectedCategory})
	}
	// An absent subcategory on either side compares equal to an empty
	// string.
	sourceSubcategory := row.Subcategory
	projectedSubcategory := ""
	if record.Subcategory != nil {
		projectedSubcategory = *record.Subcategory
	}
	if sourceSubcategory != projectedSubcategory {
		mismatches = append(mismatches, FieldMismatch{row.TransactionID, "subcategory", sourceSubcategory, projectedSubcategory})
	}
	return mismatches
}

func loadPrimaryRows(ledgerDir string) ([]LedgerRow, error) {
	paths, err := discoverCSVs(ledgerDir)
	if err != nil {
		return nil, err
	}
	var rows []LedgerRow
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		parsed, _ := ParseLedgerCSV(f)
		f.Close()
		for _, row := range parsed {
			if row.RowType == RowPrimary {
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

func countBudgets(categoriesPath string) (int, error) {
	f, err := os.Open(categoriesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	config, err := ParseCategories(f)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, cat := range config.Categories {
		if cat.Budget != nil {
			count++
		}
		for _, sub := range cat.Subcategories {
			if sub.Budget != nil {
				count++
			}
		}
	}
	return count, nil
}
