package migration_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privateledger/ledger/pkg/ledger/migration"
)

const sampleLedgerCSV = `row_type,transaction_id,date,description,amount,currency,account_id,category,subcategory,source_file,metadata_json
primary,t1,2025-10-15,SPOTIFY PREMIUM,-9.99,CAD,ACC,Entertainment,Streaming,2025-10-statement.csv,{}
primary,t2,2025-10-16,GROCERY STORE,-45.23,CAD,ACC,,,2025-10-statement.csv,{}
duplicate,t3,2025-10-16,GROCERY STORE,-45.23,CAD,ACC,,,2025-10-statement.csv,{}
`

func TestParseLedgerCSVParsesPrimaryAndDuplicateRows(t *testing.T) {
	rows, errs := migration.ParseLedgerCSV(strings.NewReader(sampleLedgerCSV))
	require.Empty(t, errs)
	require.Len(t, rows, 3)

	require.Equal(t, migration.RowPrimary, rows[0].RowType)
	require.Equal(t, "SPOTIFY PREMIUM", rows[0].Description)
	require.True(t, rows[0].Amount.Equal(decimalMust("-9.99")))
	require.Equal(t, "Entertainment", rows[0].Category)
	require.Equal(t, "Streaming", rows[0].Subcategory)

	require.Equal(t, migration.RowDuplicate, rows[2].RowType)
}

func TestParseLedgerCSVRejectsInvalidRowType(t *testing.T) {
	csvText := `row_type,transaction_id,date,description,amount,currency,account_id,category,subcategory,source_file,metadata_json
bogus,t1,2025-10-15,X,-1.00,CAD,ACC,,,f.csv,{}
`
	rows, errs := migration.ParseLedgerCSV(strings.NewReader(csvText))
	require.Empty(t, rows)
	require.Len(t, errs, 1)
}

func TestParseLedgerCSVCollectsPerRowErrorsWithoutAbortingBatch(t *testing.T) {
	csvText := `row_type,transaction_id,date,description,amount,currency,account_id,category,subcategory,source_file,metadata_json
primary,t1,2025-10-15,GOOD ROW,-1.00,CAD,ACC,,,f.csv,{}
primary,t2,2025-10-15,BAD AMOUNT,not-a-number,CAD,ACC,,,f.csv,{}
primary,t3,2025-10-15,ANOTHER GOOD ROW,-2.00,CAD,ACC,,,f.csv,{}
`
	rows, errs := migration.ParseLedgerCSV(strings.NewReader(csvText))
	require.Len(t, rows, 2)
	require.Len(t, errs, 1)
	require.Equal(t, "t1", rows[0].TransactionID)
	require.Equal(t, "t3", rows[1].TransactionID)
}

func TestParseLedgerCSVRejectsMissingRequiredColumn(t *testing.T) {
	csvText := "row_type,transaction_id,date,description,amount,currency,account_id,category,source_file,metadata_json\n"
	rows, errs := migration.ParseLedgerCSV(strings.NewReader(csvText))
	require.Empty(t, rows)
	require.Len(t, errs, 1)
}

func TestParseLedgerCSVEmptyInputYieldsNoRowsOrErrors(t *testing.T) {
	rows, errs := migration.ParseLedgerCSV(strings.NewReader(""))
	require.Empty(t, rows)
	require.Empty(t, errs)
}
