package migration

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog"
	"github.com/privateledger/ledger/pkg/ledger/projection"
)

// rawBankRow is one row of a fresh bank-export CSV landing in ingest/,
// distinct from LedgerRow's legacy ledger schema: a bank export carries no
// transaction_id of its own, only the columns a statement export gives:
// date, description, amount, and an optional currency.
type rawBankRow struct {
	Date        string
	Description string
	Amount      decimal.Decimal
	Currency    string
}

var bankRequiredColumns = []string{"date", "description", "amount"}

func parseBankCSV(r io.Reader) ([]rawBankRow, []RowError) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, []RowError{{Line: 1, Err: fmt.Errorf("reading header: %w", err)}}
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, col := range bankRequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, []RowError{{Line: 1, Err: fmt.Errorf("missing required column %q", col)}}
		}
	}

	var rows []rawBankRow
	var errs []RowError
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, RowError{Line: line, Err: err})
			continue
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		amount, err := decimal.NewFromString(field("amount"))
		if err != nil {
			errs = append(errs, RowError{Line: line, Err: fmt.Errorf("invalid amount %q: %w", field("amount"), err)})
			continue
		}

		currency := field("currency")
		if currency == "" {
			currency = "CAD"
		} else if !govalidator.IsISO4217(currency) {
			errs = append(errs, RowError{Line: line, Err: fmt.Errorf("invalid currency code %q", currency)})
			continue
		}

		rows = append(rows, rawBankRow{
			Date:        field("date"),
			Description: field("description"),
			Amount:      amount,
			Currency:    currency,
		})
	}
	return rows, errs
}

// IngestReport summarizes a live bank-CSV ingest run.
type IngestReport struct {
	TotalRows           int
	Imported            int
	DescriptionObserved int
	Collapsed           int
	RowErrors           []RowError
}

// ImportBankCSV is the day-to-day counterpart to Backfill: it reads a
// freshly landed bank export CSV from the ingest/ directory and applies
// the content-addressed identity rule row by row.
//
// For each row, the content-addressed id is computed from
// (sourceAccount, date, amount, normalized description). If no
// transaction exists at that id, a TransactionImported is appended. If a
// record already exists at the same (account, date, amount) under a
// different id with a different description, a
// TransactionDescriptionObserved is appended linking the two. An exact
// match on all four components collapses silently with no event at all.
func ImportBankCSV(ctx context.Context, r io.Reader, sourceFile, sourceAccount string, log eventlog.Log, store projection.Store) (*IngestReport, error) {
	rows, rowErrs := parseBankCSV(r)
	report := &IngestReport{RowErrors: rowErrs}

	for _, row := range rows {
		report.TotalRows++
		id := event.ComputeTransactionID(sourceAccount, row.Date, row.Amount, row.Description)

		existing, err := store.GetTransaction(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			// Exact match at the content-addressed id: same account,
			// date, amount, and normalized description. Collapses
			// silently, with no new event.
			report.Collapsed++
			continue
		}

		sibling, err := findSiblingByAttributes(ctx, store, sourceAccount, row.Date, row.Amount, id)
		if err != nil {
			return nil, err
		}
		if sibling != nil {
			observed := &event.TransactionDescriptionObservedPayload{
				OriginalTransactionID: sibling.TransactionID,
				NewTransactionID:      id,
				Date:                  row.Date,
				OldDescription:        sibling.CanonicalDescription,
				NewDescription:        row.Description,
				SourceFile:            sourceFile,
				SourceAccount:         sourceAccount,
				Amount:                row.Amount,
			}
			evt, err := event.New(event.AggregateTransaction, sibling.TransactionID, observed)
			if err != nil {
				report.RowErrors = append(report.RowErrors, RowError{Err: err})
				continue
			}
			if err := log.Append(ctx, evt); err != nil {
				return nil, err
			}
			report.DescriptionObserved++
			continue
		}

		imported := &event.TransactionImportedPayload{
			TransactionID:  id,
			Date:           row.Date,
			SourceFile:     sourceFile,
			SourceAccount:  sourceAccount,
			RawDescription: row.Description,
			Amount:         row.Amount,
			Currency:       row.Currency,
		}
		evt, err := event.New(event.AggregateTransaction, id, imported)
		if err != nil {
			report.RowErrors = append(report.RowErrors, RowError{Err: err})
			continue
		}
		if err := log.Append(ctx, evt); err != nil {
			return nil, err
		}
		report.Imported++
	}

	return report, nil
}

// findSiblingByAttributes scans for an existing record sharing
// (account, date, amount) with a different content-addressed id: the
// "different description, same underlying transaction" case. A full
// table scan is acceptable here since ingest batches are small (one
// statement export at a time) and this runs once per row.
func findSiblingByAttributes(ctx context.Context, store projection.Store, account, date string, amount decimal.Decimal, excludeID string) (*projection.TransactionRecord, error) {
	all, err := store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if rec.TransactionID == excludeID {
			continue
		}
		if rec.AccountID == account && rec.TransactionDate == date && rec.Amount.Equal(amount) {
			return rec, nil
		}
	}
	return nil, nil
}
