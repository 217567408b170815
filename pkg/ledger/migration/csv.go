// Package migration reconstructs the event log from pre-existing
// flat-file ledgers and a category configuration, and carries the
// day-to-day bank-CSV and receipt-sidecar ingest paths that feed the
// event log going forward.
package migration

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"
)

// RowType discriminates a legacy ledger CSV row.
type RowType string

const (
	RowPrimary   RowType = "primary"
	RowDuplicate RowType = "duplicate"
	RowLinked    RowType = "linked"
)

// LedgerRow is one parsed row of a legacy ledger CSV. Fields mirror the
// column set verbatim; fields are left as strings for the caller to
// interpret, except Amount, which is parsed eagerly since every
// downstream consumer needs it as a decimal, and metadata_json, which is
// decoded into MetadataJSON.
type LedgerRow struct {
	RowType      RowType
	TransactionID string
	Date          string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	AccountID     string
	Category      string
	Subcategory   string
	SourceFile    string
	MetadataJSON  map[string]any
}

// RowError reports a single malformed row. A bad row never aborts the
// batch; errors accumulate and the batch continues.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("migration: line %d: %v", e.Line, e.Err)
}

var requiredColumns = []string{
	"row_type", "transaction_id", "date", "description", "amount",
	"currency", "account_id", "category", "subcategory", "source_file", "metadata_json",
}

// ParseLedgerCSV reads a legacy ledger CSV and returns its primary,
// duplicate, and linked rows alongside any per-row parse errors. The
// header row's column order is not assumed; columns are looked up by
// name so the required set can appear in any order, with unknown
// trailing columns (transfer links, splits) ignored here and preserved
// only in metadata_json by the source system.
func ParseLedgerCSV(r io.Reader) ([]LedgerRow, []RowError) {
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
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, []RowError{{Line: 1, Err: fmt.Errorf("missing required column %q", col)}}
		}
	}

	var rows []LedgerRow
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

		row, err := parseRow(record, index)
		if err != nil {
			errs = append(errs, RowError{Line: line, Err: err})
			continue
		}
		rows = append(rows, row)
	}

	return rows, errs
}

func parseRow(record []string, index map[string]int) (LedgerRow, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	rowType := RowType(field("row_type"))
	switch rowType {
	case RowPrimary, RowDuplicate, RowLinked:
	default:
		return LedgerRow{}, fmt.Errorf("invalid row_type %q", field("row_type"))
	}

	transactionID := field("transaction_id")
	if transactionID == "" {
		return LedgerRow{}, fmt.Errorf("transaction_id must not be empty")
	}

	amount, err := decimal.NewFromString(field("amount"))
	if err != nil {
		return LedgerRow{}, fmt.Errorf("invalid amount %q: %w", field("amount"), err)
	}

	if currency := field("currency"); currency != "" && !govalidator.IsISO4217(currency) {
		return LedgerRow{}, fmt.Errorf("invalid currency code %q", currency)
	}

	var metadata map[string]any
	if raw := field("metadata_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return LedgerRow{}, fmt.Errorf("invalid metadata_json: %w", err)
		}
	}

	return LedgerRow{
		RowType:       rowType,
		TransactionID: transactionID,
		Date:          field("date"),
		Description:   field("description"),
		Amount:        amount,
		Currency:      field("currency"),
		AccountID:     field("account_id"),
		Category:      field("category"),
		Subcategory:   field("subcategory"),
		SourceFile:    field("source_file"),
		MetadataJSON:  metadata,
	}, nil
}
