package migration

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/privateledger/ledger/pkg/ledger/event"
)

const receiptSchema = "mailctl.receipt.v1"

// rawReceipt mirrors the mailctl.receipt.v1 JSON sidecar schema. Amount
// fields are decoded as json.Number so integral and fractional forms
// both parse without losing precision.
type rawReceipt struct {
	Schema        string      `json:"schema"`
	Vendor        string      `json:"vendor"`
	Service       *string     `json:"service"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Tax           *rawTax     `json:"tax"`
	Date          string      `json:"date"`
	InvoiceNumber *string     `json:"invoice_number"`
	SourceEmail   *string     `json:"source_email"`
	ReceiptFile   *string     `json:"receipt_file"`
}

type rawTax struct {
	Amount json.Number `json:"amount"`
	Type   *string     `json:"type"`
}

// IngestReceiptSidecar parses a mailctl.receipt.v1 JSON sidecar into a
// TransactionEnriched payload for txnID. Matching a receipt to the
// transaction it documents is not this package's job; the caller
// supplies txnID, typically having resolved it through its own
// reconciliation step.
func IngestReceiptSidecar(r io.Reader, txnID string) (*event.TransactionEnrichedPayload, error) {
	var raw rawReceipt
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("migration: decoding receipt sidecar: %w", err)
	}

	if raw.Schema != receiptSchema {
		return nil, fmt.Errorf("migration: unsupported receipt schema %q", raw.Schema)
	}
	if raw.Vendor == "" {
		return nil, fmt.Errorf("migration: receipt missing vendor")
	}
	if raw.Amount == "" {
		return nil, fmt.Errorf("migration: receipt missing amount")
	}
	if raw.Date == "" {
		return nil, fmt.Errorf("migration: receipt missing date")
	}

	currency := raw.Currency
	if currency == "" {
		currency = "CAD"
	}

	var taxAmount *decimal.Decimal
	var taxType *string
	if raw.Tax != nil && raw.Tax.Amount != "" {
		amt, err := decimal.NewFromString(raw.Tax.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("migration: invalid tax amount %q: %w", raw.Tax.Amount, err)
		}
		taxAmount = &amt
		taxType = raw.Tax.Type
	}

	payload := &event.TransactionEnrichedPayload{
		TransactionID:    txnID,
		Vendor:           raw.Vendor,
		Service:          raw.Service,
		InvoiceNumber:    raw.InvoiceNumber,
		TaxAmount:        taxAmount,
		TaxType:          taxType,
		Currency:         currency,
		ReceiptFile:      raw.ReceiptFile,
		EnrichmentSource: "receipt_sidecar",
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}
