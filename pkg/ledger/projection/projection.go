// Package projection materializes the event log into queryable
// transaction and budget records.
package projection

import (
	"context"

	"github.com/shopspring/decimal"
)

// EnrichmentDetail holds the receipt/invoice fields attached by a
// TransactionEnriched event. Kept separate from the core evolving fields
// (canonical_description, category, counterparty, notes) since it carries
// several optional fields that only apply once a receipt has been matched.
type EnrichmentDetail struct {
	Service         *string          `json:"service,omitempty"`
	InvoiceNumber   *string          `json:"invoice_number,omitempty"`
	TaxAmount       *decimal.Decimal `json:"tax_amount,omitempty"`
	TaxType         *string          `json:"tax_type,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	ReceiptFile     *string          `json:"receipt_file,omitempty"`
	EnrichmentSource string          `json:"enrichment_source,omitempty"`
	MatchConfidence *float64         `json:"match_confidence,omitempty"`
}

// TransactionRecord is one materialized transaction. A record exists iff
// a TransactionImported event for its id has been applied; it is never
// deleted, only mutated.
type TransactionRecord struct {
	TransactionID string

	// Immutable origin, set once by TransactionImported.
	TransactionDate string
	Amount          decimal.Decimal
	Currency        string
	AccountID       string
	SourceFile      string

	// Evolving fields.
	CanonicalDescription string
	DescriptionHistory   []string
	Category             *string
	Subcategory          *string
	Counterparty         *string
	Notes                *string
	Enrichment           *EnrichmentDetail

	// Linkage fields.
	IsDuplicate           bool
	PrimaryTransactionID  *string

	// Bookkeeping.
	LastEventID       string
	ProjectionVersion int
}

// BudgetRecord is one materialized budget allocation.
type BudgetRecord struct {
	BudgetID    string
	Category    string
	Subcategory *string
	PeriodType  string
	StartDate   string
	Amount      decimal.Decimal
	Currency    string
	IsActive    bool
}

// Store is the persistence contract the Builder applies event handlers
// against. Implementations must make Clear and the two Upsert* operations
// atomic with whatever indexes they maintain.
type Store interface {
	// Clear truncates both projections and resets last_applied_sequence to 0.
	Clear(ctx context.Context) error

	UpsertTransaction(ctx context.Context, rec *TransactionRecord) error
	GetTransaction(ctx context.Context, transactionID string) (*TransactionRecord, error)
	ListTransactions(ctx context.Context) ([]*TransactionRecord, error)

	UpsertBudget(ctx context.Context, rec *BudgetRecord) error
	GetBudget(ctx context.Context, budgetID string) (*BudgetRecord, error)
	ListBudgets(ctx context.Context) ([]*BudgetRecord, error)

	// LastAppliedSequence and SetLastAppliedSequence back the single
	// key/value metadata row that is the sole basis for distinguishing an
	// up-to-date projection from a stale one.
	LastAppliedSequence(ctx context.Context) (int64, error)
	SetLastAppliedSequence(ctx context.Context, sequence int64) error

	Close() error
}
