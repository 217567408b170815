package event

import (
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"

	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
)

// CategorizationSource enumerates who assigned a category.
type CategorizationSource string

const (
	SourceUser CategorizationSource = "user"
	SourceLLM  CategorizationSource = "llm"
	SourceRule CategorizationSource = "rule"
)

// Payload is implemented by every event-specific payload struct. Validate
// is called at construction time, before persistence, so malformed events
// never reach the log.
type Payload interface {
	Type() Type
	Validate() error
}

// newPayload constructs a zero-value payload for the given discriminator,
// used by Event.UnmarshalJSON to pick the concrete type before decoding.
// Returns nil for unknown discriminators so callers can store-and-skip
// unknown future variants rather than failing the read.
func newPayload(t Type) Payload {
	switch t {
	case TransactionImported:
		return &TransactionImportedPayload{}
	case TransactionDescriptionObserved:
		return &TransactionDescriptionObservedPayload{}
	case TransactionCategorized:
		return &TransactionCategorizedPayload{}
	case TransactionEnriched:
		return &TransactionEnrichedPayload{}
	case DuplicateSuggested:
		return &DuplicateSuggestedPayload{}
	case DuplicateConfirmed:
		return &DuplicateConfirmedPayload{}
	case DuplicateRejected:
		return &DuplicateRejectedPayload{}
	case CategorizationRuleCreated:
		return &CategorizationRuleCreatedPayload{}
	case BudgetCreated:
		return &BudgetCreatedPayload{}
	case BudgetUpdated:
		return &BudgetUpdatedPayload{}
	case BudgetDeleted:
		return &BudgetDeletedPayload{}
	case PromptUpdated:
		return &PromptUpdatedPayload{}
	default:
		return nil
	}
}

// TransactionImportedPayload is the payload of a TransactionImported event.
type TransactionImportedPayload struct {
	TransactionID   string          `json:"transaction_id"`
	Date            string          `json:"transaction_date"`
	SourceFile      string          `json:"source_file"`
	SourceAccount   string          `json:"source_account"`
	RawDescription  string          `json:"raw_description"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	RawData         map[string]any  `json:"raw_data"`
}

func (p *TransactionImportedPayload) Type() Type { return TransactionImported }

func (p *TransactionImportedPayload) Validate() error {
	if p.TransactionID == "" {
		return ledgererr.NewValidationError("transaction_id", "must not be empty")
	}
	if p.SourceAccount == "" {
		return ledgererr.NewValidationError("source_account", "must not be empty")
	}
	if p.RawDescription == "" {
		return ledgererr.NewValidationError("raw_description", "must not be empty")
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	return nil
}

// TransactionDescriptionObservedPayload is the payload of a
// TransactionDescriptionObserved event.
type TransactionDescriptionObservedPayload struct {
	OriginalTransactionID string          `json:"original_transaction_id"`
	NewTransactionID      string          `json:"new_transaction_id"`
	Date                  string          `json:"transaction_date"`
	OldDescription        string          `json:"old_description"`
	NewDescription        string          `json:"new_description"`
	SourceFile            string          `json:"source_file"`
	SourceAccount         string          `json:"source_account"`
	Amount                decimal.Decimal `json:"amount"`
}

func (p *TransactionDescriptionObservedPayload) Type() Type {
	return TransactionDescriptionObserved
}

func (p *TransactionDescriptionObservedPayload) Validate() error {
	if p.OriginalTransactionID == "" {
		return ledgererr.NewValidationError("original_transaction_id", "must not be empty")
	}
	if p.NewTransactionID == "" {
		return ledgererr.NewValidationError("new_transaction_id", "must not be empty")
	}
	if p.OriginalTransactionID == p.NewTransactionID {
		return ledgererr.NewValidationError("new_transaction_id", "must differ from original_transaction_id")
	}
	return nil
}

// TransactionCategorizedPayload is the payload of a TransactionCategorized event.
type TransactionCategorizedPayload struct {
	TransactionID       string                `json:"transaction_id"`
	Category            string                `json:"category"`
	Subcategory         *string               `json:"subcategory,omitempty"`
	Source              CategorizationSource  `json:"source"`
	Confidence          *float64              `json:"confidence,omitempty"`
	PreviousCategory    *string               `json:"previous_category,omitempty"`
	PreviousSubcategory *string               `json:"previous_subcategory,omitempty"`
	Rationale           *string               `json:"rationale,omitempty"`
}

func (p *TransactionCategorizedPayload) Type() Type { return TransactionCategorized }

func (p *TransactionCategorizedPayload) Validate() error {
	if p.TransactionID == "" {
		return ledgererr.NewValidationError("transaction_id", "must not be empty")
	}
	if err := validateCategoryName("category", p.Category); err != nil {
		return err
	}
	if p.Subcategory != nil {
		if err := validateCategoryName("subcategory", *p.Subcategory); err != nil {
			return err
		}
	}
	switch p.Source {
	case SourceUser, SourceLLM, SourceRule:
	default:
		return ledgererr.NewValidationError("source", "must be one of user, llm, rule")
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return ledgererr.NewValidationError("confidence", "must be within [0, 1]")
	}
	return nil
}

// TransactionEnrichedPayload is the payload of a TransactionEnriched event.
type TransactionEnrichedPayload struct {
	TransactionID     string           `json:"transaction_id"`
	Vendor            string           `json:"vendor"`
	Service           *string          `json:"service,omitempty"`
	InvoiceNumber     *string          `json:"invoice_number,omitempty"`
	TaxAmount         *decimal.Decimal `json:"tax_amount,omitempty"`
	TaxType           *string          `json:"tax_type,omitempty"`
	Currency          string           `json:"currency"`
	ReceiptFile       *string          `json:"receipt_file,omitempty"`
	EnrichmentSource  string           `json:"enrichment_source"`
	MatchConfidence   *float64         `json:"match_confidence,omitempty"`
}

func (p *TransactionEnrichedPayload) Type() Type { return TransactionEnriched }

func (p *TransactionEnrichedPayload) Validate() error {
	if p.TransactionID == "" {
		return ledgererr.NewValidationError("transaction_id", "must not be empty")
	}
	if p.Vendor == "" {
		return ledgererr.NewValidationError("vendor", "must not be empty")
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	if p.MatchConfidence != nil && (*p.MatchConfidence < 0 || *p.MatchConfidence > 1) {
		return ledgererr.NewValidationError("match_confidence", "must be within [0, 1]")
	}
	return nil
}

// TransactionPair identifies two candidate transactions by ID, embedded
// whole in DuplicateSuggestedPayload.Assessment.Pair so training data can
// later be reconstructed from the event log alone.
type TransactionPair struct {
	TransactionID1 string `json:"transaction_id_1"`
	TransactionID2 string `json:"transaction_id_2"`
}

// Assessment is the classifier's verdict on a candidate pair. It carries
// exactly these four keys. Derived booleans such as "same_date" are
// recomputable features and deliberately stay out of the payload.
type Assessment struct {
	IsDuplicate bool            `json:"is_duplicate"`
	Confidence  float64         `json:"confidence"`
	Reasoning   string          `json:"reasoning"`
	Pair        TransactionPair `json:"pair"`
}

// DuplicateSuggestedPayload is the payload of a DuplicateSuggested event.
type DuplicateSuggestedPayload struct {
	TransactionID1 string     `json:"transaction_id_1"`
	TransactionID2 string     `json:"transaction_id_2"`
	Confidence     float64    `json:"confidence"`
	Reasoning      string     `json:"reasoning"`
	Model          string     `json:"model"`
	PromptVersion  string     `json:"prompt_version"`
	Assessment     Assessment `json:"assessment"`
}

func (p *DuplicateSuggestedPayload) Type() Type { return DuplicateSuggested }

func (p *DuplicateSuggestedPayload) Validate() error {
	if p.TransactionID1 == "" || p.TransactionID2 == "" {
		return ledgererr.NewValidationError("transaction_id_1/2", "must not be empty")
	}
	if p.TransactionID1 == p.TransactionID2 {
		return ledgererr.NewValidationError("transaction_id_2", "must differ from transaction_id_1")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return ledgererr.NewValidationError("confidence", "must be within [0, 1]")
	}
	return nil
}

// DuplicateConfirmedPayload is the payload of a DuplicateConfirmed event.
type DuplicateConfirmedPayload struct {
	SuggestionEventID     string  `json:"suggestion_event_id"`
	PrimaryTransactionID  string  `json:"primary_transaction_id"`
	DuplicateTransactionID string `json:"duplicate_transaction_id"`
	CanonicalDescription  string  `json:"canonical_description"`
	UserRationale         *string `json:"user_rationale,omitempty"`
	LLMWasCorrect         bool    `json:"llm_was_correct"`
}

func (p *DuplicateConfirmedPayload) Type() Type { return DuplicateConfirmed }

func (p *DuplicateConfirmedPayload) Validate() error {
	if p.PrimaryTransactionID == "" || p.DuplicateTransactionID == "" {
		return ledgererr.NewValidationError("primary_transaction_id/duplicate_transaction_id", "must not be empty")
	}
	if p.PrimaryTransactionID == p.DuplicateTransactionID {
		return ledgererr.NewValidationError("duplicate_transaction_id", "must differ from primary_transaction_id")
	}
	if p.CanonicalDescription == "" {
		return ledgererr.NewValidationError("canonical_description", "must not be empty")
	}
	return nil
}

// DuplicateRejectedPayload is the payload of a DuplicateRejected event.
type DuplicateRejectedPayload struct {
	SuggestionEventID string  `json:"suggestion_event_id"`
	TransactionID1    string  `json:"transaction_id_1"`
	TransactionID2    string  `json:"transaction_id_2"`
	UserRationale     *string `json:"user_rationale,omitempty"`
	LLMWasCorrect     bool    `json:"llm_was_correct"`
}

func (p *DuplicateRejectedPayload) Type() Type { return DuplicateRejected }

func (p *DuplicateRejectedPayload) Validate() error {
	if p.TransactionID1 == "" || p.TransactionID2 == "" {
		return ledgererr.NewValidationError("transaction_id_1/2", "must not be empty")
	}
	return nil
}

// CategorizationRuleCreatedPayload is the payload of a CategorizationRuleCreated event.
type CategorizationRuleCreatedPayload struct {
	RuleID       string  `json:"rule_id"`
	RuleType     string  `json:"rule_type"`
	Pattern      string  `json:"pattern"`
	Category     string  `json:"category"`
	Subcategory  *string `json:"subcategory,omitempty"`
	Enabled      bool    `json:"enabled"`
}

func (p *CategorizationRuleCreatedPayload) Type() Type { return CategorizationRuleCreated }

func (p *CategorizationRuleCreatedPayload) Validate() error {
	if p.Pattern == "" {
		return ledgererr.NewValidationError("pattern", "must not be empty")
	}
	return validateCategoryName("category", p.Category)
}

// PeriodType enumerates budget recurrence.
type PeriodType string

const (
	PeriodMonthly PeriodType = "monthly"
	PeriodYearly  PeriodType = "yearly"
)

// BudgetCreatedPayload is the payload of a BudgetCreated event.
type BudgetCreatedPayload struct {
	BudgetID    string          `json:"budget_id"`
	Category    string          `json:"category"`
	Subcategory *string         `json:"subcategory,omitempty"`
	PeriodType  PeriodType      `json:"period_type"`
	StartDate   string          `json:"start_date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (p *BudgetCreatedPayload) Type() Type { return BudgetCreated }

func (p *BudgetCreatedPayload) Validate() error {
	if p.BudgetID == "" {
		return ledgererr.NewValidationError("budget_id", "must not be empty")
	}
	if err := validateCategoryName("category", p.Category); err != nil {
		return err
	}
	switch p.PeriodType {
	case PeriodMonthly, PeriodYearly:
	default:
		return ledgererr.NewValidationError("period_type", "must be monthly or yearly")
	}
	return validateCurrency(p.Currency)
}

// BudgetUpdatedPayload is the payload of a BudgetUpdated event.
type BudgetUpdatedPayload struct {
	BudgetID    string          `json:"budget_id"`
	Category    string          `json:"category"`
	Subcategory *string         `json:"subcategory,omitempty"`
	PeriodType  PeriodType      `json:"period_type"`
	StartDate   string          `json:"start_date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

func (p *BudgetUpdatedPayload) Type() Type { return BudgetUpdated }

func (p *BudgetUpdatedPayload) Validate() error {
	if p.BudgetID == "" {
		return ledgererr.NewValidationError("budget_id", "must not be empty")
	}
	return validateCurrency(p.Currency)
}

// BudgetDeletedPayload is the payload of a BudgetDeleted event.
type BudgetDeletedPayload struct {
	BudgetID string `json:"budget_id"`
}

func (p *BudgetDeletedPayload) Type() Type { return BudgetDeleted }

func (p *BudgetDeletedPayload) Validate() error {
	if p.BudgetID == "" {
		return ledgererr.NewValidationError("budget_id", "must not be empty")
	}
	return nil
}

// PromptUpdatedPayload is the payload of a PromptUpdated event.
type PromptUpdatedPayload struct {
	PromptVersion    string            `json:"prompt_version"`
	PreviousVersion  string            `json:"previous_version"`
	LearnedPatterns  []string          `json:"learned_patterns"`
	AccuracyMetrics  map[string]float64 `json:"accuracy_metrics"`
}

func (p *PromptUpdatedPayload) Type() Type { return PromptUpdated }

func (p *PromptUpdatedPayload) Validate() error {
	if p.PromptVersion == "" {
		return ledgererr.NewValidationError("prompt_version", "must not be empty")
	}
	return nil
}

func validateCurrency(code string) error {
	if !govalidator.IsISO4217(code) {
		return ledgererr.NewValidationError("currency", fmt.Sprintf("%q is not an ISO 4217 currency code", code))
	}
	return nil
}

// validateCategoryName rejects ':' in category and subcategory names; the
// colon is reserved as the category:subcategory separator used in reports.
func validateCategoryName(field, name string) error {
	if name == "" {
		return ledgererr.NewValidationError(field, "must not be empty")
	}
	if strings.Contains(name, ":") {
		return ledgererr.NewValidationError(field, fmt.Sprintf("%q must not contain ':'", name))
	}
	return nil
}
