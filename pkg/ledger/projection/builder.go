package projection

import (
	"context"
	"fmt"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog"
	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
	"github.com/privateledger/ledger/pkg/ledger/logging"
)

// batchSize caps how many events are applied between metadata-pointer
// commits during a rebuild; the pointer advances per batch, not per
// event.
const batchSize = 1000

// currentProjectionVersion is stamped on every newly-inserted transaction
// record, for forward compatibility.
const currentProjectionVersion = 1

type handlerFunc func(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error

// Builder transforms the event log into the materialized projections,
// idempotently and deterministically.
type Builder struct {
	log      eventlog.Log
	store    Store
	logger   logging.Logger
	handlers map[event.Type]handlerFunc
}

// NewBuilder constructs a Builder with one handler registered per known
// event variant in event.AllTypes(). An event whose type has no handler
// (such as an unknown variant read back from the log) makes apply return
// an error, which stops the rebuild.
func NewBuilder(log eventlog.Log, store Store, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNoop()
	}
	b := &Builder{log: log, store: store, logger: logger}
	b.handlers = map[event.Type]handlerFunc{
		event.TransactionImported:            handleTransactionImported,
		event.TransactionDescriptionObserved: handleTransactionDescriptionObserved,
		event.TransactionCategorized:         handleTransactionCategorized,
		event.TransactionEnriched:            handleTransactionEnriched,
		event.DuplicateSuggested:             noopHandler,
		event.DuplicateConfirmed:             handleDuplicateConfirmed,
		event.DuplicateRejected:              noopHandler,
		event.CategorizationRuleCreated:      noopHandler,
		event.BudgetCreated:                  handleBudgetCreated,
		event.BudgetUpdated:                  handleBudgetUpdated,
		event.BudgetDeleted:                  handleBudgetDeleted,
		event.PromptUpdated:                  noopHandler,
	}
	return b
}

// Store returns the projection store this Builder applies events against,
// for callers (migration validation, CLI inspection) that need to query
// records the builder itself has no read API for.
func (b *Builder) Store() Store {
	return b.store
}

// SupportedTypes lists every event variant this Builder has a registered
// handler for. Tests walk event.AllTypes() against this to guarantee
// every variant is accounted for.
func (b *Builder) SupportedTypes() []event.Type {
	types := make([]event.Type, 0, len(b.handlers))
	for t := range b.handlers {
		types = append(types, t)
	}
	return types
}

// RebuildFromScratch clears both projections and replays the entire event
// log in sequence order, returning the count of events processed.
func (b *Builder) RebuildFromScratch(ctx context.Context) (int, error) {
	if err := b.store.Clear(ctx); err != nil {
		return 0, err
	}

	events, err := b.log.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	return b.apply(ctx, events, 0)
}

// RebuildIncremental reads the stored last-applied sequence, retrieves and
// applies subsequent events, and advances the pointer. Returns the count
// processed (0 if the projection is already current).
func (b *Builder) RebuildIncremental(ctx context.Context) (int, error) {
	last, err := b.store.LastAppliedSequence(ctx)
	if err != nil {
		return 0, err
	}

	events, err := b.log.GetSince(ctx, last)
	if err != nil {
		return 0, err
	}

	return b.apply(ctx, events, last)
}

// apply dispatches each event to its handler in order, committing the
// last_applied_sequence pointer every batchSize events and once more at
// the end to catch the remainder. base is the sequence the first event in
// events occupies minus one, so base+i+1 is that event's true sequence.
func (b *Builder) apply(ctx context.Context, events []*event.Event, base int64) (int, error) {
	processed := 0
	for _, evt := range events {
		handler, ok := b.handlers[evt.Type]
		if !ok {
			return processed, fmt.Errorf("projection: no handler registered for event type %q", evt.Type)
		}
		if err := handler(ctx, b.store, evt, b.logger); err != nil {
			return processed, err
		}
		processed++

		if processed%batchSize == 0 {
			if err := b.store.SetLastAppliedSequence(ctx, base+int64(processed)); err != nil {
				return processed, err
			}
		}
	}

	if processed%batchSize != 0 {
		if err := b.store.SetLastAppliedSequence(ctx, base+int64(processed)); err != nil {
			return processed, err
		}
	}

	return processed, nil
}

func noopHandler(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	return nil
}

func handleTransactionImported(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.TransactionImportedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	existing, err := store.GetTransaction(ctx, payload.TransactionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil // idempotent: already imported
	}

	return store.UpsertTransaction(ctx, &TransactionRecord{
		TransactionID:        payload.TransactionID,
		TransactionDate:      payload.Date,
		Amount:               payload.Amount,
		Currency:             payload.Currency,
		AccountID:            payload.SourceAccount,
		SourceFile:           payload.SourceFile,
		CanonicalDescription: payload.RawDescription,
		DescriptionHistory:   []string{payload.RawDescription},
		IsDuplicate:          false,
		LastEventID:          evt.ID,
		ProjectionVersion:    currentProjectionVersion,
	})
}

func handleTransactionDescriptionObserved(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.TransactionDescriptionObservedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	original, err := store.GetTransaction(ctx, payload.OriginalTransactionID)
	if err != nil {
		return err
	}
	if original == nil {
		// Ordering robustness: the precursor record has not been applied
		// yet. Skip it with a warning.
		logger.Warn("projection: dangling reference, skipping",
			"error", ledgererr.NewDanglingReferenceError(evt.ID, string(evt.Type), payload.OriginalTransactionID))
		return nil
	}

	original.CanonicalDescription = payload.NewDescription
	if !containsString(original.DescriptionHistory, payload.NewDescription) {
		original.DescriptionHistory = append(original.DescriptionHistory, payload.NewDescription)
	}
	original.LastEventID = evt.ID
	if err := store.UpsertTransaction(ctx, original); err != nil {
		return err
	}

	variant, err := store.GetTransaction(ctx, payload.NewTransactionID)
	if err != nil {
		return err
	}
	if variant != nil && !variant.IsDuplicate {
		variant.IsDuplicate = true
		variant.PrimaryTransactionID = &payload.OriginalTransactionID
		variant.LastEventID = evt.ID
		if err := store.UpsertTransaction(ctx, variant); err != nil {
			return err
		}
	}

	return nil
}

func handleTransactionCategorized(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.TransactionCategorizedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	record, err := store.GetTransaction(ctx, payload.TransactionID)
	if err != nil {
		return err
	}
	if record == nil {
		logger.Warn("projection: dangling reference, skipping",
			"error", ledgererr.NewDanglingReferenceError(evt.ID, string(evt.Type), payload.TransactionID))
		return nil
	}

	category := payload.Category
	record.Category = &category
	record.Subcategory = payload.Subcategory
	record.LastEventID = evt.ID
	return store.UpsertTransaction(ctx, record)
}

func handleTransactionEnriched(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.TransactionEnrichedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	record, err := store.GetTransaction(ctx, payload.TransactionID)
	if err != nil {
		return err
	}
	if record == nil {
		logger.Warn("projection: dangling reference, skipping",
			"error", ledgererr.NewDanglingReferenceError(evt.ID, string(evt.Type), payload.TransactionID))
		return nil
	}

	vendor := payload.Vendor
	record.Counterparty = &vendor
	record.Enrichment = &EnrichmentDetail{
		Service:          payload.Service,
		InvoiceNumber:    payload.InvoiceNumber,
		TaxAmount:        payload.TaxAmount,
		TaxType:          payload.TaxType,
		Currency:         payload.Currency,
		ReceiptFile:      payload.ReceiptFile,
		EnrichmentSource: payload.EnrichmentSource,
		MatchConfidence:  payload.MatchConfidence,
	}
	record.LastEventID = evt.ID
	return store.UpsertTransaction(ctx, record)
}

func handleDuplicateConfirmed(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.DuplicateConfirmedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	primary, err := store.GetTransaction(ctx, payload.PrimaryTransactionID)
	if err != nil {
		return err
	}
	if primary == nil {
		logger.Warn("projection: dangling reference, skipping",
			"error", ledgererr.NewDanglingReferenceError(evt.ID, string(evt.Type), payload.PrimaryTransactionID))
		return nil
	}

	primary.CanonicalDescription = payload.CanonicalDescription
	if !containsString(primary.DescriptionHistory, payload.CanonicalDescription) {
		primary.DescriptionHistory = append(primary.DescriptionHistory, payload.CanonicalDescription)
	}
	primary.LastEventID = evt.ID
	if err := store.UpsertTransaction(ctx, primary); err != nil {
		return err
	}

	duplicate, err := store.GetTransaction(ctx, payload.DuplicateTransactionID)
	if err != nil {
		return err
	}
	if duplicate == nil {
		logger.Warn("projection: dangling reference, skipping",
			"error", ledgererr.NewDanglingReferenceError(evt.ID, string(evt.Type), payload.DuplicateTransactionID))
		return nil
	}

	duplicate.IsDuplicate = true
	duplicate.PrimaryTransactionID = &payload.PrimaryTransactionID
	duplicate.LastEventID = evt.ID
	return store.UpsertTransaction(ctx, duplicate)
}

func handleBudgetCreated(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.BudgetCreatedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	return store.UpsertBudget(ctx, &BudgetRecord{
		BudgetID:    payload.BudgetID,
		Category:    payload.Category,
		Subcategory: payload.Subcategory,
		PeriodType:  string(payload.PeriodType),
		StartDate:   payload.StartDate,
		Amount:      payload.Amount,
		Currency:    payload.Currency,
		IsActive:    true,
	})
}

func handleBudgetUpdated(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.BudgetUpdatedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	record, err := store.GetBudget(ctx, payload.BudgetID)
	if err != nil {
		return err
	}
	if record == nil {
		logger.Warn("projection: dangling reference, skipping",
			"error", ledgererr.NewDanglingReferenceError(evt.ID, string(evt.Type), payload.BudgetID))
		return nil
	}

	record.Category = payload.Category
	record.Subcategory = payload.Subcategory
	record.PeriodType = string(payload.PeriodType)
	record.StartDate = payload.StartDate
	record.Amount = payload.Amount
	record.Currency = payload.Currency
	return store.UpsertBudget(ctx, record)
}

func handleBudgetDeleted(ctx context.Context, store Store, evt *event.Event, logger logging.Logger) error {
	payload, ok := evt.Payload.(*event.BudgetDeletedPayload)
	if !ok {
		return fmt.Errorf("projection: %s payload has unexpected type %T", evt.Type, evt.Payload)
	}

	record, err := store.GetBudget(ctx, payload.BudgetID)
	if err != nil {
		return err
	}
	if record == nil {
		logger.Warn("projection: dangling reference, skipping",
			"error", ledgererr.NewDanglingReferenceError(evt.ID, string(evt.Type), payload.BudgetID))
		return nil
	}

	record.IsActive = false
	return store.UpsertBudget(ctx, record)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
