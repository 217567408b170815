package projection_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog/sqlitelog"
	"github.com/privateledger/ledger/pkg/ledger/projection"
	"github.com/privateledger/ledger/pkg/ledger/projection/sqliteprojection"
)

func TestSupportedTypesCoversEveryEventVariant(t *testing.T) {
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	require.ElementsMatch(t, event.AllTypes(), builder.SupportedTypes())
}

func TestRebuildFromScratchAppliesImportAndCategorize(t *testing.T) {
	ctx := context.Background()
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	mustAppend(t, ctx, log, &event.TransactionImportedPayload{
		TransactionID: "t1", Date: "2025-10-15", SourceFile: "bank.csv",
		SourceAccount: "ACC", RawDescription: "COFFEE SHOP",
		Amount: decimal.RequireFromString("-4.50"), Currency: "CAD",
	})
	mustAppend(t, ctx, log, &event.TransactionCategorizedPayload{
		TransactionID: "t1", Category: "Food", Source: event.SourceUser,
	})

	processed, err := builder.RebuildFromScratch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, processed)

	rec, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "Food", *rec.Category)
	require.Equal(t, []string{"COFFEE SHOP"}, rec.DescriptionHistory)
	require.False(t, rec.IsDuplicate)

	seq, err := store.LastAppliedSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), seq)
}

func TestTransactionImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	payload := &event.TransactionImportedPayload{
		TransactionID: "t1", Date: "2025-10-15", SourceFile: "bank.csv",
		SourceAccount: "ACC", RawDescription: "COFFEE SHOP",
		Amount: decimal.RequireFromString("-4.50"), Currency: "CAD",
	}
	mustAppend(t, ctx, log, payload)
	mustAppend(t, ctx, log, payload)

	_, err := builder.RebuildFromScratch(ctx)
	require.NoError(t, err)

	records, err := store.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestDescriptionObservedMarksVariantAsDuplicate(t *testing.T) {
	ctx := context.Background()
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	mustAppend(t, ctx, log, &event.TransactionImportedPayload{
		TransactionID: "orig", Date: "2025-10-15", SourceFile: "bank.csv",
		SourceAccount: "ACC", RawDescription: "TRANSIT FARE",
		Amount: decimal.RequireFromString("-4.50"), Currency: "CAD",
	})
	mustAppend(t, ctx, log, &event.TransactionImportedPayload{
		TransactionID: "variant", Date: "2025-10-15", SourceFile: "bank2.csv",
		SourceAccount: "ACC", RawDescription: "TRANSIT FARE REF1234",
		Amount: decimal.RequireFromString("-4.50"), Currency: "CAD",
	})
	mustAppend(t, ctx, log, &event.TransactionDescriptionObservedPayload{
		OriginalTransactionID: "orig", NewTransactionID: "variant",
		Date: "2025-10-15", OldDescription: "TRANSIT FARE", NewDescription: "TRANSIT FARE REF1234",
		SourceFile: "bank2.csv", SourceAccount: "ACC", Amount: decimal.RequireFromString("-4.50"),
	})

	_, err := builder.RebuildFromScratch(ctx)
	require.NoError(t, err)

	orig, err := store.GetTransaction(ctx, "orig")
	require.NoError(t, err)
	require.Equal(t, "TRANSIT FARE REF1234", orig.CanonicalDescription)
	require.Equal(t, []string{"TRANSIT FARE", "TRANSIT FARE REF1234"}, orig.DescriptionHistory)

	variant, err := store.GetTransaction(ctx, "variant")
	require.NoError(t, err)
	require.True(t, variant.IsDuplicate)
	require.Equal(t, "orig", *variant.PrimaryTransactionID)
}

func TestDescriptionObservedSkipsWhenOriginalAbsent(t *testing.T) {
	ctx := context.Background()
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	mustAppend(t, ctx, log, &event.TransactionDescriptionObservedPayload{
		OriginalTransactionID: "missing", NewTransactionID: "also-missing",
		Date: "2025-10-15", OldDescription: "A", NewDescription: "B",
		SourceFile: "bank.csv", SourceAccount: "ACC", Amount: decimal.Zero,
	})

	processed, err := builder.RebuildFromScratch(ctx)
	require.NoError(t, err, "dangling references must not fail the rebuild")
	require.Equal(t, 1, processed)
}

func TestDuplicateConfirmedHidesDuplicateAndSetsCanonical(t *testing.T) {
	ctx := context.Background()
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	mustAppend(t, ctx, log, &event.TransactionImportedPayload{
		TransactionID: "p1", Date: "2025-10-15", SourceFile: "bank.csv",
		SourceAccount: "ACC", RawDescription: "COFFEE", Amount: decimal.RequireFromString("-4.50"), Currency: "CAD",
	})
	mustAppend(t, ctx, log, &event.TransactionImportedPayload{
		TransactionID: "d1", Date: "2025-10-16", SourceFile: "bank.csv",
		SourceAccount: "ACC", RawDescription: "COFFEE SHOP", Amount: decimal.RequireFromString("-4.50"), Currency: "CAD",
	})
	mustAppend(t, ctx, log, &event.DuplicateConfirmedPayload{
		SuggestionEventID: "sug1", PrimaryTransactionID: "p1", DuplicateTransactionID: "d1",
		CanonicalDescription: "COFFEE SHOP", LLMWasCorrect: true,
	})

	_, err := builder.RebuildFromScratch(ctx)
	require.NoError(t, err)

	primary, err := store.GetTransaction(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "COFFEE SHOP", primary.CanonicalDescription)
	require.False(t, primary.IsDuplicate)

	duplicate, err := store.GetTransaction(ctx, "d1")
	require.NoError(t, err)
	require.True(t, duplicate.IsDuplicate)
	require.Equal(t, "p1", *duplicate.PrimaryTransactionID)
}

func TestBudgetLifecycle(t *testing.T) {
	ctx := context.Background()
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	mustAppend(t, ctx, log, &event.BudgetCreatedPayload{
		BudgetID: "b1", Category: "Housing", PeriodType: event.PeriodMonthly,
		StartDate: "2025-01-01", Amount: decimal.RequireFromString("1200.00"), Currency: "CAD",
	})
	mustAppend(t, ctx, log, &event.BudgetDeletedPayload{BudgetID: "b1"})

	_, err := builder.RebuildFromScratch(ctx)
	require.NoError(t, err)

	budget, err := store.GetBudget(ctx, "b1")
	require.NoError(t, err)
	require.False(t, budget.IsActive)
}

func TestRebuildIncrementalOnlyAppliesNewEvents(t *testing.T) {
	ctx := context.Background()
	log, store := openTestLogAndStore(t)
	builder := projection.NewBuilder(log, store, nil)

	mustAppend(t, ctx, log, &event.TransactionImportedPayload{
		TransactionID: "t1", Date: "2025-10-15", SourceFile: "bank.csv",
		SourceAccount: "ACC", RawDescription: "COFFEE", Amount: decimal.RequireFromString("-4.50"), Currency: "CAD",
	})

	processed, err := builder.RebuildIncremental(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	processed, err = builder.RebuildIncremental(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, processed, "re-running incremental with no new events processes nothing")

	mustAppend(t, ctx, log, &event.TransactionCategorizedPayload{
		TransactionID: "t1", Category: "Food", Source: event.SourceUser,
	})

	processed, err = builder.RebuildIncremental(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
}

func openTestLogAndStore(t *testing.T) (*sqlitelog.Log, *sqliteprojection.Store) {
	t.Helper()
	log, err := sqlitelog.Open(sqlitelog.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	store, err := sqliteprojection.Open(sqliteprojection.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return log, store
}

func mustAppend(t *testing.T, ctx context.Context, log *sqlitelog.Log, payload event.Payload) {
	t.Helper()
	aggregateType, aggregateID := aggregateFor(payload)
	evt, err := event.New(aggregateType, aggregateID, payload)
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, evt))
}

func aggregateFor(payload event.Payload) (string, string) {
	switch p := payload.(type) {
	case *event.TransactionImportedPayload:
		return event.AggregateTransaction, p.TransactionID
	case *event.TransactionDescriptionObservedPayload:
		return event.AggregateTransaction, p.OriginalTransactionID
	case *event.TransactionCategorizedPayload:
		return event.AggregateTransaction, p.TransactionID
	case *event.TransactionEnrichedPayload:
		return event.AggregateTransaction, p.TransactionID
	case *event.DuplicateConfirmedPayload:
		return event.AggregateDuplicate, p.PrimaryTransactionID + ":" + p.DuplicateTransactionID
	case *event.DuplicateRejectedPayload:
		return event.AggregateDuplicate, p.TransactionID1 + ":" + p.TransactionID2
	case *event.BudgetCreatedPayload:
		return event.AggregateBudget, p.BudgetID
	case *event.BudgetUpdatedPayload:
		return event.AggregateBudget, p.BudgetID
	case *event.BudgetDeletedPayload:
		return event.AggregateBudget, p.BudgetID
	default:
		return "", ""
	}
}
