package sqlitelog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog/sqlitelog"
)

func openTestLog(t *testing.T) *sqlitelog.Log {
	t.Helper()
	log, err := sqlitelog.Open(sqlitelog.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

func importedEvent(t *testing.T, txnID string) *event.Event {
	t.Helper()
	evt, err := event.New(event.AggregateTransaction, txnID, &event.TransactionImportedPayload{
		TransactionID:  txnID,
		Date:           "2025-10-15",
		SourceFile:     "bank.csv",
		SourceAccount:  "ACC",
		RawDescription: "COFFEE SHOP",
		Amount:         decimal.RequireFromString("-4.50"),
		Currency:       "CAD",
	})
	require.NoError(t, err)
	return evt
}

func TestAppendAndGetAllPreservesOrder(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, log.Append(ctx, importedEvent(t, id)), "append %d", i)
	}

	events, err := log.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "t1", events[0].Payload.(*event.TransactionImportedPayload).TransactionID)
	require.Equal(t, "t2", events[1].Payload.(*event.TransactionImportedPayload).TransactionID)
	require.Equal(t, "t3", events[2].Payload.(*event.TransactionImportedPayload).TransactionID)
}

func TestLatestSequenceTracksAppendCount(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	seq, err := log.LatestSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), seq)

	for _, id := range []string{"a", "b"} {
		require.NoError(t, log.Append(ctx, importedEvent(t, id)))
	}

	seq, err = log.LatestSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), seq)
}

func TestGetSinceReturnsOnlyLaterEvents(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, log.Append(ctx, importedEvent(t, id)))
	}

	events, err := log.GetSince(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "b", events[0].Payload.(*event.TransactionImportedPayload).TransactionID)
	require.Equal(t, "c", events[1].Payload.(*event.TransactionImportedPayload).TransactionID)
}

func TestGetByTypeAndAggregateFilter(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	imported := importedEvent(t, "t1")
	require.NoError(t, log.Append(ctx, imported))

	categorized, err := event.New(event.AggregateTransaction, "t1", &event.TransactionCategorizedPayload{
		TransactionID: "t1",
		Category:      "Food",
		Source:        event.SourceUser,
	})
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, categorized))

	byType, err := log.GetByType(ctx, event.TransactionCategorized)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, categorized.ID, byType[0].ID)

	byAggregate, err := log.GetByAggregate(ctx, event.AggregateTransaction, "t1")
	require.NoError(t, err)
	require.Len(t, byAggregate, 2)
}

func TestGetByIDRoundTripsStructurally(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	evt := importedEvent(t, "t1")
	require.NoError(t, log.Append(ctx, evt))

	fetched, err := log.GetByID(ctx, evt.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Equal(t, evt.ID, fetched.ID)
	require.Equal(t, evt.Type, fetched.Type)

	original := evt.Payload.(*event.TransactionImportedPayload)
	restored := fetched.Payload.(*event.TransactionImportedPayload)
	require.Equal(t, original.TransactionID, restored.TransactionID)
	require.True(t, original.Amount.Equal(restored.Amount))

	missing, err := log.GetByID(ctx, "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFreshlyMigratedLogAssignsFirstSequence(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)
	require.NoError(t, log.Append(ctx, importedEvent(t, "t1")))

	seq, err := log.LatestSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)
}
