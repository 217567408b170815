package duplicate_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/privateledger/ledger/pkg/ledger/duplicate"
	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/eventlog/sqlitelog"
	"github.com/privateledger/ledger/pkg/ledger/projection"
	"github.com/privateledger/ledger/pkg/ledger/projection/sqliteprojection"
)

// fixedOracle always returns the same assessment, standing in for the
// LLM-backed oracle behind the Classifier interface.
type fixedOracle struct {
	assessment event.Assessment
}

func (f *fixedOracle) Train([]duplicate.TrainingExample, float64) (duplicate.TrainingMetrics, error) {
	return duplicate.TrainingMetrics{}, nil
}

func (f *fixedOracle) Predict(pair duplicate.Pair) (event.Assessment, error) {
	a := f.assessment
	a.Pair = pair.IDs()
	return a, nil
}

func openServiceFixture(t *testing.T) (*sqlitelog.Log, *sqliteprojection.Store) {
	t.Helper()
	log, err := sqlitelog.Open(sqlitelog.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	store, err := sqliteprojection.Open(sqliteprojection.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return log, store
}

func TestServiceScanUsesOracleBelowTrainingThreshold(t *testing.T) {
	ctx := context.Background()
	log, store := openServiceFixture(t)

	oracle := &fixedOracle{assessment: event.Assessment{IsDuplicate: true, Confidence: 0.9, Reasoning: "oracle says so"}}
	svc := duplicate.NewService(log, store, oracle)

	require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
		TransactionID: "t1", TransactionDate: "2025-10-15", AccountID: "ACC",
		CanonicalDescription: "SPOTIFY PREMIUM", Amount: decimalMust("-9.99"), LastEventID: "e1",
	}))
	require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
		TransactionID: "t2", TransactionDate: "2025-10-15", AccountID: "ACC",
		CanonicalDescription: "PYMT SPOTIFY INC", Amount: decimalMust("-9.99"), LastEventID: "e2",
	}))
	txns, err := store.ListTransactions(ctx)
	require.NoError(t, err)

	assessments, err := svc.Scan(ctx, txns, duplicate.DefaultCandidateOptions(), "oracle-model", "v1")
	require.NoError(t, err)
	require.Len(t, assessments, 1)
	require.True(t, assessments[0].IsDuplicate)

	suggested, err := log.GetByType(ctx, event.DuplicateSuggested)
	require.NoError(t, err)
	require.Len(t, suggested, 1)
}

func TestServiceScanSuppressesAlreadyResolvedPairs(t *testing.T) {
	ctx := context.Background()
	log, store := openServiceFixture(t)

	oracle := &fixedOracle{assessment: event.Assessment{IsDuplicate: true, Confidence: 0.9, Reasoning: "oracle says so"}}
	svc := duplicate.NewService(log, store, oracle)

	require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
		TransactionID: "t1", TransactionDate: "2025-10-15", AccountID: "ACC",
		CanonicalDescription: "SPOTIFY PREMIUM", Amount: decimalMust("-9.99"), LastEventID: "e1",
	}))
	require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
		TransactionID: "t2", TransactionDate: "2025-10-15", AccountID: "ACC",
		CanonicalDescription: "PYMT SPOTIFY INC", Amount: decimalMust("-9.99"), LastEventID: "e2",
	}))

	rejectedEvt, err := event.New(event.AggregateDuplicate, "t1:t2", &event.DuplicateRejectedPayload{
		TransactionID1: "t1", TransactionID2: "t2", LLMWasCorrect: false,
	})
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, rejectedEvt))

	txns, err := store.ListTransactions(ctx)
	require.NoError(t, err)

	assessments, err := svc.Scan(ctx, txns, duplicate.DefaultCandidateOptions(), "oracle-model", "v1")
	require.NoError(t, err)
	require.Empty(t, assessments, "a rejected pair must not be re-suggested")
}

func TestServiceScanPrefersTrainedClassifierWithEnoughLabels(t *testing.T) {
	ctx := context.Background()
	log, store := openServiceFixture(t)

	oracle := &fixedOracle{assessment: event.Assessment{IsDuplicate: true, Confidence: 0.9, Reasoning: "oracle says so"}}
	svc := duplicate.NewService(log, store, oracle)

	// 6 confirmed + 6 rejected labeled pairs. Each pair gets its own
	// amount so cross-pair combinations never pass the candidate filter.
	for i := 0; i < 6; i++ {
		confAmount := decimalMust(fmt.Sprintf("-%d.01", 10+i))
		id1, id2 := fmt.Sprintf("conf%da", i), fmt.Sprintf("conf%db", i)
		require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
			TransactionID: id1, TransactionDate: "2025-10-15", AccountID: "ACC",
			CanonicalDescription: fmt.Sprintf("SPOTIFY PREMIUM %d", i), Amount: confAmount, LastEventID: "e",
		}))
		require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
			TransactionID: id2, TransactionDate: "2025-10-15", AccountID: "ACC",
			CanonicalDescription: fmt.Sprintf("PYMT SPOTIFY PREMIUM %d", i), Amount: confAmount, LastEventID: "e",
		}))
		confirmed, err := event.New(event.AggregateDuplicate, id1+":"+id2, &event.DuplicateConfirmedPayload{
			SuggestionEventID: "sug", PrimaryTransactionID: id1, DuplicateTransactionID: id2,
			CanonicalDescription: "PYMT SPOTIFY PREMIUM", LLMWasCorrect: true,
		})
		require.NoError(t, err)
		require.NoError(t, log.Append(ctx, confirmed))

		rejAmount := decimalMust(fmt.Sprintf("-%d.02", 30+i))
		id3, id4 := fmt.Sprintf("rej%da", i), fmt.Sprintf("rej%db", i)
		require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
			TransactionID: id3, TransactionDate: "2025-10-15", AccountID: "ACC",
			CanonicalDescription: fmt.Sprintf("STARBUCKS %d", i), Amount: rejAmount, LastEventID: "e",
		}))
		require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
			TransactionID: id4, TransactionDate: "2025-10-15", AccountID: "ACC",
			CanonicalDescription: fmt.Sprintf("RESTAURANT XYZ %d", i), Amount: rejAmount, LastEventID: "e",
		}))
		rejected, err := event.New(event.AggregateDuplicate, id3+":"+id4, &event.DuplicateRejectedPayload{
			SuggestionEventID: "sug", TransactionID1: id3, TransactionID2: id4, LLMWasCorrect: false,
		})
		require.NoError(t, err)
		require.NoError(t, log.Append(ctx, rejected))
	}

	require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
		TransactionID: "new1", TransactionDate: "2025-10-15", AccountID: "ACC",
		CanonicalDescription: "NETFLIX STANDARD", Amount: decimalMust("-99.99"), LastEventID: "e",
	}))
	require.NoError(t, store.UpsertTransaction(ctx, &projection.TransactionRecord{
		TransactionID: "new2", TransactionDate: "2025-10-15", AccountID: "ACC",
		CanonicalDescription: "PYMT NETFLIX INC", Amount: decimalMust("-99.99"), LastEventID: "e",
	}))

	txns, err := store.ListTransactions(ctx)
	require.NoError(t, err)

	assessments, err := svc.Scan(ctx, txns, duplicate.DefaultCandidateOptions(), "oracle-model", "v1")
	require.NoError(t, err)
	require.Len(t, assessments, 1)
	require.NotEqual(t, "oracle says so", assessments[0].Reasoning,
		"with 12 labeled pairs the trained classifier, not the oracle, must assess")

	suggested, err := log.GetByType(ctx, event.DuplicateSuggested)
	require.NoError(t, err)
	require.Len(t, suggested, 1)
	payload := suggested[0].Payload.(*event.DuplicateSuggestedPayload)
	require.Equal(t, "heuristic-classifier", payload.Model)
}

func decimalMust(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
