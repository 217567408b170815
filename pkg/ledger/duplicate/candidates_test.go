package duplicate_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/privateledger/ledger/pkg/ledger/duplicate"
	"github.com/privateledger/ledger/pkg/ledger/projection"
)

func txn(id, date, account, description, amount string) *projection.TransactionRecord {
	return &projection.TransactionRecord{
		TransactionID:        id,
		TransactionDate:      date,
		AccountID:            account,
		CanonicalDescription: description,
		Amount:               decimal.RequireFromString(amount),
	}
}

func TestCandidatesFindsSameDayAmountMatchWithDifferentDescription(t *testing.T) {
	txns := []*projection.TransactionRecord{
		txn("t1", "2025-10-15", "ACC", "SPOTIFY PREMIUM", "-9.99"),
		txn("t2", "2025-10-15", "ACC", "PYMT SPOTIFY INC", "-9.99"),
	}

	pairs := duplicate.Candidates(txns, duplicate.DefaultCandidateOptions())
	require.Len(t, pairs, 1)
	require.Equal(t, "t1", pairs[0].T1.TransactionID)
	require.Equal(t, "t2", pairs[0].T2.TransactionID)
}

func TestCandidatesSkipsIdenticalDescriptions(t *testing.T) {
	txns := []*projection.TransactionRecord{
		txn("t1", "2025-10-15", "ACC", "COFFEE", "-4.50"),
		txn("t2", "2025-10-15", "ACC", "COFFEE", "-4.50"),
	}

	pairs := duplicate.Candidates(txns, duplicate.DefaultCandidateOptions())
	require.Empty(t, pairs, "identical descriptions are repeated payments, not duplicates")
}

func TestCandidatesSkipsDifferentAccounts(t *testing.T) {
	txns := []*projection.TransactionRecord{
		txn("t1", "2025-10-15", "ACC1", "COFFEE", "-4.50"),
		txn("t2", "2025-10-15", "ACC2", "COFFEE SHOP", "-4.50"),
	}

	pairs := duplicate.Candidates(txns, duplicate.DefaultCandidateOptions())
	require.Empty(t, pairs)
}

func TestCandidatesSkipsAmountMismatchBeyondTolerance(t *testing.T) {
	txns := []*projection.TransactionRecord{
		txn("t1", "2025-10-15", "ACC", "COFFEE", "-4.50"),
		txn("t2", "2025-10-15", "ACC", "COFFEE SHOP", "-5.00"),
	}

	pairs := duplicate.Candidates(txns, duplicate.DefaultCandidateOptions())
	require.Empty(t, pairs)
}

func TestCandidatesBreaksOutsideDateWindow(t *testing.T) {
	txns := []*projection.TransactionRecord{
		txn("t1", "2025-10-15", "ACC", "COFFEE", "-4.50"),
		txn("t2", "2025-10-20", "ACC", "COFFEE SHOP", "-4.50"),
	}

	pairs := duplicate.Candidates(txns, duplicate.DefaultCandidateOptions())
	require.Empty(t, pairs, "5 days apart exceeds the default 1-day window")
}

func TestCandidatesExcludesAlreadyMarkedDuplicates(t *testing.T) {
	dup := txn("t2", "2025-10-15", "ACC", "COFFEE SHOP", "-4.50")
	dup.IsDuplicate = true

	txns := []*projection.TransactionRecord{
		txn("t1", "2025-10-15", "ACC", "COFFEE", "-4.50"),
		dup,
	}

	pairs := duplicate.Candidates(txns, duplicate.DefaultCandidateOptions())
	require.Empty(t, pairs)
}
