package migration_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/privateledger/ledger/pkg/ledger/eventlog"
	"github.com/privateledger/ledger/pkg/ledger/projection"
)

func decimalMust(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// rebuildProjection applies every event currently in log to store and
// returns the Builder, so ingest tests can observe projection state
// between successive ImportBankCSV calls.
func rebuildProjection(t *testing.T, log eventlog.Log, store projection.Store) *projection.Builder {
	t.Helper()
	builder := projection.NewBuilder(log, store, nil)
	_, err := builder.RebuildFromScratch(context.Background())
	require.NoError(t, err)
	return builder
}
