package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privateledger/ledger/pkg/ledger/workspace"
)

func TestOpenCreatesDataAndIngestDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))

	w, err := workspace.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	require.DirExists(t, w.DataDir())
	require.DirExists(t, w.IngestDir())
	require.FileExists(t, filepath.Join(w.DataDir(), "events.db"))
	require.FileExists(t, filepath.Join(w.DataDir(), "projections.db"))
}

func TestOpenResolvesConfigAndCategoriesPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))

	w, err := workspace.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	require.Equal(t, filepath.Join(root, "config", "categories.yml"), w.CategoriesPath())
	require.Equal(t, filepath.Join(root, "data", "accounts"), w.AccountsDir())
}

func TestOpenProvidesAWorkingBuilderAndStores(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))

	w, err := workspace.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx := context.Background()
	latest, err := w.Log.LatestSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), latest)

	txns, err := w.Projections.ListTransactions(ctx)
	require.NoError(t, err)
	require.Empty(t, txns)
}
