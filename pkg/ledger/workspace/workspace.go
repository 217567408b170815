// Package workspace resolves a ledger workspace's on-disk layout into a
// wired set of stores: the event log and projection databases under
// data/, user configuration under config/, and the ingest/ landing
// directory for bank exports awaiting import.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/privateledger/ledger/pkg/ledger/eventlog"
	"github.com/privateledger/ledger/pkg/ledger/eventlog/sqlitelog"
	"github.com/privateledger/ledger/pkg/ledger/logging"
	"github.com/privateledger/ledger/pkg/ledger/projection"
	"github.com/privateledger/ledger/pkg/ledger/projection/sqliteprojection"
)

// Root is an opened workspace: an event log and a projection store wired
// against the data/ subdirectory of root, plus the config/ and ingest/
// paths callers need for migration and ongoing ingest.
type Root struct {
	path string

	Log         eventlog.Log
	Projections projection.Store
	Builder     *projection.Builder
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger     logging.Logger
	autoMigrate bool
}

func defaultOptions() options {
	return options{logger: logging.NewNoop(), autoMigrate: true}
}

// WithLogger sets the logger the projection builder logs through.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAutoMigrate controls whether the event log and projection schemas
// are migrated on open. Defaults to true.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) { o.autoMigrate = enabled }
}

// Open resolves root's data/, config/, and ingest/ subdirectories,
// creating data/ and ingest/ if absent (config/, which holds the
// user-authored categories.yml, is neither created nor checked), and opens the event log and
// transaction/budget projection stores backed by SQLite files under
// data/.
func Open(root string, opts ...Option) (*Root, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: creating data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "ingest"), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: creating ingest directory: %w", err)
	}

	log, err := sqlitelog.Open(
		sqlitelog.WithDSN(filepath.Join(dataDir, "events.db")),
		sqlitelog.WithAutoMigrate(cfg.autoMigrate),
	)
	if err != nil {
		return nil, fmt.Errorf("workspace: opening event log: %w", err)
	}

	store, err := sqliteprojection.Open(
		sqliteprojection.WithDSN(filepath.Join(dataDir, "projections.db")),
		sqliteprojection.WithAutoMigrate(cfg.autoMigrate),
	)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("workspace: opening projection store: %w", err)
	}

	builder := projection.NewBuilder(log, store, cfg.logger)

	return &Root{
		path:        root,
		Log:         log,
		Projections: store,
		Builder:     builder,
	}, nil
}

// DataDir is the data/ subdirectory holding events.db, projections.db,
// and the legacy account CSVs.
func (r *Root) DataDir() string { return filepath.Join(r.path, "data") }

// AccountsDir is data/accounts/, the read-only legacy ledger CSVs left in
// place after migration.
func (r *Root) AccountsDir() string { return filepath.Join(r.DataDir(), "accounts") }

// ConfigDir is the config/ subdirectory holding categories.yml.
func (r *Root) ConfigDir() string { return filepath.Join(r.path, "config") }

// CategoriesPath is config/categories.yml.
func (r *Root) CategoriesPath() string { return filepath.Join(r.ConfigDir(), "categories.yml") }

// IngestDir is the ingest/ landing directory for bank CSVs awaiting
// import.
func (r *Root) IngestDir() string { return filepath.Join(r.path, "ingest") }

// Close releases the log and projection store.
func (r *Root) Close() error {
	logErr := r.Log.Close()
	storeErr := r.Projections.Close()
	if logErr != nil {
		return logErr
	}
	return storeErr
}
