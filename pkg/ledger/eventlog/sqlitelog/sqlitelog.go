// Package sqlitelog is the SQLite-backed implementation of eventlog.Log.
// It stores every event as a single row carrying the flat JSON envelope
// produced by event.Event's MarshalJSON, an autoincrement sequence column
// doubling as the append-order/position tracker, and denormalized
// event_type/aggregate_type/aggregate_id columns for the indexed lookups
// the projections and downstream workflows need.
package sqlitelog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/privateledger/ledger/pkg/ledger/event"
	"github.com/privateledger/ledger/pkg/ledger/internal/sqlmigrate"
	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Log is the SQLite-backed eventlog.Log.
type Log struct {
	db *sql.DB
}

type config struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultConfig() config {
	return config{
		dsn:          "ledger.db",
		maxOpenConns: 1,
		maxIdleConns: 1,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures a Log.
type Option func(*config)

// WithDSN sets the data source name (a file path, or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithMemoryDatabase opens an in-memory database, useful for tests.
func WithMemoryDatabase() Option {
	return func(c *config) { c.dsn = ":memory:" }
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(c *config) { c.maxIdleConns = n }
}

// WithWALMode enables write-ahead logging. The store is single-writer,
// so this mainly buys concurrent readers during a long projection
// rebuild.
func WithWALMode(enabled bool) Option {
	return func(c *config) { c.walMode = enabled }
}

// WithAutoMigrate controls whether Open runs pending migrations.
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) { c.autoMigrate = enabled }
}

// Open opens (creating if absent) a SQLite-backed event log.
func Open(opts ...Option) (*Log, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, ledgererr.NewStorageError("open", err)
	}

	if cfg.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	log := &Log{db: db}

	if cfg.walMode && cfg.dsn != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
			db.Close()
			return nil, ledgererr.NewStorageError("set wal mode", err)
		}
	}

	if cfg.autoMigrate {
		if err := log.migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return log, nil
}

func (l *Log) migrate() error {
	m := sqlmigrate.New(l.db, "schema_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return ledgererr.NewStorageError("load migrations", err)
	}
	if err := m.Up(); err != nil {
		return ledgererr.NewStorageError("run migrations", err)
	}
	return nil
}

// Append persists evt, assigning it the next sequence number inside a
// transaction: either the row lands with its index entries or nothing
// changes.
func (l *Log) Append(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return ledgererr.NewSerializationError(evt.ID, err)
	}

	metadata, err := json.Marshal(evt.Metadata)
	if err != nil {
		return ledgererr.NewSerializationError(evt.ID, err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return ledgererr.NewStorageError("begin append", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (event_id, event_type, event_timestamp, aggregate_type, aggregate_id, payload, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.ID, string(evt.Type), evt.Timestamp.Unix(), evt.AggregateType, evt.AggregateID, payload, metadata)
	if err != nil {
		return ledgererr.NewStorageError("insert event", err)
	}

	if err := tx.Commit(); err != nil {
		return ledgererr.NewStorageError("commit append", err)
	}
	return nil
}

// GetAll returns every event in sequence order.
func (l *Log) GetAll(ctx context.Context) ([]*event.Event, error) {
	return l.query(ctx, `SELECT event_id, payload FROM events ORDER BY sequence ASC`)
}

// GetByType returns every event matching t, in sequence order.
func (l *Log) GetByType(ctx context.Context, t event.Type) ([]*event.Event, error) {
	return l.query(ctx, `SELECT event_id, payload FROM events WHERE event_type = ? ORDER BY sequence ASC`, string(t))
}

// GetByAggregate returns every event with the given aggregate identity, in
// sequence order.
func (l *Log) GetByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*event.Event, error) {
	return l.query(ctx, `
		SELECT event_id, payload FROM events
		WHERE aggregate_type = ? AND aggregate_id = ?
		ORDER BY sequence ASC
	`, aggregateType, aggregateID)
}

// GetSince returns every event with sequence strictly greater than
// sequence, in sequence order.
func (l *Log) GetSince(ctx context.Context, sequence int64) ([]*event.Event, error) {
	return l.query(ctx, `SELECT event_id, payload FROM events WHERE sequence > ? ORDER BY sequence ASC`, sequence)
}

// GetByID returns the event with the given ID, or nil if absent.
func (l *Log) GetByID(ctx context.Context, eventID string) (*event.Event, error) {
	row := l.db.QueryRowContext(ctx, `SELECT payload FROM events WHERE event_id = ?`, eventID)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ledgererr.NewStorageError("get by id", err)
	}

	var evt event.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, ledgererr.NewSerializationError(eventID, err)
	}
	return &evt, nil
}

// LatestSequence returns the highest assigned sequence number, or 0 if the
// log is empty.
func (l *Log) LatestSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, ledgererr.NewStorageError("latest sequence", err)
	}
	return seq, nil
}

// Close releases the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) query(ctx context.Context, q string, args ...any) ([]*event.Event, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, ledgererr.NewStorageError("query events", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var eventID string
		var payload []byte
		if err := rows.Scan(&eventID, &payload); err != nil {
			return nil, ledgererr.NewStorageError("scan event row", err)
		}
		var evt event.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, ledgererr.NewSerializationError(eventID, err)
		}
		events = append(events, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgererr.NewStorageError("iterate event rows", err)
	}
	return events, nil
}
