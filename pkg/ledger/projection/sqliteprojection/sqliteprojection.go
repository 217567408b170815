// Package sqliteprojection is the SQLite-backed implementation of
// projection.Store: transaction and budget tables plus a single
// key/value metadata table tracking last_applied_sequence.
package sqliteprojection

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/privateledger/ledger/pkg/ledger/internal/sqlmigrate"
	"github.com/privateledger/ledger/pkg/ledger/ledgererr"
	"github.com/privateledger/ledger/pkg/ledger/projection"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const lastAppliedSequenceKey = "last_applied_sequence"

// Store is the SQLite-backed projection.Store.
type Store struct {
	db *sql.DB
}

type config struct {
	dsn         string
	autoMigrate bool
}

func defaultConfig() config {
	return config{dsn: "projections.db", autoMigrate: true}
}

// Option configures a Store.
type Option func(*config)

// WithDSN sets the data source name (a file path, or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithMemoryDatabase opens an in-memory database, useful for tests.
func WithMemoryDatabase() Option {
	return func(c *config) { c.dsn = ":memory:" }
}

// WithAutoMigrate controls whether Open runs pending migrations.
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) { c.autoMigrate = enabled }
}

// Open opens (creating if absent) a SQLite-backed projection store.
func Open(opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, ledgererr.NewStorageError("open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db}

	if cfg.autoMigrate {
		if err := store.migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return store, nil
}

func (s *Store) migrate() error {
	m := sqlmigrate.New(s.db, "schema_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return ledgererr.NewStorageError("load migrations", err)
	}
	if err := m.Up(); err != nil {
		return ledgererr.NewStorageError("run migrations", err)
	}
	return nil
}

// Clear truncates both projections and resets last_applied_sequence to 0.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledgererr.NewStorageError("begin clear", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM transactions`,
		`DELETE FROM budgets`,
		`DELETE FROM projection_metadata`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return ledgererr.NewStorageError("clear projection", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ledgererr.NewStorageError("commit clear", err)
	}
	return nil
}

// UpsertTransaction inserts or replaces a transaction record.
func (s *Store) UpsertTransaction(ctx context.Context, rec *projection.TransactionRecord) error {
	history, err := json.Marshal(rec.DescriptionHistory)
	if err != nil {
		return ledgererr.NewSerializationError(rec.TransactionID, err)
	}

	var enrichment []byte
	if rec.Enrichment != nil {
		enrichment, err = json.Marshal(rec.Enrichment)
		if err != nil {
			return ledgererr.NewSerializationError(rec.TransactionID, err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_id, transaction_date, amount, currency, account_id, source_file,
			canonical_description, description_history, category, subcategory,
			counterparty, notes, enrichment, is_duplicate, primary_transaction_id,
			last_event_id, projection_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			transaction_date = excluded.transaction_date,
			amount = excluded.amount,
			currency = excluded.currency,
			account_id = excluded.account_id,
			source_file = excluded.source_file,
			canonical_description = excluded.canonical_description,
			description_history = excluded.description_history,
			category = excluded.category,
			subcategory = excluded.subcategory,
			counterparty = excluded.counterparty,
			notes = excluded.notes,
			enrichment = excluded.enrichment,
			is_duplicate = excluded.is_duplicate,
			primary_transaction_id = excluded.primary_transaction_id,
			last_event_id = excluded.last_event_id,
			projection_version = excluded.projection_version
	`,
		rec.TransactionID, rec.TransactionDate, rec.Amount.String(), rec.Currency, rec.AccountID, rec.SourceFile,
		rec.CanonicalDescription, string(history), rec.Category, rec.Subcategory,
		rec.Counterparty, rec.Notes, nullableBytes(enrichment), rec.IsDuplicate, rec.PrimaryTransactionID,
		rec.LastEventID, rec.ProjectionVersion,
	)
	if err != nil {
		return ledgererr.NewStorageError("upsert transaction", err)
	}
	return nil
}

// GetTransaction returns the transaction record with the given id, or nil
// if absent.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*projection.TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, transaction_date, amount, currency, account_id, source_file,
			canonical_description, description_history, category, subcategory,
			counterparty, notes, enrichment, is_duplicate, primary_transaction_id,
			last_event_id, projection_version
		FROM transactions WHERE transaction_id = ?
	`, transactionID)

	rec, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.NewStorageError("get transaction", err)
	}
	return rec, nil
}

// ListTransactions returns every transaction record.
func (s *Store) ListTransactions(ctx context.Context) ([]*projection.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, transaction_date, amount, currency, account_id, source_file,
			canonical_description, description_history, category, subcategory,
			counterparty, notes, enrichment, is_duplicate, primary_transaction_id,
			last_event_id, projection_version
		FROM transactions
	`)
	if err != nil {
		return nil, ledgererr.NewStorageError("list transactions", err)
	}
	defer rows.Close()

	var records []*projection.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, ledgererr.NewStorageError("scan transaction row", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*projection.TransactionRecord, error) {
	var (
		rec          projection.TransactionRecord
		amountStr    string
		historyJSON  string
		enrichment   sql.NullString
		category     sql.NullString
		subcategory  sql.NullString
		counterparty sql.NullString
		notes        sql.NullString
		primaryID    sql.NullString
	)

	if err := row.Scan(
		&rec.TransactionID, &rec.TransactionDate, &amountStr, &rec.Currency, &rec.AccountID, &rec.SourceFile,
		&rec.CanonicalDescription, &historyJSON, &category, &subcategory,
		&counterparty, &notes, &enrichment, &rec.IsDuplicate, &primaryID,
		&rec.LastEventID, &rec.ProjectionVersion,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, err
	}
	rec.Amount = amount

	if err := json.Unmarshal([]byte(historyJSON), &rec.DescriptionHistory); err != nil {
		return nil, err
	}

	if category.Valid {
		rec.Category = &category.String
	}
	if subcategory.Valid {
		rec.Subcategory = &subcategory.String
	}
	if counterparty.Valid {
		rec.Counterparty = &counterparty.String
	}
	if notes.Valid {
		rec.Notes = &notes.String
	}
	if primaryID.Valid {
		rec.PrimaryTransactionID = &primaryID.String
	}
	if enrichment.Valid {
		var detail projection.EnrichmentDetail
		if err := json.Unmarshal([]byte(enrichment.String), &detail); err != nil {
			return nil, err
		}
		rec.Enrichment = &detail
	}

	return &rec, nil
}

// UpsertBudget inserts or replaces a budget record.
func (s *Store) UpsertBudget(ctx context.Context, rec *projection.BudgetRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (budget_id, category, subcategory, period_type, start_date, amount, currency, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(budget_id) DO UPDATE SET
			category = excluded.category,
			subcategory = excluded.subcategory,
			period_type = excluded.period_type,
			start_date = excluded.start_date,
			amount = excluded.amount,
			currency = excluded.currency,
			is_active = excluded.is_active
	`, rec.BudgetID, rec.Category, rec.Subcategory, rec.PeriodType, rec.StartDate, rec.Amount.String(), rec.Currency, rec.IsActive)
	if err != nil {
		return ledgererr.NewStorageError("upsert budget", err)
	}
	return nil
}

// GetBudget returns the budget record with the given id, or nil if absent.
func (s *Store) GetBudget(ctx context.Context, budgetID string) (*projection.BudgetRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT budget_id, category, subcategory, period_type, start_date, amount, currency, is_active
		FROM budgets WHERE budget_id = ?
	`, budgetID)

	rec, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.NewStorageError("get budget", err)
	}
	return rec, nil
}

// ListBudgets returns every budget record.
func (s *Store) ListBudgets(ctx context.Context) ([]*projection.BudgetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT budget_id, category, subcategory, period_type, start_date, amount, currency, is_active
		FROM budgets
	`)
	if err != nil {
		return nil, ledgererr.NewStorageError("list budgets", err)
	}
	defer rows.Close()

	var records []*projection.BudgetRecord
	for rows.Next() {
		rec, err := scanBudget(rows)
		if err != nil {
			return nil, ledgererr.NewStorageError("scan budget row", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanBudget(row rowScanner) (*projection.BudgetRecord, error) {
	var (
		rec         projection.BudgetRecord
		amountStr   string
		subcategory sql.NullString
	)

	if err := row.Scan(
		&rec.BudgetID, &rec.Category, &subcategory, &rec.PeriodType, &rec.StartDate,
		&amountStr, &rec.Currency, &rec.IsActive,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, err
	}
	rec.Amount = amount

	if subcategory.Valid {
		rec.Subcategory = &subcategory.String
	}

	return &rec, nil
}

// LastAppliedSequence returns the stored last-applied sequence number, or
// 0 if the metadata row is absent.
func (s *Store) LastAppliedSequence(ctx context.Context) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM projection_metadata WHERE key = ?`, lastAppliedSequenceKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, ledgererr.NewStorageError("get last applied sequence", err)
	}

	seq, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, ledgererr.NewStorageError("parse last applied sequence", err)
	}
	return seq, nil
}

// SetLastAppliedSequence persists the last-applied sequence number.
func (s *Store) SetLastAppliedSequence(ctx context.Context, sequence int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projection_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastAppliedSequenceKey, strconv.FormatInt(sequence, 10))
	if err != nil {
		return ledgererr.NewStorageError("set last applied sequence", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
