/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists everything the lead engine knows: brokers and their production,
  partners and leads, confirmed distribution runs with their allocations,
  cycle closings, follow-up notifications, and the append-only ledger of
  grants and deliveries.

INTERFACES IMPLEMENTED:
  generic.Store:   Transaction persistence
  generic.TxStore: Atomic multi-step writes

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections via reversal transactions only

KEY TABLES:
  transactions:        Immutable ledger of grants, deliveries, adjustments
  brokers:             Broker records with production and balances
  partners, leads:     Lead purchasing and hand-over
  distribution_runs:   Confirmed runs (input, residual, policy, fingerprint)
  run_allocations:     Per-broker results of each run
  cycle_closings:      Production history written when a cycle is closed
  notifications:       Follow-up alerts

INDEXES:
  - idx_transactions_entity_resource_date: Balance calculation (hot path)
  - idx_unique_delivery: A lead is delivered at most once
  - idx_transactions_reference: Run and lead lookups

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Multi-step writes (confirming a run,
  closing a cycle) run inside one SQL transaction under the write lock.

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout) so string comparison in SQL
  matches chronological order.

USAGE:
  store, err := sqlite.New("./data/leads.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/lead-engine/generic"
)

// timeLayout is RFC3339 with fixed microseconds so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetClock overrides the time source used for CreatedAt fields.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_entity_resource_date
		ON transactions(entity_id, resource_type, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- A lead is delivered at most once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_delivery
		ON transactions(reference_id) WHERE tx_type = 'delivery';

	-- Brokers
	CREATE TABLE IF NOT EXISTS brokers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		production_a TEXT NOT NULL DEFAULT '0',
		production_b TEXT NOT NULL DEFAULT '0',
		balance_a INTEGER NOT NULL DEFAULT 0,
		balance_b INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Partners
	CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		leads_purchased INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Leads
	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		client TEXT NOT NULL,
		source TEXT,
		category TEXT NOT NULL,
		arrival_date TEXT,
		delivery_date TEXT,
		broker_id TEXT,
		broker_name TEXT,
		status TEXT,
		status_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);

	-- Distribution runs
	CREATE TABLE IF NOT EXISTS distribution_runs (
		id TEXT PRIMARY KEY,
		stock_a INTEGER NOT NULL,
		stock_b INTEGER NOT NULL,
		residual_a INTEGER NOT NULL,
		residual_b INTEGER NOT NULL,
		policy_json TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		confirmed_by TEXT,
		confirmed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_confirmed ON distribution_runs(confirmed_at DESC);

	CREATE TABLE IF NOT EXISTS run_allocations (
		run_id TEXT NOT NULL REFERENCES distribution_runs(id),
		position INTEGER NOT NULL,
		broker_id TEXT NOT NULL,
		broker_name TEXT NOT NULL,
		allocated_a INTEGER NOT NULL,
		allocated_b INTEGER NOT NULL,
		rationale_json TEXT,
		PRIMARY KEY (run_id, broker_id)
	);

	-- Cycle closings
	CREATE TABLE IF NOT EXISTS cycle_closings (
		id TEXT PRIMARY KEY,
		broker_id TEXT NOT NULL,
		broker_name TEXT NOT NULL,
		production_a TEXT NOT NULL,
		production_b TEXT NOT NULL,
		reference TEXT,
		closed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cycle_closings_closed ON cycle_closings(closed_at DESC);

	-- Notifications
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		alert_type TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_lead_type
		ON notifications(lead_id, alert_type, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transactions", "run_allocations", "distribution_runs", "cycle_closings",
		"notifications", "leads", "partners", "brokers",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn in one SQL transaction. Callers hold the write lock.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatNullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return parseTime(s.String)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isDeliveryUniquenessError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "transactions.reference_id")
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.NotFound(kind, id)
	}
	return nil
}
