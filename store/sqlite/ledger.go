package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/warp/lead-engine/generic"
)

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

var _ generic.TxStore = (*Store)(nil)

const transactionColumns = `id, entity_id, resource_type, effective_at, delta_value, delta_unit,
	tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at`

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, db execer, tx generic.Transaction) error {
	var metadataJSON sql.NullString
	if len(tx.Metadata) > 0 {
		data, err := json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.EntityID,
		tx.ResourceType.ResourceID(),
		formatTime(tx.EffectiveAt),
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		metadataJSON,
		nullString(tx.CreatedBy),
		formatTime(tx.CreatedAt),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			if isDeliveryUniquenessError(err) {
				return &generic.DuplicateDeliveryError{LeadID: tx.ReferenceID, EntityID: tx.EntityID}
			}
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		return appendBatch(ctx, sqlTx, txs)
	})
}

func appendBatch(ctx context.Context, db execer, txs []generic.Transaction) error {
	keys := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if keys[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		keys[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		if err := appendTx(ctx, db, tx); err != nil {
			return err
		}
	}
	return nil
}

// Load returns all transactions for an entity+resource.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID, resource generic.ResourceType) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadTx(ctx, s.db, entityID, resource, generic.Window{})
}

// LoadWindow returns transactions inside a window.
func (s *Store) LoadWindow(ctx context.Context, entityID generic.EntityID, resource generic.ResourceType, w generic.Window) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadTx(ctx, s.db, entityID, resource, w)
}

func loadTx(ctx context.Context, db execer, entityID generic.EntityID, resource generic.ResourceType, w generic.Window) ([]generic.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE entity_id = ? AND resource_type = ? AND effective_at >= ?`
	args := []any{entityID, resource.ResourceID(), formatTime(w.From)}
	if !w.To.IsZero() {
		query += ` AND effective_at < ?`
		args = append(args, formatTime(w.To))
	}
	query += ` ORDER BY effective_at ASC, created_at ASC`

	return queryTransactions(ctx, db, query, args...)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return keyExists(ctx, s.db, idempotencyKey)
}

func keyExists(ctx context.Context, db execer, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// FindByReference returns the earliest transaction of a type referencing refID.
func (s *Store) FindByReference(ctx context.Context, txType generic.TransactionType, refID string) (generic.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return findByReference(ctx, s.db, txType, refID)
}

func findByReference(ctx context.Context, db execer, txType generic.TransactionType, refID string) (generic.Transaction, bool, error) {
	txs, err := queryTransactions(ctx, db, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE tx_type = ? AND reference_id = ?
		ORDER BY created_at ASC
		LIMIT 1`, txType, refID)
	if err != nil || len(txs) == 0 {
		return generic.Transaction{}, false, err
	}
	return txs[0], true, nil
}

// ListTransactions returns the most recent transactions (for admin view).
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryTransactions(ctx, s.db, `SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
}

func queryTransactions(ctx context.Context, db execer, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		resourceTypeID string
		effectiveAt    string
		deltaValue     string
		deltaUnit      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.EntityID, &resourceTypeID, &effectiveAt, &deltaValue, &deltaUnit,
		&tx.Type, &referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ResourceType = generic.GetOrCreateResource(resourceTypeID)
	tx.EffectiveAt = parseTime(effectiveAt)
	tx.Delta = generic.Amount{Value: generic.MustParseDecimal(deltaValue), Unit: generic.Unit(deltaUnit)}
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseTime(createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("failed to decode metadata of %s: %w", tx.ID, err)
		}
	}

	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		return fn(&txStore{tx: sqlTx})
	})
}

// txStore reads and writes through an open SQL transaction. It never takes
// the Store lock, which the caller already holds.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return appendBatch(ctx, ts.tx, txs)
}

func (ts *txStore) Load(ctx context.Context, entityID generic.EntityID, resource generic.ResourceType) ([]generic.Transaction, error) {
	return loadTx(ctx, ts.tx, entityID, resource, generic.Window{})
}

func (ts *txStore) LoadWindow(ctx context.Context, entityID generic.EntityID, resource generic.ResourceType, w generic.Window) ([]generic.Transaction, error) {
	return loadTx(ctx, ts.tx, entityID, resource, w)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return keyExists(ctx, ts.tx, idempotencyKey)
}

func (ts *txStore) FindByReference(ctx context.Context, txType generic.TransactionType, refID string) (generic.Transaction, bool, error) {
	return findByReference(ctx, ts.tx, txType, refID)
}
