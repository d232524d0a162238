/*
store.go - Persistence interface for ledger transactions

PURPOSE:
  Defines the interface between the ledger and the database.
  Implementations keep append-only semantics: there is no Update and no
  Delete.

KEY INTERFACES:
  Store:   Core transaction persistence (append, load, exists, lookup)
  TxStore: Store plus WithTx for atomic multi-step writes

IDEMPOTENCY:
  Every write may carry an idempotency key. If the key already exists the
  write is rejected. Confirming the same distribution run twice therefore
  cannot grant leads twice.

ATOMIC BATCHES:
  AppendBatch() is all-or-nothing. A run that grants A and B leads to ten
  brokers writes twenty transactions or none.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

type Store interface {
	// Append persists a transaction. Returns ErrDuplicateIdempotencyKey if
	// the key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for entity+resource, ordered by EffectiveAt.
	Load(ctx context.Context, entityID EntityID, resource ResourceType) ([]Transaction, error)

	// LoadWindow returns transactions for entity+resource inside w.
	LoadWindow(ctx context.Context, entityID EntityID, resource ResourceType, w Window) ([]Transaction, error)

	// Exists checks if an idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// FindByReference returns the first transaction of the given type that
	// references refID, if any.
	FindByReference(ctx context.Context, txType TransactionType, refID string) (Transaction, bool, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. A non-nil error from fn
	// rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Window is a half-open time range [From, To). A zero To means open ended.
type Window struct {
	From time.Time
	To   time.Time
}

// Since returns the open-ended window starting at from.
func Since(from time.Time) Window {
	return Window{From: from}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	return w.To.IsZero() || t.Before(w.To)
}

// Validate rejects windows that end before they start.
func (w Window) Validate() error {
	if !w.To.IsZero() && w.To.Before(w.From) {
		return ErrInvalidWindow
	}
	return nil
}

func (w Window) String() string {
	if w.To.IsZero() {
		return "[" + w.From.Format(time.RFC3339) + ", ...)"
	}
	return "[" + w.From.Format(time.RFC3339) + ", " + w.To.Format(time.RFC3339) + ")"
}
