/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the immutable record of what every broker was granted and
  what was handed over. Each confirmed distribution grants leads, each lead
  registered with a broker is a delivery, and each supervisor correction is
  an adjustment.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  A mistaken delivery is not edited. A reversal with the opposite sign is
  appended and both stay in the ledger.

EXAMPLE FLOW:
  1. Run #7 grants Ana 4 PME leads:      TxGrant +4
  2. Two leads delivered:                TxDelivery -1, TxDelivery -1
  3. Supervisor hands her a leftover:    TxAdjustment +1
  Remaining for the cycle: 4 - 2 + 1 = 3

SEE ALSO:
  - store.go: Low-level persistence interface
  - leads/ledger.go: Delivery uniqueness on top of this ledger
*/
package generic

import (
	"context"
)

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

type Ledger interface {
	// Append adds a transaction. Fails if the idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for entity+resource, chronologically.
	Transactions(ctx context.Context, entityID EntityID, resource ResourceType) ([]Transaction, error)

	// TransactionsInWindow returns transactions inside w.
	TransactionsInWindow(ctx context.Context, entityID EntityID, resource ResourceType, w Window) ([]Transaction, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if seen[tx.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true

		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, entityID EntityID, resource ResourceType) ([]Transaction, error) {
	return l.Store.Load(ctx, entityID, resource)
}

func (l *DefaultLedger) TransactionsInWindow(ctx context.Context, entityID EntityID, resource ResourceType, w Window) ([]Transaction, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return l.Store.LoadWindow(ctx, entityID, resource, w)
}
