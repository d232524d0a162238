// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/lead-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[key][]generic.Transaction
	idempotency  map[string]bool
}

type key struct {
	EntityID generic.EntityID
	Resource string
}

func keyFor(entityID generic.EntityID, resource generic.ResourceType) key {
	return key{EntityID: entityID, Resource: resource.ResourceID()}
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[key][]generic.Transaction),
		idempotency:  make(map[string]bool),
	}
}

func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(tx)
	return nil
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[tx.IdempotencyKey] || seen[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[tx.IdempotencyKey] = true
	}

	for _, tx := range txs {
		m.appendLocked(tx)
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) {
	k := keyFor(tx.EntityID, tx.ResourceType)
	txs := m.transactions[k]

	// Keep EffectiveAt order; equal times keep insertion order.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})

	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[k] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, entityID generic.EntityID, resource generic.ResourceType) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.transactions[keyFor(entityID, resource)]
	result := make([]generic.Transaction, len(src))
	copy(result, src)
	return result, nil
}

func (m *Memory) LoadWindow(_ context.Context, entityID generic.EntityID, resource generic.ResourceType, w generic.Window) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Transaction
	for _, tx := range m.transactions[keyFor(entityID, resource)] {
		if w.Contains(tx.EffectiveAt) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) FindByReference(_ context.Context, txType generic.TransactionType, refID string) (generic.Transaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(txType, refID)
}

func (m *Memory) findLocked(txType generic.TransactionType, refID string) (generic.Transaction, bool, error) {
	var (
		found generic.Transaction
		ok    bool
	)
	for _, txs := range m.transactions {
		for _, tx := range txs {
			if tx.Type != txType || tx.ReferenceID != refID {
				continue
			}
			if !ok || tx.CreatedAt.Before(found.CreatedAt) {
				found, ok = tx, true
			}
		}
	}
	return found, ok, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn holding the write lock. On error the state is
// restored from a snapshot taken before fn ran.
func (tm *TxMemory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.transactions = snapshot.transactions
		tm.idempotency = snapshot.idempotency
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions map[key][]generic.Transaction
	idempotency  map[string]bool
}

func (tm *TxMemory) snapshot() memorySnapshot {
	txsCopy := make(map[key][]generic.Transaction, len(tm.transactions))
	for k, v := range tm.transactions {
		txsCopy[k] = append([]generic.Transaction{}, v...)
	}
	idempCopy := make(map[string]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idempCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, idempotency: idempCopy}
}

// txMemoryView runs under the parent's write lock and must not take it again.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, tx generic.Transaction) error {
	if tx.IdempotencyKey != "" && tv.parent.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	tv.parent.appendLocked(tx)
	return nil
}

func (tv *txMemoryView) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := tv.Append(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Load(_ context.Context, entityID generic.EntityID, resource generic.ResourceType) ([]generic.Transaction, error) {
	src := tv.parent.transactions[keyFor(entityID, resource)]
	return append([]generic.Transaction{}, src...), nil
}

func (tv *txMemoryView) LoadWindow(_ context.Context, entityID generic.EntityID, resource generic.ResourceType, w generic.Window) ([]generic.Transaction, error) {
	var result []generic.Transaction
	for _, tx := range tv.parent.transactions[keyFor(entityID, resource)] {
		if w.Contains(tx.EffectiveAt) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}

func (tv *txMemoryView) FindByReference(_ context.Context, txType generic.TransactionType, refID string) (generic.Transaction, bool, error) {
	return tv.parent.findLocked(txType, refID)
}
