package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	pme = generic.StringResource{ID: "pme", Domain: "test"}
	pf  = generic.StringResource{ID: "pf", Domain: "test"}
)

func leads(n int) generic.Amount {
	return generic.NewAmountFromInt(n, generic.UnitLeads)
}

func at(day, hour int) time.Time {
	return time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
}

func tx(id, entity string, resource generic.ResourceType, txType generic.TransactionType, delta int, when time.Time) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		EntityID:       generic.EntityID(entity),
		ResourceType:   resource,
		EffectiveAt:    when,
		Delta:          leads(delta),
		Type:           txType,
		IdempotencyKey: id,
		CreatedAt:      when,
	}
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestLedger_AppendRejectsDuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: A grant already recorded
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	require.NoError(t, ledger.Append(ctx, tx("run:1:ana:pme", "ana", pme, generic.TxGrant, 4, at(1, 9))))

	// WHEN: The same grant is appended again (retry)
	err := ledger.Append(ctx, tx("run:1:ana:pme", "ana", pme, generic.TxGrant, 4, at(1, 9)))

	// THEN: Rejected, only the first grant is on the ledger
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	txs, err := ledger.Transactions(ctx, "ana", pme)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 4, txs[0].Delta.Int())
}

func TestLedger_AppendBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	require.NoError(t, ledger.Append(ctx, tx("k2", "bia", pme, generic.TxGrant, 2, at(1, 9))))

	// WHEN: A batch contains one key that already exists
	err := ledger.AppendBatch(ctx, []generic.Transaction{
		tx("k1", "ana", pme, generic.TxGrant, 3, at(1, 9)),
		tx("k2", "bia", pme, generic.TxGrant, 2, at(1, 9)),
	})

	// THEN: Nothing from the batch was written
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	txs, err := ledger.Transactions(ctx, "ana", pme)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_AppendBatchRejectsRepeatedKeyWithinBatch(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	err := ledger.AppendBatch(ctx, []generic.Transaction{
		tx("same", "ana", pme, generic.TxGrant, 1, at(1, 9)),
		tx("same", "ana", pme, generic.TxGrant, 1, at(1, 9)),
	})

	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
}

func TestLedger_TransactionsAreChronological(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	require.NoError(t, ledger.Append(ctx, tx("late", "ana", pme, generic.TxDelivery, -1, at(9, 9))))
	require.NoError(t, ledger.Append(ctx, tx("early", "ana", pme, generic.TxGrant, 3, at(2, 9))))

	txs, err := ledger.Transactions(ctx, "ana", pme)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, generic.TransactionID("early"), txs[0].ID)
	assert.Equal(t, generic.TransactionID("late"), txs[1].ID)
}

func TestLedger_TransactionsInWindow(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	require.NoError(t, ledger.AppendBatch(ctx, []generic.Transaction{
		tx("before", "ana", pme, generic.TxDelivery, -1, at(1, 9)),
		tx("inside", "ana", pme, generic.TxDelivery, -1, at(5, 9)),
		tx("edge", "ana", pme, generic.TxDelivery, -1, at(10, 0)),
	}))

	txs, err := ledger.TransactionsInWindow(ctx, "ana", pme, generic.Window{From: at(2, 0), To: at(10, 0)})
	require.NoError(t, err)
	require.Len(t, txs, 1, "window end is exclusive")
	assert.Equal(t, generic.TransactionID("inside"), txs[0].ID)

	_, err = ledger.TransactionsInWindow(ctx, "ana", pme, generic.Window{From: at(10, 0), To: at(2, 0)})
	assert.ErrorIs(t, err, generic.ErrInvalidWindow)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

func TestTxMemory_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(txStore generic.Store) error {
		require.NoError(t, txStore.Append(ctx, tx("k1", "ana", pme, generic.TxGrant, 3, at(1, 9))))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	exists, err := s.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTxMemory_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()

	require.NoError(t, s.WithTx(ctx, func(txStore generic.Store) error {
		return txStore.AppendBatch(ctx, []generic.Transaction{
			tx("k1", "ana", pme, generic.TxGrant, 3, at(1, 9)),
			tx("k2", "ana", pme, generic.TxDelivery, -1, at(2, 9)),
		})
	}))

	txs, err := s.Load(ctx, "ana", pme)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestStore_FindByReference(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	delivery := tx("d1", "ana", pme, generic.TxDelivery, -1, at(2, 9))
	delivery.ReferenceID = "lead-9"
	require.NoError(t, s.Append(ctx, delivery))

	found, ok, err := s.FindByReference(ctx, generic.TxDelivery, "lead-9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, generic.TransactionID("d1"), found.ID)

	_, ok, err = s.FindByReference(ctx, generic.TxGrant, "lead-9")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorHelpers(t *testing.T) {
	dup := &generic.DuplicateDeliveryError{LeadID: "lead-1", EntityID: "ana", ExistingTxID: "tx-1"}
	short := &generic.InsufficientResidualError{RunID: "run-1", Resource: pme, Available: 1, Requested: 3}
	missing := generic.NotFound("broker", "ghost")

	assert.True(t, generic.IsConflict(dup))
	assert.True(t, generic.IsConflict(short))
	assert.True(t, generic.IsConflict(generic.ErrSnapshotChanged))
	assert.True(t, generic.IsNotFound(missing))
	assert.False(t, generic.IsNotFound(dup))
	assert.Equal(t, "broker not found: ghost", missing.Error())
	assert.Contains(t, short.Error(), "available 1, requested 3")
}
