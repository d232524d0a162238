/*
ledger.go - Lead ledger with delivery uniqueness enforcement

PURPOSE:
  Wraps the generic ledger with lead-specific business rules.
  The critical invariant: a lead is delivered at most once.

INVARIANT:
  No two TxDelivery transactions reference the same lead.

  A grant says "Ana is owed 4 PME leads this cycle". A delivery says "lead
  X went to Ana". Counting one lead twice would make a broker look served
  when they are not.

WHAT IT CHECKS:
  1. Deliver: Is there already a delivery for this lead?
  2. DeliverBatch: Are there duplicates within the batch or with existing data?

TRANSACTION BUILDERS:
  - GrantTransactions: one grant per broker and category of a confirmed run
  - ResidualAdjustment: supervisor hands over leftover stock
  - DeliveryTransaction: one lead handed to its broker
  - DeliveryReversal: cancels the delivery of a lead marked invalid

SEE ALSO:
  - generic/ledger.go: Base ledger interface
  - fulfillment.go: Reads deliveries back to compare with balances
*/
package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/lead-engine/distribution"
	"github.com/warp/lead-engine/generic"
)

// ErrInvalidLead is returned for leads or partners that fail validation.
var ErrInvalidLead = errors.New("invalid lead")

// =============================================================================
// LEAD LEDGER - Wrapper with delivery uniqueness
// =============================================================================

type Ledger struct {
	inner generic.Ledger
	store generic.Store
}

func NewLedger(store generic.Store) *Ledger {
	return &Ledger{
		inner: generic.NewLedger(store),
		store: store,
	}
}

// Inner exposes the wrapped generic ledger for reads.
func (l *Ledger) Inner() generic.Ledger {
	return l.inner
}

// Deliver records that lead went to its broker. Returns a
// *generic.DuplicateDeliveryError if the lead was delivered before.
func (l *Ledger) Deliver(ctx context.Context, lead Lead, at time.Time) (generic.Transaction, error) {
	if !lead.HasBroker() {
		return generic.Transaction{}, fmt.Errorf("%w: lead %s has no broker", ErrInvalidLead, lead.ID)
	}
	if err := l.checkNotDelivered(ctx, lead.ID); err != nil {
		return generic.Transaction{}, err
	}

	tx := DeliveryTransaction(lead, at)
	if err := l.inner.Append(ctx, tx); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			return generic.Transaction{}, &generic.DuplicateDeliveryError{LeadID: lead.ID, EntityID: tx.EntityID}
		}
		return generic.Transaction{}, err
	}
	return tx, nil
}

// DeliverBatch records several deliveries atomically.
func (l *Ledger) DeliverBatch(ctx context.Context, leads []Lead, at time.Time) ([]generic.Transaction, error) {
	seen := make(map[string]bool, len(leads))
	txs := make([]generic.Transaction, 0, len(leads))

	for _, lead := range leads {
		if !lead.HasBroker() {
			return nil, fmt.Errorf("%w: lead %s has no broker", ErrInvalidLead, lead.ID)
		}
		if seen[lead.ID] {
			return nil, &generic.DuplicateDeliveryError{LeadID: lead.ID, EntityID: generic.EntityID(lead.BrokerID)}
		}
		seen[lead.ID] = true

		if err := l.checkNotDelivered(ctx, lead.ID); err != nil {
			return nil, err
		}
		txs = append(txs, DeliveryTransaction(lead, at))
	}

	if err := l.inner.AppendBatch(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// IsDelivered reports whether a lead has a delivery on the ledger.
func (l *Ledger) IsDelivered(ctx context.Context, leadID string) (bool, error) {
	_, ok, err := l.store.FindByReference(ctx, generic.TxDelivery, leadID)
	return ok, err
}

// Grant appends the grants of a confirmed run.
func (l *Ledger) Grant(ctx context.Context, txs []generic.Transaction) error {
	return l.inner.AppendBatch(ctx, txs)
}

func (l *Ledger) checkNotDelivered(ctx context.Context, leadID string) error {
	existing, ok, err := l.store.FindByReference(ctx, generic.TxDelivery, leadID)
	if err != nil {
		return err
	}
	if ok {
		return &generic.DuplicateDeliveryError{
			LeadID:       leadID,
			EntityID:     existing.EntityID,
			ExistingTxID: existing.ID,
		}
	}
	return nil
}

// =============================================================================
// TRANSACTION BUILDERS
// =============================================================================

// DeliveryTransaction builds the ledger entry for one delivered lead. The
// entry is effective when it is recorded; the delivery date typed by the
// supervisor is kept as metadata.
func DeliveryTransaction(lead Lead, at time.Time) generic.Transaction {
	meta := map[string]string{"source": lead.Source}
	if !lead.DeliveryDate.IsZero() {
		meta["delivery_date"] = lead.DeliveryDate.Format(DateLayout)
	}
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		EntityID:       generic.EntityID(lead.BrokerID),
		ResourceType:   lead.Category,
		EffectiveAt:    at,
		Delta:          generic.NewAmountFromInt(-1, generic.UnitLeads),
		Type:           generic.TxDelivery,
		ReferenceID:    lead.ID,
		Reason:         "lead delivered: " + lead.Client,
		IdempotencyKey: "delivery:" + lead.ID,
		Metadata:       meta,
		CreatedBy:      "system",
		CreatedAt:      at,
	}
}

// DeliveryReversal builds the entry cancelling the delivery of a lead that
// turned out to be invalid. The broker is owed the lead again.
func DeliveryReversal(delivery generic.Transaction, at time.Time) generic.Transaction {
	tx := delivery.Reverse(generic.TransactionID(uuid.NewString()), at,
		"lead marked invalid: "+delivery.ReferenceID)
	tx.CreatedBy = "system"
	return tx
}

// GrantKey is the idempotency key of one grant of a run.
func GrantKey(runID, brokerID string, category Category) string {
	return fmt.Sprintf("run:%s:%s:%s", runID, brokerID, category)
}

// GrantTransactions builds the grants of a confirmed run. Zero allocations
// produce no transaction.
func GrantTransactions(runID string, results []distribution.AllocationResult, at time.Time) []generic.Transaction {
	txs := make([]generic.Transaction, 0, 2*len(results))
	for _, r := range results {
		for _, c := range Categories {
			n := r.AllocatedA
			if c == CategoryB {
				n = r.AllocatedB
			}
			if n <= 0 {
				continue
			}
			txs = append(txs, generic.Transaction{
				ID:             generic.TransactionID(uuid.NewString()),
				EntityID:       generic.EntityID(r.BrokerID),
				ResourceType:   c,
				EffectiveAt:    at,
				Delta:          generic.NewAmountFromInt(n, generic.UnitLeads),
				Type:           generic.TxGrant,
				ReferenceID:    runID,
				Reason:         fmt.Sprintf("distribution run %s", runID),
				IdempotencyKey: GrantKey(runID, r.BrokerID, c),
				CreatedBy:      "system",
				CreatedAt:      at,
			})
		}
	}
	return txs
}

// ResidualAdjustment builds the entry for leftover stock handed to a broker
// by a supervisor.
func ResidualAdjustment(runID, brokerID string, category Category, quantity int, actor string, at time.Time) (generic.Transaction, error) {
	if quantity <= 0 {
		return generic.Transaction{}, generic.ErrInvalidAmount
	}
	id := uuid.NewString()
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		EntityID:       generic.EntityID(brokerID),
		ResourceType:   category,
		EffectiveAt:    at,
		Delta:          generic.NewAmountFromInt(quantity, generic.UnitLeads),
		Type:           generic.TxAdjustment,
		ReferenceID:    runID,
		Reason:         fmt.Sprintf("residual of run %s assigned by supervisor", runID),
		IdempotencyKey: "residual:" + id,
		CreatedBy:      actor,
		CreatedAt:      at,
	}, nil
}
