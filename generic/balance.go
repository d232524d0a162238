/*
balance.go - Balance calculation

PURPOSE:
  Computes a broker's standing for one resource from ledger transactions
  inside a window. The window is normally "since the last confirmed
  distribution run", which makes the result the fulfillment of that run.

BALANCE COMPONENTS:
  Granted:    Leads granted by distribution runs
  Delivered:  Leads handed over (stored negative, reported positive)
  Adjusted:   Supervisor corrections

  A reversal counts against the component of the entry it reverses, so a
  reversed delivery lowers Delivered.

  Remaining = Granted + Adjusted - Delivered

  A negative Remaining means the broker received more than the run granted.

SEE ALSO:
  - leads/fulfillment.go: Builds the per-broker fulfillment report
*/
package generic

// =============================================================================
// BALANCE - Computed for a window
// =============================================================================

type Balance struct {
	EntityID EntityID
	Resource ResourceType
	Window   Window

	Granted   Amount
	Delivered Amount
	Adjusted  Amount
}

// Remaining returns what is still owed to the entity.
func (b Balance) Remaining() Amount {
	return b.Granted.Add(b.Adjusted).Sub(b.Delivered)
}

// Entitlement is what the entity is owed in total, before deliveries.
func (b Balance) Entitlement() Amount {
	return b.Granted.Add(b.Adjusted)
}

// IsOverDelivered reports whether more was delivered than owed.
func (b Balance) IsOverDelivered() bool {
	return b.Entitlement().LessThan(b.Delivered)
}

// =============================================================================
// BALANCE CALCULATOR
// =============================================================================

// CalculateBalance folds the transactions inside w into a Balance.
// Transactions for other entities or resources are ignored.
func CalculateBalance(entityID EntityID, resource ResourceType, w Window, txs []Transaction, unit Unit) Balance {
	zero := NewAmountFromInt(0, unit)
	b := Balance{
		EntityID:  entityID,
		Resource:  resource,
		Window:    w,
		Granted:   zero,
		Delivered: zero,
		Adjusted:  zero,
	}

	for _, tx := range txs {
		if tx.EntityID != entityID || !w.Contains(tx.EffectiveAt) {
			continue
		}
		if tx.ResourceType == nil || tx.ResourceType.ResourceID() != resource.ResourceID() {
			continue
		}

		switch tx.Type {
		case TxGrant:
			b.Granted = b.Granted.Add(tx.Delta)
		case TxDelivery:
			b.Delivered = b.Delivered.Add(tx.Delta.Neg())
		case TxAdjustment:
			b.Adjusted = b.Adjusted.Add(tx.Delta)
		case TxReversal:
			switch TransactionType(tx.Metadata[ReversesKey]) {
			case TxGrant:
				b.Granted = b.Granted.Add(tx.Delta)
			case TxDelivery:
				b.Delivered = b.Delivered.Add(tx.Delta.Neg())
			default:
				b.Adjusted = b.Adjusted.Add(tx.Delta)
			}
		}
	}

	return b
}
