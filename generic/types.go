/*
Package generic provides the balance ledger behind lead distribution.

PURPOSE:
  This package contains domain-agnostic types for tracking what each broker
  is owed and what was handed over. Distribution grants, lead deliveries and
  supervisor corrections are all transactions on the same append-only
  ledger; balances are derived by replaying them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 4 leads)
  - Transaction: An immutable ledger entry recording a balance change
  - EntityID / TransactionID: Type-safe identifiers
  - ResourceType: What is being counted (defined by domain packages)

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal so counts and money share one type
  3. Type Safety: Strong typing for IDs
  4. Auditability: Every transaction has reason, reference, and idempotency key

USAGE:
  tx := generic.Transaction{
      EntityID:       "broker-123",
      ResourceType:   leads.CategoryA,
      Delta:          generic.NewAmountFromInt(3, generic.UnitLeads),
      Type:           generic.TxGrant,
      IdempotencyKey: "run:42:broker-123:pme",
  }

SEE ALSO:
  - ledger.go: Append-only ledger over a Store
  - balance.go: Balance calculation from transactions
  - leads/ledger.go: Delivery uniqueness on top of this ledger
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitLeads Unit = "leads"
	UnitBRL   Unit = "brl"
)

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// MustParseDecimal parses s, returning zero for empty or malformed input.
// Production figures typed by hand are often blank; blank means nothing sold.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount               { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount        { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount        { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount                { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool           { return a.Value.IsNegative() }
func (a Amount) IsZero() bool               { return a.Value.IsZero() }
func (a Amount) IsPositive() bool           { return a.Value.IsPositive() }
func (a Amount) LessThan(b Amount) bool     { return a.Value.LessThan(b.Value) }
func (a Amount) Int() int                   { return int(a.Value.IntPart()) }
func (a Amount) Equal(b Amount) bool        { return a.Unit == b.Unit && a.Value.Equal(b.Value) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type TransactionID string

// ResourceType identifies what kind of resource is being tracked.
// Domain packages define the concrete types:
//
//	// In leads/types.go
//	type Category string
//	func (c Category) ResourceID() string     { return string(c) }
//	func (c Category) ResourceDomain() string { return "leads" }
type ResourceType interface {
	ResourceID() string
	ResourceDomain() string
}

// =============================================================================
// TRANSACTION - Atomic change to a balance
// =============================================================================

type TransactionType string

const (
	TxGrant      TransactionType = "grant"      // Leads granted by a confirmed distribution run
	TxDelivery   TransactionType = "delivery"   // A lead handed to the broker
	TxAdjustment TransactionType = "adjustment" // Supervisor correction (e.g., residual assignment)
	TxReversal   TransactionType = "reversal"   // Undo a previous transaction
)

// Transaction is one ledger entry. Grants and positive adjustments carry a
// positive Delta; deliveries carry a negative one.
type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	ResourceType   ResourceType
	EffectiveAt    time.Time
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	CreatedBy string
	CreatedAt time.Time
}

// ReversesKey is the metadata key naming the type of the reversed entry.
const ReversesKey = "reverses"

// Reverse builds the compensating transaction for tx.
func (tx Transaction) Reverse(id TransactionID, at time.Time, reason string) Transaction {
	return Transaction{
		ID:             id,
		EntityID:       tx.EntityID,
		ResourceType:   tx.ResourceType,
		EffectiveAt:    at,
		Delta:          tx.Delta.Neg(),
		Type:           TxReversal,
		ReferenceID:    string(tx.ID),
		Reason:         reason,
		IdempotencyKey: "reversal:" + string(tx.ID),
		Metadata:       map[string]string{ReversesKey: string(tx.Type)},
		CreatedAt:      at,
	}
}
