/*
Package distribution computes how purchased lead inventory is split across
brokers for one sales cycle.

PURPOSE:
  Given a snapshot of broker production and the operator-supplied stock of
  category-A (PME) and category-B (PF) leads, the engine decides how many
  leads of each category every broker is entitled to. The result becomes the
  broker's lead balance ("saldo") once a supervisor confirms it.

PIPELINE (each phase threads the remaining stock to the next):
  1. Scoring:       TotalFinancial = A + B, Score = 2A + B, A-activity = A > 0
  2. Eligibility:   TotalFinancial >= Threshold (3000 by default)
  3. Tiered bonus:  one category-A lead per BonusStep (2000) above threshold,
                    then an equal split of what is left among A-active brokers
  4. Proportional:  category-B stock split by Score / TotalScore, floored

RESIDUALS:
  Floor rounding and the equal-split remainder leave stock unallocated. This
  leftover is returned as Outcome.Residual and is assigned by hand by a
  supervisor. The engine never re-queues it.

DETERMINISM:
  The engine is a pure function of (brokers, pool, policy). Running it twice
  on the same input yields identical output, which is what lets the API show
  a preview and later confirm the same numbers.

USAGE:
  engine := distribution.NewEngine(distribution.DefaultPolicy())
  outcome, err := engine.Allocate(brokers, distribution.InventoryPool{StockA: 10, StockB: 10})
  if errors.Is(err, distribution.ErrInvalidInput) {
      // reject at the boundary
  }

SEE ALSO:
  - scoring.go:      ScoreAndFilter
  - bonus.go:        AllocateTieredBonus
  - proportional.go: AllocateProportional
  - engine.go:       Allocate and result assembly
*/
package distribution

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUT
// =============================================================================

// BrokerRecord is the read-only production snapshot of one broker.
// Production amounts are currency units earned in the current cycle.
type BrokerRecord struct {
	ID          string
	Name        string
	ProductionA decimal.Decimal
	ProductionB decimal.Decimal
}

// InventoryPool holds lead stock per category. On input it is the stock to
// distribute; on output it is the residual nobody received.
type InventoryPool struct {
	StockA int
	StockB int
}

// =============================================================================
// WORKING SET
// =============================================================================

// ScoredBroker carries the values derived from a BrokerRecord. It is built
// once per run and never written back to the record.
type ScoredBroker struct {
	Broker               BrokerRecord
	TotalFinancial       decimal.Decimal
	Score                decimal.Decimal
	HasCategoryAActivity bool
}

// =============================================================================
// OUTPUT
// =============================================================================

// AllocationResult is the entitlement of one eligible broker.
type AllocationResult struct {
	BrokerID   string
	BrokerName string
	AllocatedA int
	AllocatedB int
	Rationale  []string
}

// Outcome is everything one Allocate call produces.
type Outcome struct {
	Policy     Policy
	Input      InventoryPool
	Eligible   []ScoredBroker
	Ineligible []BrokerRecord
	Results    []AllocationResult
	Residual   InventoryPool
}

// Totals returns the allocated units per category.
func (o *Outcome) Totals() InventoryPool {
	var t InventoryPool
	for _, r := range o.Results {
		t.StockA += r.AllocatedA
		t.StockB += r.AllocatedB
	}
	return t
}

// Result returns the allocation for a broker, if the broker was eligible.
func (o *Outcome) Result(brokerID string) (AllocationResult, bool) {
	for _, r := range o.Results {
		if r.BrokerID == brokerID {
			return r, true
		}
	}
	return AllocationResult{}, false
}

// HasResidual reports whether any stock is left for manual assignment.
func (o *Outcome) HasResidual() bool {
	return o.Residual.StockA > 0 || o.Residual.StockB > 0
}
