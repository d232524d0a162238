package distribution

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs the allocation pipeline under a fixed policy.
type Engine struct {
	Policy Policy
}

// NewEngine creates an engine for the given policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{Policy: policy}
}

// Allocate validates the input and runs scoring, eligibility, tiered bonus
// and proportional allocation, in that order.
//
// An empty eligible set is not an error: the outcome has no results and the
// residual equals the input pool.
func (e *Engine) Allocate(brokers []BrokerRecord, pool InventoryPool) (*Outcome, error) {
	if err := e.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateInput(brokers, pool); err != nil {
		return nil, err
	}

	eligible, ineligible := e.Policy.ScoreAndFilter(brokers)
	bonus := e.Policy.AllocateTieredBonus(eligible, pool.StockA)
	prop := AllocateProportional(eligible, pool.StockB)

	results := make([]AllocationResult, 0, len(eligible))
	for _, sb := range eligible {
		id := sb.Broker.ID
		rationale := make([]string, 0, len(bonus.Rationale[id])+len(prop.Rationale[id]))
		rationale = append(rationale, bonus.Rationale[id]...)
		rationale = append(rationale, prop.Rationale[id]...)

		results = append(results, AllocationResult{
			BrokerID:   id,
			BrokerName: sb.Broker.Name,
			AllocatedA: bonus.PerBroker[id],
			AllocatedB: prop.PerBroker[id],
			Rationale:  rationale,
		})
	}

	return &Outcome{
		Policy:     e.Policy,
		Input:      pool,
		Eligible:   eligible,
		Ineligible: ineligible,
		Results:    results,
		Residual: InventoryPool{
			StockA: bonus.Remaining,
			StockB: prop.Remaining,
		},
	}, nil
}

// ValidateInput rejects negative stock, negative production, records without
// id or name, and duplicate ids.
func ValidateInput(brokers []BrokerRecord, pool InventoryPool) error {
	if pool.StockA < 0 {
		return invalid("stock_a", "must not be negative (got %d)", pool.StockA)
	}
	if pool.StockB < 0 {
		return invalid("stock_b", "must not be negative (got %d)", pool.StockB)
	}

	seen := make(map[string]bool, len(brokers))
	for i, b := range brokers {
		if strings.TrimSpace(b.ID) == "" {
			return invalid(fmt.Sprintf("brokers[%d].id", i), "is required")
		}
		if strings.TrimSpace(b.Name) == "" {
			return invalid(fmt.Sprintf("brokers[%d].name", i), "is required")
		}
		if seen[b.ID] {
			return invalid(fmt.Sprintf("brokers[%d].id", i), "duplicates %q", b.ID)
		}
		seen[b.ID] = true

		if b.ProductionA.IsNegative() {
			return invalid(fmt.Sprintf("brokers[%d].production_a", i), "must not be negative (got %s)", b.ProductionA)
		}
		if b.ProductionB.IsNegative() {
			return invalid(fmt.Sprintf("brokers[%d].production_b", i), "must not be negative (got %s)", b.ProductionB)
		}
	}
	return nil
}

// Fingerprint identifies the exact input of a run. Two calls with the same
// brokers, pool and policy share a fingerprint, so a confirm can check it saw
// the snapshot the preview was computed from.
func Fingerprint(brokers []BrokerRecord, pool InventoryPool, policy Policy) string {
	h := sha256.New()
	fmt.Fprintf(h, "policy|%s|%s|%s|%s|%s|%d\n",
		policy.Threshold, policy.BonusStep, policy.WeightA, policy.WeightB, policy.TieBreak, policy.Seed)
	fmt.Fprintf(h, "pool|%d|%d\n", pool.StockA, pool.StockB)
	for _, b := range brokers {
		fmt.Fprintf(h, "broker|%s|%s|%s|%s\n", b.ID, b.Name, b.ProductionA, b.ProductionB)
	}
	return hex.EncodeToString(h.Sum(nil))
}
