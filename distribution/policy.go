package distribution

import (
	"github.com/shopspring/decimal"
)

// TieBreak decides the order of brokers with equal score.
type TieBreak string

const (
	// TieBreakStable keeps equal-score brokers in input order.
	TieBreakStable TieBreak = "stable"

	// TieBreakShuffled orders equal-score brokers by a seeded shuffle. The
	// same seed always gives the same order.
	TieBreakShuffled TieBreak = "shuffled"
)

// Policy holds the tunable numbers of the allocation formula.
type Policy struct {
	// Threshold is the minimum TotalFinancial to receive any lead.
	Threshold decimal.Decimal

	// BonusStep is the production above Threshold that earns one category-A lead.
	BonusStep decimal.Decimal

	// WeightA and WeightB weigh production in the ranking score.
	WeightA decimal.Decimal
	WeightB decimal.Decimal

	TieBreak TieBreak
	Seed     int64
}

// Default policy values observed in production.
var (
	DefaultThreshold = decimal.NewFromInt(3000)
	DefaultBonusStep = decimal.NewFromInt(2000)
	DefaultWeightA   = decimal.NewFromInt(2)
	DefaultWeightB   = decimal.NewFromInt(1)
)

// DefaultPolicy returns the canonical policy: threshold 3000, bonus step
// 2000, category A weighted double, stable tie-break.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: DefaultThreshold,
		BonusStep: DefaultBonusStep,
		WeightA:   DefaultWeightA,
		WeightB:   DefaultWeightB,
		TieBreak:  TieBreakStable,
	}
}

// WithThreshold returns a copy of the policy with another threshold.
func (p Policy) WithThreshold(threshold decimal.Decimal) Policy {
	p.Threshold = threshold
	return p
}

// Validate checks that the policy can drive the pipeline without a
// division by zero or a negative score.
func (p Policy) Validate() error {
	if p.Threshold.IsNegative() {
		return invalid("threshold", "must not be negative (got %s)", p.Threshold)
	}
	if !p.BonusStep.IsPositive() {
		return invalid("bonus_step", "must be positive (got %s)", p.BonusStep)
	}
	if p.WeightA.IsNegative() {
		return invalid("weight_a", "must not be negative (got %s)", p.WeightA)
	}
	if p.WeightB.IsNegative() {
		return invalid("weight_b", "must not be negative (got %s)", p.WeightB)
	}
	switch p.TieBreak {
	case TieBreakStable, TieBreakShuffled:
	default:
		return invalid("tie_break", "unknown mode %q", p.TieBreak)
	}
	return nil
}
