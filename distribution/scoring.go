package distribution

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCORING & ELIGIBILITY
// =============================================================================

// Score derives the ranking values for one broker.
func (p Policy) Score(b BrokerRecord) ScoredBroker {
	return ScoredBroker{
		Broker:               b,
		TotalFinancial:       b.ProductionA.Add(b.ProductionB),
		Score:                b.ProductionA.Mul(p.WeightA).Add(b.ProductionB.Mul(p.WeightB)),
		HasCategoryAActivity: b.ProductionA.IsPositive(),
	}
}

// ScoreAndFilter splits brokers into eligible and ineligible sets.
//
// Eligible brokers are sorted by descending score. Equal scores keep their
// input order unless the policy asks for a seeded shuffle. Ineligible
// brokers are returned in input order.
func (p Policy) ScoreAndFilter(brokers []BrokerRecord) ([]ScoredBroker, []BrokerRecord) {
	eligible := make([]ScoredBroker, 0, len(brokers))
	ineligible := make([]BrokerRecord, 0)

	for _, b := range brokers {
		sb := p.Score(b)
		if sb.TotalFinancial.GreaterThanOrEqual(p.Threshold) {
			eligible = append(eligible, sb)
		} else {
			ineligible = append(ineligible, b)
		}
	}

	if p.TieBreak == TieBreakShuffled {
		rng := rand.New(rand.NewSource(p.Seed)) //nolint:gosec // seeded on purpose, order must be reproducible
		rng.Shuffle(len(eligible), func(i, j int) {
			eligible[i], eligible[j] = eligible[j], eligible[i]
		})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Score.GreaterThan(eligible[j].Score)
	})

	return eligible, ineligible
}

// ScoreAndFilter applies the default weights with the given threshold.
func ScoreAndFilter(brokers []BrokerRecord, threshold decimal.Decimal) ([]ScoredBroker, []BrokerRecord) {
	return DefaultPolicy().WithThreshold(threshold).ScoreAndFilter(brokers)
}
