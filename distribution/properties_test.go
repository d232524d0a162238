package distribution_test

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lead-engine/distribution"
)

// randomTeam builds a reproducible team of brokers with production spread
// across both sides of the threshold.
func randomTeam(rng *rand.Rand) ([]distribution.BrokerRecord, distribution.InventoryPool) {
	n := rng.Intn(12)
	brokers := make([]distribution.BrokerRecord, n)
	for i := range brokers {
		var prodA int64
		if rng.Intn(3) > 0 {
			prodA = int64(rng.Intn(12000))
		}
		brokers[i] = broker(fmt.Sprintf("b%02d", i), prodA, int64(rng.Intn(9000)))
	}
	return brokers, distribution.InventoryPool{StockA: rng.Intn(40), StockB: rng.Intn(60)}
}

func TestAllocate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	engine := distribution.NewEngine(distribution.DefaultPolicy())

	for i := 0; i < 300; i++ {
		brokers, pool := randomTeam(rng)

		outcome, err := engine.Allocate(brokers, pool)
		require.NoError(t, err)

		// Conservation
		totals := outcome.Totals()
		assert.Equal(t, pool.StockA, totals.StockA+outcome.Residual.StockA, "case %d: category A conserved", i)
		assert.Equal(t, pool.StockB, totals.StockB+outcome.Residual.StockB, "case %d: category B conserved", i)

		// Non-negativity
		assert.GreaterOrEqual(t, outcome.Residual.StockA, 0)
		assert.GreaterOrEqual(t, outcome.Residual.StockB, 0)
		for _, r := range outcome.Results {
			assert.GreaterOrEqual(t, r.AllocatedA, 0)
			assert.GreaterOrEqual(t, r.AllocatedB, 0)
		}

		// Eligibility gate
		assert.Equal(t, len(brokers), len(outcome.Eligible)+len(outcome.Ineligible))
		for _, b := range outcome.Ineligible {
			_, found := outcome.Result(b.ID)
			assert.False(t, found, "case %d: ineligible broker %s has a result", i, b.ID)
			assert.True(t, b.ProductionA.Add(b.ProductionB).LessThan(distribution.DefaultThreshold))
		}

		// Results follow the ranking
		for j := 1; j < len(outcome.Eligible); j++ {
			assert.False(t, outcome.Eligible[j].Score.GreaterThan(outcome.Eligible[j-1].Score))
		}
	}
}

func TestAllocate_IsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	engine := distribution.NewEngine(distribution.DefaultPolicy())

	for i := 0; i < 50; i++ {
		brokers, pool := randomTeam(rng)

		first, err := engine.Allocate(brokers, pool)
		require.NoError(t, err)
		second, err := engine.Allocate(brokers, pool)
		require.NoError(t, err)

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		assert.JSONEq(t, string(a), string(b), "case %d", i)
	}
}

func TestScoreAndFilter_RaisingThresholdNeverAddsBrokers(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for i := 0; i < 50; i++ {
		brokers, _ := randomTeam(rng)

		previous := len(brokers) + 1
		for threshold := int64(0); threshold <= 20000; threshold += 1000 {
			eligible, _ := distribution.ScoreAndFilter(brokers, decimal.NewFromInt(threshold))
			assert.LessOrEqual(t, len(eligible), previous, "threshold %d", threshold)
			previous = len(eligible)
		}
	}
}
