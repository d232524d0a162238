package distribution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROPORTIONAL ALLOCATION (CATEGORY B)
// =============================================================================

// Proportional is the category-B outcome.
type Proportional struct {
	PerBroker map[string]int
	Rationale map[string][]string
	Remaining int
}

// AllocateProportional splits category-B stock by score share.
//
// Each broker gets floor(stockB * score / totalScore). The product is taken
// before the division so exact shares never lose a unit to rounding. There is
// no largest-remainder correction: the floor loss stays in Remaining.
//
// When every eligible score is zero the stock is split equally instead.
func AllocateProportional(eligible []ScoredBroker, stockB int) Proportional {
	out := Proportional{
		PerBroker: make(map[string]int, len(eligible)),
		Rationale: make(map[string][]string, len(eligible)),
		Remaining: stockB,
	}
	if stockB <= 0 || len(eligible) == 0 {
		return out
	}

	totalScore := decimal.Zero
	for _, sb := range eligible {
		totalScore = totalScore.Add(sb.Score)
	}

	if !totalScore.IsPositive() {
		perHead := stockB / len(eligible)
		for _, sb := range eligible {
			out.PerBroker[sb.Broker.ID] = perHead
			out.Rationale[sb.Broker.ID] = append(out.Rationale[sb.Broker.ID],
				fmt.Sprintf("+%d category-B lead(s) by equal split (no score)", perHead))
		}
		out.Remaining -= perHead * len(eligible)
		return out
	}

	stock := decimal.NewFromInt(int64(stockB))
	for _, sb := range eligible {
		// score <= totalScore, so the quotient never exceeds stockB.
		share, _ := stock.Mul(sb.Score).QuoRem(totalScore, 0)
		units := int(share.IntPart())

		out.PerBroker[sb.Broker.ID] = units
		out.Rationale[sb.Broker.ID] = append(out.Rationale[sb.Broker.ID],
			fmt.Sprintf("+%d category-B lead(s) by score share %s%%",
				units, sb.Score.Mul(decimal.NewFromInt(100)).Div(totalScore).StringFixed(1)))
		out.Remaining -= units
	}

	return out
}
