package distribution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIERED BONUS ALLOCATION (CATEGORY A)
// =============================================================================

// TieredBonus is the category-A outcome of the bonus phases.
type TieredBonus struct {
	PerBroker map[string]int
	Rationale map[string][]string
	Remaining int
}

// AllocateTieredBonus grants category-A leads in two passes.
//
// Pass 1 walks eligible brokers in order and grants floor(excess/BonusStep)
// leads to everyone whose excess over the threshold reaches one step. When
// stock runs out mid-pass the broker gets what is left and later brokers get
// nothing.
//
// Pass 2 splits the remaining stock equally among brokers with category-A
// production. The remainder of that division stays in Remaining.
func (p Policy) AllocateTieredBonus(eligible []ScoredBroker, stockA int) TieredBonus {
	out := TieredBonus{
		PerBroker: make(map[string]int, len(eligible)),
		Rationale: make(map[string][]string, len(eligible)),
		Remaining: stockA,
	}

	out.Remaining = p.progressiveBonus(eligible, out)
	out.Remaining = activeRedistribution(eligible, out)
	return out
}

func (p Policy) progressiveBonus(eligible []ScoredBroker, out TieredBonus) int {
	remaining := out.Remaining

	for _, sb := range eligible {
		excess := sb.TotalFinancial.Sub(p.Threshold)
		if excess.LessThan(p.BonusStep) {
			continue
		}
		// Integer quotient, truncated. Both operands are positive here.
		earned, _ := excess.QuoRem(p.BonusStep, 0)
		id := sb.Broker.ID

		grant := 0
		if remaining > 0 {
			grant = remaining
			if earned.LessThan(decimal.NewFromInt(int64(remaining))) {
				grant = int(earned.IntPart())
			}
		}
		switch {
		case grant == 0:
			out.Rationale[id] = append(out.Rationale[id],
				fmt.Sprintf("earned %s category-A lead(s) by production bonus, none left in stock", earned))
		case earned.GreaterThan(decimal.NewFromInt(int64(grant))):
			out.Rationale[id] = append(out.Rationale[id],
				fmt.Sprintf("+%d of %s category-A lead(s) earned by production bonus (stock exhausted)", grant, earned))
		default:
			out.Rationale[id] = append(out.Rationale[id],
				fmt.Sprintf("+%d category-A lead(s) by production bonus", grant))
		}

		out.PerBroker[id] += grant
		remaining -= grant
	}

	return remaining
}

func activeRedistribution(eligible []ScoredBroker, out TieredBonus) int {
	remaining := out.Remaining

	active := make([]ScoredBroker, 0, len(eligible))
	for _, sb := range eligible {
		if sb.HasCategoryAActivity {
			active = append(active, sb)
		}
	}
	if remaining <= 0 || len(active) == 0 {
		return remaining
	}

	perHead := remaining / len(active)
	if perHead == 0 {
		return remaining
	}

	for _, sb := range active {
		id := sb.Broker.ID
		out.PerBroker[id] += perHead
		out.Rationale[id] = append(out.Rationale[id],
			fmt.Sprintf("+%d category-A lead(s) by active category-A production", perHead))
	}

	return remaining - perHead*len(active)
}
