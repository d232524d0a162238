package leads

import (
	"context"
	"time"

	"github.com/warp/lead-engine/generic"
)

// =============================================================================
// FULFILLMENT - Balance vs delivered leads
// =============================================================================

// BrokerBalance is the persisted entitlement of one broker.
type BrokerBalance struct {
	BrokerID   string
	BrokerName string
	BalanceA   int
	BalanceB   int
}

// Balance returns the entitlement for one category.
func (b BrokerBalance) Balance(c Category) int {
	if c == CategoryA {
		return b.BalanceA
	}
	return b.BalanceB
}

// CategoryFulfillment compares one balance with what was delivered.
// Deliveries reversed on the ledger are not counted.
type CategoryFulfillment struct {
	Balance       int
	Delivered     int
	Remaining     int
	OverDelivered bool
}

// BrokerFulfillment is one row of the fulfillment report.
type BrokerFulfillment struct {
	BrokerID   string
	BrokerName string
	ByCategory map[Category]CategoryFulfillment
}

// Remaining sums the remaining leads across categories.
func (f BrokerFulfillment) Remaining() int {
	total := 0
	for _, c := range f.ByCategory {
		total += c.Remaining
	}
	return total
}

// Fulfillment reports, for every broker with a positive balance, how many
// leads were delivered since the given time and how many are still owed.
// A negative Remaining means the broker received more than the balance.
func Fulfillment(ctx context.Context, ledger generic.Ledger, brokers []BrokerBalance, since time.Time) ([]BrokerFulfillment, error) {
	window := generic.Since(since)
	report := make([]BrokerFulfillment, 0, len(brokers))

	for _, b := range brokers {
		if b.BalanceA <= 0 && b.BalanceB <= 0 {
			continue
		}

		row := BrokerFulfillment{
			BrokerID:   b.BrokerID,
			BrokerName: b.BrokerName,
			ByCategory: make(map[Category]CategoryFulfillment, len(Categories)),
		}
		for _, c := range Categories {
			entity := generic.EntityID(b.BrokerID)
			txs, err := ledger.TransactionsInWindow(ctx, entity, c, window)
			if err != nil {
				return nil, err
			}
			// The persisted balance already includes residual adjustments,
			// so only deliveries are taken from the ledger.
			balance := generic.CalculateBalance(entity, c, window, txs, generic.UnitLeads)
			balance.Granted = generic.NewAmountFromInt(b.Balance(c), generic.UnitLeads)
			balance.Adjusted = balance.Granted.Zero()

			row.ByCategory[c] = CategoryFulfillment{
				Balance:       balance.Entitlement().Int(),
				Delivered:     balance.Delivered.Int(),
				Remaining:     balance.Remaining().Int(),
				OverDelivered: balance.IsOverDelivered(),
			}
		}
		report = append(report, row)
	}

	return report, nil
}
