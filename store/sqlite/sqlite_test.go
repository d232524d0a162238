package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lead-engine/distribution"
	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/leads"
	"github.com/warp/lead-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var base = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	s.SetClock(func() time.Time { return base })
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBroker(t *testing.T, s *sqlite.Store, id, name string, a, b int64) {
	t.Helper()
	require.NoError(t, s.CreateBroker(context.Background(), sqlite.Broker{
		ID:          id,
		Name:        name,
		ProductionA: decimal.NewFromInt(a),
		ProductionB: decimal.NewFromInt(b),
	}))
}

// confirm runs the engine over the stored brokers and saves the run the way
// the API does.
func confirm(t *testing.T, s *sqlite.Store, runID string, pool distribution.InventoryPool, at time.Time) *distribution.Outcome {
	t.Helper()
	ctx := context.Background()

	brokers, err := s.ListBrokers(ctx)
	require.NoError(t, err)
	records := make([]distribution.BrokerRecord, len(brokers))
	for i, b := range brokers {
		records[i] = b.Record()
	}

	policy := distribution.DefaultPolicy()
	outcome, err := distribution.NewEngine(policy).Allocate(records, pool)
	require.NoError(t, err)

	run := sqlite.DistributionRun{
		ID:          runID,
		StockA:      pool.StockA,
		StockB:      pool.StockB,
		ResidualA:   outcome.Residual.StockA,
		ResidualB:   outcome.Residual.StockB,
		PolicyJSON:  `{}`,
		Fingerprint: distribution.Fingerprint(records, pool, policy),
		ConfirmedBy: "supervisor",
		ConfirmedAt: at,
	}
	for _, r := range outcome.Results {
		run.Allocations = append(run.Allocations, sqlite.Allocation{
			BrokerID:   r.BrokerID,
			BrokerName: r.BrokerName,
			AllocatedA: r.AllocatedA,
			AllocatedB: r.AllocatedB,
			Rationale:  r.Rationale,
		})
	}
	require.NoError(t, s.SaveRun(ctx, run, leads.GrantTransactions(runID, outcome.Results, at)))
	return outcome
}

// =============================================================================
// BROKERS
// =============================================================================

func TestBrokers_CreateGetUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedBroker(t, s, "b1", "Ana", 5000, 1200)

	b, err := s.GetBroker(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", b.Name)
	assert.True(t, b.ProductionA.Equal(decimal.NewFromInt(5000)))
	assert.True(t, b.ProductionB.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, base, b.CreatedAt)

	require.NoError(t, s.UpdateBrokerContact(ctx, "b1", "Ana Paula", "+55 11 9999"))
	b, err = s.GetBroker(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Paula", b.Name)
	assert.Equal(t, "+55 11 9999", b.Phone)
	assert.True(t, b.ProductionA.Equal(decimal.NewFromInt(5000)), "contact update keeps production")

	require.NoError(t, s.DeleteBroker(ctx, "b1"))
	_, err = s.GetBroker(ctx, "b1")
	assert.True(t, generic.IsNotFound(err))

	err = s.DeleteBroker(ctx, "b1")
	assert.True(t, generic.IsNotFound(err))
}

func TestBrokers_CreateDuplicateID(t *testing.T) {
	s := newTestStore(t)
	seedBroker(t, s, "b1", "Ana", 0, 0)

	err := s.CreateBroker(context.Background(), sqlite.Broker{ID: "b1", Name: "Bruno"})

	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrDuplicateEntity)
	assert.True(t, generic.IsConflict(err))
}

func TestBrokers_ListOrderedByName(t *testing.T) {
	s := newTestStore(t)
	seedBroker(t, s, "b2", "Carla", 0, 0)
	seedBroker(t, s, "b1", "Ana", 0, 0)
	seedBroker(t, s, "b3", "Bia", 0, 0)

	brokers, err := s.ListBrokers(context.Background())
	require.NoError(t, err)

	var names []string
	for _, b := range brokers {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"Ana", "Bia", "Carla"}, names)
}

func TestAddProduction(t *testing.T) {
	// GIVEN: Ana with 1000 PME
	// WHEN: Posting 250.50 PME and 300 PF
	// THEN: Amounts accumulate per category with exact decimals

	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "b1", "Ana", 1000, 0)

	_, err := s.AddProduction(ctx, "b1", leads.CategoryA, decimal.RequireFromString("250.50"))
	require.NoError(t, err)
	b, err := s.AddProduction(ctx, "b1", leads.CategoryB, decimal.NewFromInt(300))
	require.NoError(t, err)

	assert.True(t, b.ProductionA.Equal(decimal.RequireFromString("1250.5")))
	assert.True(t, b.ProductionB.Equal(decimal.NewFromInt(300)))

	stored, err := s.GetBroker(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, stored.ProductionA.Equal(b.ProductionA))
}

func TestAddProduction_Rejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "b1", "Ana", 0, 0)

	_, err := s.AddProduction(ctx, "b1", leads.CategoryA, decimal.Zero)
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, err = s.AddProduction(ctx, "b1", leads.Category("vip"), decimal.NewFromInt(10))
	assert.ErrorIs(t, err, leads.ErrInvalidLead)

	_, err = s.AddProduction(ctx, "missing", leads.CategoryA, decimal.NewFromInt(10))
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// DISTRIBUTION RUNS
// =============================================================================

func TestSaveRun_WritesBalancesAndGrants(t *testing.T) {
	// GIVEN: Ana eligible (7000 PME), Bia eligible with PF only, Caio below threshold
	// WHEN: Confirming a run of 5 PME / 4 PF
	// THEN: Balances mirror the allocations, Caio's old balance is wiped,
	//       and the ledger holds one grant per positive allocation

	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 7000, 0)
	seedBroker(t, s, "bia", "Bia", 0, 4000)
	require.NoError(t, s.CreateBroker(ctx, sqlite.Broker{ID: "caio", Name: "Caio", BalanceA: 3, BalanceB: 2}))

	outcome := confirm(t, s, "run-1", distribution.InventoryPool{StockA: 5, StockB: 4}, base)

	for _, r := range outcome.Results {
		b, err := s.GetBroker(ctx, r.BrokerID)
		require.NoError(t, err)
		assert.Equal(t, r.AllocatedA, b.BalanceA, r.BrokerID)
		assert.Equal(t, r.AllocatedB, b.BalanceB, r.BrokerID)
	}

	caio, err := s.GetBroker(ctx, "caio")
	require.NoError(t, err)
	assert.Zero(t, caio.BalanceA)
	assert.Zero(t, caio.BalanceB)

	ana, _ := outcome.Result("ana")
	txs, err := s.Load(ctx, "ana", leads.CategoryA)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, generic.TxGrant, txs[0].Type)
	assert.Equal(t, ana.AllocatedA, txs[0].Delta.Int())
	assert.Equal(t, leads.GrantKey("run-1", "ana", leads.CategoryA), txs[0].IdempotencyKey)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, outcome.Residual.StockA, run.ResidualA)
	assert.Equal(t, outcome.Residual.StockB, run.ResidualB)
	require.Len(t, run.Allocations, len(outcome.Results))
	assert.Equal(t, outcome.Results[0].BrokerID, run.Allocations[0].BrokerID, "allocations keep ranking order")
	assert.Equal(t, outcome.Results[0].Rationale, run.Allocations[0].Rationale)
}

func TestSaveRun_SameRunTwice_RolledBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 7000, 0)

	confirm(t, s, "run-1", distribution.InventoryPool{StockA: 5}, base)

	err := s.SaveRun(ctx, sqlite.DistributionRun{ID: "run-1", PolicyJSON: "{}", ConfirmedAt: base}, nil)
	require.Error(t, err)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestConfirmRun_BuildFails_NothingSaved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 7000, 0)

	_, err := s.ConfirmRun(ctx, func([]sqlite.Broker) (sqlite.DistributionRun, []generic.Transaction, error) {
		return sqlite.DistributionRun{}, nil, generic.ErrSnapshotChanged
	})

	assert.ErrorIs(t, err, generic.ErrSnapshotChanged)
	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestConfirmRun_ProductionWaitsForCommit(t *testing.T) {
	// GIVEN: A confirm in progress and a sale recorded at the same time
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 7000, 0)

	building := make(chan struct{})
	written := make(chan error, 1)
	go func() {
		<-building
		_, err := s.AddProduction(ctx, "ana", leads.CategoryA, decimal.NewFromInt(9000))
		written <- err
	}()

	// WHEN: The run is built from the brokers read inside the transaction
	run, err := s.ConfirmRun(ctx, func(brokers []sqlite.Broker) (sqlite.DistributionRun, []generic.Transaction, error) {
		close(building)
		select {
		case err := <-written:
			t.Error("production written while the run was being built")
			written <- err
		case <-time.After(50 * time.Millisecond):
		}

		require.Len(t, brokers, 1)
		assert.True(t, brokers[0].ProductionA.Equal(decimal.NewFromInt(7000)))
		return sqlite.DistributionRun{
			ID:          "run-1",
			PolicyJSON:  "{}",
			ConfirmedAt: base,
			Allocations: []sqlite.Allocation{{BrokerID: "ana", BrokerName: "Ana", AllocatedA: 2}},
		}, nil, nil
	})

	// THEN: The sale lands after the run commits
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	require.NoError(t, <-written)

	b, err := s.GetBroker(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 2, b.BalanceA)
	assert.True(t, b.ProductionA.Equal(decimal.NewFromInt(16000)))
}

func TestLastRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 7000, 0)

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	confirm(t, s, "run-1", distribution.InventoryPool{StockA: 1}, base)
	confirm(t, s, "run-2", distribution.InventoryPool{StockA: 2}, base.Add(24*time.Hour))

	last, err = s.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-2", last.ID)
}

func TestAssignResidual(t *testing.T) {
	// GIVEN: A run with nobody eligible, so all 3 PF leads are residual
	// WHEN: The supervisor hands 2 of them to Ana, then asks for 2 more
	// THEN: First call moves stock to Ana's balance and the ledger,
	//       second is refused with InsufficientResidualError

	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 100, 100)
	confirm(t, s, "run-1", distribution.InventoryPool{StockB: 3}, base)

	adj, err := leads.ResidualAdjustment("run-1", "ana", leads.CategoryB, 2, "supervisor", base)
	require.NoError(t, err)
	run, err := s.AssignResidual(ctx, "run-1", "ana", leads.CategoryB, 2, adj)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ResidualB)

	ana, err := s.GetBroker(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 2, ana.BalanceB)

	txs, err := s.Load(ctx, "ana", leads.CategoryB)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, generic.TxAdjustment, txs[0].Type)

	adj, err = leads.ResidualAdjustment("run-1", "ana", leads.CategoryB, 2, "supervisor", base)
	require.NoError(t, err)
	_, err = s.AssignResidual(ctx, "run-1", "ana", leads.CategoryB, 2, adj)

	var insufficient *generic.InsufficientResidualError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Available)
	assert.True(t, generic.IsConflict(err))

	ana, err = s.GetBroker(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 2, ana.BalanceB, "refused assignment leaves balance untouched")
}

func TestAssignResidual_UnknownRunOrBroker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 0, 0)
	confirm(t, s, "run-1", distribution.InventoryPool{StockA: 1}, base)

	adj, _ := leads.ResidualAdjustment("run-x", "ana", leads.CategoryA, 1, "supervisor", base)
	_, err := s.AssignResidual(ctx, "run-x", "ana", leads.CategoryA, 1, adj)
	assert.True(t, generic.IsNotFound(err))

	adj, _ = leads.ResidualAdjustment("run-1", "ghost", leads.CategoryA, 1, "supervisor", base)
	_, err = s.AssignResidual(ctx, "run-1", "ghost", leads.CategoryA, 1, adj)
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// CYCLE CLOSING
// =============================================================================

func TestCloseCycle_ResetsProductionKeepsBalances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 7000, 500)
	confirm(t, s, "run-1", distribution.InventoryPool{StockA: 4, StockB: 2}, base)

	before, err := s.GetBroker(ctx, "ana")
	require.NoError(t, err)

	closings, err := s.CloseCycle(ctx, "2025-03", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, closings, 1)
	assert.True(t, closings[0].ProductionA.Equal(decimal.NewFromInt(7000)))

	after, err := s.GetBroker(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, after.ProductionA.IsZero())
	assert.True(t, after.ProductionB.IsZero())
	assert.Equal(t, before.BalanceA, after.BalanceA)
	assert.Equal(t, before.BalanceB, after.BalanceB)

	history, err := s.ListCycleClosings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2025-03", history[0].Reference)
	assert.True(t, history[0].ProductionB.Equal(decimal.NewFromInt(500)))
}

// =============================================================================
// PARTNERS & LEADS
// =============================================================================

func TestPartners(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePartner(ctx, leads.Partner{ID: "p1", Name: "Portal Z", LeadsPurchased: 40}))
	err := s.CreatePartner(ctx, leads.Partner{ID: "p2", Name: " "})
	assert.ErrorIs(t, err, leads.ErrInvalidLead)

	partners, err := s.ListPartners(ctx)
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, 40, partners[0].LeadsPurchased)

	require.NoError(t, s.DeletePartner(ctx, "p1"))
	assert.True(t, generic.IsNotFound(s.DeletePartner(ctx, "p1")))
}

func TestCreateLead_WithBroker_RecordsDelivery(t *testing.T) {
	// GIVEN: Ana exists
	// WHEN: Registering a PME lead handed to her
	// THEN: The lead is stored as distributed with Ana's name,
	//       and the ledger has exactly one delivery for it

	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 0, 0)

	created, err := s.CreateLead(ctx, leads.Lead{
		ID:       "lead-1",
		Client:   "ACME Ltda",
		Source:   "Portal Z",
		Category: leads.CategoryA,
		BrokerID: "ana",
	}, base)
	require.NoError(t, err)
	assert.Equal(t, "Ana", created.BrokerName)
	assert.Equal(t, leads.StatusDistributed, created.Status)

	stored, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, base, stored.StatusAt)

	tx, ok, err := s.FindByReference(ctx, generic.TxDelivery, "lead-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, generic.EntityID("ana"), tx.EntityID)
	assert.Equal(t, -1, tx.Delta.Int())
}

func TestCreateLead_UnknownBroker_NothingStored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateLead(ctx, leads.Lead{ID: "lead-1", Client: "X", Category: leads.CategoryB, BrokerID: "ghost"}, base)
	assert.True(t, generic.IsNotFound(err))

	_, err = s.GetLead(ctx, "lead-1")
	assert.True(t, generic.IsNotFound(err))
}

func TestCreateLead_WithoutBroker_NoDelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateLead(ctx, leads.Lead{ID: "lead-1", Client: "X", Category: leads.CategoryB}, base)
	require.NoError(t, err)

	_, ok, err := s.FindByReference(ctx, generic.TxDelivery, "lead-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelivery_UniqueIndex(t *testing.T) {
	// GIVEN: A delivery for lead-1 on the ledger
	// WHEN: Appending a second delivery for lead-1 under another key
	// THEN: The unique index rejects it as a duplicate delivery

	s := newTestStore(t)
	ctx := context.Background()

	l := leads.Lead{ID: "lead-1", Client: "X", Category: leads.CategoryA, BrokerID: "ana"}
	first := leads.DeliveryTransaction(l, base)
	require.NoError(t, s.Append(ctx, first))

	second := leads.DeliveryTransaction(leads.Lead{ID: "lead-1", Client: "X", Category: leads.CategoryA, BrokerID: "bia"}, base)
	second.IdempotencyKey = "manual:lead-1"
	err := s.Append(ctx, second)

	assert.ErrorIs(t, err, generic.ErrDuplicateDelivery)
}

func TestUpdateLeadStatus_AndOpenLeads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 0, 0)

	for _, id := range []string{"lead-1", "lead-2"} {
		_, err := s.CreateLead(ctx, leads.Lead{ID: id, Client: "C " + id, Category: leads.CategoryB, BrokerID: "ana"}, base)
		require.NoError(t, err)
	}
	_, err := s.CreateLead(ctx, leads.Lead{ID: "lead-3", Client: "Unassigned", Category: leads.CategoryB}, base)
	require.NoError(t, err)

	later := base.Add(48 * time.Hour)
	require.NoError(t, s.UpdateLeadStatus(ctx, "lead-1", leads.StatusClosed, later))
	require.NoError(t, s.UpdateLeadStatus(ctx, "lead-2", leads.StatusNegotiating, later))
	assert.True(t, generic.IsNotFound(s.UpdateLeadStatus(ctx, "ghost", leads.StatusClosed, later)))

	open, err := s.ListOpenLeads(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "lead-2", open[0].ID)
	assert.Equal(t, later, open[0].StatusAt)

	latest, err := s.ListLeads(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, latest, 2)
}

func TestUpdateLeadStatus_InvalidReversesDelivery(t *testing.T) {
	// GIVEN: A PME lead delivered to ana and one never delivered
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 0, 0)

	_, err := s.CreateLead(ctx, leads.Lead{ID: "lead-1", Client: "Padaria Sol", Category: leads.CategoryA, BrokerID: "ana"}, base)
	require.NoError(t, err)
	_, err = s.CreateLead(ctx, leads.Lead{ID: "lead-2", Client: "Unassigned", Category: leads.CategoryA}, base)
	require.NoError(t, err)

	// WHEN: Both are marked invalid, the first one twice
	later := base.Add(time.Hour)
	require.NoError(t, s.UpdateLeadStatus(ctx, "lead-1", leads.StatusInvalid, later))
	require.NoError(t, s.UpdateLeadStatus(ctx, "lead-1", leads.StatusInvalid, later.Add(time.Hour)))
	require.NoError(t, s.UpdateLeadStatus(ctx, "lead-2", leads.StatusInvalid, later))

	// THEN: A single reversal cancels the delivery
	txs, err := s.Load(ctx, "ana", leads.CategoryA)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, generic.TxDelivery, txs[0].Type)
	assert.Equal(t, generic.TxReversal, txs[1].Type)
	assert.Equal(t, string(txs[0].ID), txs[1].ReferenceID)
	assert.Equal(t, later, txs[1].EffectiveAt)

	b := generic.CalculateBalance("ana", leads.CategoryA, generic.Since(base), txs, generic.UnitLeads)
	assert.Zero(t, b.Delivered.Int())

	l, err := s.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusInvalid, l.Status)
}

// =============================================================================
// FULFILLMENT (store + leads)
// =============================================================================

func TestFulfillment_CountsDeliveriesSinceRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBroker(t, s, "ana", "Ana", 7000, 0)

	// Delivered before the run: not counted.
	_, err := s.CreateLead(ctx, leads.Lead{ID: "old", Client: "Old", Category: leads.CategoryA, BrokerID: "ana"}, base.Add(-time.Hour))
	require.NoError(t, err)

	confirm(t, s, "run-1", distribution.InventoryPool{StockA: 3}, base)

	_, err = s.CreateLead(ctx, leads.Lead{ID: "new", Client: "New", Category: leads.CategoryA, BrokerID: "ana"}, base.Add(time.Hour))
	require.NoError(t, err)

	brokers, err := s.ListBrokers(ctx)
	require.NoError(t, err)
	balances := make([]leads.BrokerBalance, len(brokers))
	for i, b := range brokers {
		balances[i] = b.Balance()
	}

	report, err := leads.Fulfillment(ctx, generic.NewLedger(s), balances, base)
	require.NoError(t, err)
	require.Len(t, report, 1)
	pme := report[0].ByCategory[leads.CategoryA]
	assert.Equal(t, 3, pme.Balance)
	assert.Equal(t, 1, pme.Delivered)
	assert.Equal(t, 2, pme.Remaining)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alerts := []leads.Alert{
		{LeadID: "lead-1", Type: leads.Alert24hDistributed, Title: "Charge broker", Message: "m1"},
		{LeadID: "lead-2", Type: leads.Alert7dProposal, Title: "Sales support", Message: "m2"},
	}
	saved, err := s.SaveAlerts(ctx, alerts, base)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	_, err = s.SaveAlerts(ctx, alerts[:1], base.Add(25*time.Hour))
	require.NoError(t, err)

	last, err := s.LastAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, base.Add(25*time.Hour), last[leads.AlertKey{LeadID: "lead-1", Type: leads.Alert24hDistributed}])
	assert.Equal(t, base, last[leads.AlertKey{LeadID: "lead-2", Type: leads.Alert7dProposal}])

	require.NoError(t, s.MarkNotificationRead(ctx, saved[1].ID))
	unread, err := s.ListNotifications(ctx, true, 50)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	all, err := s.ListNotifications(ctx, false, 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := leads.Lead{ID: "lead-1", Client: "X", Category: leads.CategoryA, BrokerID: "ana"}
	err := s.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.Append(ctx, leads.DeliveryTransaction(l, base)); err != nil {
			return err
		}
		_, ok, err := tx.FindByReference(ctx, generic.TxDelivery, "lead-1")
		require.NoError(t, err)
		assert.True(t, ok, "visible inside the transaction")
		return generic.ErrInvalidAmount
	})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)

	_, ok, err := s.FindByReference(ctx, generic.TxDelivery, "lead-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
