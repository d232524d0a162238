/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with brokers,
	partners and leads. Each scenario sets up one situation the distribution
	engine or the follow-up sweep handles in a specific way.

AVAILABLE SCENARIOS:

	sales-team:          Five brokers around the threshold, two partners
	single-top-producer: One eligible broker takes the whole pool
	threshold-boundary:  Two brokers exactly at the threshold, no PME sales
	below-threshold:     Nobody qualifies, everything stays residual
	stale-leads:         Delivered leads waiting on follow-up alerts

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create brokers with production
 3. Optionally create partners and leads

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "sales-team"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - distributions.go: Preview and confirm on top of a loaded scenario
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lead-engine/leads"
	"github.com/warp/lead-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioLoader func(h *Handler, ctx context.Context) error

var scenarios = []ScenarioDTO{
	{
		ID:          "sales-team",
		Name:        "Sales Team",
		Description: "Five brokers around the 3000 threshold with mixed PME/PF production",
	},
	{
		ID:          "single-top-producer",
		Name:        "Single Top Producer",
		Description: "One broker with 5000 in PME gets the bonus and the whole pool",
	},
	{
		ID:          "threshold-boundary",
		Name:        "Threshold Boundary",
		Description: "Two brokers at exactly 3000 in PF: PME stays residual, PF splits 50/50",
	},
	{
		ID:          "below-threshold",
		Name:        "Below Threshold",
		Description: "No broker reaches 3000, the whole pool stays residual",
	},
	{
		ID:          "stale-leads",
		Name:        "Stale Leads",
		Description: "Delivered leads stuck in one status long enough to raise follow-up alerts",
	},
}

var scenarioLoaders = map[string]scenarioLoader{
	"sales-team":          (*Handler).loadSalesTeamScenario,
	"single-top-producer": (*Handler).loadSingleTopProducerScenario,
	"threshold-boundary":  (*Handler).loadThresholdBoundaryScenario,
	"below-threshold":     (*Handler).loadBelowThresholdScenario,
	"stale-leads":         (*Handler).loadStaleLeadsScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setScenario("")

	if err := load(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.setScenario(req.ScenarioID)
	h.Log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type seedBroker struct {
	id, name, phone string
	pme, pf         int64
}

func (h *Handler) seedBrokers(ctx context.Context, brokers []seedBroker) error {
	for _, b := range brokers {
		err := h.Store.CreateBroker(ctx, sqlite.Broker{
			ID:          b.id,
			Name:        b.name,
			Phone:       b.phone,
			ProductionA: decimal.NewFromInt(b.pme),
			ProductionB: decimal.NewFromInt(b.pf),
			CreatedAt:   h.Now(),
		})
		if err != nil {
			return fmt.Errorf("broker %s: %w", b.id, err)
		}
	}
	return nil
}

func (h *Handler) loadSalesTeamScenario(ctx context.Context) error {
	err := h.seedBrokers(ctx, []seedBroker{
		{id: "brk-ana", name: "Ana Ribeiro", phone: "+55 11 91234-0001", pme: 8000, pf: 2500},
		{id: "brk-bruno", name: "Bruno Costa", phone: "+55 11 91234-0002", pme: 4500, pf: 0},
		{id: "brk-carla", name: "Carla Mendes", phone: "+55 11 91234-0003", pme: 0, pf: 6000},
		{id: "brk-diego", name: "Diego Lima", phone: "+55 11 91234-0004", pme: 1500, pf: 1500},
		{id: "brk-elisa", name: "Elisa Prado", phone: "+55 11 91234-0005", pme: 1000, pf: 900},
	})
	if err != nil {
		return err
	}

	for _, p := range []leads.Partner{
		{ID: "ptn-leadhub", Name: "LeadHub", LeadsPurchased: 120},
		{ID: "ptn-saude", Name: "Saúde Digital", LeadsPurchased: 80},
	} {
		p.CreatedAt = h.Now()
		if err := h.Store.CreatePartner(ctx, p); err != nil {
			return fmt.Errorf("partner %s: %w", p.ID, err)
		}
	}

	// Unassigned leads waiting for the next run.
	today := h.Now().Truncate(24 * time.Hour)
	for i, client := range []string{"Padaria Sol", "Oficina Norte", "Família Souza"} {
		category := leads.CategoryA
		if i == 2 {
			category = leads.CategoryB
		}
		lead := leads.Lead{
			ID:          fmt.Sprintf("lead-new-%d", i+1),
			Client:      client,
			Source:      "LeadHub",
			Category:    category,
			ArrivalDate: today,
		}
		if _, err := h.Store.CreateLead(ctx, lead, h.Now()); err != nil {
			return fmt.Errorf("lead %s: %w", lead.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadSingleTopProducerScenario(ctx context.Context) error {
	return h.seedBrokers(ctx, []seedBroker{
		{id: "brk-top", name: "Marina Alves", phone: "+55 21 99876-0001", pme: 5000, pf: 0},
		{id: "brk-low", name: "Paulo Reis", phone: "+55 21 99876-0002", pme: 1200, pf: 800},
	})
}

func (h *Handler) loadThresholdBoundaryScenario(ctx context.Context) error {
	return h.seedBrokers(ctx, []seedBroker{
		{id: "brk-one", name: "Rita Nunes", pf: 3000},
		{id: "brk-two", name: "Sérgio Dias", pf: 3000},
	})
}

func (h *Handler) loadBelowThresholdScenario(ctx context.Context) error {
	return h.seedBrokers(ctx, []seedBroker{
		{id: "brk-new", name: "Tiago Freitas", pme: 2999},
		{id: "brk-part", name: "Vera Lopes", pme: 1000, pf: 1000},
		{id: "brk-idle", name: "Wagner Pires"},
	})
}

func (h *Handler) loadStaleLeadsScenario(ctx context.Context) error {
	err := h.seedBrokers(ctx, []seedBroker{
		{id: "brk-ana", name: "Ana Ribeiro", pme: 8000, pf: 2500},
		{id: "brk-carla", name: "Carla Mendes", pf: 6000},
	})
	if err != nil {
		return err
	}

	now := h.Now()
	stale := []struct {
		id, client, broker string
		category           leads.Category
		delivered          time.Duration
		status             leads.Status
		since              time.Duration
	}{
		// Distributed two days ago and never touched.
		{"lead-stale-1", "Mercado Central", "brk-ana", leads.CategoryA, 48 * time.Hour, "", 0},
		// Waiting on a call back for eight days.
		{"lead-stale-2", "Clínica Vida", "brk-ana", leads.CategoryA, 10 * 24 * time.Hour, leads.StatusCallBackLater, 8 * 24 * time.Hour},
		// Proposal sent nine days ago.
		{"lead-stale-3", "Família Rocha", "brk-carla", leads.CategoryB, 12 * 24 * time.Hour, leads.StatusProposalSent, 9 * 24 * time.Hour},
		// Fresh lead, no alert due.
		{"lead-fresh", "Auto Peças Sul", "brk-carla", leads.CategoryB, 2 * time.Hour, "", 0},
		// Closed leads never alert.
		{"lead-closed", "Escola Aurora", "brk-ana", leads.CategoryA, 20 * 24 * time.Hour, leads.StatusClosed, 15 * 24 * time.Hour},
	}

	for _, s := range stale {
		delivered := now.Add(-s.delivered)
		lead := leads.Lead{
			ID:           s.id,
			Client:       s.client,
			Source:       "LeadHub",
			Category:     s.category,
			ArrivalDate:  delivered.Truncate(24 * time.Hour),
			DeliveryDate: delivered.Truncate(24 * time.Hour),
			BrokerID:     s.broker,
		}
		if _, err := h.Store.CreateLead(ctx, lead, delivered); err != nil {
			return fmt.Errorf("lead %s: %w", s.id, err)
		}
		if s.status != "" {
			if err := h.Store.UpdateLeadStatus(ctx, s.id, s.status, now.Add(-s.since)); err != nil {
				return fmt.Errorf("lead %s status: %w", s.id, err)
			}
		}
	}
	return nil
}
