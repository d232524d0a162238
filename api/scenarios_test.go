/*
scenarios_test.go - Tests for demo scenario loading

Tests for:
- Every scenario loads and becomes the current one
- Engine output on the loaded data matches what each scenario describes
- Unknown scenarios and resets
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lead-engine/leads"
)

func (ts *testServer) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListScenarios(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarioLoaders))
	for _, s := range list {
		assert.Contains(t, scenarioLoaders, s.ID)
	}
}

func TestLoadScenario_AllScenariosLoad(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			ts := newTestServer(t)

			ts.loadScenario(t, s.ID)

			rec := ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, s.ID, decode[ScenarioDTO](t, rec).ID)

			rec = ts.do(t, http.MethodGet, "/api/brokers", nil)
			assert.NotEmpty(t, decode[[]BrokerDTO](t, rec))
		})
	}
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "sales-team")
	ts.loadScenario(t, "threshold-boundary")

	rec := ts.do(t, http.MethodGet, "/api/brokers", nil)
	assert.Len(t, decode[[]BrokerDTO](t, rec), 2)
	rec = ts.do(t, http.MethodGet, "/api/partners", nil)
	assert.Empty(t, decode[[]PartnerDTO](t, rec))
}

func TestLoadScenario_Unknown(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestResetDatabase_ClearsScenario(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "sales-team")

	rec := ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/brokers", nil)
	assert.Empty(t, decode[[]BrokerDTO](t, rec))
	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestScenario_SingleTopProducer(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "single-top-producer")

	p := ts.preview(t, 10, 10)

	require.Len(t, p.Allocations, 1)
	assert.Equal(t, "brk-top", p.Allocations[0].BrokerID)
	assert.Equal(t, 10, p.Allocations[0].AllocatedA)
	assert.Equal(t, 10, p.Allocations[0].AllocatedB)
}

func TestScenario_ThresholdBoundary(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "threshold-boundary")

	p := ts.preview(t, 6, 10)

	// Both qualify at exactly 3000, PME has nobody active.
	require.Len(t, p.Allocations, 2)
	assert.Equal(t, 6, p.ResidualA)
	assert.Zero(t, p.ResidualB)
	for _, a := range p.Allocations {
		assert.Zero(t, a.AllocatedA)
		assert.Equal(t, 5, a.AllocatedB)
	}
}

func TestScenario_BelowThreshold(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "below-threshold")

	p := ts.preview(t, 8, 3)

	assert.Empty(t, p.Allocations)
	assert.Len(t, p.Ineligible, 3)
	assert.Equal(t, 8, p.ResidualA)
	assert.Equal(t, 3, p.ResidualB)
}

func TestScenario_SalesTeam(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "sales-team")

	rec := ts.do(t, http.MethodGet, "/api/ranking", nil)
	ranking := decode[[]RankingEntryDTO](t, rec)
	require.Len(t, ranking, 5)
	assert.Equal(t, "brk-ana", ranking[0].BrokerID)

	eligible := 0
	for _, e := range ranking {
		if e.Eligible {
			eligible++
		}
	}
	assert.Equal(t, 4, eligible)

	rec = ts.do(t, http.MethodGet, "/api/leads", nil)
	for _, l := range decode[[]LeadDTO](t, rec) {
		assert.Empty(t, l.BrokerID)
	}
}

func TestScenario_StaleLeads_RaiseFollowUps(t *testing.T) {
	ts := newTestServer(t)
	ts.loadScenario(t, "stale-leads")

	rec := ts.do(t, http.MethodPost, "/api/followups/run", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[map[string]int](t, rec)["raised"])

	rec = ts.do(t, http.MethodGet, "/api/notifications", nil)
	types := map[string]string{}
	for _, n := range decode[[]NotificationDTO](t, rec) {
		types[n.LeadID] = n.Type
	}
	assert.Equal(t, map[string]string{
		"lead-stale-1": string(leads.Alert24hDistributed),
		"lead-stale-2": string(leads.Alert7dCallBack),
		"lead-stale-3": string(leads.Alert7dProposal),
	}, types)
}
