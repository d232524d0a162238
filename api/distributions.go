package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/lead-engine/distribution"
	"github.com/warp/lead-engine/events"
	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/leads"
	"github.com/warp/lead-engine/metrics"
	"github.com/warp/lead-engine/store/sqlite"
)

// =============================================================================
// DISTRIBUTION HANDLERS
// =============================================================================

// snapshot is one engine run over the stored brokers.
type snapshot struct {
	outcome     *distribution.Outcome
	fingerprint string
}

func (h *Handler) runEngine(ctx context.Context, pool distribution.InventoryPool) (*snapshot, error) {
	brokers, err := h.Store.ListBrokers(ctx)
	if err != nil {
		return nil, err
	}
	return h.allocate(brokers, pool)
}

func (h *Handler) allocate(brokers []sqlite.Broker, pool distribution.InventoryPool) (*snapshot, error) {
	records := make([]distribution.BrokerRecord, len(brokers))
	for i, b := range brokers {
		records[i] = b.Record()
	}

	outcome, err := distribution.NewEngine(h.Policy).Allocate(records, pool)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		outcome:     outcome,
		fingerprint: distribution.Fingerprint(records, pool, h.Policy),
	}, nil
}

// PreviewDistribution runs the engine on the current brokers without
// persisting anything.
func (h *Handler) PreviewDistribution(w http.ResponseWriter, r *http.Request) {
	var req DistributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	preview, err := h.Preview(r.Context(), req.StockA, req.StockB)
	if err != nil {
		writeDomainError(w, "Failed to compute distribution", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ConfirmDistribution persists a distribution run.
func (h *Handler) ConfirmDistribution(w http.ResponseWriter, r *http.Request) {
	var req DistributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	run, err := h.Confirm(r.Context(), req)
	if err != nil {
		if errors.Is(err, generic.ErrSnapshotChanged) {
			writeError(w, http.StatusConflict, "Brokers changed since the preview; preview again", err)
			return
		}
		writeDomainError(w, "Failed to confirm distribution", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// Preview runs the engine on the stored brokers. Nothing is written.
func (h *Handler) Preview(ctx context.Context, stockA, stockB int) (PreviewResponse, error) {
	start := time.Now()
	snap, err := h.runEngine(ctx, distribution.InventoryPool{StockA: stockA, StockB: stockB})
	if err != nil {
		h.Metrics.DistributionRun(metrics.RunFailed, 0)
		return PreviewResponse{}, err
	}
	h.Metrics.DistributionRun(metrics.RunPreview, time.Since(start))
	return h.toPreviewResponse(snap), nil
}

// Confirm recomputes the distribution and persists the run, its
// allocations, the new balances and the ledger grants. The brokers are read
// and the run is written in one store transaction. A fingerprint in req must
// match the recomputed one.
func (h *Handler) Confirm(ctx context.Context, req DistributionRequest) (RunDTO, error) {
	policyJSON, err := h.PolicyFactory.Marshal(h.Policy)
	if err != nil {
		return RunDTO{}, fmt.Errorf("encode policy: %w", err)
	}

	start := time.Now()
	now := h.Now()
	pool := distribution.InventoryPool{StockA: req.StockA, StockB: req.StockB}

	var outcome *distribution.Outcome
	run, err := h.Store.ConfirmRun(ctx, func(brokers []sqlite.Broker) (sqlite.DistributionRun, []generic.Transaction, error) {
		snap, err := h.allocate(brokers, pool)
		if err != nil {
			return sqlite.DistributionRun{}, nil, err
		}
		if req.Fingerprint != "" && req.Fingerprint != snap.fingerprint {
			return sqlite.DistributionRun{}, nil, generic.ErrSnapshotChanged
		}
		outcome = snap.outcome

		run := sqlite.DistributionRun{
			ID:          uuid.NewString(),
			StockA:      req.StockA,
			StockB:      req.StockB,
			ResidualA:   outcome.Residual.StockA,
			ResidualB:   outcome.Residual.StockB,
			PolicyJSON:  policyJSON,
			Fingerprint: snap.fingerprint,
			ConfirmedBy: req.ConfirmedBy,
			ConfirmedAt: now,
		}
		for _, res := range outcome.Results {
			run.Allocations = append(run.Allocations, sqlite.Allocation{
				BrokerID:   res.BrokerID,
				BrokerName: res.BrokerName,
				AllocatedA: res.AllocatedA,
				AllocatedB: res.AllocatedB,
				Rationale:  res.Rationale,
			})
		}
		return run, leads.GrantTransactions(run.ID, outcome.Results, now), nil
	})
	if errors.Is(err, generic.ErrSnapshotChanged) {
		h.Metrics.DistributionRun(metrics.RunConflict, 0)
		return RunDTO{}, err
	}
	if err != nil {
		h.Metrics.DistributionRun(metrics.RunFailed, 0)
		return RunDTO{}, err
	}

	totals := outcome.Totals()
	h.Metrics.DistributionRun(metrics.RunConfirmed, time.Since(start))
	h.Metrics.LeadsAllocated(string(leads.CategoryA), totals.StockA)
	h.Metrics.LeadsAllocated(string(leads.CategoryB), totals.StockB)
	h.Metrics.Residual(string(leads.CategoryA), run.ResidualA)
	h.Metrics.Residual(string(leads.CategoryB), run.ResidualB)

	dto := toRunDTO(run)
	h.publish(ctx, events.DistributionConfirmed, run.ID, now, dto)
	h.Log.Info().
		Str("run_id", run.ID).
		Int("stock_a", run.StockA).
		Int("stock_b", run.StockB).
		Int("residual_a", run.ResidualA).
		Int("residual_b", run.ResidualB).
		Bool("has_residual", outcome.HasResidual()).
		Int("brokers", len(run.Allocations)).
		Msg("distribution confirmed")

	return dto, nil
}

// ListDistributions returns confirmed runs, newest first.
func (h *Handler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), parseLimit(r, defaultListLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list distributions", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDistribution returns a run with its allocations.
func (h *Handler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get distribution", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// AssignResidual hands leftover leads of a run to a broker.
func (h *Handler) AssignResidual(w http.ResponseWriter, r *http.Request) {
	var req ResidualRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := leads.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	if req.AssignedBy == "" {
		req.AssignedBy = "supervisor"
	}

	runID := chi.URLParam(r, "id")
	adjustment, err := leads.ResidualAdjustment(runID, req.BrokerID, category, req.Quantity, req.AssignedBy, h.Now())
	if err != nil {
		writeDomainError(w, "Invalid residual assignment", err)
		return
	}

	ctx := r.Context()
	run, err := h.Store.AssignResidual(ctx, runID, req.BrokerID, category, req.Quantity, adjustment)
	if err != nil {
		writeDomainError(w, "Failed to assign residual", err)
		return
	}

	h.Metrics.LeadsAllocated(string(category), req.Quantity)
	h.Log.Info().
		Str("run_id", runID).
		Str("broker_id", req.BrokerID).
		Str("category", string(category)).
		Int("quantity", req.Quantity).
		Msg("residual assigned")

	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// CloseCycle archives every broker's production and resets it to zero.
// Balances are kept.
func (h *Handler) CloseCycle(w http.ResponseWriter, r *http.Request) {
	var req CloseCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	closings, err := h.CloseCycleNow(r.Context(), req.Reference)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to close cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, closings)
}

// CloseCycleNow closes the production cycle. An empty reference becomes
// the current month (YYYY-MM).
func (h *Handler) CloseCycleNow(ctx context.Context, reference string) ([]CycleClosingDTO, error) {
	now := h.Now()
	if reference == "" {
		reference = cycleReference(now)
	}

	closings, err := h.Store.CloseCycle(ctx, reference, now)
	if err != nil {
		return nil, err
	}

	dtos := toCycleClosingDTOs(closings)
	h.Metrics.CycleClosed()
	h.publish(ctx, events.CycleClosed, reference, now, dtos)
	h.Log.Info().Str("reference", reference).Int("brokers", len(closings)).Msg("cycle closed")
	return dtos, nil
}

// CycleHistory returns archived production.
func (h *Handler) CycleHistory(w http.ResponseWriter, r *http.Request) {
	closings, err := h.Store.ListCycleClosings(r.Context(), parseLimit(r, defaultListLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cycle history", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleClosingDTOs(closings))
}

// =============================================================================
// FULFILLMENT
// =============================================================================

// Fulfillment compares balances with leads delivered since the last run.
func (h *Handler) Fulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	last, err := h.Store.LastRun(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load last distribution", err)
		return
	}
	var (
		since time.Time
		resp  FulfillmentResponse
	)
	if last != nil {
		since = last.ConfirmedAt
		resp.RunID = last.ID
		resp.Since = formatTimestamp(since)
	}

	brokers, err := h.Store.ListBrokers(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list brokers", err)
		return
	}
	balances := make([]leads.BrokerBalance, len(brokers))
	for i, b := range brokers {
		balances[i] = b.Balance()
	}

	report, err := leads.Fulfillment(ctx, generic.NewLedger(h.Store), balances, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute fulfillment", err)
		return
	}

	resp.Brokers = make([]FulfillmentDTO, len(report))
	for i, f := range report {
		a, b := f.ByCategory[leads.CategoryA], f.ByCategory[leads.CategoryB]
		resp.Brokers[i] = FulfillmentDTO{
			BrokerID:   f.BrokerID,
			BrokerName: f.BrokerName,
			BalanceA:   a.Balance,
			DeliveredA: a.Delivered,
			RemainingA: a.Remaining,
			BalanceB:   b.Balance,
			DeliveredB: b.Delivered,
			RemainingB: b.Remaining,

			OverDelivered: a.OverDelivered || b.OverDelivered,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (h *Handler) toPreviewResponse(snap *snapshot) PreviewResponse {
	o := snap.outcome
	resp := PreviewResponse{
		Fingerprint: snap.fingerprint,
		Policy:      h.PolicyFactory.ToJSON(o.Policy),
		StockA:      o.Input.StockA,
		StockB:      o.Input.StockB,
		ResidualA:   o.Residual.StockA,
		ResidualB:   o.Residual.StockB,
		HasResidual: o.HasResidual(),
		Allocations: toAllocationDTOs(o.Results),
		Ineligible:  make([]IneligibleDTO, len(o.Ineligible)),
	}
	for i, b := range o.Ineligible {
		resp.Ineligible[i] = IneligibleDTO{
			BrokerID:       b.ID,
			BrokerName:     b.Name,
			TotalFinancial: b.ProductionA.Add(b.ProductionB),
		}
	}
	return resp
}

func toCycleClosingDTOs(closings []sqlite.CycleClosing) []CycleClosingDTO {
	dtos := make([]CycleClosingDTO, len(closings))
	for i, c := range closings {
		dtos[i] = CycleClosingDTO{
			BrokerID:    c.BrokerID,
			BrokerName:  c.BrokerName,
			ProductionA: c.ProductionA,
			ProductionB: c.ProductionB,
			Reference:   c.Reference,
			ClosedAt:    formatTimestamp(c.ClosedAt),
		}
	}
	return dtos
}
