/*
handlers.go - HTTP API handlers for the lead engine

PURPOSE:
  Exposes brokers, partners, leads, distributions and follow-ups via REST.
  Handles HTTP request/response, JSON serialization, and delegates to the
  distribution engine, the leads package and the store.

ENDPOINTS:
  Brokers:
    GET    /api/brokers                   List brokers
    POST   /api/brokers                   Create broker
    GET    /api/brokers/{id}              Get broker
    PUT    /api/brokers/{id}              Update name/phone
    DELETE /api/brokers/{id}              Delete broker
    POST   /api/brokers/{id}/production   Add production to a category
    GET    /api/ranking                   Brokers by score

  Distributions (distributions.go):
    POST   /api/distributions/preview     Run the engine, persist nothing
    POST   /api/distributions             Confirm a run
    GET    /api/distributions             List runs
    GET    /api/distributions/{id}        Get run with allocations
    POST   /api/distributions/{id}/residual  Hand leftover to a broker

  Cycles & fulfillment (distributions.go):
    POST   /api/cycles/close              Archive production, reset to zero
    GET    /api/cycles/history            Archived production
    GET    /api/fulfillment               Balance vs delivered leads

  Partners & leads:
    GET/POST /api/partners, DELETE /api/partners/{id}
    GET/POST /api/leads, GET /api/leads/{id}, PUT /api/leads/{id}/status

  Follow-ups:
    GET    /api/notifications?unread=true
    POST   /api/notifications/{id}/read
    POST   /api/followups/run             Sweep stale leads now

  Admin:
    GET    /api/transactions              Latest ledger entries

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with the HTTP status derived
  from the error (statusFor):
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate delivery, stale fingerprint, residual exhausted)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Deploy behind the internal network only.

SEE ALSO:
  - dto.go: Request/response data structures
  - distributions.go: Distribution, cycle and fulfillment handlers
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/lead-engine/distribution"
	"github.com/warp/lead-engine/events"
	"github.com/warp/lead-engine/factory"
	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/leads"
	"github.com/warp/lead-engine/metrics"
	"github.com/warp/lead-engine/store/sqlite"
)

const (
	defaultLeadLimit = 10
	defaultListLimit = 50
	maxListLimit     = 500
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         *sqlite.Store
	PolicyFactory *factory.PolicyFactory
	Policy        distribution.Policy
	Events        events.Publisher
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
	Now           func() time.Time

	scenarioMu      sync.RWMutex
	currentScenario string
}

// NewHandler creates a handler with a no-op event publisher and a fresh
// metrics registry. Callers replace Events and Metrics as needed.
func NewHandler(store *sqlite.Store, policy distribution.Policy, log zerolog.Logger) *Handler {
	return &Handler{
		Store:         store,
		PolicyFactory: factory.NewPolicyFactory(),
		Policy:        policy,
		Events:        events.Nop{},
		Metrics:       metrics.New(),
		Log:           log,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// BROKER HANDLERS
// =============================================================================

// ListBrokers returns all brokers.
func (h *Handler) ListBrokers(w http.ResponseWriter, r *http.Request) {
	brokers, err := h.Store.ListBrokers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list brokers", err)
		return
	}

	dtos := make([]BrokerDTO, len(brokers))
	for i, b := range brokers {
		dtos[i] = toBrokerDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBroker returns one broker.
func (h *Handler) GetBroker(w http.ResponseWriter, r *http.Request) {
	b, err := h.Store.GetBroker(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get broker", err)
		return
	}
	writeJSON(w, http.StatusOK, toBrokerDTO(*b))
}

// CreateBroker creates a broker with zero production and balances.
func (h *Handler) CreateBroker(w http.ResponseWriter, r *http.Request) {
	var req CreateBrokerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	b := sqlite.Broker{
		ID:        req.ID,
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: h.Now(),
	}
	if err := h.Store.CreateBroker(r.Context(), b); err != nil {
		writeDomainError(w, "Failed to create broker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBrokerDTO(b))
}

// UpdateBroker changes name and phone. Production and balances are kept.
func (h *Handler) UpdateBroker(w http.ResponseWriter, r *http.Request) {
	var req UpdateBrokerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.Store.UpdateBrokerContact(ctx, id, strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone)); err != nil {
		writeDomainError(w, "Failed to update broker", err)
		return
	}

	b, err := h.Store.GetBroker(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get broker", err)
		return
	}
	writeJSON(w, http.StatusOK, toBrokerDTO(*b))
}

// DeleteBroker removes a broker. Its ledger history stays.
func (h *Handler) DeleteBroker(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteBroker(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete broker", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddProduction adds a sale amount to the broker's production.
func (h *Handler) AddProduction(w http.ResponseWriter, r *http.Request) {
	var req ProductionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := leads.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}

	b, err := h.Store.AddProduction(r.Context(), chi.URLParam(r, "id"), category, req.Amount)
	if err != nil {
		writeDomainError(w, "Failed to add production", err)
		return
	}
	writeJSON(w, http.StatusOK, toBrokerDTO(*b))
}

// Ranking lists every broker by score, highest first. Ties keep name order.
func (h *Handler) Ranking(w http.ResponseWriter, r *http.Request) {
	brokers, err := h.Store.ListBrokers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list brokers", err)
		return
	}

	scored := make([]distribution.ScoredBroker, len(brokers))
	for i, b := range brokers {
		scored[i] = h.Policy.Score(b.Record())
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.GreaterThan(scored[j].Score)
	})

	entries := make([]RankingEntryDTO, len(scored))
	for i, sb := range scored {
		entries[i] = RankingEntryDTO{
			Position:       i + 1,
			BrokerID:       sb.Broker.ID,
			BrokerName:     sb.Broker.Name,
			ProductionA:    sb.Broker.ProductionA,
			ProductionB:    sb.Broker.ProductionB,
			TotalFinancial: sb.TotalFinancial,
			Score:          sb.Score,
			Eligible:       sb.TotalFinancial.GreaterThanOrEqual(h.Policy.Threshold),
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// PARTNER HANDLERS
// =============================================================================

// ListPartners returns all partners.
func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.Store.ListPartners(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list partners", err)
		return
	}

	dtos := make([]PartnerDTO, len(partners))
	for i, p := range partners {
		dtos[i] = toPartnerDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePartner registers a lead seller.
func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req CreatePartnerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := leads.Partner{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(req.Name),
		LeadsPurchased: req.LeadsPurchased,
		CreatedAt:      h.Now(),
	}
	if err := h.Store.CreatePartner(r.Context(), p); err != nil {
		writeDomainError(w, "Failed to create partner", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartnerDTO(p))
}

// DeletePartner removes a partner.
func (h *Handler) DeletePartner(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeletePartner(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete partner", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEAD HANDLERS
// =============================================================================

// ListLeads returns the latest leads (default 10).
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListLeads(r.Context(), parseLimit(r, defaultLeadLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list leads", err)
		return
	}

	dtos := make([]LeadDTO, len(list))
	for i, l := range list {
		dtos[i] = toLeadDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLead returns one lead.
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	l, err := h.Store.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get lead", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(*l))
}

// CreateLead registers a lead. A lead with a broker is delivered on the
// ledger in the same store transaction.
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := leads.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	arrival, err := leads.ParseDate(req.ArrivalDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid arrival date", err)
		return
	}
	delivery, err := leads.ParseDate(req.DeliveryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delivery date", err)
		return
	}

	ctx := r.Context()
	now := h.Now()
	lead := leads.Lead{
		ID:           uuid.NewString(),
		Client:       strings.TrimSpace(req.Client),
		Source:       strings.TrimSpace(req.Source),
		Category:     category,
		ArrivalDate:  arrival,
		DeliveryDate: delivery,
		BrokerID:     strings.TrimSpace(req.BrokerID),
	}

	created, err := h.Store.CreateLead(ctx, lead, now)
	if err != nil {
		writeDomainError(w, "Failed to create lead", err)
		return
	}

	h.Metrics.LeadCreated(string(created.Category), created.HasBroker())
	h.publish(ctx, events.LeadCreated, created.ID, now, toLeadDTO(*created))

	writeJSON(w, http.StatusCreated, toLeadDTO(*created))
}

// UpdateLeadStatus changes the follow-up status of a lead.
func (h *Handler) UpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateLeadStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := leads.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status", err)
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.Store.UpdateLeadStatus(ctx, id, status, h.Now()); err != nil {
		writeDomainError(w, "Failed to update lead", err)
		return
	}

	l, err := h.Store.GetLead(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get lead", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(*l))
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// ListNotifications returns follow-up alerts, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	list, err := h.Store.ListNotifications(r.Context(), unreadOnly, parseLimit(r, defaultListLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}

	dtos := make([]NotificationDTO, len(list))
	for i, n := range list {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationRead flags one alert as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to mark notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunFollowUps sweeps stale leads immediately.
func (h *Handler) RunFollowUps(w http.ResponseWriter, r *http.Request) {
	raised, err := h.SweepFollowUps(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to run follow-ups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"raised": raised})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListTransactions returns the latest ledger entries.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Store.ListTransactions(r.Context(), parseLimit(r, defaultListLimit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setScenario("")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error itself.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, distribution.ErrInvalidInput),
		errors.Is(err, leads.ErrInvalidLead),
		generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the body into v and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func parseLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// publish sends an event after a committed change. Failures are logged only.
func (h *Handler) publish(ctx context.Context, t events.Type, key string, at time.Time, payload any) {
	e, err := events.New(t, key, at, payload)
	if err == nil {
		err = h.Events.Publish(ctx, e)
	}
	if err != nil {
		h.Log.Warn().Err(err).Str("event", string(t)).Str("key", key).Msg("event not published")
	}
}

func (h *Handler) setScenario(id string) {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.scenarioMu.RLock()
	defer h.scenarioMu.RUnlock()
	return h.currentScenario
}

func cycleReference(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}
