/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Production amounts are decimal.Decimal. Requests accept JSON numbers or
  strings ("1500.50"); responses always carry strings so no precision is
  lost in JavaScript clients.

DATES:
  Lead arrival/delivery dates are YYYY-MM-DD. Timestamps are RFC3339 UTC.

VALIDATION:
  Validation is done in handlers and domain packages, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lead-engine/distribution"
	"github.com/warp/lead-engine/factory"
	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/leads"
	"github.com/warp/lead-engine/store/sqlite"
)

// =============================================================================
// BROKERS
// =============================================================================

// BrokerDTO represents a broker in API responses.
type BrokerDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone,omitempty"`
	ProductionA decimal.Decimal `json:"production_a"`
	ProductionB decimal.Decimal `json:"production_b"`
	BalanceA    int             `json:"balance_a"`
	BalanceB    int             `json:"balance_b"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

// CreateBrokerRequest creates a broker. Production and balances start at 0.
type CreateBrokerRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// UpdateBrokerRequest changes contact fields only.
type UpdateBrokerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// ProductionRequest posts a sale amount to one category.
type ProductionRequest struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// RankingEntryDTO is one line of the production ranking.
type RankingEntryDTO struct {
	Position       int             `json:"position"`
	BrokerID       string          `json:"broker_id"`
	BrokerName     string          `json:"broker_name"`
	ProductionA    decimal.Decimal `json:"production_a"`
	ProductionB    decimal.Decimal `json:"production_b"`
	TotalFinancial decimal.Decimal `json:"total_financial"`
	Score          decimal.Decimal `json:"score"`
	Eligible       bool            `json:"eligible"`
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

// DistributionRequest asks for a preview or a confirm. Fingerprint is only
// read on confirm; when set it must match the current snapshot.
type DistributionRequest struct {
	StockA      int    `json:"stock_a"`
	StockB      int    `json:"stock_b"`
	Fingerprint string `json:"fingerprint,omitempty"`
	ConfirmedBy string `json:"confirmed_by,omitempty"`
}

// AllocationDTO is one broker's share.
type AllocationDTO struct {
	BrokerID   string   `json:"broker_id"`
	BrokerName string   `json:"broker_name"`
	AllocatedA int      `json:"allocated_a"`
	AllocatedB int      `json:"allocated_b"`
	Rationale  []string `json:"rationale,omitempty"`
}

// IneligibleDTO is a broker below the threshold.
type IneligibleDTO struct {
	BrokerID       string          `json:"broker_id"`
	BrokerName     string          `json:"broker_name"`
	TotalFinancial decimal.Decimal `json:"total_financial"`
}

// PreviewResponse is the engine outcome for the current snapshot.
type PreviewResponse struct {
	Fingerprint string             `json:"fingerprint"`
	Policy      factory.PolicyJSON `json:"policy"`
	StockA      int                `json:"stock_a"`
	StockB      int                `json:"stock_b"`
	ResidualA   int                `json:"residual_a"`
	ResidualB   int                `json:"residual_b"`
	HasResidual bool               `json:"has_residual"`
	Allocations []AllocationDTO    `json:"allocations"`
	Ineligible  []IneligibleDTO    `json:"ineligible"`
}

// RunDTO is a confirmed run.
type RunDTO struct {
	ID          string          `json:"id"`
	StockA      int             `json:"stock_a"`
	StockB      int             `json:"stock_b"`
	ResidualA   int             `json:"residual_a"`
	ResidualB   int             `json:"residual_b"`
	Fingerprint string          `json:"fingerprint"`
	ConfirmedBy string          `json:"confirmed_by,omitempty"`
	ConfirmedAt string          `json:"confirmed_at"`
	Allocations []AllocationDTO `json:"allocations,omitempty"`
}

// ResidualRequest hands leftover leads of a run to a broker.
type ResidualRequest struct {
	BrokerID   string `json:"broker_id"`
	Category   string `json:"category"`
	Quantity   int    `json:"quantity"`
	AssignedBy string `json:"assigned_by,omitempty"`
}

// =============================================================================
// CYCLES & FULFILLMENT
// =============================================================================

// CloseCycleRequest closes the current sales cycle. Reference defaults to
// the current month (YYYY-MM).
type CloseCycleRequest struct {
	Reference string `json:"reference,omitempty"`
}

// CycleClosingDTO is one archived production line.
type CycleClosingDTO struct {
	BrokerID    string          `json:"broker_id"`
	BrokerName  string          `json:"broker_name"`
	ProductionA decimal.Decimal `json:"production_a"`
	ProductionB decimal.Decimal `json:"production_b"`
	Reference   string          `json:"reference,omitempty"`
	ClosedAt    string          `json:"closed_at"`
}

// FulfillmentDTO compares a broker's balance with delivered leads.
type FulfillmentDTO struct {
	BrokerID   string `json:"broker_id"`
	BrokerName string `json:"broker_name"`
	BalanceA   int    `json:"balance_a"`
	DeliveredA int    `json:"delivered_a"`
	RemainingA int    `json:"remaining_a"`
	BalanceB   int    `json:"balance_b"`
	DeliveredB int    `json:"delivered_b"`
	RemainingB int    `json:"remaining_b"`

	// OverDelivered is set when more leads went out than the run and
	// supervisor adjustments granted.
	OverDelivered bool `json:"over_delivered"`
}

// FulfillmentResponse wraps the report with the window it covers.
type FulfillmentResponse struct {
	Since   string           `json:"since,omitempty"`
	RunID   string           `json:"run_id,omitempty"`
	Brokers []FulfillmentDTO `json:"brokers"`
}

// =============================================================================
// PARTNERS & LEADS
// =============================================================================

// PartnerDTO represents a partner.
type PartnerDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LeadsPurchased int    `json:"leads_purchased"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreatePartnerRequest creates a partner.
type CreatePartnerRequest struct {
	Name           string `json:"name"`
	LeadsPurchased int    `json:"leads_purchased"`
}

// LeadDTO represents a lead.
type LeadDTO struct {
	ID           string `json:"id"`
	Client       string `json:"client"`
	Source       string `json:"source,omitempty"`
	Category     string `json:"category"`
	ArrivalDate  string `json:"arrival_date,omitempty"`
	DeliveryDate string `json:"delivery_date,omitempty"`
	BrokerID     string `json:"broker_id,omitempty"`
	BrokerName   string `json:"broker_name,omitempty"`
	Status       string `json:"status,omitempty"`
	StatusAt     string `json:"status_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// CreateLeadRequest registers a lead, optionally handing it to a broker.
type CreateLeadRequest struct {
	Client       string `json:"client"`
	Source       string `json:"source,omitempty"`
	Category     string `json:"category"`
	ArrivalDate  string `json:"arrival_date,omitempty"`
	DeliveryDate string `json:"delivery_date,omitempty"`
	BrokerID     string `json:"broker_id,omitempty"`
}

// UpdateLeadStatusRequest moves a lead through the follow-up funnel.
type UpdateLeadStatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// NOTIFICATIONS & LEDGER
// =============================================================================

// NotificationDTO is a follow-up alert.
type NotificationDTO struct {
	ID        string `json:"id"`
	LeadID    string `json:"lead_id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID          string `json:"id"`
	BrokerID    string `json:"broker_id"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Delta       int    `json:"delta"`
	EffectiveAt string `json:"effective_at"`
	ReferenceID string `json:"reference_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(leads.DateLayout)
}

func toBrokerDTO(b sqlite.Broker) BrokerDTO {
	return BrokerDTO{
		ID:          b.ID,
		Name:        b.Name,
		Phone:       b.Phone,
		ProductionA: b.ProductionA,
		ProductionB: b.ProductionB,
		BalanceA:    b.BalanceA,
		BalanceB:    b.BalanceB,
		CreatedAt:   formatTimestamp(b.CreatedAt),
	}
}

func toAllocationDTOs(results []distribution.AllocationResult) []AllocationDTO {
	dtos := make([]AllocationDTO, len(results))
	for i, r := range results {
		dtos[i] = AllocationDTO{
			BrokerID:   r.BrokerID,
			BrokerName: r.BrokerName,
			AllocatedA: r.AllocatedA,
			AllocatedB: r.AllocatedB,
			Rationale:  r.Rationale,
		}
	}
	return dtos
}

func toRunDTO(run sqlite.DistributionRun) RunDTO {
	dto := RunDTO{
		ID:          run.ID,
		StockA:      run.StockA,
		StockB:      run.StockB,
		ResidualA:   run.ResidualA,
		ResidualB:   run.ResidualB,
		Fingerprint: run.Fingerprint,
		ConfirmedBy: run.ConfirmedBy,
		ConfirmedAt: formatTimestamp(run.ConfirmedAt),
	}
	for _, a := range run.Allocations {
		dto.Allocations = append(dto.Allocations, AllocationDTO{
			BrokerID:   a.BrokerID,
			BrokerName: a.BrokerName,
			AllocatedA: a.AllocatedA,
			AllocatedB: a.AllocatedB,
			Rationale:  a.Rationale,
		})
	}
	return dto
}

func toPartnerDTO(p leads.Partner) PartnerDTO {
	return PartnerDTO{
		ID:             p.ID,
		Name:           p.Name,
		LeadsPurchased: p.LeadsPurchased,
		CreatedAt:      formatTimestamp(p.CreatedAt),
	}
}

func toLeadDTO(l leads.Lead) LeadDTO {
	return LeadDTO{
		ID:           l.ID,
		Client:       l.Client,
		Source:       l.Source,
		Category:     string(l.Category),
		ArrivalDate:  formatDate(l.ArrivalDate),
		DeliveryDate: formatDate(l.DeliveryDate),
		BrokerID:     l.BrokerID,
		BrokerName:   l.BrokerName,
		Status:       string(l.EffectiveStatus()),
		StatusAt:     formatTimestamp(l.StatusAt),
		CreatedAt:    formatTimestamp(l.CreatedAt),
	}
}

func toNotificationDTO(n sqlite.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		LeadID:    n.LeadID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: formatTimestamp(n.CreatedAt),
	}
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(tx.ID),
		BrokerID:    string(tx.EntityID),
		Type:        string(tx.Type),
		Delta:       tx.Delta.Int(),
		EffectiveAt: formatTimestamp(tx.EffectiveAt),
		ReferenceID: tx.ReferenceID,
		Reason:      tx.Reason,
		CreatedBy:   tx.CreatedBy,
	}
	if tx.ResourceType != nil {
		dto.Category = tx.ResourceType.ResourceID()
	}
	return dto
}
