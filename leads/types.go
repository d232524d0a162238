// Package leads implements the lead side of distribution: lead categories as
// ledger resources, the lead lifecycle, delivery tracking against the
// balances granted by distribution runs, and follow-up alerts.
package leads

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/lead-engine/generic"
)

// =============================================================================
// LEAD CATEGORY - The ledger resource type
// =============================================================================

// Category is the concrete resource type for the leads domain.
// Category A leads are companies (PME), category B leads are individuals (PF).
type Category string

func (c Category) ResourceID() string     { return string(c) }
func (c Category) ResourceDomain() string { return "leads" }

var _ generic.ResourceType = Category("")

const (
	CategoryA Category = "pme"
	CategoryB Category = "pf"
)

func init() {
	generic.RegisterResource(CategoryA)
	generic.RegisterResource(CategoryB)
}

// Categories lists every category in allocation order.
var Categories = []Category{CategoryA, CategoryB}

// ParseCategory accepts "pme"/"pf" as well as the "a"/"b" aliases.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pme", "a":
		return CategoryA, nil
	case "pf", "b":
		return CategoryB, nil
	default:
		return "", fmt.Errorf("unknown lead category %q", s)
	}
}

// =============================================================================
// LEAD STATUS
// =============================================================================

type Status string

const (
	StatusDistributed   Status = "distributed"
	StatusCallBackLater Status = "call_back_later"
	StatusNegotiating   Status = "negotiating"
	StatusProposalSent  Status = "proposal_sent"
	StatusClosed        Status = "closed"
	StatusInvalid       Status = "invalid"
	StatusDeclined      Status = "declined"
)

// legacyLabels maps the labels used by the old spreadsheet-era records.
var legacyLabels = map[string]Status{
	"distribuído":     StatusDistributed,
	"retornar depois": StatusCallBackLater,
	"em negociação":   StatusNegotiating,
	"proposta gerada": StatusProposalSent,
	"finalizado":      StatusClosed,
	"lead inválido":   StatusInvalid,
	"declinado":       StatusDeclined,
}

// ParseStatus accepts a status identifier or a legacy label.
func ParseStatus(s string) (Status, error) {
	trimmed := strings.TrimSpace(s)
	switch st := Status(trimmed); st {
	case StatusDistributed, StatusCallBackLater, StatusNegotiating, StatusProposalSent,
		StatusClosed, StatusInvalid, StatusDeclined:
		return st, nil
	}
	if st, ok := legacyLabels[strings.ToLower(trimmed)]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

// IsTerminal reports whether the lead needs no more follow-up.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusInvalid || s == StatusDeclined
}

// =============================================================================
// LEAD & PARTNER
// =============================================================================

// DateLayout is the format of arrival and delivery dates.
const DateLayout = "2006-01-02"

// Lead is one purchased contact, optionally handed to a broker.
type Lead struct {
	ID           string
	Client       string
	Source       string
	Category     Category
	ArrivalDate  time.Time
	DeliveryDate time.Time
	BrokerID     string
	BrokerName   string
	Status       Status
	StatusAt     time.Time
	CreatedAt    time.Time
}

// HasBroker reports whether the lead was handed to someone.
func (l Lead) HasBroker() bool {
	return l.BrokerID != ""
}

// EffectiveStatus is the stored status, or distributed for a lead that has
// a broker but no status yet.
func (l Lead) EffectiveStatus() Status {
	if l.Status == "" && l.HasBroker() {
		return StatusDistributed
	}
	return l.Status
}

// Validate checks the fields a lead cannot be stored without.
func (l Lead) Validate() error {
	if strings.TrimSpace(l.Client) == "" {
		return fmt.Errorf("%w: client is required", ErrInvalidLead)
	}
	if l.Category != CategoryA && l.Category != CategoryB {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidLead, l.Category)
	}
	if !l.DeliveryDate.IsZero() && !l.ArrivalDate.IsZero() && l.DeliveryDate.Before(l.ArrivalDate) {
		return fmt.Errorf("%w: delivery date before arrival date", ErrInvalidLead)
	}
	return nil
}

// Partner is a company that sells leads to the team.
type Partner struct {
	ID             string
	Name           string
	LeadsPurchased int
	CreatedAt      time.Time
}

// Validate checks a partner before it is stored.
func (p Partner) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: partner name is required", ErrInvalidLead)
	}
	if p.LeadsPurchased < 0 {
		return fmt.Errorf("%w: leads purchased must not be negative", ErrInvalidLead)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date. Empty input gives the zero time.
func ParseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidLead, s)
	}
	return t, nil
}
