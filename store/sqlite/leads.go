package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/leads"
)

// =============================================================================
// PARTNERS
// =============================================================================

// CreatePartner inserts a partner.
func (s *Store) CreatePartner(ctx context.Context, p leads.Partner) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO partners (id, name, leads_purchased, created_at) VALUES (?, ?, ?, ?)",
		p.ID, p.Name, p.LeadsPurchased, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create partner: %w", err)
	}
	return nil
}

// ListPartners returns partners ordered by name.
func (s *Store) ListPartners(ctx context.Context) ([]leads.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, leads_purchased, created_at FROM partners ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	defer rows.Close()

	var partners []leads.Partner
	for rows.Next() {
		var (
			p         leads.Partner
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.LeadsPurchased, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

// DeletePartner removes a partner.
func (s *Store) DeletePartner(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM partners WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete partner: %w", err)
	}
	return requireAffected(res, "partner", id)
}

// =============================================================================
// LEADS
// =============================================================================

const leadColumns = `id, client, source, category, arrival_date, delivery_date,
	broker_id, broker_name, status, status_at, created_at`

// CreateLead stores a lead. When the lead names a broker, its delivery is
// appended to the ledger in the same SQL transaction, so a lead is never
// stored as delivered without its ledger entry. The broker name is filled
// from the broker record.
func (s *Store) CreateLead(ctx context.Context, lead leads.Lead, at time.Time) (*leads.Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = at
	}

	err := s.inTx(ctx, func(sqlTx *sql.Tx) error {
		if lead.HasBroker() {
			b, err := getBroker(ctx, sqlTx, lead.BrokerID)
			if err != nil {
				return err
			}
			lead.BrokerName = b.Name
			if lead.Status == "" {
				lead.Status = leads.StatusDistributed
			}
			if lead.StatusAt.IsZero() {
				lead.StatusAt = at
			}
		}

		_, err := sqlTx.ExecContext(ctx, `INSERT INTO leads (`+leadColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			lead.ID, lead.Client, nullString(lead.Source), string(lead.Category),
			formatNullDate(lead.ArrivalDate), formatNullDate(lead.DeliveryDate),
			nullString(lead.BrokerID), nullString(lead.BrokerName),
			nullString(string(lead.Status)), formatNullTime(lead.StatusAt),
			formatTime(lead.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create lead: %w", err)
		}

		if !lead.HasBroker() {
			return nil
		}
		_, err = leads.NewLedger(&txStore{tx: sqlTx}).Deliver(ctx, lead, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// GetLead retrieves a lead by ID.
func (s *Store) GetLead(ctx context.Context, id string) (*leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+leadColumns+" FROM leads WHERE id = ?", id)
	l, err := scanLead(row.Scan)
	if err == sql.ErrNoRows {
		return nil, generic.NotFound("lead", id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLeads returns the most recently registered leads.
func (s *Store) ListLeads(ctx context.Context, limit int) ([]leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryLeads(ctx, s.db,
		"SELECT "+leadColumns+" FROM leads ORDER BY created_at DESC LIMIT ?", limit)
}

// ListOpenLeads returns leads with a broker whose status is not terminal.
func (s *Store) ListOpenLeads(ctx context.Context) ([]leads.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := queryLeads(ctx, s.db,
		"SELECT "+leadColumns+" FROM leads WHERE broker_id IS NOT NULL ORDER BY created_at")
	if err != nil {
		return nil, err
	}

	open := all[:0]
	for _, l := range all {
		if !l.EffectiveStatus().IsTerminal() {
			open = append(open, l)
		}
	}
	return open, nil
}

// UpdateLeadStatus moves a lead to a new status and restarts its follow-up
// clock. Marking a delivered lead invalid reverses its delivery on the
// ledger. The reversal is kept if the status changes again later.
func (s *Store) UpdateLeadStatus(ctx context.Context, id string, status leads.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		res, err := sqlTx.ExecContext(ctx,
			"UPDATE leads SET status = ?, status_at = ? WHERE id = ?",
			string(status), formatTime(at), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update lead status: %w", err)
		}
		if err := requireAffected(res, "lead", id); err != nil {
			return err
		}
		if status != leads.StatusInvalid {
			return nil
		}
		return reverseDelivery(ctx, sqlTx, id, at)
	})
}

// reverseDelivery cancels the delivery of an invalid lead. Leads never
// delivered, or already reversed, are left alone.
func reverseDelivery(ctx context.Context, db execer, leadID string, at time.Time) error {
	delivery, ok, err := findByReference(ctx, db, generic.TxDelivery, leadID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	reversal := leads.DeliveryReversal(delivery, at)
	exists, err := keyExists(ctx, db, reversal.IdempotencyKey)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return appendTx(ctx, db, reversal)
}

func queryLeads(ctx context.Context, db execer, query string, args ...any) ([]leads.Lead, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var result []leads.Lead
	for rows.Next() {
		l, err := scanLead(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func scanLead(scan func(dest ...any) error) (leads.Lead, error) {
	var (
		l            leads.Lead
		source       sql.NullString
		category     string
		arrivalDate  sql.NullString
		deliveryDate sql.NullString
		brokerID     sql.NullString
		brokerName   sql.NullString
		status       sql.NullString
		statusAt     sql.NullString
		createdAt    string
	)
	err := scan(&l.ID, &l.Client, &source, &category, &arrivalDate, &deliveryDate,
		&brokerID, &brokerName, &status, &statusAt, &createdAt)
	if err != nil {
		return l, err
	}
	l.Source = source.String
	l.Category = leads.Category(category)
	l.ArrivalDate = parseNullDate(arrivalDate)
	l.DeliveryDate = parseNullDate(deliveryDate)
	l.BrokerID = brokerID.String
	l.BrokerName = brokerName.String
	l.Status = leads.Status(status.String)
	l.StatusAt = parseNullTime(statusAt)
	l.CreatedAt = parseTime(createdAt)
	return l, nil
}

func formatNullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(leads.DateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(leads.DateLayout, s.String)
	return t
}
