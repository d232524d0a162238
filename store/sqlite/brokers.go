package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lead-engine/distribution"
	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/leads"
)

// =============================================================================
// BROKER STORE
// =============================================================================

// Broker is a broker record with production and the balances written by the
// last confirmed distribution run.
type Broker struct {
	ID          string
	Name        string
	Phone       string
	ProductionA decimal.Decimal
	ProductionB decimal.Decimal
	BalanceA    int
	BalanceB    int
	CreatedAt   time.Time
}

// Record is the engine's view of the broker.
func (b Broker) Record() distribution.BrokerRecord {
	return distribution.BrokerRecord{
		ID:          b.ID,
		Name:        b.Name,
		ProductionA: b.ProductionA,
		ProductionB: b.ProductionB,
	}
}

// Balance is the fulfillment view of the broker.
func (b Broker) Balance() leads.BrokerBalance {
	return leads.BrokerBalance{
		BrokerID:   b.ID,
		BrokerName: b.Name,
		BalanceA:   b.BalanceA,
		BalanceB:   b.BalanceB,
	}
}

const brokerColumns = `id, name, phone, production_a, production_b, balance_a, balance_b, created_at`

// CreateBroker inserts a new broker.
func (s *Store) CreateBroker(ctx context.Context, b Broker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO brokers (`+brokerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, nullString(b.Phone),
		b.ProductionA.String(), b.ProductionB.String(),
		b.BalanceA, b.BalanceB,
		formatTime(b.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("broker %s: %w", b.ID, generic.ErrDuplicateEntity)
	}
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}
	return nil
}

// UpdateBrokerContact changes name and phone. Production and balances are
// left untouched.
func (s *Store) UpdateBrokerContact(ctx context.Context, id, name, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE brokers SET name = ?, phone = ? WHERE id = ?",
		name, nullString(phone), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update broker: %w", err)
	}
	return requireAffected(res, "broker", id)
}

// GetBroker retrieves a broker by ID.
func (s *Store) GetBroker(ctx context.Context, id string) (*Broker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getBroker(ctx, s.db, id)
}

func getBroker(ctx context.Context, db execer, id string) (*Broker, error) {
	row := db.QueryRowContext(ctx, "SELECT "+brokerColumns+" FROM brokers WHERE id = ?", id)
	b, err := scanBroker(row.Scan)
	if err == sql.ErrNoRows {
		return nil, generic.NotFound("broker", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBrokers returns all brokers ordered by name.
func (s *Store) ListBrokers(ctx context.Context) ([]Broker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listBrokers(ctx, s.db)
}

func listBrokers(ctx context.Context, db execer) ([]Broker, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+brokerColumns+" FROM brokers ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list brokers: %w", err)
	}
	defer rows.Close()

	var brokers []Broker
	for rows.Next() {
		b, err := scanBroker(rows.Scan)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, b)
	}
	return brokers, rows.Err()
}

// DeleteBroker removes a broker. Ledger entries stay.
func (s *Store) DeleteBroker(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM brokers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete broker: %w", err)
	}
	return requireAffected(res, "broker", id)
}

// AddProduction adds a sale amount to the broker's production in one
// category and returns the updated broker.
func (s *Store) AddProduction(ctx context.Context, id string, category leads.Category, amount decimal.Decimal) (*Broker, error) {
	if !amount.IsPositive() {
		return nil, generic.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *Broker
	err := s.inTx(ctx, func(sqlTx *sql.Tx) error {
		b, err := getBroker(ctx, sqlTx, id)
		if err != nil {
			return err
		}

		var (
			column string
			value  decimal.Decimal
		)
		switch category {
		case leads.CategoryA:
			b.ProductionA = b.ProductionA.Add(amount)
			column, value = "production_a", b.ProductionA
		case leads.CategoryB:
			b.ProductionB = b.ProductionB.Add(amount)
			column, value = "production_b", b.ProductionB
		default:
			return fmt.Errorf("%w: unknown category %q", leads.ErrInvalidLead, category)
		}

		if _, err := sqlTx.ExecContext(ctx, "UPDATE brokers SET "+column+" = ? WHERE id = ?", value.String(), id); err != nil {
			return fmt.Errorf("failed to update production: %w", err)
		}
		updated = b
		return nil
	})
	return updated, err
}

func scanBroker(scan func(dest ...any) error) (Broker, error) {
	var (
		b           Broker
		phone       sql.NullString
		productionA string
		productionB string
		createdAt   string
	)
	if err := scan(&b.ID, &b.Name, &phone, &productionA, &productionB, &b.BalanceA, &b.BalanceB, &createdAt); err != nil {
		return b, err
	}
	b.Phone = phone.String
	b.ProductionA = generic.MustParseDecimal(productionA)
	b.ProductionB = generic.MustParseDecimal(productionB)
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}
