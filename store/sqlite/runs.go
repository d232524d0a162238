package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/lead-engine/generic"
	"github.com/warp/lead-engine/leads"
)

// =============================================================================
// DISTRIBUTION RUNS
// =============================================================================

// DistributionRun is a confirmed distribution.
type DistributionRun struct {
	ID          string
	StockA      int
	StockB      int
	ResidualA   int
	ResidualB   int
	PolicyJSON  string
	Fingerprint string
	ConfirmedBy string
	ConfirmedAt time.Time
	Allocations []Allocation
}

// Residual returns the leftover for one category.
func (r DistributionRun) Residual(c leads.Category) int {
	if c == leads.CategoryA {
		return r.ResidualA
	}
	return r.ResidualB
}

// Allocation is one broker's share of a run.
type Allocation struct {
	BrokerID   string
	BrokerName string
	AllocatedA int
	AllocatedB int
	Rationale  []string
}

const runColumns = `id, stock_a, stock_b, residual_a, residual_b, policy_json, fingerprint, confirmed_by, confirmed_at`

// SaveRun persists a confirmed run in one SQL transaction:
//   - the run and its allocations
//   - every broker balance set to its allocation; brokers without an
//     allocation get zero
//   - the grant transactions on the ledger
func (s *Store) SaveRun(ctx context.Context, run DistributionRun, grants []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		return saveRun(ctx, sqlTx, run, grants)
	})
}

// RunBuilder computes a run from the brokers as they are inside the
// confirming transaction. An error aborts the confirm.
type RunBuilder func(brokers []Broker) (DistributionRun, []generic.Transaction, error)

// ConfirmRun reads the brokers and saves the run built from them in one
// transaction. Production writes and cycle closings wait until it commits.
func (s *Store) ConfirmRun(ctx context.Context, build RunBuilder) (DistributionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var run DistributionRun
	err := s.inTx(ctx, func(sqlTx *sql.Tx) error {
		brokers, err := listBrokers(ctx, sqlTx)
		if err != nil {
			return err
		}
		built, grants, err := build(brokers)
		if err != nil {
			return err
		}
		if err := saveRun(ctx, sqlTx, built, grants); err != nil {
			return err
		}
		run = built
		return nil
	})
	if err != nil {
		return DistributionRun{}, err
	}
	return run, nil
}

func saveRun(ctx context.Context, sqlTx *sql.Tx, run DistributionRun, grants []generic.Transaction) error {
	rationale := make([]string, len(run.Allocations))
	for i, a := range run.Allocations {
		data, err := json.Marshal(a.Rationale)
		if err != nil {
			return fmt.Errorf("failed to marshal rationale: %w", err)
		}
		rationale[i] = string(data)
	}

	_, err := sqlTx.ExecContext(ctx, `INSERT INTO distribution_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StockA, run.StockB, run.ResidualA, run.ResidualB,
		run.PolicyJSON, run.Fingerprint, nullString(run.ConfirmedBy), formatTime(run.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx, "UPDATE brokers SET balance_a = 0, balance_b = 0"); err != nil {
		return fmt.Errorf("failed to reset balances: %w", err)
	}

	for i, a := range run.Allocations {
		_, err := sqlTx.ExecContext(ctx, `INSERT INTO run_allocations
			(run_id, position, broker_id, broker_name, allocated_a, allocated_b, rationale_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, a.BrokerID, a.BrokerName, a.AllocatedA, a.AllocatedB, rationale[i],
		)
		if err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}

		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE brokers SET balance_a = ?, balance_b = ? WHERE id = ?",
			a.AllocatedA, a.AllocatedB, a.BrokerID,
		); err != nil {
			return fmt.Errorf("failed to write balance: %w", err)
		}
	}

	return appendBatch(ctx, sqlTx, grants)
}

// GetRun retrieves a run with its allocations.
func (s *Store) GetRun(ctx context.Context, id string) (*DistributionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getRun(ctx, s.db, id)
}

func getRun(ctx context.Context, db execer, id string) (*DistributionRun, error) {
	row := db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM distribution_runs WHERE id = ?", id)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, generic.NotFound("distribution run", id)
	}
	if err != nil {
		return nil, err
	}

	run.Allocations, err = loadAllocations(ctx, db, id)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first, without allocations.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]DistributionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM distribution_runs ORDER BY confirmed_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []DistributionRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent confirmed run, or nil when none exists.
func (s *Store) LastRun(ctx context.Context) (*DistributionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM distribution_runs ORDER BY confirmed_at DESC LIMIT 1")
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// AssignResidual hands leftover leads of a run to a broker: the run residual
// goes down, the broker balance goes up, and adjustment is appended to the
// ledger. Returns the updated run.
func (s *Store) AssignResidual(ctx context.Context, runID, brokerID string, category leads.Category, quantity int, adjustment generic.Transaction) (*DistributionRun, error) {
	if quantity <= 0 {
		return nil, generic.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *DistributionRun
	err := s.inTx(ctx, func(sqlTx *sql.Tx) error {
		run, err := getRun(ctx, sqlTx, runID)
		if err != nil {
			return err
		}
		if _, err := getBroker(ctx, sqlTx, brokerID); err != nil {
			return err
		}

		available := run.Residual(category)
		if available < quantity {
			return &generic.InsufficientResidualError{
				RunID:     runID,
				Resource:  category,
				Available: available,
				Requested: quantity,
			}
		}

		residualColumn, balanceColumn := "residual_b", "balance_b"
		if category == leads.CategoryA {
			residualColumn, balanceColumn = "residual_a", "balance_a"
			run.ResidualA -= quantity
		} else {
			run.ResidualB -= quantity
		}

		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE distribution_runs SET "+residualColumn+" = "+residualColumn+" - ? WHERE id = ?",
			quantity, runID,
		); err != nil {
			return fmt.Errorf("failed to update residual: %w", err)
		}
		if _, err := sqlTx.ExecContext(ctx,
			"UPDATE brokers SET "+balanceColumn+" = "+balanceColumn+" + ? WHERE id = ?",
			quantity, brokerID,
		); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		if err := appendTx(ctx, sqlTx, adjustment); err != nil {
			return err
		}

		updated = run
		return nil
	})
	return updated, err
}

func loadAllocations(ctx context.Context, db execer, runID string) ([]Allocation, error) {
	rows, err := db.QueryContext(ctx, `SELECT broker_id, broker_name, allocated_a, allocated_b, rationale_json
		FROM run_allocations WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	defer rows.Close()

	var allocations []Allocation
	for rows.Next() {
		var (
			a         Allocation
			rationale sql.NullString
		)
		if err := rows.Scan(&a.BrokerID, &a.BrokerName, &a.AllocatedA, &a.AllocatedB, &rationale); err != nil {
			return nil, err
		}
		if rationale.Valid && rationale.String != "" {
			if err := json.Unmarshal([]byte(rationale.String), &a.Rationale); err != nil {
				return nil, fmt.Errorf("failed to decode rationale: %w", err)
			}
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func scanRun(scan func(dest ...any) error) (DistributionRun, error) {
	var (
		run         DistributionRun
		confirmedBy sql.NullString
		confirmedAt string
	)
	err := scan(&run.ID, &run.StockA, &run.StockB, &run.ResidualA, &run.ResidualB,
		&run.PolicyJSON, &run.Fingerprint, &confirmedBy, &confirmedAt)
	if err != nil {
		return run, err
	}
	run.ConfirmedBy = confirmedBy.String
	run.ConfirmedAt = parseTime(confirmedAt)
	return run, nil
}

// =============================================================================
// CYCLE CLOSINGS
// =============================================================================

// CycleClosing is the production a broker ended a cycle with.
type CycleClosing struct {
	ID          string
	BrokerID    string
	BrokerName  string
	ProductionA decimal.Decimal
	ProductionB decimal.Decimal
	Reference   string
	ClosedAt    time.Time
}

// CloseCycle writes one history row per broker with its final production,
// then resets every production to zero. Balances are kept.
func (s *Store) CloseCycle(ctx context.Context, reference string, closedAt time.Time) ([]CycleClosing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closings []CycleClosing
	err := s.inTx(ctx, func(sqlTx *sql.Tx) error {
		brokers, err := listBrokers(ctx, sqlTx)
		if err != nil {
			return err
		}

		for _, b := range brokers {
			c := CycleClosing{
				ID:          uuid.NewString(),
				BrokerID:    b.ID,
				BrokerName:  b.Name,
				ProductionA: b.ProductionA,
				ProductionB: b.ProductionB,
				Reference:   reference,
				ClosedAt:    closedAt,
			}
			_, err := sqlTx.ExecContext(ctx, `INSERT INTO cycle_closings
				(id, broker_id, broker_name, production_a, production_b, reference, closed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.BrokerID, c.BrokerName, c.ProductionA.String(), c.ProductionB.String(),
				nullString(c.Reference), formatTime(c.ClosedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to write cycle closing: %w", err)
			}
			closings = append(closings, c)
		}

		if _, err := sqlTx.ExecContext(ctx, "UPDATE brokers SET production_a = '0', production_b = '0'"); err != nil {
			return fmt.Errorf("failed to reset production: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closings, nil
}

// ListCycleClosings returns closing rows newest first.
func (s *Store) ListCycleClosings(ctx context.Context, limit int) ([]CycleClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, broker_id, broker_name, production_a, production_b, reference, closed_at
		FROM cycle_closings ORDER BY closed_at DESC, broker_name LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle closings: %w", err)
	}
	defer rows.Close()

	var closings []CycleClosing
	for rows.Next() {
		var (
			c           CycleClosing
			productionA string
			productionB string
			reference   sql.NullString
			closedAt    string
		)
		if err := rows.Scan(&c.ID, &c.BrokerID, &c.BrokerName, &productionA, &productionB, &reference, &closedAt); err != nil {
			return nil, err
		}
		c.ProductionA = generic.MustParseDecimal(productionA)
		c.ProductionB = generic.MustParseDecimal(productionB)
		c.Reference = reference.String
		c.ClosedAt = parseTime(closedAt)
		closings = append(closings, c)
	}
	return closings, rows.Err()
}
