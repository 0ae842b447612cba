package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/events"
	"github.com/noah-isme/bizledger/internal/money"
)

const commissionColumns = `id, business_id, employee_id, sale_id, service_ref,
    total_amount, commission_amount, house_amount, is_commission_paid, paid_at, created_at`

// GetEmployee implements commission.Store and sale.Employees.
func (s *Store) GetEmployee(ctx context.Context, businessID, employeeID uuid.UUID) (commission.Employee, error) {
	var (
		e          commission.Employee
		kind       string
		bps, fixed int64
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, business_id, name, commission_type, commission_bps, fixed_commission
FROM employees
WHERE business_id = $1 AND id = $2`, businessID, employeeID).Scan(
		&e.ID, &e.BusinessID, &e.Name, &kind, &bps, &fixed,
	)
	if err != nil {
		return commission.Employee{}, mapErr(err)
	}
	if e.CommissionType, err = commission.ParseType(kind); err != nil {
		return commission.Employee{}, err
	}
	e.CommissionPercentage = money.FromBasisPoints(bps)
	e.FixedCommission = money.FromMinor(fixed)
	return e, nil
}

// PutEmployee upserts an employee's commission configuration.
func (s *Store) PutEmployee(ctx context.Context, e commission.Employee) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO employees (id, business_id, name, commission_type, commission_bps, fixed_commission)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, commission_type = EXCLUDED.commission_type,
    commission_bps = EXCLUDED.commission_bps, fixed_commission = EXCLUDED.fixed_commission`,
		e.ID, e.BusinessID, e.Name, string(e.CommissionType),
		money.BasisPoints(e.CommissionPercentage), e.FixedCommission.MinorUnits(),
	)
	if err != nil {
		return fmt.Errorf("upsert employee: %w", mapErr(err))
	}
	return nil
}

// SaleExists implements commission.Store.
func (s *Store) SaleExists(ctx context.Context, businessID, saleID uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sales WHERE business_id = $1 AND id = $2)`,
		businessID, saleID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check sale: %w", err)
	}
	return ok, nil
}

// InsertCommission implements commission.Store.
func (s *Store) InsertCommission(ctx context.Context, t commission.Transaction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return insertCommission(ctx, tx, t)
	})
}

func insertCommission(ctx context.Context, tx pgx.Tx, t commission.Transaction) error {
	_, err := tx.Exec(ctx, `INSERT INTO commission_transactions (`+commissionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.BusinessID, t.EmployeeID, pgUUID(t.SaleID), t.ServiceRef,
		t.TotalAmount.MinorUnits(), t.CommissionAmount.MinorUnits(), t.HouseAmount.MinorUnits(),
		t.IsCommissionPaid, t.PaidAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert commission: %w", mapErr(err))
	}
	return nil
}

// commissionQuery builds the filtered select for f.
func commissionQuery(f commission.Filter) (string, []any) {
	where := []string{"business_id = $1"}
	args := []any{f.BusinessID}
	if f.EmployeeID != nil {
		args = append(args, *f.EmployeeID)
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if f.SaleID != nil {
		args = append(args, *f.SaleID)
		where = append(where, fmt.Sprintf("sale_id = $%d", len(args)))
	}
	if f.Paid != nil {
		args = append(args, *f.Paid)
		where = append(where, fmt.Sprintf("is_commission_paid = $%d", len(args)))
	}
	sql := "SELECT " + commissionColumns + " FROM commission_transactions WHERE " +
		strings.Join(where, " AND ") + " ORDER BY created_at, id"
	return sql, args
}

// ListCommissions implements commission.Store.
func (s *Store) ListCommissions(ctx context.Context, f commission.Filter) ([]commission.Transaction, error) {
	sql, args := commissionQuery(f)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query commissions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (commission.Transaction, error) {
		var (
			t                  commission.Transaction
			saleID             pgtype.UUID
			total, comm, house int64
		)
		if err := row.Scan(&t.ID, &t.BusinessID, &t.EmployeeID, &saleID, &t.ServiceRef,
			&total, &comm, &house, &t.IsCommissionPaid, &t.PaidAt, &t.CreatedAt); err != nil {
			return commission.Transaction{}, err
		}
		t.SaleID = uuidPtr(saleID)
		t.TotalAmount = money.FromMinor(total)
		t.CommissionAmount = money.FromMinor(comm)
		t.HouseAmount = money.FromMinor(house)
		return t, nil
	})
}

// MarkCommissionsPaid implements commission.Store. Rows already paid keep
// their original paid_at.
func (s *Store) MarkCommissionsPaid(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID, paidAt time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE commission_transactions
SET is_commission_paid = TRUE, paid_at = $3
WHERE business_id = $1 AND id = ANY($2::uuid[]) AND NOT is_commission_paid`,
		businessID, raw, paidAt)
	if err != nil {
		return 0, fmt.Errorf("mark commissions paid: %w", mapErr(err))
	}
	return int(tag.RowsAffected()), nil
}

// InsertDomainEvent implements events.EventStore.
func (s *Store) InsertDomainEvent(ctx context.Context, e events.Event) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO domain_events (id, business_id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.BusinessID, e.Topic, e.AggregateID, []byte(payload), e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert domain event: %w", mapErr(err))
	}
	return nil
}
