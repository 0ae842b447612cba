package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/bizledger/internal/events"
	"github.com/noah-isme/bizledger/internal/money"
	"github.com/noah-isme/bizledger/internal/obs"
	"github.com/noah-isme/bizledger/internal/store"
	"github.com/noah-isme/bizledger/internal/tenant"
)

var (
	// ErrEmployeeNotFound is returned when the employee does not exist in the caller's business.
	ErrEmployeeNotFound = errors.New("commission: employee not found")
	// ErrSaleNotFound is returned when a linked sale does not exist in the caller's business.
	ErrSaleNotFound = errors.New("commission: sale not found")
	// ErrDuplicateCommission is returned when the employee already has a commission for the sale.
	ErrDuplicateCommission = errors.New("commission: already recorded for this sale and employee")
)

// maxMarkBatch bounds one mark-as-paid request.
const maxMarkBatch = 500

// ErrBatchTooLarge is returned when a mark-as-paid request exceeds the batch limit.
var ErrBatchTooLarge = fmt.Errorf("commission: at most %d transactions per batch", maxMarkBatch)

// Filter narrows ListCommissions. Nil fields do not filter.
type Filter struct {
	BusinessID uuid.UUID
	EmployeeID *uuid.UUID
	SaleID     *uuid.UUID
	Paid       *bool
}

// Store persists commission transactions and reads employee configuration.
type Store interface {
	GetEmployee(ctx context.Context, businessID, employeeID uuid.UUID) (Employee, error)
	// SaleExists reports whether saleID belongs to businessID.
	SaleExists(ctx context.Context, businessID, saleID uuid.UUID) (bool, error)
	// InsertCommission returns store.ErrDuplicate when the employee already
	// has a transaction for the same sale.
	InsertCommission(ctx context.Context, t Transaction) error
	// ListCommissions returns matches oldest first.
	ListCommissions(ctx context.Context, f Filter) ([]Transaction, error)
	// MarkCommissionsPaid flags the unpaid transactions among ids and returns
	// how many changed. Already paid or unknown ids are skipped.
	MarkCommissionsPaid(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID, paidAt time.Time) (int, error)
}

// Service records commission transactions and settles them with employees.
type Service struct {
	Store  Store
	Events events.Emitter
	Logger zerolog.Logger
	Now    func() time.Time
}

// RecordInput is a commission-bearing amount attributed to an employee.
type RecordInput struct {
	EmployeeID uuid.UUID
	Total      money.Money
	ServiceRef *string
	SaleID     *uuid.UUID
}

// MarkResult reports a mark-as-paid batch.
type MarkResult struct {
	Requested int       `json:"requested"`
	Marked    int       `json:"marked"`
	PaidAt    time.Time `json:"paidAt"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Employee loads an employee of the caller's business.
func (s *Service) Employee(ctx context.Context, employeeID uuid.UUID) (Employee, error) {
	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return Employee{}, err
	}
	return s.employee(ctx, businessID, employeeID)
}

func (s *Service) employee(ctx context.Context, businessID, employeeID uuid.UUID) (Employee, error) {
	emp, err := s.Store.GetEmployee(ctx, businessID, employeeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Employee{}, fmt.Errorf("%w: %w", ErrEmployeeNotFound, err)
		}
		return Employee{}, fmt.Errorf("load employee: %w", err)
	}
	return emp, nil
}

// Record computes the split for in and stores an unpaid transaction. A linked
// sale must belong to the caller's business and carry no commission for the
// same employee yet.
func (s *Service) Record(ctx context.Context, in RecordInput) (Transaction, error) {
	ctx, span := otel.Tracer("commission.Service").Start(ctx, "CommissionService.Record")
	defer span.End()

	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return Transaction{}, err
	}
	emp, err := s.employee(ctx, businessID, in.EmployeeID)
	if err != nil {
		return Transaction{}, err
	}
	if in.SaleID != nil {
		if err := s.checkSaleLink(ctx, businessID, emp.ID, *in.SaleID); err != nil {
			return Transaction{}, err
		}
	}
	tx, err := NewTransaction(emp, in.Total, in.ServiceRef, in.SaleID, s.now())
	if err != nil {
		return Transaction{}, err
	}
	if err := s.Store.InsertCommission(ctx, tx); err != nil {
		span.RecordError(err)
		if errors.Is(err, store.ErrDuplicate) {
			return Transaction{}, fmt.Errorf("%w: %w", ErrDuplicateCommission, err)
		}
		return Transaction{}, fmt.Errorf("insert commission: %w", err)
	}
	span.SetAttributes(attribute.String("commission.id", tx.ID.String()))
	s.Logger.Info().
		Str("business_id", businessID.String()).
		Str("employee_id", emp.ID.String()).
		Str("commission", tx.CommissionAmount.String()).
		Str("house", tx.HouseAmount.String()).
		Msg("commission_recorded")
	s.emit(ctx, businessID, events.TopicCommissionRecorded, tx.ID, tx)
	return tx, nil
}

func (s *Service) checkSaleLink(ctx context.Context, businessID, employeeID, saleID uuid.UUID) error {
	ok, err := s.Store.SaleExists(ctx, businessID, saleID)
	if err != nil {
		return fmt.Errorf("load sale: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSaleNotFound, saleID)
	}
	existing, err := s.Store.ListCommissions(ctx, Filter{BusinessID: businessID, EmployeeID: &employeeID, SaleID: &saleID})
	if err != nil {
		return fmt.Errorf("list commissions: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateCommission, existing[0].ID)
	}
	return nil
}

// MarkPaid flags the given transactions as paid. Repeating a call, or passing
// already paid ids, changes nothing and reports zero newly marked.
func (s *Service) MarkPaid(ctx context.Context, ids []uuid.UUID) (MarkResult, error) {
	ctx, span := otel.Tracer("commission.Service").Start(ctx, "CommissionService.MarkPaid")
	defer span.End()

	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return MarkResult{}, err
	}
	unique := dedupe(ids)
	if len(unique) > maxMarkBatch {
		return MarkResult{}, ErrBatchTooLarge
	}
	res := MarkResult{Requested: len(unique), PaidAt: s.now()}
	if len(unique) == 0 {
		return res, nil
	}
	marked, err := s.Store.MarkCommissionsPaid(ctx, businessID, unique, res.PaidAt)
	if err != nil {
		span.RecordError(err)
		return MarkResult{}, fmt.Errorf("mark commissions paid: %w", err)
	}
	res.Marked = marked
	span.SetAttributes(attribute.Int("commission.requested", res.Requested), attribute.Int("commission.marked", marked))
	obs.Count(obs.CommissionsMarkedTotal, marked)
	s.Logger.Info().
		Str("business_id", businessID.String()).
		Int("requested", res.Requested).
		Int("marked", marked).
		Msg("commissions_marked_paid")
	if marked > 0 {
		s.emit(ctx, businessID, events.TopicCommissionPaid, uuid.New(), map[string]any{
			"ids":    unique,
			"marked": marked,
			"paidAt": res.PaidAt,
		})
	}
	return res, nil
}

// List returns the caller's commission transactions matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Transaction, error) {
	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return nil, err
	}
	f.BusinessID = businessID
	txs, err := s.Store.ListCommissions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	return txs, nil
}

// Summary totals an employee's earned, paid and outstanding commission.
func (s *Service) Summary(ctx context.Context, employeeID uuid.UUID) (Summary, error) {
	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return Summary{}, err
	}
	if _, err := s.employee(ctx, businessID, employeeID); err != nil {
		return Summary{}, err
	}
	txs, err := s.Store.ListCommissions(ctx, Filter{BusinessID: businessID, EmployeeID: &employeeID})
	if err != nil {
		return Summary{}, fmt.Errorf("list commissions: %w", err)
	}
	return Summarize(employeeID, txs), nil
}

func (s *Service) emit(ctx context.Context, businessID uuid.UUID, topic string, aggregateID uuid.UUID, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, businessID, topic, aggregateID, payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Msg("emit_event_failed")
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
