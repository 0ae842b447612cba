package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/events"
	"github.com/noah-isme/bizledger/internal/ledger"
	"github.com/noah-isme/bizledger/internal/money"
	"github.com/noah-isme/bizledger/internal/obs"
	"github.com/noah-isme/bizledger/internal/pricing"
	"github.com/noah-isme/bizledger/internal/refno"
	"github.com/noah-isme/bizledger/internal/store"
	"github.com/noah-isme/bizledger/internal/tenant"
)

// Draft is everything written by a checkout, persisted as one unit.
type Draft struct {
	Sale       Sale
	Payment    *Payment
	Commission *commission.Transaction
}

// BalanceUpdate appends a payment and moves the sale balance in one unit,
// provided the sale is still at ExpectedVersion.
type BalanceUpdate struct {
	BusinessID      uuid.UUID
	SaleID          uuid.UUID
	ExpectedVersion int64
	Balance         ledger.Balance
	Payment         Payment
	UpdatedAt       time.Time
}

// Store persists sales and their payments.
type Store interface {
	// CreateSale writes header, lines, optional payment and optional
	// commission atomically. A taken sale number yields store.ErrReferenceConflict.
	CreateSale(ctx context.Context, d Draft) error
	GetSale(ctx context.Context, businessID, saleID uuid.UUID) (Sale, error)
	ListPayments(ctx context.Context, businessID, saleID uuid.UUID) ([]Payment, error)
	// AppendPayment yields store.ErrStaleBalance when the version moved.
	AppendPayment(ctx context.Context, u BalanceUpdate) error
}

// Employees resolves commission configuration for the attributed employee.
type Employees interface {
	GetEmployee(ctx context.Context, businessID, employeeID uuid.UUID) (commission.Employee, error)
}

// Locker serialises work on a key across service replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service orchestrates checkout and follow-up payments.
type Service struct {
	Store     Store
	Employees Employees
	Numbers   *refno.Generator
	Locker    Locker
	Events    events.Emitter
	Logger    zerolog.Logger

	Currency          string
	LockTTL           time.Duration
	ReferenceAttempts int
	PaymentRetries    int
	AllowEmptyCart    bool
	Now               func() time.Time
}

// CheckoutInput is a cart plus the tender given at the counter.
type CheckoutInput struct {
	CustomerID *uuid.UUID
	EmployeeID *uuid.UUID
	Lines      []pricing.Line
	// Tendered nil means paid in full; zero leaves the sale pending.
	Tendered         *money.Money
	PaymentMethod    string
	PaymentReference *string
	Notes            *string
}

// CheckoutResult is what a checkout wrote.
type CheckoutResult struct {
	Sale       Sale                    `json:"sale"`
	Payment    *Payment                `json:"payment,omitempty"`
	Commission *commission.Transaction `json:"commission,omitempty"`
}

// PaymentInput is a follow-up tender against an existing sale.
type PaymentInput struct {
	Amount    money.Money
	Method    string
	Reference *string
}

// PaymentResult is the recorded payment and the sale after it.
type PaymentResult struct {
	Sale    Sale    `json:"sale"`
	Payment Payment `json:"payment"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Quote prices a cart without persisting anything.
func (s *Service) Quote(_ context.Context, lines []pricing.Line) (pricing.Summary, error) {
	summary, err := pricing.Compute(lines)
	if err != nil {
		return pricing.Summary{}, err
	}
	if summary.Total.IsNegative() {
		return pricing.Summary{}, pricing.ErrNegativeTotalRejected
	}
	return summary, nil
}

// Checkout prices the cart, settles the tender, issues a sale number and
// persists the sale with its first payment and commission in one unit.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (result CheckoutResult, err error) {
	ctx, span := otel.Tracer("sale.Service").Start(ctx, "SaleService.Checkout")
	defer span.End()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if store.IsConflict(err) {
				outcome = "conflict"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		obs.CountVec(obs.SaleCheckoutTotal, outcome)
	}()

	if s.Store == nil || s.Numbers == nil {
		return CheckoutResult{}, errors.New("sale: service not configured")
	}
	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(in.Lines) == 0 && !s.AllowEmptyCart {
		return CheckoutResult{}, ErrEmptyCart
	}
	method, err := ParseMethod(in.PaymentMethod)
	if err != nil {
		return CheckoutResult{}, err
	}
	summary, err := s.Quote(ctx, in.Lines)
	if err != nil {
		return CheckoutResult{}, err
	}
	balance, initial, err := ledger.Open(summary.Total, in.Tendered)
	if err != nil {
		return CheckoutResult{}, err
	}

	now := s.now()
	sale := Sale{
		ID:             uuid.New(),
		BusinessID:     businessID,
		CustomerID:     in.CustomerID,
		EmployeeID:     in.EmployeeID,
		Currency:       s.Currency,
		Lines:          linesFrom(summary.Lines),
		Subtotal:       summary.Subtotal,
		TaxAmount:      summary.Tax,
		DiscountAmount: summary.Discount,
		TotalAmount:    summary.Total,
		PaymentMethod:  method,
		Notes:          trimmed(in.Notes),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}.withBalance(balance)
	if err := sale.Validate(); err != nil {
		return CheckoutResult{}, err
	}
	draft := Draft{Sale: sale}

	if initial.IsPositive() {
		p, err := NewPayment(businessID, sale.ID, initial, method, in.PaymentReference, now)
		if err != nil {
			return CheckoutResult{}, err
		}
		draft.Payment = &p
	}
	if in.EmployeeID != nil {
		tx, err := s.commissionFor(ctx, businessID, *in.EmployeeID, sale)
		if err != nil {
			return CheckoutResult{}, err
		}
		draft.Commission = &tx
	}

	number, err := s.Numbers.Issue(ctx, refno.KindSale, s.ReferenceAttempts, func(ctx context.Context, candidate string) error {
		draft.Sale.SaleNumber = candidate
		err := s.Store.CreateSale(ctx, draft)
		if errors.Is(err, store.ErrReferenceConflict) {
			obs.Count(obs.ReferenceConflictsTotal, 1)
			s.Logger.Warn().Str("sale_number", candidate).Msg("sale_number_conflict")
		}
		return err
	})
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("persist sale: %w", err)
	}
	draft.Sale.SaleNumber = number

	span.SetAttributes(
		attribute.String("sale.id", sale.ID.String()),
		attribute.String("sale.number", number),
		attribute.String("sale.status", string(draft.Sale.PaymentStatus)),
	)
	s.Logger.Info().
		Str("business_id", businessID.String()).
		Str("sale_id", sale.ID.String()).
		Str("sale_number", number).
		Str("total", sale.TotalAmount.String()).
		Str("status", string(sale.PaymentStatus)).
		Msg("sale_checked_out")

	s.emitCheckout(ctx, draft)
	return CheckoutResult{Sale: draft.Sale, Payment: draft.Payment, Commission: draft.Commission}, nil
}

func (s *Service) commissionFor(ctx context.Context, businessID, employeeID uuid.UUID, sale Sale) (commission.Transaction, error) {
	if s.Employees == nil {
		return commission.Transaction{}, errors.New("sale: employee source not configured")
	}
	emp, err := s.Employees.GetEmployee(ctx, businessID, employeeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return commission.Transaction{}, fmt.Errorf("%w: %w", commission.ErrEmployeeNotFound, err)
		}
		return commission.Transaction{}, fmt.Errorf("load employee: %w", err)
	}
	var ref *string
	if len(sale.Lines) > 0 && strings.TrimSpace(sale.Lines[0].ServiceRef) != "" {
		v := sale.Lines[0].ServiceRef
		ref = &v
	}
	saleID := sale.ID
	return commission.NewTransaction(emp, sale.TotalAmount, ref, &saleID, sale.CreatedAt)
}

// RecordPayment applies a follow-up payment to a sale. Concurrent payments on
// the same sale are serialised by the locker; a version conflict that slips
// through is retried against a fresh read.
func (s *Service) RecordPayment(ctx context.Context, saleID uuid.UUID, in PaymentInput) (result PaymentResult, err error) {
	ctx, span := otel.Tracer("sale.Service").Start(ctx, "SaleService.RecordPayment")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", saleID.String()))
	defer func() {
		outcome, status := "ok", string(result.Sale.PaymentStatus)
		if err != nil {
			outcome = "error"
			if store.IsConflict(err) {
				outcome = "conflict"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		obs.CountVec(obs.PaymentRecordedTotal, outcome, status)
	}()

	if s.Store == nil {
		return PaymentResult{}, errors.New("sale: service not configured")
	}
	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return PaymentResult{}, err
	}
	if !in.Amount.IsPositive() {
		return PaymentResult{}, fmt.Errorf("%w: got %s", ledger.ErrNonPositivePayment, in.Amount)
	}
	method, err := ParseMethod(in.Method)
	if err != nil {
		return PaymentResult{}, err
	}

	var before Sale
	apply := func(ctx context.Context) error {
		for attempt := 0; ; attempt++ {
			current, err := s.get(ctx, businessID, saleID)
			if err != nil {
				return err
			}
			next, err := current.Balance().Apply(in.Amount)
			if err != nil {
				return err
			}
			now := s.now()
			payment, err := NewPayment(businessID, saleID, in.Amount, method, in.Reference, now)
			if err != nil {
				return err
			}
			err = s.Store.AppendPayment(ctx, BalanceUpdate{
				BusinessID:      businessID,
				SaleID:          saleID,
				ExpectedVersion: current.Version,
				Balance:         next,
				Payment:         payment,
				UpdatedAt:       now,
			})
			if errors.Is(err, store.ErrStaleBalance) && attempt < s.PaymentRetries {
				obs.Count(obs.StaleBalanceRetriesTotal, 1)
				s.Logger.Warn().Str("sale_id", saleID.String()).Int("attempt", attempt+1).Msg("stale_balance_retry")
				continue
			}
			if err != nil {
				return fmt.Errorf("append payment: %w", err)
			}
			before = current
			updated := current.withBalance(next)
			updated.Version = current.Version + 1
			updated.UpdatedAt = now
			result = PaymentResult{Sale: updated, Payment: payment}
			return nil
		}
	}

	if s.Locker != nil {
		key := tenant.PrefixKey(businessID.String(), "sale-lock:"+saleID.String())
		waitStart := time.Now()
		err = s.Locker.WithLock(ctx, key, s.LockTTL, func(ctx context.Context) error {
			obs.Observe(obs.LockWaitMillis, obs.DurationMillis(time.Since(waitStart)))
			return apply(ctx)
		})
	} else {
		err = apply(ctx)
	}
	if err != nil {
		return PaymentResult{}, err
	}

	s.Logger.Info().
		Str("business_id", businessID.String()).
		Str("sale_id", saleID.String()).
		Str("amount", in.Amount.String()).
		Str("balance_due", result.Sale.BalanceDue.String()).
		Str("status", string(result.Sale.PaymentStatus)).
		Msg("payment_recorded")

	s.emit(ctx, businessID, events.TopicPaymentRecorded, saleID, result.Payment)
	if before.PaymentStatus != ledger.StatusCompleted && result.Sale.PaymentStatus == ledger.StatusCompleted {
		s.emit(ctx, businessID, events.TopicSaleCompleted, saleID, completedPayload(result.Sale))
	}
	return result, nil
}

// Get returns a sale of the caller's business.
func (s *Service) Get(ctx context.Context, saleID uuid.UUID) (Sale, error) {
	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return Sale{}, err
	}
	return s.get(ctx, businessID, saleID)
}

func (s *Service) get(ctx context.Context, businessID, saleID uuid.UUID) (Sale, error) {
	sale, err := s.Store.GetSale(ctx, businessID, saleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Sale{}, fmt.Errorf("%w: %w", ErrSaleNotFound, err)
		}
		return Sale{}, fmt.Errorf("load sale: %w", err)
	}
	return sale, nil
}

// Payments returns the payment history of a sale, oldest first.
func (s *Service) Payments(ctx context.Context, saleID uuid.UUID) ([]Payment, error) {
	businessID, err := tenant.BusinessID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.get(ctx, businessID, saleID); err != nil {
		return nil, err
	}
	payments, err := s.Store.ListPayments(ctx, businessID, saleID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (s *Service) emitCheckout(ctx context.Context, d Draft) {
	sale := d.Sale
	s.emit(ctx, sale.BusinessID, events.TopicSaleCreated, sale.ID, map[string]any{
		"saleId":        sale.ID,
		"saleNumber":    sale.SaleNumber,
		"totalAmount":   sale.TotalAmount,
		"paymentStatus": sale.PaymentStatus,
	})
	if d.Payment != nil {
		s.emit(ctx, sale.BusinessID, events.TopicPaymentRecorded, sale.ID, d.Payment)
	}
	if sale.PaymentStatus == ledger.StatusCompleted {
		s.emit(ctx, sale.BusinessID, events.TopicSaleCompleted, sale.ID, completedPayload(sale))
	}
	if d.Commission != nil {
		s.emit(ctx, sale.BusinessID, events.TopicCommissionRecorded, d.Commission.ID, d.Commission)
	}
}

func completedPayload(sale Sale) map[string]any {
	return map[string]any{
		"saleId":      sale.ID,
		"saleNumber":  sale.SaleNumber,
		"totalAmount": sale.TotalAmount,
		"amountPaid":  sale.AmountPaid,
	}
}

// emit publishes after commit; failures are logged since the write already stands.
func (s *Service) emit(ctx context.Context, businessID uuid.UUID, topic string, aggregateID uuid.UUID, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, businessID, topic, aggregateID, payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Str("aggregate_id", aggregateID.String()).Msg("emit_event_failed")
	}
}
