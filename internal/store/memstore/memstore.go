// Package memstore keeps sales, payments, commissions and events in process
// memory with the same conflict semantics as the Postgres store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/events"
	"github.com/noah-isme/bizledger/internal/sale"
	"github.com/noah-isme/bizledger/internal/store"
)

type numberKey struct {
	business uuid.UUID
	number   string
}

// Store is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	sales       map[uuid.UUID]sale.Sale
	numbers     map[numberKey]uuid.UUID
	payments    map[uuid.UUID][]sale.Payment
	employees   map[uuid.UUID]commission.Employee
	commissions []commission.Transaction
	events      []events.Event
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sales:     make(map[uuid.UUID]sale.Sale),
		numbers:   make(map[numberKey]uuid.UUID),
		payments:  make(map[uuid.UUID][]sale.Payment),
		employees: make(map[uuid.UUID]commission.Employee),
	}
}

// Ping reports readiness.
func (s *Store) Ping(context.Context) error { return nil }

// PutEmployee inserts or replaces an employee's commission configuration.
func (s *Store) PutEmployee(e commission.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

// CreateSale implements sale.Store.
func (s *Store) CreateSale(ctx context.Context, d sale.Draft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := numberKey{business: d.Sale.BusinessID, number: d.Sale.SaleNumber}
	if _, taken := s.numbers[key]; taken {
		return store.ErrReferenceConflict
	}
	s.numbers[key] = d.Sale.ID
	s.sales[d.Sale.ID] = cloneSale(d.Sale)
	if d.Payment != nil {
		s.payments[d.Sale.ID] = append(s.payments[d.Sale.ID], *d.Payment)
	}
	if d.Commission != nil {
		s.commissions = append(s.commissions, *d.Commission)
	}
	return nil
}

// GetSale implements sale.Store.
func (s *Store) GetSale(ctx context.Context, businessID, saleID uuid.UUID) (sale.Sale, error) {
	if err := ctx.Err(); err != nil {
		return sale.Sale{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.sales[saleID]
	if !ok || out.BusinessID != businessID {
		return sale.Sale{}, store.ErrNotFound
	}
	return cloneSale(out), nil
}

// ListPayments implements sale.Store.
func (s *Store) ListPayments(ctx context.Context, businessID, saleID uuid.UUID) ([]sale.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.payments[saleID]
	out := make([]sale.Payment, 0, len(src))
	for _, p := range src {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	return out, nil
}

// AppendPayment implements sale.Store.
func (s *Store) AppendPayment(ctx context.Context, u sale.BalanceUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sales[u.SaleID]
	if !ok || current.BusinessID != u.BusinessID {
		return store.ErrNotFound
	}
	if current.Version != u.ExpectedVersion {
		return store.ErrStaleBalance
	}
	current.AmountPaid = u.Balance.Paid
	current.BalanceDue = u.Balance.Due
	current.PaymentStatus = u.Balance.Status
	current.Version++
	current.UpdatedAt = u.UpdatedAt
	s.sales[u.SaleID] = current
	s.payments[u.SaleID] = append(s.payments[u.SaleID], u.Payment)
	return nil
}

// GetEmployee implements commission.Store.
func (s *Store) GetEmployee(ctx context.Context, businessID, employeeID uuid.UUID) (commission.Employee, error) {
	if err := ctx.Err(); err != nil {
		return commission.Employee{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[employeeID]
	if !ok || e.BusinessID != businessID {
		return commission.Employee{}, store.ErrNotFound
	}
	return e, nil
}

// InsertCommission implements commission.Store.
func (s *Store) InsertCommission(ctx context.Context, t commission.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.SaleID != nil {
		for _, c := range s.commissions {
			if c.SaleID != nil && *c.SaleID == *t.SaleID && c.EmployeeID == t.EmployeeID && c.BusinessID == t.BusinessID {
				return store.ErrDuplicate
			}
		}
	}
	s.commissions = append(s.commissions, t)
	return nil
}

// SaleExists implements commission.Store.
func (s *Store) SaleExists(ctx context.Context, businessID, saleID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.sales[saleID]
	return ok && sl.BusinessID == businessID, nil
}

// ListCommissions implements commission.Store.
func (s *Store) ListCommissions(ctx context.Context, f commission.Filter) ([]commission.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]commission.Transaction, 0)
	for _, t := range s.commissions {
		if t.BusinessID != f.BusinessID {
			continue
		}
		if f.EmployeeID != nil && t.EmployeeID != *f.EmployeeID {
			continue
		}
		if f.SaleID != nil && (t.SaleID == nil || *t.SaleID != *f.SaleID) {
			continue
		}
		if f.Paid != nil && t.IsCommissionPaid != *f.Paid {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkCommissionsPaid implements commission.Store.
func (s *Store) MarkCommissionsPaid(ctx context.Context, businessID uuid.UUID, ids []uuid.UUID, paidAt time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := 0
	for i, t := range s.commissions {
		if _, ok := want[t.ID]; !ok || t.BusinessID != businessID || t.IsCommissionPaid {
			continue
		}
		s.commissions[i] = t.MarkPaid(paidAt)
		marked++
	}
	return marked, nil
}

// InsertDomainEvent implements events.EventStore.
func (s *Store) InsertDomainEvent(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the recorded domain events.
func (s *Store) Events() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event(nil), s.events...)
}

func cloneSale(in sale.Sale) sale.Sale {
	lines := make([]sale.LineItem, len(in.Lines))
	copy(lines, in.Lines)
	in.Lines = lines
	return in
}
