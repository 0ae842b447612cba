package commission

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/bizledger/internal/money"
)

// ErrSplitMismatch is returned when a transaction's shares do not add up to its total.
var ErrSplitMismatch = errors.New("commission: commission and house amounts do not add up to total")

// Transaction is one commission-bearing sale event for an employee.
type Transaction struct {
	ID               uuid.UUID   `json:"id"`
	BusinessID       uuid.UUID   `json:"businessId"`
	EmployeeID       uuid.UUID   `json:"employeeId"`
	SaleID           *uuid.UUID  `json:"saleId,omitempty"`
	ServiceRef       *string     `json:"serviceRef,omitempty"`
	TotalAmount      money.Money `json:"totalAmount"`
	CommissionAmount money.Money `json:"commissionAmount"`
	HouseAmount      money.Money `json:"houseAmount"`
	IsCommissionPaid bool        `json:"isCommissionPaid"`
	PaidAt           *time.Time  `json:"paidAt,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// NewTransaction computes the split for total and returns an unpaid transaction.
func NewTransaction(e Employee, total money.Money, serviceRef *string, saleID *uuid.UUID, now time.Time) (Transaction, error) {
	split, err := Calculate(total, e)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:               uuid.New(),
		BusinessID:       e.BusinessID,
		EmployeeID:       e.ID,
		SaleID:           saleID,
		ServiceRef:       serviceRef,
		TotalAmount:      split.Total,
		CommissionAmount: split.Commission,
		HouseAmount:      split.House,
		CreatedAt:        now.UTC(),
	}, nil
}

// Validate checks the split invariant.
func (t Transaction) Validate() error {
	if t.CommissionAmount.IsNegative() || t.HouseAmount.IsNegative() {
		return ErrNegativeAmount
	}
	if !t.CommissionAmount.Add(t.HouseAmount).Equal(t.TotalAmount) {
		return ErrSplitMismatch
	}
	return nil
}

// MarkPaid returns t flagged as paid at the given instant. An already paid
// transaction is returned unchanged, keeping its original PaidAt.
func (t Transaction) MarkPaid(at time.Time) Transaction {
	if t.IsCommissionPaid {
		return t
	}
	paidAt := at.UTC()
	t.IsCommissionPaid = true
	t.PaidAt = &paidAt
	return t
}

// Summary totals an employee's commission activity.
type Summary struct {
	EmployeeID   uuid.UUID   `json:"employeeId"`
	Transactions int         `json:"transactions"`
	Sales        money.Money `json:"sales"`
	Earned       money.Money `json:"earned"`
	Paid         money.Money `json:"paid"`
	Outstanding  money.Money `json:"outstanding"`
	House        money.Money `json:"house"`
}

// Summarize folds txs into a Summary for employeeID.
func Summarize(employeeID uuid.UUID, txs []Transaction) Summary {
	s := Summary{EmployeeID: employeeID}
	for _, t := range txs {
		if t.EmployeeID != employeeID {
			continue
		}
		s.Transactions++
		s.Sales = s.Sales.Add(t.TotalAmount)
		s.Earned = s.Earned.Add(t.CommissionAmount)
		s.House = s.House.Add(t.HouseAmount)
		if t.IsCommissionPaid {
			s.Paid = s.Paid.Add(t.CommissionAmount)
		} else {
			s.Outstanding = s.Outstanding.Add(t.CommissionAmount)
		}
	}
	return s
}
