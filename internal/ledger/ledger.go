// Package ledger tracks cumulative payments against a sale and derives the
// balance due and payment status.
package ledger

import (
	"errors"
	"fmt"

	"github.com/noah-isme/bizledger/internal/money"
)

var (
	// ErrNonPositivePayment is returned when a payment amount is zero or negative.
	ErrNonPositivePayment = errors.New("ledger: payment amount must be positive")
	// ErrSaleRefunded is returned when a payment targets a refunded sale.
	ErrSaleRefunded = errors.New("ledger: sale is refunded")
	// ErrUnknownStatus is returned when a stored status cannot be parsed.
	ErrUnknownStatus = errors.New("ledger: unknown payment status")
)

// Status is the payment status of a sale.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// ParseStatus validates a stored status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPartial, StatusCompleted, StatusRefunded:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// PaymentStatus is the outcome of a single tender event.
type PaymentStatus string

const (
	PaymentSuccessful PaymentStatus = "successful"
	PaymentFailed     PaymentStatus = "failed"
	PaymentPending    PaymentStatus = "pending"
)

// Balance is the settlement state of one sale.
type Balance struct {
	Total  money.Money
	Paid   money.Money
	Due    money.Money
	Status Status
}

// Classify derives due amount and status from a total and the amount paid so far.
func Classify(total, paid money.Money) Balance {
	due := money.Max(money.Zero, total.Sub(paid))
	status := StatusPending
	switch {
	case due.IsZero():
		status = StatusCompleted
	case paid.IsPositive():
		status = StatusPartial
	}
	return Balance{Total: total, Paid: paid, Due: due, Status: status}
}

// Apply records a payment of p. Amounts above the balance due are accepted and
// absorbed: the sale completes and no change is tracked.
func (b Balance) Apply(p money.Money) (Balance, error) {
	if !p.IsPositive() {
		return b, fmt.Errorf("%w: got %s", ErrNonPositivePayment, p)
	}
	if b.Status == StatusRefunded {
		return b, ErrSaleRefunded
	}
	paid := b.Paid.Add(p)
	due := money.Max(money.Zero, b.Total.Sub(paid))
	status := StatusPartial
	if due.IsZero() {
		status = StatusCompleted
	}
	return Balance{Total: b.Total, Paid: paid, Due: due, Status: status}, nil
}

// Open settles the tender given at checkout. A nil tendered amount means the
// customer paid in full. The returned amount is the initial payment to record;
// it is zero when nothing was tendered.
func Open(total money.Money, tendered *money.Money) (Balance, money.Money, error) {
	opening := Classify(total, money.Zero)
	if tendered == nil {
		if !total.IsPositive() {
			return opening, money.Zero, nil
		}
		b, err := opening.Apply(total)
		return b, total, err
	}
	switch {
	case tendered.IsNegative():
		return opening, money.Zero, fmt.Errorf("%w: got %s", ErrNonPositivePayment, *tendered)
	case tendered.IsZero():
		return opening, money.Zero, nil
	}
	b, err := opening.Apply(*tendered)
	return b, *tendered, err
}

// Replay rebuilds a balance from a payment history, counting successful payments only.
func Replay(total money.Money, payments []Entry) Balance {
	paid := money.Zero
	for _, p := range payments {
		if p.Status == PaymentSuccessful {
			paid = paid.Add(p.Amount)
		}
	}
	return Classify(total, paid)
}

// Entry is the minimal view of a payment the ledger needs.
type Entry struct {
	Amount money.Money
	Status PaymentStatus
}
