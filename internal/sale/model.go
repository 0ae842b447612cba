package sale

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bizledger/internal/ledger"
	"github.com/noah-isme/bizledger/internal/money"
	"github.com/noah-isme/bizledger/internal/pricing"
)

var (
	// ErrSaleNotFound is returned when a sale does not exist in the caller's business.
	ErrSaleNotFound = errors.New("sale: not found")
	// ErrEmptyCart is returned when checkout of an empty cart is disabled.
	ErrEmptyCart = errors.New("sale: cart is empty")
	// ErrInvalidPaymentMethod is returned for unknown payment methods.
	ErrInvalidPaymentMethod = errors.New("sale: invalid payment method")
	// ErrInconsistentSale is returned when a sale's amounts break the ledger invariants.
	ErrInconsistentSale = errors.New("sale: amounts are inconsistent")
)

// PaymentMethod is how a tender was made.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
	MethodEWallet  PaymentMethod = "e_wallet"
	MethodOther    PaymentMethod = "other"
)

// ParseMethod normalises a textual payment method; blank means cash.
func ParseMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return MethodCash, nil
	case MethodCash, MethodCard, MethodTransfer, MethodEWallet, MethodOther:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
	}
}

// LineItem is a priced line persisted with its sale.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	Position    int             `json:"position"`
	ServiceRef  string          `json:"serviceRef,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   money.Money     `json:"unitPrice"`
	Discount    money.Money     `json:"discount"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Subtotal    money.Money     `json:"subtotal"`
	Tax         money.Money     `json:"tax"`
	Total       money.Money     `json:"total"`
}

// Sale is the header record of a checkout with its lines and settlement state.
type Sale struct {
	ID             uuid.UUID     `json:"id"`
	BusinessID     uuid.UUID     `json:"businessId"`
	SaleNumber     string        `json:"saleNumber"`
	CustomerID     *uuid.UUID    `json:"customerId,omitempty"`
	EmployeeID     *uuid.UUID    `json:"employeeId,omitempty"`
	Currency       string        `json:"currency"`
	Lines          []LineItem    `json:"lines"`
	Subtotal       money.Money   `json:"subtotal"`
	TaxAmount      money.Money   `json:"taxAmount"`
	DiscountAmount money.Money   `json:"discountAmount"`
	TotalAmount    money.Money   `json:"totalAmount"`
	AmountPaid     money.Money   `json:"amountPaid"`
	BalanceDue     money.Money   `json:"balanceDue"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
	PaymentStatus  ledger.Status `json:"paymentStatus"`
	Notes          *string       `json:"notes,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Balance returns the settlement state of s.
func (s Sale) Balance() ledger.Balance {
	return ledger.Balance{Total: s.TotalAmount, Paid: s.AmountPaid, Due: s.BalanceDue, Status: s.PaymentStatus}
}

// withBalance copies b's amounts and status onto s.
func (s Sale) withBalance(b ledger.Balance) Sale {
	s.AmountPaid = b.Paid
	s.BalanceDue = b.Due
	s.PaymentStatus = b.Status
	return s
}

// Validate checks the header against its lines and the ledger rules.
func (s Sale) Validate() error {
	if s.BusinessID == uuid.Nil {
		return fmt.Errorf("%w: missing business", ErrInconsistentSale)
	}
	if s.TotalAmount.IsNegative() {
		return pricing.ErrNegativeTotalRejected
	}
	if !s.Subtotal.Add(s.TaxAmount).Sub(s.DiscountAmount).Equal(s.TotalAmount) {
		return fmt.Errorf("%w: total %s != subtotal %s + tax %s - discount %s",
			ErrInconsistentSale, s.TotalAmount, s.Subtotal, s.TaxAmount, s.DiscountAmount)
	}
	subtotal, tax, discount := money.Zero, money.Zero, money.Zero
	for _, l := range s.Lines {
		subtotal = subtotal.Add(l.Subtotal)
		tax = tax.Add(l.Tax)
		discount = discount.Add(l.Discount)
	}
	if !subtotal.Equal(s.Subtotal) || !tax.Equal(s.TaxAmount) || !discount.Equal(s.DiscountAmount) {
		return fmt.Errorf("%w: lines sum to %s/%s/%s, header says %s/%s/%s", ErrInconsistentSale,
			subtotal, tax, discount, s.Subtotal, s.TaxAmount, s.DiscountAmount)
	}
	if s.AmountPaid.IsNegative() || s.BalanceDue.IsNegative() {
		return fmt.Errorf("%w: negative settlement amounts", ErrInconsistentSale)
	}
	if s.PaymentStatus != ledger.StatusRefunded {
		want := ledger.Classify(s.TotalAmount, s.AmountPaid)
		if !want.Due.Equal(s.BalanceDue) || want.Status != s.PaymentStatus {
			return fmt.Errorf("%w: balance %s/%s does not match paid %s",
				ErrInconsistentSale, s.BalanceDue, s.PaymentStatus, s.AmountPaid)
		}
	}
	return nil
}

// linesFrom converts priced cart lines into persisted line items.
func linesFrom(priced []pricing.LinePrice) []LineItem {
	out := make([]LineItem, 0, len(priced))
	for i, p := range priced {
		out = append(out, LineItem{
			ID:          uuid.New(),
			Position:    i + 1,
			ServiceRef:  p.Line.ServiceRef,
			Description: p.Line.Description,
			Quantity:    p.Line.Quantity,
			UnitPrice:   p.Line.UnitPrice,
			Discount:    p.Line.Discount,
			TaxRate:     p.Line.TaxRate,
			Subtotal:    p.Subtotal,
			Tax:         p.Tax,
			Total:       p.Total,
		})
	}
	return out
}

// Payment is one tender event against a sale.
type Payment struct {
	ID         uuid.UUID            `json:"id"`
	SaleID     uuid.UUID            `json:"saleId"`
	BusinessID uuid.UUID            `json:"businessId"`
	Amount     money.Money          `json:"amount"`
	Method     PaymentMethod        `json:"method"`
	Status     ledger.PaymentStatus `json:"status"`
	Reference  *string              `json:"reference,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// NewPayment returns a successful payment of amount. Amount must be positive.
func NewPayment(businessID, saleID uuid.UUID, amount money.Money, method PaymentMethod, reference *string, now time.Time) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: got %s", ledger.ErrNonPositivePayment, amount)
	}
	if method == "" {
		method = MethodCash
	}
	return Payment{
		ID:         uuid.New(),
		SaleID:     saleID,
		BusinessID: businessID,
		Amount:     amount,
		Method:     method,
		Status:     ledger.PaymentSuccessful,
		Reference:  trimmed(reference),
		CreatedAt:  now.UTC(),
	}, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
