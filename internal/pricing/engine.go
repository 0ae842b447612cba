package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bizledger/internal/money"
)

var (
	// ErrInvalidQuantity is returned when a line quantity is not positive.
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")
	// ErrDiscountExceedsValue is returned when a line discount is larger than quantity x unit price.
	ErrDiscountExceedsValue = errors.New("pricing: discount exceeds line value")
	// ErrNegativeAmount is returned for negative unit prices or discounts.
	ErrNegativeAmount = errors.New("pricing: amount must not be negative")
	// ErrInvalidTaxRate is returned when a tax rate is outside [0, 100] or has more than two decimals.
	ErrInvalidTaxRate = errors.New("pricing: tax rate must be between 0 and 100")
	// ErrNegativeTotalRejected is returned by callers that refuse to finalize a sale whose total is below zero.
	ErrNegativeTotalRejected = errors.New("pricing: sale total is negative")
)

// Line describes one priced entry of a cart.
type Line struct {
	ServiceRef  string
	Description string
	Quantity    int
	UnitPrice   money.Money
	Discount    money.Money
	TaxRate     decimal.Decimal
}

// LinePrice holds the derived amounts of a single line.
type LinePrice struct {
	Line     Line
	Subtotal money.Money
	Tax      money.Money
	Total    money.Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Lines    []LinePrice
	Subtotal money.Money
	Tax      money.Money
	Discount money.Money
	Total    money.Money
}

// PriceLine computes subtotal, tax and total for a single line. Tax is charged on
// the undiscounted subtotal.
func PriceLine(l Line) (LinePrice, error) {
	if l.Quantity <= 0 {
		return LinePrice{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, l.Quantity)
	}
	if l.UnitPrice.IsNegative() || l.Discount.IsNegative() {
		return LinePrice{}, ErrNegativeAmount
	}
	if err := money.CheckPercent(l.TaxRate); err != nil {
		return LinePrice{}, fmt.Errorf("%w: %w", ErrInvalidTaxRate, err)
	}
	subtotal := l.UnitPrice.MulInt(int64(l.Quantity))
	if l.Discount.GreaterThan(subtotal) {
		return LinePrice{}, fmt.Errorf("%w: discount %s, value %s", ErrDiscountExceedsValue, l.Discount, subtotal)
	}
	return LinePrice{
		Line:     l,
		Subtotal: subtotal,
		Tax:      subtotal.PercentOf(l.TaxRate),
		Total:    subtotal.Sub(l.Discount),
	}, nil
}

// Aggregate sums priced lines. It never fails; an empty input yields all-zero totals
// and a negative total is left for the caller to reject.
func Aggregate(lines []LinePrice) Summary {
	sum := Summary{Lines: append([]LinePrice(nil), lines...)}
	for _, lp := range lines {
		sum.Subtotal = sum.Subtotal.Add(lp.Subtotal)
		sum.Tax = sum.Tax.Add(lp.Tax)
		sum.Discount = sum.Discount.Add(lp.Line.Discount)
	}
	sum.Total = sum.Subtotal.Add(sum.Tax).Sub(sum.Discount)
	return sum
}

// Compute prices every line and aggregates the results. The error identifies the
// offending line by position.
func Compute(lines []Line) (Summary, error) {
	priced := make([]LinePrice, 0, len(lines))
	for i, l := range lines {
		lp, err := PriceLine(l)
		if err != nil {
			return Summary{}, &LineError{Index: i, Err: err}
		}
		priced = append(priced, lp)
	}
	return Aggregate(priced), nil
}

// LineError ties a pricing failure to the line that caused it.
type LineError struct {
	Index int
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Index, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }
