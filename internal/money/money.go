package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places every amount is rounded to.
const Scale = 2

var (
	// ErrInvalidOperation is returned for arithmetic that has no defined result.
	ErrInvalidOperation = errors.New("money: invalid operation")
	// ErrInvalidAmount is returned when a textual amount cannot be parsed.
	ErrInvalidAmount = errors.New("money: invalid amount")
)

var hundred = decimal.NewFromInt(100)

// Money is a currency amount held as a fixed-point decimal rounded to two places.
// The zero value is a valid zero amount.
type Money struct {
	amount decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// New rounds d half-up to two decimal places.
func New(d decimal.Decimal) Money {
	return Money{amount: d.Round(Scale)}
}

// FromInt returns an amount of whole currency units.
func FromInt(units int64) Money {
	return Money{amount: decimal.NewFromInt(units)}
}

// FromMinor builds an amount from minor units (cents).
func FromMinor(minor int64) Money {
	return Money{amount: decimal.New(minor, -Scale)}
}

// Parse reads a decimal string such as "1250.50".
func Parse(s string) (Money, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return New(d), nil
}

// MustParse is Parse that panics, for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.amount }

// Add returns m + o.
func (m Money) Add(o Money) Money { return New(m.amount.Add(o.amount)) }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return New(m.amount.Sub(o.amount)) }

// MulInt multiplies by an integer count such as a quantity.
func (m Money) MulInt(n int64) Money { return New(m.amount.Mul(decimal.NewFromInt(n))) }

// MulRate multiplies by an arbitrary scalar and rounds the product once.
func (m Money) MulRate(rate decimal.Decimal) Money { return New(m.amount.Mul(rate)) }

// PercentOf returns pct percent of m, e.g. PercentOf(7.5) of 3000 is 225.
func (m Money) PercentOf(pct decimal.Decimal) Money {
	return New(m.amount.Mul(pct).Div(hundred))
}

// DivCount splits m into n parts. n must be positive.
func (m Money) DivCount(n int64) (Money, error) {
	if n == 0 {
		return Zero, fmt.Errorf("%w: division by zero", ErrInvalidOperation)
	}
	if n < 0 {
		return Zero, fmt.Errorf("%w: negative divisor %d", ErrInvalidOperation, n)
	}
	return New(m.amount.Div(decimal.NewFromInt(n))), nil
}

// Cmp compares m and o and returns -1, 0 or +1.
func (m Money) Cmp(o Money) int { return m.amount.Cmp(o.amount) }

// Equal reports whether both amounts are numerically equal.
func (m Money) Equal(o Money) bool { return m.amount.Equal(o.amount) }

// GreaterThan reports m > o.
func (m Money) GreaterThan(o Money) bool { return m.amount.GreaterThan(o.amount) }

// LessThan reports m < o.
func (m Money) LessThan(o Money) bool { return m.amount.LessThan(o.amount) }

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// MinorUnits returns the amount in minor units (cents). Amounts are always
// rounded to Scale places so the conversion is exact.
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(Scale).Round(0).IntPart()
}

// String renders the amount with exactly two decimals.
func (m Money) String() string { return m.amount.StringFixed(Scale) }

// MarshalJSON renders the amount as a JSON string to avoid float decoding by clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Zero
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds all values.
func Sum(values ...Money) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v.amount)
	}
	return New(total)
}
