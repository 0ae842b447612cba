package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrRateOutOfRange is returned when a percentage falls outside [0, 100].
	ErrRateOutOfRange = errors.New("money: rate out of range")
	// ErrRatePrecision is returned when a percentage has more than RateScale decimals.
	ErrRatePrecision = errors.New("money: rate has too many decimal places")
)

// RateScale is the number of percentage decimals that survive storage as basis points.
const RateScale = 2

// ParseRate reads a percentage such as "7.5".
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// CheckPercent ensures pct lies in the closed range [0, 100] and converts to
// whole basis points without loss.
func CheckPercent(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s", ErrRateOutOfRange, pct.String())
	}
	if !pct.Equal(pct.Round(RateScale)) {
		return fmt.Errorf("%w: %s", ErrRatePrecision, pct.String())
	}
	return nil
}

// BasisPoints converts a percentage (7.5) into basis points (750). Rates that
// passed CheckPercent convert exactly.
func BasisPoints(pct decimal.Decimal) int64 {
	return pct.Shift(2).Round(0).IntPart()
}

// FromBasisPoints converts basis points back into a percentage.
func FromBasisPoints(bps int64) decimal.Decimal {
	return decimal.New(bps, -2)
}
