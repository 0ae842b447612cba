package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bizledger/internal/money"
)

func line(qty int, unit, discount, tax string) Line {
	return Line{
		ServiceRef: "svc",
		Quantity:   qty,
		UnitPrice:  money.MustParse(unit),
		Discount:   money.MustParse(discount),
		TaxRate:    decimal.RequireFromString(tax),
	}
}

func TestPriceLineDiscountedTaxed(t *testing.T) {
	lp, err := PriceLine(line(3, "1000", "500", "7.5"))
	require.NoError(t, err)
	require.Equal(t, "3000.00", lp.Subtotal.String())
	require.Equal(t, "225.00", lp.Tax.String())
	require.Equal(t, "2500.00", lp.Total.String())
}

func TestPriceLineTotalPlusDiscountEqualsValue(t *testing.T) {
	cases := []Line{
		line(1, "0", "0", "0"),
		line(2, "19.99", "0.01", "10"),
		line(7, "3.33", "23.31", "0"),
		line(12, "1250.50", "100", "100"),
	}
	for _, c := range cases {
		lp, err := PriceLine(c)
		require.NoError(t, err)
		require.True(t, lp.Total.Add(c.Discount).Equal(c.UnitPrice.MulInt(int64(c.Quantity))))
		require.False(t, lp.Total.IsNegative())
	}
}

func TestPriceLineErrors(t *testing.T) {
	_, err := PriceLine(line(0, "10", "0", "0"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = PriceLine(line(-1, "10", "0", "0"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = PriceLine(line(2, "10", "20.01", "0"))
	require.ErrorIs(t, err, ErrDiscountExceedsValue)

	_, err = PriceLine(line(1, "-10", "0", "0"))
	require.ErrorIs(t, err, ErrNegativeAmount)

	_, err = PriceLine(line(1, "10", "0", "100.01"))
	require.ErrorIs(t, err, ErrInvalidTaxRate)
}

func TestPriceLineTaxSurvivesBasisPoints(t *testing.T) {
	_, err := PriceLine(line(1, "1000", "0", "7.125"))
	require.ErrorIs(t, err, ErrInvalidTaxRate)
	require.ErrorIs(t, err, money.ErrRatePrecision)

	lp, err := PriceLine(line(1, "1000", "0", "7.13"))
	require.NoError(t, err)
	stored := money.FromBasisPoints(money.BasisPoints(lp.Line.TaxRate))
	require.True(t, stored.Equal(lp.Line.TaxRate))
	require.True(t, lp.Tax.Equal(lp.Subtotal.PercentOf(stored)), "tax %s", lp.Tax)
}

func TestAggregateEmpty(t *testing.T) {
	sum := Aggregate(nil)
	require.True(t, sum.Subtotal.IsZero())
	require.True(t, sum.Tax.IsZero())
	require.True(t, sum.Discount.IsZero())
	require.True(t, sum.Total.IsZero())
}

func TestAggregateAdditivity(t *testing.T) {
	inputs := [][]Line{
		{line(2, "5000", "0", "0")},
		{line(2, "5000", "0", "0"), line(3, "1000", "500", "7.5"), line(1, "0.99", "0.10", "12.5")},
	}
	for _, lines := range inputs {
		sum, err := Compute(lines)
		require.NoError(t, err)

		expected := money.Zero
		for _, l := range lines {
			expected = expected.Add(l.UnitPrice.MulInt(int64(l.Quantity)))
		}
		require.True(t, sum.Subtotal.Equal(expected))
		require.True(t, sum.Total.Equal(sum.Subtotal.Add(sum.Tax).Sub(sum.Discount)))
		require.Len(t, sum.Lines, len(lines))
	}
}

func TestAggregateFullCashSale(t *testing.T) {
	sum, err := Compute([]Line{line(2, "5000", "0", "0")})
	require.NoError(t, err)
	require.Equal(t, "10000.00", sum.Subtotal.String())
	require.Equal(t, "0.00", sum.Tax.String())
	require.Equal(t, "0.00", sum.Discount.String())
	require.Equal(t, "10000.00", sum.Total.String())
}

func TestComputeReportsLineIndex(t *testing.T) {
	_, err := Compute([]Line{line(1, "10", "0", "0"), line(0, "10", "0", "0")})
	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	require.Equal(t, 1, lineErr.Index)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
