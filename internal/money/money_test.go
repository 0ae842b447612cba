package money_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bizledger/internal/money"
)

func TestRoundsHalfUp(t *testing.T) {
	cases := map[string]string{
		"1.005":  "1.01",
		"1.004":  "1.00",
		"2.345":  "2.35",
		"10":     "10.00",
		"-1.005": "-1.01",
	}
	for in, want := range cases {
		require.Equal(t, want, money.MustParse(in).String(), in)
	}
}

func TestPercentOfRoundsOnce(t *testing.T) {
	got := money.FromInt(3000).PercentOf(decimal.RequireFromString("7.5"))
	require.Equal(t, "225.00", got.String())

	// 33.33 * 15% = 4.9995 -> 5.00 when rounded once at the end.
	got = money.MustParse("33.33").PercentOf(decimal.NewFromInt(15))
	require.Equal(t, "5.00", got.String())
}

func TestDivCount(t *testing.T) {
	_, err := money.FromInt(10).DivCount(0)
	require.ErrorIs(t, err, money.ErrInvalidOperation)

	_, err = money.FromInt(10).DivCount(-2)
	require.ErrorIs(t, err, money.ErrInvalidOperation)

	part, err := money.FromInt(10).DivCount(3)
	require.NoError(t, err)
	require.Equal(t, "3.33", part.String())
}

func TestSumAvoidsFloatDrift(t *testing.T) {
	values := make([]money.Money, 0, 10)
	for i := 0; i < 10; i++ {
		values = append(values, money.MustParse("0.10"))
	}
	require.True(t, money.Sum(values...).Equal(money.FromInt(1)))
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	m := money.MustParse("1234.56")
	require.EqualValues(t, 123456, m.MinorUnits())
	require.True(t, money.FromMinor(m.MinorUnits()).Equal(m))
}

func TestJSON(t *testing.T) {
	var payload struct {
		A money.Money `json:"a"`
		B money.Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.5","b":7}`), &payload))
	require.Equal(t, "12.50", payload.A.String())
	require.Equal(t, "7.00", payload.B.String())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"12.50","b":"7.00"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"a":"abc"}`), &payload))
}

func TestBasisPoints(t *testing.T) {
	require.EqualValues(t, 750, money.BasisPoints(decimal.RequireFromString("7.5")))
	require.Equal(t, "7.5", money.FromBasisPoints(750).String())
	require.NoError(t, money.CheckPercent(decimal.NewFromInt(100)))
	require.ErrorIs(t, money.CheckPercent(decimal.NewFromInt(101)), money.ErrRateOutOfRange)
	require.ErrorIs(t, money.CheckPercent(decimal.NewFromInt(-1)), money.ErrRateOutOfRange)
	require.NoError(t, money.CheckPercent(decimal.RequireFromString("7.25")))
	require.ErrorIs(t, money.CheckPercent(decimal.RequireFromString("7.125")), money.ErrRatePrecision)
}
