package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bizledger/internal/ledger"
	"github.com/noah-isme/bizledger/internal/money"
)

func amount(s string) *money.Money {
	m := money.MustParse(s)
	return &m
}

func TestOpenFullPayment(t *testing.T) {
	b, initial, err := ledger.Open(money.FromInt(10000), amount("10000"))
	require.NoError(t, err)
	require.Equal(t, "10000.00", initial.String())
	require.Equal(t, "10000.00", b.Paid.String())
	require.Equal(t, "0.00", b.Due.String())
	require.Equal(t, ledger.StatusCompleted, b.Status)
}

func TestOpenDefaultsToFullPayment(t *testing.T) {
	b, initial, err := ledger.Open(money.FromInt(750), nil)
	require.NoError(t, err)
	require.Equal(t, "750.00", initial.String())
	require.Equal(t, ledger.StatusCompleted, b.Status)
}

func TestOpenNothingTendered(t *testing.T) {
	b, initial, err := ledger.Open(money.FromInt(750), amount("0"))
	require.NoError(t, err)
	require.True(t, initial.IsZero())
	require.Equal(t, ledger.StatusPending, b.Status)
	require.Equal(t, "750.00", b.Due.String())

	_, _, err = ledger.Open(money.FromInt(750), amount("-1"))
	require.ErrorIs(t, err, ledger.ErrNonPositivePayment)
}

func TestOpenZeroValueSale(t *testing.T) {
	b, initial, err := ledger.Open(money.Zero, nil)
	require.NoError(t, err)
	require.True(t, initial.IsZero())
	require.Equal(t, ledger.StatusCompleted, b.Status)
}

func TestPartialThenTopUp(t *testing.T) {
	b, _, err := ledger.Open(money.FromInt(10000), amount("4000"))
	require.NoError(t, err)
	require.Equal(t, "4000.00", b.Paid.String())
	require.Equal(t, "6000.00", b.Due.String())
	require.Equal(t, ledger.StatusPartial, b.Status)

	b, err = b.Apply(money.FromInt(6000))
	require.NoError(t, err)
	require.Equal(t, "10000.00", b.Paid.String())
	require.Equal(t, "0.00", b.Due.String())
	require.Equal(t, ledger.StatusCompleted, b.Status)
}

func TestOverpaymentAbsorbed(t *testing.T) {
	b := ledger.Classify(money.FromInt(100), money.Zero)
	b, err := b.Apply(money.FromInt(150))
	require.NoError(t, err)
	require.Equal(t, "0.00", b.Due.String())
	require.Equal(t, "150.00", b.Paid.String())
	require.Equal(t, ledger.StatusCompleted, b.Status)
}

func TestApplyRejectsNonPositive(t *testing.T) {
	b := ledger.Classify(money.FromInt(100), money.Zero)
	_, err := b.Apply(money.Zero)
	require.ErrorIs(t, err, ledger.ErrNonPositivePayment)
	_, err = b.Apply(money.FromInt(-5))
	require.ErrorIs(t, err, ledger.ErrNonPositivePayment)
}

func TestApplyRejectsRefunded(t *testing.T) {
	b := ledger.Balance{Total: money.FromInt(100), Paid: money.FromInt(100), Status: ledger.StatusRefunded}
	_, err := b.Apply(money.FromInt(1))
	require.ErrorIs(t, err, ledger.ErrSaleRefunded)
}

func TestMonotonicity(t *testing.T) {
	payments := []string{"0.01", "13.37", "250", "0.50", "999", "5000", "1"}
	b := ledger.Classify(money.MustParse("3000"), money.Zero)
	completed := false
	for _, p := range payments {
		next, err := b.Apply(money.MustParse(p))
		require.NoError(t, err)
		require.False(t, next.Paid.LessThan(b.Paid))
		require.False(t, next.Due.GreaterThan(b.Due))
		if completed {
			require.Equal(t, ledger.StatusCompleted, next.Status)
		}
		completed = next.Status == ledger.StatusCompleted
		b = next
	}
	require.True(t, completed)
}

func TestReplayCountsSuccessfulOnly(t *testing.T) {
	b := ledger.Replay(money.FromInt(100), []ledger.Entry{
		{Amount: money.FromInt(30), Status: ledger.PaymentSuccessful},
		{Amount: money.FromInt(70), Status: ledger.PaymentFailed},
		{Amount: money.FromInt(20), Status: ledger.PaymentSuccessful},
	})
	require.Equal(t, "50.00", b.Paid.String())
	require.Equal(t, ledger.StatusPartial, b.Status)
}

func TestParseStatus(t *testing.T) {
	st, err := ledger.ParseStatus("partial")
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPartial, st)
	_, err = ledger.ParseStatus("void")
	require.ErrorIs(t, err, ledger.ErrUnknownStatus)
}
