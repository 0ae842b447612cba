package commission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/events"
	"github.com/noah-isme/bizledger/internal/money"
	"github.com/noah-isme/bizledger/internal/sale"
	"github.com/noah-isme/bizledger/internal/store"
	"github.com/noah-isme/bizledger/internal/store/memstore"
	"github.com/noah-isme/bizledger/internal/tenant"
)

type fixture struct {
	svc      *commission.Service
	mem      *memstore.Store
	ctx      context.Context
	business uuid.UUID
	stylist  commission.Employee
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := memstore.New()
	business := uuid.New()
	stylist := commission.Employee{
		ID:                   uuid.New(),
		BusinessID:           business,
		Name:                 "Ayu",
		CommissionType:       commission.TypePercentage,
		CommissionPercentage: decimal.NewFromInt(15),
	}
	mem.PutEmployee(stylist)
	clock := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	svc := &commission.Service{
		Store:  mem,
		Events: &events.Bus{Store: mem},
		Logger: zerolog.Nop(),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	return fixture{
		svc:      svc,
		mem:      mem,
		ctx:      tenant.WithBusiness(context.Background(), business.String()),
		business: business,
		stylist:  stylist,
	}
}

func TestRecordComputesSplit(t *testing.T) {
	f := newFixture(t)
	tx, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(100000)})
	require.NoError(t, err)
	require.Equal(t, "15000.00", tx.CommissionAmount.String())
	require.Equal(t, "85000.00", tx.HouseAmount.String())
	require.False(t, tx.IsCommissionPaid)
	require.Equal(t, f.business, tx.BusinessID)

	evs := f.mem.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TopicCommissionRecorded, evs[0].Topic)
}

func TestRecordUnknownEmployee(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: uuid.New(), Total: money.FromInt(10)})
	require.ErrorIs(t, err, commission.ErrEmployeeNotFound)

	other := tenant.WithBusiness(context.Background(), uuid.NewString())
	_, err = f.svc.Record(other, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(10)})
	require.ErrorIs(t, err, commission.ErrEmployeeNotFound)
}

func TestRecordRejectsNegativeTotal(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.MustParse("-1")})
	require.ErrorIs(t, err, commission.ErrNegativeAmount)
}

func TestRecordRequiresBusiness(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Record(context.Background(), commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(10)})
	require.ErrorIs(t, err, tenant.ErrBusinessMissing)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(1000)})
	require.NoError(t, err)
	b, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(2000)})
	require.NoError(t, err)

	res, err := f.svc.MarkPaid(f.ctx, []uuid.UUID{a.ID, a.ID, b.ID, uuid.Nil})
	require.NoError(t, err)
	require.Equal(t, 2, res.Requested)
	require.Equal(t, 2, res.Marked)

	paid := true
	txs, err := f.svc.List(f.ctx, commission.Filter{Paid: &paid})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	firstPaidAt := *txs[0].PaidAt

	res, err = f.svc.MarkPaid(f.ctx, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	require.Equal(t, 0, res.Marked)

	txs, err = f.svc.List(f.ctx, commission.Filter{Paid: &paid})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, firstPaidAt, *txs[0].PaidAt)

	paidEvents := 0
	for _, ev := range f.mem.Events() {
		if ev.Topic == events.TopicCommissionPaid {
			paidEvents++
		}
	}
	require.Equal(t, 1, paidEvents)
}

func TestMarkPaidIgnoresOtherBusiness(t *testing.T) {
	f := newFixture(t)
	tx, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(1000)})
	require.NoError(t, err)

	other := tenant.WithBusiness(context.Background(), uuid.NewString())
	res, err := f.svc.MarkPaid(other, []uuid.UUID{tx.ID})
	require.NoError(t, err)
	require.Zero(t, res.Marked)
}

func TestMarkPaidEmptyAndOversized(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.MarkPaid(f.ctx, nil)
	require.NoError(t, err)
	require.Zero(t, res.Requested)

	ids := make([]uuid.UUID, 501)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err = f.svc.MarkPaid(f.ctx, ids)
	require.ErrorIs(t, err, commission.ErrBatchTooLarge)
}

func TestSummaryTotals(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(100000)})
	require.NoError(t, err)
	_, err = f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(20000)})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(f.ctx, []uuid.UUID{a.ID})
	require.NoError(t, err)

	sum, err := f.svc.Summary(f.ctx, f.stylist.ID)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Transactions)
	require.Equal(t, "18000.00", sum.Earned.String())
	require.Equal(t, "15000.00", sum.Paid.String())
	require.Equal(t, "3000.00", sum.Outstanding.String())
	require.Equal(t, "102000.00", sum.House.String())

	_, err = f.svc.Summary(f.ctx, uuid.New())
	require.ErrorIs(t, err, commission.ErrEmployeeNotFound)
}

type failingStore struct {
	commission.Store
}

func (failingStore) GetEmployee(context.Context, uuid.UUID, uuid.UUID) (commission.Employee, error) {
	return commission.Employee{}, errors.New("connection refused")
}

func TestRecordWrapsStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.Store = failingStore{Store: f.mem}
	_, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(10)})
	require.Error(t, err)
	require.NotErrorIs(t, err, commission.ErrEmployeeNotFound)
	require.Contains(t, err.Error(), "load employee")
}

func (f fixture) seedSale(t *testing.T, business uuid.UUID, withCommission *commission.Transaction) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if withCommission != nil && withCommission.SaleID != nil {
		id = *withCommission.SaleID
	}
	err := f.mem.CreateSale(context.Background(), sale.Draft{
		Sale:       sale.Sale{ID: id, BusinessID: business, SaleNumber: "SL-" + id.String()[:8]},
		Commission: withCommission,
	})
	require.NoError(t, err)
	return id
}

func TestRecordValidatesLinkedSale(t *testing.T) {
	f := newFixture(t)

	unknown := uuid.New()
	_, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(100), SaleID: &unknown})
	require.ErrorIs(t, err, commission.ErrSaleNotFound)

	foreign := f.seedSale(t, uuid.New(), nil)
	_, err = f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(100), SaleID: &foreign})
	require.ErrorIs(t, err, commission.ErrSaleNotFound)

	own := f.seedSale(t, f.business, nil)
	tx, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(100), SaleID: &own})
	require.NoError(t, err)
	require.Equal(t, own, *tx.SaleID)

	_, err = f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(100), SaleID: &own})
	require.ErrorIs(t, err, commission.ErrDuplicateCommission)

	assistant := commission.Employee{ID: uuid.New(), BusinessID: f.business, Name: "Sari", CommissionType: commission.TypeFixed, FixedCommission: money.FromInt(10)}
	f.mem.PutEmployee(assistant)
	_, err = f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: assistant.ID, Total: money.FromInt(100), SaleID: &own})
	require.NoError(t, err)

	saleTxs, err := f.svc.List(f.ctx, commission.Filter{SaleID: &own})
	require.NoError(t, err)
	require.Len(t, saleTxs, 2)
}

func TestRecordRejectsSaleCommissionedAtCheckout(t *testing.T) {
	f := newFixture(t)
	saleID := uuid.New()
	checkout, err := commission.NewTransaction(f.stylist, money.FromInt(1000), nil, &saleID, time.Now())
	require.NoError(t, err)
	f.seedSale(t, f.business, &checkout)

	_, err = f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(1000), SaleID: &saleID})
	require.ErrorIs(t, err, commission.ErrDuplicateCommission)
}

type racingStore struct {
	*memstore.Store
}

func (racingStore) ListCommissions(context.Context, commission.Filter) ([]commission.Transaction, error) {
	return nil, nil
}

func (racingStore) InsertCommission(context.Context, commission.Transaction) error {
	return store.ErrDuplicate
}

func TestRecordMapsStoreDuplicate(t *testing.T) {
	f := newFixture(t)
	saleID := f.seedSale(t, f.business, nil)
	f.svc.Store = racingStore{Store: f.mem}
	_, err := f.svc.Record(f.ctx, commission.RecordInput{EmployeeID: f.stylist.ID, Total: money.FromInt(10), SaleID: &saleID})
	require.ErrorIs(t, err, commission.ErrDuplicateCommission)
}
