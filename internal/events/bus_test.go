package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bizledger/internal/events"
)

type stubStore struct {
	events []events.Event
	err    error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

type captureEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "x"}, nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return fixed }}

	business, aggregate := uuid.New(), uuid.New()
	ev, err := bus.Emit(context.Background(), business, events.TopicSaleCreated, aggregate, map[string]any{"saleNumber": "SL-1"})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	require.Equal(t, ev, store.events[0])
	require.Equal(t, business, ev.BusinessID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"saleNumber":"SL-1"}`, string(ev.Payload))
	require.Len(t, notifier.events, 1)
}

func TestEmitValidates(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), uuid.New(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), uuid.New(), events.TopicSaleCreated, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), uuid.New(), events.TopicSaleCreated, uuid.New(), "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), uuid.New(), events.TopicSaleCreated, uuid.New(), nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("downstream unavailable")
	first := &captureNotifier{err: boom}
	second := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{first, nil, second}}

	ev, err := bus.Emit(context.Background(), uuid.New(), events.TopicPaymentRecorded, uuid.New(), nil)
	require.ErrorIs(t, err, boom)
	require.NotEqual(t, uuid.Nil, ev.ID)
	require.Len(t, second.events, 1)
}

func TestEmitStoreFailure(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), uuid.New(), events.TopicSaleCreated, uuid.New(), nil)
	require.Error(t, err)
	require.Empty(t, notifier.events)
}

func TestTaskPublisherEnqueuesEvent(t *testing.T) {
	enq := &captureEnqueuer{}
	pub := events.TaskPublisher{Client: enq, MaxRetry: 3}
	ev := events.Event{ID: uuid.New(), BusinessID: uuid.New(), Topic: events.TopicSaleCompleted, AggregateID: uuid.New(), Payload: []byte(`{"a":1}`)}

	require.NoError(t, pub.Notify(context.Background(), ev))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, "event:sale.completed", enq.tasks[0].Type())
	require.Len(t, enq.opts[0], 3)

	decoded, err := events.DecodeTask(enq.tasks[0])
	require.NoError(t, err)
	require.Equal(t, ev.ID, decoded.ID)
	require.JSONEq(t, `{"a":1}`, string(decoded.Payload))
}

func TestConsumerDispatchesByTopic(t *testing.T) {
	ev := events.Event{ID: uuid.New(), BusinessID: uuid.New(), Topic: events.TopicSaleCompleted, AggregateID: uuid.New(), Payload: []byte(`{}`), OccurredAt: time.Now().UTC()}
	enq := &captureEnqueuer{}
	require.NoError(t, events.TaskPublisher{Client: enq}.Notify(context.Background(), ev))
	require.Len(t, enq.tasks, 1)

	var handled []events.Event
	c := events.Consumer{Handlers: map[string]events.HandlerFunc{
		events.TopicSaleCompleted: func(_ context.Context, got events.Event) error {
			handled = append(handled, got)
			return nil
		},
	}}
	require.NoError(t, c.ProcessTask(context.Background(), enq.tasks[0]))
	require.Len(t, handled, 1)
	require.Equal(t, ev.ID, handled[0].ID)

	other := asynq.NewTask(events.TaskType(events.TopicCommissionPaid), []byte(`{"topic":"commission.paid"}`))
	require.NoError(t, c.ProcessTask(context.Background(), other))
	require.Len(t, handled, 1)
}

func TestConsumerSkipsRetryOnBadPayload(t *testing.T) {
	err := events.Consumer{}.ProcessTask(context.Background(), asynq.NewTask(events.TaskType(events.TopicSaleCreated), []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestConsumerPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	c := events.Consumer{Handlers: map[string]events.HandlerFunc{
		events.TopicSaleCreated: func(context.Context, events.Event) error { return boom },
	}}
	task := asynq.NewTask(events.TaskType(events.TopicSaleCreated), []byte(`{"topic":"sale.created"}`))
	require.ErrorIs(t, c.ProcessTask(context.Background(), task), boom)
}

func TestNewServeMuxRegistersTopics(t *testing.T) {
	mux := events.NewServeMux(events.Consumer{})
	for _, topic := range events.DefaultTopics() {
		_, pattern := mux.Handler(asynq.NewTask(events.TaskType(topic), nil))
		require.Equal(t, events.TaskType(topic), pattern)
	}
}

type countingBreaker struct {
	allow   bool
	reports []bool
}

func (b *countingBreaker) Allow(context.Context) bool { return b.allow }

func (b *countingBreaker) Report(_ context.Context, success bool) {
	b.reports = append(b.reports, success)
}

func TestGuardedNotifier(t *testing.T) {
	ev := events.Event{ID: uuid.New(), Topic: events.TopicSaleCreated}
	next := &captureNotifier{}
	breaker := &countingBreaker{allow: true}
	g := events.Guarded{Next: next, Breaker: breaker}

	require.NoError(t, g.Notify(context.Background(), ev))
	require.Equal(t, []bool{true}, breaker.reports)

	next.err = errors.New("broker down")
	require.Error(t, g.Notify(context.Background(), ev))
	require.Equal(t, []bool{true, false}, breaker.reports)

	breaker.allow = false
	require.ErrorIs(t, g.Notify(context.Background(), ev), events.ErrNotifierOpen)
	require.Len(t, next.events, 2)
}
