package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskQueue is the asynq queue carrying outbound domain events.
const TaskQueue = "events"

// TaskType returns the asynq task type for a topic.
func TaskType(topic string) string {
	return "event:" + topic
}

// LogNotifier writes each event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("business_id", event.BusinessID.String()).
		Str("aggregate_id", event.AggregateID.String()).
		Msg("domain_event")
	return nil
}

// Enqueuer is the subset of *asynq.Client used to publish tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskPublisher hands events to external collaborators through asynq. The
// event id doubles as the task id so a re-emitted event is not queued twice.
type TaskPublisher struct {
	Client    Enqueuer
	MaxRetry  int
	Retention time.Duration
}

// Notify implements Notifier.
func (p TaskPublisher) Notify(ctx context.Context, event Event) error {
	if p.Client == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(TaskQueue),
		asynq.TaskID(event.ID.String()),
	}
	if p.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(p.MaxRetry))
	}
	if p.Retention > 0 {
		opts = append(opts, asynq.Retention(p.Retention))
	}
	if _, err := p.Client.EnqueueContext(ctx, asynq.NewTask(TaskType(event.Topic), body), opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", event.Topic, err)
	}
	return nil
}

// DecodeTask restores the event carried by an asynq task.
func DecodeTask(task *asynq.Task) (Event, error) {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return Event{}, fmt.Errorf("decode task %s: %w", task.Type(), err)
	}
	return ev, nil
}

// ErrNotifierOpen is returned by Guarded while its breaker rejects calls.
var ErrNotifierOpen = errors.New("events: notifier circuit open")

// Breaker admits or rejects calls and is told how admitted calls went.
type Breaker interface {
	Allow(ctx context.Context) bool
	Report(ctx context.Context, success bool)
}

// Guarded stops calling Next while Breaker is open so a broker outage does not
// add enqueue latency to every write.
type Guarded struct {
	Next    Notifier
	Breaker Breaker
}

// Notify implements Notifier.
func (g Guarded) Notify(ctx context.Context, event Event) error {
	if g.Next == nil {
		return nil
	}
	if g.Breaker == nil {
		return g.Next.Notify(ctx, event)
	}
	if !g.Breaker.Allow(ctx) {
		return fmt.Errorf("%w: %s", ErrNotifierOpen, event.Topic)
	}
	err := g.Next.Notify(ctx, event)
	g.Breaker.Report(ctx, err == nil)
	return err
}
