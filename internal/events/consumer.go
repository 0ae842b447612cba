package events

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// HandlerFunc reacts to one delivered event.
type HandlerFunc func(ctx context.Context, event Event) error

// Consumer processes event tasks published by TaskPublisher. Topics without a
// registered handler are logged and acknowledged.
type Consumer struct {
	Logger   zerolog.Logger
	Handlers map[string]HandlerFunc
}

// ProcessTask implements asynq.Handler. Undecodable payloads are not retried.
func (c Consumer) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ev, err := DecodeTask(task)
	if err != nil {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	log := c.Logger.With().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("business_id", ev.BusinessID.String()).
		Logger()

	handler, ok := c.Handlers[ev.Topic]
	if !ok {
		log.Info().Msg("event_consumed")
		return nil
	}
	if err := handler(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("event_handler_failed")
		return err
	}
	log.Info().Msg("event_handled")
	return nil
}

// NewServeMux routes every default topic to c.
func NewServeMux(c Consumer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, topic := range DefaultTopics() {
		mux.Handle(TaskType(topic), c)
	}
	return mux
}
