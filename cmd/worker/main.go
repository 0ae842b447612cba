package main

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/bizledger/internal/config"
	"github.com/noah-isme/bizledger/internal/events"
	"github.com/noah-isme/bizledger/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the event worker")
	}

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{events.TaskQueue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("event task failed")
		}),
	})

	mux := events.NewServeMux(events.Consumer{Logger: logger})

	logger.Info().Int("concurrency", concurrency).Msg("worker starting")
	// Run blocks until SIGTERM or SIGINT and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker shutdown complete")
}
