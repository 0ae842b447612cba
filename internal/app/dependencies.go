// Package app assembles the ledger services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/config"
	"github.com/noah-isme/bizledger/internal/events"
	"github.com/noah-isme/bizledger/internal/health"
	"github.com/noah-isme/bizledger/internal/lock"
	"github.com/noah-isme/bizledger/internal/obs"
	"github.com/noah-isme/bizledger/internal/ratelimit"
	"github.com/noah-isme/bizledger/internal/refno"
	"github.com/noah-isme/bizledger/internal/resilience"
	"github.com/noah-isme/bizledger/internal/sale"
	"github.com/noah-isme/bizledger/internal/store/memstore"
	"github.com/noah-isme/bizledger/internal/store/postgres"
)

// Store is everything the services need from a persistence backend.
type Store interface {
	sale.Store
	sale.Employees
	commission.Store
	events.EventStore
	Ping(ctx context.Context) error
}

// Dependencies enumerates the wired services shared by the binaries.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger

	DB          *pgxpool.Pool
	Redis       *redis.Client
	TaskClient  *asynq.Client
	Store       Store
	Limiter     *limiter.Limiter
	Bus         *events.Bus
	Sales       *sale.Service
	Commissions *commission.Service

	closers []func() error
}

// New connects the configured backends and builds the services. Redis is
// optional: without it locks are process local, idempotency is off and rate
// limits are kept in memory.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}
	if err := d.initStore(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.initRedis(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.initServices(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) initStore(ctx context.Context) error {
	cfg := d.Config
	if cfg.StoreDriver == config.DriverMemory {
		d.Store = memstore.New()
		return nil
	}

	if cfg.MigrationsAuto {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "bizledger"
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	d.closers = append(d.closers, func() error { pool.Close(); return nil })
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	d.DB = pool
	d.Store = postgres.New(pool)
	return nil
}

func (d *Dependencies) initRedis(ctx context.Context) error {
	cfg := d.Config
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	d.closers = append(d.closers, client.Close)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			d.Logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			d.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	d.Redis = client

	if cfg.EventsPublishTasks {
		connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse task queue url: %w", err)
		}
		d.TaskClient = asynq.NewClient(connOpt)
		d.closers = append(d.closers, d.TaskClient.Close)
	}
	return nil
}

func (d *Dependencies) initServices() error {
	cfg := d.Config

	notifiers := []events.Notifier{events.LogNotifier{Logger: d.Logger.With().Str("component", "events").Logger()}}
	if d.TaskClient != nil {
		breaker := resilience.NewBreaker("event_tasks", 5, 0.5, 30*time.Second).
			WithLogger(d.Logger.With().Str("component", "breaker").Logger())
		notifiers = append(notifiers, events.Guarded{
			Next:    events.TaskPublisher{Client: d.TaskClient, MaxRetry: 10, Retention: 24 * time.Hour},
			Breaker: breaker,
		})
	}
	d.Bus = &events.Bus{Store: d.Store, Notifiers: notifiers}

	numbers, err := refno.NewGenerator(cfg.SaleNumberNode)
	if err != nil {
		return fmt.Errorf("init sale numbers: %w", err)
	}

	var locker sale.Locker
	if d.Redis != nil {
		locker = lock.Locker{R: d.Redis, Prefix: "bizledger:", RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockMaxWait}
		d.Limiter, err = ratelimit.NewRedisLimiter(d.Redis, cfg.RateLimitWrites)
	} else {
		local := lock.NewLocal()
		local.MaxWait = cfg.LockMaxWait
		locker = local
		d.Limiter, err = ratelimit.NewMemoryLimiter(cfg.RateLimitWrites)
	}
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	d.Sales = &sale.Service{
		Store:             d.Store,
		Employees:         d.Store,
		Numbers:           numbers,
		Locker:            locker,
		Events:            d.Bus,
		Logger:            d.Logger.With().Str("component", "sale").Logger(),
		Currency:          cfg.CurrencyCode,
		LockTTL:           cfg.LockTTL,
		ReferenceAttempts: cfg.ReferenceMaxAttempts,
		PaymentRetries:    cfg.PaymentMaxRetries,
		AllowEmptyCart:    cfg.AllowEmptyCheckout,
	}
	d.Commissions = &commission.Service{
		Store:  d.Store,
		Events: d.Bus,
		Logger: d.Logger.With().Str("component", "commission").Logger(),
	}
	return nil
}

// Probes returns readiness checks for the connected backends.
func (d *Dependencies) Probes() map[string]health.Probe {
	probes := map[string]health.Probe{"store": d.Store.Ping}
	if d.Redis != nil {
		probes["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return probes
}

// Close releases connections in reverse order of acquisition.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
