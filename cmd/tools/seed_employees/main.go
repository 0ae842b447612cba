// Command seed_employees loads employee commission settings from a JSON file
// into the Postgres store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/bizledger/internal/config"
	"github.com/noah-isme/bizledger/internal/obs"
	"github.com/noah-isme/bizledger/internal/store/postgres"
)

func main() {
	file := flag.String("file", "employees.json", "path to a JSON array of employees")
	migrate := flag.Bool("migrate", true, "apply pending migrations first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seed_employees").Logger()
	if cfg.StoreDriver != config.DriverPostgres {
		logger.Fatal().Str("driver", cfg.StoreDriver).Msg("seeding requires the postgres driver")
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal().Err(err).Msg("open employees file")
	}
	employees, err := readEmployees(f)
	f.Close()
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("read employees")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *migrate {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	store := postgres.New(pool)
	for _, emp := range employees {
		if err := store.PutEmployee(ctx, emp); err != nil {
			logger.Error().Err(err).Str("employee_id", emp.ID.String()).Msg("upsert employee")
			return
		}
		logger.Info().
			Str("employee_id", emp.ID.String()).
			Str("business_id", emp.BusinessID.String()).
			Str("commission_type", string(emp.CommissionType)).
			Msg("employee seeded")
	}
	logger.Info().Int("count", len(employees)).Msg("seeding complete")
}
