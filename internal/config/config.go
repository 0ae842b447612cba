package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	StoreDriver        string
	DatabaseURL        string
	DBMaxConns         int
	MigrationsAuto     bool
	RedisURL           string
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	HSTSEnabled        bool

	CurrencyCode         string
	AllowEmptyCheckout   bool
	SaleNumberNode       int64
	ReferenceMaxAttempts int
	PaymentMaxRetries    int
	LockTTL              time.Duration
	LockRetryBackoff     time.Duration
	LockMaxWait          time.Duration
	IdempotencyTTL       time.Duration
	RateLimitWrites      string
	TenantHeader         string
	DefaultBusinessID    string
	DefaultPerPage       int

	LogFormat            string
	LogLevel             string
	MetricsNamespace     string
	MetricsEnabled       bool
	TracingEnabled       bool
	OTLPEndpoint         string
	TracingSamplingRatio float64
	EventsPublishTasks   bool
	WorkerConcurrency    int
	ReadyProbeTimeout    time.Duration
	ShutdownTimeout      time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		StoreDriver:        strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), DriverPostgres)),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		DBMaxConns:         parseInt(k.String("DB_MAX_CONNS"), 10),
		MigrationsAuto:     parseBool(k.String("MIGRATIONS_AUTO"), true),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MaxBodyBytes:       int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 1<<20)),
		HSTSEnabled:        parseBool(k.String("SECURITY_HSTS"), false),

		CurrencyCode:         strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "IDR")),
		AllowEmptyCheckout:   parseBool(k.String("ALLOW_EMPTY_CHECKOUT"), false),
		SaleNumberNode:       int64(parseInt(k.String("SALE_NUMBER_NODE"), 1)),
		ReferenceMaxAttempts: parseInt(k.String("REFERENCE_MAX_ATTEMPTS"), 5),
		PaymentMaxRetries:    parseInt(k.String("PAYMENT_MAX_RETRIES"), 3),
		LockTTL:              parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff:     parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		LockMaxWait:          parseDuration(k.String("LOCK_MAX_WAIT"), "3s"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWrites:      valueOrDefault(k.String("RATE_LIMIT_WRITES"), "120-M"),
		TenantHeader:         valueOrDefault(k.String("TENANT_HEADER"), "X-Business-ID"),
		DefaultBusinessID:    strings.TrimSpace(k.String("DEFAULT_BUSINESS_ID")),
		DefaultPerPage:       parseInt(k.String("DEFAULT_PER_PAGE"), 50),

		LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "bizledger"),
		MetricsEnabled:       parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		TracingEnabled:       parseBool(k.String("OBS_ENABLE_TRACING"), false),
		OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		EventsPublishTasks:   parseBool(k.String("EVENTS_PUBLISH_TASKS"), false),
		WorkerConcurrency:    parseInt(k.String("WORKER_CONCURRENCY"), 5),
		ReadyProbeTimeout:    parseDuration(k.String("HEALTH_READY_TIMEOUT"), "500ms"),
		ShutdownTimeout:      parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver)
	}
	if c.EventsPublishTasks && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when EVENTS_PUBLISH_TASKS is enabled")
	}
	if c.DefaultBusinessID != "" {
		if _, err := uuid.Parse(c.DefaultBusinessID); err != nil {
			return fmt.Errorf("DEFAULT_BUSINESS_ID: %w", err)
		}
	}
	if len(c.CurrencyCode) != 3 {
		return fmt.Errorf("CURRENCY_CODE must be a 3 letter code, got %q", c.CurrencyCode)
	}
	if c.ReferenceMaxAttempts <= 0 {
		return errors.New("REFERENCE_MAX_ATTEMPTS must be positive")
	}
	if c.PaymentMaxRetries < 0 {
		return errors.New("PAYMENT_MAX_RETRIES must not be negative")
	}
	if c.SaleNumberNode < 0 || c.SaleNumberNode > 1023 {
		return fmt.Errorf("SALE_NUMBER_NODE must be between 0 and 1023, got %d", c.SaleNumberNode)
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return n
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	return fallback
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
