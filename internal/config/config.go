package config

import (
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	HTTPPort    string
	PostgresDSN string
	RedisURL    string
	LogLevel    string
	LogPretty   bool

	// Minute-of-hour offsets for the hourly triggers. Cache refresh runs one
	// minute after generation so freshly generated posts land in the window.
	GenerationMinute int
	RefreshMinute    int

	// Lease TTLs per trigger. Each must comfortably exceed that trigger's
	// worst-case critical section; tunable, not load-bearing.
	HourlyLeaseTTL   time.Duration
	RefreshLeaseTTL  time.Duration
	MinuteLeaseTTL   time.Duration
	FallbackLeaseTTL time.Duration
	MoverLeaseTTL    time.Duration

	// Per-queue worker concurrency bounds simultaneous calls against the
	// rate-limited external collaborators.
	GenerationConcurrency int
	PublishingConcurrency int
	ExternalConcurrency   int

	GenerationMaxAttempts int
	PublishingMaxAttempts int
	ExternalMaxAttempts   int

	GenerationBackoffBase time.Duration
	PublishingBackoffBase time.Duration
	ExternalBackoffBase   time.Duration

	// Spread windows for burst enqueues.
	GenerationSpread time.Duration
	PublishSpread    time.Duration

	MoverInterval      time.Duration
	RetentionCompleted int64
	RetentionFailed    int64
	RetentionTTL       time.Duration
}

func Load() AppConfig {
	return AppConfig{
		HTTPPort:    envStr("HTTP_PORT", "8080"),
		PostgresDSN: envStr("DATABASE_URL", "host=localhost port=5432 user=postflow dbname=postflow sslmode=disable"),
		RedisURL:    envStr("REDIS_URL", "redis://localhost:6379"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		LogPretty:   envStr("LOG_PRETTY", "") == "true",

		GenerationMinute: envInt("GENERATION_MINUTE", 15),
		RefreshMinute:    envInt("CACHE_REFRESH_MINUTE", 16),

		HourlyLeaseTTL:   envDur("HOURLY_LEASE_TTL", 10*time.Minute),
		RefreshLeaseTTL:  envDur("REFRESH_LEASE_TTL", 5*time.Minute),
		MinuteLeaseTTL:   envDur("MINUTE_LEASE_TTL", 20*time.Second),
		FallbackLeaseTTL: envDur("FALLBACK_LEASE_TTL", 20*time.Second),
		MoverLeaseTTL:    envDur("MOVER_LEASE_TTL", 5*time.Second),

		GenerationConcurrency: envInt("GENERATION_CONCURRENCY", 3),
		PublishingConcurrency: envInt("PUBLISHING_CONCURRENCY", 5),
		ExternalConcurrency:   envInt("EXTERNAL_CONCURRENCY", 2),

		GenerationMaxAttempts: envInt("GENERATION_MAX_ATTEMPTS", 3),
		PublishingMaxAttempts: envInt("PUBLISHING_MAX_ATTEMPTS", 5),
		ExternalMaxAttempts:   envInt("EXTERNAL_MAX_ATTEMPTS", 4),

		GenerationBackoffBase: envDur("GENERATION_BACKOFF_BASE", time.Minute),
		PublishingBackoffBase: envDur("PUBLISHING_BACKOFF_BASE", 5*time.Second),
		ExternalBackoffBase:   envDur("EXTERNAL_BACKOFF_BASE", 30*time.Second),

		GenerationSpread: envDur("GENERATION_SPREAD", 2*time.Minute),
		PublishSpread:    envDur("PUBLISH_SPREAD", 10*time.Second),

		MoverInterval:      envDur("MOVER_INTERVAL", 2*time.Second),
		RetentionCompleted: int64(envInt("RETENTION_COMPLETED", 100)),
		RetentionFailed:    int64(envInt("RETENTION_FAILED", 500)),
		RetentionTTL:       envDur("RETENTION_TTL", time.Hour),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
