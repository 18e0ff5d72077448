package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application, loaded once from the
// environment at startup.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string

	NumWorkers     int
	ClaimBatchSize int
	PollInterval   time.Duration
	AttemptTimeout time.Duration
	LeaseWindow    time.Duration

	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	SigningSecret string

	BreakerThreshold int
	BreakerCooldown  time.Duration
	TargetRateLimit  int

	MonitorInterval       time.Duration
	HeartbeatStaleAfter   time.Duration
	AlertFailureThreshold int
	AlertCooldown         time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	attemptTimeout := getEnvDuration("ATTEMPT_TIMEOUT", 10*time.Second)

	return &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   dbURL,
		RedisURL:      redisURL,
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		NumWorkers:     getEnvInt("NUM_WORKERS", 4),
		ClaimBatchSize: getEnvInt("CLAIM_BATCH_SIZE", 10),
		PollInterval:   getEnvDuration("POLL_INTERVAL", 500*time.Millisecond),
		AttemptTimeout: attemptTimeout,
		// The lease outlives the attempt so a slow-but-alive worker is not
		// raced by a reclaim.
		LeaseWindow: getEnvDuration("LEASE_WINDOW", 2*attemptTimeout),

		MaxAttempts: getEnvInt("MAX_ATTEMPTS", 5),
		BackoffBase: getEnvDuration("BACKOFF_BASE", 2*time.Second),
		BackoffMax:  getEnvDuration("BACKOFF_MAX", 5*time.Minute),

		SigningSecret: getEnv("SIGNING_SECRET", ""),

		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),
		TargetRateLimit:  getEnvInt("TARGET_RATE_LIMIT", 0),

		MonitorInterval:       getEnvDuration("MONITOR_INTERVAL", 30*time.Second),
		HeartbeatStaleAfter:   getEnvDuration("HEARTBEAT_STALE_AFTER", 2*time.Minute),
		AlertFailureThreshold: getEnvInt("ALERT_FAILURE_THRESHOLD", 5),
		AlertCooldown:         getEnvDuration("ALERT_COOLDOWN", 5*time.Minute),
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
