package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AdminAPIKey string

	SystemActorID      string
	SystemActorSeedHex string

	PolicyPath string

	TrustHealthyMinRate       float64
	TrustDegradedMinRate      float64
	TrustMinSamples           int
	TrustWindowDays           int
	TrustDegradedGraceMinutes int
	TrustBatchConcurrency     int
	TrustHistoryEnabled       bool

	GatewayOutboxSize          int
	GatewayWriteTimeoutSeconds int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                   addr,
		PostgresDSN:                os.Getenv("POSTGRES_DSN"),
		LogLevel:                   envDefault("LOG_LEVEL", "info"),
		AdminAPIKey:                os.Getenv("ADMIN_API_KEY"),
		SystemActorID:              os.Getenv("SYSTEM_ACTOR_ID"),
		SystemActorSeedHex:         os.Getenv("SYSTEM_ACTOR_SEED_HEX"),
		PolicyPath:                 os.Getenv("POLICY_PATH"),
		TrustHealthyMinRate:        envRateDefault("TRUST_HEALTHY_MIN_RATE", 0.8),
		TrustDegradedMinRate:       envRateDefault("TRUST_DEGRADED_MIN_RATE", 0.5),
		TrustMinSamples:            envIntDefault("TRUST_MIN_SAMPLES", 1),
		TrustWindowDays:            envIntDefault("TRUST_WINDOW_DAYS", 7),
		TrustDegradedGraceMinutes:  envIntDefault("TRUST_DEGRADED_GRACE_MINUTES", 30),
		TrustBatchConcurrency:      envIntDefault("TRUST_BATCH_CONCURRENCY", 4),
		TrustHistoryEnabled:        envBoolDefault("TRUST_HISTORY_ENABLED", true),
		GatewayOutboxSize:          envIntDefault("GATEWAY_OUTBOX_SIZE", 64),
		GatewayWriteTimeoutSeconds: envIntDefault("GATEWAY_WRITE_TIMEOUT_SECONDS", 10),
		RateLimitRequests:          envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:     envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:        envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:           envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisDB:                    envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envRateDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || parsed <= 0 || parsed > 1 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func (c Config) DegradedGrace() time.Duration {
	if c.TrustDegradedGraceMinutes <= 0 {
		return 0
	}
	return time.Duration(c.TrustDegradedGraceMinutes) * time.Minute
}

func (c Config) GatewayWriteTimeout() time.Duration {
	if c.GatewayWriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.GatewayWriteTimeoutSeconds) * time.Second
}
