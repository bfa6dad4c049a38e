package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// State backend selectors.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const (
	defaultAppName       = "overlay-hostd"
	defaultPort          = "8080"
	defaultLogLevel      = "info"
	defaultBackend       = BackendMemory
	defaultShutdownDelay = 10 * time.Second
	defaultEnergy        = 100_000
	defaultDedupeTTL     = 24 * time.Hour
)

// Config captures the host emulator's runtime configuration, loaded from
// environment variables.
type Config struct {
	AppName          string
	Port             string
	LogLevel         string
	Backend          string
	DatabaseURL      string
	RedisURL         string
	ShutdownPeriod   time.Duration
	InvocationEnergy uint64
	DedupeTTL        time.Duration
}

// Load reads configuration from the environment. Backend URLs are only
// required for the backend actually selected.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		Backend:          strings.ToLower(getEnv("STATE_BACKEND", defaultBackend)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ShutdownPeriod:   defaultShutdownDelay,
		InvocationEnergy: defaultEnergy,
		DedupeTTL:        defaultDedupeTTL,
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv("INVOCATION_ENERGY"); v != "" {
		energy, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INVOCATION_ENERGY: %w", err)
		}
		if energy == 0 {
			return Config{}, fmt.Errorf("INVOCATION_ENERGY must be positive")
		}
		cfg.InvocationEnergy = energy
	}

	if v := os.Getenv("DEDUPE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEDUPE_TTL: %w", err)
		}
		cfg.DedupeTTL = d
	}

	switch cfg.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STATE_BACKEND=postgres")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when STATE_BACKEND=redis")
		}
	default:
		return Config{}, fmt.Errorf("unknown STATE_BACKEND %q", cfg.Backend)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
