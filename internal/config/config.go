package config

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cast"
)

// Config holds the service's runtime configuration, loaded from the environment
// with the teacher's env-first, fallback-default convention.
type Config struct {
	Port           int
	DatabaseURL    string
	RedisAddr      string
	ScanWorkers    int
	ScanRateLimit  int // fast-hash probes started per second
	JobConcurrency int // concurrent scan tasks the queue worker runs
	LogLevel       string
}

func Load() *Config {
	return &Config{
		Port:           envInt("PORT", 8090),
		DatabaseURL:    env("DATABASE_URL", "postgres://reelindex:reelindex@db:5432/reelindex?sslmode=disable"),
		RedisAddr:      env("REDIS_ADDR", "redis:6379"),
		ScanWorkers:    envInt("SCAN_WORKERS", 4),
		ScanRateLimit:  envInt("SCAN_RATE_LIMIT", 50),
		JobConcurrency: envInt("JOB_CONCURRENCY", 4),
		LogLevel:       env("LOG_LEVEL", "info"),
	}
}

// Addr returns the address the control API should bind to.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		i, err := cast.ToIntE(v)
		if err != nil {
			log.Printf("config: invalid int for %s=%q, using default %d: %v", key, v, fallback, err)
			return fallback
		}
		return i
	}
	return fallback
}
