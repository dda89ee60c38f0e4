/*
Package config maps OS environment variables into a strongly-typed
struct with defaults and early validation. Command-line flags may still
override individual fields (see cmd/server).
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration for the circulation server.
type Config struct {

	// Server settings
	Port string `env:"PORT" envDefault:"8080"`

	// DatabasePath is the SQLite file. ":memory:" runs fully in-memory.
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/circulation.db"`

	// LoanPeriodDays is the default loan period applied when a checkout
	// does not specify one.
	LoanPeriodDays int `env:"LOAN_PERIOD_DAYS" envDefault:"14"`

	// LockWait bounds how long a lifecycle operation waits for a
	// contended book before failing with a busy error.
	LockWait time.Duration `env:"LOCK_WAIT" envDefault:"3s"`

	// Fine accrual policy.
	FineDailyRate string `env:"FINE_DAILY_RATE" envDefault:"0.25"`
	FineGraceDays int    `env:"FINE_GRACE_DAYS" envDefault:"0"`
}

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	if cfg.LoanPeriodDays <= 0 {
		return nil, fmt.Errorf("config: LOAN_PERIOD_DAYS must be positive, got %d", cfg.LoanPeriodDays)
	}
	if cfg.FineGraceDays < 0 {
		return nil, fmt.Errorf("config: FINE_GRACE_DAYS must not be negative, got %d", cfg.FineGraceDays)
	}
	return cfg, nil
}
