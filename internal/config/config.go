package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration, populated from the environment.
// A .env file in the working directory is loaded first when present.
type Config struct {
	DBSource string `env:"DB_SOURCE"`
	Port     string `env:"SERVER_PORT" envDefault:"8080"`
	Env      string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret string `env:"JWT_SECRET,required"`

	// AdminAccount is the single privileged identity; EscrowAccount holds
	// buyer payments in flight and the accrued platform fees.
	AdminAccount  int64 `env:"ADMIN_ACCOUNT_ID,required"`
	EscrowAccount int64 `env:"ESCROW_ACCOUNT_ID,required"`

	// HeightInterval is the wall-time length of one height unit.
	HeightInterval time.Duration `env:"HEIGHT_INTERVAL" envDefault:"1s"`
	// HeightBase anchors height 0, RFC 3339.
	HeightBaseRaw string `env:"HEIGHT_BASE" envDefault:"2024-01-01T00:00:00Z"`
	HeightBase    time.Time

	// Platform defaults applied when the config record does not exist yet.
	DefaultFeeRateBps     int64 `env:"DEFAULT_FEE_RATE_BPS" envDefault:"250"`
	DefaultMinDiscountBps int64 `env:"DEFAULT_MIN_DISCOUNT_BPS" envDefault:"100"`
	DefaultMaxDiscountBps int64 `env:"DEFAULT_MAX_DISCOUNT_BPS" envDefault:"5000"`
}

// Seeded defaults obey the same bounds the admin endpoints enforce, so an
// operator cannot boot the platform into a state the API could never reach.
const (
	maxFeeRateBps  = 1000
	maxDiscountBps = 5000
)

func Load() (*Config, error) {
	// Ignore a missing .env; explicit env vars always win.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config parse failed: %w", err)
	}
	if cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	base, err := time.Parse(time.RFC3339, cfg.HeightBaseRaw)
	if err != nil {
		return nil, fmt.Errorf("HEIGHT_BASE must be RFC 3339: %w", err)
	}
	cfg.HeightBase = base

	if cfg.DefaultFeeRateBps < 0 || cfg.DefaultFeeRateBps > maxFeeRateBps {
		return nil, fmt.Errorf("DEFAULT_FEE_RATE_BPS must be between 0 and %d, got %d", maxFeeRateBps, cfg.DefaultFeeRateBps)
	}
	if cfg.DefaultMinDiscountBps < 0 || cfg.DefaultMinDiscountBps >= cfg.DefaultMaxDiscountBps || cfg.DefaultMaxDiscountBps > maxDiscountBps {
		return nil, fmt.Errorf("discount bounds must satisfy 0 <= min < max <= %d, got min %d max %d",
			maxDiscountBps, cfg.DefaultMinDiscountBps, cfg.DefaultMaxDiscountBps)
	}
	return &cfg, nil
}
