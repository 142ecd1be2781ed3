// Package config loads deployment settings from a .env file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Environment variable names.
const (
	EnvHTTPAddr         = "VAULT_HTTP_ADDR"
	EnvPostgresDSN      = "POSTGRES_DSN"
	EnvClickhouseDSN    = "CLICKHOUSE_DSN"
	EnvUseMemory        = "VAULT_USE_MEMORY"
	EnvFeeCap           = "VAULT_FEE_CAP"
	EnvBaseDecimals     = "VAULT_BASE_DECIMALS"
	EnvNAVInterval      = "VAULT_NAV_INTERVAL"
	EnvDecayRetainedPct = "VAULT_DECAY_RETAINED_PCT"
	EnvDecayDays        = "VAULT_DECAY_DAYS"
)

// Config holds every setting a binary may need.
type Config struct {
	HTTPAddr         string
	PostgresDSN      string
	ClickhouseDSN    string
	UseMemory        bool
	FeeCap           uint
	BaseDecimals     uint
	NAVInterval      time.Duration
	DecayRetainedPct float64
	DecayDays        uint
	Debug            bool
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		FeeCap:           999_999,
		BaseDecimals:     6,
		NAVInterval:      time.Minute,
		DecayRetainedPct: 50,
		DecayDays:        180,
	}
}

// LoadEnvFile loads environment variables from path if it exists.
// Variables already set in the environment are not overridden.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := unquote(strings.TrimSpace(parts[1]))

		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// FromEnv overlays environment variables on the defaults.
func FromEnv() (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	parse := func(key string, set func(string) error) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
			}
		}
	}

	str(EnvHTTPAddr, &cfg.HTTPAddr)
	str(EnvPostgresDSN, &cfg.PostgresDSN)
	str(EnvClickhouseDSN, &cfg.ClickhouseDSN)
	parse(EnvUseMemory, func(v string) (err error) {
		cfg.UseMemory, err = strconv.ParseBool(v)
		return err
	})
	parse(EnvFeeCap, func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		cfg.FeeCap = uint(n)
		return err
	})
	parse(EnvBaseDecimals, func(v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		cfg.BaseDecimals = uint(n)
		return err
	})
	parse(EnvNAVInterval, func(v string) (err error) {
		cfg.NAVInterval, err = time.ParseDuration(v)
		return err
	})
	parse(EnvDecayRetainedPct, func(v string) (err error) {
		cfg.DecayRetainedPct, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse(EnvDecayDays, func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		cfg.DecayDays = uint(n)
		return err
	})

	return cfg, errors.Join(errs...)
}

// RegisterFlags binds the server flags to cfg, using its current values as defaults.
func (cfg *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "API, /ws and /metrics listen address")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (fact journal, snapshots)")
	fs.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string (NAV time series)")
	fs.BoolVar(&cfg.UseMemory, "use-memory", cfg.UseMemory, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	fs.UintVar(&cfg.FeeCap, "fee-cap", cfg.FeeCap, "Cap for every fee rate, in ppm")
	fs.UintVar(&cfg.BaseDecimals, "base-decimals", cfg.BaseDecimals, "Decimals of the demo base asset")
	fs.DurationVar(&cfg.NAVInterval, "nav-interval", cfg.NAVInterval, "NAV sampling interval")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Development logging")
}

// RegisterDecayFlags binds the decay calibration flags to cfg.
func (cfg *Config) RegisterDecayFlags(fs *flag.FlagSet) {
	fs.Float64Var(&cfg.DecayRetainedPct, "retained-pct", cfg.DecayRetainedPct, "Percentage of the reserve still locked after the horizon")
	fs.UintVar(&cfg.DecayDays, "days", cfg.DecayDays, "Decay horizon in days")
}

// Load reads .env, the environment and then args into a Config.
func Load(fs *flag.FlagSet, args []string, register ...func(*Config, *flag.FlagSet)) (Config, error) {
	LoadEnvFile(".env")

	cfg, err := FromEnv()
	if err != nil {
		return cfg, err
	}
	for _, r := range register {
		r(&cfg, fs)
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the settings the server needs.
func (cfg Config) Validate() error {
	var errs []error
	if !cfg.UseMemory && (cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "") {
		errs = append(errs, errors.New("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)"))
	}
	if cfg.FeeCap == 0 || cfg.FeeCap >= 1_000_000 {
		errs = append(errs, fmt.Errorf("fee cap %d must be in [1, 999999]", cfg.FeeCap))
	}
	if cfg.BaseDecimals > 18 {
		errs = append(errs, fmt.Errorf("base decimals %d must be at most 18", cfg.BaseDecimals))
	}
	if cfg.NAVInterval <= 0 {
		errs = append(errs, fmt.Errorf("nav interval %s must be positive", cfg.NAVInterval))
	}
	if err := cfg.ValidateDecay(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateDecay checks the decay calibration settings.
func (cfg Config) ValidateDecay() error {
	if cfg.DecayRetainedPct <= 0 || cfg.DecayRetainedPct >= 100 {
		return fmt.Errorf("retained percentage %g must be in (0, 100)", cfg.DecayRetainedPct)
	}
	if cfg.DecayDays == 0 {
		return errors.New("decay horizon must be at least one day")
	}
	return nil
}

// DecayRetainedPPM returns the retained percentage in parts per million,
// rounded to the nearest unit.
func (cfg Config) DecayRetainedPPM() uint64 {
	return uint64(decimal.NewFromFloat(cfg.DecayRetainedPct).Shift(4).Round(0).IntPart())
}

// DecaySeconds returns the decay horizon in seconds.
func (cfg Config) DecaySeconds() uint64 {
	return uint64(cfg.DecayDays) * 86400
}
