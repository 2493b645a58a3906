package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/example/fooddb/internal/logging"
)

// Config captures environment driven configuration values for fooddb.
type Config struct {
	SQLiteDSN        string        `env:"FOODDB_SQLITE_DSN" envDefault:"fooddb.db"`
	MigrationDir     string        `env:"FOODDB_MIGRATION_DIR"`
	MigrationTimeout time.Duration `env:"FOODDB_MIGRATION_TIMEOUT" envDefault:"5m"`
	VerifyChecksum   bool          `env:"FOODDB_VERIFY_CHECKSUM" envDefault:"true"`
	BusyTimeout      time.Duration `env:"FOODDB_BUSY_TIMEOUT" envDefault:"30s"`
	LogLevel         string        `env:"FOODDB_LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"FOODDB_LOG_FORMAT" envDefault:"json"`
}

// Load parses configuration values from the current process environment.
//
// Defaults apply to unset variables. Values that parse but are out of range
// are reported together in a single error.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment values: %w", err)
	}

	cfg.SQLiteDSN = strings.TrimSpace(cfg.SQLiteDSN)
	cfg.MigrationDir = strings.TrimSpace(cfg.MigrationDir)
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if invalid := cfg.invalidFields(); len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func (c Config) invalidFields() []string {
	invalid := make([]string, 0, 4)

	if c.SQLiteDSN == "" {
		invalid = append(invalid, "FOODDB_SQLITE_DSN")
	}
	if c.MigrationTimeout <= 0 {
		invalid = append(invalid, "FOODDB_MIGRATION_TIMEOUT")
	}
	if c.BusyTimeout < 0 {
		invalid = append(invalid, "FOODDB_BUSY_TIMEOUT")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		invalid = append(invalid, "FOODDB_LOG_LEVEL")
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		invalid = append(invalid, "FOODDB_LOG_FORMAT")
	}

	return invalid
}
