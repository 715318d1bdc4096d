package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string  `mapstructure:"ENV"`
	DatabaseURL    string  `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32   `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32   `mapstructure:"DB_MIN_CONNS"`
	MatchThreshold float64 `mapstructure:"MATCH_THRESHOLD"`
	LegacySystem   string  `mapstructure:"LEGACY_SYSTEM"`
	ReportPath     string  `mapstructure:"REPORT_PATH"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("MATCH_THRESHOLD", 0.85)
	v.SetDefault("LEGACY_SYSTEM", "folder_based")
	v.SetDefault("REPORT_PATH", "./migration-report.csv")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MATCH_THRESHOLD")
	v.BindEnv("LEGACY_SYSTEM")
	v.BindEnv("REPORT_PATH")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run a migration with.
// The match threshold must stay inside [0,1]; anything else silently changes
// which fuzzy candidates are accepted.
func (c *Config) Validate() error {
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be in [0,1], got %v", c.MatchThreshold)
	}
	if strings.TrimSpace(c.LegacySystem) == "" {
		return fmt.Errorf("LEGACY_SYSTEM must not be blank")
	}
	return nil
}
