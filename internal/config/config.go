package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr           string        `mapstructure:"addr"`
	DBDriver       string        `mapstructure:"db_driver"`
	DBDSN          string        `mapstructure:"db_dsn"`
	CookieKey      string        `mapstructure:"cookie_key"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	PipelineBuffer int           `mapstructure:"pipeline_buffer"`
	Dev            bool          `mapstructure:"dev"`
}

// Load reads configuration from an optional file plus PALAVER_* environment
// variables, with sensible defaults for local use.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("db_driver", "sqlite3")
	v.SetDefault("db_dsn", "palaver.db")
	v.SetDefault("cookie_key", "change-me-in-production")
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("reap_interval", time.Minute)
	v.SetDefault("idle_timeout", time.Hour)
	v.SetDefault("pipeline_buffer", 256)
	v.SetDefault("dev", false)

	v.SetEnvPrefix("PALAVER")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
