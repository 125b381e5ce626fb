// Package config loads service configuration with viper: defaults, optional
// config file, and SHX_-prefixed environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server Server `mapstructure:"server"`
	DB     DB     `mapstructure:"db"`
	Redis  Redis  `mapstructure:"redis"`
	Wallet Wallet `mapstructure:"wallet"`
	Curve  Curve  `mapstructure:"curve"`
	Limits Limits `mapstructure:"limits"`
	Payout Payout `mapstructure:"payout"`
}

type Server struct {
	Port            string        `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DB struct {
	URL string `mapstructure:"url"`
}

type Redis struct {
	URL      string        `mapstructure:"url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type Wallet struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Curve struct {
	Elasticity float64 `mapstructure:"elasticity"`
	PriceFloor float64 `mapstructure:"price_floor"`
}

type Limits struct {
	// MaxOwnershipFraction of one market's supply per holder; 0 disables.
	MaxOwnershipFraction float64 `mapstructure:"max_ownership_fraction"`
	// MaxTotalInvested per user across all markets; 0 disables.
	MaxTotalInvested float64 `mapstructure:"max_total_invested"`
}

type Payout struct {
	// Channel is the Redis Pub/Sub channel carrying payout triggers.
	Channel string `mapstructure:"channel"`
}

// Load reads configuration from an optional config.yaml in the working
// directory, overridden by SHX_* environment variables
// (e.g. SHX_SERVER_PORT, SHX_DB_URL).
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("db.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", 30*time.Second)
	v.SetDefault("wallet.base_url", "")
	v.SetDefault("wallet.timeout", 5*time.Second)
	v.SetDefault("curve.elasticity", 0.1)
	v.SetDefault("curve.price_floor", 0.01)
	v.SetDefault("limits.max_ownership_fraction", 0.0)
	v.SetDefault("limits.max_total_invested", 0.0)
	v.SetDefault("payout.channel", "payouts")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; only a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
