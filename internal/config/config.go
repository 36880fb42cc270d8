package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Feed     Feed     `mapstructure:"feed"`
	Trading  Trading  `mapstructure:"trading"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Feed holds the configuration for market data sourcing.
type Feed struct {
	Enabled         bool    `mapstructure:"enabled"`
	BaseURL         string  `mapstructure:"base_url"`
	ApiKey          string  `mapstructure:"apiKey"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
	PriceTimeoutMs  int     `mapstructure:"price_timeout_ms"`
	RefreshSchedule string  `mapstructure:"refresh_schedule"`
}

// Trading holds the configuration for the trading core.
type Trading struct {
	Pairs         []string `mapstructure:"pairs"`
	SweepSchedule string   `mapstructure:"sweep_schedule"`
	MockTicks     bool     `mapstructure:"mock_ticks"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("database.dsn", "trades.db")
	viper.SetDefault("feed.rate_limit", 10)      // requests per second
	viper.SetDefault("feed.rate_limit_burst", 5) // burst size
	viper.SetDefault("feed.price_timeout_ms", 2000)
	viper.SetDefault("feed.refresh_schedule", "@every 1m")
	viper.SetDefault("trading.sweep_schedule", "@every 1m")
	viper.SetDefault("trading.pairs", []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "USDCAD"})

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
