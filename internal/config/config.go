package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything read from the environment at startup.
type Config struct {
	HTTPAddr    string
	ExchangeURL string

	// Placement retry policy for the processor.
	MaxRetries int
	RetryDelay time.Duration

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
}

// Load reads configuration from the environment, applying defaults for
// anything unset. RETRY_DELAY is given in (possibly fractional) seconds.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("EXCHANGE_URL", "http://localhost:9000/orders")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("RETRY_DELAY", 5.0)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "lemon_markets")

	cfg := &Config{
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		ExchangeURL: v.GetString("EXCHANGE_URL"),
		MaxRetries:  v.GetInt("MAX_RETRIES"),
		RetryDelay:  time.Duration(v.GetFloat64("RETRY_DELAY") * float64(time.Second)),
		DBHost:      v.GetString("DB_HOST"),
		DBUser:      v.GetString("DB_USER"),
		DBPassword:  v.GetString("DB_PASSWORD"),
		DBName:      v.GetString("DB_NAME"),
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must be non-negative, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay < 0 {
		return nil, fmt.Errorf("RETRY_DELAY must be non-negative, got %s", cfg.RetryDelay)
	}
	return cfg, nil
}
