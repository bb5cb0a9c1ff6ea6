package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Storefront StorefrontConfig
	Redis      RedisConfig
	Payment    PaymentConfig
}

type AppConfig struct {
	Name string
	Env  string
}

// ServerConfig is the listen address of the device-facing HTTP API.
type ServerConfig struct {
	Host string
	Port int
}

// StorefrontConfig points at the remote ordering backend.
type StorefrontConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// PaymentConfig holds the polling cadence for payment confirmation.
// SteadyInterval is the delay between checks while the payment is pending,
// BackoffInitial/BackoffMax bound the delay growth on transport errors,
// and MaxPollWindow is the total time a single payment record is polled
// before the attempt is marked failed.
type PaymentConfig struct {
	SteadyInterval time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxPollWindow  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "tableside"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnvAsInt("HTTP_PORT", 8040),
		},
		Storefront: StorefrontConfig{
			BaseURL:  getEnv("STOREFRONT_BASE_URL", "https://qrmenu.demo.picosbs.com/api/v1/qr-menu"),
			APIToken: getEnv("STOREFRONT_API_TOKEN", ""),
			Timeout:  getEnvAsDuration("STOREFRONT_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Payment: PaymentConfig{
			SteadyInterval: getEnvAsDuration("PAYMENT_POLL_INTERVAL", 3*time.Second),
			BackoffInitial: getEnvAsDuration("PAYMENT_BACKOFF_INITIAL", 2*time.Second),
			BackoffMax:     getEnvAsDuration("PAYMENT_BACKOFF_MAX", 15*time.Second),
			MaxPollWindow:  getEnvAsDuration("PAYMENT_MAX_POLL_WINDOW", 30*time.Minute),
		},
	}

	return cfg, cfg.validate()
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

/* ================= helpers ================= */

func (c *Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("HTTP_PORT is invalid")
	}
	if c.Storefront.BaseURL == "" {
		return fmt.Errorf("STOREFRONT_BASE_URL is empty")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is empty")
	}
	if c.Payment.SteadyInterval <= 0 || c.Payment.BackoffInitial <= 0 {
		return fmt.Errorf("payment polling intervals must be positive")
	}
	if c.Payment.BackoffMax < c.Payment.BackoffInitial {
		return fmt.Errorf("PAYMENT_BACKOFF_MAX must not be below PAYMENT_BACKOFF_INITIAL")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
