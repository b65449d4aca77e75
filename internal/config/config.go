package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Cart      CartConfig
	Checkout  CheckoutConfig
	Gateway   GatewayConfig
	Catalog   CatalogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string `env:"DB_HOST" envDefault:"localhost"`
	Port            int    `env:"DB_PORT" envDefault:"5432"`
	User            string `env:"DB_USER" envDefault:"postgres"`
	Password        string `env:"DB_PASSWORD"`
	Database        string `env:"DB_NAME" envDefault:"storefront"`
	MaxConnections  int    `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	MinConnections  int    `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	MaxConnLifetime int    `env:"DB_MAX_CONN_LIFETIME" envDefault:"300"` // seconds
	MigrateOnStart  bool   `env:"DB_MIGRATE_ON_START" envDefault:"false"`
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "console"
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// APIKey guards the admin endpoints.
	APIKey string `env:"API_KEY"`
	// CustomerTokenSecret verifies optional shopper tokens. Empty means every
	// shopper checks out as a guest.
	CustomerTokenSecret string `env:"CUSTOMER_TOKEN_SECRET"`
}

// RedisConfig holds the Redis connection used for carts and events.
type RedisConfig struct {
	Addr          string `env:"REDIS_ADDR"`
	Password      string `env:"REDIS_PASSWORD"`
	DB            int    `env:"REDIS_DB" envDefault:"0"`
	EventsChannel string `env:"REDIS_EVENTS_CHANNEL" envDefault:"order-status-events"`
}

// Enabled reports whether a Redis server is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// CartConfig selects where carts are kept.
type CartConfig struct {
	Store     string        `env:"CART_STORE" envDefault:"memory"` // "memory" or "redis"
	TTL       time.Duration `env:"CART_TTL" envDefault:"720h"`
	KeyPrefix string        `env:"CART_KEY_PREFIX" envDefault:"cart:"`
}

// CheckoutConfig holds checkout session settings.
type CheckoutConfig struct {
	PaymentWindow   time.Duration `env:"CHECKOUT_PAYMENT_WINDOW" envDefault:"30s"`
	SessionTTL      time.Duration `env:"CHECKOUT_SESSION_TTL" envDefault:"1h"`
	JanitorInterval time.Duration `env:"CHECKOUT_JANITOR_INTERVAL" envDefault:"5m"`
	PaymentMethods  []string      `env:"CHECKOUT_PAYMENT_METHODS" envSeparator:"," envDefault:"card,crypto"`
	Currency        string        `env:"STORE_CURRENCY" envDefault:"USD"`
}

// CurrencyUnit returns the parsed store currency.
func (c *CheckoutConfig) CurrencyUnit() currency.Unit {
	unit, err := currency.ParseISO(c.Currency)
	if err != nil {
		return currency.USD
	}
	return unit
}

// GatewayConfig holds payment gateway settings. An empty URL selects the
// sandbox gateway.
type GatewayConfig struct {
	URL            string        `env:"GATEWAY_URL"`
	Timeout        time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	CallbackSecret string        `env:"GATEWAY_CALLBACK_SECRET"`
	ReturnURL      string        `env:"GATEWAY_RETURN_URL" envDefault:"http://localhost:3000/checkout/return"`
}

// CatalogConfig holds catalog import configuration.
type CatalogConfig struct {
	Files         []string `env:"CATALOG_FILES" envSeparator:","`
	ImportOnStart bool     `env:"CATALOG_IMPORT_ON_START" envDefault:"false"`
	S3Enabled     bool     `env:"S3_ENABLED" envDefault:"false"`
	S3Bucket      string   `env:"S3_BUCKET"`
	S3Region      string   `env:"S3_REGION" envDefault:"us-east-1"`
	S3Prefix      string   `env:"S3_PREFIX" envDefault:"catalog/"` // Path prefix within bucket
}

// RateLimitConfig throttles payment submissions per client IP.
type RateLimitConfig struct {
	Enabled bool    `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RPS     float64 `env:"RATE_LIMIT_RPS" envDefault:"1"`
	Burst   int     `env:"RATE_LIMIT_BURST" envDefault:"3"`
}

// Load loads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads path without overriding variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Auth.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	switch c.Cart.Store {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("REDIS_ADDR is required when the cart store is redis")
		}
	default:
		return fmt.Errorf("invalid cart store: %s (must be memory or redis)", c.Cart.Store)
	}

	if c.Checkout.PaymentWindow <= 0 {
		return fmt.Errorf("checkout payment window must be positive")
	}

	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Checkout.PaymentWindow {
		return fmt.Errorf("server write timeout (%s) must exceed the checkout payment window (%s)", c.Server.WriteTimeout, c.Checkout.PaymentWindow)
	}

	if c.Checkout.SessionTTL <= 0 {
		return fmt.Errorf("checkout session TTL must be positive")
	}

	if len(c.Checkout.PaymentMethods) == 0 {
		return fmt.Errorf("at least one payment method is required")
	}

	if _, err := currency.ParseISO(c.Checkout.Currency); err != nil {
		return fmt.Errorf("invalid store currency: %s", c.Checkout.Currency)
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}

	if c.Gateway.URL != "" && c.Gateway.CallbackSecret == "" {
		return fmt.Errorf("GATEWAY_CALLBACK_SECRET is required when GATEWAY_URL is set")
	}

	if c.Catalog.S3Enabled {
		if c.Catalog.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.Catalog.S3Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate limit needs a positive rate and a burst of at least 1")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
