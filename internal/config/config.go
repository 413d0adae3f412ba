package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Stripe checkout configuration
	Stripe StripeConfig `env:",prefix=STRIPE_"`

	// Public issuance rate limits
	Rate RateConfig `env:",prefix=RATE_"`

	// Outbound SMS gateway
	SMS SMSConfig `env:",prefix=SMS_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
}

// DatabaseConfig holds storage configuration. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver   string `env:"DRIVER,default=postgres"`
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=pizzeria"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	Path     string `env:"PATH,default=pizzeria.db"` // sqlite only
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
	Migrate  bool   `env:"MIGRATE,default=true"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment   string        `env:"ENVIRONMENT,default=development"`
	LogLevel      string        `env:"LOG_LEVEL,default=info"`
	Debug         bool          `env:"DEBUG,default=false"`
	Timezone      string        `env:"TIMEZONE,default=Europe/Madrid"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=5m"`
	AdminToken    string        `env:"ADMIN_TOKEN"`
	CodeSecret    string        `env:"CODE_SECRET,default=change-me"`
}

// StripeConfig holds checkout and webhook settings
type StripeConfig struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	Currency      string `env:"CURRENCY,default=eur"`
	SuccessURL    string `env:"SUCCESS_URL,default=http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL     string `env:"CANCEL_URL,default=http://localhost:3000/checkout/cancel"`
}

// RateConfig limits anonymous coupon issuance per client
type RateConfig struct {
	IssueRPS   float64 `env:"ISSUE_RPS,default=2"`
	IssueBurst int     `env:"ISSUE_BURST,default=5"`
}

// SMSConfig points at the SMS gateway; an empty URL logs messages instead.
type SMSConfig struct {
	GatewayURL string        `env:"GATEWAY_URL"`
	Token      string        `env:"TOKEN"`
	Sender     string        `env:"SENDER,default=Pizzeria"`
	Timeout    time.Duration `env:"TIMEOUT,default=5s"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith loads configuration through the given lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if _, err := time.LoadLocation(cfg.App.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.App.Timezone, err)
	}
	return &cfg, nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Location returns the time zone used for coupon day/time windows
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
