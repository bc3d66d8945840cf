// Package config loads the relay's configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Scope selects the delivery model. Exactly one is active per deployment;
// the two are not combinable against one message log.
type Scope string

const (
	// ScopeBroadcast keeps one global log, visible to every session.
	ScopeBroadcast Scope = "broadcast"

	// ScopeDirected ties each message to a sender/recipient pair.
	ScopeDirected Scope = "directed"
)

// Driver selects the persistence driver.
type Driver string

const (
	DriverBadger   Driver = "badger"
	DriverPostgres Driver = "postgres"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`
	Env  string `envconfig:"ENV" default:"development"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	Scope Scope `envconfig:"SCOPE" default:"broadcast"`

	Store      Driver `envconfig:"STORE" default:"badger"`
	BadgerPath string `envconfig:"BADGER_PATH" default:"data/wirechat"`
	DBURL      string `envconfig:"DB_URL"`

	NATSURL      string `envconfig:"NATS_URL"`
	NATSCred     string `envconfig:"NATS_CRED"`
	NATSUser     string `envconfig:"NATS_USER"`
	NATSPassword string `envconfig:"NATS_PASSWORD"`

	// Per-connection limits, requests per window.
	MessageRateLimit  int           `envconfig:"MESSAGE_RATE_LIMIT" default:"30"`
	MessageRateWindow time.Duration `envconfig:"MESSAGE_RATE_WINDOW" default:"1m"`
	TypingRateLimit   int           `envconfig:"TYPING_RATE_LIMIT" default:"60"`
	TypingRateWindow  time.Duration `envconfig:"TYPING_RATE_WINDOW" default:"1m"`
}

// Load reads the environment, first folding in a .env file if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	switch cfg.Scope {
	case ScopeBroadcast, ScopeDirected:
	default:
		return Config{}, fmt.Errorf("config: unknown SCOPE %q", cfg.Scope)
	}

	switch cfg.Store {
	case DriverBadger:
	case DriverPostgres:
		if cfg.DBURL == "" {
			return Config{}, fmt.Errorf("config: STORE=postgres requires DB_URL")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown STORE %q", cfg.Store)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}
