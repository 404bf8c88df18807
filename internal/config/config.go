package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Sessions
	JWTSecret    string `envconfig:"JWT_SECRET" required:"true"`
	TokenTTLMin  int    `envconfig:"TOKEN_TTL_MIN" default:"30"`

	// HTTP rate limiting (requests per second per client, with burst)
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"40"`

	// Cancellation policy
	CancellationCutoffHours int     `envconfig:"CANCELLATION_CUTOFF_HOURS" default:"36"`
	CancellationPenaltyRate float64 `envconfig:"CANCELLATION_PENALTY_RATE" default:"0.05"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var c Config
	err := envconfig.Process("", &c)
	return c, err
}

// TokenTTL returns the session token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMin) * time.Minute
}

// CancellationCutoff returns the minimum time before departure at which
// an order may still be cancelled.
func (c Config) CancellationCutoff() time.Duration {
	return time.Duration(c.CancellationCutoffHours) * time.Hour
}
