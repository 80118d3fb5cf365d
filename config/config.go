package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// New loads configuration from the environment, with a .env file as a
// convenience for local runs.
func New() (*Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

type Config struct {
	APP
	DB
	Queue
	Stripe
	Notifications
	Expiry
	Discrepancy
}

type APP struct {
	Port string `env:"APP_PORT" envDefault:"8080"`
}

type DB struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	User     string `env:"POSTGRES_USER"`
	Password string `env:"POSTGRES_PASSWORD"`
	Name     string `env:"POSTGRES_DB"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	TimeZone string `env:"POSTGRES_TIMEZONE" envDefault:"UTC"`
}

func (db DB) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		db.Host, db.User, db.Password, db.Name, db.Port, db.SSLMode, db.TimeZone,
	)
}

type Queue struct {
	CaptureQueueURL string `env:"CAPTURE_QUEUE_URL"`
	EventTopicARN   string `env:"EVENT_TOPIC_ARN"`

	// CaptureMaxRetries bounds transient capture failures per charge;
	// the count is read from charge history, not queue metadata.
	CaptureMaxRetries int64         `env:"CAPTURE_MAX_RETRIES" envDefault:"3"`
	CaptureRetryDelay time.Duration `env:"CAPTURE_RETRY_DELAY" envDefault:"10m"`
}

type Stripe struct {
	APIKey string `env:"STRIPE_API_KEY"`
}

type Notifications struct {
	// Allow-listed origins per provider, IPs or hostnames. An empty list
	// disables origin verification for that provider.
	StripeSources  []string `env:"STRIPE_NOTIFICATION_SOURCES" envSeparator:","`
	SandboxSources []string `env:"SANDBOX_NOTIFICATION_SOURCES" envSeparator:","`
}

// AllowedSources shapes the per-provider allow-lists for the verifier.
func (n Notifications) AllowedSources() map[string][]string {
	return map[string][]string{
		"stripe":  n.StripeSources,
		"sandbox": n.SandboxSources,
	}
}

type Expiry struct {
	ChargeTTL     time.Duration `env:"CHARGE_EXPIRY_TTL" envDefault:"90m"`
	SweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"5m"`
}

type Discrepancy struct {
	PollsPerSecond float64 `env:"DISCREPANCY_POLLS_PER_SECOND" envDefault:"2"`
}
