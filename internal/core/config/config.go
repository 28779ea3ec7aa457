package config

import (
	"time"

	redisclient "github.com/vietddude/paywatch/internal/infra/redis"
	"github.com/vietddude/paywatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Monitor  MonitorConfig      `yaml:"monitor"`
	Ledger   LedgerConfig       `yaml:"ledger"`
	Webhook  WebhookConfig      `yaml:"webhook"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MonitorConfig holds the payment-watch engine settings.
type MonitorConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	WatchTTL        time.Duration `yaml:"watch_ttl"`
	AmountEpsilon   string        `yaml:"amount_epsilon"` // decimal, e.g. "0.01"
	MaxConcurrency  int           `yaml:"max_concurrency"`
	NotifyQueueSize int           `yaml:"notify_queue_size"`
}

// LedgerConfig holds TronGrid client settings.
type LedgerConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Contract  string        `yaml:"contract"`
	Timeout   time.Duration `yaml:"timeout"`
	PageLimit int           `yaml:"page_limit"`
}

// WebhookConfig holds callback delivery settings.
type WebhookConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}
