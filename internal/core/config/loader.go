package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = 10 * time.Second
	}
	if cfg.Monitor.SweepInterval == 0 {
		cfg.Monitor.SweepInterval = time.Minute
	}
	if cfg.Monitor.WatchTTL == 0 {
		cfg.Monitor.WatchTTL = 24 * time.Hour
	}
	if cfg.Monitor.AmountEpsilon == "" {
		cfg.Monitor.AmountEpsilon = "0.01"
	}
	if cfg.Monitor.MaxConcurrency == 0 {
		cfg.Monitor.MaxConcurrency = 8
	}
	if cfg.Monitor.NotifyQueueSize == 0 {
		cfg.Monitor.NotifyQueueSize = 256
	}
	if cfg.Ledger.BaseURL == "" {
		cfg.Ledger.BaseURL = "https://api.trongrid.io"
	}
	if cfg.Ledger.Contract == "" {
		cfg.Ledger.Contract = domain.USDTContract
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 10 * time.Second
	}
	if cfg.Ledger.PageLimit == 0 {
		cfg.Ledger.PageLimit = 50
	}
	if cfg.Webhook.MaxAttempts == 0 {
		cfg.Webhook.MaxAttempts = 5
	}
	if cfg.Webhook.AttemptTimeout == 0 {
		cfg.Webhook.AttemptTimeout = 10 * time.Second
	}
	if cfg.Webhook.InitialBackoff == 0 {
		cfg.Webhook.InitialBackoff = time.Second
	}
	if cfg.Webhook.MaxBackoff == 0 {
		cfg.Webhook.MaxBackoff = time.Minute
	}
}
