package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ChainConfig struct {
	// RPC endpoint for the chain
	RPCURL string `yaml:"rpc_url"`

	// Chain ID used for EIP-155 transaction signing
	ID int64 `yaml:"id"`

	// Platform wallet private key. Usually supplied through
	// ${PLATFORM_PRIVATE_KEY} expansion rather than written literally.
	PrivateKey string `yaml:"private_key"`

	// How long to wait for a payout transaction to be mined
	ConfirmTimeout string `yaml:"confirm_timeout"`
}

type MonitorConfig struct {
	Interval                 string `yaml:"interval"`
	StaleClaimThreshold      string `yaml:"stale_claim_threshold"`
	AwaitingPaymentThreshold string `yaml:"awaiting_payment_threshold"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	// HTTP API configuration
	Server ServerConfig `yaml:"server"`

	// Chain configuration for reward settlement
	Chain ChainConfig `yaml:"chain"`

	// Monitoring sweep configuration
	Monitor MonitorConfig `yaml:"monitor"`

	// Prometheus metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configuration
	Logging LogConfig `yaml:"logging"`
}

// LoadConfig loads the configuration from the given file path.
// Environment variable references in the file are expanded before
// parsing so secrets stay out of the file itself.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The key is secret enough that an env override always wins.
	if key := os.Getenv("PLATFORM_PRIVATE_KEY"); key != "" {
		cfg.Chain.PrivateKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"chain.confirm_timeout":              c.Chain.ConfirmTimeout,
		"monitor.interval":                   c.Monitor.Interval,
		"monitor.stale_claim_threshold":      c.Monitor.StaleClaimThreshold,
		"monitor.awaiting_payment_threshold": c.Monitor.AwaitingPaymentThreshold,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// Duration parses a config duration string, falling back to def when
// the field is empty. Call only after LoadConfig has validated the
// config.
func Duration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Chain: ChainConfig{
			RPCURL:         "http://localhost:8545",
			ID:             31337, // Anvil chain ID
			ConfirmTimeout: "90s",
		},
		Monitor: MonitorConfig{
			Interval:                 "10s",
			StaleClaimThreshold:      "30m",
			AwaitingPaymentThreshold: "2m",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    4014,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
