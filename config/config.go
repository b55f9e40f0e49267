package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Payment    PaymentConfig    `yaml:"payment"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// MQTTConfig holds the message broker connection configuration.
type MQTTConfig struct {
	BrokerURL      string `yaml:"broker_url"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ConnectTimeout int    `yaml:"connect_timeout_seconds"`
}

// TelemetryConfig controls the ingestion pipeline.
type TelemetryConfig struct {
	LogIntervalMinutes int           `yaml:"log_interval_minutes"`
	LogInterval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// PaymentConfig holds the payment gateway credentials and endpoints.
type PaymentConfig struct {
	ServerKey    string `yaml:"server_key"`
	ClientKey    string `yaml:"client_key"`
	IsProduction bool   `yaml:"is_production"`
	SnapURL      string `yaml:"snap_url"`
	CoreAPIURL   string `yaml:"core_api_url"`
	FrontendURL  string `yaml:"frontend_url"`
}

// PushConfig holds the VAPID keys for admin web push alerts.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// OutboxConfig controls the dispense task worker.
type OutboxConfig struct {
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	BatchSize           int           `yaml:"batch_size"`
	MaxAttempts         int           `yaml:"max_attempts"`
}

// AdvisorConfig controls the product advisor sessions.
type AdvisorConfig struct {
	SessionTTLMinutes int           `yaml:"session_ttl_minutes"`
	SessionTTL        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.MQTT.BrokerURL == "" {
		cfg.MQTT.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "vendingd"
	}
	if cfg.MQTT.ConnectTimeout <= 0 {
		cfg.MQTT.ConnectTimeout = 4
	}

	if cfg.Telemetry.LogIntervalMinutes <= 0 {
		cfg.Telemetry.LogIntervalMinutes = 60
	}
	cfg.Telemetry.LogInterval = time.Duration(cfg.Telemetry.LogIntervalMinutes) * time.Minute

	if cfg.Payment.SnapURL == "" {
		if cfg.Payment.IsProduction {
			cfg.Payment.SnapURL = "https://app.midtrans.com/snap/v1"
		} else {
			cfg.Payment.SnapURL = "https://app.sandbox.midtrans.com/snap/v1"
		}
	}
	if cfg.Payment.CoreAPIURL == "" {
		if cfg.Payment.IsProduction {
			cfg.Payment.CoreAPIURL = "https://api.midtrans.com/v2"
		} else {
			cfg.Payment.CoreAPIURL = "https://api.sandbox.midtrans.com/v2"
		}
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Outbox.PollIntervalSeconds <= 0 {
		cfg.Outbox.PollIntervalSeconds = 1
	}
	cfg.Outbox.PollInterval = time.Duration(cfg.Outbox.PollIntervalSeconds) * time.Second
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 50
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = 5
	}

	if cfg.Advisor.SessionTTLMinutes <= 0 {
		cfg.Advisor.SessionTTLMinutes = 30
	}
	cfg.Advisor.SessionTTL = time.Duration(cfg.Advisor.SessionTTLMinutes) * time.Minute

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 40
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 10
	}

	return &cfg, nil
}
