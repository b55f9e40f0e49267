package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  rate_limit_per_sec: 5
  rate_limit_burst: 10
database:
  dsn: "host=localhost user=vending dbname=vending"
mqtt:
  broker_url: "tcp://broker:1883"
  client_id: "vendingd-test"
telemetry:
  log_interval_minutes: 30
payment:
  server_key: "SB-Mid-server-key"
  is_production: false
outbox:
  poll_interval_seconds: 2
  max_attempts: 3
advisor:
  session_ttl_minutes: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "vendingd-test", cfg.MQTT.ClientID)
	assert.Equal(t, 30*time.Minute, cfg.Telemetry.LogInterval)
	assert.Equal(t, 2*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 3, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Advisor.SessionTTL)

	// Sandbox endpoints are derived from is_production.
	assert.Equal(t, "https://app.sandbox.midtrans.com/snap/v1", cfg.Payment.SnapURL)
	assert.Equal(t, "https://api.sandbox.midtrans.com/v2", cfg.Payment.CoreAPIURL)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "host=localhost"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, "vendingd", cfg.MQTT.ClientID)
	assert.Equal(t, time.Hour, cfg.Telemetry.LogInterval)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 30*time.Minute, cfg.Advisor.SessionTTL)
	assert.Equal(t, 3600, cfg.Push.TTL)
}

func TestLoad_ProductionEndpoints(t *testing.T) {
	path := writeConfig(t, `
payment:
  is_production: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://app.midtrans.com/snap/v1", cfg.Payment.SnapURL)
	assert.Equal(t, "https://api.midtrans.com/v2", cfg.Payment.CoreAPIURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
