package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "tls://test.mosquitto.org:8886", cfg.Broker)
	assert.Equal(t, "tls://demo.cheriot.org:8883", cfg.DemoBroker)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.NotEmpty(t, cfg.StateFile)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hugh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
broker: tcp://localhost:1883
qos: 2
publish_timeout: 2s
state_file: /tmp/hugh/state.cbor
log_level: debug
tls:
  insecure_skip_verify: true
discovery:
  enabled: false
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://localhost:1883", cfg.Broker)
	assert.Equal(t, byte(2), cfg.QoS)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "/tmp/hugh/state.cbor", cfg.StateFile)
	assert.True(t, cfg.TLS.InsecureSkipVerify)
	assert.False(t, cfg.Discovery.Enabled)
	assert.Equal(t, DefaultDemoBroker, cfg.DemoBroker)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hugh.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
broker = "tls://broker.local:8883"
qos = 2
connect_timeout = "5s"
metrics_addr = "127.0.0.1:9464"

[tls]
server_name = "broker.local"

[discovery]
enabled = false
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tls://broker.local:8883", cfg.Broker)
	assert.Equal(t, byte(2), cfg.QoS)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.Equal(t, "broker.local", cfg.TLS.ServerName)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
	assert.False(t, cfg.Discovery.Enabled)
}

func TestParseTOMLRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := ParseTOML([]byte("brokr = \"tcp://x:1\"\n"), &cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "brokr")
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hugh.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultBroker, cfg.Broker)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "hugh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brokr: tcp://x:1\n"), 0600))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.Broker = "http://broker:80" }},
		{"no host", func(c *Config) { c.Broker = "tls://:8883" }},
		{"bad demo broker", func(c *Config) { c.DemoBroker = "ftp://x" }},
		{"qos zero", func(c *Config) { c.QoS = 0 }},
		{"qos three", func(c *Config) { c.QoS = 3 }},
		{"zero publish timeout", func(c *Config) { c.PublishTimeout = 0 }},
		{"negative connect timeout", func(c *Config) { c.ConnectTimeout = -time.Second }},
		{"negative keepalive", func(c *Config) { c.KeepAlive = -1 }},
		{"no state file", func(c *Config) { c.StateFile = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"discovery timeout", func(c *Config) { c.Discovery.Timeout = 0 }},
		{"metrics addr without port", func(c *Config) { c.MetricsAddr = "localhost" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestSelectBroker(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultBroker, cfg.SelectBroker(false))
	assert.Equal(t, DefaultDemoBroker, cfg.SelectBroker(true))

	cfg.DemoBroker = ""
	assert.Equal(t, DefaultBroker, cfg.SelectBroker(true))
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("trace")
	assert.Error(t, err)
}
