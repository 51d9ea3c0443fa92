// Package config loads hugh-controller settings from YAML or TOML.
//
// Every field has a default, so an empty or missing file is valid. Command
// line flags are applied on top of the loaded values by the caller.
//
//	broker: tls://test.mosquitto.org:8886
//	qos: 1
//	publish_timeout: 10s
//	tls:
//	  ca_file: /etc/ssl/broker-ca.pem
//	discovery:
//	  enabled: true
//
// Files ending in .toml are read as TOML with the same keys.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default brokers. Both are public and speak MQTT over TLS.
const (
	DefaultBroker     = "tls://test.mosquitto.org:8886"
	DefaultDemoBroker = "tls://demo.cheriot.org:8883"
)

// ErrInvalidConfig is returned by Validate and Load.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds controller settings.
type Config struct {
	// Broker is the MQTT broker URL.
	Broker string `yaml:"broker" toml:"broker"`

	// DemoBroker is used instead of Broker when demo mode is selected.
	DemoBroker string `yaml:"demo_broker" toml:"demo_broker"`

	// ClientID is the MQTT client ID. Empty means random per run.
	ClientID string `yaml:"client_id,omitempty" toml:"client_id"`

	// QoS for command publishes, 1 or 2.
	QoS byte `yaml:"qos" toml:"qos"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout" toml:"publish_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive" toml:"keep_alive"`

	TLS TLSConfig `yaml:"tls" toml:"tls"`

	// StateFile keeps the paired credential across restarts.
	StateFile string `yaml:"state_file" toml:"state_file"`

	// ProtocolLog is an optional CBOR event capture file.
	ProtocolLog string `yaml:"protocol_log,omitempty" toml:"protocol_log"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`

	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`

	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string `yaml:"metrics_addr,omitempty" toml:"metrics_addr"`
}

// TLSConfig holds broker TLS settings.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file,omitempty" toml:"ca_file"`
	ServerName         string `yaml:"server_name,omitempty" toml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty" toml:"insecure_skip_verify"`
}

// DiscoveryConfig controls mDNS broker discovery.
type DiscoveryConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// Interface restricts browsing to one network interface.
	Interface string `yaml:"interface,omitempty" toml:"interface"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Broker:         DefaultBroker,
		DemoBroker:     DefaultDemoBroker,
		QoS:            1,
		ConnectTimeout: 30 * time.Second,
		PublishTimeout: 10 * time.Second,
		KeepAlive:      30 * time.Second,
		StateFile:      DefaultStateFile(),
		LogLevel:       "info",
		Discovery: DiscoveryConfig{
			Enabled: true,
			Timeout: 3 * time.Second,
		},
	}
}

// DefaultStateFile returns the per-user state file location.
func DefaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".hugh-state.cbor"
	}
	return filepath.Join(dir, "hugh", "state.cbor")
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	parse := Parse
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseTOML
	}
	if err := parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping fields the document does not set,
// then validates the result. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg.Validate()
}

// ParseTOML is Parse for TOML documents.
func ParseTOML(data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}
	return cfg.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validateBroker(c.Broker); err != nil {
		return fmt.Errorf("%w: broker: %v", ErrInvalidConfig, err)
	}
	if c.DemoBroker != "" {
		if err := validateBroker(c.DemoBroker); err != nil {
			return fmt.Errorf("%w: demo_broker: %v", ErrInvalidConfig, err)
		}
	}
	if c.QoS != 1 && c.QoS != 2 {
		return fmt.Errorf("%w: qos must be 1 or 2 for at-least-once delivery, got %d", ErrInvalidConfig, c.QoS)
	}
	if c.ConnectTimeout <= 0 || c.PublishTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("%w: keep_alive must not be negative", ErrInvalidConfig)
	}
	if c.StateFile == "" {
		return fmt.Errorf("%w: state_file is required", ErrInvalidConfig)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Discovery.Enabled && c.Discovery.Timeout <= 0 {
		return fmt.Errorf("%w: discovery timeout must be positive", ErrInvalidConfig)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("%w: metrics_addr: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// SelectBroker returns DemoBroker when demo is set, else Broker.
func (c *Config) SelectBroker(demo bool) string {
	if demo && c.DemoBroker != "" {
		return c.DemoBroker
	}
	return c.Broker
}

var brokerSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true, "ws": true, "wss": true,
}

func validateBroker(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !brokerSchemes[u.Scheme] {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use: debug, info, warn, error)", s)
	}
}
