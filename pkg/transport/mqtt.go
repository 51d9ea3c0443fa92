package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
)

// Connection states reported to the protocol log.
const (
	StateDisconnected = "DISCONNECTED"
	StateConnecting   = "CONNECTING"
	StateConnected    = "CONNECTED"
	StateReconnecting = "RECONNECTING"
)

// maxReconnectInterval caps the client's reconnect backoff.
const maxReconnectInterval = 2 * time.Minute

// MQTTConfig configures an MQTTPublisher.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tls://test.mosquitto.org:8886.
	Broker string

	// ClientID identifies this controller to the broker.
	// Default: a fresh random ID per run.
	ClientID string

	// TLSConfig applies to tls://, ssl:// and wss:// brokers.
	TLSConfig *TLSConfig

	// QoS for publishes (default: 1).
	QoS byte

	// ConnectTimeout bounds Connect when the context has no deadline
	// (default: 30s).
	ConnectTimeout time.Duration

	// PublishTimeout bounds Publish when the context has no deadline
	// (default: 10s).
	PublishTimeout time.Duration

	// KeepAlive is the MQTT keep-alive interval (default: 30s).
	KeepAlive time.Duration

	// ConnectRetryInterval is the pause between attempts while the first
	// connection is still being established (default: 5s). Retries
	// continue in the background after Connect gives up.
	ConnectRetryInterval time.Duration

	// Logger receives operational messages. Nil disables them.
	Logger *slog.Logger

	// ProtocolLogger receives connection state events. Nil disables them.
	ProtocolLogger hlog.Logger

	// SessionID tags protocol log events.
	SessionID string
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes sealed commands to an MQTT broker.
type MQTTPublisher struct {
	config MQTTConfig
	client client
	logger *slog.Logger
	plog   hlog.Logger

	mu    sync.Mutex
	state string
}

// NewClientID returns a random 32-character broker client identifier.
func NewClientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewMQTTPublisher creates a publisher for config.Broker. It does not
// connect; call Connect.
func NewMQTTPublisher(config MQTTConfig) (*MQTTPublisher, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	p := newPublisher(config, nil)

	tlsConf, err := NewClientTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(p.config.ClientID).
		SetTLSConfig(tlsConf).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(p.config.ConnectRetryInterval).
		SetConnectTimeout(p.config.ConnectTimeout).
		SetKeepAlive(p.config.KeepAlive).
		SetOnConnectHandler(func(mqtt.Client) {
			p.setState(StateConnected, "")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.setState(StateDisconnected, err.Error())
		}).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			p.setState(StateReconnecting, "")
		})

	p.client = mqtt.NewClient(opts)
	return p, nil
}

func newPublisher(config MQTTConfig, c client) *MQTTPublisher {
	if config.ClientID == "" {
		config.ClientID = NewClientID()
	}
	if config.QoS == 0 {
		config.QoS = DefaultQoS
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 10 * time.Second
	}
	if config.KeepAlive == 0 {
		config.KeepAlive = 30 * time.Second
	}
	if config.ConnectRetryInterval == 0 {
		config.ConnectRetryInterval = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MQTTPublisher{
		config: config,
		client: c,
		logger: logger,
		plog:   hlog.OrNoop(config.ProtocolLogger),
		state:  StateDisconnected,
	}
}

// ClientID returns the identifier presented to the broker.
func (p *MQTTPublisher) ClientID() string {
	return p.config.ClientID
}

// Broker returns the broker URL.
func (p *MQTTPublisher) Broker() string {
	return p.config.Broker
}

// Connect opens the broker connection. If the broker cannot be reached
// before ctx ends, Connect returns ErrTransportUnavailable while the client
// keeps dialing in the background; Connected and State report when it
// succeeds. Once connected, the client reconnects on its own.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ConnectTimeout)
		defer cancel()
	}

	p.setState(StateConnecting, "")
	tok := p.client.Connect()
	if err := wait(ctx, tok); err != nil {
		select {
		case <-tok.Done():
			p.setState(StateDisconnected, err.Error())
		default:
			// Still dialing. The on-connect handler may already have won.
			p.transition(StateConnecting, StateReconnecting, err.Error())
		}
		return fmt.Errorf("%w: connect %s: %v", ErrTransportUnavailable, p.config.Broker, err)
	}
	// The on-connect handler usually got here first; this covers clients
	// that do not call it.
	p.setState(StateConnected, "")
	p.logger.Info("connected to broker", "broker", p.config.Broker, "client_id", p.config.ClientID)
	return nil
}

// Connected reports whether a broker connection is currently open.
func (p *MQTTPublisher) Connected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends payload to topic and waits for the broker's acknowledgement.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return ErrTransportUnavailable
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.PublishTimeout)
		defer cancel()
	}

	tok := p.client.Publish(topic, p.config.QoS, false, payload)
	if err := wait(ctx, tok); err != nil {
		p.logger.Debug("publish failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %v", ErrSendRejected, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work 250ms. It also
// stops any background connection attempts.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	p.setState(StateDisconnected, "closed")
	return nil
}

// State returns the last observed connection state.
func (p *MQTTPublisher) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *MQTTPublisher) setState(state, reason string) {
	p.transition("", state, reason)
}

// transition moves to state. A non-empty from makes the move conditional on
// the current state.
func (p *MQTTPublisher) transition(from, state, reason string) {
	p.mu.Lock()
	old := p.state
	if old == state || (from != "" && old != from) {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.mu.Unlock()

	p.logger.Debug("broker connection state", "old", old, "new", state, "reason", reason)
	p.plog.Log(hlog.Event{
		Timestamp: time.Now(),
		SessionID: p.config.SessionID,
		Category:  hlog.CategoryState,
		StateChange: &hlog.StateChangeEvent{
			Entity:   hlog.StateEntityConnection,
			OldState: old,
			NewState: state,
			Reason:   reason,
		},
	})
}

// wait blocks until tok completes or ctx is done.
func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Publisher = (*MQTTPublisher)(nil)
