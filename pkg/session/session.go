package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CHERIoT-Platform/hugh-go/pkg/command"
	"github.com/CHERIoT-Platform/hugh-go/pkg/credential"
	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
	"github.com/CHERIoT-Platform/hugh-go/pkg/pairing"
	"github.com/CHERIoT-Platform/hugh-go/pkg/transport"
)

// Config configures a Session.
type Config struct {
	// Publisher delivers sealed commands. Required.
	Publisher transport.Publisher

	// Store holds the credential. Default: a new empty store.
	Store *credential.Store

	// Encoder seals commands. Default: command.NewEncoder(nil).
	Encoder *command.Encoder

	// QoS is recorded in command events (default: transport.DefaultQoS).
	QoS byte

	// SessionID tags protocol log events. Default: a random UUID.
	SessionID string

	// Logger receives operational messages. Nil disables them.
	Logger *slog.Logger

	// ProtocolLogger receives protocol events. Nil disables them.
	ProtocolLogger hlog.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Publisher == nil {
		return fmt.Errorf("%w: publisher is required", ErrInvalidConfig)
	}
	return nil
}

// Session is the pairing state machine. It is safe for concurrent use.
type Session struct {
	id      string
	store   *credential.Store
	encoder *command.Encoder
	pub     transport.Publisher
	qos     byte
	logger  *slog.Logger
	plog    hlog.Logger

	mu            sync.RWMutex
	eventHandlers []EventHandler
}

// New creates a session from config.
func New(config Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:      config.SessionID,
		store:   config.Store,
		encoder: config.Encoder,
		pub:     config.Publisher,
		qos:     config.QoS,
		logger:  config.Logger,
		plog:    hlog.OrNoop(config.ProtocolLogger),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.store == nil {
		s.store = credential.NewStore()
	}
	if s.encoder == nil {
		s.encoder = command.NewEncoder(nil)
	}
	if s.qos == 0 {
		s.qos = transport.DefaultQoS
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// ID returns the session identifier used in protocol logs.
func (s *Session) ID() string {
	return s.id
}

// OnEvent registers an event handler.
func (s *Session) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// State returns the current pairing state.
func (s *Session) State() State {
	if s.store.State() == credential.StatePresent {
		return StatePaired
	}
	return StateUnpaired
}

// Topic returns the paired topic, if any.
func (s *Session) Topic() (string, bool) {
	return s.store.Topic()
}

// Handle dispatches a typed input to the matching transition.
func (s *Session) Handle(ctx context.Context, in Input) error {
	switch in := in.(type) {
	case ScanSucceeded:
		return s.HandleScan(in.Raw)
	case RevokeRequested:
		s.Revoke()
		return nil
	case CommandRequested:
		return s.RequestCommand(ctx, in.Command)
	default:
		return fmt.Errorf("unsupported input %T", in)
	}
}

// HandleScan decodes a raw pairing payload and pairs with it. On failure
// the current credential, if any, is kept.
func (s *Session) HandleScan(raw []byte) error {
	cred, err := pairing.Decode(raw)
	return s.pair(cred, err, len(raw))
}

// HandleScanText is HandleScan for scanner output delivered as ISO-8859-1
// text.
func (s *Session) HandleScanText(text string) error {
	raw, err := pairing.LatinBytes(text)
	if err != nil {
		return s.pair(nil, err, 0)
	}
	defer clear(raw)
	return s.HandleScan(raw)
}

func (s *Session) pair(cred *pairing.Credential, err error, size int) error {
	if err != nil {
		s.logError(hlog.StageDecode, "", err)
		s.logger.Warn("pairing code rejected", "error", err)
		s.emit(Event{Type: EventPairingFailed, State: s.State(), Error: err})
		return err
	}

	old := s.State()
	topic := cred.Topic()
	s.store.Set(cred)

	s.logger.Info("paired", "topic", topic)
	s.plog.Log(hlog.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Category:  hlog.CategoryPairing,
		Topic:     topic,
		Pairing:   &hlog.PairingEvent{Action: hlog.PairingScanned, PayloadSize: size},
	})
	s.logState(old, StatePaired, "scan", topic)
	s.emit(Event{Type: EventPaired, State: StatePaired, Topic: topic})
	return nil
}

// Revoke forgets the credential and zeroes its key. Revoking while
// unpaired does nothing.
func (s *Session) Revoke() {
	topic, ok := s.store.Revoke()
	if !ok {
		return
	}

	s.logger.Info("credential revoked", "topic", topic)
	s.plog.Log(hlog.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Category:  hlog.CategoryPairing,
		Topic:     topic,
		Pairing:   &hlog.PairingEvent{Action: hlog.PairingRevoked},
	})
	s.logState(StatePaired, StateUnpaired, "revoke", topic)
	s.emit(Event{Type: EventRevoked, State: StateUnpaired, Topic: topic})
}

// RequestCommand seals cmd for the paired bulb and publishes it. When
// unpaired it returns command.ErrNoCredential without touching the encoder.
// Errors never change state.
func (s *Session) RequestCommand(ctx context.Context, cmd command.Command) error {
	start := time.Now()

	var (
		payload []byte
		topic   string
	)
	err := s.store.Borrow(func(c *pairing.Credential) error {
		topic = c.Topic()
		out, err := s.encoder.Encrypt(c, cmd)
		if err != nil {
			return err
		}
		payload = out
		return nil
	})
	if err != nil {
		if !errors.Is(err, command.ErrNoCredential) {
			s.logError(hlog.StageEncrypt, topic, err)
		}
		return s.commandFailed(cmd, topic, err)
	}

	if err := s.pub.Publish(ctx, topic, payload); err != nil {
		s.logError(hlog.StagePublish, topic, err)
		return s.commandFailed(cmd, topic, err)
	}

	s.logger.Debug("command sent", "topic", topic, "color", cmd.String())
	s.plog.Log(hlog.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Category:  hlog.CategoryCommand,
		Topic:     topic,
		Command: &hlog.CommandEvent{
			Color:          cmd.String(),
			CiphertextSize: len(payload),
			QoS:            s.qos,
			Duration:       time.Since(start),
		},
	})
	s.emit(Event{Type: EventCommandSent, State: StatePaired, Topic: topic, Command: &cmd})
	return nil
}

func (s *Session) commandFailed(cmd command.Command, topic string, err error) error {
	s.logger.Warn("command failed", "topic", topic, "color", cmd.String(), "error", err)
	s.emit(Event{Type: EventCommandFailed, State: s.State(), Topic: topic, Command: &cmd, Error: err})
	return err
}

// Suspend captures the credential for the host to preserve. The snapshot
// holds a copy of the key; the caller should Wipe it once stored.
func (s *Session) Suspend() credential.Snapshot {
	return s.store.Snapshot()
}

// Resume restores state from a snapshot. A snapshot without a topic leaves
// the session unpaired. An invalid snapshot returns
// credential.ErrInvalidSnapshot and changes nothing.
func (s *Session) Resume(sn credential.Snapshot) error {
	old := s.State()
	if err := s.store.Restore(sn); err != nil {
		s.logError(hlog.StageRestore, "", err)
		s.logger.Warn("restore failed", "error", err)
		return err
	}

	now := s.State()
	topic, _ := s.store.Topic()
	if now == StatePaired {
		s.plog.Log(hlog.Event{
			Timestamp: time.Now(),
			SessionID: s.id,
			Category:  hlog.CategoryPairing,
			Topic:     topic,
			Pairing:   &hlog.PairingEvent{Action: hlog.PairingRestored},
		})
	}
	s.logState(old, now, "resume", topic)
	s.emit(Event{Type: EventResumed, State: now, Topic: topic})
	return nil
}

func (s *Session) emit(event Event) {
	s.mu.RLock()
	handlers := append([]EventHandler(nil), s.eventHandlers...)
	s.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (s *Session) logState(old, now State, reason, topic string) {
	if old == now {
		return
	}
	s.plog.Log(hlog.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Category:  hlog.CategoryState,
		Topic:     topic,
		StateChange: &hlog.StateChangeEvent{
			Entity:   hlog.StateEntitySession,
			OldState: old.String(),
			NewState: now.String(),
			Reason:   reason,
		},
	})
}

func (s *Session) logError(stage hlog.Stage, topic string, err error) {
	data := &hlog.ErrorEventData{Stage: stage, Message: err.Error()}
	var pe *command.PrimitiveError
	if errors.As(err, &pe) {
		code := pe.Code
		data.Code = &code
	}
	s.plog.Log(hlog.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Category:  hlog.CategoryError,
		Topic:     topic,
		Error:     data,
	})
}
