package session

import (
	"errors"

	"github.com/CHERIoT-Platform/hugh-go/pkg/command"
)

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("invalid session config")

// State is the pairing state.
type State uint8

const (
	StateUnpaired State = iota
	StatePaired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnpaired:
		return "UNPAIRED"
	case StatePaired:
		return "PAIRED"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies a session event.
type EventType uint8

const (
	// EventPaired - a pairing code was accepted.
	EventPaired EventType = iota

	// EventPairingFailed - a pairing code was rejected.
	EventPairingFailed

	// EventRevoked - the credential was forgotten.
	EventRevoked

	// EventCommandSent - a command was accepted by the transport.
	EventCommandSent

	// EventCommandFailed - a command could not be encrypted or published.
	EventCommandFailed

	// EventResumed - state was restored from a snapshot.
	EventResumed
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventPaired:
		return "PAIRED"
	case EventPairingFailed:
		return "PAIRING_FAILED"
	case EventRevoked:
		return "REVOKED"
	case EventCommandSent:
		return "COMMAND_SENT"
	case EventCommandFailed:
		return "COMMAND_FAILED"
	case EventResumed:
		return "RESUMED"
	default:
		return "UNKNOWN"
	}
}

// Event reports a transition or a surfaced error.
type Event struct {
	Type EventType

	// State after the event.
	State State

	// Topic of the credential involved, if any.
	Topic string

	// Command for command events.
	Command *command.Command

	// Error is set for the failure events.
	Error error
}

// EventHandler handles session events. Handlers run synchronously on the
// caller's goroutine, after all locks are released.
type EventHandler func(Event)

// Input is a request driving the state machine. See Session.Handle.
type Input interface {
	isInput()
}

// ScanSucceeded carries a raw pairing payload from the scanner.
type ScanSucceeded struct {
	Raw []byte
}

// RevokeRequested is the "forget" signal.
type RevokeRequested struct{}

// CommandRequested asks for a colour to be sent.
type CommandRequested struct {
	Command command.Command
}

func (ScanSucceeded) isInput()    {}
func (RevokeRequested) isInput()  {}
func (CommandRequested) isInput() {}
