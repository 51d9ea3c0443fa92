package log

import "time"

// Event is one protocol log record. Exactly one of the payload pointers is
// set, matching Category. CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the controller session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Topic is the bulb topic the event relates to, if any.
	Topic string `cbor:"4,keyasint,omitempty"`

	Pairing     *PairingEvent     `cbor:"10,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Category classifies events.
type Category uint8

const (
	CategoryPairing Category = 0
	CategoryCommand Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPairing:
		return "PAIRING"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as printed by String. It is case
// sensitive and returns false for unknown names.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryPairing; c <= CategoryError; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// PairingAction says how a credential entered or left the session.
type PairingAction uint8

const (
	PairingScanned  PairingAction = 0
	PairingRestored PairingAction = 1
	PairingRevoked  PairingAction = 2
)

// String returns the action name.
func (a PairingAction) String() string {
	switch a {
	case PairingScanned:
		return "SCANNED"
	case PairingRestored:
		return "RESTORED"
	case PairingRevoked:
		return "REVOKED"
	default:
		return "UNKNOWN"
	}
}

// PairingEvent records a credential change. Key bytes are never logged.
type PairingEvent struct {
	Action PairingAction `cbor:"1,keyasint"`

	// PayloadSize is the length of the scanned pairing code.
	PayloadSize int `cbor:"2,keyasint,omitempty"`
}

// CommandEvent records a published command.
type CommandEvent struct {
	// Color is the plaintext command formatted as #rrggbb.
	Color string `cbor:"1,keyasint"`

	// CiphertextSize is the payload size handed to the broker.
	CiphertextSize int `cbor:"2,keyasint"`

	// QoS used for the publish.
	QoS uint8 `cbor:"3,keyasint"`

	// Duration covers encryption and publish.
	Duration time.Duration `cbor:"4,keyasint,omitempty"`
}

// StateEntity identifies what changed state.
type StateEntity uint8

const (
	StateEntitySession    StateEntity = 0
	StateEntityConnection StateEntity = 1
)

// String returns the entity name.
func (e StateEntity) String() string {
	switch e {
	case StateEntitySession:
		return "SESSION"
	case StateEntityConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent records a state transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// Stage names the pipeline step where an error occurred.
type Stage uint8

const (
	StageDecode  Stage = 0
	StageEncrypt Stage = 1
	StagePublish Stage = 2
	StageRestore Stage = 3
	StagePersist Stage = 4
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageDecode:
		return "DECODE"
	case StageEncrypt:
		return "ENCRYPT"
	case StagePublish:
		return "PUBLISH"
	case StageRestore:
		return "RESTORE"
	case StagePersist:
		return "PERSIST"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData records a failure.
type ErrorEventData struct {
	Stage   Stage  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the cryptographic primitive's status code, if one applies.
	Code *int `cbor:"3,keyasint,omitempty"`
}
