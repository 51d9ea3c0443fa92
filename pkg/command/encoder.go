package command

import (
	"errors"
	"fmt"

	"github.com/CHERIoT-Platform/hugh-go/pkg/credential"
	"github.com/CHERIoT-Platform/hugh-go/pkg/pairing"
	"github.com/CHERIoT-Platform/hugh-go/pkg/secretbox"
)

// Encryption parameters shared with the bulb firmware.
const (
	// KeyLength is the required credential key length.
	KeyLength = 32

	// ContextLength is the required context tag length.
	ContextLength = 8

	// MessageSequence is the message ID passed to the primitive. Always 0.
	MessageSequence uint64 = 0

	// Overhead is the fixed number of bytes the primitive adds.
	Overhead = secretbox.Overhead

	// CiphertextLength is the size of an encrypted Command.
	CiphertextLength = CommandLength + Overhead
)

// ContextTag is the fixed application domain separator.
var ContextTag = [ContextLength]byte{}

// Encoder errors.
var (
	// ErrNoCredential matches credential.ErrNoCredential so callers can
	// test either value.
	ErrNoCredential         = credential.ErrNoCredential
	ErrInvalidKeyLength     = errors.New("invalid key length")
	ErrInvalidContextLength = errors.New("invalid context length")
	ErrPrimitiveFailure     = errors.New("encryption primitive failed")
)

// Primitive is an authenticated, nonce-managing encryption function. It
// appends len(plaintext)+Overhead bytes to dst. It must generate a fresh,
// unpredictable nonce internally on every call.
type Primitive func(dst, plaintext []byte, msgID uint64, context, key []byte) ([]byte, error)

// PrimitiveError reports a failure inside the primitive. It matches
// ErrPrimitiveFailure with errors.Is.
type PrimitiveError struct {
	// Code is the primitive's status code, or -1 if it did not report one.
	Code int

	// Err is the underlying error, if any.
	Err error
}

func (e *PrimitiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encryption primitive failed with %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("encryption primitive failed with %d", e.Code)
}

// Is reports whether target is ErrPrimitiveFailure.
func (e *PrimitiveError) Is(target error) bool {
	return target == ErrPrimitiveFailure
}

func (e *PrimitiveError) Unwrap() error {
	return e.Err
}

// Encoder seals commands for a credential.
type Encoder struct {
	seal    Primitive
	context []byte
}

// NewEncoder creates an encoder around a primitive. A nil primitive selects
// secretbox.Seal.
func NewEncoder(p Primitive) *Encoder {
	if p == nil {
		p = secretbox.Seal
	}
	return &Encoder{seal: p, context: ContextTag[:]}
}

// Encrypt serializes cmd and seals it with the credential's key.
//
// Preconditions are checked before the primitive is invoked, each with its
// own error. On any failure no ciphertext is returned.
func (e *Encoder) Encrypt(cred *pairing.Credential, cmd Command) ([]byte, error) {
	if cred == nil {
		return nil, ErrNoCredential
	}
	key := cred.Key()
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeyLength, len(key), KeyLength)
	}
	if len(e.context) != ContextLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidContextLength, len(e.context), ContextLength)
	}

	plaintext := cmd.Bytes()
	defer clear(plaintext)

	out, err := e.seal(make([]byte, 0, CiphertextLength), plaintext, MessageSequence, e.context, key)
	if err != nil {
		return nil, &PrimitiveError{Code: statusCode(err), Err: err}
	}
	if len(out) != CiphertextLength {
		return nil, &PrimitiveError{Code: -1, Err: fmt.Errorf("output is %d bytes, want %d", len(out), CiphertextLength)}
	}
	return out, nil
}

// statusCode extracts a numeric status from a primitive error.
func statusCode(err error) int {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return -1
}
