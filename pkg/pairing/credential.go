package pairing

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Pairing payload layout.
const (
	// TopicSuffixLength is the number of suffix bytes at the start of the payload.
	TopicSuffixLength = 8

	// KeyLength is the symmetric key length in bytes.
	KeyLength = 32

	// PayloadLength is the minimum length of a valid pairing payload.
	PayloadLength = TopicSuffixLength + KeyLength

	// TopicPrefix is shared with the bulb firmware and must not change.
	TopicPrefix = "hugh-the-lightbulb/"
)

// Credential errors.
var (
	ErrInvalidSuffixLength = errors.New("invalid topic suffix length")
	ErrInvalidKeyLength    = errors.New("invalid key length")
	ErrInvalidTopic        = errors.New("invalid topic")
)

// Credential is the decoded (topic suffix, key) pair that authorizes
// commands to one bulb.
//
// A Credential is always fully populated. Use Wipe to destroy the key once
// the credential is no longer needed.
type Credential struct {
	suffix [TopicSuffixLength]byte
	key    []byte
}

// NewCredential builds a credential from a topic suffix and key, copying both.
func NewCredential(suffix, key []byte) (*Credential, error) {
	if len(suffix) != TopicSuffixLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidSuffixLength, len(suffix), TopicSuffixLength)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeyLength, len(key), KeyLength)
	}

	c := &Credential{key: make([]byte, KeyLength)}
	copy(c.suffix[:], suffix)
	copy(c.key, key)
	return c, nil
}

// FromTopic rebuilds a credential from a previously derived topic string and
// its key. This is the restore path for persisted state.
func FromTopic(topic string, key []byte) (*Credential, error) {
	if !strings.HasPrefix(topic, TopicPrefix) {
		return nil, fmt.Errorf("%w: missing prefix %q", ErrInvalidTopic, TopicPrefix)
	}

	suffix, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(strings.TrimPrefix(topic, TopicPrefix)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopic, err)
	}
	if len(suffix) != TopicSuffixLength {
		return nil, fmt.Errorf("%w: suffix is %d bytes", ErrInvalidTopic, len(suffix))
	}

	return NewCredential(suffix, key)
}

// TopicSuffix returns a copy of the raw suffix bytes.
func (c *Credential) TopicSuffix() []byte {
	return bytes.Clone(c.suffix[:])
}

// Key returns the key bytes without copying. The slice is only valid until
// the credential is wiped; callers must not retain it.
func (c *Credential) Key() []byte {
	return c.key
}

// Topic returns the MQTT topic for this bulb.
func (c *Credential) Topic() string {
	return Topic(c.suffix[:])
}

// Topic derives the MQTT topic for a raw suffix. Each suffix byte becomes
// one character (ISO-8859-1).
func Topic(suffix []byte) string {
	// ISO-8859-1 decoding cannot fail: every byte is a valid code point.
	s, _ := charmap.ISO8859_1.NewDecoder().Bytes(suffix)
	return TopicPrefix + string(s)
}

// Clone returns an independent copy of the credential.
func (c *Credential) Clone() *Credential {
	out := &Credential{suffix: c.suffix, key: make([]byte, len(c.key))}
	copy(out.key, c.key)
	return out
}

// Wipe overwrites the key and suffix with zeros and drops the key slice.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	clear(c.key)
	clear(c.suffix[:])
	c.key = nil
}

// Equal reports whether two credentials hold the same suffix and key.
func (c *Credential) Equal(other *Credential) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.suffix == other.suffix && bytes.Equal(c.key, other.key)
}

// String returns the topic only. Key material is never formatted.
func (c *Credential) String() string {
	return c.Topic()
}
