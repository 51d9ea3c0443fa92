package pairing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Decode errors.
var (
	ErrTooShort   = errors.New("pairing code too short")
	ErrCharset    = errors.New("pairing code is not ISO-8859-1 text")
	ErrInvalidHex = errors.New("pairing code is not valid hex")
)

// Decode extracts a credential from a raw pairing payload.
//
// Bytes [0,8) become the topic suffix and bytes [8,40) the key; anything
// after byte 40 is ignored. Byte values are not validated. The returned
// credential does not alias raw.
func Decode(raw []byte) (*Credential, error) {
	if len(raw) < PayloadLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrTooShort, len(raw), PayloadLength)
	}
	return NewCredential(raw[:TopicSuffixLength], raw[TopicSuffixLength:PayloadLength])
}

// DecodeText decodes scanner output that was requested in the ISO-8859-1
// character set, so each character carries one payload byte.
func DecodeText(s string) (*Credential, error) {
	raw, err := LatinBytes(s)
	if err != nil {
		return nil, err
	}
	defer clear(raw)
	return Decode(raw)
}

// LatinBytes converts ISO-8859-1 text back into the bytes it encodes.
func LatinBytes(s string) ([]byte, error) {
	raw, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCharset, err)
	}
	return raw, nil
}

// ParseHex parses a hex-encoded payload, ignoring spaces and colons.
func ParseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return raw, nil
}

// Encode returns the 40-byte pairing payload for c.
func Encode(c *Credential) []byte {
	out := make([]byte, 0, PayloadLength)
	out = append(out, c.suffix[:]...)
	return append(out, c.key...)
}

// Generate creates a fresh credential the way a bulb does at boot: eight
// random lowercase letters as the suffix and a random key. If r is nil,
// crypto/rand is used.
func Generate(r io.Reader) (*Credential, error) {
	if r == nil {
		r = rand.Reader
	}

	buf := make([]byte, PayloadLength)
	defer clear(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to generate pairing code: %w", err)
	}
	for i := 0; i < TopicSuffixLength; i++ {
		buf[i] = 'a' + buf[i]%26
	}

	return Decode(buf)
}
