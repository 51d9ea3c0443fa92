package secretbox

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// Size constants.
const (
	// KeyLength is the secret key size.
	KeyLength = 32

	// ContextLength is the size of the domain separation context.
	ContextLength = 8

	// NonceLength is the size of the per-message random nonce.
	NonceLength = 20

	// TagLength is the size of the authentication tag.
	TagLength = chacha20poly1305.Overhead

	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead = NonceLength + TagLength
)

// Status codes carried by Error.
const (
	CodeInvalidKey     = -1
	CodeInvalidContext = -2
	CodeRandom         = -3
	CodeTooShort       = -4
	CodeForged         = -5
	CodeInternal       = -6
)

// Error is a secretbox failure with a numeric status code.
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string { return "secretbox: " + e.msg }

// Code returns the numeric status of the failure.
func (e *Error) Code() int { return e.code }

// Secretbox errors.
var (
	ErrInvalidKeyLength     = &Error{CodeInvalidKey, "invalid key length"}
	ErrInvalidContextLength = &Error{CodeInvalidContext, "invalid context length"}
	ErrTooShort             = &Error{CodeTooShort, "ciphertext too short"}
	ErrAuthentication       = &Error{CodeForged, "message authentication failed"}
)

// Sealer seals messages using Rand as the nonce source.
// The zero value uses crypto/rand.
type Sealer struct {
	Rand io.Reader
}

// Seal encrypts and authenticates plaintext, appending the result to dst.
// The output is len(plaintext)+Overhead bytes long.
func (s Sealer) Seal(dst, plaintext []byte, msgID uint64, context, key []byte) ([]byte, error) {
	if err := checkParams(context, key); err != nil {
		return nil, err
	}

	r := s.Rand
	if r == nil {
		r = rand.Reader
	}

	var nonce [NonceLength]byte
	if _, err := io.ReadFull(r, nonce[:]); err != nil {
		return nil, &Error{CodeRandom, fmt.Sprintf("nonce generation failed: %v", err)}
	}

	aead, err := subkeyAEAD(key, context, msgID, nonce[:])
	if err != nil {
		return nil, err
	}

	var zero [chacha20poly1305.NonceSize]byte
	out := append(dst, nonce[:]...)
	return aead.Seal(out, zero[:], plaintext, associatedData(context, msgID)), nil
}

// Seal encrypts plaintext with crypto/rand as the nonce source.
func Seal(dst, plaintext []byte, msgID uint64, context, key []byte) ([]byte, error) {
	return Sealer{}.Seal(dst, plaintext, msgID, context, key)
}

// Open authenticates and decrypts a message produced by Seal, appending the
// plaintext to dst. msgID, context and key must match the values used to
// seal.
func Open(dst, ciphertext []byte, msgID uint64, context, key []byte) ([]byte, error) {
	if err := checkParams(context, key); err != nil {
		return nil, err
	}
	if len(ciphertext) < Overhead {
		return nil, ErrTooShort
	}

	aead, err := subkeyAEAD(key, context, msgID, ciphertext[:NonceLength])
	if err != nil {
		return nil, err
	}

	var zero [chacha20poly1305.NonceSize]byte
	out, err := aead.Open(dst, zero[:], ciphertext[NonceLength:], associatedData(context, msgID))
	if err != nil {
		return nil, ErrAuthentication
	}
	return out, nil
}

func checkParams(context, key []byte) error {
	if len(key) != KeyLength {
		return ErrInvalidKeyLength
	}
	if len(context) != ContextLength {
		return ErrInvalidContextLength
	}
	return nil
}

// subkeyAEAD derives the one-time subkey for a nonce and returns an AEAD
// keyed with it. The subkey buffer is wiped before returning.
func subkeyAEAD(key, context []byte, msgID uint64, nonce []byte) (cipher.AEAD, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, &Error{CodeInternal, err.Error()}
	}
	h.Write(context)
	h.Write(le64(msgID))
	h.Write(nonce)

	subkey := h.Sum(nil)
	defer clear(subkey)

	aead, err := chacha20poly1305.New(subkey)
	if err != nil {
		return nil, &Error{CodeInternal, err.Error()}
	}
	return aead, nil
}

func associatedData(context []byte, msgID uint64) []byte {
	ad := make([]byte, 0, ContextLength+8)
	ad = append(ad, context...)
	return append(ad, le64(msgID)...)
}

func le64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
