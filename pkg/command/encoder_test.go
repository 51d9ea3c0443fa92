package command

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CHERIoT-Platform/hugh-go/pkg/credential"
	"github.com/CHERIoT-Platform/hugh-go/pkg/pairing"
	"github.com/CHERIoT-Platform/hugh-go/pkg/secretbox"
)

// fakePrimitive records its inputs and returns a deterministic ciphertext.
type fakePrimitive struct {
	calls     int
	plaintext []byte
	msgID     uint64
	context   []byte
	key       []byte
	err       error
	outLen    int
}

func (f *fakePrimitive) seal(dst, plaintext []byte, msgID uint64, context, key []byte) ([]byte, error) {
	f.calls++
	f.plaintext = bytes.Clone(plaintext)
	f.msgID = msgID
	f.context = bytes.Clone(context)
	f.key = bytes.Clone(key)
	if f.err != nil {
		return nil, f.err
	}
	n := f.outLen
	if n == 0 {
		n = len(plaintext) + Overhead
	}
	out := append(dst, bytes.Repeat([]byte{0xC0}, n-len(plaintext))...)
	return append(out, plaintext...)[:n], nil
}

type codedErr int

func (c codedErr) Error() string { return "coded failure" }
func (c codedErr) Code() int     { return int(c) }

func hughCredential(t *testing.T) *pairing.Credential {
	t.Helper()
	c, err := pairing.Decode(append([]byte("HUGHBULB"), make([]byte, 32)...))
	require.NoError(t, err)
	return c
}

func TestEncryptInvokesPrimitive(t *testing.T) {
	fake := &fakePrimitive{}
	enc := NewEncoder(fake.seal)

	ct, err := enc.Encrypt(hughCredential(t), Command{R: 255, G: 0, B: 128})
	require.NoError(t, err)

	assert.Len(t, ct, CiphertextLength)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, []byte{255, 0, 128}, fake.plaintext)
	assert.Equal(t, uint64(0), fake.msgID)
	assert.Equal(t, make([]byte, 8), fake.context)
	assert.Equal(t, make([]byte, 32), fake.key)
}

func TestEncryptNoCredential(t *testing.T) {
	fake := &fakePrimitive{}
	enc := NewEncoder(fake.seal)

	ct, err := enc.Encrypt(nil, Command{R: 1})
	assert.Nil(t, ct)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.ErrorIs(t, err, credential.ErrNoCredential)
	assert.Zero(t, fake.calls, "primitive must not be invoked")
}

func TestEncryptInvalidKeyLength(t *testing.T) {
	fake := &fakePrimitive{}
	enc := NewEncoder(fake.seal)

	c := hughCredential(t)
	c.Wipe()

	_, err := enc.Encrypt(c, Command{R: 1})
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
	assert.Zero(t, fake.calls)
}

func TestEncryptInvalidContextLength(t *testing.T) {
	fake := &fakePrimitive{}
	enc := NewEncoder(fake.seal)
	enc.context = make([]byte, 7)

	_, err := enc.Encrypt(hughCredential(t), Command{R: 1})
	assert.ErrorIs(t, err, ErrInvalidContextLength)
	assert.Zero(t, fake.calls)
}

func TestEncryptPrimitiveFailure(t *testing.T) {
	fake := &fakePrimitive{err: codedErr(-3)}
	enc := NewEncoder(fake.seal)

	ct, err := enc.Encrypt(hughCredential(t), Command{R: 1})
	assert.Nil(t, ct, "no partial ciphertext on failure")
	assert.ErrorIs(t, err, ErrPrimitiveFailure)

	var pe *PrimitiveError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, -3, pe.Code)
}

func TestEncryptPrimitiveFailureWithoutCode(t *testing.T) {
	fake := &fakePrimitive{err: errors.New("plain")}
	_, err := NewEncoder(fake.seal).Encrypt(hughCredential(t), Command{})

	var pe *PrimitiveError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, -1, pe.Code)
	assert.Contains(t, err.Error(), "plain")
}

func TestEncryptWrongOutputLength(t *testing.T) {
	fake := &fakePrimitive{outLen: 20}
	ct, err := NewEncoder(fake.seal).Encrypt(hughCredential(t), Command{})
	assert.Nil(t, ct)
	assert.ErrorIs(t, err, ErrPrimitiveFailure)
}

func TestEncryptSecretboxRoundTrip(t *testing.T) {
	enc := NewEncoder(nil)
	cred := hughCredential(t)
	cmd := Command{R: 255, G: 0, B: 128}

	a, err := enc.Encrypt(cred, cmd)
	require.NoError(t, err)
	b, err := enc.Encrypt(cred, cmd)
	require.NoError(t, err)

	assert.Len(t, a, 39)
	assert.NotEqual(t, a, b, "ciphertexts must never repeat")

	for _, ct := range [][]byte{a, b} {
		pt, err := secretbox.Open(nil, ct, MessageSequence, ContextTag[:], cred.Key())
		require.NoError(t, err)
		assert.Equal(t, cmd.Bytes(), pt)
	}
}

func TestEncryptSecretboxPrimitiveCode(t *testing.T) {
	enc := NewEncoder(secretbox.Sealer{Rand: bytes.NewReader(nil)}.Seal)

	_, err := enc.Encrypt(hughCredential(t), Command{})
	var pe *PrimitiveError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, secretbox.CodeRandom, pe.Code)
}
