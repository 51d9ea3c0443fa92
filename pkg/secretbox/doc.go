// Package secretbox implements the authenticated, nonce-managing encryption
// used between the controller and a bulb.
//
// # Construction
//
// Each call draws a fresh 20-byte nonce from a cryptographic random source.
// A one-time subkey is derived with keyed BLAKE2b-256:
//
//	subkey = BLAKE2b-256(key; context || le64(msgID) || nonce)
//
// and the plaintext is sealed with ChaCha20-Poly1305 under the subkey, using
// a zero 96-bit AEAD nonce (the subkey is never reused) and
// context || le64(msgID) as associated data. The output is
//
//	nonce (20) || ciphertext (len(plaintext)) || tag (16)
//
// for a fixed overhead of 36 bytes.
//
// # Parameters
//
//   - Key: 32 bytes
//   - Context: 8 bytes, an application domain separator
//   - Message ID: 64-bit value bound into the subkey and associated data
//
// Nonce uniqueness comes from the random source alone. Callers never supply
// nonces.
package secretbox
