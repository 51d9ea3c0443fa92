// Package command builds the encrypted colour commands sent to a bulb.
//
// A command is three channel intensities serialized as R, G, B. The Encoder
// seals those three bytes with an injected authenticated-encryption
// primitive, using the fixed context tag and message sequence the bulb
// expects:
//
//	plaintext  = [R, G, B]
//	context    = 8 zero bytes
//	msgID      = 0
//	ciphertext = plaintext + 36 bytes of nonce and tag (39 bytes)
//
// The primitive is responsible for generating a fresh nonce on every call.
// The encoder never manages nonces itself. Because the sequence is always
// zero, a bulb cannot detect replayed commands.
package command
