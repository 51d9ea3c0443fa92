// Package persistence keeps controller state across restarts.
//
// The state file holds the paired credential snapshot (key and topic) and
// the broker the controller last used, encoded as CBOR with integer keys.
// It contains key material, so it is written with mode 0600 inside a 0700
// directory, and replaced atomically so a crash never leaves half a key.
package persistence
