// Package session orchestrates pairing and command delivery for one bulb.
//
// A Session is in one of two states:
//
//	          scan ok                 scan ok / command
//	Unpaired ─────────▶ Paired ◀────────────────────┐
//	    ▲                 │ └─────────────────────────┘
//	    └──── revoke ─────┘
//
// Its state is derived from the credential store, so the two cannot
// disagree. A failed scan keeps the previous credential. Encrypt and publish
// errors are returned to the caller and reported as events; they never
// change state.
//
// Encryption happens while the store lock is held. The sealed payload and
// topic are copied out and the lock released before publishing, so a slow
// broker never delays a scan or a revoke.
package session
