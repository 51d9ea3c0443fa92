// Package log provides structured protocol logging for the Hugh controller.
//
// This package defines the Logger interface and Event types for capturing
// pairing and command events as a machine-readable trace. It is separate from
// operational logging (slog), which the controller uses for human-oriented
// messages.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For a capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("controller.hlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Pairing: a pairing code was scanned, restored or revoked (PairingEvent)
//   - Command: an encrypted command was published (CommandEvent)
//   - State: the session or broker connection changed state (StateChangeEvent)
//   - Error: a stage of the pipeline failed (ErrorEventData)
//
// Events never carry key material. Commands record the colour, the topic
// and the ciphertext size only.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys, using the
// .hlog extension. The hugh-log tool views, summarizes and exports them.
package log
