// Package transport delivers encrypted commands to a bulb over MQTT.
//
// The broker is untrusted: payloads are already sealed by package command
// before they reach a Publisher, and transport adds no framing of its own.
//
//	┌────────────────────────────────┐
//	│  39-byte sealed command        │
//	├────────────────────────────────┤
//	│  MQTT PUBLISH, QoS 1           │
//	├────────────────────────────────┤
//	│  TLS 1.2+ (system roots)       │
//	├────────────────────────────────┤
//	│  TCP                           │
//	└────────────────────────────────┘
//
// Each message goes to hugh-the-lightbulb/<suffix>, is not retained, and is
// delivered at least once. Reconnecting after a dropped connection is left
// to the MQTT client; a publish while disconnected fails fast with
// ErrTransportUnavailable rather than queueing.
package transport
