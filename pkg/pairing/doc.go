// Package pairing decodes the pairing code printed on (or displayed by) a
// Hugh light bulb.
//
// # Payload Format
//
// The pairing code is an optical code carrying raw bytes:
//
//	offset  length  field
//	0       8       topic suffix (opaque bytes)
//	8       32      symmetric key
//	40      ...     ignored
//
// Scanner APIs usually return text. The controller asks the scanner for the
// ISO-8859-1 character set so that every byte value maps to exactly one
// character; DecodeText reverses that mapping before decoding.
//
// # Topic
//
// The MQTT topic for a bulb is TopicPrefix followed by the suffix bytes, one
// character per byte:
//
//	hugh-the-lightbulb/<suffix>
//
// The suffix is not required to be printable. Whatever the bulb put in the
// code is used as-is.
package pairing
