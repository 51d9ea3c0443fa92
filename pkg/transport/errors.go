package transport

import "errors"

var (
	// ErrTransportUnavailable is returned when no broker connection is open.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrSendRejected is returned when the broker did not acknowledge a
	// publish, or the caller gave up waiting.
	ErrSendRejected = errors.New("send rejected")
)
