package transport

import "context"

// DefaultQoS is at-least-once delivery.
const DefaultQoS byte = 1

// Publisher hands a payload to the broker for topic. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}
