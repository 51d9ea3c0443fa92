package transport

import (
	"context"
	"sync"
)

// Message is one payload captured by a RecordingPublisher.
type Message struct {
	Topic   string
	Payload []byte
}

// RecordingPublisher keeps every published message in memory. It is used by
// tests and by the controller's dry-run mode.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []Message

	// Err, if set, is returned by Publish and nothing is recorded.
	Err error
}

// Publish records a copy of payload.
func (r *RecordingPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// Messages returns the recorded messages in publish order.
func (r *RecordingPublisher) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Reset forgets all recorded messages.
func (r *RecordingPublisher) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}

var _ Publisher = (*RecordingPublisher)(nil)
