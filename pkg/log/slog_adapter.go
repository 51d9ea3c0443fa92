package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at Debug level.
// Useful during development to see events on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("category", event.Category.String()),
	}
	if event.Topic != "" {
		attrs = append(attrs, slog.String("topic", event.Topic))
	}

	switch {
	case event.Pairing != nil:
		attrs = append(attrs, slog.String("action", event.Pairing.Action.String()))
		if event.Pairing.PayloadSize > 0 {
			attrs = append(attrs, slog.Int("payload_size", event.Pairing.PayloadSize))
		}
	case event.Command != nil:
		attrs = append(attrs,
			slog.String("color", event.Command.Color),
			slog.Int("ciphertext_size", event.Command.CiphertextSize),
			slog.Int("qos", int(event.Command.QoS)),
			slog.Duration("duration", event.Command.Duration),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("stage", event.Error.Stage.String()),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
