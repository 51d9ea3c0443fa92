package commands

import (
	"fmt"
	"io"

	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
)

// RunView writes every event in path matching filter in a readable form.
func RunView(path string, filter hlog.Filter, w io.Writer) error {
	return each(path, filter, func(event hlog.Event) error {
		formatEvent(w, event)
		return nil
	})
}

// formatEvent writes a header line followed by indented details.
func formatEvent(w io.Writer, event hlog.Event) {
	ts := event.Timestamp.UTC().Format(timeFormat)
	fmt.Fprintf(w, "%s [session:%s] %-7s", ts, shortID(event.SessionID), event.Category)
	if event.Topic != "" {
		fmt.Fprintf(w, " %s", event.Topic)
	}
	fmt.Fprintln(w)

	switch {
	case event.Pairing != nil:
		fmt.Fprintf(w, "  Action: %s\n", event.Pairing.Action)
		if event.Pairing.PayloadSize > 0 {
			fmt.Fprintf(w, "  Payload: %d bytes\n", event.Pairing.PayloadSize)
		}
	case event.Command != nil:
		c := event.Command
		fmt.Fprintf(w, "  Color: %s\n", c.Color)
		fmt.Fprintf(w, "  Ciphertext: %d bytes, QoS %d\n", c.CiphertextSize, c.QoS)
		if c.Duration > 0 {
			fmt.Fprintf(w, "  Duration: %s\n", c.Duration)
		}
	case event.StateChange != nil:
		s := event.StateChange
		fmt.Fprintf(w, "  %s: %s -> %s\n", s.Entity, s.OldState, s.NewState)
		if s.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", s.Reason)
		}
	case event.Error != nil:
		e := event.Error
		fmt.Fprintf(w, "  Stage: %s\n", e.Stage)
		fmt.Fprintf(w, "  Message: %s\n", e.Message)
		if e.Code != nil {
			fmt.Fprintf(w, "  Code: %d\n", *e.Code)
		}
	}
}
