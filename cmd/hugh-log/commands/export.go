package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// RunExport writes the events in path matching filter to w as JSON lines
// or CSV.
func RunExport(path, format string, filter hlog.Filter, w io.Writer) error {
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		return each(path, filter, func(event hlog.Event) error {
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			return nil
		})
	case FormatCSV:
		return exportCSV(path, filter, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

var csvHeader = []string{"timestamp", "session_id", "category", "topic", "detail", "size", "code"}

func exportCSV(path string, filter hlog.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := each(path, filter, func(event hlog.Event) error {
		var detail, size, code string
		switch {
		case event.Pairing != nil:
			detail = event.Pairing.Action.String()
			size = strconv.Itoa(event.Pairing.PayloadSize)
		case event.Command != nil:
			detail = event.Command.Color
			size = strconv.Itoa(event.Command.CiphertextSize)
		case event.StateChange != nil:
			detail = event.StateChange.OldState + "->" + event.StateChange.NewState
		case event.Error != nil:
			detail = event.Error.Stage.String() + ": " + event.Error.Message
			if event.Error.Code != nil {
				code = strconv.Itoa(*event.Error.Code)
			}
		}

		row := []string{
			event.Timestamp.UTC().Format(timeFormat),
			event.SessionID,
			event.Category.String(),
			event.Topic,
			detail,
			size,
			code,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})

	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}
