package commands

import (
	"fmt"

	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
)

// RunFilter copies the events in path matching filter into a new log file
// at output and returns how many were written.
func RunFilter(path, output string, filter hlog.Filter) (int, error) {
	logger, err := hlog.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	err = each(path, filter, func(event hlog.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	if cerr := logger.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	if err == nil && logger.Dropped() > 0 {
		err = fmt.Errorf("failed to write %d events to %s", logger.Dropped(), output)
	}
	return count - logger.Dropped(), err
}
