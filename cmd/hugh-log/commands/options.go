// Package commands implements the hugh-log subcommands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
)

// FilterOptions holds the raw filter flags shared by every subcommand.
type FilterOptions struct {
	SessionID string
	Topic     string
	Category  string
	TimeStart string
	TimeEnd   string
}

// Build converts the flag values into a reader filter.
func (o FilterOptions) Build() (hlog.Filter, error) {
	filter := hlog.Filter{SessionID: o.SessionID, Topic: o.Topic}

	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return hlog.Filter{}, err
		}
		filter.Category = &c
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return hlog.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return hlog.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	return filter, nil
}

// ParseCategoryFlag parses a category name, ignoring case.
func ParseCategoryFlag(s string) (hlog.Category, error) {
	c, ok := hlog.ParseCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !ok {
		return 0, fmt.Errorf("unknown category: %s (use pairing, command, state, error)", s)
	}
	return c, nil
}

// each calls fn for every event in path that matches filter.
func each(path string, filter hlog.Filter, fn func(hlog.Event) error) error {
	reader, err := hlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

const timeFormat = "2006-01-02T15:04:05.000000Z"

// shortID keeps the first eight characters of a session ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
