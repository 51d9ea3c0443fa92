package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[hlog.Category]int
	Topics           map[string]*TopicStats
	Sessions         map[string]struct{}
	Pairings         map[hlog.PairingAction]int
	ErrorsByStage    map[hlog.Stage]int
	Start, End       time.Time
}

// TopicStats holds per-bulb command statistics.
type TopicStats struct {
	Commands      int
	Errors        int
	TotalDuration time.Duration
	LastColor     string
}

// Collect reads the events in path matching filter and aggregates them.
func Collect(path string, filter hlog.Filter) (*Stats, error) {
	stats := &Stats{
		EventsByCategory: make(map[hlog.Category]int),
		Topics:           make(map[string]*TopicStats),
		Sessions:         make(map[string]struct{}),
		Pairings:         make(map[hlog.PairingAction]int),
		ErrorsByStage:    make(map[hlog.Stage]int),
	}

	err := each(path, filter, func(event hlog.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Stats) add(event hlog.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++
	if event.SessionID != "" {
		s.Sessions[event.SessionID] = struct{}{}
	}

	if s.Start.IsZero() || event.Timestamp.Before(s.Start) {
		s.Start = event.Timestamp
	}
	if event.Timestamp.After(s.End) {
		s.End = event.Timestamp
	}

	var topic *TopicStats
	if event.Topic != "" {
		topic = s.Topics[event.Topic]
		if topic == nil {
			topic = &TopicStats{}
			s.Topics[event.Topic] = topic
		}
	}

	switch {
	case event.Pairing != nil:
		s.Pairings[event.Pairing.Action]++
	case event.Command != nil:
		if topic != nil {
			topic.Commands++
			topic.TotalDuration += event.Command.Duration
			topic.LastColor = event.Command.Color
		}
	case event.Error != nil:
		s.ErrorsByStage[event.Error.Stage]++
		if topic != nil {
			topic.Errors++
		}
	}
}

// RunStats prints statistics for the events in path matching filter.
func RunStats(path string, filter hlog.Filter, w io.Writer) error {
	stats, err := Collect(path, filter)
	if err != nil {
		return err
	}
	stats.Print(w)
	return nil
}

// Print writes a summary of s to w.
func (s *Stats) Print(w io.Writer) {
	fmt.Fprintf(w, "Events:   %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Sessions: %d\n", len(s.Sessions))
	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "Time:     %s to %s (%s)\n",
			s.Start.UTC().Format(timeFormat), s.End.UTC().Format(timeFormat), s.End.Sub(s.Start))
	}

	fmt.Fprintln(w, "\nBy category:")
	for c := hlog.CategoryPairing; c <= hlog.CategoryError; c++ {
		if n := s.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", c, n)
		}
	}

	if len(s.Pairings) > 0 {
		fmt.Fprintln(w, "\nPairing:")
		for a := hlog.PairingScanned; a <= hlog.PairingRevoked; a++ {
			if n := s.Pairings[a]; n > 0 {
				fmt.Fprintf(w, "  %s: %d\n", a, n)
			}
		}
	}

	if len(s.ErrorsByStage) > 0 {
		fmt.Fprintln(w, "\nErrors by stage:")
		for st := hlog.StageDecode; st <= hlog.StagePersist; st++ {
			if n := s.ErrorsByStage[st]; n > 0 {
				fmt.Fprintf(w, "  %s: %d\n", st, n)
			}
		}
	}

	if len(s.Topics) > 0 {
		topics := make([]string, 0, len(s.Topics))
		for t := range s.Topics {
			topics = append(topics, t)
		}
		sort.Strings(topics)

		fmt.Fprintln(w, "\nTopics:")
		for _, t := range topics {
			ts := s.Topics[t]
			fmt.Fprintf(w, "  %s: %d commands, %d errors", t, ts.Commands, ts.Errors)
			if ts.Commands > 0 {
				fmt.Fprintf(w, ", avg %s, last %s", ts.TotalDuration/time.Duration(ts.Commands), ts.LastColor)
			}
			fmt.Fprintln(w)
		}
	}
}
