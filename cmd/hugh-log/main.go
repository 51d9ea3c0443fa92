// Command hugh-log views and analyzes protocol log files written by
// hugh-controller with the -protocol-log flag.
//
// Usage:
//
//	hugh-log <command> [flags] <file.hlog>
//
// Commands:
//
//	view     Print events in human-readable form
//	export   Export events as JSON lines or CSV
//	filter   Copy matching events into a new log file
//	stats    Summarize the log file
//
// Every command accepts the same filter flags:
//
//	-session     Session ID
//	-topic       Bulb topic, e.g. HUGHBULB
//	-category    pairing, command, state or error
//	-time-start  Earliest event time (RFC3339, inclusive)
//	-time-end    Latest event time (RFC3339, exclusive)
//
// Examples:
//
//	# Commands sent to one bulb
//	hugh-log view -topic HUGHBULB -category command controller.hlog
//
//	# Export to CSV
//	hugh-log export -format csv -o events.csv controller.hlog
//
//	# Per-bulb statistics
//	hugh-log stats controller.hlog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/CHERIoT-Platform/hugh-go/cmd/hugh-log/commands"
	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
)

const usage = `hugh-log - Hugh protocol log analyzer

Usage:
  hugh-log <command> [flags] <file.hlog>

Commands:
  view     Print events in human-readable form
  export   Export events as JSON lines or CSV
  filter   Copy matching events into a new log file
  stats    Summarize the log file

Use "hugh-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "export":
		err = runExport(args)
	case "filter":
		err = runFilter(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// subcommand holds a flag set with the shared filter flags registered.
type subcommand struct {
	fs   *flag.FlagSet
	opts commands.FilterOptions
}

func newSubcommand(name, summary, synopsis string) *subcommand {
	s := &subcommand{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	s.fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "hugh-log %s - %s\n\nUsage:\n  hugh-log %s %s\n\nFlags:\n", name, summary, name, synopsis)
		s.fs.PrintDefaults()
	}

	s.fs.StringVar(&s.opts.SessionID, "session", "", "Filter by session ID")
	s.fs.StringVar(&s.opts.Topic, "topic", "", "Filter by bulb topic")
	s.fs.StringVar(&s.opts.Category, "category", "", "Filter by category (pairing, command, state, error)")
	s.fs.StringVar(&s.opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	s.fs.StringVar(&s.opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return s
}

// parse parses args and returns the log path and filter.
func (s *subcommand) parse(args []string) (string, hlog.Filter, error) {
	if err := s.fs.Parse(args); err != nil {
		return "", hlog.Filter{}, err
	}
	if s.fs.NArg() < 1 {
		s.fs.Usage()
		return "", hlog.Filter{}, fmt.Errorf("log file path required")
	}
	filter, err := s.opts.Build()
	if err != nil {
		return "", hlog.Filter{}, err
	}
	return s.fs.Arg(0), filter, nil
}

func runView(args []string) error {
	s := newSubcommand("view", "Print events in human-readable form", "[flags] <file.hlog>")
	path, filter, err := s.parse(args)
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	s := newSubcommand("export", "Export events as JSON lines or CSV", "[flags] <file.hlog>")
	format := s.fs.String("format", commands.FormatJSONL, "Output format (jsonl, csv)")
	output := s.fs.String("o", "", "Output file (default: stdout)")

	path, filter, err := s.parse(args)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return commands.RunExport(path, *format, filter, w)
}

func runFilter(args []string) error {
	s := newSubcommand("filter", "Copy matching events into a new log file", "-o <out.hlog> [flags] <file.hlog>")
	output := s.fs.String("o", "", "Output file (required)")

	path, filter, err := s.parse(args)
	if err != nil {
		return err
	}
	if *output == "" {
		s.fs.Usage()
		return fmt.Errorf("output file (-o) required")
	}

	n, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string) error {
	s := newSubcommand("stats", "Summarize the log file", "[flags] <file.hlog>")
	path, filter, err := s.parse(args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, filter, os.Stdout)
}
