// Package interactive provides the interactive command-line interface
// for hugh-controller.
package interactive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/CHERIoT-Platform/hugh-go/pkg/command"
	"github.com/CHERIoT-Platform/hugh-go/pkg/discovery"
	"github.com/CHERIoT-Platform/hugh-go/pkg/pairing"
	"github.com/CHERIoT-Platform/hugh-go/pkg/session"
)

// BrokerBrowser finds brokers on the local network.
type BrokerBrowser interface {
	Browse(ctx context.Context) ([]discovery.Broker, error)
}

// Connection describes the broker connection for the status command.
type Connection interface {
	Broker() string
	ClientID() string
	Connected() bool
}

// Config wires the shell to the controller.
type Config struct {
	Session *session.Session

	// Connection may be nil in dry-run mode.
	Connection Connection

	// Browser may be nil when discovery is disabled.
	Browser BrokerBrowser
}

// Shell is the interactive controller prompt.
type Shell struct {
	config Config
	rl     *readline.Instance
	out    io.Writer
}

// New creates a shell reading from the terminal.
func New(cfg Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hugh> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := newShell(cfg, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(cfg Config, out io.Writer) *Shell {
	s := &Shell{config: cfg, out: out}
	cfg.Session.OnEvent(s.handleEvent)
	return s
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns true when the user asked to quit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	// Only the command word is trimmed; scan text is passed on verbatim,
	// as whitespace bytes are legal at either end of a pairing code.
	word, raw, _ := strings.Cut(strings.TrimLeft(line, " \t"), " ")
	cmd := strings.ToLower(strings.TrimSpace(word))
	if cmd == "" {
		return false
	}
	rest := strings.TrimSpace(raw)

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "scan":
		s.cmdScan(raw)

	case "scan-hex":
		s.cmdScanHex(rest)

	case "color", "colour", "c":
		s.cmdColor(ctx, rest)

	case "forget":
		s.config.Session.Revoke()

	case "status", "s":
		s.cmdStatus()

	case "brokers":
		s.cmdBrokers(ctx)

	case "generate":
		s.cmdGenerate()

	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Hugh Controller Commands:
  Pairing:
    scan <text>          - Pair from scanner text (ISO-8859-1)
    scan-hex <hex>       - Pair from a hex-encoded pairing code
    forget               - Forget the paired bulb
    generate             - Print a fresh pairing code for a test bulb

  Control:
    color <colour>       - Send a colour: #rrggbb, rrggbb or r,g,b

  General:
    status               - Show pairing and broker status
    brokers              - Discover MQTT brokers on the local network
    help                 - Show this help
    quit                 - Exit controller`)
}

func (s *Shell) cmdScan(text string) {
	if text == "" {
		fmt.Fprintln(s.out, "Usage: scan <text>")
		return
	}
	// Errors are reported by handleEvent.
	_ = s.config.Session.HandleScanText(text)
}

func (s *Shell) cmdScanHex(arg string) {
	if arg == "" {
		fmt.Fprintln(s.out, "Usage: scan-hex <hex>")
		return
	}
	raw, err := pairing.ParseHex(arg)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	defer clear(raw)
	_ = s.config.Session.HandleScan(raw)
}

func (s *Shell) cmdColor(ctx context.Context, arg string) {
	if arg == "" {
		fmt.Fprintln(s.out, "Usage: color <#rrggbb | rrggbb | r,g,b>")
		return
	}
	cmd, err := command.ParseCommand(arg)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	_ = s.config.Session.RequestCommand(ctx, cmd)
}

func (s *Shell) cmdStatus() {
	fmt.Fprintf(s.out, "Session:   %s\n", s.config.Session.ID())
	fmt.Fprintf(s.out, "State:     %s\n", s.config.Session.State())
	if topic, ok := s.config.Session.Topic(); ok {
		fmt.Fprintf(s.out, "Topic:     %s\n", topic)
	}
	if c := s.config.Connection; c != nil {
		status := "disconnected"
		if c.Connected() {
			status = "connected"
		}
		fmt.Fprintf(s.out, "Broker:    %s (%s)\n", c.Broker(), status)
		fmt.Fprintf(s.out, "Client ID: %s\n", c.ClientID())
	} else {
		fmt.Fprintln(s.out, "Broker:    none (dry run)")
	}
}

func (s *Shell) cmdBrokers(ctx context.Context) {
	if s.config.Browser == nil {
		fmt.Fprintln(s.out, "Broker discovery is disabled")
		return
	}
	fmt.Fprintln(s.out, "Browsing for MQTT brokers...")
	brokers, err := s.config.Browser.Browse(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Discovery error: %v\n", err)
		return
	}
	if len(brokers) == 0 {
		fmt.Fprintln(s.out, "No brokers found")
		return
	}
	fmt.Fprintf(s.out, "Found %d broker(s):\n", len(brokers))
	for idx, b := range brokers {
		fmt.Fprintf(s.out, "  %d. %s  %s  %s\n", idx+1, b.Instance, b.URL(), strings.Join(b.Addresses, ","))
	}
}

func (s *Shell) cmdGenerate() {
	cred, err := pairing.Generate(nil)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	defer cred.Wipe()

	code := pairing.Encode(cred)
	defer clear(code)
	fmt.Fprintf(s.out, "Topic:        %s\n", cred.Topic())
	fmt.Fprintf(s.out, "Pairing code: %s\n", hex.EncodeToString(code))
	fmt.Fprintln(s.out, "Use 'scan-hex <code>' to pair with it.")
}

func (s *Shell) handleEvent(ev session.Event) {
	switch ev.Type {
	case session.EventPaired:
		fmt.Fprintf(s.out, "Paired with %s\n", ev.Topic)
	case session.EventPairingFailed:
		fmt.Fprintf(s.out, "Pairing failed: %v\n", ev.Error)
	case session.EventRevoked:
		fmt.Fprintf(s.out, "Forgot %s\n", ev.Topic)
	case session.EventCommandSent:
		fmt.Fprintf(s.out, "Sent %s to %s\n", ev.Command, ev.Topic)
	case session.EventCommandFailed:
		fmt.Fprintf(s.out, "Command failed: %v\n", ev.Error)
	case session.EventResumed:
		if ev.State == session.StatePaired {
			fmt.Fprintf(s.out, "Restored pairing with %s\n", ev.Topic)
		}
	}
}
