// Command hugh-controller pairs with a Hugh light bulb and sends it colours.
//
// The bulb shows a pairing code holding its topic and a 32-byte key. The
// controller decodes it, then seals each colour with the key and publishes
// it to the bulb's topic through an MQTT broker that never sees the key.
//
// Usage:
//
//	hugh-controller [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML or TOML)
//	-broker string        MQTT broker URL (default tls://test.mosquitto.org:8886)
//	-demo-broker          Use the CHERIoT demo broker instead
//	-state-file string    File keeping the pairing across restarts
//	-protocol-log string  Append protocol events to this CBOR file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-reset                Forget any saved pairing before starting
//	-dry-run              Do not connect; record publishes in memory
//	-pairing-code string  Hex pairing code for one-shot mode
//	-color string         Colour for one-shot mode (#rrggbb or r,g,b)
//	-metrics-addr string  Serve Prometheus metrics on this address
//
// Examples:
//
//	# Interactive controller on the default broker
//	hugh-controller
//
//	# Pair and send one colour, then exit
//	hugh-controller -pairing-code 4855474842554c42... -color '#ff0080'
//
//	# Capture protocol events for later inspection with hugh-log
//	hugh-controller -protocol-log session.hlog -log-level debug
//
// Interactive Commands:
//
//	scan <text>     - Pair from scanner text
//	scan-hex <hex>  - Pair from a hex pairing code
//	color <colour>  - Send a colour
//	forget          - Forget the paired bulb
//	status          - Show pairing and broker status
//	brokers         - Discover brokers on the local network
//	generate        - Print a pairing code for a test bulb
//	quit            - Exit the controller
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/CHERIoT-Platform/hugh-go/cmd/hugh-controller/interactive"
	"github.com/CHERIoT-Platform/hugh-go/pkg/command"
	"github.com/CHERIoT-Platform/hugh-go/pkg/config"
	"github.com/CHERIoT-Platform/hugh-go/pkg/discovery"
	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
	"github.com/CHERIoT-Platform/hugh-go/pkg/metrics"
	"github.com/CHERIoT-Platform/hugh-go/pkg/pairing"
	"github.com/CHERIoT-Platform/hugh-go/pkg/persistence"
	"github.com/CHERIoT-Platform/hugh-go/pkg/session"
	"github.com/CHERIoT-Platform/hugh-go/pkg/transport"
)

// Options holds command line flags.
type Options struct {
	ConfigFile  string
	Broker      string
	DemoBroker  bool
	StateFile   string
	ProtocolLog string
	LogLevel    string
	Reset       bool
	DryRun      bool
	PairingCode string
	Color       string
	MetricsAddr string
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML or TOML)")
	flag.StringVar(&opts.Broker, "broker", "", "MQTT broker URL (overrides config)")
	flag.BoolVar(&opts.DemoBroker, "demo-broker", false, "Use the CHERIoT demo broker")
	flag.StringVar(&opts.StateFile, "state-file", "", "File keeping the pairing across restarts")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Append protocol events to this CBOR file")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.Reset, "reset", false, "Forget any saved pairing before starting")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Do not connect; record publishes in memory")
	flag.StringVar(&opts.PairingCode, "pairing-code", "", "Hex pairing code for one-shot mode")
	flag.StringVar(&opts.Color, "color", "", "Colour for one-shot mode (#rrggbb or r,g,b)")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
}

func main() {
	flag.Parse()
	os.Exit(run(opts))
}

// applyOptions overlays flags onto the loaded configuration.
func applyOptions(cfg *config.Config, o Options) error {
	if o.Broker != "" {
		cfg.Broker = o.Broker
	} else if o.DemoBroker {
		cfg.Broker = cfg.SelectBroker(true)
	}
	if o.StateFile != "" {
		cfg.StateFile = o.StateFile
	}
	if o.ProtocolLog != "" {
		cfg.ProtocolLog = o.ProtocolLog
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.MetricsAddr != "" {
		cfg.MetricsAddr = o.MetricsAddr
	}
	if (o.PairingCode == "") != (o.Color == "") {
		return errors.New("-pairing-code and -color must be given together")
	}
	return cfg.Validate()
}

func run(o Options) int {
	cfg, err := config.Load(o.ConfigFile)
	if err == nil {
		err = applyOptions(&cfg, o)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "hugh-controller: %v\n", err)
		return 2
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logOut := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	sessionID := uuid.NewString()

	var sinks []hlog.Logger
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector, err := metrics.New(reg)
		if err != nil {
			logger.Error("failed to register metrics", "error", err)
			return 1
		}
		stopMetrics, err := serveMetrics(cfg.MetricsAddr, reg, logger)
		if err != nil {
			logger.Error("failed to start metrics server", "addr", cfg.MetricsAddr, "error", err)
			return 1
		}
		defer stopMetrics()
		sinks = append(sinks, collector)
	}

	plog, closeLog, err := setupProtocolLog(cfg, logger, sinks...)
	if err != nil {
		logger.Error("failed to open protocol log", "path", cfg.ProtocolLog, "error", err)
		return 1
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		pub  transport.Publisher
		mqtt *transport.MQTTPublisher
	)
	if o.DryRun {
		pub = &transport.RecordingPublisher{}
		logger.Info("dry run: publishes are recorded, not sent")
	} else {
		mqtt, err = transport.NewMQTTPublisher(transport.MQTTConfig{
			Broker:   cfg.Broker,
			ClientID: cfg.ClientID,
			TLSConfig: &transport.TLSConfig{
				CAFile:             cfg.TLS.CAFile,
				ServerName:         cfg.TLS.ServerName,
				InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
			},
			QoS:            cfg.QoS,
			ConnectTimeout: cfg.ConnectTimeout,
			PublishTimeout: cfg.PublishTimeout,
			KeepAlive:      cfg.KeepAlive,
			Logger:         logger,
			ProtocolLogger: plog,
			SessionID:      sessionID,
		})
		if err != nil {
			logger.Error("failed to create MQTT client", "error", err)
			return 1
		}
		defer mqtt.Close()
		pub = mqtt
	}

	sess, err := session.New(session.Config{
		Publisher:      pub,
		QoS:            cfg.QoS,
		SessionID:      sessionID,
		Logger:         logger,
		ProtocolLogger: plog,
	})
	if err != nil {
		logger.Error("failed to create session", "error", err)
		return 1
	}

	if mqtt != nil {
		logger.Info("connecting", "broker", cfg.Broker, "client_id", mqtt.ClientID())
		if err := mqtt.Connect(ctx); err != nil {
			// Not fatal: the client keeps dialing, and commands fail with
			// ErrTransportUnavailable until the broker is reachable.
			logger.Warn("broker unreachable, retrying in background", "error", err)
		}
	}

	if o.PairingCode != "" {
		return oneShot(ctx, sess, o, logger)
	}

	states := persistence.NewControllerStateStore(cfg.StateFile)
	if o.Reset {
		logger.Info("resetting saved pairing", "path", states.Path())
		if err := states.Clear(); err != nil {
			logger.Warn("failed to clear state", "error", err)
		}
	}
	restoreState(states, sess, logger, plog)

	var browser interactive.BrokerBrowser
	if cfg.Discovery.Enabled {
		browser = discovery.NewBrokerBrowser(discovery.BrowserConfig{
			Timeout:   cfg.Discovery.Timeout,
			Interface: cfg.Discovery.Interface,
			Logger:    logger,
		})
	}
	var conn interactive.Connection
	if mqtt != nil {
		conn = mqtt
	}

	shell, err := interactive.New(interactive.Config{Session: sess, Connection: conn, Browser: browser})
	if err != nil {
		logger.Error("failed to start shell", "error", err)
		return 1
	}
	// Keep log lines from tearing the prompt.
	logOut.Set(shell.Stdout())

	shellCtx, stop := context.WithCancel(ctx)
	shell.Run(shellCtx, stop)
	logOut.Set(os.Stderr)

	saveState(states, sess, cfg.Broker, logger, plog)
	return 0
}

// oneShot pairs with the given code, sends one colour and exits.
func oneShot(ctx context.Context, sess *session.Session, o Options, logger *slog.Logger) int {
	raw, err := pairing.ParseHex(o.PairingCode)
	if err != nil {
		logger.Error("invalid pairing code", "error", err)
		return 1
	}
	defer clear(raw)

	cmd, err := command.ParseCommand(o.Color)
	if err != nil {
		logger.Error("invalid colour", "error", err)
		return 1
	}
	if err := sess.HandleScan(raw); err != nil {
		logger.Error("pairing failed", "error", err)
		return 1
	}
	if err := sess.RequestCommand(ctx, cmd); err != nil {
		logger.Error("send failed", "error", err)
		return 1
	}
	topic, _ := sess.Topic()
	logger.Info("sent", "color", cmd.String(), "topic", topic)
	return 0
}

func restoreState(states *persistence.ControllerStateStore, sess *session.Session, logger *slog.Logger, plog hlog.Logger) {
	st, err := states.Load()
	if err != nil {
		logger.Warn("failed to load saved state", "path", states.Path(), "error", err)
		logStageError(plog, sess.ID(), hlog.StageRestore, err)
		return
	}
	if st == nil {
		return
	}
	defer st.Wipe()

	if err := sess.Resume(st.Credential); err != nil {
		logger.Warn("saved pairing is unusable", "error", err)
	}
}

func saveState(states *persistence.ControllerStateStore, sess *session.Session, broker string, logger *slog.Logger, plog hlog.Logger) {
	st := &persistence.ControllerState{Broker: broker, Credential: sess.Suspend()}
	defer st.Wipe()

	if err := states.Save(st); err != nil {
		logger.Warn("failed to save state", "path", states.Path(), "error", err)
		logStageError(plog, sess.ID(), hlog.StagePersist, err)
	}
}

func logStageError(plog hlog.Logger, sessionID string, stage hlog.Stage, err error) {
	plog.Log(hlog.Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Category:  hlog.CategoryError,
		Error:     &hlog.ErrorEventData{Stage: stage, Message: err.Error()},
	})
}

// setupProtocolLog builds the protocol logger: events go to the console at
// debug level, to any extra sinks, and to a capture file when one is
// configured.
func setupProtocolLog(cfg config.Config, logger *slog.Logger, sinks ...hlog.Logger) (hlog.Logger, func(), error) {
	loggers := append([]hlog.Logger{hlog.NewSlogAdapter(logger)}, sinks...)
	if cfg.ProtocolLog == "" {
		return hlog.NewMultiLogger(loggers...), func() {}, nil
	}

	file, err := hlog.NewFileLogger(cfg.ProtocolLog)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if n := file.Dropped(); n > 0 {
			logger.Warn("protocol log dropped events", "count", n)
		}
		file.Close()
	}
	return hlog.NewMultiLogger(append(loggers, file)...), closeFn, nil
}

// serveMetrics listens on addr and serves /metrics until the returned stop
// function is called.
func serveMetrics(addr string, g prometheus.Gatherer, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

// switchWriter lets log output move to the shell's writer once it exists.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Set redirects subsequent writes to w.
func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
