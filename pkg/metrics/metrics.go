// Package metrics exposes controller activity as Prometheus metrics.
//
// A Collector is a protocol log sink: it derives its counters from the
// same events written to the capture file, so it never sees key material.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	hlog "github.com/CHERIoT-Platform/hugh-go/pkg/log"
	"github.com/CHERIoT-Platform/hugh-go/pkg/session"
	"github.com/CHERIoT-Platform/hugh-go/pkg/transport"
)

const namespace = "hugh"

// Collector counts protocol events.
type Collector struct {
	pairings        *prometheus.CounterVec
	commands        prometheus.Counter
	ciphertextBytes prometheus.Counter
	publishDuration prometheus.Histogram
	errors          *prometheus.CounterVec
	paired          prometheus.Gauge
	connected       prometheus.Gauge
}

var _ hlog.Logger = (*Collector)(nil)

// New creates a Collector and registers it with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		pairings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "events_total",
			Help:      "Credential changes by action.",
		}, []string{"action"}),
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "sent_total",
			Help:      "Commands accepted by the broker.",
		}),
		ciphertextBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "ciphertext_bytes_total",
			Help:      "Sealed payload bytes published.",
		}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Time to seal and publish a command.",
			Buckets:   prometheus.DefBuckets,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failures by pipeline stage.",
		}, []string{"stage"}),
		paired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "paired",
			Help:      "1 while a bulb credential is held.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "connected",
			Help:      "1 while the broker connection is open.",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.pairings, c.commands, c.ciphertextBytes, c.publishDuration, c.errors, c.paired, c.connected,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Log updates the metrics for one event.
func (c *Collector) Log(event hlog.Event) {
	switch {
	case event.Pairing != nil:
		c.pairings.WithLabelValues(event.Pairing.Action.String()).Inc()
	case event.Command != nil:
		c.commands.Inc()
		c.ciphertextBytes.Add(float64(event.Command.CiphertextSize))
		if event.Command.Duration > 0 {
			c.publishDuration.Observe(event.Command.Duration.Seconds())
		}
	case event.StateChange != nil:
		c.setState(event.StateChange)
	case event.Error != nil:
		c.errors.WithLabelValues(event.Error.Stage.String()).Inc()
	}
}

func (c *Collector) setState(s *hlog.StateChangeEvent) {
	switch s.Entity {
	case hlog.StateEntitySession:
		c.paired.Set(boolValue(s.NewState == session.StatePaired.String()))
	case hlog.StateEntityConnection:
		c.connected.Set(boolValue(s.NewState == transport.StateConnected))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Handler serves the metrics in g, or the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
