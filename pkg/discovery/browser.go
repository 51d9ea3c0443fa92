package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// ErrBrowseFailed is returned when neither service type could be browsed.
var ErrBrowseFailed = errors.New("broker discovery failed")

// DefaultTimeout bounds a Browse call when the config sets none.
const DefaultTimeout = 3 * time.Second

// BrowserConfig configures a BrokerBrowser.
type BrowserConfig struct {
	// Timeout is how long to listen for answers. Default: 3 seconds.
	Timeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	// Logger receives operational messages. Nil disables them.
	Logger *slog.Logger
}

type browseFunc func(ctx context.Context, service string, entries, removed chan *zeroconf.ServiceEntry) error

// BrokerBrowser browses for MQTT brokers.
type BrokerBrowser struct {
	config BrowserConfig
	browse browseFunc
	logger *slog.Logger
}

// NewBrokerBrowser creates a browser.
func NewBrokerBrowser(config BrowserConfig) *BrokerBrowser {
	b := newBrokerBrowser(config, nil)
	opts := b.clientOptions()
	b.browse = func(ctx context.Context, service string, entries, removed chan *zeroconf.ServiceEntry) error {
		return zeroconf.Browse(ctx, service, Domain, entries, removed, opts...)
	}
	return b
}

func newBrokerBrowser(config BrowserConfig, browse browseFunc) *BrokerBrowser {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BrokerBrowser{config: config, browse: browse, logger: logger}
}

// clientOptions returns zeroconf client options based on config.
func (b *BrokerBrowser) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger.Warn("ignoring unknown interface", "interface", b.config.Interface, "error", err)
		}
	}
	return opts
}

type sighting struct {
	broker  Broker
	removed bool
}

// Browse listens for the configured timeout, or until ctx is done, and
// returns the brokers still present at the end. TLS brokers come first,
// then by instance name.
func (b *BrokerBrowser) Browse(ctx context.Context) ([]Broker, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	results := make(chan sighting)
	errs := make(chan error, 2)

	var wg sync.WaitGroup
	for _, st := range []struct {
		service string
		secure  bool
	}{
		{ServiceTypeSecureMQTT, true},
		{ServiceTypeMQTT, false},
	} {
		entries := make(chan *zeroconf.ServiceEntry)
		removed := make(chan *zeroconf.ServiceEntry)

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := b.browse(ctx, st.service, entries, removed); err != nil {
				errs <- fmt.Errorf("%s: %w", st.service, err)
			}
		}()
		go func() {
			defer wg.Done()
			forward(ctx, entries, removed, st.secure, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	found := make(map[string]*Broker)
	for s := range results {
		k := s.broker.key()
		existing, ok := found[k]
		switch {
		case s.removed && ok:
			existing.Addresses = removeAddresses(existing.Addresses, s.broker.Addresses)
			if len(existing.Addresses) == 0 {
				delete(found, k)
			}
		case s.removed:
		case ok:
			existing.Addresses = mergeAddresses(existing.Addresses, s.broker.Addresses)
		default:
			br := s.broker
			found[k] = &br
			b.logger.Debug("broker found", "instance", br.Instance, "url", br.URL())
		}
	}
	close(errs)

	var failures []error
	for err := range errs {
		failures = append(failures, err)
	}
	if len(failures) == 2 && len(found) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrBrowseFailed, errors.Join(failures...))
	}
	for _, err := range failures {
		b.logger.Debug("browse error", "error", err)
	}

	brokers := make([]Broker, 0, len(found))
	for _, br := range found {
		brokers = append(brokers, *br)
	}
	sort.Slice(brokers, func(i, j int) bool {
		if brokers[i].Secure != brokers[j].Secure {
			return brokers[i].Secure
		}
		return brokers[i].Instance < brokers[j].Instance
	})
	return brokers, nil
}

// forward converts zeroconf entries until both channels close or ctx ends.
func forward(ctx context.Context, entries, removed <-chan *zeroconf.ServiceEntry, secure bool, out chan<- sighting) {
	for entries != nil || removed != nil {
		var (
			entry *zeroconf.ServiceEntry
			ok    bool
			gone  bool
		)
		select {
		case entry, ok = <-entries:
			if !ok {
				entries = nil
				continue
			}
		case entry, ok = <-removed:
			if !ok {
				removed = nil
				continue
			}
			gone = true
		case <-ctx.Done():
			return
		}
		if entry == nil {
			continue
		}

		select {
		case out <- sighting{broker: entryToBroker(entry, secure), removed: gone}:
		case <-ctx.Done():
			return
		}
	}
}

// entryToBroker converts a zeroconf entry to a Broker.
func entryToBroker(entry *zeroconf.ServiceEntry, secure bool) Broker {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return Broker{
		Instance:  entry.Instance,
		Host:      trimHost(entry.HostName),
		Port:      uint16(entry.Port),
		Addresses: addrs,
		Secure:    secure,
		Text:      entry.Text,
	}
}
