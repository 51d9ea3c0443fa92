package discovery

import (
	"net"
	"strconv"
	"strings"
)

// Service types and domain browsed for brokers.
const (
	ServiceTypeMQTT       = "_mqtt._tcp"
	ServiceTypeSecureMQTT = "_secure-mqtt._tcp"
	Domain                = "local."
)

// Broker is a broker found on the network.
type Broker struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the advertised host name, without the trailing dot.
	Host string

	Port uint16

	// Addresses lists IPv4 and IPv6 addresses in the order seen.
	Addresses []string

	// Secure is true for _secure-mqtt._tcp instances.
	Secure bool

	// Text holds the raw TXT record strings.
	Text []string
}

// URL returns a broker URL suitable for transport.MQTTConfig. The host name
// is preferred over addresses so TLS verification can match it.
func (b Broker) URL() string {
	scheme := "tcp"
	if b.Secure {
		scheme = "tls"
	}
	host := b.Host
	if host == "" && len(b.Addresses) > 0 {
		host = b.Addresses[0]
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(int(b.Port)))
}

func (b Broker) key() string {
	if b.Secure {
		return ServiceTypeSecureMQTT + "/" + b.Instance
	}
	return ServiceTypeMQTT + "/" + b.Instance
}

func trimHost(h string) string {
	return strings.TrimSuffix(h, ".")
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops every address in drop from addresses.
func removeAddresses(addresses, drop []string) []string {
	gone := make(map[string]bool, len(drop))
	for _, addr := range drop {
		gone[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !gone[addr] {
			result = append(result, addr)
		}
	}
	return result
}
