// Package discovery finds MQTT brokers on the local network with
// mDNS/DNS-SD.
//
// Two service types are browsed at once:
//
//   - _secure-mqtt._tcp: MQTT over TLS
//   - _mqtt._tcp: plain MQTT
//
// Instances seen on several interfaces are merged into one Broker with the
// union of their addresses. TLS brokers sort first.
package discovery
