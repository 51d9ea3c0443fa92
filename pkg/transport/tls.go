package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds TLS settings for the broker connection.
type TLSConfig struct {
	// CAFile is an optional PEM bundle trusted in addition to the system
	// roots. Public brokers need none.
	CAFile string

	// ServerName overrides the name used to verify the broker certificate.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// Only for testing against local brokers.
	InsecureSkipVerify bool
}

// NewClientTLSConfig builds the crypto/tls configuration for a broker
// connection. A nil cfg yields system roots and TLS 1.2 minimum.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		// Public brokers still negotiate 1.2.
		MinVersion: tls.VersionTLS12,
	}
	if cfg == nil {
		return tlsConfig, nil
	}

	tlsConfig.ServerName = cfg.ServerName
	tlsConfig.InsecureSkipVerify = cfg.InsecureSkipVerify

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
