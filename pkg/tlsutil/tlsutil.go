// Package tlsutil holds the TLS policy of provider transports and turns it
// into a *tls.Config.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/hapticlink/errors"
)

// MTLS is the client certificate presented to a control server
type MTLS struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// ClientConfig is the TLS policy of an HTTP or WebSocket provider client.
// The system CA bundle is always trusted; CAFiles add to it.
//
// Lovense Connect and Intiface serve self-signed certificates on the LAN, so
// InsecureSkipVerify is a pointer: nil means "use the provider default".
type ClientConfig struct {
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify *bool    `json:"insecure_skip_verify,omitempty"`
	MinVersion         string   `json:"min_version,omitempty"`
	MTLS               MTLS     `json:"mtls,omitempty"`
}

// SkipVerify resolves InsecureSkipVerify against a provider default
func (c ClientConfig) SkipVerify(def bool) bool {
	if c.InsecureSkipVerify == nil {
		return def
	}
	return *c.InsecureSkipVerify
}

// Validate checks the policy without reading certificate contents
func (c ClientConfig) Validate() error {
	if _, err := ParseVersion(c.MinVersion); err != nil {
		return err
	}
	for i, caFile := range c.CAFiles {
		if _, err := os.Stat(caFile); err != nil {
			return fmt.Errorf("ca_files[%d]: %w", i, err)
		}
	}
	if c.MTLS.Enabled && (c.MTLS.CertFile == "" || c.MTLS.KeyFile == "") {
		return fmt.Errorf("%w: mtls requires cert_file and key_file", errors.ErrInvalidConfig)
	}
	return nil
}

// ParseVersion maps "1.2" and "1.3" to crypto/tls constants. Empty means 1.2.
func ParseVersion(version string) (uint16, error) {
	switch version {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: invalid TLS version %q (must be \"1.2\" or \"1.3\")", errors.ErrInvalidConfig, version)
	}
}

// Build loads the CA files and client certificate. skipVerifyDefault
// applies when InsecureSkipVerify is unset.
func (c ClientConfig) Build(skipVerifyDefault bool) (*tls.Config, error) {
	minVersion, err := ParseVersion(c.MinVersion)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "Build", "parse min_version")
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	for _, caFile := range c.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Build", "read CA file "+caFile)
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(errors.ErrInvalidData, "tlsutil", "Build", "parse CA certificate from "+caFile)
		}
	}

	cfg := &tls.Config{
		MinVersion: minVersion,
		RootCAs:    rootCAs,
		// Local control servers ship self-signed certificates; operators opt out per config.
		InsecureSkipVerify: c.SkipVerify(skipVerifyDefault), //nolint:gosec
	}

	if c.MTLS.Enabled {
		cert, err := tls.LoadX509KeyPair(c.MTLS.CertFile, c.MTLS.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Build", "load client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
