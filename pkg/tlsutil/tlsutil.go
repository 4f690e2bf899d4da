// Package tlsutil builds crypto/tls configurations for the NATS client and
// the websocket sink from file-based settings.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/nodeflow/errors"
)

// ClientConfig configures TLS towards a server. The system CA bundle is
// always trusted; CAFiles add to it. CertFile and KeyFile enable mTLS.
type ClientConfig struct {
	Enabled            bool     `json:"enabled" yaml:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty" yaml:"ca_files,omitempty"`
	CertFile           string   `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile            string   `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	ServerName         string   `json:"server_name,omitempty" yaml:"server_name,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"` // dev/test only
	MinVersion         string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`
}

// ServerConfig configures a TLS listener. ClientCAFiles enable client
// certificate verification, mandatory when RequireClientCert is set.
type ServerConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	CertFile          string   `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile           string   `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion        string   `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty" yaml:"client_ca_files,omitempty"`
	RequireClientCert bool     `json:"require_client_cert,omitempty" yaml:"require_client_cert,omitempty"`
}

// Validate checks the configuration for errors.
func (c ClientConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tlsutil", "Validate",
			"cert_file and key_file must be set together")
	}
	return validVersion(c.MinVersion)
}

// Validate checks the configuration for errors.
func (c ServerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tlsutil", "Validate",
			"cert_file and key_file are required")
	}
	if c.RequireClientCert && len(c.ClientCAFiles) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tlsutil", "Validate",
			"require_client_cert needs client_ca_files")
	}
	return validVersion(c.MinVersion)
}

// LoadClient returns the client tls.Config, or nil when TLS is disabled.
func LoadClient(cfg ClientConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if err := appendPEMFiles(rootCAs, cfg.CAFiles, "LoadClient"); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
		RootCAs:    rootCAs,
		ServerName: cfg.ServerName,
		// Operators opt in through configuration.
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClient", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// LoadServer returns the server tls.Config, or nil when TLS is disabled.
func LoadServer(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServer", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if len(cfg.ClientCAFiles) > 0 {
		clientCAs := x509.NewCertPool()
		if err := appendPEMFiles(clientCAs, cfg.ClientCAFiles, "LoadServer"); err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = clientCAs
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
		if cfg.RequireClientCert {
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}
	return tlsConfig, nil
}

func appendPEMFiles(pool *x509.CertPool, files []string, method string) error {
	for _, file := range files {
		pem, err := os.ReadFile(file)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", method, fmt.Sprintf("read CA file %s", file))
		}
		if !pool.AppendCertsFromPEM(pem) {
			return errors.WrapFatal(fmt.Errorf("invalid PEM data"), "tlsutil", method,
				fmt.Sprintf("parse CA certificate from %s", file))
		}
	}
	return nil
}

func validVersion(version string) error {
	switch version {
	case "", "1.2", "1.3":
		return nil
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: min_version %q", errors.ErrInvalidConfig, version),
			"tlsutil", "Validate", "min_version must be 1.2 or 1.3")
	}
}

// parseTLSVersion returns tls.VersionTLS12 for anything but "1.3".
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}
