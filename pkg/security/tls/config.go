package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"nanogov/governor/pkg/config"
)

// Build returns the server TLS configuration for cfg. Certificates are
// served from reloader; mutual TLS is enabled when a client CA is
// configured.
func Build(cfg *config.TLSConfig, reloader *Reloader) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("tls: not enabled")
	}
	if reloader == nil {
		return nil, errors.New("tls: nil certificate reloader")
	}

	// #nosec G402 - MinVersion is 1.2 or 1.3, validated with the configuration.
	tc := &tls.Config{
		GetCertificate: reloader.GetCertificate,
		MinVersion:     minVersion(cfg.MinVersion),
	}
	if cfg.ClientCAFile != "" {
		pool, err := loadCAPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		tc.ClientCAs = pool
		tc.ClientAuth = clientAuth(cfg.ClientAuth)
	}
	return tc, nil
}

func minVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}

func clientAuth(mode string) tls.ClientAuthType {
	switch mode {
	case "request":
		return tls.RequestClientCert
	case "verify_if_given":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}

func loadCAPool(path string) (*x509.CertPool, error) {
	// #nosec G304 - The CA path comes from the operator's configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates in client CA %s", path)
	}
	return pool, nil
}
