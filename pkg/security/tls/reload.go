package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reloader serves a certificate pair from disk and re-reads it when either
// file changes.
type Reloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewReloader creates a reloader that checks the files every interval.
func NewReloader(certFile, keyFile string, interval time.Duration, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		logger:   logger.With("component", "tls"),
		now:      time.Now,
	}
}

// Start loads the certificate and, when an interval is set, keeps checking
// for changes until ctx is done.
func (r *Reloader) Start(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}
	r.logCertificate()
	if r.interval > 0 {
		go r.loop(ctx)
	}
	return nil
}

func (r *Reloader) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReloadIfChanged()
		}
	}
}

// ReloadIfChanged re-reads the pair when a file is newer than the loaded
// one. A pair that fails to load leaves the current certificate in place.
func (r *Reloader) ReloadIfChanged() bool {
	if !r.changed() {
		return false
	}
	if err := r.reload(); err != nil {
		r.logger.Error("failed to reload certificate", "error", err, "cert_file", r.certFile)
		return false
	}
	r.logger.Info("certificate reloaded", "cert_file", r.certFile)
	r.logCertificate()
	return true
}

func (r *Reloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

func (r *Reloader) reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return err
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return err
	}
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}
	x, err := leaf(&cert)
	if err != nil {
		return err
	}
	if err := validAt(x, r.now()); err != nil {
		return err
	}
	cert.Leaf = x

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()
	return nil
}

// Certificate returns the loaded certificate.
func (r *Reloader) Certificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificate matches tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := r.Certificate()
	if cert == nil {
		return nil, errors.New("no certificate loaded")
	}
	return cert, nil
}

// Check is a health check that fails once the served certificate has
// expired.
func (r *Reloader) Check(ctx context.Context) error {
	x, err := leaf(r.Certificate())
	if err != nil {
		return err
	}
	return validAt(x, r.now())
}

func (r *Reloader) logCertificate() {
	x, err := leaf(r.Certificate())
	if err != nil {
		return
	}
	remaining := x.NotAfter.Sub(r.now())
	attrs := []any{
		"subject", x.Subject.CommonName,
		"issuer", x.Issuer.CommonName,
		"expires_at", x.NotAfter.Format(time.RFC3339),
		"expires_in_days", int(remaining.Hours() / 24),
	}
	if remaining < ExpiryWarning {
		r.logger.Warn("certificate expiring soon", attrs...)
		return
	}
	r.logger.Info("certificate loaded", attrs...)
}
