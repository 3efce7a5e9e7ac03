// Package tls serves the governor API over TLS.
//
// Certificates are loaded from PEM files and re-read when their
// modification time changes, so a rotated certificate is picked up without
// a restart. When a client CA is configured, mesh peers authenticate with
// their own certificates and the configured certificate field becomes the
// peer identity attached to request logs.
//
// Usage:
//
//	reloader := tls.NewReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval, logger)
//	if err := reloader.Start(ctx); err != nil {
//		return err
//	}
//	tlsConfig, err := tls.Build(cfg, reloader)
package tls
