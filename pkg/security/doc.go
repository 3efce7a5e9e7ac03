/*
Package security groups the transport and access controls of the governor
API. Policy integrity is enforced separately by signatures; these packages
protect the channel and the read endpoints.

# TLS

Serve the API over TLS with hot certificate rotation, optionally requiring
mesh peers to present certificates from a shared CA:

	reloader := tls.NewReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval, logger)
	if err := reloader.Start(ctx); err != nil {
		return err
	}
	tlsConfig, err := tls.Build(&cfg.Server.TLS, reloader)

# API Key Authentication

Require a pre-shared key on the /v1 routes:

	keys := auth.NewKeySet(cfg.Server.Auth.Keys)
	r.Use(auth.Middleware(keys, cfg.Server.Auth.Header, reject, logger))
*/
package security
