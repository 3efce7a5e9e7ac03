/*
Package auth guards the governor API with pre-shared API keys.

Keys are held only as SHA-256 digests and compared in constant time. A
request carries its key in the configured header (with the Bearer scheme
when the header is Authorization) or, for websocket clients that cannot set
headers, in the api_key query parameter.

# Basic Usage

	keys := auth.NewKeySet(cfg.Server.Auth.Keys)
	r.Use(auth.Middleware(keys, cfg.Server.Auth.Header, reject, logger))

The key set can be swapped at runtime with Replace, for example when the
configuration is reloaded. Handlers read the short key identifier of the
caller with KeyID.
*/
package auth
