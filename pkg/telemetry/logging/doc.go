// Package logging builds the process slog logger.
//
// New wraps a JSON or text handler with two layers: secrets (tokens,
// passwords, DSNs, bearer headers, URL credentials) are masked, and values
// carried on the context (request ID, node ID, policy ID, checkpoint, trace
// and span IDs) are appended to every record logged with that context.
//
//	logger, err := logging.New(&cfg.Telemetry.Logging, os.Stderr)
//	if err != nil {
//		return err
//	}
//	ctx = logging.WithNodeID(ctx, "rack-07")
//	logger.InfoContext(ctx, "decision", "verdict", "deny")
//
// The level can be changed at runtime with SetLevel.
package logging
