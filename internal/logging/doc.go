// Package logging provides structured logging for repolens.
//
// The package wraps Zap with:
//   - Stdout output (JSON or console) plus an optional OpenTelemetry log bridge
//   - Context field injection (trace_id, request.id, index.run_id)
//   - Secret redaction by field name and value pattern
//   - Level-aware sampling (errors never sampled)
//
// Services accept a plain *zap.Logger; binaries construct a Logger and pass
// Underlying() down.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "index started", zap.String("repository", repo))
package logging
