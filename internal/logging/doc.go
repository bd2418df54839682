// Package logging provides structured logging with OpenTelemetry integration.
//
// The Logger wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - console output (stderr by default) and optional OTEL output
//   - trace and request id fields taken from the context
//   - secret redaction at the encoder
//
// Create a logger from config:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.Info(ctx, "question answered", zap.Duration("duration", d))
//
// Packages that only need a *zap.Logger receive logger.Underlying().
//
// Secrets are masked in three places: config.Secret values never render,
// keys such as api_key or authorization are replaced, and values matching
// a bearer or API key pattern are replaced.
//
// TestLogger records entries in memory for assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertNoSecrets(t)
package logging
