// Package telemetry sets up OpenTelemetry tracing and metrics export.
//
// Spans and instruments across bellaqa are created through the global
// otel.Tracer and otel.Meter; New installs the real providers when
// telemetry is enabled and leaves the no-op globals otherwise.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Export uses OTLP over gRPC (default) or HTTP/protobuf. Insecure
// transport is only accepted for loopback endpoints.
//
// Tests use NewTestTelemetry, whose Install method records spans and
// metrics from code that uses the global providers.
package telemetry
