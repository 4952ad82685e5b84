// Package telemetry sets up OpenTelemetry tracing and metrics for repolens.
//
// Spans and metrics are exported over OTLP (grpc or http/protobuf) to a
// collector. Services obtain instruments from the global providers through
// otel.Tracer and otel.Meter, so New installs its providers globally.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Exporter failures never stop the server: the instance is marked degraded
// and the global no-op providers stay in place.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	restore := tt.Install()
//	defer restore()
//	...
//	tt.AssertSpanExists(t, "analysis.Analyze")
package telemetry
