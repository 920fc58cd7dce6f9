// Package telemetry wires OpenTelemetry tracing and metrics export for
// ragstore.
//
// Vector store and embedding code instruments itself through the otel
// globals; New installs OTLP providers behind those globals when export is
// enabled:
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc          # or http/protobuf
//	  insecure: true          # loopback endpoints only
//	  sample_rate: 0.25
//
// A collector that cannot be reached marks the instance degraded and the
// process keeps running with no-op providers.
//
// Tests use TestTelemetry, which records in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	// ... exercise code ...
//	tt.AssertSpanExists(t, "rag.Search")
package telemetry
