// Package observability provides logging, metrics, and tracing for the
// booking proxy.
//
// Logging is structured (zap) behind a small Logger interface so that
// packages can be tested with NopLogger. Metrics are Prometheus
// collectors on a private registry exposed on the admin listener.
// Tracing is OpenTelemetry with an optional OTLP/gRPC exporter; when
// disabled, spans are no-ops.
package observability
