// Package observe provides observability primitives for the ledger service.
//
// It is a pure instrumentation library: structured logging on zap, OpenTelemetry
// tracing and metrics, and a middleware that instruments an operation with all
// three. Exporters are selected by name through the exporters subpackage.
package observe
