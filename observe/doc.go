// Package observe wires the service's telemetry: an OpenTelemetry tracer and
// meter behind selectable exporters, and a structured JSON logger with
// secret redaction. Construct an Observer once at startup and pass its
// pieces down; Shutdown flushes the providers.
package observe
