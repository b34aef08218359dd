// Package otel provides OpenTelemetry instruments for the sync client.
// Provider setup is a stub: the API-level instruments below are no-ops until
// an SDK provider is installed by the embedding application.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Debug("otel stub: InitTracer called", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
