package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codepulse"

// Metrics holds all CodePulse metric instruments.
type Metrics struct {
	SnapshotsIngested  metric.Int64Counter
	SnapshotsDiscarded metric.Int64Counter
	Notifications      metric.Int64Counter
	RefreshAttempts    metric.Int64Counter
	SessionDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SnapshotsIngested, err = meter.Int64Counter("codepulse.snapshots.ingested",
		metric.WithDescription("Snapshots accepted by the coordinator"))
	if err != nil {
		return nil, err
	}

	m.SnapshotsDiscarded, err = meter.Int64Counter("codepulse.snapshots.discarded",
		metric.WithDescription("Snapshots dropped after terminal finalization"))
	if err != nil {
		return nil, err
	}

	m.Notifications, err = meter.Int64Counter("codepulse.notifications",
		metric.WithDescription("Consumer notifications delivered"))
	if err != nil {
		return nil, err
	}

	m.RefreshAttempts, err = meter.Int64Counter("codepulse.auth.refreshes",
		metric.WithDescription("Credential refresh calls issued"))
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("codepulse.session.duration_seconds",
		metric.WithDescription("Session duration from activation to terminal"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
