package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SweepMetrics counts the daily sweep's state transitions.
type SweepMetrics struct {
	expired   metric.Int64Counter
	reminders metric.Int64Counter
	abandoned metric.Int64Counter
}

// NewSweepMetrics registers the sweep counters on the global meter.
func NewSweepMetrics() (*SweepMetrics, error) {
	meter := otel.Meter("restrict-content/sweep")

	expired, err := meter.Int64Counter("memberships_expired_total",
		metric.WithDescription("Memberships transitioned to expired by the sweep"))
	if err != nil {
		return nil, err
	}
	reminders, err := meter.Int64Counter("reminders_dispatched_total",
		metric.WithDescription("Renewal and expiration reminders dispatched"))
	if err != nil {
		return nil, err
	}
	abandoned, err := meter.Int64Counter("payments_abandoned_total",
		metric.WithDescription("Stale pending payments flipped to abandoned"))
	if err != nil {
		return nil, err
	}

	return &SweepMetrics{expired: expired, reminders: reminders, abandoned: abandoned}, nil
}

func (m *SweepMetrics) AddExpired(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.expired.Add(ctx, n)
}

func (m *SweepMetrics) AddReminders(ctx context.Context, n int64, kind string) {
	if m == nil {
		return
	}
	m.reminders.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *SweepMetrics) AddAbandoned(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.abandoned.Add(ctx, n)
}
