package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "concierge"

// Metrics holds the pipeline's metric instruments.
type Metrics struct {
	TurnsStarted   metric.Int64Counter
	TurnsCompleted metric.Int64Counter
	TurnsEscalated metric.Int64Counter
	TurnsDegraded  metric.Int64Counter
	DraftsRejected metric.Int64Counter
	PoolWaits      metric.Int64Counter
	TurnDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsStarted, err = meter.Int64Counter("concierge.turns.started",
		metric.WithDescription("Number of turns started"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("concierge.turns.completed",
		metric.WithDescription("Number of turns completed with an approved response"))
	if err != nil {
		return nil, err
	}

	m.TurnsEscalated, err = meter.Int64Counter("concierge.turns.escalated",
		metric.WithDescription("Number of turns handed off to a human queue"))
	if err != nil {
		return nil, err
	}

	m.TurnsDegraded, err = meter.Int64Counter("concierge.turns.degraded",
		metric.WithDescription("Number of turns answered with degraded context or drafting"))
	if err != nil {
		return nil, err
	}

	m.DraftsRejected, err = meter.Int64Counter("concierge.drafts.rejected",
		metric.WithDescription("Number of drafts rejected by validation"))
	if err != nil {
		return nil, err
	}

	m.PoolWaits, err = meter.Int64Counter("concierge.pool.exhausted",
		metric.WithDescription("Number of acquisitions that failed on pool exhaustion"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("concierge.turn.duration_seconds",
		metric.WithDescription("End-to-end turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
