package provider

import (
	"context"
	"time"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/observability"
)

// WithMetrics records the duration and outcome of every Execute call.
func WithMetrics[I, O any](metrics *observability.Metrics) Middleware[I, O] {
	if metrics == nil {
		metrics = observability.NoopMetrics()
	}
	return func(inner RequestResponse[I, O]) RequestResponse[I, O] {
		return &metricsRR[I, O]{inner: inner, metrics: metrics}
	}
}

type metricsRR[I, O any] struct {
	inner   RequestResponse[I, O]
	metrics *observability.Metrics
}

func (m *metricsRR[I, O]) Name() string                         { return m.inner.Name() }
func (m *metricsRR[I, O]) IsAvailable(ctx context.Context) bool { return m.inner.IsAvailable(ctx) }

func (m *metricsRR[I, O]) Execute(ctx context.Context, input I) (O, error) {
	start := time.Now()
	out, err := m.inner.Execute(ctx, input)
	outcome := "ok"
	if err != nil {
		outcome = string(errors.CodeOf(err))
	}
	m.metrics.RecordProviderCall(ctx, m.inner.Name(), outcome, time.Since(start))
	return out, err
}
