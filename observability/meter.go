package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/mediascribe/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the service's instruments.
type Metrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram

	jobsSubmitted metric.Int64Counter
	jobsRejected  metric.Int64Counter
	jobsFinished  metric.Int64Counter
	stageDuration metric.Float64Histogram
	fetchBytes    metric.Int64Histogram
	retries       metric.Int64Counter

	cacheLookups      metric.Int64Counter
	cacheComputations metric.Int64Counter

	providerCalls    metric.Int64Counter
	providerDuration metric.Float64Histogram

	meter metric.Meter
}

// NewMetrics creates instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.requestTotal, "http.server.requests", "HTTP requests by route and status"},
		{&m.jobsSubmitted, "jobs.submitted", "Jobs accepted for processing"},
		{&m.jobsRejected, "jobs.rejected", "Submissions rejected at admission"},
		{&m.jobsFinished, "jobs.finished", "Jobs that reached a terminal state"},
		{&m.retries, "pipeline.retries", "Internal retries by stage and error code"},
		{&m.cacheLookups, "cache.lookups", "Transcript cache lookups by result"},
		{&m.cacheComputations, "cache.computations", "Transcript computations started by the cache"},
		{&m.providerCalls, "provider.calls", "Backend provider calls by outcome"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	if m.requestDuration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating http.server.duration histogram: %w", err)
	}
	if m.stageDuration, err = meter.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Duration of pipeline stages"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.duration histogram: %w", err)
	}
	if m.providerDuration, err = meter.Float64Histogram("provider.call.duration",
		metric.WithDescription("Duration of backend provider calls"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating provider.call.duration histogram: %w", err)
	}
	if m.fetchBytes, err = meter.Int64Histogram("fetch.bytes",
		metric.WithDescription("Size of fetched media"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("creating fetch.bytes histogram: %w", err)
	}
	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

// ObserveGauges registers callbacks reporting queue depth and slot usage.
func (m *Metrics) ObserveGauges(queueDepth, slotsInUse func() int) error {
	depth, err := m.meter.Int64ObservableGauge("scheduler.queue.depth",
		metric.WithDescription("Jobs waiting for a worker"))
	if err != nil {
		return fmt.Errorf("creating scheduler.queue.depth gauge: %w", err)
	}
	slots, err := m.meter.Int64ObservableGauge("scheduler.slots.in_use",
		metric.WithDescription("Worker slots currently held"))
	if err != nil {
		return fmt.Errorf("creating scheduler.slots.in_use gauge: %w", err)
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, int64(queueDepth()))
		o.ObserveInt64(slots, int64(slotsInUse()))
		return nil
	}, depth, slots)
	return err
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.requestTotal.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordSubmitted counts an accepted job.
func (m *Metrics) RecordSubmitted(ctx context.Context, sourceKind string) {
	m.jobsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("source_kind", sourceKind)))
}

// RecordRejected counts a submission refused with code.
func (m *Metrics) RecordRejected(ctx context.Context, code string) {
	m.jobsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("error_code", code)))
}

// RecordFinished counts a job reaching state; code is empty on success.
func (m *Metrics) RecordFinished(ctx context.Context, state, code string) {
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("error_code", code),
	))
}

// RecordStage records a stage duration with its outcome ("ok" or an error code).
func (m *Metrics) RecordStage(ctx context.Context, stage, outcome string, d time.Duration) {
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

// RecordFetchBytes records the size of a fetched file.
func (m *Metrics) RecordFetchBytes(ctx context.Context, n int64) {
	m.fetchBytes.Record(ctx, n)
}

// RecordRetry counts an internal retry.
func (m *Metrics) RecordRetry(ctx context.Context, stage, code string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("error_code", code),
	))
}

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheShared = "shared"
)

// RecordCacheLookup counts a cache lookup by result.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCacheComputation counts a computation and its outcome.
func (m *Metrics) RecordCacheComputation(ctx context.Context, outcome string) {
	m.cacheComputations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProviderCall records one backend call; outcome is "ok" or an error code.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.providerCalls.Add(ctx, 1, attrs)
	m.providerDuration.Record(ctx, d.Seconds(), attrs)
}
