package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records service metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records an operation with duration and error status.
	RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordCache records one cache-aside lookup outcome for a key family.
	// result is one of hit, miss, read_error, corrupt, encode_error, write_error.
	RecordCache(ctx context.Context, family, result string)

	// RecordRetry records a retry scheduled after a failed attempt.
	RecordRetry(ctx context.Context, op string, attempt int)

	// RecordAdmission records an admission decision.
	RecordAdmission(ctx context.Context, outcome string)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	cacheCount   metric.Int64Counter
	retryCount   metric.Int64Counter
	admitCount   metric.Int64Counter
}

// NewMetrics creates a Metrics instance over meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"ledger.op.total",
		metric.WithDescription("Total number of operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"ledger.op.errors",
		metric.WithDescription("Total number of failed operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"ledger.op.duration_ms",
		metric.WithDescription("Operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheCount, err := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache-aside lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"retry.attempts",
		metric.WithDescription("Retries scheduled after a failed attempt"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	admitCount, err := meter.Int64Counter(
		"admission.decisions",
		metric.WithDescription("Admission gate decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		cacheCount:   cacheCount,
		retryCount:   retryCount,
		admitCount:   admitCount,
	}, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("op.id", meta.OpID()),
		attribute.String("op.name", meta.Name),
	}
	if meta.Component != "" {
		attrs = append(attrs, attribute.String("op.component", meta.Component))
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCache(ctx context.Context, family, result string) {
	m.cacheCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.family", family),
		attribute.String("cache.result", result),
	))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, op string, attempt int) {
	m.retryCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op.id", op),
		attribute.Int("retry.attempt", attempt),
	))
}

func (m *metricsImpl) RecordAdmission(ctx context.Context, outcome string) {
	m.admitCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("admission.outcome", outcome),
	))
}

// NoopMetrics returns a Metrics that records nothing.
func NoopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(context.Context, OpMeta, time.Duration, error) {}
func (noopMetrics) RecordCache(context.Context, string, string)                   {}
func (noopMetrics) RecordRetry(context.Context, string, int)                      {}
func (noopMetrics) RecordAdmission(context.Context, string)                       {}
