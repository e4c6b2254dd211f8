package observe

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func BenchmarkLogger_Info(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "benchmark message", Field{Key: "iteration", Value: i})
	}
}

// BenchmarkLogger_WithOp_ThenLog measures the per-operation logger pattern
// used by the middleware.
func BenchmarkLogger_WithOp_ThenLog(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard)
	ctx := context.Background()
	meta := OpMeta{Component: "ledger", Name: "get_all"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithOp(meta).Info(ctx, "op", Field{Key: "iteration", Value: i})
	}
}

func BenchmarkLogger_LevelFiltering(b *testing.B) {
	logger := NewLoggerWithWriter("error", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "filtered debug")
		logger.Info(ctx, "filtered info")
	}
}

func BenchmarkOpMeta_SpanName(b *testing.B) {
	meta := OpMeta{Component: "ledger", Name: "balances"}
	for i := 0; i < b.N; i++ {
		_ = meta.SpanName()
	}
}

func BenchmarkMetrics_RecordCache(b *testing.B) {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := newMetrics(mp.Meter("bench"))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordCache(ctx, "lancamentos", "hit")
	}
}

func BenchmarkMetrics_RecordOperation_WithError(b *testing.B) {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := newMetrics(mp.Meter("bench"))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	meta := OpMeta{Component: "ledger", Name: "create"}
	opErr := errors.New("store down")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordOperation(ctx, meta, 5*time.Millisecond, opErr)
	}
}

func BenchmarkMiddleware_Run(b *testing.B) {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := newMetrics(mp.Meter("bench"))
	if err != nil {
		b.Fatal(err)
	}
	mw := NewMiddleware(NewTracer(tp.Tracer("bench")), m, NewLoggerWithWriter("info", io.Discard))
	ctx := context.Background()
	meta := OpMeta{Component: "ledger", Name: "get_all"}
	op := func(context.Context) error { return nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mw.Run(ctx, meta, op)
	}
}

func BenchmarkMiddleware_Concurrent(b *testing.B) {
	mw := NewMiddleware(nil, nil, NewLoggerWithWriter("info", io.Discard))
	meta := OpMeta{Component: "ledger", Name: "get_by_id"}
	op := func(context.Context) error { return nil }

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_ = mw.Run(ctx, meta, op)
		}
	})
}

func BenchmarkConfig_Validate(b *testing.B) {
	cfg := Config{
		ServiceName: "ledgerd",
		Tracing:     TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 0.1},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
		Logging:     LoggingConfig{Enabled: true, Level: "info"},
	}
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}
