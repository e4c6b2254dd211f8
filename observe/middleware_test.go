package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type middlewareFixture struct {
	mw     *Middleware
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	logs   *bytes.Buffer
}

func newMiddlewareFixture(t *testing.T, level string) middlewareFixture {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	metrics, err := newMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	return middlewareFixture{
		mw:     NewMiddleware(NewTracer(tp.Tracer("test")), metrics, NewLoggerWithWriter(level, &logs)),
		spans:  spans,
		reader: reader,
		logs:   &logs,
	}
}

func TestMiddleware_SuccessPath(t *testing.T) {
	f := newMiddlewareFixture(t, "debug")
	meta := OpMeta{Component: "ledger", Name: "get_all"}

	var sawSpan bool
	err := f.mw.Run(context.Background(), meta, func(ctx context.Context) error {
		sawSpan = trace.SpanContextFromContext(ctx).IsValid()
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sawSpan {
		t.Error("operation context carries no span")
	}

	spans := f.spans.Ended()
	if len(spans) != 1 || spans[0].Name() != "ledger.get_all" {
		t.Fatalf("spans = %v, want one ledger.get_all span", spans)
	}
	rm := collect(t, f.reader)
	if got := counterValue(t, rm, "ledger.op.total", attribute.String("op.id", "ledger.get_all")); got != 1 {
		t.Errorf("ledger.op.total = %d, want 1", got)
	}
	if !strings.Contains(f.logs.String(), "operation completed") {
		t.Errorf("debug completion log missing: %s", f.logs.String())
	}
}

func TestMiddleware_ErrorPropagatesUnchanged(t *testing.T) {
	f := newMiddlewareFixture(t, "info")
	want := errors.New("store unavailable")

	err := f.mw.Run(context.Background(), OpMeta{Component: "ledger", Name: "create"}, func(context.Context) error {
		return want
	})
	if err != want {
		t.Errorf("Run() error = %v, want %v unchanged", err, want)
	}

	if s := f.spans.Ended()[0]; s.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", s.Status().Code)
	}
	if got := counterValue(t, collect(t, f.reader), "ledger.op.errors"); got != 1 {
		t.Errorf("ledger.op.errors = %d, want 1", got)
	}
	logs := f.logs.String()
	if !strings.Contains(logs, "operation failed") || !strings.Contains(logs, "store unavailable") {
		t.Errorf("error log missing: %s", logs)
	}
}

func TestMiddleware_Wrap(t *testing.T) {
	f := newMiddlewareFixture(t, "error")
	calls := 0
	op := f.mw.Wrap(OpMeta{Name: "balances"}, func(context.Context) error {
		calls++
		time.Sleep(time.Millisecond)
		return nil
	})

	for range 3 {
		_ = op(context.Background())
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(f.spans.Ended()) != 3 {
		t.Errorf("spans = %d, want 3", len(f.spans.Ended()))
	}
	if f.logs.Len() != 0 {
		t.Errorf("error-level logger wrote success logs: %s", f.logs.String())
	}
}

func TestNewMiddleware_NilComponents(t *testing.T) {
	mw := NewMiddleware(nil, nil, nil)
	if mw.Metrics() == nil || mw.Logger() == nil {
		t.Fatal("nil components not defaulted")
	}
	if err := mw.Run(context.Background(), OpMeta{Name: "noop"}, func(context.Context) error { return nil }); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
