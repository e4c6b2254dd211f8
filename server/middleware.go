package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jonwraymond/ledgerops/auth"
	"github.com/jonwraymond/ledgerops/observe"
	"github.com/jonwraymond/ledgerops/resilience"
)

// admit holds each request at the admission gate under its partition.
// A full queue answers 429 with Retry-After; a queued request that waits
// too long answers 503.
func (s *Server) admit(next http.Handler) http.Handler {
	if s.gate == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		partition := auth.PartitionFromContext(ctx)

		d, err := s.gate.Acquire(ctx, partition)
		s.metrics.RecordAdmission(ctx, d.Label())
		switch {
		case err == nil:
			next.ServeHTTP(w, r)

		case errors.Is(err, resilience.ErrAdmissionRejected):
			w.Header().Set("Retry-After", retryAfterSeconds(d.RetryAfter))
			writeJSON(w, http.StatusTooManyRequests, failure("too many requests", err))

		case errors.Is(err, resilience.ErrAdmissionTimeout):
			writeJSON(w, http.StatusServiceUnavailable, failure("request timed out in admission queue", err))

		default:
			s.logger.Debug(ctx, "request cancelled while queued",
				observe.Field{Key: "partition", Value: partition},
				observe.Field{Key: "waited_ms", Value: d.Waited.Milliseconds()},
			)
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
}

// retryAfterSeconds rounds d up to whole seconds, minimum one.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	return strconv.Itoa(max(secs, 1))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// logRequests logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		fields := []observe.Field{
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: status},
			{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
			{Key: "partition", Value: auth.PartitionFromContext(r.Context())},
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn(r.Context(), "request completed", fields...)
			return
		}
		s.logger.Info(r.Context(), "request completed", fields...)
	})
}
