package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Middleware wraps an [http.Handler] with the serving-side observability
// set: incoming W3C Trace Context continues an existing trace (or a new
// one starts), the request runs inside a server span, the trace ID is
// mirrored to the X-Correlation-ID response header, and completion is
// recorded to [Metrics.HTTPRequestDuration] and the structured log.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	carrier := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := carrier.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			correlationID := CorrelationID(ctx)
			if correlationID != "" {
				w.Header().Set("X-Correlation-ID", correlationID)
			}
			carrier.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			written := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(written, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", r.URL.Path),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(written.status))

			slog.LogAttrs(ctx, slog.LevelInfo, "request completed",
				slog.String("trace_id", correlationID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", written.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// statusWriter remembers the status code the handler wrote, defaulting to
// 200 for handlers that never call WriteHeader.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
