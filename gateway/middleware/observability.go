package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"otcswap/observability"
	telemetry "otcswap/observability/otel"
)

// RequestObserver is the subset of the API metrics registry used per request.
type RequestObserver interface {
	Observe(route, method string, status int, duration time.Duration)
}

type Observability struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  RequestObserver
	duration metric.Float64Histogram
}

func NewObservability(service string, metrics RequestObserver, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if service == "" {
		service = "otcd"
	}
	if metrics == nil {
		metrics = observability.ModuleMetrics()
	}
	duration, err := telemetry.Meter(service).Float64Histogram(
		"otc.http.server.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Latency of handled API requests"),
	)
	if err != nil {
		logger.Warn("request histogram unavailable", "error", err)
		duration = nil
	}
	return &Observability{
		logger:   logger,
		tracer:   telemetry.Tracer(service),
		metrics:  metrics,
		duration: duration,
	}
}

// Middleware wraps each request in a span and records latency under the
// matched chi route pattern.
func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := o.tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.status),
		)
		if recorder.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
		}
		elapsed := time.Since(start)
		o.metrics.Observe(route, r.Method, recorder.status, elapsed)
		if o.duration != nil {
			o.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("http.route", route),
				attribute.String("http.method", r.Method),
				attribute.Int("http.status_code", recorder.status),
			))
		}
		o.logger.Info("request served",
			"method", r.Method,
			"path", route,
			"status", recorder.status,
			"duration", elapsed.String(),
			"requestId", chimw.GetReqID(r.Context()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
