package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/EdissonBeltGom/product/observe"
)

// clientRateLimit enforces a per-client request budget. Each distinct client
// address gets its own limiter in the registry under an "ip-" prefixed name,
// so the monitoring endpoints show it alongside the service resources and the
// idle sweep reclaims it.
func (s *Server) clientRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := "ip-" + clientAddr(r)
		limiter, err := s.registry.RateLimiter(name, s.config.ClientRateLimit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr identifies the caller: the first X-Forwarded-For entry when a
// proxy set one, otherwise the connection's remote host.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// withObservability opens a span per request and logs its outcome.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.logger.Info(ctx, "request",
			observe.F("method", r.Method),
			observe.F("path", r.URL.Path),
			observe.F("status", rec.status),
			observe.F("durationMs", time.Since(start).Milliseconds()),
		)
	})
}
