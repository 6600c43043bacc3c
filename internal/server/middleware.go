package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortexdb/cortexdb/internal/auth"
	"github.com/cortexdb/cortexdb/internal/observability"
)

// openPath reports whether a path is served without authentication. Probes
// and scrapes must work before any API key exists.
func openPath(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}

// RequestIDMiddleware assigns each request an id, honouring one supplied by
// the caller, and echoes it back in the response headers.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := observability.AddRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware opens a span per request and logs it once served.
func LoggingMiddleware(logger *observability.Logger, tracer *observability.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.TraceHTTPRequest(r.Context(), r.Method, r.URL.Path)
			defer span.End()

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			logger.Debug(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr)
		})
	}
}

// MetricsMiddleware records request counts and latency, labelled by the
// matched route pattern so path parameters do not explode the cardinality.
func MetricsMiddleware(metrics *observability.Metrics, mux *http.ServeMux) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			_, route := mux.Handler(r)
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapped.status), time.Since(start).Seconds())
		})
	}
}

// AuthMiddleware authenticates every request outside the open paths and
// attaches the resolved key to the context.
func AuthMiddleware(service Authenticator, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			rawKey := auth.FromHeader(r.Header.Get("Authorization"))
			key, err := service.Authenticate(r.Context(), rawKey)
			if err != nil {
				logger.Debug(r.Context(), "authentication failed",
					"path", r.URL.Path, "error", err)
				writeError(w, statusFor(err), err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), key)))
		})
	}
}

// responseWriter captures the status code for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
