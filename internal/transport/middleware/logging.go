package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/table-reservation/pkg/logger"
	"github.com/frahmantamala/table-reservation/pkg/metrics"
)

// sensitiveFields are field names that should be filtered from logs
var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"api_key",
	"callback-key",
	"callback_key",
	"session",
	"credential",
	"cookie",
}

// maxLoggedBody caps how much of a request body is buffered for logging.
const maxLoggedBody = 4 << 10

// LoggingMiddleware logs each request and its outcome and feeds the HTTP
// metrics. m may be nil.
func LoggingMiddleware(base *slog.Logger, m *metrics.HTTPMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lg := requestLogger(r, base)

			logRequest(lg, r)

			ww := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(ww, r)

			status := ww.status()
			route := routePattern(r)
			m.Observe(r.Method, route, status, time.Since(start))
			logResponse(lg, r, ww, route, time.Since(start))
		})
	}
}

func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	lg := logger.From(r.Context())
	if lg == nil {
		lg = fallback
	}
	return lg
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture the status and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) status() int {
	if rw.statusCode == 0 {
		return http.StatusOK
	}
	return rw.statusCode
}

// logRequest logs the incoming HTTP request with sensitive data filtered
func logRequest(lg *slog.Logger, r *http.Request) {
	var body string
	if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		raw, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
		if len(raw) > maxLoggedBody {
			body = "[TRUNCATED]"
		} else {
			body = filterSensitiveBody(raw)
		}
	}

	lg.Debug("incoming request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", r.URL.RawQuery,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterSensitiveHeaders(r.Header),
		"body", body,
	)
}

func logResponse(lg *slog.Logger, r *http.Request, rw *responseWriter, route string, duration time.Duration) {
	status := rw.status()

	level := slog.LevelInfo
	if status >= 400 && status < 500 {
		level = slog.LevelWarn
	} else if status >= 500 {
		level = slog.LevelError
	}

	attrs := []any{
		"method", r.Method,
		"route", route,
		"status_code", status,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.size,
	}
	lg.Log(r.Context(), level, "response", attrs...)
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// filterSensitiveHeaders removes or masks sensitive headers
func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			filtered[name] = "[FILTERED]"
			continue
		}
		filtered[name] = strings.Join(values, ", ")
	}
	return filtered
}

// filterSensitiveBody masks sensitive fields in a JSON body
func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return "[NON-JSON BODY]"
	}

	filtered, err := json.Marshal(filterSensitiveJSON(data))
	if err != nil {
		return "[ERROR - Failed to marshal filtered JSON]"
	}
	return string(filtered)
}

// filterSensitiveJSON recursively filters sensitive fields from JSON data
func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		filtered := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				filtered[key] = "[FILTERED]"
			} else {
				filtered[key] = filterSensitiveJSON(value)
			}
		}
		return filtered
	case []interface{}:
		filtered := make([]interface{}, len(v))
		for i, item := range v {
			filtered[i] = filterSensitiveJSON(item)
		}
		return filtered
	default:
		return v
	}
}
