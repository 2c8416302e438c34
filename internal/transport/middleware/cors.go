package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the comma separated origins in allowed. "*" allows any origin.
// An empty list disables cross-origin access.
func CORS(allowed string) func(http.Handler) http.Handler {
	origins := map[string]bool{}
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (origins["*"] || origins[origin]) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+TraceHeader)
				h.Set("Access-Control-Expose-Headers", TraceHeader+", X-RateLimit-Limit, X-RateLimit-Remaining")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
