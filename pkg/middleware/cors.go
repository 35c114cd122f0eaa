package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists what browsers on other origins may do. "*" in Origins
// allows any origin.
type CORSConfig struct {
	Origins []string
	Methods []string
	Headers []string
	MaxAge  time.Duration
}

// NewCORSConfig allows origins to query the API and to call the admin
// routes with an API key.
func NewCORSConfig(origins []string) CORSConfig {
	return CORSConfig{
		Origins: origins,
		Methods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		Headers: []string{"Content-Type", "Authorization", "X-API-Key", RequestIDHeader},
		MaxAge:  24 * time.Hour,
	}
}

// CORS answers preflights from allowed origins with 204 and decorates
// their other requests. Requests from unlisted origins pass through
// without CORS headers, leaving the browser to block them. No origins
// disables the middleware.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(cfg.Origins) == 0 {
			return next
		}
		anyOrigin := slices.Contains(cfg.Origins, "*")
		methods := strings.Join(cfg.Methods, ", ")
		headers := strings.Join(cfg.Headers, ", ")
		maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !(anyOrigin || slices.Contains(cfg.Origins, origin)) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			if anyOrigin {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
