package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
)

type keyInfoKey struct{}

// Require admits only requests bearing a valid key, read from
// "Authorization: Bearer <key>" or X-API-Key. Bad keys get 401 with a
// WWW-Authenticate challenge; a failing key store gets 500.
func Require(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context())
			key := presentedKey(r)
			if key == "" {
				deny(w, "missing api key")
				return
			}
			info, err := v.Validate(r.Context(), key)
			if err != nil {
				if errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrExpiredKey) {
					log.Warn("rejected api key", "path", r.URL.Path, "reason", err)
					deny(w, err.Error())
					return
				}
				log.Error("api key lookup failed", "path", r.URL.Path, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}
			log.Info("admin request authorised", "path", r.URL.Path, "key", info.Name)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyInfoKey{}, info)))
		})
	}
}

// FromContext returns the key that authorised the request, or nil.
func FromContext(ctx context.Context) *KeyInfo {
	info, _ := ctx.Value(keyInfoKey{}).(*KeyInfo)
	return info
}

func presentedKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func deny(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="hybrid-search"`)
	writeJSONError(w, http.StatusUnauthorized, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
