package middleware

import (
	"crypto/subtle"
	"net/http"
)

const InternalSecretHeader = "X-Internal-Secret"

// RequireInternalSecret guards agent server → hub ingestion routes. An empty
// configured secret rejects every call.
func RequireInternalSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(InternalSecretHeader)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"code":"E_UNAUTHORIZED","message":"invalid internal secret"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
