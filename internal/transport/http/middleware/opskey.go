package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireOpsKey admits requests whose X-Ops-Key header equals key.
func RequireOpsKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("X-Ops-Key"))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid ops key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
