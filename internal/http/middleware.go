package http

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"t3-curator/internal/auth"
)

// RequireAPIToken guards the admin surface with the shared API token.
// Comparison runs over sha256 digests so timing never leaks token bytes.
func RequireAPIToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := auth.HashToken(os.Getenv("API_TOKEN"))
		got := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(got, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(auth.HashToken(tok)), []byte(want)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))

			return
		}
		next.ServeHTTP(w, r)
	})
}
