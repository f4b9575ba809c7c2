package mw

import "net/http"

// NoStore marks responses as uncacheable. Protected responses differ per
// caller, so no shared cache may keep them.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, private, max-age=0")
		w.Header().Set("Vary", "Authorization")
		next.ServeHTTP(w, r)
	})
}
