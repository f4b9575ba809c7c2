package mw

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/TwigBush/methodsec/internal/trace"
)

// Trace tags the request with a trace id: the caller's, else chi's request
// id, else a fresh one. The id is echoed on the response.
func Trace() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(trace.Header)
			if id == "" {
				id = middleware.GetReqID(r.Context())
			}
			if id == "" {
				id = trace.NewID()
			}
			w.Header().Set(trace.Header, id)
			next.ServeHTTP(w, r.WithContext(trace.With(r.Context(), id)))
		})
	}
}
