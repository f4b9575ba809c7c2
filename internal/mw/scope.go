package mw

import (
	"net/http"

	"github.com/TwigBush/methodsec/internal/identity"
)

// Scope gives each request its own identity holder and, once the request is
// done, empties whatever holder the strategy resolved for it. For a
// process-wide strategy that is the shared slot, so a later request never
// starts with this caller's identity.
func Scope(holders identity.Strategy) func(http.Handler) http.Handler {
	if holders == nil {
		holders = identity.ContextStrategy{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := identity.WithHolder(r.Context(), identity.NewHolder())
			defer holders.HolderFor(ctx).Clear()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
