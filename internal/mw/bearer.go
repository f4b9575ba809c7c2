package mw

import (
	"log/slog"
	"net/http"

	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/identity"
	"github.com/TwigBush/methodsec/internal/token"
	"github.com/TwigBush/methodsec/internal/trace"
)

// Bearer authenticates "Authorization: Bearer" tokens into the request's
// holder. Requests without the header pass through untouched; a bad token
// is answered with 401.
func Bearer(v *token.Verifier, holders identity.Strategy) func(http.Handler) http.Handler {
	if holders == nil {
		holders = identity.ContextStrategy{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := httpx.ExtractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			id, err := v.Verify(raw)
			if err != nil {
				slog.Info("bearer_reject", "trace", trace.From(r.Context()), "err", err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="methodsec", error="invalid_token"`)
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			holders.HolderFor(r.Context()).Set(id)
			next.ServeHTTP(w, r)
		})
	}
}
