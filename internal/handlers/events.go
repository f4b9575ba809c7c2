package handlers

import (
	"context"
	"net/http"

	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/identity"
	"github.com/TwigBush/methodsec/internal/method"
)

// Events serves the live decision stream once the caller passes the
// subscribe rule.
func Events(p *method.Pipeline, name string, stream http.Handler, holders identity.Strategy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := p.Invoke(r.Context(), name, nil, func(ctx context.Context, inv *method.Invocation) (any, error) {
			stream.ServeHTTP(w, r.WithContext(ctx))
			return nil, nil
		})
		if err != nil {
			httpx.WriteCallError(w, err, identity.Current(r.Context(), holders), nil)
		}
	}
}
