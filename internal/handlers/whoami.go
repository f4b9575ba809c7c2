package handlers

import (
	"net/http"

	"github.com/TwigBush/methodsec/internal/httpx"
	"github.com/TwigBush/methodsec/internal/identity"
)

type whoami struct {
	Principal     string   `json:"principal"`
	Authorities   []string `json:"authorities"`
	Authenticated bool     `json:"authenticated"`
	Anonymous     bool     `json:"anonymous"`
}

// Whoami reports the identity the pipeline would see for this request.
func Whoami(holders identity.Strategy, trust identity.TrustResolver) http.HandlerFunc {
	if holders == nil {
		holders = identity.ContextStrategy{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := identity.Current(r.Context(), holders)
		if id == nil {
			httpx.WriteError(w, http.StatusUnauthorized, "no_identity")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, whoami{
			Principal:     id.Name(),
			Authorities:   id.AuthorityStrings(),
			Authenticated: trust.IsAuthenticated(id),
			Anonymous:     trust.IsAnonymous(id),
		})
	}
}
