package anonymous

import (
	"net/http"

	"github.com/TwigBush/methodsec/internal/identity"
)

// Filter makes sure every request reaching next has an identity. It never
// stops the chain.
func (p *Provider) Filter(s identity.Strategy) func(http.Handler) http.Handler {
	if s == nil {
		s = identity.ContextStrategy{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.EnsureIdentity(s.HolderFor(r.Context()))
			next.ServeHTTP(w, r)
		})
	}
}
