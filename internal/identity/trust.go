package identity

// TrustResolver answers the "what kind of identity is this" questions used by
// authorization checks.
type TrustResolver struct {
	// AnonymousIsAuthenticated lets anonymous identities pass
	// authentication-gated checks. Off by default.
	AnonymousIsAuthenticated bool
}

func (TrustResolver) IsAnonymous(id *Identity) bool { return id.Anonymous() }

func (t TrustResolver) IsAuthenticated(id *Identity) bool {
	if !id.Authenticated() {
		return false
	}
	if id.Anonymous() {
		return t.AnonymousIsAuthenticated
	}
	return true
}

// IsFullyAuthenticated is true for authenticated, non-anonymous identities,
// whatever AnonymousIsAuthenticated says.
func (TrustResolver) IsFullyAuthenticated(id *Identity) bool {
	return id.Authenticated() && !id.Anonymous()
}
