package identity

import "strings"

// Authority is a single granted permission or role, e.g. "ROLE_ADMIN".
type Authority string

func (a Authority) String() string { return string(a) }

// Identity is the principal and granted authorities for one call.
// It is immutable once constructed.
type Identity struct {
	principal     any
	authorities   []Authority
	authenticated bool
	anonymous     bool
	keyHash       string
	details       map[string]any
}

// NewAuthenticated returns an identity already marked authenticated, the way
// an upstream authentication step would produce it.
func NewAuthenticated(principal any, authorities ...string) *Identity {
	return &Identity{
		principal:     principal,
		authorities:   AuthorityList(authorities...),
		authenticated: true,
	}
}

// NewUnauthenticated returns an identity that carries authorities but was
// never authenticated.
func NewUnauthenticated(principal any, authorities ...string) *Identity {
	return &Identity{
		principal:   principal,
		authorities: AuthorityList(authorities...),
	}
}

// NewAnonymous builds the placeholder identity handed out when no principal
// was established. keyHash ties it to the issuing provider.
func NewAnonymous(keyHash string, principal any, authorities []Authority) *Identity {
	return &Identity{
		principal:     principal,
		authorities:   dedupe(authorities),
		authenticated: true,
		anonymous:     true,
		keyHash:       keyHash,
	}
}

// WithDetails returns a copy of the identity carrying extra details such as
// token claims. The receiver is left untouched.
func (i *Identity) WithDetails(details map[string]any) *Identity {
	cp := *i
	cp.authorities = append([]Authority(nil), i.authorities...)
	cp.details = make(map[string]any, len(details))
	for k, v := range details {
		cp.details[k] = v
	}
	return &cp
}

func (i *Identity) Principal() any { return i.principal }

// Name renders the principal as a string for logs and events.
func (i *Identity) Name() string {
	if i == nil || i.principal == nil {
		return ""
	}
	switch p := i.principal.(type) {
	case string:
		return p
	case interface{ Name() string }:
		return p.Name()
	case interface{ String() string }:
		return p.String()
	}
	return ""
}

// Authorities returns a copy of the granted authorities in grant order.
func (i *Identity) Authorities() []Authority {
	if i == nil {
		return nil
	}
	return append([]Authority(nil), i.authorities...)
}

func (i *Identity) AuthorityStrings() []string {
	if i == nil {
		return nil
	}
	out := make([]string, len(i.authorities))
	for n, a := range i.authorities {
		out[n] = string(a)
	}
	return out
}

func (i *Identity) HasAuthority(a string) bool {
	if i == nil {
		return false
	}
	for _, have := range i.authorities {
		if string(have) == a {
			return true
		}
	}
	return false
}

func (i *Identity) Authenticated() bool { return i != nil && i.authenticated }

func (i *Identity) Anonymous() bool { return i != nil && i.anonymous }

func (i *Identity) KeyHash() string {
	if i == nil {
		return ""
	}
	return i.keyHash
}

func (i *Identity) Details() map[string]any {
	if i == nil || i.details == nil {
		return nil
	}
	out := make(map[string]any, len(i.details))
	for k, v := range i.details {
		out[k] = v
	}
	return out
}

// AuthorityList turns role names into authorities, dropping blanks and
// duplicates.
func AuthorityList(names ...string) []Authority {
	out := make([]Authority, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, Authority(n))
	}
	return dedupe(out)
}

// AuthoritySet is the set view of a list of authorities.
func AuthoritySet(list []Authority) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, a := range list {
		set[string(a)] = struct{}{}
	}
	return set
}

func dedupe(list []Authority) []Authority {
	if list == nil {
		return nil
	}
	seen := make(map[Authority]struct{}, len(list))
	out := make([]Authority, 0, len(list))
	for _, a := range list {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
