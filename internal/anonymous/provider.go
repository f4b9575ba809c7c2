// Package anonymous hands out a placeholder identity to calls that arrive
// without one, so authorization always has an identity to look at.
package anonymous

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/identity"
)

const (
	DefaultPrincipal = "anonymousUser"
	DefaultAuthority = "ROLE_ANONYMOUS"
)

// Provider builds anonymous identities for one shared key.
type Provider struct {
	keyHash     string
	principal   any
	authorities []identity.Authority
}

// New returns a provider with the default principal and ROLE_ANONYMOUS.
func New(key string) (*Provider, error) {
	return NewWith(key, DefaultPrincipal, identity.AuthorityList(DefaultAuthority))
}

// NewWith returns a provider with an explicit principal and authority set.
// authorities may be empty but not nil.
func NewWith(key string, principal any, authorities []identity.Authority) (*Provider, error) {
	if key == "" {
		return nil, &authz.InvalidConfigurationError{Field: "key", Reason: "a key is required"}
	}
	if isBlank(principal) {
		return nil, &authz.InvalidConfigurationError{Field: "principal", Reason: "anonymous principal must be set"}
	}
	if authorities == nil {
		return nil, &authz.InvalidConfigurationError{Field: "authorities", Reason: "authorities must not be nil"}
	}
	return &Provider{
		keyHash:     HashKey(key),
		principal:   principal,
		authorities: append([]identity.Authority{}, authorities...),
	}, nil
}

// HashKey derives the value stamped on anonymous identities so forged ones
// can be told apart.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func (p *Provider) Principal() any { return p.principal }

func (p *Provider) Authorities() []identity.Authority {
	return append([]identity.Authority{}, p.authorities...)
}

// EnsureIdentity returns the identity already held, untouched, whether or not
// it is authenticated. An empty holder gets a fresh anonymous identity, and so
// does one holding an anonymous identity issued under another key.
func (p *Provider) EnsureIdentity(h identity.Holder) *identity.Identity {
	if id, ok := h.Current(); ok {
		if !id.Anonymous() || p.Verify(id) == nil {
			slog.Debug("anon_skip", "principal", id.Name())
			return id
		}
		slog.Warn("anon_forged", "principal", id.Name(), "authorities", id.AuthorityStrings())
	}
	id := identity.NewAnonymous(p.keyHash, p.principal, p.authorities)
	h.Set(id)
	slog.Debug("anon_set", "principal", id.Name())
	return id
}

// Verify rejects anonymous identities this provider did not issue.
func (p *Provider) Verify(id *identity.Identity) error {
	if id == nil || !id.Anonymous() {
		return fmt.Errorf("anon_verify: not an anonymous identity")
	}
	if id.KeyHash() != p.keyHash {
		return fmt.Errorf("anon_verify: key hash mismatch")
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
