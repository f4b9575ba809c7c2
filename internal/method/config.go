package method

import (
	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/events"
	"github.com/TwigBush/methodsec/internal/expression"
	"github.com/TwigBush/methodsec/internal/identity"
)

const DefaultRolePrefix = "ROLE_"

// Config is built once at startup and shared read-only by every call.
type Config struct {
	PrePostEnabled bool
	SecuredEnabled bool
	JSR250Enabled  bool

	// RolePrefix is added to role names in role checks and hasRole. Empty
	// means no prefix.
	RolePrefix string

	// JSR250BeforeSecured runs the role-annotation stage ahead of the
	// secured stage when both apply to a method.
	JSR250BeforeSecured bool

	// PublishGranted also publishes granted decisions. Denials are always
	// published.
	PublishGranted bool

	// Anonymous, when set, must vouch for every anonymous identity that
	// reaches a protected method. Others are denied before any stage runs.
	Anonymous AnonymousVerifier

	Expressions expression.Handler
	Holders     identity.Strategy
	Trust       identity.TrustResolver
	Permissions authz.Authorizer
	Events      events.Publisher
}

// AnonymousVerifier recognizes anonymous identities issued by this process.
type AnonymousVerifier interface {
	Verify(id *identity.Identity) error
}

// DefaultConfig mirrors the stock method-security element: pre/post rules on,
// secured and role annotations off.
func DefaultConfig() Config {
	return Config{
		PrePostEnabled: true,
		RolePrefix:     DefaultRolePrefix,
	}
}

func (c Config) withDefaults() Config {
	if c.Expressions == nil {
		c.Expressions = expression.NewDefault()
	}
	if c.Holders == nil {
		c.Holders = identity.ContextStrategy{}
	}
	if c.Permissions == nil {
		c.Permissions = authz.DenyAll{}
	}
	if c.Events == nil {
		c.Events = events.Slog{}
	}
	return c
}
