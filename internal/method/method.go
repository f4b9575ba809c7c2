// Package method wraps protected method calls in an ordered chain of
// authorization stages.
package method

import (
	"context"

	"github.com/TwigBush/methodsec/internal/identity"
)

// Method is the signature of a protected method plus the authorization rules
// attached to it.
type Method struct {
	Name       string
	Params     []string
	Attributes Attributes
}

// Attributes are the per-method rules. Empty fields mean "no stage".
type Attributes struct {
	PreFilter     *Filter
	PreAuthorize  string
	PostAuthorize string
	PostFilter    string
	Secured       []string
	Roles         *RoleRule
}

// Filter selects which collection argument a pre-filter shrinks. An empty
// Target means "the only collection argument".
type Filter struct {
	Expr   string
	Target string
}

type RoleMode string

const (
	RolesAny  RoleMode = "any"
	RolesAll  RoleMode = "all"
	PermitAll RoleMode = "permit_all"
	DenyAll   RoleMode = "deny_all"
)

// RoleRule is the role-annotation check.
type RoleRule struct {
	Mode        RoleMode
	Authorities []string
}

// Invocation is the per-call state threaded through the stages. It belongs to
// exactly one call.
type Invocation struct {
	ID       string
	Method   *Method
	Args     []any
	Identity *identity.Identity
	Result   any
}

// Arg returns the argument bound to the named parameter.
func (inv *Invocation) Arg(name string) (any, bool) {
	for i, p := range inv.Method.Params {
		if p == name && i < len(inv.Args) {
			return inv.Args[i], true
		}
	}
	return nil, false
}

func (inv *Invocation) namedArgs() map[string]any {
	out := make(map[string]any, len(inv.Method.Params))
	for i, p := range inv.Method.Params {
		if i < len(inv.Args) {
			out[p] = inv.Args[i]
		}
	}
	return out
}

// Target is the protected method body.
type Target func(ctx context.Context, inv *Invocation) (any, error)
