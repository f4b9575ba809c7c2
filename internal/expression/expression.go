// Package expression compiles and evaluates the boolean rules attached to
// protected methods. Rules are compiled once, at pipeline construction, and
// evaluated per call against a Root.
package expression

import (
	"context"
	"fmt"
	"strings"

	"github.com/TwigBush/methodsec/internal/authz"
	"github.com/TwigBush/methodsec/internal/identity"
)

// Root is everything a rule can see during one evaluation.
type Root struct {
	Identity     *identity.Identity
	Trust        identity.TrustResolver
	Method       string
	Args         map[string]any
	ReturnObject any
	FilterObject any
	Permissions  authz.Authorizer
	RolePrefix   string
}

// Expression is a compiled rule. Evaluate must be free of side effects and
// safe for concurrent use.
type Expression interface {
	Evaluate(ctx context.Context, root *Root) (bool, error)
	String() string
}

// Handler turns rule source into an Expression. vars are the parameter names
// of the protected method, which rules may reference directly.
type Handler interface {
	Compile(src string, vars []string) (Expression, error)
}

const (
	RefDefault = "default"
	RefRego    = "rego"
)

// Lookup resolves an expression-handler reference from configuration.
func Lookup(ref string) (Handler, error) {
	switch strings.ToLower(strings.TrimSpace(ref)) {
	case "", RefDefault:
		return NewDefault(), nil
	case RefRego:
		return NewRego(), nil
	default:
		return nil, &authz.InvalidConfigurationError{
			Field:  "expression_handler",
			Reason: fmt.Sprintf("unknown handler %q", ref),
		}
	}
}

// WithRolePrefix adds prefix to role unless it already carries it.
func WithRolePrefix(prefix, role string) string {
	if prefix == "" || strings.HasPrefix(role, prefix) {
		return role
	}
	return prefix + role
}

// PermissionSubject names the identity in permission checks.
func PermissionSubject(id *identity.Identity) string {
	return "user:" + id.Name()
}

// PermissionObject names a hasPermission target.
func PermissionObject(target any) string {
	switch t := target.(type) {
	case nil:
		return ""
	case string:
		return t
	case interface{ PermissionObject() string }:
		return t.PermissionObject()
	}
	return fmt.Sprint(target)
}
