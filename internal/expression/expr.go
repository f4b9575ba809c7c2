package expression

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/TwigBush/methodsec/internal/authz"
)

var builtins = []string{
	"hasAuthority", "hasAnyAuthority", "hasRole", "hasAnyRole",
	"permitAll", "denyAll", "isAnonymous", "isAuthenticated", "isFullyAuthenticated",
	"hasPermission", "principal", "authentication", "returnObject", "filterObject", "args",
}

// Default is the built-in rule language, e.g.
//
//	hasRole('ADMIN') or (hasAuthority('docs:read') and owner == principal)
//
// Method parameters are referenced by name, or through args.
type Default struct{}

func NewDefault() *Default { return &Default{} }

func (d *Default) Compile(src string, vars []string) (Expression, error) {
	for _, v := range vars {
		for _, b := range builtins {
			if v == b {
				return nil, fmt.Errorf("parameter %q shadows a builtin", v)
			}
		}
	}
	env, _ := environment(context.Background(), &Root{}, vars)
	prog, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &compiled{src: src, prog: prog, vars: vars}, nil
}

type compiled struct {
	src  string
	prog *vm.Program
	vars []string
}

func (c *compiled) String() string { return c.src }

func (c *compiled) Evaluate(ctx context.Context, root *Root) (bool, error) {
	env, permErr := environment(ctx, root, c.vars)
	out, err := expr.Run(c.prog, env)
	if err != nil {
		return false, fmt.Errorf("expression_eval: %w", err)
	}
	if *permErr != nil {
		return false, fmt.Errorf("permission_check: %w", *permErr)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// environment binds the rule functions to one Root. The returned pointer
// carries any error raised by the permission backend during the run.
func environment(ctx context.Context, root *Root, vars []string) (map[string]any, *error) {
	var permErr error
	id := root.Identity
	hasAny := func(names ...string) bool {
		for _, n := range names {
			if id.HasAuthority(n) {
				return true
			}
		}
		return false
	}
	prefixed := func(roles []string) []string {
		out := make([]string, len(roles))
		for i, r := range roles {
			out[i] = WithRolePrefix(root.RolePrefix, r)
		}
		return out
	}
	perms := root.Permissions
	if perms == nil {
		perms = authz.DenyAll{}
	}

	env := map[string]any{
		"hasAuthority":    func(a string) bool { return id.HasAuthority(a) },
		"hasAnyAuthority": hasAny,
		"hasRole":         func(r string) bool { return id.HasAuthority(WithRolePrefix(root.RolePrefix, r)) },
		"hasAnyRole":      func(rs ...string) bool { return hasAny(prefixed(rs)...) },
		"permitAll":       func() bool { return true },
		"denyAll":         func() bool { return false },
		"isAnonymous":     func() bool { return root.Trust.IsAnonymous(id) },
		"isAuthenticated": func() bool { return root.Trust.IsAuthenticated(id) },
		"isFullyAuthenticated": func() bool {
			return root.Trust.IsFullyAuthenticated(id)
		},
		"hasPermission": func(target any, permission string) bool {
			if id == nil || permErr != nil {
				return false
			}
			d, err := perms.Check(ctx, authz.Request{
				Subject:  PermissionSubject(id),
				Relation: permission,
				Object:   PermissionObject(target),
			})
			if err != nil {
				permErr = err
				return false
			}
			return d.Allowed()
		},
		"principal":      nil,
		"authentication": nil,
		"returnObject":   root.ReturnObject,
		"filterObject":   root.FilterObject,
	}
	if id != nil {
		env["principal"] = id.Principal()
		env["authentication"] = id
	}
	args := make(map[string]any, len(vars))
	for _, v := range vars {
		args[v] = root.Args[v]
		env[v] = root.Args[v]
	}
	env["args"] = args
	return env, &permErr
}
