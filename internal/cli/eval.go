package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TwigBush/methodsec/internal/anonymous"
	"github.com/TwigBush/methodsec/internal/config"
	"github.com/TwigBush/methodsec/internal/di"
	"github.com/TwigBush/methodsec/internal/expression"
	"github.com/TwigBush/methodsec/internal/identity"
	"github.com/TwigBush/methodsec/internal/sample"
)

type evalResult struct {
	Expr      string `json:"expr"`
	Principal string `json:"principal"`
	Result    bool   `json:"result"`
}

// Evaluates a single rule against a made-up caller, for trying rules out.
func cmdEval() *cobra.Command {
	var (
		expr        string
		principal   string
		authorities []string
		anon        bool
		argPairs    []string
	)
	c := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one rule expression against a given caller",
		Example: `  methodsec eval --expr "hasRole('ADMIN') or owner == principal" --principal alice --arg owner=alice
  methodsec eval --expr "isAnonymous()" --anonymous`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if expr == "" {
				return fmt.Errorf("--expr is required")
			}
			f, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			handler, err := expression.Lookup(f.MethodSecurity.ExpressionHandler)
			if err != nil {
				return err
			}
			perms, err := di.ProvideAuthorizer(f.Permissions, sample.NewStore(sample.Seed()...))
			if err != nil {
				return err
			}

			vars := make([]string, 0, len(argPairs))
			values := make(map[string]any, len(argPairs))
			for _, kv := range argPairs {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("--arg wants name=value, got %q", kv)
				}
				vars = append(vars, k)
				values[k] = v
			}

			compiled, err := handler.Compile(expr, vars)
			if err != nil {
				return fmt.Errorf("compile: %w", err)
			}

			var id *identity.Identity
			switch {
			case anon:
				p, err := di.ProvideAnonymous(f.Anonymous)
				if err != nil {
					return err
				}
				id = p.EnsureIdentity(identity.NewHolder())
			case principal != "":
				id = identity.NewAuthenticated(principal, authorities...)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ok, err := compiled.Evaluate(ctx, &expression.Root{
				Identity:    id,
				Trust:       identity.TrustResolver{AnonymousIsAuthenticated: f.Anonymous.AuthenticatedForAuthorization},
				Method:      "eval",
				Args:        values,
				Permissions: perms,
				RolePrefix:  f.MethodSecurity.RolePrefix,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				return printJSON(out, evalResult{Expr: expr, Principal: id.Name(), Result: ok})
			}
			fmt.Fprintln(out, ok)
			return nil
		},
	}
	c.Flags().StringVar(&expr, "expr", "", "rule expression")
	c.Flags().StringVar(&principal, "principal", "", "authenticated principal name")
	c.Flags().StringSliceVar(&authorities, "authority", nil, "authority granted to the principal (repeatable)")
	c.Flags().BoolVar(&anon, "anonymous", false, "evaluate as the anonymous identity (principal "+anonymous.DefaultPrincipal+")")
	c.Flags().StringArrayVar(&argPairs, "arg", nil, "method argument as name=value (repeatable)")
	return c
}
