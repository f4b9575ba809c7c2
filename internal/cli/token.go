package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TwigBush/methodsec/internal/config"
	"github.com/TwigBush/methodsec/internal/token"
)

// Mints a bearer token for local testing against `methodsec serve`.
func cmdToken() *cobra.Command {
	var (
		subject     string
		authorities []string
		ttl         time.Duration
		outFile     string
	)
	c := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--sub is required")
			}
			f, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if f.Bearer.Secret == "" {
				return fmt.Errorf("bearer.secret is not set (config or METHODSEC_BEARER_SECRET)")
			}
			raw, err := token.Issue([]byte(f.Bearer.Secret), subject, authorities, token.IssueConfig{
				Issuer: f.Bearer.Issuer,
				TTL:    ttl,
			})
			if err != nil {
				return err
			}
			if outFile != "" {
				if err := writeFile(outFile, []byte(raw+"\n"), 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	c.Flags().StringVar(&subject, "sub", "", "token subject (principal name)")
	c.Flags().StringSliceVar(&authorities, "authority", nil, "granted authority (repeatable)")
	c.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	c.Flags().StringVar(&outFile, "out", "", "write the token to this file instead of stdout")
	return c
}
