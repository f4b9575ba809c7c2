package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/TwigBush/methodsec/internal/config"
	"github.com/TwigBush/methodsec/internal/di"
	"github.com/TwigBush/methodsec/internal/method"
)

type checkResult struct {
	OK      bool         `json:"ok"`
	Methods []methodLine `json:"methods,omitempty"`
	Errors  []string     `json:"errors,omitempty"`
}

type methodLine struct {
	Name   string        `json:"name"`
	Stages []method.Kind `json:"stages"`
}

// Validates the config and compiles every rule, reporting all problems.
func cmdCheck() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compile every method rule in the config and report all errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			res := checkResult{OK: true}
			rt, err := di.Build(cmd.Context(), f)
			if err != nil {
				res.OK = false
				for _, e := range multierr.Errors(err) {
					res.Errors = append(res.Errors, e.Error())
				}
			} else {
				defer rt.Close()
				names := rt.Pipeline.Methods()
				sort.Strings(names)
				for _, n := range names {
					res.Methods = append(res.Methods, methodLine{Name: n, Stages: rt.Pipeline.Stages(n)})
				}
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				for _, m := range res.Methods {
					stages := make([]string, len(m.Stages))
					for i, s := range m.Stages {
						stages[i] = string(s)
					}
					fmt.Fprintf(out, "%-24s %s\n", m.Name, strings.Join(stages, " -> "))
				}
				for _, e := range res.Errors {
					fmt.Fprintf(out, "error: %s\n", e)
				}
			}
			if !res.OK {
				return fmt.Errorf("check failed: %d error(s)", len(res.Errors))
			}
			return nil
		},
	}
}
