package cli

import (
	"fmt"

	"github.com/TwigBush/methodsec/internal/version"
	"github.com/spf13/cobra"
)

func cmdVersion() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			switch {
			case output == "json":
				_ = printJSON(out, version.Get())
			case verbose:
				fmt.Fprintln(out, version.Verbose())
			default:
				fmt.Fprintln(out, version.String())
			}
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed version information")

	return cmd
}
