package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	output  string
	logJSON bool
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "methodsec",
	Short: "Method authorization pipeline: check rules, evaluate expressions, serve the sample API",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logJSON {
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
		}
	},
}

func Execute() error { return rootCmd.Execute() }

func init() {
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text|json")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "methodsec.yaml", "config file path (METHODSEC_* env vars override it)")

	rootCmd.AddCommand(cmdCheck(), cmdEval(), cmdServe(), cmdToken(), cmdVersion())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:   "help",
		Short: "Show help",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Root().Help()
		},
	})
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "Use -h for help, for example: methodsec check --config config/methodsec.yaml")
	}
}
