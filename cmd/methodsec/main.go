package main

import (
	"log/slog"
	"os"

	"github.com/TwigBush/methodsec/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		slog.Error("methodsec", "err", err)
		os.Exit(1)
	}
}
