// Package version reports build metadata injected via ldflags.
package version

import (
	"fmt"
	"runtime"
)

const Name = "methodsec"

// Set with -ldflags "-X github.com/TwigBush/methodsec/internal/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

func Get() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

func String() string {
	return fmt.Sprintf("%s %s", Name, Version)
}

func Verbose() string {
	i := Get()
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		i.Name, i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}
