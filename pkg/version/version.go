// Package version reports build information injected at link time, e.g.
// go build -ldflags "-X github.com/tcbot-dev/tchelper/pkg/version.gitCommit=$(git rev-parse HEAD)"
package version

import (
	"runtime"
)

var (
	gitCommit = "unknown"
	buildDate = "unknown"
)

type Info struct {
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func Get() Info {
	return Info{
		GitCommit: gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
