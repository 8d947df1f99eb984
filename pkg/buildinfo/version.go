// Package buildinfo records which build of vallo produced an output.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/meazyme/v-allo/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/meazyme/v-allo/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/meazyme/v-allo/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Binaries installed with go install fall back to the module version.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns the version and abbreviated commit, e.g. "v1.0.0 (3f2a9c1)".
// Run reports carry it so results can be traced to a build.
func Short() string {
	v := resolveVersion()
	if Commit == "none" || Commit == "" {
		return v
	}
	c := Commit
	if len(c) > 7 {
		c = c[:7]
	}
	return fmt.Sprintf("%s (%s)", v, c)
}

// Template returns the cobra version template.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", resolveVersion(), Commit, Date)
}

func resolveVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
