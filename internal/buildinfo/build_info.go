// Package buildinfo describes the build of the dflow binary.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// New returns the build info from the values injected at link time. Missing values are filled in
// from the module and VCS info the Go toolchain embeds in the binary.
func New(version, commitHash, buildDate string) BuildInfo {
	i := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate, GoVersion: runtime.Version()}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	if (i.Version == "" || i.Version == "dev") && info.Main.Version != "" && info.Main.Version != "(devel)" {
		i.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && (i.CommitHash == "" || i.CommitHash == "n/a"):
			i.CommitHash = s.Value
		case s.Key == "vcs.time" && (i.BuildDate == "" || i.BuildDate == "<unknown>"):
			i.BuildDate = s.Value
		}
	}

	return i
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	return fmt.Sprintf("version %s (%s) built on %s with %s", i.Version, i.CommitHash, i.BuildDate, i.GoVersion)
}
