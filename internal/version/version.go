package version

import (
	"runtime/debug"
	"strings"
)

var (
	// Version is set at build time with -ldflags "-X .../version.Version=v1.2.3".
	// go install builds fall back to the embedded module version.
	Version = "dev"

	// Commit is the VCS revision, from -ldflags or the embedded build settings.
	Commit = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				Commit = s.Value
			}
		}
	}
}

// String returns the version with a short commit suffix when known.
func String() string {
	commit := strings.TrimSpace(Commit)
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		return Version
	}
	return Version + " (" + commit + ")"
}
