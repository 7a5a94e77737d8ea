package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/kineintra/kineintra/internal/protocol"
)

// Set at build time via ldflags:
//
//	go build -ldflags="-X github.com/kineintra/kineintra/internal/version.Version=v0.3.0 \
//	                   -X github.com/kineintra/kineintra/internal/version.Commit=abc1234"
//
// Unset values come from the VCS stamp in the build info, then fall back
// to "dev".
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		populateFromBuildInfo()
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func populateFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		// Set by go install module@version.
		Version = info.Main.Version
	}

	var revision, modified, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}

	if Commit == "" && revision != "" {
		Commit = shortRevision(revision, modified == "true")
	}
	if Version == "" && vcsTime != "" {
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			Version = "dev-" + t.Format("20060102")
		}
	}
}

func shortRevision(rev string, dirty bool) string {
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// Info is the build description printed by `version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
	Protocol  int    `json:"protocol"`
}

// Get returns the running binary's build description.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Protocol:  protocol.ProtocolVersion,
	}
}

// Full returns the version string including commit and wire protocol.
func Full() string {
	return fmt.Sprintf("%s (commit: %s, protocol v%d)", Version, Commit, protocol.ProtocolVersion)
}
