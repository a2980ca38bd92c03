// Package version provides application version and build info.
//
//nolint:revive
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is overridden by ldflags at build time; falls back to vcs.revision.
	CommitHash = ""
	// BuildTime is overridden by ldflags at build time; falls back to vcs.time.
	BuildTime = ""

	readBuildInfo sync.Once
)

// GetInfo returns "<version> (<short hash>)", or just the version when no hash is known.
func GetInfo() string {
	readBuildInfo.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})

	if CommitHash == "" {
		return Version
	}
	short := CommitHash
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, short)
}

// UserAgent is sent on outbound requests to Square and Zoho.
func UserAgent() string {
	return "crmsync/" + Version
}
