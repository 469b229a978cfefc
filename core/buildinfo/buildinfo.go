// Package buildinfo reports which build of the bot is running.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Set at link time, for example:
//
//	-X 'github.com/m3rciful/kaoribot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/kaoribot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/kaoribot/core/buildinfo.Date=2025-08-30T12:00:00Z'
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info describes the running binary.
type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
	Modified  bool
}

// Read returns the link-time values, falling back to the VCS stamp the Go
// toolchain embeds when they were not set.
func Read() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return fillLocal(info)
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return fillLocal(info)
}

func fillLocal(info Info) Info {
	if info.Commit == "" {
		info.Commit = "local"
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	return info
}
