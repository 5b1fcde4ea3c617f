package buildinfo

import (
	"runtime"
	"runtime/debug"

	"github.com/yndnr/reactq/internal/checkpoint"
)

// Build-time variables (set via ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = ""
)

// Info contains build information.
type Info struct {
	Version       string `json:"version" yaml:"version"`
	Commit        string `json:"commit" yaml:"commit"`
	BuildTime     string `json:"build_time" yaml:"build_time"`
	GoVersion     string `json:"go_version" yaml:"go_version"`
	FormatVersion string `json:"format_version" yaml:"format_version"`
	MinFormat     string `json:"min_format_version" yaml:"min_format_version"`
}

// Get returns the build information.
func Get() Info {
	info := Info{
		Version:       Version,
		Commit:        Commit,
		BuildTime:     BuildTime,
		GoVersion:     GoVersion,
		FormatVersion: checkpoint.CurrentFormatVersion.String(),
		MinFormat:     checkpoint.MinimumFormatVersion.String(),
	}
	if info.GoVersion == "" {
		info.GoVersion = runtime.Version()
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		if info.Commit == "unknown" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					info.Commit = s.Value
				}
			}
		}
	}
	return info
}

// String returns a one-line version string.
func String() string {
	i := Get()
	return i.Version + " (" + i.Commit + ") built at " + i.BuildTime + ", checkpoint format " + i.FormatVersion
}
