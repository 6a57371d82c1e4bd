// Package version reports how the shardexec binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version and Commit may be stamped with -ldflags "-X". When left empty they
// are taken from the module and VCS data the Go toolchain embeds.
var (
	Version = ""
	Commit  = ""
)

// driverModule is the PostgreSQL driver whose version is reported
const driverModule = "github.com/lib/pq"

// Info describes the running binary
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
	BuildTime string `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Driver    string `json:"driver" yaml:"driver"`
	Platform  string `json:"platform" yaml:"platform"`
}

var readBuildInfo = debug.ReadBuildInfo

// Get collects the version information of the running binary
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := readBuildInfo(); ok {
		fromBuildInfo(&info, bi)
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Driver == "" {
		info.Driver = driverModule + " (unknown)"
	}
	return info
}

// fromBuildInfo fills what ldflags left empty
func fromBuildInfo(info *Info, bi *debug.BuildInfo) {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, dep := range bi.Deps {
		if dep.Path != driverModule {
			continue
		}
		v := dep.Version
		if dep.Replace != nil {
			v = dep.Replace.Version
		}
		info.Driver = driverModule + " " + v
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			info.BuildTime = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String renders the info for humans
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += " (modified)"
	}

	lines := []string{
		"shardexec " + i.Version,
		"  Commit:     " + commit,
	}
	if i.BuildTime != "" {
		lines = append(lines, "  Built:      "+i.BuildTime)
	}
	lines = append(lines,
		"  Go Version: "+i.GoVersion,
		"  Driver:     "+i.Driver,
		fmt.Sprintf("  Platform:   %s", i.Platform),
	)
	return strings.Join(lines, "\n")
}
