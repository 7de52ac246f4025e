package main

import (
	"runtime/debug"

	"github.com/marcus/prep/cmd"
)

// version is stamped by release builds: -ldflags "-X main.version=v1.2.3".
var version = "dev"

// resolveVersion prefers a stamped version, then the module version that
// `go install pkg@vX` records, then "devel+<rev>[+dirty]" from VCS info.
func resolveVersion(stamped string, info *debug.BuildInfo) string {
	if stamped != "" && stamped != "dev" {
		return stamped
	}
	if info == nil {
		return stamped
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	vcs := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	rev := vcs["vcs.revision"]
	if rev == "" {
		return stamped
	}
	v := "devel+" + rev[:min(len(rev), 12)]
	if vcs["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}

func main() {
	info, _ := debug.ReadBuildInfo()
	cmd.SetVersion(resolveVersion(version, info))
	cmd.Execute()
}
