// Package version reports build information for the groupchat binaries.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/groupchat/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/groupchat/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/groupchat/pkg/version.date=2026-01-01"
//
// Local builds fall back to the VCS stamp from runtime/debug when present.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	tag    = ""
	commit = ""
	date   = ""
)

// Info is the resolved build information.
type Info struct {
	Tag       string `json:"tag,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information, preferring ldflags over VCS stamps.
func Get() Info {
	info := Info{Tag: tag, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if info.Commit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if len(s.Value) > 7 {
					info.Commit = s.Value[:7]
				} else {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			}
		}
	}
	return info
}

// String returns the short version: the tag, else the commit, else "dev".
func (i Info) String() string {
	switch {
	case i.Tag != "":
		return i.Tag
	case i.Commit != "":
		return i.Commit
	default:
		return "dev"
	}
}

// Full returns a one-line description such as "v1.0.0 (abc1234) built 2026-01-01 go1.25.0".
func (i Info) Full() string {
	s := i.String()
	if i.Tag != "" && i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.Date != "" {
		s += " built " + i.Date
	}
	return fmt.Sprintf("%s %s", s, i.GoVersion)
}

// String is shorthand for Get().String().
func String() string { return Get().String() }
