// Package version implements the orderer version.
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

var (
	// SoftwareVersion represents the software version and should be set
	// by the linker.
	SoftwareVersion = "0.1.0-dev"

	// GitBranch is the name of the git branch this build was based on.
	GitBranch = ""

	// Toolchain is the version of the Go compiler/standard library.
	Toolchain = parseSemVerStr(strings.TrimPrefix(runtime.Version(), "go"))
)

// Version is a protocol or an application version.
type Version struct {
	Major uint16 `json:"major,omitempty"`
	Minor uint16 `json:"minor,omitempty"`
	Patch uint16 `json:"patch,omitempty"`
}

// String returns the version as a string.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MajorMinor extracts the major and minor segments of the Version only.
//
// This is useful for comparing versions where the patch segment can be
// ignored.
func (v Version) MajorMinor() Version {
	return Version{
		Major: v.Major,
		Minor: v.Minor,
		Patch: 0,
	}
}

func parseSemVerStr(s string) Version {
	// Strip pre-release and build metadata suffixes.
	s = strings.SplitN(s, "-", 2)[0]
	s = strings.SplitN(s, "+", 2)[0]

	var segments []uint16
	for _, part := range strings.SplitN(s, ".", 4) {
		i, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			break
		}
		segments = append(segments, uint16(i))
	}
	for len(segments) < 3 {
		segments = append(segments, 0)
	}

	return Version{Major: segments[0], Minor: segments[1], Patch: segments[2]}
}
