package serialization

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a four-part version (major.minor.build.revision), written on
// the wire as four little-endian int32 values.
type Version struct {
	Major    int32
	Minor    int32
	Build    int32
	Revision int32
}

// V is shorthand for a Version literal.
func V(major, minor, build, revision int32) Version {
	return Version{Major: major, Minor: minor, Build: build, Revision: revision}
}

// String formats the version as "major.minor.build.revision".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(o Version) int {
	a := [4]int32{v.Major, v.Minor, v.Build, v.Revision}
	b := [4]int32{o.Major, o.Minor, o.Build, o.Revision}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// ParseVersion parses "major[.minor[.build[.revision]]]".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 4 || parts[0] == "" {
		return Version{}, fmt.Errorf("serialization: invalid version %q", s)
	}
	var out [4]int32
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("serialization: invalid version %q", s)
		}
		out[i] = int32(n)
	}
	return Version{Major: out[0], Minor: out[1], Build: out[2], Revision: out[3]}, nil
}
