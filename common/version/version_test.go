package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSemVerStr(t *testing.T) {
	require := require.New(t)

	for _, tc := range []struct {
		raw      string
		expected Version
	}{
		{"1.22.4", Version{Major: 1, Minor: 22, Patch: 4}},
		{"1.22", Version{Major: 1, Minor: 22}},
		{"1", Version{Major: 1}},
		{"1.23.0-rc.1", Version{Major: 1, Minor: 23}},
		{"1.23.1+build.5", Version{Major: 1, Minor: 23, Patch: 1}},
		{"0.1000.0", Version{Minor: 1000}},
		{"devel", Version{}},
		{"", Version{}},
		{"1.bogus.4", Version{Major: 1}},
		{"65536.0.0", Version{}},
	} {
		require.Equal(tc.expected, parseSemVerStr(tc.raw), "parseSemVerStr(%q)", tc.raw)
	}
}

func TestVersionString(t *testing.T) {
	require := require.New(t)

	require.Equal("0.0.0", Version{}.String())
	require.Equal("1.22.4", Version{Major: 1, Minor: 22, Patch: 4}.String())
}

func TestMajorMinor(t *testing.T) {
	require := require.New(t)

	v := Version{Major: 20, Minor: 10, Patch: 3}
	require.Equal(Version{Major: 20, Minor: 10}, v.MajorMinor())
	require.Equal(v.MajorMinor(), Version{Major: 20, Minor: 10, Patch: 7}.MajorMinor(),
		"versions differing only in the patch segment compare equal")
}
