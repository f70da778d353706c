// Package version parses and orders release version identifiers and decides
// update eligibility per release channel.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"segue/internal/services"
)

// Version is a parsed release identifier. The numeric base orders releases;
// Prerelease distinguishes test builds from stable ones; Build carries
// metadata that never participates in ordering.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease string
	Build      string
}

// Parse converts text like "1.2.3", "1.2.3-test4", or "1.2.3+build7" into a
// Version. The base must be exactly three dot-separated non-negative integers;
// anything else fails with the malformed-version marker.
func Parse(text string) (Version, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Version{}, fmt.Errorf("%w: empty version string", services.ErrMalformedVersion)
	}

	rest := raw
	var build, prerelease string
	if idx := strings.Index(rest, "+"); idx >= 0 {
		build = rest[idx+1:]
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, "-"); idx >= 0 {
		prerelease = rest[idx+1:]
		rest = rest[:idx]
	}

	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q: expected three numeric components", services.ErrMalformedVersion, raw)
	}

	nums := make([]uint64, 3)
	for i, part := range parts {
		value, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: component %q is not a non-negative integer", services.ErrMalformedVersion, raw, part)
		}
		nums[i] = value
	}

	return Version{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		Prerelease: prerelease,
		Build:      build,
	}, nil
}

// MustParse is a test and wiring convenience that panics on malformed input.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// Stable reports whether the version carries no prerelease label.
func (v Version) Stable() bool {
	return v.Prerelease == ""
}

// Base returns the version with prerelease and build metadata stripped.
func (v Version) Base() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// WithoutBuild returns the version with build metadata stripped. Build
// metadata never participates in ordering, so identity comparisons use
// this form.
func (v Version) WithoutBuild() Version {
	v.Build = ""
	return v
}

// String renders the canonical textual form.
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(v.Major, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Minor, 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(v.Patch, 10))
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}
