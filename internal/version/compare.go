package version

import "strings"

// Compare orders two versions, returning -1, 0, or 1. The numeric base
// dominates; on equal bases a stable version ranks above any prerelease, and
// two prereleases fall back to a lexical label comparison. The lexical
// fallback means "test9" orders above "test10"; release tooling pads numbered
// prerelease labels to keep sequences monotonic.
func Compare(a, b Version) int {
	if c := compareUint(a.Major, b.Major); c != 0 {
		return c
	}
	if c := compareUint(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := compareUint(a.Patch, b.Patch); c != 0 {
		return c
	}
	switch {
	case a.Prerelease == "" && b.Prerelease == "":
		return 0
	case a.Prerelease == "":
		return 1
	case b.Prerelease == "":
		return -1
	}
	return strings.Compare(a.Prerelease, b.Prerelease)
}

// Eligible decides whether candidate may be offered to a client running
// current on the given channel. The stable channel never sees prereleases.
// A greater base always qualifies; an equal base qualifies only when the full
// comparison still favors the candidate, so a stable build supersedes its own
// prereleases while an older prerelease never resurfaces.
func Eligible(current, candidate Version, channel Channel) bool {
	if channel == ChannelStable && !candidate.Stable() {
		return false
	}
	switch Compare(candidate.Base(), current.Base()) {
	case 1:
		return true
	case 0:
		return Compare(candidate, current) > 0
	default:
		return false
	}
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
