package feed

import "segue/internal/version"

// SelectBest returns the greatest candidate the channel policy allows over
// the current version, or nil when the installation is up to date. Callers
// filter user-skipped versions before selection.
func SelectBest(candidates []Candidate, current version.Version, channel version.Channel) *Candidate {
	var best *Candidate
	for i := range candidates {
		candidate := &candidates[i]
		if !version.Eligible(current, candidate.Version, channel) {
			continue
		}
		if best == nil || version.Compare(candidate.Version, best.Version) > 0 {
			best = candidate
		}
	}
	return best
}
