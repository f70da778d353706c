package feed

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"segue/internal/version"
)

// DocumentFormat is the only release feed format this client understands.
const DocumentFormat = 1

// document is the wire shape of the release feed. Entries stay raw so one
// malformed entry never poisons the rest of the document.
type document struct {
	Format  int               `json:"format"`
	Entries []json.RawMessage `json:"entries"`
}

// entry is the wire shape of one release in the feed.
type entry struct {
	Version        string `json:"version"`
	DisplayVersion string `json:"display_version"`
	URL            string `json:"url"`
	Size           int64  `json:"size"`
	SHA256         string `json:"sha256"`
	NotesURL       string `json:"notes_url"`
	Platform       string `json:"platform"`
	Published      string `json:"published"`
}

// Candidate is a release entry that survived validation and is ready for
// eligibility filtering.
type Candidate struct {
	Version        version.Version
	DisplayVersion string
	URL            string
	Size           int64
	SHA256         string
	NotesURL       string
	Published      time.Time
}

// DisplayName returns the marketing name when the feed provides one, falling
// back to the canonical version string.
func (c Candidate) DisplayName() string {
	if c.DisplayVersion != "" {
		return c.DisplayVersion
	}
	return c.Version.String()
}

// validChecksum reports whether a published checksum is a well-formed SHA-256
// hex digest. An empty checksum is valid; verification is skipped for it.
func validChecksum(sum string) bool {
	if sum == "" {
		return true
	}
	decoded, err := hex.DecodeString(sum)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}
