// Package feed fetches the release feed, validates its entries, and picks
// the best update candidate for a channel.
//
// The feed is a JSON document (format 1) whose entries each describe one
// release: canonical version, enclosure URL, size, optional SHA-256, notes
// link, and platform selector. Document-level problems (invalid JSON,
// unknown format) fail the fetch; entry-level problems only skip the entry,
// so one bad release never blocks updates.
package feed
