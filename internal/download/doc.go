// Package download stages release artifacts into a session staging directory.
//
// Stage streams the artifact in fixed-size chunks, reports progress after each
// chunk, and verifies the declared size and checksum before handing the path
// back. Transient transport failures are retried with capped exponential
// backoff; cancellation removes the partial file and stops the retry loop.
package download
