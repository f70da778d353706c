// Package integrity hosts the artifact trust checks applied before an update
// is installed: transport security, exact size, and checksum verification.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// checksumChunkSize bounds the read buffer so large artifacts hash without
// loading into memory.
const checksumChunkSize = 256 * 1024

// Result reports a single verification outcome. Checks never panic and never
// return Go errors; callers branch on OK and log Detail.
type Result struct {
	OK     bool
	Detail string
}

func pass() Result {
	return Result{OK: true}
}

func fail(format string, args ...any) Result {
	return Result{OK: false, Detail: fmt.Sprintf(format, args...)}
}

// VerifyTransport accepts only https URLs. It guards both feed documents and
// artifact enclosures.
func VerifyTransport(rawURL string) Result {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return fail("empty url")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fail("unparsable url %q: %v", trimmed, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" {
		return fail("scheme %q not allowed for %q; https required", scheme, trimmed)
	}
	if parsed.Host == "" {
		return fail("url %q has no host", trimmed)
	}
	return pass()
}

// VerifySize compares the on-disk size of path against the expected byte
// count. Any difference fails; a truncated or padded artifact is untrusted.
func VerifySize(path string, expected int64) Result {
	info, err := os.Stat(path)
	if err != nil {
		return fail("stat artifact: %v", err)
	}
	if info.Size() != expected {
		return fail("size mismatch: artifact is %d bytes, release declares %d", info.Size(), expected)
	}
	return pass()
}

// VerifyChecksum streams path through SHA-256 in fixed-size chunks and
// compares against the expected hex digest in constant time. The failure
// detail deliberately omits the computed digest.
func VerifyChecksum(path, expectedHex string) Result {
	expected, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(expectedHex)))
	if err != nil {
		return fail("expected checksum is not valid hex: %v", err)
	}
	if len(expected) != sha256.Size {
		return fail("expected checksum is %d bytes, want %d", len(expected), sha256.Size)
	}

	file, err := os.Open(path)
	if err != nil {
		return fail("open artifact: %v", err)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(hasher, file, buf); err != nil {
		return fail("read artifact: %v", err)
	}

	if subtle.ConstantTimeCompare(hasher.Sum(nil), expected) != 1 {
		return fail("sha-256 digest does not match the published checksum")
	}
	return pass()
}
