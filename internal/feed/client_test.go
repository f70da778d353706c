package feed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"segue/internal/feed"
	"segue/internal/services"
	"segue/internal/version"
)

const testChecksum = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func newFeedClient(t *testing.T, status int, body string) *feed.Client {
	t.Helper()
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return feed.NewClient(
		feed.Config{URL: server.URL, Platform: "linux-amd64"},
		feed.WithHTTPClient(server.Client()),
	)
}

func TestFetchRejectsInsecureFeedURL(t *testing.T) {
	client := feed.NewClient(feed.Config{URL: "http://releases.example.com/feed.json"})
	_, err := client.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for plain http feed url")
	}
	if !errors.Is(err, services.ErrInsecureURL) {
		t.Fatalf("expected insecure url marker, got %v", err)
	}
}

func TestFetchParsesValidFeed(t *testing.T) {
	body := `{
		"format": 1,
		"entries": [
			{"version": "1.2.0", "display_version": "Spring Release", "url": "https://dl.example.com/app-1.2.0.bin", "size": 2048, "sha256": "` + strings.ToUpper(testChecksum) + `", "notes_url": "https://example.com/notes", "published": "2026-03-01T10:00:00Z"},
			{"version": "1.1.0", "url": "https://dl.example.com/app-1.1.0.bin", "size": 1024}
		]
	}`
	client := newFeedClient(t, http.StatusOK, body)

	candidates, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	first := candidates[0]
	if first.Version.String() != "1.2.0" {
		t.Fatalf("unexpected version: %s", first.Version)
	}
	if first.DisplayName() != "Spring Release" {
		t.Fatalf("unexpected display name: %s", first.DisplayName())
	}
	if first.Size != 2048 {
		t.Fatalf("unexpected size: %d", first.Size)
	}
	if first.SHA256 != testChecksum {
		t.Fatalf("unexpected checksum: %s", first.SHA256)
	}
	if first.Published.IsZero() {
		t.Fatal("expected published timestamp to parse")
	}

	second := candidates[1]
	if second.SHA256 != "" {
		t.Fatalf("expected empty checksum, got %q", second.SHA256)
	}
	if second.DisplayName() != "1.1.0" {
		t.Fatalf("expected display fallback to version, got %q", second.DisplayName())
	}
}

func TestFetchSkipsMalformedEntries(t *testing.T) {
	body := `{
		"format": 1,
		"entries": [
			{"version": "1.2.0", "url": "https://dl.example.com/good.bin", "size": 100},
			{"version": "not-a-version", "url": "https://dl.example.com/bad.bin", "size": 100},
			{"version": "1.3.0", "size": 100},
			{"version": "1.4.0", "url": "http://dl.example.com/insecure.bin", "size": 100},
			{"version": "1.5.0", "url": "https://dl.example.com/empty.bin", "size": 0},
			{"version": "1.6.0", "url": "https://dl.example.com/badsum.bin", "size": 100, "sha256": "zz"},
			{"version": "1.7.0", "url": "https://dl.example.com/other.bin", "size": 100, "platform": "darwin-arm64"},
			"not an object"
		]
	}`
	client := newFeedClient(t, http.StatusOK, body)

	candidates, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected only the valid entry to survive, got %d", len(candidates))
	}
	if candidates[0].Version.String() != "1.2.0" {
		t.Fatalf("unexpected surviving entry: %s", candidates[0].Version)
	}
}

func TestFetchKeepsMatchingPlatformEntries(t *testing.T) {
	body := `{
		"format": 1,
		"entries": [
			{"version": "1.2.0", "url": "https://dl.example.com/a.bin", "size": 100, "platform": "LINUX-AMD64"}
		]
	}`
	client := newFeedClient(t, http.StatusOK, body)

	candidates, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected platform match to be case insensitive, got %d candidates", len(candidates))
	}
}

func TestFetchMalformedDocumentIsFatal(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"format": 1, "entries": [`},
		{"unknown format", `{"format": 2, "entries": []}`},
		{"missing format", `{"entries": []}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newFeedClient(t, http.StatusOK, tc.body)
			_, err := client.Fetch(context.Background())
			if err == nil {
				t.Fatal("expected fatal parse error")
			}
			if !errors.Is(err, services.ErrFeedParse) {
				t.Fatalf("expected feed parse marker, got %v", err)
			}
		})
	}
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	client := newFeedClient(t, http.StatusInternalServerError, "boom")
	_, err := client.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for http 500")
	}
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected download marker, got %v", err)
	}
}

func TestSelectBest(t *testing.T) {
	mk := func(v string) feed.Candidate {
		return feed.Candidate{Version: version.MustParse(v), URL: "https://dl.example.com/" + v, Size: 1}
	}
	candidates := []feed.Candidate{mk("1.0.1"), mk("1.2.0"), mk("1.2.0-test5"), mk("0.9.9")}

	best := feed.SelectBest(candidates, version.MustParse("1.0.0"), version.ChannelStable)
	if best == nil || best.Version.String() != "1.2.0" {
		t.Fatalf("expected 1.2.0 on stable, got %v", best)
	}

	best = feed.SelectBest(candidates, version.MustParse("1.0.0"), version.ChannelTest)
	if best == nil || best.Version.String() != "1.2.0" {
		t.Fatalf("expected stable 1.2.0 to win on test channel, got %v", best)
	}

	best = feed.SelectBest([]feed.Candidate{mk("1.2.0-test5")}, version.MustParse("1.2.0"), version.ChannelTest)
	if best != nil {
		t.Fatalf("expected no candidate when base is equal and prerelease loses, got %v", best)
	}

	best = feed.SelectBest(nil, version.MustParse("1.0.0"), version.ChannelStable)
	if best != nil {
		t.Fatalf("expected nil for empty candidate list, got %v", best)
	}
}
