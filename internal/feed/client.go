package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"segue/internal/integrity"
	"segue/internal/logging"
	"segue/internal/services"
	"segue/internal/version"
)

const defaultHTTPTimeout = 30 * time.Second

// Config captures the runtime settings required to talk to the release feed.
type Config struct {
	URL            string
	Platform       string
	UserAgent      string
	TimeoutSeconds int
}

// Client fetches and validates the release feed.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger for per-entry skip diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a feed client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			URL:            strings.TrimSpace(cfg.URL),
			Platform:       strings.TrimSpace(cfg.Platform),
			UserAgent:      strings.TrimSpace(cfg.UserAgent),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.UserAgent == "" {
		client.cfg.UserAgent = "segue"
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Fetch retrieves the release feed and returns the entries that survived
// validation. The feed endpoint itself must be https; a document that fails
// to parse is fatal, while individual bad entries are skipped with a log
// line.
func (c *Client) Fetch(ctx context.Context) ([]Candidate, error) {
	if result := integrity.VerifyTransport(c.cfg.URL); !result.OK {
		return nil, services.Wrap(services.ErrInsecureURL, "feed", "fetch", result.Detail, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrDownload, "feed", "fetch", "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrDownload, "feed", "fetch", "request release feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrDownload, "feed", "fetch",
			fmt.Sprintf("release feed returned http %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrDownload, "feed", "fetch", "read release feed", err)
	}
	logging.WithContext(ctx, c.logger).Debug("release feed fetched",
		logging.Int("bytes", len(body)),
		logging.Duration("elapsed", time.Since(start)),
	)

	return c.parseDocument(ctx, body)
}

func (c *Client) parseDocument(ctx context.Context, body []byte) ([]Candidate, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, services.Wrap(services.ErrFeedParse, "feed", "parse", "release feed is not valid JSON", err)
	}
	if doc.Format != DocumentFormat {
		return nil, services.Wrap(services.ErrFeedParse, "feed", "parse",
			fmt.Sprintf("unsupported feed format %d", doc.Format), nil)
	}

	// Session identity travels on ctx, so skip diagnostics emitted here can
	// be matched to the update session that requested the feed.
	log := logging.WithContext(ctx, c.logger)
	candidates := make([]Candidate, 0, len(doc.Entries))
	skipped := 0
	for i, raw := range doc.Entries {
		candidate, reason := c.parseEntry(raw)
		if reason != "" {
			skipped++
			log.Warn("skipping release feed entry",
				logging.Int("entry", i),
				logging.String("reason", reason),
				logging.String(logging.FieldEventType, "feed_entry_skipped"),
			)
			continue
		}
		candidates = append(candidates, candidate)
	}

	log.Debug("parsed release feed",
		logging.Int("feed_format", doc.Format),
		logging.Int("entries", len(doc.Entries)),
		logging.Int("skipped_entries", skipped),
	)
	return candidates, nil
}

// parseEntry validates one raw feed entry. The returned reason is empty for a
// usable entry and a short skip explanation otherwise.
func (c *Client) parseEntry(raw json.RawMessage) (Candidate, string) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Candidate{}, fmt.Sprintf("entry is not valid JSON: %v", err)
	}

	ver, err := version.Parse(e.Version)
	if err != nil {
		return Candidate{}, fmt.Sprintf("unparsable version %q", e.Version)
	}

	rawURL := strings.TrimSpace(e.URL)
	if rawURL == "" {
		return Candidate{}, "missing enclosure url"
	}
	if result := integrity.VerifyTransport(rawURL); !result.OK {
		return Candidate{}, fmt.Sprintf("insecure enclosure url %q", rawURL)
	}
	if _, err := url.Parse(rawURL); err != nil {
		return Candidate{}, fmt.Sprintf("invalid enclosure url %q", rawURL)
	}

	if e.Size <= 0 {
		return Candidate{}, fmt.Sprintf("non-positive size %d", e.Size)
	}

	sum := strings.ToLower(strings.TrimSpace(e.SHA256))
	if !validChecksum(sum) {
		return Candidate{}, fmt.Sprintf("malformed sha256 %q", e.SHA256)
	}

	platform := strings.TrimSpace(e.Platform)
	if platform != "" && c.cfg.Platform != "" && !strings.EqualFold(platform, c.cfg.Platform) {
		return Candidate{}, fmt.Sprintf("platform %q does not match %q", platform, c.cfg.Platform)
	}

	candidate := Candidate{
		Version:        ver,
		DisplayVersion: strings.TrimSpace(e.DisplayVersion),
		URL:            rawURL,
		Size:           e.Size,
		SHA256:         sum,
		NotesURL:       strings.TrimSpace(e.NotesURL),
	}
	if published := strings.TrimSpace(e.Published); published != "" {
		if ts, err := time.Parse(time.RFC3339, published); err == nil {
			candidate.Published = ts
		}
	}
	return candidate, ""
}
