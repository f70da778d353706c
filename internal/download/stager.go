package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"segue/internal/feed"
	"segue/internal/integrity"
	"segue/internal/logging"
	"segue/internal/services"
)

const (
	defaultChunkSize      = 256 * 1024
	defaultRetryAttempts  = 4
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultUserAgent      = "segue"
)

// Progress receives byte counts after every staged chunk. total is the size
// the release declares, so done/total is safe to render directly.
type Progress func(done, total int64)

// Stager downloads release artifacts over https and verifies them in place.
type Stager struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	chunkSize  int

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the stager.
type Option func(*Stager)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Stager) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithLogger attaches a logger for retry and completion events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stager) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChunkSize overrides the copy buffer size (defaults to 256 KiB).
func WithChunkSize(size int) Option {
	return func(s *Stager) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 4).
func WithRetryMaxAttempts(attempts int) Option {
	return func(s *Stager) {
		s.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays. Non-positive values
// leave the corresponding default in place.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(s *Stager) {
		if baseDelay > 0 {
			s.retryBaseDelay = baseDelay
		}
		if maxDelay > 0 {
			s.retryMaxDelay = maxDelay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(s *Stager) {
		s.sleeper = sleeper
	}
}

// NewStager constructs a stager with the supplied options.
func NewStager(opts ...Option) *Stager {
	stager := &Stager{
		// No overall client timeout. A fixed budget would abort large
		// artifacts mid-stream; cancellation comes from the context.
		httpClient:       &http.Client{},
		logger:           logging.NewNop(),
		userAgent:        defaultUserAgent,
		chunkSize:        defaultChunkSize,
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(stager)
	}
	if stager.httpClient == nil {
		stager.httpClient = &http.Client{}
	}
	return stager
}

// Stage downloads the candidate's artifact into dir and returns the staged
// path. The file only survives when the declared size and checksum both
// verify; any failure or cancellation removes it. Transient failures are
// retried up to the configured attempt count.
func (s *Stager) Stage(ctx context.Context, candidate feed.Candidate, dir string, progress Progress) (string, error) {
	if result := integrity.VerifyTransport(candidate.URL); !result.OK {
		return "", services.Wrap(services.ErrInsecureURL, "download", "stage", result.Detail, nil)
	}
	if candidate.Size <= 0 {
		return "", services.Wrap(services.ErrDownload, "download", "stage", fmt.Sprintf("release declares size %d", candidate.Size), nil)
	}
	if strings.TrimSpace(dir) == "" {
		return "", services.Wrap(services.ErrDownload, "download", "stage", "staging directory required", nil)
	}

	destPath := filepath.Join(dir, artifactFileName(candidate))
	attempts := s.retryAttempts()
	log := logging.WithContext(ctx, s.logger)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := s.stageOnce(ctx, candidate, destPath, progress)
		if err == nil {
			log.Debug("staged update artifact",
				logging.String("path", destPath),
				logging.Int64("bytes", candidate.Size),
				logging.Int("attempt", attempt),
			)
			return destPath, nil
		}

		delay, retry := s.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", wrapStageFailure(err)
		}
		log.Warn("retrying artifact download",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "download_retry"),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return "", err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return "", services.Wrap(services.ErrDownload, "download", "stage", fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

func (s *Stager) stageOnce(ctx context.Context, candidate feed.Candidate, destPath string, progress Progress) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate.URL, nil)
	if err != nil {
		return fmt.Errorf("artifact request: new request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("artifact request: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			RetryAfter: retryAfter,
		}
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("stage artifact: create %s: %w", destPath, err)
	}
	keep := false
	defer func() {
		if !keep {
			_ = out.Close()
			_ = os.Remove(destPath)
		}
	}()

	total := candidate.Size
	var done int64
	buf := make([]byte, s.chunkSize)
	for {
		// Cancellation is honored between chunks so a partial file never
		// outlives the request that produced it.
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("stage artifact: write %s: %w", destPath, err)
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			return &transferError{err: readErr}
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("stage artifact: close %s: %w", destPath, err)
	}

	if result := integrity.VerifySize(destPath, candidate.Size); !result.OK {
		return services.Wrap(services.ErrIntegrity, "download", "verify size", result.Detail, nil)
	}
	if candidate.SHA256 != "" {
		if result := integrity.VerifyChecksum(destPath, candidate.SHA256); !result.OK {
			return services.Wrap(services.ErrIntegrity, "download", "verify checksum", result.Detail, nil)
		}
	}

	keep = true
	return nil
}

// wrapStageFailure tags permanent failures as download errors while letting
// cancellation and integrity verdicts pass through unchanged for the caller
// to classify.
func wrapStageFailure(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, services.ErrIntegrity) || errors.Is(err, services.ErrInsecureURL) {
		return err
	}
	return services.Wrap(services.ErrDownload, "download", "stage", "", err)
}

func artifactFileName(candidate feed.Candidate) string {
	if parsed, err := url.Parse(candidate.URL); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return fmt.Sprintf("update-%s.bin", candidate.Version)
}
