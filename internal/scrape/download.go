package scrape

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 2 * time.Second
)

// Downloader fetches media files with a fixed retry budget and a fixed
// inter-download throttle.
type Downloader struct {
	client     *http.Client
	dir        string
	attempts   int
	retryDelay time.Duration
	limiter    *rate.Limiter
}

func newDownloader(opts Options) *Downloader {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = defaultAttempts
	}
	retryDelay := opts.RetryDelay
	if retryDelay < 0 {
		retryDelay = defaultRetryDelay
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.DownloadDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.DownloadDelay), 1)
	}

	return &Downloader{
		client:     &http.Client{Timeout: opts.PageTimeout},
		dir:        opts.MediaDir,
		attempts:   attempts,
		retryDelay: retryDelay,
		limiter:    limiter,
	}
}

// Fetch downloads one media URL into the per-kind directory and returns the
// generated local name. Attempts are bounded; the retry delay is fixed, not
// exponential. On exhaustion the last error is returned and the caller drops
// the item.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, kind MediaKind) (string, error) {
	dir := filepath.Join(d.dir, kindSubdir(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	name := freshName(kind)
	path := filepath.Join(dir, name)

	// Fresh naming makes a hit here vacuous in practice; the check stays so a
	// deterministic naming scheme can be swapped in without touching callers.
	if _, err := os.Stat(path); err == nil {
		return name, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}

		if err := d.download(ctx, rawURL, path); err != nil {
			lastErr = err
			continue
		}
		return name, nil
	}

	return "", fmt.Errorf("download %s after %d attempts: %w", rawURL, d.attempts, lastErr)
}

func (d *Downloader) download(ctx context.Context, rawURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}

	return f.Close()
}

// freshName returns a collision-resistant local filename for the kind.
func freshName(kind MediaKind) string {
	id := uuid.New()
	random := hex.EncodeToString(id[:])
	if kind == KindVideo {
		return "vid-" + random + ".mp4"
	}
	return "img-" + random + ".jpg"
}

func kindSubdir(kind MediaKind) string {
	if kind == KindVideo {
		return "video"
	}
	return "img"
}
