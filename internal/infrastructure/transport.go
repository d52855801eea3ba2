package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// FetchOptions controls one FetchToFile call
type FetchOptions struct {
	Timeout    time.Duration // per attempt, zero means no limit
	MaxRetries int           // total attempts, at least one is made
	BaseDelay  time.Duration // linear backoff base
	OnProgress func(domain.DownloadProgress)
	OnRetry    func(attempt int, err error) // attempt is the one about to start
}

// HTTPFetcher streams HTTP GET responses to files
type HTTPFetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher. A nil client uses a client without an
// overall timeout since each attempt carries its own deadline.
func NewHTTPFetcher(client *http.Client, log *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{
		client: client,
		logger: logger.OrNop(log),
	}
}

// BackoffDelay returns the wait before attempt k (1-based). The first attempt
// starts immediately and every later one waits (k-1) times base.
func BackoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return time.Duration(attempt-1) * base
}

// FetchToFile downloads url into dest and returns dest. A failed attempt
// never leaves a partial file behind. The caller must check the file is not
// empty; a successful empty response is not an error here.
func (f *HTTPFetcher) FetchToFile(ctx context.Context, url, dest string, opts FetchOptions) (string, error) {
	attempts := opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, lastErr)
			}
			delay := BackoffDelay(attempt, opts.BaseDelay)
			f.logger.Info("Retrying download",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", attempts),
				zap.Duration("delay", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		status, err := f.attempt(ctx, url, dest, opts)
		if err == nil {
			return dest, nil
		}

		// Remove the partial file before the next attempt
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			f.logger.Warn("Failed to remove partial download",
				zap.String("path", dest),
				zap.Error(rmErr))
		}

		lastErr = err
		lastStatus = status
		f.logger.Warn("Download attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", &domain.DownloadError{
		URL:      url,
		Attempts: attempts,
		Status:   lastStatus,
		Err:      lastErr,
	}
}

func (f *HTTPFetcher) attempt(ctx context.Context, url, dest string, opts FetchOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	file, err := os.Create(dest)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to create file: %w", err)
	}

	reader := &ProgressReader{
		Reader:     resp.Body,
		total:      resp.ContentLength,
		started:    time.Now(),
		onProgress: opts.OnProgress,
	}

	_, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	if copyErr != nil {
		return resp.StatusCode, fmt.Errorf("failed to write body: %w", copyErr)
	}
	if closeErr != nil {
		return resp.StatusCode, fmt.Errorf("failed to close file: %w", closeErr)
	}
	if resp.ContentLength > 0 && reader.downloaded != resp.ContentLength {
		return resp.StatusCode, fmt.Errorf("short body: got %d of %d bytes", reader.downloaded, resp.ContentLength)
	}
	return resp.StatusCode, nil
}

// ProgressReader wraps an io.Reader to report transfer progress
type ProgressReader struct {
	io.Reader
	total      int64
	downloaded int64
	started    time.Time
	onProgress func(domain.DownloadProgress)
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.Reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if pr.onProgress != nil && pr.total > 0 {
			pr.onProgress(pr.snapshot())
		}
	}
	return
}

func (pr *ProgressReader) snapshot() domain.DownloadProgress {
	progress := domain.DownloadProgress{
		Downloaded: pr.downloaded,
		Total:      pr.total,
		Percent:    float64(pr.downloaded) / float64(pr.total) * 100,
	}
	if elapsed := time.Since(pr.started).Seconds(); elapsed > 0 {
		progress.BytesPerSecond = float64(pr.downloaded) / elapsed
	}
	return progress
}

// IsNonEmptyFile reports whether path exists and holds at least one byte
func IsNonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// ErrEmptyDownload marks a transfer that succeeded but wrote zero bytes
var ErrEmptyDownload = errors.New("downloaded file is empty")
