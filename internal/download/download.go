// Package download implements the strict single-URL fetch with hashing,
// retry and atomic placement described in spec.md §4.3. Grounded on
// server/downloader.py's download_strict: stream, hash while streaming,
// verify Content-Length, atomic rename as the commit point. The retry
// loop is re-expressed with github.com/cenkalti/backoff/v5 instead of a
// hand-rolled sleep loop, the same library restic uses for its own
// network-retry paths.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const chunkSize = 8 * 1024

// Policy bounds a single download (spec.md §4.1/§4.3).
type Policy struct {
	AllowedContentTypes []string
	MaxAttempts         int
	Timeout             time.Duration
	InitialBackoff      time.Duration
}

// Result is what a successful download reports back to the save endpoint
// (spec.md §4.3 contract).
type Result struct {
	ContentHash string
	ByteLength  int64
	ContentType string
}

// TypeNotAllowed is returned when the response Content-Type is outside
// Policy.AllowedContentTypes. It is terminal: never retried (spec.md §4.3,
// §7).
type TypeNotAllowed struct {
	ContentType string
}

func (e *TypeNotAllowed) Error() string {
	return fmt.Sprintf("content type %q not allowed", e.ContentType)
}

// SizeMismatch is returned when the streamed byte count disagrees with
// Content-Length. Treated as transient per spec.md's Open Questions
// resolution (retried, not permanent).
type SizeMismatch struct {
	Declared, Actual int64
}

func (e *SizeMismatch) Error() string {
	return fmt.Sprintf("size mismatch: declared %d, got %d", e.Declared, e.Actual)
}

// Downloader performs strict, policy-constrained downloads.
type Downloader struct {
	client *http.Client
	log    *slog.Logger
}

// New returns a Downloader. log may be nil, in which case slog.Default()
// is used.
func New(log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{client: &http.Client{}, log: log}
}

// Download fetches url into destination following spec.md §4.3's
// procedure: stream into destination+".part", hash while streaming,
// validate Content-Type and final size, then rename the temp file over
// destination as the commit point.
func (d *Downloader) Download(ctx context.Context, url, destination string, policy Policy) (Result, error) {
	op := func() (Result, error) {
		res, err := d.attempt(ctx, url, destination, policy)
		if err != nil {
			var notAllowed *TypeNotAllowed
			if errors.As(err, &notAllowed) {
				return Result{}, backoff.Permanent(err)
			}
			return Result{}, err
		}
		return res, nil
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	initial := policy.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.Multiplier = 2

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
}

func (d *Downloader) attempt(ctx context.Context, url, destination string, policy Policy) (Result, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if policy.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	tmp := destination + ".part"
	// Remove this attempt's temp file on every return path, so a failed
	// attempt never leaves a .part behind for the next one (spec.md §4.3).
	defer os.Remove(tmp)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("download: build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("download: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("download: non-2xx status %d", resp.StatusCode)
	}

	contentType := strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	if !allowed(contentType, policy.AllowedContentTypes) {
		return Result{}, &TypeNotAllowed{ContentType: contentType}
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return Result{}, fmt.Errorf("download: mkdir: %w", err)
	}

	f, err := os.Create(tmp)
	if err != nil {
		return Result{}, fmt.Errorf("download: create temp file: %w", err)
	}

	hasher := sha256.New()
	writer := io.MultiWriter(f, hasher)

	var total int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := writer.Write(buf[:n]); werr != nil {
				f.Close()
				return Result{}, fmt.Errorf("download: write chunk: %w", werr)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return Result{}, fmt.Errorf("download: read body: %w", readErr)
		}
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("download: close temp file: %w", err)
	}

	if cl := resp.ContentLength; cl >= 0 && cl != total {
		return Result{}, &SizeMismatch{Declared: cl, Actual: total}
	}

	if err := os.Rename(tmp, destination); err != nil {
		return Result{}, fmt.Errorf("download: commit rename: %w", err)
	}

	d.log.Debug("download committed", "url", url, "destination", destination, "bytes", total)
	return Result{
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		ByteLength:  total,
		ContentType: contentType,
	}, nil
}

func allowed(contentType string, allowList []string) bool {
	for _, a := range allowList {
		if a == contentType {
			return true
		}
	}
	return false
}
