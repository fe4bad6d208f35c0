// Package download fetches patch package files over HTTP with a rolling
// throughput estimate, throttled progress callbacks, and tmp-file-then-
// rename atomicity.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
)

// Progress is emitted throttled during a download.
type Progress struct {
	Filename   string
	Downloaded int64
	Total      int64
	BytesPerS  float64
	Percentage float64
}

// ProgressFunc receives throttled Progress snapshots. It must not block.
type ProgressFunc func(Progress)

// Downloader fetches single files with retry and tmp-file-then-rename
// semantics; an interrupted download restarts from the first byte rather
// than resuming.
type Downloader struct {
	client       *retryablehttp.Client
	emitInterval time.Duration
	streamRetry  int
}

// New returns a Downloader whose retry policy is exponential backoff
// bounded at retryMax attempts. retryMax also bounds how many times a
// mid-stream read failure (after headers arrived, during io.Copy) restarts
// the whole request with a fresh tmp file — spec.md §4.2/§7's NetworkError
// contract: "each retry starts a fresh file".
func New(retryMax int) *Downloader {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = retryMax
	rc.HTTPClient.Timeout = 0 // overall timeout governed by the caller's context
	return &Downloader{client: rc, emitInterval: 500 * time.Millisecond, streamRetry: retryMax}
}

// Fetch downloads url into destPath, writing to destPath+".part" and
// renaming atomically on success. Progress callbacks are throttled to at
// most once per emitInterval plus a final call at completion. A read
// failure after the response headers arrive — retryablehttp's own retry
// only covers request establishment, not a body already streaming — is
// retried here from scratch: the partial tmp file is discarded and a new
// request issued, up to streamRetry times.
func (d *Downloader) Fetch(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("download: mkdir: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.streamRetry; attempt++ {
		if attempt > 0 {
			slog.Warn("download: retrying after mid-stream failure", "url", url, "attempt", attempt, "err", lastErr)
		}
		if err := d.fetchOnce(ctx, url, destPath, onProgress); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("download: %s: exhausted retries: %w", url, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url, destPath string, onProgress ProgressFunc) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download: build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download: %s: unexpected status %s", url, resp.Status)
	}

	tmpPath := destPath + ".part"
	_ = os.Remove(tmpPath)
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("download: create tmp file: %w", err)
	}

	pr := &throughputReader{
		reader:   resp.Body,
		total:    resp.ContentLength,
		filename: filepath.Base(destPath),
		emit:     onProgress,
		interval: d.emitInterval,
		window:   make([]sample, 0, 32),
	}

	n, copyErr := io.Copy(f, pr)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download: copy body: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download: close tmp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("download: rename into place: %w", err)
	}

	pr.emitFinal(n)
	slog.Debug("download complete", "url", url, "bytes", n, "dest", destPath)
	return nil
}

type sample struct {
	at    time.Time
	bytes int64
}

// throughputReader wraps the response body to track a rolling 500ms
// throughput window and emit throttled progress callbacks.
type throughputReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	filename   string
	emit       ProgressFunc
	lastEmit   time.Time
	interval   time.Duration
	window     []sample
}

func (r *throughputReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.downloaded += int64(n)
		now := time.Now()
		r.window = append(r.window, sample{at: now, bytes: int64(n)})
		r.window = trimWindow(r.window, now)

		if r.emit != nil && (r.lastEmit.IsZero() || now.Sub(r.lastEmit) >= r.interval) {
			r.emit(r.snapshot(r.downloaded))
			r.lastEmit = now
		}
	}
	return n, err
}

func (r *throughputReader) emitFinal(total int64) {
	if r.emit != nil {
		r.emit(r.snapshot(total))
	}
}

func (r *throughputReader) snapshot(downloaded int64) Progress {
	speed := windowThroughput(r.window)
	var pct float64
	if r.total > 0 {
		pct = 100 * float64(downloaded) / float64(r.total)
	}
	return Progress{
		Filename:   r.filename,
		Downloaded: downloaded,
		Total:      r.total,
		BytesPerS:  speed,
		Percentage: pct,
	}
}

const throughputWindow = 500 * time.Millisecond

func trimWindow(window []sample, now time.Time) []sample {
	cut := 0
	for cut < len(window) && now.Sub(window[cut].at) > throughputWindow {
		cut++
	}
	return window[cut:]
}

func windowThroughput(window []sample) float64 {
	if len(window) == 0 {
		return 0
	}
	var total int64
	for _, s := range window {
		total += s.bytes
	}
	span := window[len(window)-1].at.Sub(window[0].at).Seconds()
	if span <= 0 {
		span = throughputWindow.Seconds()
	}
	return math.Max(0, float64(total)/span)
}

// FormatSpeed renders a bytes-per-second rate the way progress logs
// present it, e.g. "4.2 MB/s".
func FormatSpeed(bytesPerSecond float64) string {
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}

// FormatSize renders a byte count, e.g. "128 MB".
func FormatSize(n int64) string {
	return humanize.Bytes(uint64(n))
}
