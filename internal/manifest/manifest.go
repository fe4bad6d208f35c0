// Package manifest fetches and parses the patch-server manifest: an
// ordered, line-oriented text file naming which patch packages a client
// still needs to apply.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Record is one manifest entry (spec.md §3 PatchRecord).
type Record struct {
	Index           uint32
	Filename        string
	TargetContainer string // optional override of the default container
	ForceExtract    bool
	Hash            string // optional
	Size            uint64 // optional
	HasSize         bool
}

// FetchError wraps a manifest GET failure that isn't a 404.
type FetchError struct {
	URL    string
	Status string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("manifest: fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("manifest: fetch %s: unexpected status %s", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches and parses manifests over HTTP, tolerating a 404 as "no
// patches published" rather than an error.
type Client struct {
	http *retryablehttp.Client
}

// NewClient returns a Client with the spec's 30-second total timeout and
// the engine's own retry budget for transient failures (the retry
// wrapper, not this package, owns backoff policy beyond what
// retryablehttp already applies per attempt).
func NewClient() *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 30 * time.Second
	return &Client{http: rc}
}

// Fetch retrieves and parses the manifest at url. An HTTP 404 yields an
// empty, nil-error result.
func (c *Client) Fetch(url string) ([]Record, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: url, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return Parse(body)
}

// Parse tokenizes a manifest body per spec.md §4.1: `<index> <filename>
// [k=v ...]`, blank lines and `//`/`#`-prefixed comment lines skipped, a
// malformed leading token skipping the line, a single-token line
// defaulting its index to the record's 0-based position among parsed
// lines. The result is stable-sorted by index.
func Parse(body []byte) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var position uint32
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		rec := Record{Filename: fields[0]}
		hasExplicitIndex := len(fields) >= 2
		if hasExplicitIndex {
			idx, err := strconv.ParseUint(fields[0], 10, 32)
			if err != nil {
				continue // malformed leading token: skip the line
			}
			rec.Index = uint32(idx)
			rec.Filename = fields[1]
			for _, kv := range fields[2:] {
				applyOption(&rec, kv)
			}
		} else {
			// single-token line: index defaults to 0-based position
			rec.Index = position
		}

		records = append(records, rec)
		position++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: scan: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Index < records[j].Index
	})
	return records, nil
}

func applyOption(rec *Record, kv string) {
	key, value, ok := strings.Cut(kv, "=")
	if !ok {
		return // malformed k=v pair: ignored
	}
	switch key {
	case "target":
		rec.TargetContainer = value
	case "extract":
		rec.ForceExtract = value == "true"
	case "hash":
		rec.Hash = value
	case "size":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			rec.Size = n
			rec.HasSize = true
		}
	default:
		// unknown keys are ignored silently, per spec.md §4.1
	}
}
