package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchWritesFileAndRenames(t *testing.T) {
	body := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out", "patch0001.thor")
	d := New(2)

	var lastProgress Progress
	err := d.Fetch(context.Background(), srv.URL, dest, func(p Progress) {
		lastProgress = p
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if string(got) != body {
		t.Fatalf("content mismatch: got %d bytes, want %d", len(got), len(body))
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected .part file to be gone after rename")
	}
	if lastProgress.Downloaded != int64(len(body)) {
		t.Fatalf("expected final progress to report full size, got %+v", lastProgress)
	}
}

func TestFetchNonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "patch0001.thor")
	d := New(0)
	if err := d.Fetch(context.Background(), srv.URL, dest, nil); err == nil {
		t.Fatalf("expected error for 404 response")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("dest file should not exist after failed fetch")
	}
}

func TestWindowThroughputEmpty(t *testing.T) {
	if got := windowThroughput(nil); got != 0 {
		t.Fatalf("expected 0 throughput for empty window, got %v", got)
	}
}

func TestFormatSpeedAndSize(t *testing.T) {
	if FormatSpeed(1024) == "" {
		t.Fatalf("expected non-empty formatted speed")
	}
	if FormatSize(2048) == "" {
		t.Fatalf("expected non-empty formatted size")
	}
}
