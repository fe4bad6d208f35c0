package container

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCreateReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.grf")
	if err := Create(path); err != nil {
		t.Fatalf("Create: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.EffectiveCount() != 0 {
		t.Fatalf("expected empty container, got effective count %d", h.EffectiveCount())
	}

	table, err := ReadTable(path, h)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(table) != 0 {
		t.Fatalf("expected empty table, got %d entries", len(table))
	}
}

func TestQuickMergeInsertsAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.grf")
	if err := Create(path); err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	table, err := ReadTable(path, h)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}

	payloads := map[string][]byte{
		"data/new.gat": bytes.Repeat([]byte{0xAB}, 32),
	}
	if err := QuickMerge(path, h, table, payloads, nil); err != nil {
		t.Fatalf("QuickMerge: %v", err)
	}

	h2, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader after merge: %v", err)
	}
	table2, err := ReadTable(path, h2)
	if err != nil {
		t.Fatalf("ReadTable after merge: %v", err)
	}

	entry, ok := table2.Get("DATA/NEW.GAT")
	if !ok {
		t.Fatalf("expected case-insensitive lookup to find merged entry")
	}
	if entry.Filename != "data/new.gat" {
		t.Fatalf("expected canonical case preserved, got %q", entry.Filename)
	}
	if entry.RealSize != 32 {
		t.Fatalf("expected real_size=32, got %d", entry.RealSize)
	}

	got, err := readPayload(path, h2, entry)
	if err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	if !bytes.Equal(got, payloads["data/new.gat"]) {
		t.Fatalf("payload mismatch at recorded offset")
	}
}

func TestQuickMergeDeletionCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.grf")
	if err := Create(path); err != nil {
		t.Fatalf("Create: %v", err)
	}
	h, _ := ReadHeader(path)
	table, _ := ReadTable(path, h)

	if err := QuickMerge(path, h, table, map[string][]byte{
		"data/old.bmp": {1, 2, 3},
	}, nil); err != nil {
		t.Fatalf("seed QuickMerge: %v", err)
	}

	h2, _ := ReadHeader(path)
	table2, _ := ReadTable(path, h2)
	if err := QuickMerge(path, h2, table2, nil, []string{"DATA/OLD.BMP"}); err != nil {
		t.Fatalf("delete QuickMerge: %v", err)
	}

	h3, _ := ReadHeader(path)
	table3, _ := ReadTable(path, h3)
	if _, ok := table3.Get("data/old.bmp"); ok {
		t.Fatalf("expected deleted entry to be absent")
	}
}

func TestBadSignatureIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.grf")
	if err := os.WriteFile(path, make([]byte, HeaderSize), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadHeader(path); err == nil {
		t.Fatalf("expected ErrCorrupt for all-zero header")
	}
}

func readPayload(path string, h *Header, e Entry) ([]byte, error) {
	buf := make([]byte, e.RealSize)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.ReadAt(buf, int64(e.PayloadOffset)+HeaderSize); err != nil {
		return nil, err
	}
	return buf, nil
}
