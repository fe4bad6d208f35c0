// Package patchpkg parses a patch package file — either the legacy
// tagged ASSF container or a standard ZIP archive — into a uniform
// stream of ApplyOp records.
package patchpkg

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Disposition routes a patched entry to the install tree's container
// file or to a loose file on disk.
type Disposition int

const (
	OnFilesystem Disposition = iota
	InsideContainer
)

// OpKind distinguishes an upsert from a delete.
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

// ApplyOp is one normalized patch action.
type ApplyOp struct {
	Kind        OpKind
	Path        string // normalized, '/' separators
	Data        []byte // valid for OpUpsert only
	Disposition Disposition
}

// ErrUnknownFormat is returned when the first 4 bytes match neither the
// legacy magic nor a ZIP signature (a local file header, or the
// end-of-central-directory record of an empty archive).
var ErrUnknownFormat = errors.New("patchpkg: unknown package format")

// UnsupportedModeError reports a legacy-format mode other than 0x30.
type UnsupportedModeError struct {
	Mode uint16
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("patchpkg: unsupported legacy mode 0x%02x", e.Mode)
}

const legacyMagic = "ASSF"

// zip local file header signature, little-endian "PK\x03\x04".
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// zip end-of-central-directory signature, little-endian "PK\x05\x06" —
// the only bytes present in a genuinely empty ZIP archive (no local file
// headers at all).
var zipEmptyMagic = []byte{'P', 'K', 0x05, 0x06}

// Open sniffs the package's magic bytes and returns its normalized
// operations. defaultContainerExists tells the disposition rule (shared
// by both formats) whether the install tree's default container is
// present: entries under "data/" go InsideContainer only when it is,
// unless forceExtract overrides that to always route OnFilesystem
// (spec.md §3: manifest record "extract=true").
func Open(path string, defaultContainerExists, forceExtract bool) ([]ApplyOp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("patchpkg: open: %w", err)
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := f.Read(magic); err != nil {
		return nil, fmt.Errorf("patchpkg: read magic: %w", err)
	}

	if bytes.Equal(magic, []byte(legacyMagic)) {
		return parseLegacy(path, defaultContainerExists, forceExtract)
	}
	if bytes.Equal(magic, zipMagic) || bytes.Equal(magic, zipEmptyMagic) {
		return parseZip(path, defaultContainerExists, forceExtract)
	}
	return nil, ErrUnknownFormat
}

func disposition(path string, defaultContainerExists, forceExtract bool) Disposition {
	if forceExtract {
		return OnFilesystem
	}
	if defaultContainerExists && strings.HasPrefix(path, "data/") {
		return InsideContainer
	}
	return OnFilesystem
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
