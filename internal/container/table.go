package container

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/APTlantis/grf-patcher/internal/codec"
)

// Entry is one record inside the entry table. Filename keeps its
// canonical case; the table itself is keyed by the lower-cased name.
type Entry struct {
	Filename              string
	CompressedSize        int32
	CompressedSizeAligned int32
	RealSize              int32
	Flags                 uint8
	PayloadOffset         int32 // relative to end of header
}

// FlagRegularFile is bit 0x01 of Entry.Flags.
const FlagRegularFile uint8 = 0x01

// Table is the case-insensitive entry map: key is the ASCII-lowercased
// filename, value keeps the canonical-cased Entry.
type Table map[string]Entry

// lowerASCII lower-cases using ASCII-only rules, since the format
// predates Unicode normalization concerns (spec.md §9).
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Put inserts or overwrites an entry, keyed by its ASCII-lowercased
// filename. A duplicate (case-insensitive) key means the later
// occurrence wins.
func (t Table) Put(e Entry) {
	t[lowerASCII(e.Filename)] = e
}

// Get looks up an entry case-insensitively.
func (t Table) Get(filename string) (Entry, bool) {
	e, ok := t[lowerASCII(filename)]
	return e, ok
}

// Delete removes an entry case-insensitively.
func (t Table) Delete(filename string) {
	delete(t, lowerASCII(filename))
}

// ReadTable reads and parses the entry table for a previously parsed
// Header. Entries are decoded until the decompressed buffer is
// exhausted or the header's effective count is reached, whichever
// comes first; a truncated final record is silently dropped.
func ReadTable(path string, h *Header) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("container: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(h.AbsoluteTableOffset(), io.SeekStart); err != nil {
		return nil, fmt.Errorf("container: seek table: %w", err)
	}

	info := make([]byte, 8)
	if _, err := io.ReadFull(f, info); err != nil {
		return nil, fmt.Errorf("container: read table info: %w", err)
	}
	ir := codec.NewReader(info)
	compressedSize, _ := ir.I32()
	_, _ = ir.I32() // real_size, informational only

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, fmt.Errorf("container: read compressed table: %w", err)
	}

	data, err := decompressTable(compressed)
	if err != nil {
		return nil, &ErrCorrupt{Reason: "table decompress: " + err.Error()}
	}

	return parseTableEntries(data, h.EffectiveCount()), nil
}

func parseTableEntries(data []byte, effectiveCount int32) Table {
	t := make(Table)
	r := codec.NewReader(data)
	var count int32
	for r.Len() > 0 && count < effectiveCount {
		name, err := r.CString()
		if err != nil {
			break // truncated final record: silently dropped
		}
		if r.Len() < 4+4+4+1+4 {
			break
		}
		compSize, _ := r.I32()
		compSizeAligned, _ := r.I32()
		realSize, _ := r.I32()
		flags, _ := r.U8()
		payloadOffset, _ := r.I32()

		t.Put(Entry{
			Filename:              strings.ReplaceAll(name, "\\", "/"),
			CompressedSize:        compSize,
			CompressedSizeAligned: compSizeAligned,
			RealSize:              realSize,
			Flags:                 flags,
			PayloadOffset:         payloadOffset,
		})
		count++
	}
	return t
}

func decompressTable(compressed []byte) ([]byte, error) {
	return codec.ZlibDecompress(compressed)
}

// serializeTable packs entries back-to-back in the on-disk table layout
// (no alignment between records), the inverse of parseTableEntries.
func serializeTable(t Table) []byte {
	w := codec.NewWriter()
	for _, e := range t {
		w.WriteCString(e.Filename)
		w.WriteI32(e.CompressedSize)
		w.WriteI32(e.CompressedSizeAligned)
		w.WriteI32(e.RealSize)
		w.WriteU8(e.Flags)
		w.WriteI32(e.PayloadOffset)
	}
	return w.Bytes()
}
