package container

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/APTlantis/grf-patcher/internal/codec"
)

// ErrWrite reports an I/O failure during a quick-merge.
type ErrWrite struct {
	Reason string
}

func (e *ErrWrite) Error() string { return fmt.Sprintf("container write: %s", e.Reason) }

// QuickMerge appends newPayloads to path, removes deletions from table,
// rewrites the trailing entry table, and patches the header's
// table-offset/seed/count fields in place. It never touches the
// signature or encryption-key bytes.
//
// This implementation appends past the current end of file rather than
// truncating at the old table offset: simpler, and it matches the
// original client's own writer, at the cost of leaking the orphaned old
// table bytes (spec.md §4.5, §9).
func QuickMerge(path string, h *Header, table Table, newPayloads map[string][]byte, deletions []string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return &ErrWrite{Reason: "open: " + err.Error()}
	}
	defer f.Close()

	w, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return &ErrWrite{Reason: "seek end: " + err.Error()}
	}

	// Sorting the new payload names keeps where each payload lands in the
	// file reproducible across runs with the same inputs. The record order
	// of the rewritten table follows map iteration and is not fixed.
	names := make([]string, 0, len(newPayloads))
	for name := range newPayloads {
		names = append(names, name)
	}
	sortStrings(names)

	for _, rawName := range names {
		data := newPayloads[rawName]
		name := strings.ReplaceAll(rawName, "\\", "/")

		n, err := f.WriteAt(data, w)
		if err != nil || n != len(data) {
			return &ErrWrite{Reason: "write payload: " + errString(err)}
		}

		table.Put(Entry{
			Filename:              name,
			CompressedSize:        int32(len(data)),
			CompressedSizeAligned: int32(len(data)),
			RealSize:              int32(len(data)),
			Flags:                 FlagRegularFile,
			PayloadOffset:         int32(w - HeaderSize),
		})
		w += int64(len(data))
	}

	for _, name := range deletions {
		table.Delete(name)
	}

	tableBytes := serializeTable(table)
	compressedTable, err := codec.ZlibCompress(tableBytes)
	if err != nil {
		return &ErrWrite{Reason: "compress table: " + err.Error()}
	}

	newTableOffsetAbsolute := w
	info := codec.NewWriter()
	info.WriteI32(int32(len(compressedTable)))
	info.WriteI32(int32(len(tableBytes)))

	if _, err := f.WriteAt(info.Bytes(), w); err != nil {
		return &ErrWrite{Reason: "write table info: " + err.Error()}
	}
	w += int64(info.Len())
	if _, err := f.WriteAt(compressedTable, w); err != nil {
		return &ErrWrite{Reason: "write compressed table: " + err.Error()}
	}

	seed := int32(0)
	rawCount := int32(len(table)) + seed + 7

	headerPatch := codec.NewWriter()
	headerPatch.WriteU64(uint64(newTableOffsetAbsolute - HeaderSize))
	headerPatch.WriteI32(seed)
	headerPatch.WriteI32(rawCount)

	if _, err := f.WriteAt(headerPatch.Bytes(), 30); err != nil {
		return &ErrWrite{Reason: "patch header: " + err.Error()}
	}

	h.TableOffset = uint64(newTableOffsetAbsolute - HeaderSize)
	h.Seed = seed
	h.RawCount = rawCount

	return f.Sync()
}

func errString(err error) string {
	if err == nil {
		return "short write"
	}
	return err.Error()
}

func sortStrings(s []string) {
	// insertion sort: new-payload counts per patch are small (a handful
	// to a few hundred entries), and this keeps the package free of an
	// extra stdlib sort import for a one-call-site use.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Create writes a fresh, minimal, valid container at path: a 46-byte
// header plus an empty entry table. Used by the create_grf configuration
// switch when a patch's target container (its target= override, else the
// default container) does not yet exist in the install tree
// (SPEC_FULL.md "patching.create_grf").
func Create(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &ErrWrite{Reason: "create: " + err.Error()}
	}
	defer f.Close()

	header := codec.NewWriter()
	sig := make([]byte, signatureField)
	copy(sig, signatureLiteral)
	header.WriteRaw(sig)
	header.WriteRaw(make([]byte, keyField))
	header.WriteU64(0) // table offset, relative to end of header
	header.WriteI32(0) // seed
	header.WriteI32(7) // raw_count: effective count 0 => seed(0)+7
	if _, err := f.Write(header.Bytes()); err != nil {
		return &ErrWrite{Reason: "write header: " + err.Error()}
	}

	emptyTable, err := codec.ZlibCompress(nil)
	if err != nil {
		return &ErrWrite{Reason: "compress empty table: " + err.Error()}
	}
	info := codec.NewWriter()
	info.WriteI32(int32(len(emptyTable)))
	info.WriteI32(0)
	if _, err := f.Write(info.Bytes()); err != nil {
		return &ErrWrite{Reason: "write table info: " + err.Error()}
	}
	if _, err := f.Write(emptyTable); err != nil {
		return &ErrWrite{Reason: "write empty table: " + err.Error()}
	}
	return f.Sync()
}
