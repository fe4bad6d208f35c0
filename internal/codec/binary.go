// Package codec provides the little-endian primitive encoding and zlib
// helpers shared by the container and patch-package parsers. Every fixed
// binary layout in this repository (the 46-byte container header, the
// container entry table, the legacy ASSF package header and table) is
// read and written through these helpers so the byte math lives in one
// place.
package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrShortRead is returned when a buffer does not contain enough bytes
// for the primitive being decoded.
var ErrShortRead = errors.New("codec: short read")

// Reader wraps a byte slice with a cursor for sequential little-endian
// decoding, the same manual-offset style the legacy package header and
// the container entry table use.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Seek repositions the cursor to an absolute offset within buf.
func (r *Reader) Seek(pos int) { r.pos = pos }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrShortRead
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// I32 reads a little-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// CString reads bytes up to (and consuming) the next NUL byte, permissive
// UTF-8 decode as-is. Used for entry-table filenames.
func (r *Reader) CString() (string, error) {
	start := r.pos
	for r.pos < len(r.buf) {
		if r.buf[r.pos] == 0 {
			s := string(r.buf[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	// Unterminated trailing string: reported as ErrShortRead, so callers
	// parsing entry tables can silently drop a truncated final record, per
	// the container table's "truncated final record is silently dropped"
	// rule.
	return "", ErrShortRead
}

// Writer accumulates little-endian encoded primitives into a byte buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteRaw appends raw bytes verbatim.
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

// WriteU8 appends one byte.
func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

// WriteU32 appends a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteI32 appends a little-endian int32.
func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

// WriteU64 appends a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteCString appends s followed by a terminating NUL.
func (w *Writer) WriteCString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// WriteAt writes b to w at the given absolute offset, for in-place fixups
// such as rewriting a header's table-offset/seed/count fields.
func WriteAt(w io.WriterAt, offset int64, b []byte) error {
	_, err := w.WriteAt(b, offset)
	return err
}
