// Package container implements the "Master of Magic" binary container
// format: a fixed 46-byte header followed by a trailing, zlib-compressed
// entry table. ArchiveReader parses it; ArchiveWriter quick-merges new
// entries into an existing one without a full repack.
package container

import (
	"fmt"
	"io"
	"os"

	"github.com/APTlantis/grf-patcher/internal/codec"
)

const (
	// HeaderSize is the fixed size, in bytes, of the container preamble.
	HeaderSize = 46

	signatureLiteral = "Master of Magic"
	signatureField   = 15 // bytes 0..15, NUL-padded
	keyField         = 14 // bytes 15..29

	// Version is the version identifier that follows the header fields
	// this package interprets. Nothing in this package reads or writes
	// it; it is documented for callers that need to report it.
	Version = 0x200
)

// ErrCorrupt reports a malformed container header or table.
type ErrCorrupt struct {
	Reason string
}

func (e *ErrCorrupt) Error() string { return fmt.Sprintf("container corrupt: %s", e.Reason) }

// Header is the parsed, fixed 46-byte container preamble.
type Header struct {
	// EncryptionKey is preserved verbatim on rewrite; this package never
	// interprets it.
	EncryptionKey [keyField]byte
	// TableOffset is relative to the end of the header; the absolute
	// offset of the entry table is TableOffset + HeaderSize.
	TableOffset uint64
	Seed        int32
	RawCount    int32
}

// EffectiveCount is raw_count - seed - 7, the format's file-count quirk.
func (h *Header) EffectiveCount() int32 {
	return h.RawCount - h.Seed - 7
}

// ReadHeader reads and validates the 46-byte header at the start of path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("container: open: %w", err)
	}
	defer f.Close()

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("container: read header: %w", err)
	}
	return decodeHeader(buf)
}

func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, &ErrCorrupt{Reason: "short header"}
	}

	sig := buf[:signatureField]
	// Signature is a NUL-padded ASCII literal; compare the literal
	// prefix and require the remainder be zero or absent.
	if string(trimNUL(sig)) != signatureLiteral {
		return nil, &ErrCorrupt{Reason: "bad signature"}
	}

	h := &Header{}
	copy(h.EncryptionKey[:], buf[signatureField:signatureField+keyField])

	r := codec.NewReader(buf[30:46])
	h.TableOffset, _ = r.U64()
	h.Seed, _ = r.I32()
	h.RawCount, _ = r.I32()

	if h.EffectiveCount() < 0 {
		return nil, &ErrCorrupt{Reason: "bad count"}
	}
	return h, nil
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// AbsoluteTableOffset is the file offset at which the compressed entry
// table begins.
func (h *Header) AbsoluteTableOffset() int64 {
	return int64(h.TableOffset) + HeaderSize
}
