package patchpkg

import (
	"fmt"
	"io"
	"os"

	"github.com/APTlantis/grf-patcher/internal/codec"
)

const (
	legacyModeOffset       = 0x1D
	legacyTargetLenOffset  = 0x1F
	legacyTargetNameOffset = 0x20
	legacySupportedMode    = 0x30

	legacyEntryFlagFile   = 1
	legacyEntryFlagDelete = 5
)

// parseLegacy decodes the ASSF-tagged legacy package format (spec.md
// §4.3.1): a fixed-position header naming a table offset and length,
// followed by a zlib-compressed, back-to-back-packed entry table; each
// file entry's payload is read from its own offset in the package file.
func parseLegacy(path string, defaultContainerExists, forceExtract bool) ([]ApplyOp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("patchpkg: open legacy: %w", err)
	}
	defer f.Close()

	head := make([]byte, legacyTargetLenOffset+1) // up through target_name_len byte, not yet the name itself
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, fmt.Errorf("patchpkg: read legacy header: %w", err)
	}

	mode := codec.NewReader(head[legacyModeOffset : legacyModeOffset+2])
	modeVal, _ := mode.U16()
	if modeVal != legacySupportedMode {
		return nil, &UnsupportedModeError{Mode: modeVal}
	}

	targetNameLen := int(head[legacyTargetLenOffset])

	rest := make([]byte, targetNameLen+8) // target_container_name + two u32s
	if _, err := io.ReadFull(f, rest); err != nil {
		return nil, fmt.Errorf("patchpkg: read legacy target/table info: %w", err)
	}
	r := codec.NewReader(rest)
	_, _ = r.Bytes(targetNameLen) // target_container_name: informational, carried by PatchRecord.target_container instead
	tableCompressedLen, _ := r.U32()
	tableOffset, _ := r.U32()

	if _, err := f.Seek(int64(tableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("patchpkg: seek table: %w", err)
	}
	compressedTable := make([]byte, tableCompressedLen)
	if _, err := io.ReadFull(f, compressedTable); err != nil {
		return nil, fmt.Errorf("patchpkg: read table: %w", err)
	}
	tableData, err := codec.ZlibDecompress(compressedTable)
	if err != nil {
		return nil, fmt.Errorf("patchpkg: decompress table: %w", err)
	}

	var ops []ApplyOp
	tr := codec.NewReader(tableData)
	for tr.Len() > 0 {
		nameLen, err := tr.U8()
		if err != nil {
			break
		}
		nameBytes, err := tr.Bytes(int(nameLen))
		if err != nil {
			break
		}
		name := normalizePath(string(nameBytes))

		flags, err := tr.U8()
		if err != nil {
			break
		}

		if tr.Len() < 12 {
			break
		}
		payloadOffset, _ := tr.U32()
		payloadCompressedLen, _ := tr.U32()
		_, _ = tr.U32() // payload_real_len: informational only

		switch flags {
		case legacyEntryFlagFile:
			data, err := readLegacyPayload(f, int64(payloadOffset), int(payloadCompressedLen))
			if err != nil {
				return nil, err
			}
			ops = append(ops, ApplyOp{
				Kind:        OpUpsert,
				Path:        name,
				Data:        data,
				Disposition: disposition(name, defaultContainerExists, forceExtract),
			})
		case legacyEntryFlagDelete:
			ops = append(ops, ApplyOp{
				Kind:        OpDelete,
				Path:        name,
				Disposition: disposition(name, defaultContainerExists, forceExtract),
			})
		default:
			// unrecognized flag value: ignored, per spec.md §4.3.1
		}
	}

	return ops, nil
}

// readLegacyPayload seeks to offset, reads length compressed bytes, and
// attempts zlib decompression. On decompression failure the bytes are
// treated as stored verbatim — "zlib preferred, raw fallback" (spec.md
// §9 Open Question). The seek/read is save-and-restore around the
// current position so table iteration stays sequential.
func readLegacyPayload(f *os.File, offset int64, length int) ([]byte, error) {
	saved, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("patchpkg: save position: %w", err)
	}
	defer f.Seek(saved, io.SeekStart)

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("patchpkg: seek payload: %w", err)
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("patchpkg: read payload: %w", err)
	}

	if decoded, err := codec.ZlibDecompress(raw); err == nil {
		return decoded, nil
	}
	return raw, nil
}
