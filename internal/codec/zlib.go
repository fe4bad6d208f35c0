package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ZlibDecompress inflates a zlib-wrapped payload. The returned error is
// the raw decompression error; callers that need "zlib preferred, raw
// fallback" tolerance (the legacy package format, spec-documented as an
// intentional ambiguity) decide what to do with it themselves.
func ZlibDecompress(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ZlibCompress deflates data at the default compression level, matching
// the container format's table encoding.
func ZlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
