package patchpkg

import (
	"archive/zip"
	"fmt"
	"io"
)

// parseZip decodes a standard ZIP-container patch package (spec.md
// §4.3.2). Directory entries are skipped; the ZIP format carries no
// delete directive, so every entry becomes an Upsert.
func parseZip(path string, defaultContainerExists, forceExtract bool) ([]ApplyOp, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("patchpkg: open zip: %w", err)
	}
	defer r.Close()

	var ops []ApplyOp
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("patchpkg: open zip entry %q: %w", zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("patchpkg: read zip entry %q: %w", zf.Name, err)
		}

		name := normalizePath(zf.Name)
		ops = append(ops, ApplyOp{
			Kind:        OpUpsert,
			Path:        name,
			Data:        data,
			Disposition: disposition(name, defaultContainerExists, forceExtract),
		})
	}
	return ops, nil
}
