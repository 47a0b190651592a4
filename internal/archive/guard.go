package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/amplimindcc/backend-sub000/internal/errdefs"
)

// DefaultMaxBytes caps the cumulative decompressed size of an archive.
const DefaultMaxBytes = 100 << 20 // 100 MiB

// ReadmePath is the synthetic file added to every published repository;
// uploaded archives may not carry an entry under this name.
const ReadmePath = "README.md"

var nestedArchiveSuffixes = []string{
	".zip", ".jar", ".rar", ".7z", ".tar", ".gz", ".tgz",
}

// File is one accepted archive entry. Content is re-read from the archive
// on demand so callers holding a Bundle do not pin every decompressed byte.
type File struct {
	Path string
	open func() (io.ReadCloser, error)
}

func (f File) Bytes() ([]byte, error) {
	rc, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, errdefs.ErrMalformedArchive)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, errdefs.ErrMalformedArchive)
	}
	return data, nil
}

type Bundle struct {
	files []File
}

func (b *Bundle) Files() []File {
	return b.files
}

func (b *Bundle) Len() int {
	return len(b.files)
}

// Guard validates an uploaded archive before any byte of it is trusted.
type Guard struct {
	maxBytes int64
}

func NewGuard(maxBytes int64) *Guard {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Guard{maxBytes: maxBytes}
}

// Validate streams the archive entry by entry, rejecting nested containers,
// entries colliding with the synthetic README and archives whose cumulative
// decompressed size exceeds the ceiling. Decompression stops the moment the
// ceiling is crossed; the offending entry is never fully read.
func (g *Guard) Validate(archive []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("not a readable zip archive: %w", errdefs.ErrMalformedArchive)
	}

	var total int64
	var files []File

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}

		name := path.Clean(zf.Name)
		if strings.HasPrefix(name, "..") || path.IsAbs(name) {
			return nil, fmt.Errorf("entry %q escapes the archive root: %w", zf.Name, errdefs.ErrUnsafeArchive)
		}

		lower := strings.ToLower(name)
		for _, suffix := range nestedArchiveSuffixes {
			if strings.HasSuffix(lower, suffix) {
				return nil, fmt.Errorf("nested archive entry %q: %w", name, errdefs.ErrUnsafeArchive)
			}
		}

		if strings.EqualFold(name, ReadmePath) {
			return nil, fmt.Errorf("entry %q collides with the generated readme: %w", name, errdefs.ErrValidation)
		}

		n, err := g.measure(zf, g.maxBytes-total)
		if err != nil {
			return nil, err
		}
		total += n
		if total > g.maxBytes {
			return nil, fmt.Errorf("decompressed size exceeds %d bytes at entry %q: %w",
				g.maxBytes, name, errdefs.ErrUnsafeArchive)
		}

		open := zf.Open
		files = append(files, File{Path: name, open: open})
	}

	return &Bundle{files: files}, nil
}

// measure decompresses one entry against the remaining budget, reading at
// most one byte past it so a lying size header cannot exhaust resources.
func (g *Guard) measure(zf *zip.File, budget int64) (int64, error) {
	rc, err := zf.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", zf.Name, errdefs.ErrMalformedArchive)
	}
	defer rc.Close()

	n, err := io.Copy(io.Discard, io.LimitReader(rc, budget+1))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", zf.Name, errdefs.ErrMalformedArchive)
	}
	return n, nil
}
