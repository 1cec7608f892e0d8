package mrt

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// OpenGzip opens the gzip-compressed MRT dump at path and returns a
// ReadCloser over its decompressed contents. MRT collector dumps are
// conventionally distributed gzip-compressed.
func OpenGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipFile{gz: gz, f: f}, nil
}

// gzipFile closes both the gzip reader and the underlying file handle.
type gzipFile struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) {
	return g.gz.Read(p)
}

func (g *gzipFile) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}
