package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Stdout is the output path that selects standard output.
const Stdout = "-"

// OutputWriter writes a rendered report, compressing it when the file
// name ends in .zst or .gz.
type OutputWriter struct {
	io.Writer
	Compression Compression

	file    *os.File
	tmpPath string
	path    string
	enc     io.WriteCloser
}

// CreateOutput opens path for writing. Files are written to a temporary
// name and renamed into place on Close.
func CreateOutput(path string) (*OutputWriter, error) {
	if path == "" || path == Stdout {
		return &OutputWriter{Writer: os.Stdout}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}

	ow := &OutputWriter{Writer: f, file: f, tmpPath: tmpPath, path: path}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return nil, err
		}
		ow.Writer, ow.enc, ow.Compression = enc, enc, CompressionZstd
	case ".gz":
		gz := gzip.NewWriter(f)
		ow.Writer, ow.enc, ow.Compression = gz, gz, CompressionGzip
	}
	return ow, nil
}

// Close flushes the encoder and moves the file into place.
func (ow *OutputWriter) Close() error {
	if ow.file == nil {
		return nil
	}

	if ow.enc != nil {
		if err := ow.enc.Close(); err != nil {
			ow.abort()
			return fmt.Errorf("finish %s: %w", ow.path, err)
		}
	}
	if err := ow.file.Close(); err != nil {
		os.Remove(ow.tmpPath)
		return err
	}
	// Atomic rename
	return os.Rename(ow.tmpPath, ow.path)
}

// Abort discards a partially written file.
func (ow *OutputWriter) Abort() {
	if ow.file != nil {
		ow.abort()
	}
}

func (ow *OutputWriter) abort() {
	ow.file.Close()
	os.Remove(ow.tmpPath)
}
