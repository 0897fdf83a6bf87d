package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Magic headers of the compressed formats OpenLog understands.
var (
	MagicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	MagicGzip = []byte{0x1f, 0x8b}
)

// ErrSourceUnavailable is matched by errors from OpenLog when the input
// cannot be opened.
var ErrSourceUnavailable = errors.New("log source unavailable")

// Stdin is the path that selects standard input.
const Stdin = "-"

// Compression identifies the encoding of a log stream.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// LogReader is a decompressed view of a log file.
type LogReader struct {
	io.Reader
	Compression Compression

	file  *os.File
	gz    *gzip.Reader
	zstd  *zstd.Decoder
	close bool
}

// OpenLog opens path (or stdin for "-") and transparently decompresses
// gzip and zstd content, detected by magic header rather than extension.
func OpenLog(path string) (*LogReader, error) {
	f := os.Stdin
	closeFile := false
	if path != Stdin {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		closeFile = true
	}

	lr, err := newLogReader(f)
	if err != nil {
		if closeFile {
			f.Close()
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	lr.file = f
	lr.close = closeFile
	return lr, nil
}

// NewLogReader wraps r, decompressing it when it starts with a known header.
func NewLogReader(r io.Reader) (*LogReader, error) {
	return newLogReader(r)
}

func newLogReader(r io.Reader) (*LogReader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(len(MagicZstd))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(header, MagicZstd):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return &LogReader{Reader: dec, Compression: CompressionZstd, zstd: dec}, nil

	case bytes.HasPrefix(header, MagicGzip):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return &LogReader{Reader: gz, Compression: CompressionGzip, gz: gz}, nil
	}

	return &LogReader{Reader: br, Compression: CompressionNone}, nil
}

// Close releases the decoder and the underlying file.
func (lr *LogReader) Close() error {
	var err error
	if lr.gz != nil {
		err = lr.gz.Close()
	}
	if lr.zstd != nil {
		lr.zstd.Close()
	}
	if lr.close && lr.file != nil {
		if cerr := lr.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
