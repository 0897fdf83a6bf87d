package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const logLine = "srcip=10.0.0.1 dstip=10.0.0.2 dstport=22 proto=6\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write([]byte(s))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

func TestOpenLog(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want Compression
	}{
		{"plain", "fw.log", []byte(logLine), CompressionNone},
		{"gzip", "fw.log.gz", gzipBytes(t, logLine), CompressionGzip},
		{"zstd", "fw.log.zst", zstdBytes(t, logLine), CompressionZstd},
		{"gzip without extension", "fw.log", gzipBytes(t, logLine), CompressionGzip},
		{"empty", "empty.log", nil, CompressionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr, err := OpenLog(writeFile(t, tt.file, tt.data))
			if err != nil {
				t.Fatalf("OpenLog error: %v", err)
			}
			defer lr.Close()

			if lr.Compression != tt.want {
				t.Errorf("Compression = %v, want %v", lr.Compression, tt.want)
			}
			got, err := io.ReadAll(lr)
			if err != nil {
				t.Fatalf("read error: %v", err)
			}
			want := logLine
			if tt.data == nil {
				want = ""
			}
			if string(got) != want {
				t.Errorf("content = %q, want %q", got, want)
			}
		})
	}
}

func TestOpenLogMissing(t *testing.T) {
	_, err := OpenLog(filepath.Join(t.TempDir(), "nope.log"))
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestCreateOutput(t *testing.T) {
	tests := []struct {
		name string
		file string
		want Compression
	}{
		{"plain", "report.txt", CompressionNone},
		{"gzip", "report.txt.gz", CompressionGzip},
		{"zstd", "report.txt.zst", CompressionZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", tt.file)
			ow, err := CreateOutput(path)
			if err != nil {
				t.Fatalf("CreateOutput error: %v", err)
			}
			if ow.Compression != tt.want {
				t.Errorf("Compression = %v, want %v", ow.Compression, tt.want)
			}
			io.WriteString(ow, "report body\n")
			if err := ow.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("temporary file left behind")
			}

			lr, err := OpenLog(path)
			if err != nil {
				t.Fatalf("OpenLog error: %v", err)
			}
			defer lr.Close()
			got, _ := io.ReadAll(lr)
			if string(got) != "report body\n" {
				t.Errorf("content = %q", got)
			}
		})
	}
}

func TestCreateOutputAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	ow, err := CreateOutput(path)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(ow, "partial")
	ow.Abort()

	for _, p := range []string{path, path + ".tmp"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist after Abort", p)
		}
	}
}

func TestCreateOutputStdout(t *testing.T) {
	for _, path := range []string{"", Stdout} {
		ow, err := CreateOutput(path)
		if err != nil {
			t.Fatal(err)
		}
		if ow.Writer != os.Stdout {
			t.Errorf("CreateOutput(%q) should write to stdout", path)
		}
		if err := ow.Close(); err != nil {
			t.Errorf("Close on stdout: %v", err)
		}
	}
}
