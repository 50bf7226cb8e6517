// Package output creates the text reports written for each run,
// optionally compressed, and formats numbers the way the reports
// expect them.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec used for a report file
type Compression string

// Supported compressions
const (
	None Compression = "none"
	LZ4  Compression = "lz4"
	Zstd Compression = "zstd"
)

// ErrUnknownCompression means the compression name is not supported
var ErrUnknownCompression = errors.New("unknown compression")

// ParseCompression converts a configuration value into a Compression.
// The empty string means None.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case "", None:
		return None, nil
	case LZ4:
		return LZ4, nil
	case Zstd:
		return Zstd, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
}

// Ext returns the file name extension for the compression
func (c Compression) Ext() string {
	switch c {
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	}
	return ""
}

// File is a buffered, optionally compressed output file
type File struct {
	Path string
	f    *os.File
	zw   io.WriteCloser
	buf  *bufio.Writer
}

// Create creates path with the extension of c appended
func Create(path string, c Compression) (*File, error) {
	path += c.Ext()
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	out := &File{Path: path, f: f}
	var w io.Writer = f
	switch c {
	case LZ4:
		out.zw = lz4.NewWriter(f)
		w = out.zw
	case Zstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		out.zw = zw
		w = zw
	}
	out.buf = bufio.NewWriterSize(w, 1<<16)
	return out, nil
}

func (o *File) Write(p []byte) (int, error) {
	return o.buf.Write(p)
}

// WriteString writes s, so File can be used with io.StringWriter
func (o *File) WriteString(s string) (int, error) {
	return o.buf.WriteString(s)
}

// Close flushes all buffered data and closes the file
func (o *File) Close() error {
	err := o.buf.Flush()
	if o.zw != nil {
		if zerr := o.zw.Close(); err == nil {
			err = zerr
		}
	}
	if ferr := o.f.Close(); err == nil {
		err = ferr
	}
	return err
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// Open opens a file written by Create, decompressing according to
// the file name extension
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, LZ4.Ext()):
		return readCloser{Reader: lz4.NewReader(f), close: f.Close}, nil
	case strings.HasSuffix(path, Zstd.Ext()):
		d, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return readCloser{Reader: d, close: func() error {
			d.Close()
			return f.Close()
		}}, nil
	}
	return f, nil
}

// Float formats v with the shortest representation that reads back
// to the same value. Integral values keep a ".0" suffix, values below
// 1e-4 or from 1e16 up use an exponent.
func Float(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	a := math.Abs(v)
	if a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
