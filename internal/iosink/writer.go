// Package iosink implements Writer, the buffered, format-aware output
// side of the toolkit: it fronts a plain file, a gzip stream, or an
// LZ4 frame, and knows how to serialize a record.Record according to a
// FormatDescriptor. Safe-mode publication and ack-file signaling live
// here too, since both are properties of how a file is closed.
package iosink

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/recordflow/recordflow/internal/lz4frame"
	"github.com/recordflow/recordflow/internal/record"
)

// DefaultBufferSize matches BaseReader's.
const DefaultBufferSize = 128 * 1024

// Options configures how a Writer opens and frames its output.
type Options struct {
	Format record.FormatDescriptor

	Gzip bool
	LZ4  bool

	LZ4BlockSize lz4frame.BlockSize

	// Safe opens "<name>-safe" and renames it to name on a successful
	// Close.
	Safe bool
	// Ack touches "<name>.ack" after a successful Close.
	Ack bool
	// Append opens the destination for append instead of truncating it.
	// Mutually exclusive with LZ4, which cannot resume mid-frame.
	Append bool

	BufferSize int
}

// Writer is a buffered, format-aware record sink.
type Writer struct {
	finalPath string
	openPath  string

	file *os.File
	locked bool

	buf  *bufio.Writer
	lzw  *lz4.Writer
	gzw  io.WriteCloser

	opts Options
	err  error
}

// Create opens a new Writer at path per opts. A ConfigError-class
// combination (LZ4 with Append) is rejected at construction, matching
// the spec's "abort at construction" policy for invalid combinations.
func Create(path string, opts Options) (*Writer, error) {
	if opts.Append && opts.LZ4 {
		return nil, fmt.Errorf("iosink: append mode is not allowed with LZ4 framing (would break frame continuity)")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	openPath := path
	if opts.Safe {
		openPath = path + "-safe"
	}

	flags := os.O_CREATE | os.O_WRONLY
	if opts.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(openPath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("iosink: open %s: %w", openPath, err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("iosink: lock %s: %w", openPath, err)
	}

	w := &Writer{finalPath: path, openPath: openPath, file: f, locked: true, opts: opts}

	var sink io.Writer = f
	switch {
	case opts.LZ4:
		lzw, err := lz4frame.NewWriter(f, lz4frame.WriterOptions{BlockSize: opts.LZ4BlockSize})
		if err != nil {
			_ = w.abort()
			return nil, err
		}
		w.lzw = lzw
		sink = lzw
	case opts.Gzip:
		gzw := newGzipWriter(f)
		w.gzw = gzw
		sink = gzw
	}
	w.buf = bufio.NewWriterSize(sink, opts.BufferSize)
	return w, nil
}

func (w *Writer) abort() error {
	if w.locked {
		_ = unlockFile(w.file)
	}
	err := w.file.Close()
	_ = os.Remove(w.openPath)
	return err
}

// Err returns the first write error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// WriteRecord serializes rec according to the configured format and
// returns false (recording the error for Err) on failure.
func (w *Writer) WriteRecord(rec record.Record) bool {
	if w.err != nil {
		return false
	}
	switch w.opts.Format.Kind {
	case record.Prefix:
		return w.writePrefixFramed(rec.Bytes)
	case record.Fixed:
		if len(rec.Bytes) != w.opts.Format.FixedSize {
			w.err = fmt.Errorf("iosink: record length %d does not match fixed size %d", len(rec.Bytes), w.opts.Format.FixedSize)
			return false
		}
		return w.writeRaw(rec.Bytes)
	case record.Delimited:
		if w.opts.Format.CSVMode {
			return w.writeCSVField(rec.Bytes)
		}
		if !w.writeRaw(rec.Bytes) {
			return false
		}
		return w.writeByte(w.opts.Format.Delim)
	default:
		w.err = fmt.Errorf("iosink: unknown format kind %d", w.opts.Format.Kind)
		return false
	}
}

// Write emits raw, unframed bytes. Valid only on a Writer not driving
// an ExternalSorter, per the spec's "extra unframed primitives" note.
func (w *Writer) Write(b []byte) bool {
	return w.writeRaw(b)
}

// WritePrefix writes b as a length-prefixed record regardless of the
// Writer's configured format.
func (w *Writer) WritePrefix(b []byte) bool {
	return w.writePrefixFramed(b)
}

// WriteDelimiter writes a single raw delimiter byte.
func (w *Writer) WriteDelimiter(d byte) bool {
	return w.writeByte(d)
}

func (w *Writer) writePrefixFramed(b []byte) bool {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	if !w.writeRaw(hdr[:]) {
		return false
	}
	return w.writeRaw(b)
}

func (w *Writer) writeCSVField(b []byte) bool {
	needsQuote := false
	for _, c := range b {
		if c == w.opts.Format.Delim || c == '"' || c == '\n' || c == '\r' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		if !w.writeRaw(b) {
			return false
		}
		return w.writeByte(w.opts.Format.Delim)
	}
	if !w.writeByte('"') {
		return false
	}
	for _, c := range b {
		if c == '"' {
			if !w.writeRaw([]byte{'"', '"'}) {
				return false
			}
			continue
		}
		if !w.writeByte(c) {
			return false
		}
	}
	if !w.writeByte('"') {
		return false
	}
	return w.writeByte(w.opts.Format.Delim)
}

func (w *Writer) writeRaw(b []byte) bool {
	if w.err != nil {
		return false
	}
	if _, err := w.buf.Write(b); err != nil {
		w.err = err
		return false
	}
	return true
}

func (w *Writer) writeByte(b byte) bool {
	if w.err != nil {
		return false
	}
	if err := w.buf.WriteByte(b); err != nil {
		w.err = err
		return false
	}
	return true
}

// Close flushes buffered output, closes any compressor, releases the
// lock, and applies safe-mode rename and ack-file signaling. It is
// always safe to call, even after a write failure: cleanup must
// succeed regardless of w.err.
func (w *Writer) Close() error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	note(w.buf.Flush())
	if w.lzw != nil {
		note(w.lzw.Close())
	}
	if w.gzw != nil {
		note(w.gzw.Close())
	}
	if w.locked {
		note(unlockFile(w.file))
	}
	note(w.file.Close())

	if firstErr == nil && w.err == nil {
		if w.opts.Safe {
			note(os.Rename(w.openPath, w.finalPath))
		}
		if firstErr == nil && w.opts.Ack {
			note(touchAck(w.finalPath))
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return w.err
}

func touchAck(path string) error {
	f, err := os.OpenFile(path+".ack", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func newGzipWriter(f *os.File) io.WriteCloser {
	return gzip.NewWriter(f)
}
