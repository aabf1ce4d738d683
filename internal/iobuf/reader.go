// Package iobuf implements BaseReader, the byte-level buffered reader
// that fronts every Cursor: a plain file, an in-memory buffer, or a
// gzip stream. It is deliberately low-level — Framer is the layer that
// turns these byte primitives into records.
package iobuf

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultBufferSize matches CursorOptions' documented default.
const DefaultBufferSize = 128 * 1024

// Options configures how a BaseReader opens its source.
type Options struct {
	BufferSize int  // 0 means DefaultBufferSize
	Gzip       bool // force gzip decompression regardless of extension
}

// BaseReader is a buffered byte reader with three primitives: Read,
// ReadDelimited, and ReadZ. At most one "stashed" null terminator is
// outstanding at a time; every primitive restores the previous stash
// before it does anything else.
type BaseReader struct {
	src    io.Reader
	closer io.Closer // nil when the underlying file/buffer is borrowed

	buf        []byte
	start, end int
	srcEOF     bool

	stashPos  int // -1 when nothing is stashed
	stashByte byte

	overflow []byte
}

// Open opens path as a BaseReader, auto-detecting gzip by the ".gz"
// extension or by opts.Gzip.
func Open(path string, opts Options) (*BaseReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iobuf: open %s: %w", path, err)
	}
	gz := opts.Gzip || strings.HasSuffix(path, ".gz")
	if !gz {
		return newOwned(f, f, opts.BufferSize), nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("iobuf: gzip header %s: %w", path, err)
	}
	return newOwned(zr, closerFunc(func() error {
		zrErr := zr.Close()
		fErr := f.Close()
		if zrErr != nil {
			return zrErr
		}
		return fErr
	}), opts.BufferSize), nil
}

// NewFromReader wraps an already-open reader (e.g. a borrowed file
// descriptor, or a reader another BaseReader/LZ4FrameReader produces).
// closer may be nil if the caller retains ownership.
func NewFromReader(r io.Reader, closer io.Closer, bufSize int) *BaseReader {
	return newOwned(r, closer, bufSize)
}

// NewFromBuffer wraps an in-memory byte slice as a zero-copy source.
// The buffer is borrowed: the caller must keep it alive and must not
// mutate it while the BaseReader is in use.
func NewFromBuffer(data []byte) *BaseReader {
	return &BaseReader{
		src:      bytes.NewReader(nil),
		buf:      data,
		start:    0,
		end:      len(data),
		srcEOF:   true,
		stashPos: -1,
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newOwned(r io.Reader, closer io.Closer, bufSize int) *BaseReader {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &BaseReader{
		src:      r,
		closer:   closer,
		buf:      make([]byte, bufSize),
		stashPos: -1,
	}
}

// Close releases the underlying file descriptor, if owned.
func (r *BaseReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *BaseReader) restoreStash() {
	if r.stashPos >= 0 {
		r.buf[r.stashPos] = r.stashByte
		r.stashPos = -1
	}
}

// fill ensures at least need contiguous bytes are available starting at
// r.start, compacting and growing the buffer as necessary. It returns
// false only when the source is exhausted with fewer than need bytes
// remaining.
func (r *BaseReader) fill(need int) bool {
	if r.end-r.start >= need {
		return true
	}
	if r.start > 0 {
		copy(r.buf, r.buf[r.start:r.end])
		r.end -= r.start
		r.start = 0
	}
	if need > cap(r.buf) {
		r.reinit(need)
	}
	for r.end-r.start < need && !r.srcEOF {
		n, err := r.src.Read(r.buf[r.end:cap(r.buf)])
		r.end += n
		if err != nil {
			r.srcEOF = true
		}
	}
	return r.end-r.start >= need
}

// reinit grows the buffer to at least minCap, promoting a record that
// spans the original buffer's boundary to a larger heap buffer.
func (r *BaseReader) reinit(minCap int) {
	newCap := cap(r.buf) * 2
	if newCap < minCap {
		newCap = minCap
	}
	nb := make([]byte, newCap)
	copy(nb, r.buf[r.start:r.end])
	r.end -= r.start
	r.start = 0
	r.buf = nb
}

// Read returns a pointer to the next n contiguous bytes, or (nil, false)
// if the source is exhausted before n bytes are available. The returned
// slice aliases the internal buffer and is valid until the next call to
// Read, ReadZ, or ReadDelimited.
func (r *BaseReader) Read(n int) ([]byte, bool) {
	r.restoreStash()
	if !r.fill(n) {
		return nil, false
	}
	b := r.buf[r.start : r.start+n]
	r.start += n
	return b, true
}

// ReadZ behaves like Read(n) but also writes a null terminator one byte
// past the returned slice. The original byte at that position (if any)
// is stashed and restored on the next call to any of the three
// primitives.
func (r *BaseReader) ReadZ(n int) ([]byte, bool) {
	r.restoreStash()
	if !r.fill(n) {
		return nil, false
	}
	// Best effort: try to have one more real byte available so the
	// stashed value is meaningful when a following record abuts this one.
	r.fill(n + 1)
	if r.start+n >= cap(r.buf) {
		r.reinit(r.start + n + 1)
	}
	b := r.buf[r.start : r.start+n]
	term := r.start + n
	r.stashByte = r.buf[term]
	r.stashPos = term
	r.buf[term] = 0
	r.start += n
	return b, true
}

// ReadDelimited returns a pointer to the bytes up to but not including
// delim, advancing past the delimiter. When the record fits entirely
// within the internal buffer it is returned zero-copy with a stashed
// null terminator, exactly like ReadZ. When it spans a buffer refill,
// the bytes are copied into a growable overflow buffer owned by this
// BaseReader and are only valid until the next call to ReadDelimited.
//
// required controls what happens when the stream ends before a
// delimiter is found: if required, the partial record is dropped
// (ok=false, droppedPartial=true); otherwise it is returned as the
// final record (ok=true). A clean end of stream with nothing pending
// reports ok=false, droppedPartial=false either way.
func (r *BaseReader) ReadDelimited(delim byte, required bool) (data []byte, ok bool, droppedPartial bool) {
	r.restoreStash()
	r.overflow = r.overflow[:0]

	for {
		if idx := bytes.IndexByte(r.buf[r.start:r.end], delim); idx >= 0 {
			abs := r.start + idx
			if len(r.overflow) == 0 {
				b := r.buf[r.start:abs]
				r.stashByte = r.buf[abs]
				r.stashPos = abs
				r.buf[abs] = 0
				r.start = abs + 1
				return b, true, false
			}
			r.overflow = append(r.overflow, r.buf[r.start:abs]...)
			r.start = abs + 1
			return r.overflow, true, false
		}

		// No delimiter in the currently buffered region: move it to the
		// overflow buffer (growing 1.5x as needed) and try to refill.
		want := len(r.overflow) + (r.end - r.start)
		if cap(r.overflow) < want {
			grown := make([]byte, len(r.overflow), want+want/2+16)
			copy(grown, r.overflow)
			r.overflow = grown
		}
		r.overflow = append(r.overflow, r.buf[r.start:r.end]...)
		r.start = r.end

		if r.srcEOF {
			if len(r.overflow) == 0 {
				return nil, false, false
			}
			if required {
				return nil, false, true
			}
			return r.overflow, true, false
		}
		r.fill(1)
	}
}

// HasMore reports whether at least one more byte is available without
// consuming it. Framer uses this to tell a clean end of stream apart
// from a truncated record header.
func (r *BaseReader) HasMore() bool {
	r.restoreStash()
	return r.fill(1)
}

// PeekByte returns the next byte without consuming it.
func (r *BaseReader) PeekByte() (byte, bool) {
	r.restoreStash()
	if !r.fill(1) {
		return 0, false
	}
	return r.buf[r.start], true
}

// SkipByte consumes one byte previously observed via PeekByte.
func (r *BaseReader) SkipByte() {
	r.start++
}
