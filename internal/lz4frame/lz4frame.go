// Package lz4frame adapts the LZ4 frame codec (github.com/pierrec/lz4/v4)
// to the toolkit's BaseReader/Writer primitives. The frame format itself
// — 7-byte magic/header, length-prefixed blocks, a stored-uncompressed
// high bit, a zero length terminating the stream — is the Codec
// collaborator's concern (spec §1 lists LZ4 frame parsing as out of
// scope); this package only wires that collaborator into the toolkit's
// buffered-reader and run-spill paths.
package lz4frame

import (
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/recordflow/recordflow/internal/iobuf"
)

// BlockSize mirrors the ExtendedWriterOptions block-size enum.
type BlockSize int

const (
	Block64KB BlockSize = iota
	Block256KB
	Block1MB
	Block4MB
)

func (b BlockSize) option() lz4.BlockSizeOption {
	switch b {
	case Block256KB:
		return lz4.BlockSizeOption(lz4.Block256Kb)
	case Block1MB:
		return lz4.BlockSizeOption(lz4.Block1Mb)
	case Block4MB:
		return lz4.BlockSizeOption(lz4.Block4Mb)
	default:
		return lz4.BlockSizeOption(lz4.Block64Kb)
	}
}

// WriterOptions configures an LZ4 frame writer.
type WriterOptions struct {
	Level             lz4.CompressionLevel
	BlockSize         BlockSize
	BlockChecksum     bool
	ContentChecksum   bool
}

// NewWriter returns an LZ4 frame writer over w, applying opts. Callers
// must Close it to flush the trailing empty block that terminates the
// frame.
func NewWriter(w io.Writer, opts WriterOptions) (*lz4.Writer, error) {
	lw := lz4.NewWriter(w)
	options := []lz4.Option{
		opts.BlockSize.option(),
		lz4.BlockChecksumOption(opts.BlockChecksum),
		lz4.ChecksumOption(opts.ContentChecksum),
	}
	if opts.Level > 0 {
		options = append(options, lz4.CompressionLevelOption(opts.Level))
	}
	if err := lw.Apply(options...); err != nil {
		return nil, fmt.Errorf("lz4frame: apply options: %w", err)
	}
	return lw, nil
}

// ReaderOptions configures how decode failures are handled, matching the
// CodecError entry in the error taxonomy: abort, or truncate to EOF.
type ReaderOptions struct {
	AbortOnError bool
	BufferSize   int
}

// Open opens path as an LZ4-framed source and returns a BaseReader over
// its decompressed bytes, ready for a Framer to consume.
func Open(path string, opts ReaderOptions) (*iobuf.BaseReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lz4frame: open %s: %w", path, err)
	}
	lr := lz4.NewReader(f)
	src := &truncatingReader{r: lr, abortOnError: opts.AbortOnError}
	closer := closerFunc(func() error { return f.Close() })
	return iobuf.NewFromReader(src, closer, opts.BufferSize), nil
}

// OpenOver wraps an already-open raw reader (e.g. a file descriptor the
// caller owns) as an LZ4-framed BaseReader.
func OpenOver(r io.Reader, opts ReaderOptions) *iobuf.BaseReader {
	lr := lz4.NewReader(r)
	src := &truncatingReader{r: lr, abortOnError: opts.AbortOnError}
	return iobuf.NewFromReader(src, nil, opts.BufferSize)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// truncatingReader turns a mid-stream CodecError into a clean EOF unless
// abortOnError is set, per the error taxonomy in §7 of the spec.
type truncatingReader struct {
	r            io.Reader
	abortOnError bool
	truncated    bool
}

func (t *truncatingReader) Read(p []byte) (int, error) {
	if t.truncated {
		return 0, io.EOF
	}
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		if t.abortOnError {
			return n, fmt.Errorf("lz4frame: codec error: %w", err)
		}
		t.truncated = true
		if n > 0 {
			return n, nil
		}
		return n, io.EOF
	}
	return n, err
}
