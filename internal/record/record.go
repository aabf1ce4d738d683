// Package record defines the in-memory record model and on-disk framing
// descriptors shared by every layer of the toolkit: readers, writers,
// cursors, and the external sorter.
package record

import "fmt"

// Record is the in-memory unit yielded by a Cursor. Bytes is borrowed
// from the producing cursor's internal buffer and is only valid until
// the next call that advances that cursor (or one of its ancestors, for
// a MultiCursor). Tag is caller-assigned metadata — MultiCursor uses it
// as a secondary sort key when callers wire it up via Comparator.
type Record struct {
	Bytes []byte
	Tag   int32
}

// Len returns the record length. Defined mainly so call sites read
// naturally as rec.Len() rather than len(rec.Bytes).
func (r Record) Len() int {
	return len(r.Bytes)
}

// Clone copies the borrowed bytes into a new, owned slice. Callers that
// need a Record to outlive the next advance on its cursor must Clone it.
func (r Record) Clone() Record {
	b := make([]byte, len(r.Bytes))
	copy(b, r.Bytes)
	return Record{Bytes: b, Tag: r.Tag}
}

// Kind identifies which on-disk framing convention a FormatDescriptor
// describes.
type Kind int

const (
	// Prefix frames each record with a little-endian uint32 length.
	Prefix Kind = iota
	// Delimited terminates each record with a single delimiter byte.
	Delimited
	// Fixed frames every record as exactly N bytes.
	Fixed
)

// FormatDescriptor is a tagged value describing one of the three framing
// conventions. Only the fields relevant to Kind are meaningful.
type FormatDescriptor struct {
	Kind      Kind
	FixedSize int  // valid when Kind == Fixed
	Delim     byte // valid when Kind == Delimited
	CSVMode   bool // valid when Kind == Delimited: quote-aware parsing
}

// NewPrefixFormat returns a length-prefixed FormatDescriptor.
func NewPrefixFormat() FormatDescriptor {
	return FormatDescriptor{Kind: Prefix}
}

// NewFixedFormat returns a FormatDescriptor for fixed-size records of n bytes.
func NewFixedFormat(n int) FormatDescriptor {
	return FormatDescriptor{Kind: Fixed, FixedSize: n}
}

// NewDelimitedFormat returns a FormatDescriptor for records terminated by d.
// When csvMode is set, a double quote opens a quoted region in which d is
// ignored and "" denotes an embedded literal quote.
func NewDelimitedFormat(d byte, csvMode bool) FormatDescriptor {
	return FormatDescriptor{Kind: Delimited, Delim: d, CSVMode: csvMode}
}

// Encode maps a FormatDescriptor onto a single signed integer using the
// on-disk options-file convention described in the data model: 0 for
// Prefix, a positive integer for Fixed(n), and a negative integer for
// Delimited, where the csv flag is carried by offsetting the delimiter
// byte by 256 before negating. This encoding must round-trip exactly for
// any options file written by an older or newer build of this toolkit.
func (f FormatDescriptor) Encode() int32 {
	switch f.Kind {
	case Prefix:
		return 0
	case Fixed:
		return int32(f.FixedSize)
	case Delimited:
		v := int32(f.Delim)
		if f.CSVMode {
			v += 256
		}
		return -v
	default:
		panic(fmt.Sprintf("record: unknown format kind %d", f.Kind))
	}
}

// DecodeFormat reverses Encode.
func DecodeFormat(v int32) FormatDescriptor {
	switch {
	case v == 0:
		return NewPrefixFormat()
	case v > 0:
		return NewFixedFormat(int(v))
	default:
		neg := -v
		csvMode := false
		if neg >= 256 {
			csvMode = true
			neg -= 256
		}
		return NewDelimitedFormat(byte(neg), csvMode)
	}
}

// FileInfo describes one file discovered by a directory scan or supplied
// directly to a ListCursor. Tag defaults to zero and is writable by
// callers for their own bookkeeping (e.g. carrying a partition id).
type FileInfo struct {
	Filename string
	Size     int64
	ModTime  int64 // seconds since epoch
	Tag      int32
}
