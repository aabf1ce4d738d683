// Package framer turns a buffered byte source into a sequence of
// records according to a FormatDescriptor: length-prefixed,
// delimited (optionally CSV-quote-aware), or fixed size.
package framer

import (
	"encoding/binary"
	"errors"

	"github.com/recordflow/recordflow/internal/iobuf"
	"github.com/recordflow/recordflow/internal/record"
)

// ErrPartialRecord is returned by Next when the stream ends mid-record
// and AbortOnPartial is set.
var ErrPartialRecord = errors.New("framer: partial record at end of stream")

// Options configures a Framer. FullRecordRequired mirrors
// CursorOptions.full_record_required: when true, a trailing partial
// record is dropped; when false (the zero value), a trailing partial
// delimited or CSV record is emitted as-is. Prefix and Fixed framing
// drop a partial record whatever this field says. AbortOnPartial takes
// precedence: when set, a partial record raises ErrPartialRecord
// instead of being dropped or emitted.
type Options struct {
	Format             record.FormatDescriptor
	FullRecordRequired bool
	AbortOnPartial     bool
}

// Framer yields one record at a time from a BaseReader.
type Framer struct {
	src     *iobuf.BaseReader
	opts    Options
	scratch []byte // CSV-mode accumulation buffer, reused across records
}

// New wraps src with a Framer driven by opts.
func New(src *iobuf.BaseReader, opts Options) *Framer {
	return &Framer{src: src, opts: opts}
}

// Close releases the underlying BaseReader.
func (fr *Framer) Close() error {
	return fr.src.Close()
}

// Next returns the next record, or ok=false at a clean end of stream.
// err is non-nil only when AbortOnPartial fired.
func (fr *Framer) Next() (rec record.Record, ok bool, err error) {
	switch fr.opts.Format.Kind {
	case record.Prefix:
		return fr.nextPrefix()
	case record.Fixed:
		return fr.nextFixed()
	case record.Delimited:
		if fr.opts.Format.CSVMode {
			return fr.nextCSV()
		}
		return fr.nextDelimited()
	default:
		return record.Record{}, false, nil
	}
}

func (fr *Framer) nextPrefix() (record.Record, bool, error) {
	if !fr.src.HasMore() {
		return record.Record{}, false, nil
	}
	hdr, ok := fr.src.Read(4)
	if !ok {
		return fr.partial()
	}
	n := binary.LittleEndian.Uint32(hdr)
	body, ok := fr.src.ReadZ(int(n))
	if !ok {
		return fr.partial()
	}
	return record.Record{Bytes: body}, true, nil
}

func (fr *Framer) nextFixed() (record.Record, bool, error) {
	if !fr.src.HasMore() {
		return record.Record{}, false, nil
	}
	body, ok := fr.src.ReadZ(fr.opts.Format.FixedSize)
	if !ok {
		return fr.partial()
	}
	return record.Record{Bytes: body}, true, nil
}

func (fr *Framer) nextDelimited() (record.Record, bool, error) {
	body, ok, dropped := fr.src.ReadDelimited(fr.opts.Format.Delim, fr.opts.FullRecordRequired)
	if dropped {
		return fr.partial()
	}
	if !ok {
		return record.Record{}, false, nil
	}
	return record.Record{Bytes: body}, true, nil
}

// partial applies the FullRecordRequired/AbortOnPartial policy when a
// record could not be completed because the stream ended. Prefix and
// Fixed framing have no self-describing partial form, so the only
// observable difference there is whether AbortOnPartial raises an error;
// Delimited framing's partial behavior is handled by BaseReader itself
// via the required flag before this is ever reached.
func (fr *Framer) partial() (record.Record, bool, error) {
	if fr.opts.AbortOnPartial {
		return record.Record{}, false, ErrPartialRecord
	}
	return record.Record{}, false, nil
}

// nextCSV implements delimiter scanning with double-quote escaping: a
// record that opens with a double quote is parsed as a quoted field
// in which the delimiter is ignored and "" denotes a literal embedded
// quote, ending at the first unescaped closing quote. This mirrors the
// common CSV convention that quoting is only recognized when a field
// begins with a quote.
func (fr *Framer) nextCSV() (record.Record, bool, error) {
	fr.scratch = fr.scratch[:0]
	delim := fr.opts.Format.Delim
	inQuotes := false
	first := true
	sawAny := false

	for {
		b, ok := fr.src.PeekByte()
		if !ok {
			if !sawAny {
				return record.Record{}, false, nil
			}
			if fr.opts.AbortOnPartial {
				return record.Record{}, false, ErrPartialRecord
			}
			if !fr.opts.FullRecordRequired {
				return record.Record{Bytes: fr.scratch}, true, nil
			}
			return record.Record{}, false, nil
		}
		fr.src.SkipByte()
		sawAny = true

		if inQuotes {
			if b == '"' {
				if nb, ok2 := fr.src.PeekByte(); ok2 && nb == '"' {
					fr.src.SkipByte()
					fr.scratch = append(fr.scratch, '"')
					continue
				}
				inQuotes = false
				continue
			}
			fr.scratch = append(fr.scratch, b)
			continue
		}

		if first && b == '"' {
			inQuotes = true
			first = false
			continue
		}
		first = false

		if b == delim {
			return record.Record{Bytes: fr.scratch}, true, nil
		}
		fr.scratch = append(fr.scratch, b)
	}
}
