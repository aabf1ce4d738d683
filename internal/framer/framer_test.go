package framer

import (
	"encoding/binary"
	"testing"

	"github.com/recordflow/recordflow/internal/iobuf"
	"github.com/recordflow/recordflow/internal/record"
)

func TestFramerPrefix(t *testing.T) {
	var buf []byte
	for _, s := range []string{"", "hello", "a bit longer record"} {
		hdr := make([]byte, 4)
		binary.LittleEndian.PutUint32(hdr, uint32(len(s)))
		buf = append(buf, hdr...)
		buf = append(buf, s...)
	}

	src := iobuf.NewFromBuffer(buf)
	fr := New(src, Options{Format: record.NewPrefixFormat(), FullRecordRequired: true})

	want := []string{"", "hello", "a bit longer record"}
	for _, w := range want {
		rec, ok, err := fr.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("expected record %q, got none", w)
		}
		if string(rec.Bytes) != w {
			t.Fatalf("got %q, want %q", rec.Bytes, w)
		}
	}
	if _, ok, _ := fr.Next(); ok {
		t.Fatal("expected end of stream")
	}
}

func TestFramerFixedRejectsTrailingPartial(t *testing.T) {
	// Two 4-byte records plus 2 leftover bytes: not a multiple of 4.
	buf := []byte("abcdwxyzzz")
	src := iobuf.NewFromBuffer(buf)
	fr := New(src, Options{Format: record.NewFixedFormat(4), FullRecordRequired: true})

	rec, ok, _ := fr.Next()
	if !ok || string(rec.Bytes) != "abcd" {
		t.Fatalf("got %q ok=%v", rec.Bytes, ok)
	}
	rec, ok, _ = fr.Next()
	if !ok || string(rec.Bytes) != "wxyz" {
		t.Fatalf("got %q ok=%v", rec.Bytes, ok)
	}
	if _, ok, _ := fr.Next(); ok {
		t.Fatal("trailing partial fixed record should be dropped")
	}
}

func TestFramerDelimited(t *testing.T) {
	src := iobuf.NewFromBuffer([]byte("a\nbb\nccc\n"))
	fr := New(src, Options{Format: record.NewDelimitedFormat('\n', false), FullRecordRequired: true})

	for _, w := range []string{"a", "bb", "ccc"} {
		rec, ok, _ := fr.Next()
		if !ok || string(rec.Bytes) != w {
			t.Fatalf("got %q ok=%v, want %q", rec.Bytes, ok, w)
		}
	}
	if _, ok, _ := fr.Next(); ok {
		t.Fatal("expected end of stream")
	}
}

func TestFramerCSVQuoting(t *testing.T) {
	src := iobuf.NewFromBuffer([]byte(`plain,"quo,ted","he said ""hi""",last` + "\n"))
	fr := New(src, Options{Format: record.NewDelimitedFormat(',', true), FullRecordRequired: false})

	want := []string{"plain", "quo,ted", `he said "hi"`, "last\n"}
	for _, w := range want {
		rec, ok, err := fr.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("expected record %q, got none", w)
		}
		if string(rec.Bytes) != w {
			t.Fatalf("got %q, want %q", rec.Bytes, w)
		}
	}
}

func TestFramerAbortOnPartial(t *testing.T) {
	hdr := make([]byte, 4)
	binary.LittleEndian.PutUint32(hdr, 100)
	buf := append(hdr, []byte("short")...)

	src := iobuf.NewFromBuffer(buf)
	fr := New(src, Options{Format: record.NewPrefixFormat(), AbortOnPartial: true})

	_, ok, err := fr.Next()
	if ok || err != ErrPartialRecord {
		t.Fatalf("ok=%v err=%v, want ErrPartialRecord", ok, err)
	}
}
