package extsort

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/recordflow/recordflow/internal/bloomfilter"
	"github.com/recordflow/recordflow/internal/cursor"
	"github.com/recordflow/recordflow/internal/framer"
	"github.com/recordflow/recordflow/internal/iobuf"
	"github.com/recordflow/recordflow/internal/record"
)

func byBytes(a, b record.Record) int {
	return bytes.Compare(a.Bytes, b.Bytes)
}

func readAllPrefix(t *testing.T, path string) []string {
	t.Helper()
	src, err := iobuf.Open(path, iobuf.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	fr := framer.New(src, framer.Options{Format: record.NewPrefixFormat(), FullRecordRequired: true})
	var out []string
	for {
		rec, ok, err := fr.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		out = append(out, string(rec.Bytes))
	}
	return out
}

func TestFinalizeSortsAcrossMultipleRuns(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Comparator:  byBytes,
		MemoryLimit: 1, // force a spill after every record
		TempDir:     dir,
		Format:      record.NewPrefixFormat(),
	})
	for _, v := range []string{"delta", "alpha", "charlie", "bravo"} {
		if err := s.Add(record.Record{Bytes: []byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	outPath := dir + "/final.bin"
	if err := s.Finalize(outPath); err != nil {
		t.Fatal(err)
	}

	got := readAllPrefix(t, outPath)
	want := []string{"alpha", "bravo", "charlie", "delta"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func byFirstByte(a, b record.Record) int {
	return bytes.Compare(a.Bytes[:1], b.Bytes[:1])
}

func TestSortAndSpillIsStableWithinARun(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Comparator: byFirstByte,
		TempDir:    dir,
		Format:     record.NewPrefixFormat(),
	})
	// All five records fit in one run (no MemoryLimit pressure), so this
	// exercises slices.SortStableFunc directly: ties on the first byte
	// must keep their original relative order in the output.
	for _, v := range []string{"b-1", "b-2", "a-1", "b-3", "a-2"} {
		if err := s.Add(record.Record{Bytes: []byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	outPath := dir + "/stable.bin"
	if err := s.Finalize(outPath); err != nil {
		t.Fatal(err)
	}
	got := readAllPrefix(t, outPath)
	want := []string{"a-1", "a-2", "b-1", "b-2", "b-3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (stability violated)", got, want)
		}
	}
}

func TestFinalizeWithNoRecordsWritesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{Comparator: byBytes, TempDir: dir, Format: record.NewPrefixFormat()})
	outPath := dir + "/empty.bin"
	if err := s.Finalize(outPath); err != nil {
		t.Fatal(err)
	}
	if got := readAllPrefix(t, outPath); len(got) != 0 {
		t.Fatalf("expected no records, got %v", got)
	}
}

func TestFinalizeDedupesWithReducer(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Comparator:  byBytes,
		Reducer:     cursor.KeepFirst,
		MemoryLimit: 1,
		TempDir:     dir,
		Format:      record.NewPrefixFormat(),
	})
	for _, v := range []string{"b", "a", "a", "b", "c"} {
		if err := s.Add(record.Record{Bytes: []byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	outPath := dir + "/dedup.bin"
	if err := s.Finalize(outPath); err != nil {
		t.Fatal(err)
	}
	got := readAllPrefix(t, outPath)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFinalizeHonorsNumPerGroupFanIn(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Comparator:  byBytes,
		MemoryLimit: 1,
		NumPerGroup: 2,
		TempDir:     dir,
		Format:      record.NewPrefixFormat(),
	})
	values := []string{"f", "e", "d", "c", "b", "a"}
	for _, v := range values {
		if err := s.Add(record.Record{Bytes: []byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	outPath := dir + "/grouped.bin"
	if err := s.Finalize(outPath); err != nil {
		t.Fatal(err)
	}
	got := readAllPrefix(t, outPath)
	want := []string{"a", "b", "c", "d", "e", "f"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestUseExtraThreadProducesSameResult(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Comparator:     byBytes,
		MemoryLimit:    1,
		UseExtraThread: true,
		TempDir:        dir,
		Format:         record.NewPrefixFormat(),
	})
	for i := 9; i >= 0; i-- {
		if err := s.Add(record.Record{Bytes: []byte(fmt.Sprintf("v%02d", i))}); err != nil {
			t.Fatal(err)
		}
	}
	outPath := dir + "/threaded.bin"
	if err := s.Finalize(outPath); err != nil {
		t.Fatal(err)
	}
	got := readAllPrefix(t, outPath)
	if len(got) != 10 {
		t.Fatalf("got %d records, want 10", len(got))
	}
	for i := 0; i < 10; i++ {
		want := fmt.Sprintf("v%02d", i)
		if got[i] != want {
			t.Fatalf("got %v at %d, want %v", got[i], i, want)
		}
	}
}

func TestOutInYieldsMergeCursorWithoutFinalFile(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{
		Comparator:  byBytes,
		MemoryLimit: 1,
		TempDir:     dir,
		Format:      record.NewPrefixFormat(),
	})
	for _, v := range []string{"z", "y", "x"} {
		if err := s.Add(record.Record{Bytes: []byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	mc, err := s.OutIn()
	if err != nil {
		t.Fatal(err)
	}
	defer mc.Close()

	var got []string
	for {
		rec, ok, err := mc.Advance()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, string(rec.Bytes))
	}
	want := []string{"x", "y", "z"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestVerboseReportsSpillsAndMergeToStderr(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	s := New(Options{
		Comparator:  byBytes,
		MemoryLimit: 1,
		TempDir:     dir,
		Format:      record.NewPrefixFormat(),
		Verbose:     true,
		Stderr:      &buf,
	})
	for _, v := range []string{"b", "a"} {
		if err := s.Add(record.Record{Bytes: []byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Finalize(dir + "/verbose.bin"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("spilled")) || !bytes.Contains([]byte(out), []byte("merged")) {
		t.Fatalf("expected spill and merge progress lines, got %q", out)
	}
}

func TestFinalizePopulatesBloomSidecarWhenReducing(t *testing.T) {
	dir := t.TempDir()
	bloom := bloomfilter.New(100, 0.01)
	s := New(Options{
		Comparator:  byBytes,
		Reducer:     cursor.KeepFirst,
		MemoryLimit: 1,
		TempDir:     dir,
		Format:      record.NewPrefixFormat(),
		Bloom:       bloom,
	})
	for _, v := range []string{"a", "b", "a", "c"} {
		if err := s.Add(record.Record{Bytes: []byte(v)}); err != nil {
			t.Fatal(err)
		}
	}
	outPath := dir + "/bloomed.bin"
	if err := s.Finalize(outPath); err != nil {
		t.Fatal(err)
	}

	loaded, err := bloomfilter.Load(outPath + ".bloom")
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"a", "b", "c"} {
		if !loaded.MightContain([]byte(key)) {
			t.Fatalf("bloom filter should contain %q", key)
		}
	}
}
