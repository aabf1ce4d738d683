package blockcache

import (
	"testing"

	"github.com/recordflow/recordflow/internal/record"
)

func recs(strs ...string) []record.Record {
	out := make([]record.Record, len(strs))
	for i, s := range strs {
		out[i] = record.Record{Bytes: []byte(s)}
	}
	return out
}

func TestGetPutRoundTrip(t *testing.T) {
	c := New(1024)
	c.Put("f1", recs("a", "bb"))

	got := c.Get("f1")
	if len(got) != 2 || string(got[0].Bytes) != "a" || string(got[1].Bytes) != "bb" {
		t.Fatalf("got %v, want original batch", got)
	}
	entries, used, cap := c.Stats()
	if entries != 1 || used != 3 || cap != 1024 {
		t.Fatalf("Stats() = %d, %d, %d, want 1, 3, 1024", entries, used, cap)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(3)
	c.Put("a", recs("x"))   // 1 byte
	c.Put("b", recs("y"))   // 1 byte
	c.Get("a")              // promote a
	c.Put("c", recs("zzz")) // 3 bytes, evicts until room: evicts b, then a

	if got := c.Get("c"); got == nil {
		t.Fatal("expected c to remain cached")
	}
	n, used, cap := c.Stats()
	if cap != 3 {
		t.Fatalf("cap = %d, want 3", cap)
	}
	if used > cap {
		t.Fatalf("used %d exceeds cap %d", used, cap)
	}
	_ = n
}

func TestOversizedBatchNeverCached(t *testing.T) {
	c := New(2)
	c.Put("big", recs("too long"))
	if got := c.Get("big"); got != nil {
		t.Fatal("oversized batch should never be cached")
	}
}

func TestCachedOpenerLoadsOnceAcrossRepeatedOpens(t *testing.T) {
	c := New(1024)
	var loads int
	load := func(info record.FileInfo) ([]record.Record, error) {
		loads++
		return recs("dim-a", "dim-b"), nil
	}
	opener := CachedOpener(c, load)

	info := record.FileInfo{Filename: "dims.bin"}
	for i := 0; i < 3; i++ {
		src, err := opener(info)
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		for {
			rec, ok, err := src.Next()
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				break
			}
			got = append(got, string(rec.Bytes))
		}
		if err := src.Close(); err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0] != "dim-a" || got[1] != "dim-b" {
			t.Fatalf("open %d: got %v", i, got)
		}
	}
	if loads != 1 {
		t.Fatalf("load ran %d times, want exactly 1 (cache should absorb the other opens)", loads)
	}
}
