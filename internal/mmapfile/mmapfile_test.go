package mmapfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	want := []byte("the quick brown fox")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	data, closer, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	if !bytes.Equal(data, want) {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	data, closer, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	if len(data) != 0 {
		t.Fatalf("got %d bytes, want 0", len(data))
	}
}
