package iosink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recordflow/recordflow/internal/framer"
	"github.com/recordflow/recordflow/internal/iobuf"
	"github.com/recordflow/recordflow/internal/record"
)

func TestWriteRecordPrefixRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := Create(path, Options{Format: record.NewPrefixFormat()})
	require.NoError(t, err)
	for _, s := range []string{"", "hello", "world"} {
		require.Truef(t, w.WriteRecord(record.Record{Bytes: []byte(s)}), "WriteRecord(%q) failed: %v", s, w.Err())
	}
	require.NoError(t, w.Close())

	src, err := iobuf.Open(path, iobuf.Options{})
	require.NoError(t, err)
	defer src.Close()
	fr := framer.New(src, framer.Options{Format: record.NewPrefixFormat(), FullRecordRequired: true})
	for _, want := range []string{"", "hello", "world"} {
		rec, ok, err := fr.Next()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, string(rec.Bytes))
	}
}

func TestWriteRecordDelimitedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	w, err := Create(path, Options{Format: record.NewDelimitedFormat('\n', false)})
	require.NoError(t, err)
	for _, s := range []string{"a", "bb", "ccc"} {
		require.True(t, w.WriteRecord(record.Record{Bytes: []byte(s)}), w.Err())
	}
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a\nbb\nccc\n", string(data))
}

func TestWriteRecordCSVQuotesEmbeddedDelimiterAndQuote(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := Create(path, Options{Format: record.NewDelimitedFormat(',', true)})
	require.NoError(t, err)
	require.True(t, w.WriteRecord(record.Record{Bytes: []byte(`he said "hi"`)}), w.Err())
	require.True(t, w.WriteRecord(record.Record{Bytes: []byte("plain")}), w.Err())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `"he said ""hi""",plain,`, string(data))
}

func TestCreateRejectsAppendWithLZ4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.lz4")
	_, err := Create(path, Options{LZ4: true, Append: true})
	require.Error(t, err, "expected ConfigError-class rejection of append+LZ4")
}

func TestSafeModeRenamesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := Create(path, Options{Format: record.NewPrefixFormat(), Safe: true})
	require.NoError(t, err)
	_, err = os.Stat(path + "-safe")
	require.NoErrorf(t, err, "expected %s-safe to exist mid-write", path)

	require.True(t, w.WriteRecord(record.Record{Bytes: []byte("x")}), w.Err())
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "expected final path to exist after close")
	_, err = os.Stat(path + "-safe")
	require.True(t, os.IsNotExist(err), "expected -safe path to be gone after rename")
}

func TestAckModeTouchesAckFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := Create(path, Options{Format: record.NewPrefixFormat(), Ack: true})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = os.Stat(path + ".ack")
	require.NoError(t, err, "expected ack file")
}
