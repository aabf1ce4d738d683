// Package bloomfilter implements a probabilistic set that the external
// sorter can populate, through MultiCursor's accept hook, with every
// record a reducing merge accepts, and save as a sidecar file. A
// negative lookup is exact, so a later pass can test "definitely not
// present" without another merge. The merge itself does not consult
// the filter.
package bloomfilter

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"

	"github.com/recordflow/recordflow/internal/mmapfile"
	"github.com/recordflow/recordflow/internal/record"
)

// magic tags a serialized filter so Deserialize rejects an unrelated
// file (an accidentally-pointed-at run file, say) instead of reading
// its bytes as a bit array.
const magic = "RFBF"
const version = 1

// headerSize is the fixed-width prefix written by Serialize: magic,
// version, three big-endian uint64 fields (size, hashCount, count),
// and a trailing CRC32 of the bit array for corruption detection.
const headerSize = 4 + 1 + 3 + 8 + 8 + 8 + 4

// castagnoliTable backs the filter's second probe hash. Pairing it
// with crc32.ChecksumIEEE gives two hashes computed by genuinely
// different polynomials rather than one real hash and a reversed-byte
// reflow of the same hash, so the two probe sequences a key produces
// don't correlate.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Filter is a fixed-size Bloom filter over record keys, using Kirsch-
// Mitzenmacher double hashing (IEEE and Castagnoli CRC32 of the key)
// to derive each of hashCount probe positions from two real hashes
// instead of hashCount independent ones.
type Filter struct {
	bits      []byte
	size      int
	hashCount int
	count     int
}

// New sizes a Filter for n expected elements at the given false
// positive rate (e.g. 0.01 for 1%), per the standard formulas
// m = -n*ln(p)/ln(2)^2 and k = (m/n)*ln(2).
func New(n int, fpRate float64) *Filter {
	if n < 1 {
		n = 1
	}
	if fpRate <= 0 {
		fpRate = 0.01
	}

	m := int(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 1024 {
		m = 1024
	}
	m = ((m + 7) / 8) * 8

	k := int(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	return &Filter{bits: make([]byte, m/8), size: m, hashCount: k}
}

func (f *Filter) positions(key []byte, visit func(byteIdx int, bit byte)) {
	h1 := uint64(crc32.ChecksumIEEE(key))
	h2 := uint64(crc32.Checksum(key, castagnoliTable))

	for i := uint64(0); i < uint64(f.hashCount); i++ {
		pos := int((h1 + i*h2) % uint64(f.size))
		visit(pos/8, 1<<(pos%8))
	}
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	f.positions(key, func(byteIdx int, bit byte) {
		f.bits[byteIdx] |= bit
	})
	f.count++
}

// AddRecord inserts rec's bytes as a key, the form MultiCursor's
// accept hook and ExternalSorter's Bloom option actually drive.
func (f *Filter) AddRecord(rec record.Record) {
	f.Add(rec.Bytes)
}

// MightContain reports whether key may be in the set. false is exact;
// true carries the filter's configured false positive rate.
func (f *Filter) MightContain(key []byte) bool {
	present := true
	f.positions(key, func(byteIdx int, bit byte) {
		if f.bits[byteIdx]&bit == 0 {
			present = false
		}
	})
	return present
}

// MightContainRecord is MightContain over rec's bytes.
func (f *Filter) MightContainRecord(rec record.Record) bool {
	return f.MightContain(rec.Bytes)
}

// Merge folds src's bits into dst via bitwise OR, combining filters
// that were populated independently — the case when PartitionThenSort
// gives each partition its own ExternalSorter and each one builds its
// own Bloom filter as it finalizes. Both filters must have been built
// with matching New(n, fpRate) parameters (same size and hash count);
// otherwise their probe positions aren't comparable and Merge fails
// rather than silently producing a filter with a much higher false
// positive rate than either input.
func Merge(dst, src *Filter) error {
	if dst.size != src.size || dst.hashCount != src.hashCount {
		return fmt.Errorf("bloomfilter: incompatible filters (size %d/%d, hashCount %d/%d)",
			dst.size, src.size, dst.hashCount, src.hashCount)
	}
	for i := range dst.bits {
		dst.bits[i] |= src.bits[i]
	}
	dst.count += src.count
	return nil
}

// Stats returns the filter's bit-array size, hash count, and number of
// elements added.
func (f *Filter) Stats() (size, hashCount, count int) {
	return f.size, f.hashCount, f.count
}

// Serialize encodes the filter as a magic-tagged, versioned header
// (size, hashCount, count, and a CRC32 of the bit array) followed by
// the bit array itself.
func (f *Filter) Serialize() []byte {
	header := make([]byte, headerSize)
	copy(header[0:4], magic)
	header[4] = version
	binary.BigEndian.PutUint64(header[8:16], uint64(f.size))
	binary.BigEndian.PutUint64(header[16:24], uint64(f.hashCount))
	binary.BigEndian.PutUint64(header[24:32], uint64(f.count))
	binary.BigEndian.PutUint32(header[32:36], crc32.ChecksumIEEE(f.bits))
	return append(header, f.bits...)
}

// Deserialize reverses Serialize, rejecting a mismatched magic/version
// or a bit array whose checksum no longer matches the header (a
// truncated or corrupted sidecar file). The returned Filter's bit
// array aliases data; callers that mmap'd data must keep it mapped for
// the Filter's lifetime.
func Deserialize(data []byte) (*Filter, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("bloomfilter: truncated header (%d bytes)", len(data))
	}
	if string(data[0:4]) != magic {
		return nil, fmt.Errorf("bloomfilter: bad magic %q", data[0:4])
	}
	if v := data[4]; v != version {
		return nil, fmt.Errorf("bloomfilter: unsupported version %d", v)
	}
	bits := data[headerSize:]
	wantChecksum := binary.BigEndian.Uint32(data[32:36])
	if got := crc32.ChecksumIEEE(bits); got != wantChecksum {
		return nil, fmt.Errorf("bloomfilter: checksum mismatch (got %x, want %x)", got, wantChecksum)
	}
	return &Filter{
		size:      int(binary.BigEndian.Uint64(data[8:16])),
		hashCount: int(binary.BigEndian.Uint64(data[16:24])),
		count:     int(binary.BigEndian.Uint64(data[24:32])),
		bits:      bits,
	}, nil
}

// Load reads and deserializes a filter from path.
func Load(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Deserialize(data)
}

// LoadMmap maps path read-only and deserializes the filter directly
// from the mapping, avoiding a copy for filters built from very large
// key sets. The returned closer must be called once the Filter is no
// longer needed.
func LoadMmap(path string) (*Filter, func() error, error) {
	data, closer, err := mmapfile.Open(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := Deserialize(data)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return f, closer, nil
}

// Save writes Serialize's output to path.
func Save(path string, f *Filter) error {
	return os.WriteFile(path, f.Serialize(), 0o644)
}
