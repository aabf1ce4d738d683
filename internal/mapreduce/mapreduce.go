// Package mapreduce composes dirscan, partition, and cursor into the
// three-phase pipeline the rest of the toolkit exists to support: scan
// a directory of input files, shuffle each input record into a
// partition by key, and sorted-reduce each partition's shuffle
// records. It mirrors the shape of the original library's map-reduce
// example (directory scan, partitioned shuffle, sorted merge) as Go
// APIs rather than a one-off CLI example.
package mapreduce

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/recordflow/recordflow/internal/cursor"
	"github.com/recordflow/recordflow/internal/dirscan"
	"github.com/recordflow/recordflow/internal/framer"
	"github.com/recordflow/recordflow/internal/iobuf"
	"github.com/recordflow/recordflow/internal/iosink"
	"github.com/recordflow/recordflow/internal/partition"
	"github.com/recordflow/recordflow/internal/record"
)

// MapFunc transforms one raw input record into a shuffle key/value.
// Returning ok=false drops the record from the shuffle.
type MapFunc func(raw []byte) (key, value []byte, ok bool)

// ReduceFunc collapses every value sharing a key (already grouped by
// the sorted shuffle) into one output value. Returning accept=false
// drops the group entirely.
type ReduceFunc func(key []byte, values [][]byte) (out []byte, accept bool)

// Job describes one map-reduce run.
type Job struct {
	Root      string
	ValidFunc dirscan.ValidFunc

	// InputFormat frames the records read back out of each discovered
	// input file.
	InputFormat record.FormatDescriptor

	Map           MapFunc
	NumPartitions int
	Reduce        ReduceFunc // nil means every shuffled record survives unreduced

	TempDir     string
	OutputStem  string
	OutputExt   string
	Parallelism int
	MemoryLimit int64
}

// shuffle record layout: a big-endian uint16 key length, the key, then
// the value — just enough structure to recover the key for comparing
// and grouping without a second side channel.
func encodeShuffle(key, value []byte) []byte {
	buf := make([]byte, 2+len(key)+len(value))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(key)))
	copy(buf[2:], key)
	copy(buf[2+len(key):], value)
	return buf
}

func shuffleKey(raw []byte) []byte {
	n := binary.BigEndian.Uint16(raw[:2])
	return raw[2 : 2+n]
}

func shuffleValue(raw []byte) []byte {
	n := binary.BigEndian.Uint16(raw[:2])
	return raw[2+n:]
}

// DecodeOutputRecord splits a record read back out of one of Run's
// output partitions into its key and reduced value.
func DecodeOutputRecord(raw []byte) (key, value []byte) {
	return shuffleKey(raw), shuffleValue(raw)
}

func compareShuffleKeys(a, b record.Record) int {
	return bytes.Compare(shuffleKey(a.Bytes), shuffleKey(b.Bytes))
}

func partitionByKeyHash(rec record.Record, numPartitions int) int {
	h := crc32.ChecksumIEEE(shuffleKey(rec.Bytes))
	return int(h % uint32(numPartitions))
}

func (j *Job) reduceAdapter() cursor.Reducer {
	if j.Reduce == nil {
		return nil
	}
	return func(group []record.Record) (record.Record, bool) {
		key := shuffleKey(group[0].Bytes)
		values := make([][]byte, len(group))
		for i, g := range group {
			values[i] = shuffleValue(g.Bytes)
		}
		out, accept := j.Reduce(key, values)
		if !accept {
			return record.Record{}, false
		}
		return record.Record{Bytes: encodeShuffle(key, out)}, true
	}
}

// Run executes the job and returns the output file written per
// partition, indexed by partition id.
func (j *Job) Run() ([]string, error) {
	files, err := dirscan.Scan(j.Root, j.ValidFunc)
	if err != nil {
		return nil, fmt.Errorf("mapreduce: scan %s: %w", j.Root, err)
	}

	p := partition.New(partition.Options{
		NumPartitions: j.NumPartitions,
		KeyFunc:       partitionByKeyHash,
		Comparator:    compareShuffleKeys,
		Reducer:       j.reduceAdapter(),
		Discipline:    partition.PartitionThenSort,
		Parallelism:   j.Parallelism,
		TempDir:       j.TempDir,
		MemoryLimit:   j.MemoryLimit,
		PathStem:      j.OutputStem,
		Ext:           j.OutputExt,
		Format:        record.NewPrefixFormat(),
		Final:         iosink.Options{LZ4: true},
	})

	for _, f := range files {
		if err := j.shuffleFile(p, f.Filename); err != nil {
			return nil, fmt.Errorf("mapreduce: shuffle %s: %w", f.Filename, err)
		}
	}

	return p.Finalize()
}

func (j *Job) shuffleFile(p *partition.Partitioner, path string) error {
	br, err := iobuf.Open(path, iobuf.Options{})
	if err != nil {
		return err
	}
	fr := framer.New(br, framer.Options{Format: j.InputFormat, FullRecordRequired: true})
	defer fr.Close()

	for {
		rec, ok, err := fr.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		key, value, keep := j.Map(rec.Bytes)
		if !keep {
			continue
		}
		if err := p.Add(record.Record{Bytes: encodeShuffle(key, value)}); err != nil {
			return err
		}
	}
}
