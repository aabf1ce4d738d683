// Package partition implements Partitioner: route records across N
// output files by a partition function, under one of three disciplines.
// The parallel partition-then-sort path is grounded on the fan-out
// shape of tckz-go-split's Splitter.Do (errgroup workers, multierror
// aggregation of their failures).
package partition

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/recordflow/recordflow/internal/cursor"
	"github.com/recordflow/recordflow/internal/extsort"
	"github.com/recordflow/recordflow/internal/iosink"
	"github.com/recordflow/recordflow/internal/record"
)

// KeyFunc maps a record to a partition id in [0, numPartitions).
// Returning numPartitions itself drops the record.
type KeyFunc func(rec record.Record, numPartitions int) int

// Discipline selects when sorting happens relative to partitioning.
type Discipline int

const (
	// PartitionThenSort routes records to per-partition ExternalSorters
	// as they arrive; every partition's runs are merged in parallel at
	// Finalize.
	PartitionThenSort Discipline = iota
	// SortThenPartition buffers and sorts every record first, then
	// routes the single sorted stream into per-partition files.
	SortThenPartition
	// SortWhilePartitioning is PartitionThenSort with each partition's
	// sort-and-spill running continuously on a background thread as its
	// runs fill, instead of only synchronously inside Add.
	SortWhilePartitioning
)

// Options configures a Partitioner.
type Options struct {
	NumPartitions int
	KeyFunc       KeyFunc

	Comparator cursor.Comparator
	Reducer    cursor.Reducer
	NumPerGroup int

	Discipline  Discipline
	Parallelism int // bounds concurrent per-partition merges; <=0 means unbounded

	TempDir     string
	MemoryLimit int64

	// PathStem and Ext name each partition file as "<stem>.<NNN><ext>".
	PathStem string
	Ext      string
	Format   record.FormatDescriptor
	Final    iosink.Options
}

// Partitioner splits a record stream into Options.NumPartitions files.
type Partitioner struct {
	opts     Options
	sorters  []*extsort.ExternalSorter // PartitionThenSort / SortWhilePartitioning
	collector *extsort.ExternalSorter  // SortThenPartition
}

// New builds a Partitioner. opts.TempDir must already exist.
func New(opts Options) *Partitioner {
	p := &Partitioner{opts: opts}
	switch opts.Discipline {
	case SortThenPartition:
		p.collector = extsort.New(extsort.Options{
			Comparator:          opts.Comparator,
			Reducer:             opts.Reducer,
			IntermediateReducer: opts.Reducer,
			NumPerGroup:         opts.NumPerGroup,
			MemoryLimit:         opts.MemoryLimit,
			TempDir:             opts.TempDir,
			RunPrefix:           "shuffle",
			Format:              record.NewPrefixFormat(),
		})
	default:
		p.sorters = make([]*extsort.ExternalSorter, opts.NumPartitions)
		for i := range p.sorters {
			p.sorters[i] = extsort.New(extsort.Options{
				Comparator:          opts.Comparator,
				Reducer:             opts.Reducer,
				IntermediateReducer: opts.Reducer,
				NumPerGroup:         opts.NumPerGroup,
				MemoryLimit:         opts.MemoryLimit,
				UseExtraThread:      opts.Discipline == SortWhilePartitioning,
				TempDir:             opts.TempDir,
				RunPrefix:           fmt.Sprintf("part%d", i),
				Format:              opts.Format,
				Final:               opts.Final,
			})
		}
	}
	return p
}

// Add routes rec to its partition (or into the shared collector for
// SortThenPartition). For PartitionThenSort/SortWhilePartitioning the
// partition is decided immediately via KeyFunc.
func (p *Partitioner) Add(rec record.Record) error {
	if p.opts.Discipline == SortThenPartition {
		return p.collector.Add(rec)
	}
	id := p.opts.KeyFunc(rec, p.opts.NumPartitions)
	if id < 0 || id >= p.opts.NumPartitions {
		return nil // dropped
	}
	return p.sorters[id].Add(rec)
}

func partitionPath(stem, ext string, id, numPartitions int) string {
	width := len(strconv.Itoa(numPartitions - 1))
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%s.%0*d%s", stem, width, id, ext)
}

// Finalize drains every partition to its final file and returns the
// paths written, indexed by partition id (empty string for a partition
// that received no records, under SortThenPartition).
func (p *Partitioner) Finalize() ([]string, error) {
	switch p.opts.Discipline {
	case SortThenPartition:
		return p.finalizeSortThenPartition()
	default:
		return p.finalizePerPartition()
	}
}

// finalizePerPartition merges each partition's runs in parallel,
// bounded by Options.Parallelism, aggregating any failures.
func (p *Partitioner) finalizePerPartition() ([]string, error) {
	paths := make([]string, p.opts.NumPartitions)
	g, _ := errgroup.WithContext(context.Background())
	if p.opts.Parallelism > 0 {
		g.SetLimit(p.opts.Parallelism)
	}

	var mu sync.Mutex
	var errs error
	for id := range p.sorters {
		id := id
		g.Go(func() error {
			path := partitionPath(p.opts.PathStem, p.opts.Ext, id, p.opts.NumPartitions)
			if err := p.sorters[id].Finalize(path); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("partition %d: %w", id, err))
				mu.Unlock()
				return err
			}
			paths[id] = path
			return nil
		})
	}
	_ = g.Wait()
	if errs != nil {
		return paths, errs
	}
	return paths, nil
}

// finalizeSortThenPartition drains the single global sort and fans its
// already-ordered output out into per-partition writers, opened lazily
// on first use.
func (p *Partitioner) finalizeSortThenPartition() ([]string, error) {
	mc, err := p.collector.OutIn()
	if err != nil {
		return nil, err
	}
	defer mc.Close()

	writers := make([]*iosink.Writer, p.opts.NumPartitions)
	paths := make([]string, p.opts.NumPartitions)
	closeAll := func() error {
		var errs error
		for _, w := range writers {
			if w == nil {
				continue
			}
			if err := w.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		return errs
	}

	for {
		var rec record.Record
		var ok bool
		if p.opts.Reducer != nil {
			rec, ok, err = mc.AdvanceReduce()
		} else {
			rec, ok, err = mc.Advance()
		}
		if err != nil {
			_ = closeAll()
			return nil, err
		}
		if !ok {
			break
		}
		id := p.opts.KeyFunc(rec, p.opts.NumPartitions)
		if id < 0 || id >= p.opts.NumPartitions {
			continue
		}
		w := writers[id]
		if w == nil {
			path := partitionPath(p.opts.PathStem, p.opts.Ext, id, p.opts.NumPartitions)
			finalOpts := p.opts.Final
			finalOpts.Format = p.opts.Format
			w, err = iosink.Create(path, finalOpts)
			if err != nil {
				_ = closeAll()
				return nil, err
			}
			writers[id] = w
			paths[id] = path
		}
		if !w.WriteRecord(rec) {
			err := w.Err()
			_ = closeAll()
			return nil, err
		}
	}

	if err := closeAll(); err != nil {
		return paths, err
	}
	return paths, nil
}
