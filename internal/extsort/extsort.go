// Package extsort implements ExternalSorter: buffer records up to a
// memory budget, spill each full buffer as a sorted, LZ4-compressed
// run file, and merge the runs back together with a k-way merge at
// Finalize time. The run-file bookkeeping (a mutex-guarded list, a
// process-wide atomic id counter for names) follows the same shape as
// the teacher's own chunked external sort.
package extsort

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/recordflow/recordflow/internal/bloomfilter"
	"github.com/recordflow/recordflow/internal/cursor"
	"github.com/recordflow/recordflow/internal/framer"
	"github.com/recordflow/recordflow/internal/iosink"
	"github.com/recordflow/recordflow/internal/lz4frame"
	"github.com/recordflow/recordflow/internal/record"
)

// DefaultMemoryLimit bounds the in-memory buffer before a spill, absent
// an explicit Options.MemoryLimit.
const DefaultMemoryLimit = 64 * 1024 * 1024

// runIDCounter is the process-wide monotonic id source for temporary
// run file names, guarded only by atomic ops: per the concurrency
// model, external consumers must not rely on its ordering, only its
// uniqueness.
var runIDCounter int64

// Options configures an ExternalSorter.
type Options struct {
	Comparator cursor.Comparator

	// Reducer collapses equal-key groups in the final merge. Nil means
	// no reduction: every record survives.
	Reducer cursor.Reducer
	// IntermediateReducer is applied during NumPerGroup intermediate
	// merges instead of Reducer. Nil means no reduction at that stage
	// even if Reducer is set (ties are only collapsed once, at the end).
	IntermediateReducer cursor.Reducer
	// NumPerGroup bounds merge fan-in: every NumPerGroup runs are first
	// merged into one intermediate run before the final merge. Zero or
	// negative means merge every run in a single pass.
	NumPerGroup int

	// UseExtraThread runs sort-and-spill on a background goroutine with
	// a double-buffered hand-off, so Add keeps filling one buffer while
	// the other is compressed. Add blocks only when a buffer fills while
	// the previous spill is still running.
	UseExtraThread bool

	// MemoryLimit bounds the buffered bytes before a spill. Zero means
	// DefaultMemoryLimit.
	MemoryLimit int64

	TempDir   string
	RunPrefix string

	// Format is the framing used for the final merged output; run files
	// always use Prefix framing internally regardless of this setting.
	Format record.FormatDescriptor
	Final  iosink.Options

	// Bloom, if set, is populated with every accepted record's bytes as
	// the final merge reduces groups, and serialized alongside the
	// output file as "<path>.bloom" once Finalize succeeds. Only takes
	// effect when Reducer is also set, since an unreduced merge has no
	// single "accepted" record per key to add.
	Bloom *bloomfilter.Filter

	// Verbose, if set, reports each spilled run and the final merge to
	// Stderr (or Stderr if nil) with humanized record/byte counts.
	Verbose bool
	Stderr  io.Writer
}

func (o Options) stderr() io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return os.Stderr
}

// ExternalSorter buffers, spills, and merges records under Options.
type ExternalSorter struct {
	opts     Options
	memLimit int64

	mu   sync.Mutex
	runs []string

	current      []record.Record
	currentBytes int64

	filledCh chan []record.Record
	freeCh   chan []record.Record
	bgDone   chan error
}

// New builds an ExternalSorter. opts.TempDir must already exist.
func New(opts Options) *ExternalSorter {
	memLimit := opts.MemoryLimit
	if memLimit <= 0 {
		memLimit = DefaultMemoryLimit
	}
	s := &ExternalSorter{opts: opts, memLimit: memLimit}
	s.current = make([]record.Record, 0, 1024)

	if opts.UseExtraThread {
		s.filledCh = make(chan []record.Record)
		s.freeCh = make(chan []record.Record, 1)
		s.bgDone = make(chan error, 1)
		s.freeCh <- make([]record.Record, 0, 1024)
		go s.spillLoop()
	}
	return s
}

func (s *ExternalSorter) spillLoop() {
	var firstErr error
	for batch := range s.filledCh {
		if err := s.sortAndSpill(batch); err != nil && firstErr == nil {
			firstErr = err
		}
		s.freeCh <- batch[:0]
	}
	s.bgDone <- firstErr
}

// Add buffers a copy of rec, rotating (spilling) the buffer once it
// reaches the configured memory budget.
func (s *ExternalSorter) Add(rec record.Record) error {
	c := rec.Clone()
	s.current = append(s.current, c)
	s.currentBytes += int64(len(c.Bytes))
	if s.currentBytes < s.memLimit {
		return nil
	}
	return s.rotate()
}

// rotate hands the current buffer off for spilling and starts a fresh
// one, either synchronously or via the background spill goroutine.
func (s *ExternalSorter) rotate() error {
	full := s.current
	if s.opts.UseExtraThread {
		s.filledCh <- full
		s.current = <-s.freeCh
	} else {
		if err := s.sortAndSpill(full); err != nil {
			return err
		}
		s.current = full[:0]
	}
	s.currentBytes = 0
	return nil
}

func (s *ExternalSorter) flushPending() error {
	if len(s.current) > 0 {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	if s.opts.UseExtraThread {
		close(s.filledCh)
		if err := <-s.bgDone; err != nil {
			return err
		}
		s.filledCh = nil
	}
	return nil
}

func (s *ExternalSorter) newRunPath() string {
	id := atomic.AddInt64(&runIDCounter, 1)
	prefix := s.opts.RunPrefix
	if prefix == "" {
		prefix = "run"
	}
	return filepath.Join(s.opts.TempDir, fmt.Sprintf("%s-%d.lz4", prefix, id))
}

func (s *ExternalSorter) sortAndSpill(batch []record.Record) error {
	if len(batch) == 0 {
		return nil
	}
	slices.SortStableFunc(batch, s.opts.Comparator)

	path := s.newRunPath()
	w, err := iosink.Create(path, iosink.Options{Format: record.NewPrefixFormat(), LZ4: true})
	if err != nil {
		return err
	}
	for _, rec := range batch {
		if !w.WriteRecord(rec) {
			_ = w.Close()
			return w.Err()
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	s.mu.Lock()
	s.runs = append(s.runs, path)
	s.mu.Unlock()

	if s.opts.Verbose {
		fmt.Fprintf(s.opts.stderr(), "%s: %s records spilled\n", path, humanize.Comma(int64(len(batch))))
	}
	return nil
}

func openRun(path string) (cursor.Source, error) {
	br, err := lz4frame.Open(path, lz4frame.ReaderOptions{})
	if err != nil {
		return nil, err
	}
	fr := framer.New(br, framer.Options{Format: record.NewPrefixFormat(), FullRecordRequired: true})
	return fr, nil
}

func (s *ExternalSorter) mergeGroup(paths []string) (*cursor.MultiCursor, error) {
	mc := cursor.NewMultiCursor(s.opts.Comparator)
	for i, p := range paths {
		src, err := openRun(p)
		if err != nil {
			_ = mc.Close()
			return nil, err
		}
		if err := mc.Add(src, int32(i)); err != nil {
			_ = mc.Close()
			return nil, err
		}
	}
	return mc, nil
}

func (s *ExternalSorter) drainToRun(mc *cursor.MultiCursor, reducer cursor.Reducer) (string, error) {
	path := s.newRunPath()
	w, err := iosink.Create(path, iosink.Options{Format: record.NewPrefixFormat(), LZ4: true})
	if err != nil {
		return "", err
	}
	for {
		rec, ok, err := advanceMerge(mc, reducer)
		if err != nil {
			_ = w.Close()
			return "", err
		}
		if !ok {
			break
		}
		if !w.WriteRecord(rec) {
			_ = w.Close()
			return "", w.Err()
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func advanceMerge(mc *cursor.MultiCursor, reducer cursor.Reducer) (record.Record, bool, error) {
	if reducer != nil {
		mc.SetReducer(reducer)
		return mc.AdvanceReduce()
	}
	return mc.Advance()
}

// mergeAll builds the top-level merge cursor for paths, grouping
// through intermediate runs when NumPerGroup bounds fan-in. It returns
// every intermediate run file it created so the caller can remove them
// once the returned cursor is drained.
func (s *ExternalSorter) mergeAll(paths []string) (mc *cursor.MultiCursor, intermediates []string, err error) {
	if s.opts.NumPerGroup <= 0 || len(paths) <= s.opts.NumPerGroup {
		mc, err = s.mergeGroup(paths)
		return mc, nil, err
	}

	var nextLevel []string
	for i := 0; i < len(paths); i += s.opts.NumPerGroup {
		end := min(i+s.opts.NumPerGroup, len(paths))
		group, gerr := s.mergeGroup(paths[i:end])
		if gerr != nil {
			return nil, intermediates, gerr
		}
		runPath, derr := s.drainToRun(group, s.opts.IntermediateReducer)
		_ = group.Close()
		if derr != nil {
			return nil, intermediates, derr
		}
		intermediates = append(intermediates, runPath)
		nextLevel = append(nextLevel, runPath)
	}

	top, moreIntermediates, err := s.mergeAll(nextLevel)
	intermediates = append(intermediates, moreIntermediates...)
	return top, intermediates, err
}

// Finalize flushes any buffered records, merges every run under the
// configured comparator and reducer, and writes the result to path.
// With no runs at all (nothing was ever added), it still creates an
// empty file respecting opts.Final.
func (s *ExternalSorter) Finalize(path string) error {
	if err := s.flushPending(); err != nil {
		return err
	}

	s.mu.Lock()
	runs := append([]string(nil), s.runs...)
	s.mu.Unlock()

	if len(runs) == 0 {
		w, err := iosink.Create(path, s.opts.Final)
		if err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		if s.opts.Bloom != nil && s.opts.Reducer != nil {
			return bloomfilter.Save(path+".bloom", s.opts.Bloom)
		}
		return nil
	}

	mc, intermediates, err := s.mergeAll(runs)
	if err != nil {
		return err
	}
	defer func() {
		_ = mc.Close()
		for _, p := range intermediates {
			_ = os.Remove(p)
		}
		for _, p := range runs {
			_ = os.Remove(p)
		}
	}()

	if s.opts.Bloom != nil && s.opts.Reducer != nil {
		mc.SetAcceptHook(s.opts.Bloom.AddRecord)
	}

	finalOpts := s.opts.Final
	finalOpts.Format = s.opts.Format
	w, err := iosink.Create(path, finalOpts)
	if err != nil {
		return err
	}
	var written int64
	for {
		rec, ok, err := advanceMerge(mc, s.opts.Reducer)
		if err != nil {
			_ = w.Close()
			return err
		}
		if !ok {
			break
		}
		if !w.WriteRecord(rec) {
			_ = w.Close()
			return w.Err()
		}
		written++
	}
	if err := w.Close(); err != nil {
		return err
	}
	if s.opts.Verbose {
		fmt.Fprintf(s.opts.stderr(), "%s: %s records merged from %s runs\n",
			path, humanize.Comma(written), humanize.Comma(int64(len(runs))))
	}
	if s.opts.Bloom != nil && s.opts.Reducer != nil {
		if err := bloomfilter.Save(path+".bloom", s.opts.Bloom); err != nil {
			return err
		}
	}
	return nil
}

// MergeCursor is the merge-only Cursor OutIn hands back: draining it
// (via Advance/AdvanceReduce, inherited from *cursor.MultiCursor) reads
// the fully sorted stream without ever materializing a final file.
// Close releases the run readers and deletes every run file.
type MergeCursor struct {
	*cursor.MultiCursor
	cleanup func()
}

func (m *MergeCursor) Close() error {
	err := m.MultiCursor.Close()
	m.cleanup()
	return err
}

// OutIn flushes any buffered records and returns the merge cursor
// directly, for a chained sort to consume runs without a final file
// round-trip. If a Reducer was configured it is preinstalled on the
// returned cursor.
func (s *ExternalSorter) OutIn() (*MergeCursor, error) {
	if err := s.flushPending(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	runs := append([]string(nil), s.runs...)
	s.mu.Unlock()

	if len(runs) == 0 {
		return &MergeCursor{MultiCursor: cursor.NewMultiCursor(s.opts.Comparator), cleanup: func() {}}, nil
	}

	mc, intermediates, err := s.mergeAll(runs)
	if err != nil {
		return nil, err
	}
	if s.opts.Reducer != nil {
		mc.SetReducer(s.opts.Reducer)
	}
	return &MergeCursor{
		MultiCursor: mc,
		cleanup: func() {
			for _, p := range intermediates {
				_ = os.Remove(p)
			}
			for _, p := range runs {
				_ = os.Remove(p)
			}
		},
	}, nil
}
