package cursor

import "github.com/recordflow/recordflow/internal/record"

// MultiCursor performs a k-way merge over any number of Sources that
// are each individually sorted under cmp, such as per-run cursors
// produced by an external sort. Sub-cursors that compared equal on the
// last pop are kept aside as the "active" set and only advanced (and,
// if non-empty, reinserted into the heap) at the start of the next
// pop; this defers the cost of refilling a leg until its value has
// actually been consumed.
type MultiCursor struct {
	heap       *mcHeap
	cmp        Comparator
	active     []*subCursor
	reducer    Reducer
	acceptHook func(record.Record)
}

// NewMultiCursor builds an empty MultiCursor ordered by cmp. Add legs
// to it with Add before pulling records.
func NewMultiCursor(cmp Comparator) *MultiCursor {
	return &MultiCursor{heap: &mcHeap{cmp: cmp}, cmp: cmp}
}

// Add registers src as a merge leg tagged with tag (e.g. a run index,
// surfaced back to callers that need to know provenance). If src is
// already exhausted it is closed immediately and contributes nothing.
func (m *MultiCursor) Add(src Source, tag int32) error {
	sc := &subCursor{src: src, tag: tag}
	rec, ok, err := src.Next()
	if err != nil {
		_ = src.Close()
		return err
	}
	if !ok {
		return src.Close()
	}
	sc.cur, sc.valid = rec.Clone(), true
	sc.cur.Tag = tag
	m.heap.push(sc)
	return nil
}

// settleActive advances every sub-cursor left over from the previous
// pop, reinserting the ones that still have data and closing the ones
// that don't.
func (m *MultiCursor) settleActive() error {
	for _, sc := range m.active {
		rec, ok, err := sc.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			if cerr := sc.src.Close(); cerr != nil {
				return cerr
			}
			continue
		}
		sc.cur, sc.valid = rec.Clone(), true
		sc.cur.Tag = sc.tag
		m.heap.push(sc)
	}
	m.active = m.active[:0]
	return nil
}

// popGroup settles pending legs, pops the minimum, and peels off every
// other heap top that compares equal to it, returning them all as one
// group. Every leg in the group becomes the new active set.
func (m *MultiCursor) popGroup() ([]*subCursor, error) {
	if err := m.settleActive(); err != nil {
		return nil, err
	}
	if m.heap.Len() == 0 {
		return nil, nil
	}
	top := m.heap.pop()
	group := []*subCursor{top}
	for m.heap.Len() > 0 && m.cmp(m.heap.items[0].cur, top.cur) == 0 {
		group = append(group, m.heap.pop())
	}
	m.active = append(m.active, group...)
	return group, nil
}

// Advance returns the single smallest record across every leg, with no
// deduplication: ties are all returned, one per call, lowest leg tag
// first.
func (m *MultiCursor) Advance() (record.Record, bool, error) {
	if err := m.settleActive(); err != nil {
		return record.Record{}, false, err
	}
	if m.heap.Len() == 0 {
		return record.Record{}, false, nil
	}
	top := m.heap.pop()
	m.active = append(m.active, top)
	return top.cur, true, nil
}

// AdvanceUnique pops the smallest key and every other leg tied with
// it, returning the first leg's record and the size of the tied group.
// All tied legs are advanced together on the following call.
func (m *MultiCursor) AdvanceUnique() (record.Record, int, error) {
	group, err := m.popGroup()
	if err != nil {
		return record.Record{}, 0, err
	}
	if group == nil {
		return record.Record{}, 0, nil
	}
	return group[0].cur, len(group), nil
}

// SetReducer installs the Reducer AdvanceReduce applies to each tied
// group. KeepFirst is used if none is set.
func (m *MultiCursor) SetReducer(r Reducer) {
	m.reducer = r
}

// KeepFirst installs KeepFirst as the reducer, equivalent to
// deduplicating on the comparator's key.
func (m *MultiCursor) KeepFirst() {
	m.reducer = KeepFirst
}

// SetAcceptHook installs a callback invoked with every record
// AdvanceReduce accepts, after the reducer has run. A MultiCursor
// driving an anti-join or a second, independent pass over the same
// keys can use this to populate a bloom filter as groups are reduced,
// without a second traversal.
func (m *MultiCursor) SetAcceptHook(hook func(record.Record)) {
	m.acceptHook = hook
}

// AdvanceReduce pops groups of tied legs and runs each through the
// installed Reducer, skipping groups the reducer rejects, until one is
// accepted or every leg is exhausted. A group holds every record equal
// to its key, including later records of the same leg that repeat it.
func (m *MultiCursor) AdvanceReduce() (record.Record, bool, error) {
	reduce := m.reducer
	if reduce == nil {
		reduce = KeepFirst
	}
	for {
		group, err := m.popGroup()
		if err != nil {
			return record.Record{}, false, err
		}
		if group == nil {
			return record.Record{}, false, nil
		}
		recs := make([]record.Record, len(group))
		for i, sc := range group {
			recs[i] = sc.cur
		}
		for {
			if err := m.settleActive(); err != nil {
				return record.Record{}, false, err
			}
			if m.heap.Len() == 0 || m.cmp(m.heap.items[0].cur, recs[0]) != 0 {
				break
			}
			sc := m.heap.pop()
			m.active = append(m.active, sc)
			recs = append(recs, sc.cur)
		}
		if out, accept := reduce(recs); accept {
			if m.acceptHook != nil {
				m.acceptHook(out)
			}
			return out, true, nil
		}
	}
}

// Next implements Source as a plain, non-deduplicating merge so a
// MultiCursor can itself be nested inside a Cursor or another
// MultiCursor.
func (m *MultiCursor) Next() (record.Record, bool, error) {
	return m.Advance()
}

// Close closes every leg that is still open, active or queued in the
// heap, returning the first error encountered.
func (m *MultiCursor) Close() error {
	var firstErr error
	for _, sc := range m.active {
		if err := sc.src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, sc := range m.heap.items {
		if err := sc.src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.active = nil
	m.heap.items = nil
	return firstErr
}
