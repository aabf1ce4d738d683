package cursor

import "github.com/recordflow/recordflow/internal/record"

// Cursor wraps a Source with limiting, single-pushback reset, and
// optional equal-key reduction. The advance implementation is rebound
// at runtime as Limit and Reset are layered on: each wraps the current
// function pointer rather than branching on state inside a single
// Advance body.
type Cursor struct {
	src  Source
	next func() (record.Record, bool, error)

	cur          record.Record
	curValid     bool
	closed       bool
	resetPending bool
}

// New wraps src in a plain, unreduced Cursor.
func New(src Source) *Cursor {
	c := &Cursor{src: src}
	c.next = c.rawAdvance
	return c
}

// NewReducing wraps src in a Cursor that groups consecutive records
// comparing equal under cmp and passes each group through reduce,
// retrying the next group whenever reduce rejects one. cmp must agree
// with the order src actually produces records in; a MultiCursor feeding
// this Cursor already guarantees that for its own comparator.
func NewReducing(src Source, cmp Comparator, reduce Reducer) *Cursor {
	c := &Cursor{src: src}
	c.next = c.makeReducingAdvance(cmp, reduce)
	return c
}

func (c *Cursor) rawAdvance() (record.Record, bool, error) {
	return c.src.Next()
}

// makeReducingAdvance returns an advance function that accumulates a
// run of records comparing equal under cmp, reduces it, and either
// returns the reduced record or moves on to the next run.
func (c *Cursor) makeReducingAdvance(cmp Comparator, reduce Reducer) func() (record.Record, bool, error) {
	var pending record.Record
	havePending := false

	return func() (record.Record, bool, error) {
		for {
			var group []record.Record
			var first record.Record
			if havePending {
				first = pending
				havePending = false
			} else {
				r, ok, err := c.src.Next()
				if err != nil {
					return record.Record{}, false, err
				}
				if !ok {
					return record.Record{}, false, nil
				}
				first = r.Clone()
			}
			group = append(group, first)

			for {
				r, ok, err := c.src.Next()
				if err != nil {
					return record.Record{}, false, err
				}
				if !ok {
					break
				}
				rc := r.Clone()
				if cmp(first, rc) != 0 {
					pending, havePending = rc, true
					break
				}
				group = append(group, rc)
			}

			if out, accept := reduce(group); accept {
				return out, true, nil
			}
			// Reducer rejected this group; loop to the next one, which may
			// already be sitting in pending.
		}
	}
}

// Limit caps the number of records this Cursor yields to n, regardless
// of how many the underlying Source still has. It returns c so Limit
// and reduction can be composed in one expression.
func (c *Cursor) Limit(n int) *Cursor {
	remaining := n
	prev := c.next
	c.next = func() (record.Record, bool, error) {
		if remaining <= 0 {
			return record.Record{}, false, nil
		}
		remaining--
		return prev()
	}
	return c
}

// Advance pulls the next record and makes it the Current one.
func (c *Cursor) Advance() (record.Record, bool, error) {
	rec, ok, err := c.next()
	if err != nil {
		return record.Record{}, false, err
	}
	c.cur, c.curValid = rec, ok
	return rec, ok, nil
}

// Current returns the record produced by the most recent Advance,
// without pulling a new one.
func (c *Cursor) Current() (record.Record, bool) {
	return c.cur, c.curValid
}

// Reset arranges for the next Advance to re-deliver the current record
// instead of pulling a new one. At most one reset is meaningful at a
// time; calling it again before an intervening Advance simply replaces
// the pending replay.
func (c *Cursor) Reset() {
	if c.resetPending {
		return
	}
	c.resetPending = true
	prev := c.next
	savedCur, savedValid := c.cur, c.curValid
	replayed := false
	c.next = func() (record.Record, bool, error) {
		if !replayed {
			replayed = true
			c.resetPending = false
			c.next = prev
			return savedCur, savedValid, nil
		}
		return prev()
	}
}

// Count consumes the Cursor to exhaustion and returns how many records
// it yielded. The Cursor is unusable afterward.
func (c *Cursor) Count() (int, error) {
	n := 0
	for {
		_, ok, err := c.Advance()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// AdvanceGroup collects the run of consecutive records comparing equal
// to the first one under cmp, cloning each so later advances don't
// invalidate them. more reports whether the stream had records left
// beyond the returned group; the first of those is replayed on the
// next Advance/AdvanceGroup call via Reset.
func (c *Cursor) AdvanceGroup(cmp Comparator) (group []record.Record, more bool, err error) {
	first, ok, err := c.Advance()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	firstClone := first.Clone()
	group = append(group, firstClone)

	for {
		rec, ok, err := c.Advance()
		if err != nil {
			return group, false, err
		}
		if !ok {
			return group, false, nil
		}
		if cmp(firstClone, rec) != 0 {
			c.Reset()
			return group, true, nil
		}
		group = append(group, rec.Clone())
	}
}

// Close releases the underlying Source. It is safe to call more than
// once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.src.Close()
}
