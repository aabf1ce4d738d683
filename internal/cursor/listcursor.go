package cursor

import "github.com/recordflow/recordflow/internal/record"

// Opener produces the Source for one file in a ListCursor's file list,
// given that file's metadata (so it can pick framing, compression, or
// a cached block reader based on path/size).
type Opener func(info record.FileInfo) (Source, error)

// ListCursor concatenates the records of a fixed, pre-enumerated list
// of files, opening each one lazily in order and never holding more
// than one open at a time.
type ListCursor struct {
	files  []record.FileInfo
	idx    int
	opener Opener
	cur    Source
}

// NewListCursor builds a ListCursor over files, opened on demand via
// opener.
func NewListCursor(files []record.FileInfo, opener Opener) *ListCursor {
	return &ListCursor{files: files, opener: opener}
}

func (l *ListCursor) Next() (record.Record, bool, error) {
	for {
		if l.cur == nil {
			if l.idx >= len(l.files) {
				return record.Record{}, false, nil
			}
			src, err := l.opener(l.files[l.idx])
			l.idx++
			if err != nil {
				return record.Record{}, false, err
			}
			l.cur = src
		}
		rec, ok, err := l.cur.Next()
		if err != nil {
			return record.Record{}, false, err
		}
		if ok {
			return rec, true, nil
		}
		if err := l.cur.Close(); err != nil {
			return record.Record{}, false, err
		}
		l.cur = nil
	}
}

// Close closes whichever file is currently open, if any.
func (l *ListCursor) Close() error {
	if l.cur == nil {
		return nil
	}
	err := l.cur.Close()
	l.cur = nil
	return err
}

// Producer lazily supplies the next Source in a CbCursor's sequence.
// Returning (nil, nil) ends the stream.
type Producer func() (Source, error)

// CbCursor concatenates the records of a sequence of Sources supplied
// on demand by a callback, for cases where the file list isn't known
// up front (directory scans still in progress, paginated listings).
type CbCursor struct {
	produce Producer
	cur     Source
	done    bool
}

// NewCbCursor builds a CbCursor driven by produce.
func NewCbCursor(produce Producer) *CbCursor {
	return &CbCursor{produce: produce}
}

func (c *CbCursor) Next() (record.Record, bool, error) {
	for {
		if c.done {
			return record.Record{}, false, nil
		}
		if c.cur == nil {
			src, err := c.produce()
			if err != nil {
				return record.Record{}, false, err
			}
			if src == nil {
				c.done = true
				return record.Record{}, false, nil
			}
			c.cur = src
		}
		rec, ok, err := c.cur.Next()
		if err != nil {
			return record.Record{}, false, err
		}
		if ok {
			return rec, true, nil
		}
		if err := c.cur.Close(); err != nil {
			return record.Record{}, false, err
		}
		c.cur = nil
	}
}

// Close closes whichever Source is currently open, if any.
func (c *CbCursor) Close() error {
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}

// RecordCursor serves records directly out of an in-memory slice, most
// useful for tests and for feeding a Cursor/MultiCursor pipeline a
// batch that's already been sorted in place.
type RecordCursor struct {
	recs []record.Record
	idx  int
}

// NewRecordCursor wraps recs. The slice is not copied; the caller must
// not mutate it while the cursor is in use.
func NewRecordCursor(recs []record.Record) *RecordCursor {
	return &RecordCursor{recs: recs}
}

func (r *RecordCursor) Next() (record.Record, bool, error) {
	if r.idx >= len(r.recs) {
		return record.Record{}, false, nil
	}
	rec := r.recs[r.idx]
	r.idx++
	return rec, true, nil
}

func (r *RecordCursor) Close() error { return nil }
