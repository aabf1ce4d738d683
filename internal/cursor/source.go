// Package cursor implements the iteration layer that sits on top of a
// Framer: Cursor adds limiting, grouping, and reduction on a single
// stream, MultiCursor performs a k-way merge across many sorted
// streams, and ListCursor/CbCursor/RecordCursor supply streams from a
// file list, a lazy producer callback, and an in-memory slice
// respectively.
package cursor

import "github.com/recordflow/recordflow/internal/record"

// Source is anything that can be pulled one record at a time. Framer,
// MultiCursor, ListCursor, CbCursor, and RecordCursor all implement it,
// so any of them can be nested inside any other or wrapped by a Cursor.
// Cursor itself pulls through Advance and does not implement Source.
type Source interface {
	// Next returns the next record, ok=false at a clean end of stream,
	// and a non-nil err only when the underlying source failed or an
	// abort policy fired.
	Next() (record.Record, bool, error)
	Close() error
}

// Comparator orders two records the same way sort.Interface's Less
// does, but as a three-way compare: negative, zero, or positive.
type Comparator func(a, b record.Record) int

// Reducer collapses a group of records sharing the same key (as
// determined by the Comparator that formed the group) into zero or
// one output record. Returning accept=false skips the group entirely.
type Reducer func(group []record.Record) (out record.Record, accept bool)

// KeepFirst is the default Reducer: it discards every record in a
// group but the first.
func KeepFirst(group []record.Record) (record.Record, bool) {
	return group[0], true
}
