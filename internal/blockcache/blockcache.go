// Package blockcache provides a memory-bounded LRU cache of decoded
// record batches, keyed by file path (and, for a ListCursor visiting
// the same file repeatedly across partitions, by a caller-chosen block
// key). It exists to avoid re-decompressing and re-framing the same
// file when a merge or partition pass revisits it.
package blockcache

import (
	"container/list"
	"sync"

	"github.com/recordflow/recordflow/internal/record"
)

// batch is the payload carried by each container/list element.
type batch struct {
	key     string
	records []record.Record
	size    int64
}

// Cache is a thread-safe, memory-bounded LRU cache of record batches.
// The ordering list's front is most-recently-used; lookups promote a
// hit with list.MoveToFront and eviction trims from the back. The
// stored records are owned copies: callers must Clone a record before
// handing it to Put if it was borrowed from a reader's buffer.
type Cache struct {
	mu       sync.RWMutex
	order    *list.List
	items    map[string]*list.Element
	curBytes int64
	maxBytes int64
}

// New creates a Cache with a maximum memory budget in bytes.
func New(maxBytes int64) *Cache {
	return &Cache{order: list.New(), items: make(map[string]*list.Element), maxBytes: maxBytes}
}

// Get returns the cached batch for key, promoting it to most-recently
// used, or nil if it isn't present.
func (c *Cache) Get(key string) []record.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*batch).records
}

// Put stores records under key, evicting least-recently-used batches
// until the budget is satisfied. A batch larger than the whole budget,
// or a key already present, is silently ignored.
func (c *Cache) Put(key string, records []record.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		return
	}

	var size int64
	for _, r := range records {
		size += int64(len(r.Bytes))
	}
	if size > c.maxBytes {
		return
	}

	for c.curBytes+size > c.maxBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.evict(back)
	}

	el := c.order.PushFront(&batch{key: key, records: records, size: size})
	c.items[key] = el
	c.curBytes += size
}

// Stats reports the current entry count and byte usage against the
// configured budget.
func (c *Cache) Stats() (entries int, bytesUsed, bytesCap int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.curBytes, c.maxBytes
}

func (c *Cache) evict(el *list.Element) {
	victim := c.order.Remove(el).(*batch)
	c.curBytes -= victim.size
	delete(c.items, victim.key)
}
