package cursor

import "github.com/recordflow/recordflow/internal/record"

// subCursor is one leg of a MultiCursor merge: a Source plus the
// record it most recently produced.
type subCursor struct {
	src   Source
	tag   int32
	cur   record.Record
	valid bool
}

// mcHeap is a manual binary min-heap over *subCursor, ordered by cmp
// applied to each leg's current record, with ties broken by the leg's
// tag (lower first). container/heap boxes its elements through
// interface{}; a hand-rolled heap over a concrete slice avoids that
// allocation on every Push/Pop.
type mcHeap struct {
	items []*subCursor
	cmp   Comparator
}

func (h *mcHeap) Len() int { return len(h.items) }

func (h *mcHeap) less(i, j int) bool {
	if c := h.cmp(h.items[i].cur, h.items[j].cur); c != 0 {
		return c < 0
	}
	return h.items[i].tag < h.items[j].tag
}

func (h *mcHeap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *mcHeap) push(sc *subCursor) {
	h.items = append(h.items, sc)
	h.up(len(h.items) - 1)
}

// pop removes and returns the minimum element, leaving the rest of the
// heap valid.
func (h *mcHeap) pop() *subCursor {
	n := len(h.items)
	top := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.down(0, len(h.items))
	}
	return top
}

func (h *mcHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *mcHeap) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}
