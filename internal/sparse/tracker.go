package sparse

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Tracker records every written address in a compressed bitmap. It backs
// differential snapshots: after a full image is saved, only the dirty ranges
// need to be serialized again.
type Tracker struct {
	bm *roaring64.Bitmap
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{bm: roaring64.New()}
}

// Mark records a single written address.
func (t *Tracker) Mark(addr uint64) {
	t.bm.Add(addr)
}

// MarkRange records the inclusive address range [start, end] as written.
func (t *Tracker) MarkRange(start, end uint64) {
	if end < start {
		return
	}
	if end == ^uint64(0) {
		t.bm.AddRange(start, end) // [start, end) — roaring's upper bound is exclusive
		t.bm.Add(end)
		return
	}
	t.bm.AddRange(start, end+1)
}

// Dirty reports whether addr has been written since the last Clear.
func (t *Tracker) Dirty(addr uint64) bool {
	return t.bm.Contains(addr)
}

// Len returns the number of distinct written addresses.
func (t *Tracker) Len() uint64 {
	return t.bm.GetCardinality()
}

// Range is an inclusive run of dirty addresses.
type Range struct {
	Start uint64
	End   uint64
}

// rangeChunk is the batch size for draining the dirty bitmap.
const rangeChunk = 4096

// Ranges returns the written addresses coalesced into maximal runs, in
// ascending order. Addresses are drained in chunks and each chunk is cut
// into runs by binary search, so a dense multi-megabyte dirty region costs
// O(log chunk) per chunk rather than one iterator step per address.
func (t *Tracker) Ranges() []Range {
	var out []Range
	buf := make([]uint64, rangeChunk)
	it := t.bm.ManyIterator()
	for {
		n := it.NextMany(buf)
		if n == 0 {
			break
		}
		for i := 0; i < n; {
			// Longest run of consecutive addresses starting at buf[i].
			// Addresses are strictly increasing, so once the run breaks
			// the predicate stays true and Search finds the first break.
			j := sort.Search(n-i, func(k int) bool {
				return buf[i+k] != buf[i]+uint64(k)
			})
			start, end := buf[i], buf[i+j-1]
			if m := len(out); m > 0 && out[m-1].End+1 == start {
				// Run continues across a chunk boundary.
				out[m-1].End = end
			} else {
				out = append(out, Range{Start: start, End: end})
			}
			i += j
		}
	}
	return out
}

// Clear forgets all recorded writes.
func (t *Tracker) Clear() {
	t.bm.Clear()
}
