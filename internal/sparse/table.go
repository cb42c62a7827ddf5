package sparse

// Handle identifies a segment slot in a table. The generation counter makes
// stale handles detectable: a handle taken before its segment was coalesced
// away fails validation instead of silently resolving to a reused slot.
type Handle struct {
	slot uint32
	gen  uint32
}

// NoHandle is the zero Handle. It never resolves.
var NoHandle = Handle{}

// Valid reports whether h was ever issued by a table.
func (h Handle) Valid() bool { return h.gen != 0 }

type tableSlot struct {
	seg  Segment
	gen  uint32
	live bool
}

// table is the authoritative owner of all segment buffers in a Space.
// Handles are indices into it; slots are reused after release with a bumped
// generation.
type table struct {
	slots []tableSlot
	free  []uint32
	bytes int64
	count int
}

func (t *table) alloc(start uint64, data []byte) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, tableSlot{})
		idx = uint32(len(t.slots) - 1)
	}

	slot := &t.slots[idx]
	slot.gen++
	slot.seg = Segment{start: start, data: data}
	slot.live = true

	t.bytes += int64(len(data))
	t.count++

	return Handle{slot: idx, gen: slot.gen}
}

// get resolves a handle to its segment, or nil if the handle is stale.
func (t *table) get(h Handle) *Segment {
	if h.gen == 0 || int(h.slot) >= len(t.slots) {
		return nil
	}
	slot := &t.slots[h.slot]
	if !slot.live || slot.gen != h.gen {
		return nil
	}
	return &slot.seg
}

func (t *table) release(h Handle) {
	seg := t.get(h)
	if seg == nil {
		return
	}
	slot := &t.slots[h.slot]
	t.bytes -= int64(len(slot.seg.data))
	t.count--

	slot.gen++ // invalidate outstanding handles
	slot.seg = Segment{}
	slot.live = false
	t.free = append(t.free, h.slot)
}

// clear releases every live segment. Slots are kept so that generation
// counters survive and pre-clear handles stay detectably stale.
func (t *table) clear() {
	t.free = t.free[:0]
	for i := range t.slots {
		slot := &t.slots[i]
		if slot.live {
			slot.gen++
			slot.seg = Segment{}
			slot.live = false
		}
		t.free = append(t.free, uint32(i))
	}
	t.bytes = 0
	t.count = 0
}
