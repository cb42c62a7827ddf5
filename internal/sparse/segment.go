package sparse

// Segment is a contiguous run of bytes at a known start address. It is the
// unit of storage inside a Space: the interval index and the MRU slot refer
// to segments through handles, the table owns the buffers.
type Segment struct {
	start uint64
	data  []byte
}

// Start returns the address of the segment's first byte.
func (s *Segment) Start() uint64 { return s.start }

// End returns the address of the segment's last byte (inclusive).
// Segments are never stored empty.
func (s *Segment) End() uint64 { return s.start + uint64(len(s.data)) - 1 }

// Len returns the segment length in bytes.
func (s *Segment) Len() int { return len(s.data) }

// Bytes returns the segment's buffer. The slice is owned by the table and
// only valid until the segment is coalesced away.
func (s *Segment) Bytes() []byte { return s.data }

// Contains reports whether addr falls inside the segment's inclusive range.
func (s *Segment) Contains(addr uint64) bool {
	return addr >= s.start && addr <= s.End()
}

// ContainsSegment reports whether other lies entirely inside s.
func (s *Segment) ContainsSegment(other *Segment) bool {
	return s.start <= other.start && s.End() >= other.End()
}

// storedHi returns the interval bound registered in the index for a segment
// ending at end: one past the end, saturated at the top of the uint64 range.
// The one-past bound is what makes point probes at a segment's upper edge
// report the adjacent segment during coalescing.
func storedHi(end uint64) uint64 {
	if end == ^uint64(0) {
		return end
	}
	return end + 1
}
