package sparse

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/memgo/internal/interval"
)

const (
	// DefaultMinSegmentSize is the width of lazily materialized segments.
	// Must be odd so the allocation window centers on the touched address.
	DefaultMinSegmentSize = 15
	// DefaultAddressBits models a 32-bit address space.
	DefaultAddressBits = 32
)

var (
	// ErrInvalidWidth is returned for multi-byte accesses wider than the
	// native 64-bit value or of zero width.
	ErrInvalidWidth = errors.New("sparse: value width must be between 1 and 8 bytes")
	// ErrInvalidSegmentSize is returned when the configured minimum segment
	// size is even or smaller than 3.
	ErrInvalidSegmentSize = errors.New("sparse: min segment size must be odd and >= 3")
	// ErrInvalidAddressBits is returned when the configured address width is
	// outside 1..64.
	ErrInvalidAddressBits = errors.New("sparse: address bits must be between 1 and 64")
)

// Config configures a Space.
type Config struct {
	// MinSegmentSize is the width of segments created on first touch of an
	// unmapped address. Odd, >= 3. Defaults to DefaultMinSegmentSize.
	MinSegmentSize int
	// AddressBits is the address width in bits (1..64). Addresses are
	// truncated to this width on every access, the way a hardware bus
	// ignores lines it does not have. Defaults to DefaultAddressBits.
	AddressBits int
	// TrackWrites records every written address in a dirty bitmap.
	TrackWrites bool
}

// Stats are plain counters; the Space is single-threaded by design.
type Stats struct {
	Segments     int
	LiveBytes    int64
	Inserts      uint64
	LazyAllocs   uint64
	MRUHits      uint64
	IndexLookups uint64
	Resets       uint64
}

// Space is a sparse byte-addressable address space. It simulates a full
// 2^AddressBits range while materializing only the segments that have been
// touched. Unwritten memory reads as zero; the first write to an unmapped
// address materializes a zero-filled segment around it.
//
// A Space is not safe for concurrent use. The MRU slot is a single mutable
// cache with no synchronization; callers needing concurrency must serialize
// externally.
type Space struct {
	minSeg  uint64
	maxAddr uint64
	bits    int

	tab table
	idx *interval.Tree[Handle]
	mru Handle

	overlay *Space
	tracker *Tracker

	stats Stats
}

// New creates an empty Space.
func New(cfg Config) (*Space, error) {
	if cfg.MinSegmentSize == 0 {
		cfg.MinSegmentSize = DefaultMinSegmentSize
	}
	if cfg.AddressBits == 0 {
		cfg.AddressBits = DefaultAddressBits
	}
	if cfg.MinSegmentSize < 3 || cfg.MinSegmentSize%2 == 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSegmentSize, cfg.MinSegmentSize)
	}
	if cfg.AddressBits < 1 || cfg.AddressBits > 64 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAddressBits, cfg.AddressBits)
	}

	maxAddr := ^uint64(0)
	if cfg.AddressBits < 64 {
		maxAddr = (uint64(1) << cfg.AddressBits) - 1
	}

	s := &Space{
		minSeg:  uint64(cfg.MinSegmentSize),
		maxAddr: maxAddr,
		bits:    cfg.AddressBits,
		idx:     interval.New[Handle](nil),
	}
	if cfg.TrackWrites {
		s.tracker = NewTracker()
	}
	return s, nil
}

// MaxAddr returns the highest representable address.
func (s *Space) MaxAddr() uint64 { return s.maxAddr }

// AddressBits returns the configured address width.
func (s *Space) AddressBits() int { return s.bits }

// MinSegmentSize returns the lazy allocation width.
func (s *Space) MinSegmentSize() int { return int(s.minSeg) }

// Stats returns a snapshot of the space's counters.
func (s *Space) Stats() Stats {
	st := s.stats
	st.Segments = s.tab.count
	st.LiveBytes = s.tab.bytes
	return st
}

func (s *Space) mask(addr uint64) uint64 { return addr & s.maxAddr }

// Insert installs data's byte range at start, coalescing with any live
// segments it overlaps or touches. The Space takes ownership of data.
// Inserting counts as a write for dirty tracking.
func (s *Space) Insert(start uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	start = s.mask(start)
	h := s.insertSegment(start, data)
	if s.tracker != nil && h.Valid() {
		// The merged segment may span more than the inserted range; only
		// the inserted bytes are dirty.
		end := start + uint64(len(data)) - 1
		if end > s.maxAddr {
			end = s.maxAddr
		}
		s.tracker.MarkRange(start, end)
	}
}

// insertSegment is the coalescing core shared by Insert, lazy allocation and
// Reset. It guarantees the live set stays non-overlapping and minimal:
// segments fully covered by the new range are dropped, segments overlapping
// or adjacent at either edge are merged, new bytes win on overlap.
func (s *Space) insertSegment(start uint64, data []byte) Handle {
	if len(data) == 0 {
		return NoHandle
	}
	// The top of the address space is a hard wall, never an error.
	if avail := s.maxAddr - start; uint64(len(data))-1 > avail {
		data = data[:avail+1]
	}

	seg := Segment{start: start, data: data}
	segEnd := seg.End()

	keep := make(map[Handle]struct{}, s.tab.count)
	s.idx.Visit(func(iv interval.Interval[Handle]) bool {
		keep[iv.Value] = struct{}{}
		return true
	})

	// Segments wholly inside the new range are superseded outright.
	for _, iv := range s.idx.Contained(seg.start, storedHi(segEnd)) {
		delete(keep, iv.Value)
	}

	// Coalesce at the two edge addresses. Probing one past the end also
	// catches the segment that starts exactly there (adjacency); the upper
	// probe is skipped at the ceiling, where no such neighbor can exist.
	edges := make([]uint64, 0, 2)
	edges = append(edges, seg.start)
	if segEnd < s.maxAddr {
		edges = append(edges, segEnd+1)
	}
	for _, edge := range edges {
		for _, iv := range s.idx.OverlappingPoint(edge) {
			h := iv.Value
			if old := s.tab.get(h); old != nil {
				coalesce(old, &seg)
			}
			delete(keep, h)
		}
	}

	// Release everything that did not survive, then batch-rebuild the index
	// from the keep-set plus the merged segment. The tree is optimized for
	// batch construction, not incremental edits.
	s.idx.Visit(func(iv interval.Interval[Handle]) bool {
		if _, ok := keep[iv.Value]; !ok {
			s.tab.release(iv.Value)
		}
		return true
	})

	nh := s.tab.alloc(seg.start, seg.data)

	ivs := make([]interval.Interval[Handle], 0, len(keep)+1)
	for h := range keep {
		kept := s.tab.get(h)
		if kept == nil {
			panic("sparse: keep-set references released segment")
		}
		ivs = append(ivs, interval.Interval[Handle]{Lo: kept.start, Hi: storedHi(kept.End()), Value: h})
	}
	ivs = append(ivs, interval.Interval[Handle]{Lo: seg.start, Hi: storedHi(seg.End()), Value: nh})

	s.idx = interval.New(ivs)
	s.mru = nh
	s.stats.Inserts++

	return nh
}

// coalesce merges old into merged, preferring merged's bytes on overlap.
// old's non-overlapping prefix and/or suffix are grafted on.
func coalesce(old *Segment, merged *Segment) {
	if merged.start <= old.start && merged.End() >= old.End() {
		return
	}

	if old.start < merged.start {
		n := merged.start - old.start
		prefix := old.data[:n:n] // full slice cap forces append to copy
		merged.data = append(prefix, merged.data...)
		merged.start = old.start
	}

	if old.End() > merged.End() {
		n := old.End() - merged.End()
		merged.data = append(merged.data, old.data[uint64(len(old.data))-n:]...)
	}
}

// segmentForAddress returns the segment covering addr, materializing one if
// none exists. It never fails: sparse memory conceptually covers the whole
// representable range.
//
// Resolution order: MRU slot (advisory, re-validated), index lookup with true
// containment check, lazy materialization plus one retry. More than one true
// containment hit means the non-overlap invariant is broken and is fatal.
func (s *Space) segmentForAddress(addr uint64) *Segment {
	if seg := s.tab.get(s.mru); seg != nil && seg.Contains(addr) {
		s.stats.MRUHits++
		return seg
	}

	for attempt := 0; attempt < 2; attempt++ {
		s.stats.IndexLookups++

		var (
			found *Segment
			fh    Handle
			hits  int
		)
		for _, iv := range s.idx.OverlappingPoint(addr) {
			// An index hit at a stored upper bound is the neighbor's
			// one-past edge, not real coverage; re-validate.
			if seg := s.tab.get(iv.Value); seg != nil && seg.Contains(addr) {
				found = seg
				fh = iv.Value
				hits++
			}
		}
		switch {
		case hits > 1:
			panic(fmt.Sprintf("sparse: %d live segments cover address %#x", hits, addr))
		case hits == 1:
			s.mru = fh
			return found
		}

		s.createMissingSegment(addr)
	}

	panic(fmt.Sprintf("sparse: failed to materialize segment for address %#x", addr))
}

// createMissingSegment materializes a zero-filled segment of minSeg bytes
// centered on addr, shifted up at address zero, clamped at the ceiling and
// truncated against intruding neighbors so it never overlaps live segments.
func (s *Space) createMissingSegment(addr uint64) {
	half := s.minSeg / 2

	lo := uint64(0)
	if addr >= half {
		lo = addr - half
	}
	hi := lo + s.minSeg - 1
	if hi < lo || hi > s.maxAddr {
		hi = s.maxAddr
	}

	// Nearest neighbors intruding on the candidate window.
	var (
		lowerEnd   uint64
		haveLower  bool
		upperStart uint64
		haveUpper  bool
	)
	for _, iv := range s.idx.Overlapping(lo, hi) {
		seg := s.tab.get(iv.Value)
		if seg == nil {
			continue
		}
		switch {
		case seg.End() < addr:
			if seg.End() >= lo && (!haveLower || seg.End() > lowerEnd) {
				lowerEnd = seg.End()
				haveLower = true
			}
		case seg.start > addr:
			if seg.start <= hi && (!haveUpper || seg.start < upperStart) {
				upperStart = seg.start
				haveUpper = true
			}
		default:
			panic(fmt.Sprintf("sparse: live segment covers address %#x during materialization", addr))
		}
	}

	if haveLower {
		// Truncate the start past the lower neighbor and grow the upper
		// bound by the truncated amount to preserve the window width.
		shift := lowerEnd + 1 - lo
		lo = lowerEnd + 1
		grown := hi + shift
		if grown < hi || grown > s.maxAddr {
			grown = s.maxAddr
		}
		hi = grown
	}
	if haveUpper && upperStart <= hi {
		hi = upperStart - 1
	}

	s.stats.LazyAllocs++
	s.insertSegment(lo, make([]byte, hi-lo+1))
}

// WriteByte writes value at addr, materializing a segment on first touch.
func (s *Space) WriteByte(addr uint64, value byte) {
	addr = s.mask(addr)
	seg := s.segmentForAddress(addr)
	seg.data[addr-seg.start] = value
	if s.tracker != nil {
		s.tracker.Mark(addr)
	}
}

// ReadByte reads the byte at addr. Unmapped addresses read as zero; like
// writes, reads materialize the surrounding segment.
func (s *Space) ReadByte(addr uint64) byte {
	addr = s.mask(addr)
	seg := s.segmentForAddress(addr)
	return seg.data[addr-seg.start]
}

// WriteValue writes the low width bytes of value at addr, least significant
// byte first.
func (s *Space) WriteValue(addr uint64, value uint64, width int) error {
	if width < 1 || width > 8 {
		return fmt.Errorf("%w: got %d", ErrInvalidWidth, width)
	}
	for i := 0; i < width; i++ {
		s.WriteByte(addr+uint64(i), byte(value>>(8*i)))
	}
	return nil
}

// ReadValue assembles width bytes starting at addr, little-endian.
func (s *Space) ReadValue(addr uint64, width int) (uint64, error) {
	if width < 1 || width > 8 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidWidth, width)
	}
	var value uint64
	for i := 0; i < width; i++ {
		value |= uint64(s.ReadByte(addr+uint64(i))) << (8 * i)
	}
	return value, nil
}

// Peek reads the byte at addr without materializing anything and without
// touching the MRU slot. Unmapped addresses read as zero.
func (s *Space) Peek(addr uint64) byte {
	addr = s.mask(addr)
	for _, iv := range s.idx.OverlappingPoint(addr) {
		if seg := s.tab.get(iv.Value); seg != nil && seg.Contains(addr) {
			return seg.data[addr-seg.start]
		}
	}
	return 0
}

// PeekValue assembles width bytes starting at addr without materializing.
func (s *Space) PeekValue(addr uint64, width int) (uint64, error) {
	if width < 1 || width > 8 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidWidth, width)
	}
	var value uint64
	for i := 0; i < width; i++ {
		value |= uint64(s.Peek(addr+uint64(i))) << (8 * i)
	}
	return value, nil
}

// Contains reports whether a live segment truly covers addr. Index hits at a
// segment's one-past edge are filtered out. Does not mutate the Space.
func (s *Space) Contains(addr uint64) bool {
	_, ok := s.Lookup(addr)
	return ok
}

// Lookup returns the handle of the live segment covering addr, if any.
// Unlike segmentForAddress it never materializes and never updates the MRU.
func (s *Space) Lookup(addr uint64) (Handle, bool) {
	addr = s.mask(addr)
	for _, iv := range s.idx.OverlappingPoint(addr) {
		if seg := s.tab.get(iv.Value); seg != nil && seg.Contains(addr) {
			return iv.Value, true
		}
	}
	return NoHandle, false
}

// Resolve returns the segment for h, or nil if h is stale (its segment has
// been coalesced away or the space was cleared).
func (s *Space) Resolve(h Handle) *Segment {
	return s.tab.get(h)
}

// Visit enumerates the live segments in address order. The data slice passed
// to fn is the live buffer; callers must not retain it across mutations.
func (s *Space) Visit(fn func(start uint64, data []byte) bool) {
	s.idx.Visit(func(iv interval.Interval[Handle]) bool {
		seg := s.tab.get(iv.Value)
		if seg == nil {
			panic("sparse: index references released segment")
		}
		return fn(seg.start, seg.data)
	})
}

// AddInit inserts a segment into the initialization overlay, a nested Space
// holding the image restored by Reset. The live store is untouched. The
// overlay is created on first use and coalesces exactly like the live store.
func (s *Space) AddInit(start uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	if s.overlay == nil {
		overlay, err := New(Config{
			MinSegmentSize: int(s.minSeg),
			AddressBits:    s.bits,
		})
		if err != nil {
			panic(fmt.Sprintf("sparse: overlay config invalid: %v", err))
		}
		s.overlay = overlay
	}
	s.overlay.Insert(start, data)
}

// Overlay returns the initialization overlay, or nil if none was populated.
func (s *Space) Overlay() *Space { return s.overlay }

// Reset drops all live segments and restores the initialization image.
// Overlay segments are deep-copied: later writes to live memory never reach
// the overlay, so a second Reset reproduces the image exactly.
func (s *Space) Reset() {
	s.Clear()
	s.stats.Resets++
	if s.overlay == nil {
		return
	}
	s.overlay.Visit(func(start uint64, data []byte) bool {
		s.insertSegment(start, slices.Clone(data))
		return true
	})
}

// Clear drops all live segments. The initialization overlay is preserved.
func (s *Space) Clear() {
	s.tab.clear()
	s.idx = interval.New[Handle](nil)
	s.mru = NoHandle
	if s.tracker != nil {
		s.tracker.Clear()
	}
}

// ClearInit drops the initialization overlay.
func (s *Space) ClearInit() { s.overlay = nil }

// Tracker returns the dirty-write tracker, or nil if tracking is disabled.
func (s *Space) Tracker() *Tracker { return s.tracker }
