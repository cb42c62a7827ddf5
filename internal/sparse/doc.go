// Package sparse implements the segment store behind memgo's AddressSpace.
//
// The store keeps a minimal set of non-overlapping, coalesced byte segments
// in an interval index, materializes new segments lazily on first touch of
// unmapped memory, and keeps a most-recently-used handle as an O(1) fast
// path for spatially local traffic. A nested Space acts as the
// initialization overlay restored by Reset.
//
// Ownership is arena-style: a handle table owns every byte buffer, and the
// interval index, the MRU slot and any handles returned to callers are
// observers. When coalescing absorbs a segment, its slot generation is
// bumped so outstanding handles become detectably stale instead of
// resolving to reused storage.
package sparse
