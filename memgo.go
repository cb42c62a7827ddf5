// Package memgo provides a sparse byte-addressable memory model for emulators,
// simulators and binary tooling.
//
// Memgo simulates a full 2^AddressBits address space while materializing only
// the regions that have been touched, with production-ready features including:
//
//   - Lazy materialization: unwritten memory reads as zero, the first write
//     allocates a small segment around the touched address
//   - Automatic coalescing: overlapping and adjacent segments merge into one
//   - Initialization overlay: Reset restores a recorded boot image in O(image)
//   - Dirty tracking with Roaring Bitmap-based write sets
//   - Binary snapshots with LZ4/zstd compression and CRC32C integrity
//   - Pluggable snapshot storage: local files (mmap zero-copy), in-memory,
//     Amazon S3 and MinIO, with an LRU block cache for remote reads
//   - Shared resource limits: memory budgets, snapshot slots, IO throttling
//
// # Quick Start
//
// Create an address space and access it like flat memory:
//
//	mem, err := memgo.New(
//	    memgo.WithAddressBits(32),
//	    memgo.WithWriteTracking(),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	mem.WriteByte(0x1000, 0xFF)
//	v := mem.ReadByte(0x1000)           // 0xFF
//	z := mem.ReadByte(0xDEAD_0000)      // 0x00, nothing allocated beforehand
//	_ = mem.WriteValue(0x2000, 0xCAFE, 2)
//
// Record a boot image and return to it between runs:
//
//	_ = mem.AddInitSegment(ctx, 0x0, bootROM)
//	mem.Reset(ctx) // drops all writes, restores bootROM
//
// Persist the space to any blob store:
//
//	store := blobstore.NewLocalStore("./snapshots")
//	_ = mem.SaveSnapshot(ctx, store, "machine-a.smg")
//	_ = mem.LoadSnapshot(ctx, store, "machine-a.smg")
//
// # Concurrency
//
// All AddressSpace methods are safe for concurrent use. The underlying sparse
// store is single-threaded and serialized behind one mutex; simulators that
// need per-core parallelism should run one AddressSpace per core.
package memgo

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/memgo/blobstore"
	"github.com/hupe1980/memgo/internal/sparse"
	"github.com/hupe1980/memgo/resource"
	"github.com/hupe1980/memgo/snapshot"
)

// Segment is a contiguous run of bytes at an absolute address.
type Segment struct {
	Start uint64
	Data  []byte
}

// Range is an inclusive run of addresses.
type Range struct {
	Start uint64
	End   uint64
}

// Stats is a snapshot of the address space counters.
type Stats struct {
	// Segments is the number of live segments.
	Segments int
	// LiveBytes is the total bytes of materialized segment data.
	LiveBytes int64
	// Inserts counts coalescing segment installs, including lazy ones.
	Inserts uint64
	// LazyAllocs counts segments materialized by first-touch accesses.
	LazyAllocs uint64
	// MRUHits counts accesses resolved by the most-recently-used slot.
	MRUHits uint64
	// IndexLookups counts accesses that fell through to the interval index.
	IndexLookups uint64
	// Resets counts restores of the initialization image.
	Resets uint64
	// DirtyAddrs is the number of distinct written addresses, or zero when
	// write tracking is disabled.
	DirtyAddrs uint64
}

// AddressSpace is a sparse byte-addressable memory. Reads and writes work at
// any address in the configured range; untouched memory reads as zero.
type AddressSpace struct {
	mu      sync.Mutex
	space   *sparse.Space
	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller
	comp    snapshot.Compression

	trackWrites bool
	lastLive    int64 // bytes last reported to the resource controller
}

// New creates an empty AddressSpace.
func New(optFns ...Option) (*AddressSpace, error) {
	opts := applyOptions(optFns)

	space, err := sparse.New(sparse.Config{
		MinSegmentSize: opts.minSegmentSize,
		AddressBits:    opts.addressBits,
		TrackWrites:    opts.trackWrites,
	})
	if err != nil {
		return nil, configError(err, opts)
	}

	return &AddressSpace{
		space:       space,
		logger:      opts.logger,
		metrics:     opts.metricsCollector,
		rc:          opts.resourceController,
		comp:        opts.compression,
		trackWrites: opts.trackWrites,
	}, nil
}

func configError(err error, opts options) error {
	switch {
	case errors.Is(err, sparse.ErrInvalidSegmentSize):
		return &ErrInvalidConfig{Field: "min segment size", Value: opts.minSegmentSize, cause: err}
	case errors.Is(err, sparse.ErrInvalidAddressBits):
		return &ErrInvalidConfig{Field: "address bits", Value: opts.addressBits, cause: err}
	}
	return err
}

// AddressBits returns the address width. LoadSnapshot may change it.
func (as *AddressSpace) AddressBits() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.space.AddressBits()
}

// MaxAddr returns the highest representable address.
func (as *AddressSpace) MaxAddr() uint64 {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.space.MaxAddr()
}

// MinSegmentSize returns the lazy allocation width.
func (as *AddressSpace) MinSegmentSize() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.space.MinSegmentSize()
}

// WriteByte writes value at addr. The first write to an unmapped address
// materializes a zero-filled segment around it; writes never fail, even over
// a configured memory limit.
func (as *AddressSpace) WriteByte(addr uint64, value byte) {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.space.WriteByte(addr, value)
	as.syncMemory()
}

// ReadByte reads the byte at addr. Unmapped addresses read as zero; like
// writes, reads materialize the surrounding segment.
func (as *AddressSpace) ReadByte(addr uint64) byte {
	as.mu.Lock()
	defer as.mu.Unlock()

	v := as.space.ReadByte(addr)
	as.syncMemory()
	return v
}

// WriteValue writes the low width bytes of value at addr, least significant
// byte first. width must be between 1 and 8.
func (as *AddressSpace) WriteValue(addr uint64, value uint64, width int) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	err := as.space.WriteValue(addr, value, width)
	as.syncMemory()
	return translateError(err)
}

// ReadValue assembles width bytes starting at addr, little-endian.
func (as *AddressSpace) ReadValue(addr uint64, width int) (uint64, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	v, err := as.space.ReadValue(addr, width)
	as.syncMemory()
	return v, translateError(err)
}

// PeekByte reads the byte at addr without materializing anything. Debuggers
// and memory viewers use this to inspect memory without growing it.
func (as *AddressSpace) PeekByte(addr uint64) byte {
	as.mu.Lock()
	defer as.mu.Unlock()

	return as.space.Peek(addr)
}

// PeekValue assembles width bytes starting at addr without materializing.
func (as *AddressSpace) PeekValue(addr uint64, width int) (uint64, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	v, err := as.space.PeekValue(addr, width)
	return v, translateError(err)
}

// WriteBytes writes data starting at addr. Equivalent to a byte-wise write
// loop but coalesces into a single segment install.
func (as *AddressSpace) WriteBytes(addr uint64, data []byte) {
	if len(data) == 0 {
		return
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	as.space.Insert(addr, slices.Clone(data))
	as.syncMemory()
}

// ReadBytes reads n bytes starting at addr, materializing as it goes.
// Non-positive counts return nil.
func (as *AddressSpace) ReadBytes(addr uint64, n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)

	as.mu.Lock()
	defer as.mu.Unlock()

	for i := range out {
		out[i] = as.space.ReadByte(addr + uint64(i))
	}
	as.syncMemory()
	return out
}

// InsertSegment installs data at start, coalescing with any live segments it
// overlaps or touches. New bytes win on overlap. Unlike plain writes, an
// explicit insert honors the configured memory limit.
func (as *AddressSpace) InsertSegment(ctx context.Context, start uint64, data []byte) error {
	begin := time.Now()
	err := as.insertSegment(start, data)
	as.metrics.RecordInsert(time.Since(begin), err)
	as.logger.LogInsert(ctx, start, len(data), err)
	return err
}

func (as *AddressSpace) insertSegment(start uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if err := as.rc.CheckMemory(int64(len(data))); err != nil {
		return translateError(err)
	}
	as.space.Insert(start, slices.Clone(data))
	as.syncMemory()
	return nil
}

// AddInitSegment records data at start in the initialization overlay, the
// image restored by Reset. The live store is untouched.
func (as *AddressSpace) AddInitSegment(ctx context.Context, start uint64, data []byte) error {
	begin := time.Now()
	err := as.addInitSegment(start, data)
	as.metrics.RecordInsert(time.Since(begin), err)
	as.logger.LogInsert(ctx, start, len(data), err)
	return err
}

func (as *AddressSpace) addInitSegment(start uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if err := as.rc.CheckMemory(int64(len(data))); err != nil {
		return translateError(err)
	}
	as.space.AddInit(start, slices.Clone(data))
	as.syncMemory()
	return nil
}

// Reset drops all live segments and restores the initialization image. A
// second Reset reproduces the image exactly, regardless of writes in between.
func (as *AddressSpace) Reset(ctx context.Context) {
	begin := time.Now()

	as.mu.Lock()
	as.space.Reset()
	as.syncMemory()
	segments := as.space.Stats().Segments
	as.mu.Unlock()

	as.metrics.RecordReset(time.Since(begin))
	as.logger.LogReset(ctx, segments)
}

// Clear drops all live segments. The initialization overlay is preserved.
func (as *AddressSpace) Clear() {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.space.Clear()
	as.syncMemory()
}

// ClearInitSegments drops the initialization overlay.
func (as *AddressSpace) ClearInitSegments() {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.space.ClearInit()
	as.syncMemory()
}

// Contains reports whether a live segment covers addr. Does not materialize.
func (as *AddressSpace) Contains(addr uint64) bool {
	as.mu.Lock()
	defer as.mu.Unlock()

	return as.space.Contains(addr)
}

// Segments returns deep copies of the live segments in address order.
func (as *AddressSpace) Segments() []Segment {
	as.mu.Lock()
	defer as.mu.Unlock()

	return copySegments(as.space)
}

// InitSegments returns deep copies of the initialization overlay segments in
// address order, or nil if no overlay was recorded.
func (as *AddressSpace) InitSegments() []Segment {
	as.mu.Lock()
	defer as.mu.Unlock()

	ov := as.space.Overlay()
	if ov == nil {
		return nil
	}
	return copySegments(ov)
}

func copySegments(s *sparse.Space) []Segment {
	var out []Segment
	s.Visit(func(start uint64, data []byte) bool {
		out = append(out, Segment{Start: start, Data: slices.Clone(data)})
		return true
	})
	return out
}

// DirtyRanges returns the written addresses coalesced into maximal inclusive
// runs, in ascending order. Returns nil unless WithWriteTracking is set.
func (as *AddressSpace) DirtyRanges() []Range {
	as.mu.Lock()
	defer as.mu.Unlock()

	t := as.space.Tracker()
	if t == nil {
		return nil
	}

	ranges := t.Ranges()
	out := make([]Range, len(ranges))
	for i, r := range ranges {
		out[i] = Range{Start: r.Start, End: r.End}
	}
	return out
}

// ClearDirty forgets all recorded writes. No-op without write tracking.
func (as *AddressSpace) ClearDirty() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if t := as.space.Tracker(); t != nil {
		t.Clear()
	}
}

// Stats returns a snapshot of the address space counters.
func (as *AddressSpace) Stats() Stats {
	as.mu.Lock()
	defer as.mu.Unlock()

	st := as.space.Stats()
	out := Stats{
		Segments:     st.Segments,
		LiveBytes:    st.LiveBytes,
		Inserts:      st.Inserts,
		LazyAllocs:   st.LazyAllocs,
		MRUHits:      st.MRUHits,
		IndexLookups: st.IndexLookups,
		Resets:       st.Resets,
	}
	if t := as.space.Tracker(); t != nil {
		out.DirtyAddrs = t.Len()
	}
	return out
}

// SaveSnapshot encodes the full address space, live segments and
// initialization overlay included, and writes it to the blob store. A JSON
// manifest describing the image is written next to it under name+".json" so
// tooling can inspect snapshots without decoding them.
func (as *AddressSpace) SaveSnapshot(ctx context.Context, store blobstore.BlobStore, name string) error {
	begin := time.Now()
	err := as.saveSnapshot(ctx, store, name)
	as.metrics.RecordSnapshotSave(time.Since(begin), err)
	as.logger.LogSnapshotSave(ctx, name, err)
	return translateError(err)
}

func (as *AddressSpace) saveSnapshot(ctx context.Context, store blobstore.BlobStore, name string) error {
	img := as.image()
	m, err := snapshot.Save(ctx, store, name, img, snapshot.Options{Compression: as.comp}, as.rc)
	if err != nil {
		return err
	}
	return snapshot.WriteManifest(ctx, store, name+".json", m)
}

// image deep-copies the live and init segments under the lock so the snapshot
// encodes a consistent view even while other goroutines keep writing.
func (as *AddressSpace) image() *snapshot.Image {
	as.mu.Lock()
	defer as.mu.Unlock()

	img := &snapshot.Image{
		AddressBits:    uint8(as.space.AddressBits()),
		MinSegmentSize: uint32(as.space.MinSegmentSize()),
	}
	as.space.Visit(func(start uint64, data []byte) bool {
		img.Segments = append(img.Segments, snapshot.Segment{Start: start, Data: slices.Clone(data)})
		return true
	})
	if ov := as.space.Overlay(); ov != nil {
		ov.Visit(func(start uint64, data []byte) bool {
			img.InitSegments = append(img.InitSegments, snapshot.Segment{Start: start, Data: slices.Clone(data)})
			return true
		})
	}
	return img
}

// LoadSnapshot replaces the address space content with a stored snapshot,
// adopting the snapshot's address width and segment size. Dirty tracking
// starts clean after a load.
func (as *AddressSpace) LoadSnapshot(ctx context.Context, store blobstore.BlobStore, name string) error {
	begin := time.Now()
	err := as.loadSnapshot(ctx, store, name)
	as.metrics.RecordSnapshotLoad(time.Since(begin), err)
	as.logger.LogSnapshotLoad(ctx, name, err)
	return translateError(err)
}

func (as *AddressSpace) loadSnapshot(ctx context.Context, store blobstore.BlobStore, name string) error {
	img, err := snapshot.Load(ctx, store, name, as.rc)
	if err != nil {
		return err
	}

	space, err := sparse.New(sparse.Config{
		MinSegmentSize: int(img.MinSegmentSize),
		AddressBits:    int(img.AddressBits),
		TrackWrites:    as.trackWrites,
	})
	if err != nil {
		return err
	}

	var total int64
	for _, seg := range img.Segments {
		total += int64(len(seg.Data))
	}
	for _, seg := range img.InitSegments {
		total += int64(len(seg.Data))
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if err := as.rc.CheckMemory(total - as.lastLive); err != nil {
		return err
	}

	for _, seg := range img.Segments {
		space.Insert(seg.Start, seg.Data)
	}
	for _, seg := range img.InitSegments {
		space.AddInit(seg.Start, seg.Data)
	}
	if t := space.Tracker(); t != nil {
		t.Clear()
	}

	as.space = space
	as.syncMemory()
	return nil
}

// LoadInitSnapshot installs a stored snapshot's live segments as the
// initialization overlay, replacing any existing overlay. The live store is
// untouched until Reset, which then restores the stored image.
func (as *AddressSpace) LoadInitSnapshot(ctx context.Context, store blobstore.BlobStore, name string) error {
	begin := time.Now()
	err := as.loadInitSnapshot(ctx, store, name)
	as.metrics.RecordSnapshotLoad(time.Since(begin), err)
	as.logger.LogSnapshotLoad(ctx, name, err)
	return translateError(err)
}

func (as *AddressSpace) loadInitSnapshot(ctx context.Context, store blobstore.BlobStore, name string) error {
	img, err := snapshot.Load(ctx, store, name, as.rc)
	if err != nil {
		return err
	}

	var total int64
	for _, seg := range img.Segments {
		total += int64(len(seg.Data))
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if err := as.rc.CheckMemory(total); err != nil {
		return err
	}

	as.space.ClearInit()
	for _, seg := range img.Segments {
		as.space.AddInit(seg.Start, seg.Data)
	}
	as.syncMemory()
	return nil
}

// syncMemory reports the live-byte delta since the last call to the resource
// controller. Must be called with the lock held after every mutation.
func (as *AddressSpace) syncMemory() {
	live := as.space.Stats().LiveBytes
	if ov := as.space.Overlay(); ov != nil {
		live += ov.Stats().LiveBytes
	}
	if delta := live - as.lastLive; delta != 0 {
		as.rc.AddMemory(delta)
		as.lastLive = live
	}
}
