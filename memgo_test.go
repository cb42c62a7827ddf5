package memgo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memgo"
	"github.com/hupe1980/memgo/resource"
)

func TestNewDefaults(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	assert.Equal(t, 32, mem.AddressBits())
	assert.Equal(t, uint64(0xFFFF_FFFF), mem.MaxAddr())
	assert.Equal(t, 15, mem.MinSegmentSize())
	assert.Equal(t, 0, mem.Stats().Segments)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := memgo.New(memgo.WithMinSegmentSize(4))
	var cfgErr *memgo.ErrInvalidConfig
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "min segment size", cfgErr.Field)
	assert.Equal(t, 4, cfgErr.Value)

	_, err = memgo.New(memgo.WithAddressBits(65))
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "address bits", cfgErr.Field)
	assert.Equal(t, 65, cfgErr.Value)
}

func TestReadWriteByte(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	mem.WriteByte(0x1000, 0xAB)
	assert.Equal(t, byte(0xAB), mem.ReadByte(0x1000))

	// Untouched memory reads as zero but the read materializes a segment.
	assert.Equal(t, byte(0), mem.ReadByte(0xDEAD_0000))
	assert.Equal(t, 2, mem.Stats().Segments)
}

func TestAddressMasking(t *testing.T) {
	mem, err := memgo.New(memgo.WithAddressBits(16))
	require.NoError(t, err)

	// Bit 16 and above are dropped like missing bus lines.
	mem.WriteByte(0x1_0042, 0x99)
	assert.Equal(t, byte(0x99), mem.ReadByte(0x0042))
}

func TestReadWriteValue(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	require.NoError(t, mem.WriteValue(0x2000, 0xDEADBEEF, 4))

	v, err := mem.ReadValue(0x2000, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), v)

	// Little-endian byte order.
	assert.Equal(t, byte(0xEF), mem.ReadByte(0x2000))
	assert.Equal(t, byte(0xDE), mem.ReadByte(0x2003))
}

func TestInvalidWidth(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	assert.ErrorIs(t, mem.WriteValue(0, 1, 0), memgo.ErrInvalidWidth)
	assert.ErrorIs(t, mem.WriteValue(0, 1, 9), memgo.ErrInvalidWidth)

	_, err = mem.ReadValue(0, 0)
	assert.ErrorIs(t, err, memgo.ErrInvalidWidth)

	_, err = mem.PeekValue(0, 9)
	assert.ErrorIs(t, err, memgo.ErrInvalidWidth)
}

func TestPeekDoesNotMaterialize(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	assert.Equal(t, byte(0), mem.PeekByte(0x5000))

	v, err := mem.PeekValue(0x5000, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	assert.Equal(t, 0, mem.Stats().Segments)
	assert.False(t, mem.Contains(0x5000))
}

func TestReadWriteBytes(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	payload := []byte("hello, sparse world")
	mem.WriteBytes(0x3000, payload)

	assert.Equal(t, payload, mem.ReadBytes(0x3000, len(payload)))
	assert.Equal(t, 1, mem.Stats().Segments)
}

func TestReadBytesNonPositiveCount(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	assert.Nil(t, mem.ReadBytes(0x100, 0))
	assert.Nil(t, mem.ReadBytes(0x100, -3))
	assert.Equal(t, 0, mem.Stats().Segments)
}

func TestInsertSegmentCoalesces(t *testing.T) {
	ctx := context.Background()
	mem, err := memgo.New()
	require.NoError(t, err)

	require.NoError(t, mem.InsertSegment(ctx, 100, []byte{1, 2, 3, 4, 5}))
	require.NoError(t, mem.InsertSegment(ctx, 105, []byte{6, 7, 8, 9, 10}))

	segs := mem.Segments()
	require.Len(t, segs, 1)
	assert.Equal(t, uint64(100), segs[0].Start)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, segs[0].Data)
}

func TestSegmentsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mem, err := memgo.New()
	require.NoError(t, err)

	require.NoError(t, mem.InsertSegment(ctx, 0, []byte{1, 2, 3}))

	segs := mem.Segments()
	require.Len(t, segs, 1)
	segs[0].Data[0] = 0xFF

	assert.Equal(t, byte(1), mem.ReadByte(0))
}

func TestInsertOwnsItsCopy(t *testing.T) {
	ctx := context.Background()
	mem, err := memgo.New()
	require.NoError(t, err)

	data := []byte{1, 2, 3}
	require.NoError(t, mem.InsertSegment(ctx, 0, data))
	data[0] = 0xFF

	assert.Equal(t, byte(1), mem.ReadByte(0))
}

func TestMemoryLimitRefusesInsertsNotWrites(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 10})

	mem, err := memgo.New(memgo.WithResourceController(rc))
	require.NoError(t, err)

	err = mem.InsertSegment(ctx, 0, make([]byte, 100))
	assert.ErrorIs(t, err, memgo.ErrMemoryLimit)
	assert.Equal(t, 0, mem.Stats().Segments)

	// A write must not fail, even though it materializes 15 bytes.
	mem.WriteByte(0x1000, 1)
	assert.Equal(t, byte(1), mem.ReadByte(0x1000))
	assert.Equal(t, int64(15), rc.MemoryUsage())
}

func TestWriteTracking(t *testing.T) {
	mem, err := memgo.New(memgo.WithWriteTracking())
	require.NoError(t, err)

	mem.WriteByte(100, 1)
	mem.WriteByte(101, 2)
	mem.WriteByte(105, 3)

	assert.Equal(t, []memgo.Range{
		{Start: 100, End: 101},
		{Start: 105, End: 105},
	}, mem.DirtyRanges())
	assert.Equal(t, uint64(3), mem.Stats().DirtyAddrs)

	// Reads never dirty anything.
	mem.ReadByte(200)
	assert.Equal(t, uint64(3), mem.Stats().DirtyAddrs)

	mem.ClearDirty()
	assert.Empty(t, mem.DirtyRanges())
}

func TestWriteTrackingDisabled(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	mem.WriteByte(100, 1)
	assert.Nil(t, mem.DirtyRanges())
	assert.Equal(t, uint64(0), mem.Stats().DirtyAddrs)
}

func TestResetRestoresInitImage(t *testing.T) {
	ctx := context.Background()
	mem, err := memgo.New()
	require.NoError(t, err)

	require.NoError(t, mem.AddInitSegment(ctx, 0x100, []byte{1, 2, 3}))

	// The overlay does not touch live memory until Reset.
	assert.Equal(t, byte(0), mem.PeekByte(0x100))

	mem.Reset(ctx)
	assert.Equal(t, byte(1), mem.ReadByte(0x100))

	mem.WriteByte(0x100, 0xFF)
	mem.WriteByte(0x9000, 0xFF)
	mem.Reset(ctx)

	assert.Equal(t, byte(1), mem.ReadByte(0x100))
	assert.Equal(t, byte(0), mem.PeekByte(0x9000))
	assert.Equal(t, uint64(2), mem.Stats().Resets)
}

func TestClearPreservesInitImage(t *testing.T) {
	ctx := context.Background()
	mem, err := memgo.New()
	require.NoError(t, err)

	require.NoError(t, mem.AddInitSegment(ctx, 0, []byte{7}))
	mem.WriteByte(0x100, 1)

	mem.Clear()
	assert.Equal(t, 0, mem.Stats().Segments)
	require.Len(t, mem.InitSegments(), 1)

	mem.Reset(ctx)
	assert.Equal(t, byte(7), mem.ReadByte(0))
}

func TestClearInitSegments(t *testing.T) {
	ctx := context.Background()
	mem, err := memgo.New()
	require.NoError(t, err)

	require.NoError(t, mem.AddInitSegment(ctx, 0, []byte{7}))
	mem.ClearInitSegments()

	assert.Nil(t, mem.InitSegments())

	mem.Reset(ctx)
	assert.Equal(t, 0, mem.Stats().Segments)
}

func TestStatsCounters(t *testing.T) {
	mem, err := memgo.New()
	require.NoError(t, err)

	mem.WriteByte(0x1000, 1)
	mem.WriteByte(0x1001, 2) // MRU hit, same segment

	st := mem.Stats()
	assert.Equal(t, uint64(1), st.LazyAllocs)
	assert.GreaterOrEqual(t, st.MRUHits, uint64(1))
	assert.Equal(t, int64(15), st.LiveBytes)
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()
	metrics := &memgo.BasicMetricsCollector{}

	mem, err := memgo.New(memgo.WithMetricsCollector(metrics))
	require.NoError(t, err)

	require.NoError(t, mem.InsertSegment(ctx, 0, []byte{1}))
	mem.Reset(ctx)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.InsertCount)
	assert.Equal(t, int64(0), stats.InsertErrors)
	assert.Equal(t, int64(1), stats.ResetCount)
}
