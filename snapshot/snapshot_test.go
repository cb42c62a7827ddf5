package snapshot

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *Image {
	zeros := make([]byte, 100*1024)
	return &Image{
		AddressBits:    32,
		MinSegmentSize: 15,
		Segments: []Segment{
			{Start: 0x1000, Data: []byte{1, 2, 3, 4, 5}},
			{Start: 0x8000_0000, Data: zeros},
		},
		InitSegments: []Segment{
			{Start: 0x1000, Data: []byte{9, 9, 9}},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			img := testImage()

			data, err := Encode(img, Options{Compression: comp})
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, img, got)
		})
	}
}

func TestCompressionShrinksZeroHeavyImages(t *testing.T) {
	img := testImage()

	raw, err := Encode(img, Options{Compression: CompressionNone})
	require.NoError(t, err)
	lz4Data, err := Encode(img, Options{Compression: CompressionLZ4})
	require.NoError(t, err)
	zstdData, err := Encode(img, Options{Compression: CompressionZSTD})
	require.NoError(t, err)

	assert.Less(t, len(lz4Data), len(raw)/10)
	assert.Less(t, len(zstdData), len(raw)/10)
}

func TestDecodeEmptyImage(t *testing.T) {
	img := &Image{AddressBits: 16, MinSegmentSize: 7}

	data, err := Encode(img, DefaultOptions())
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(16), got.AddressBits)
	assert.Equal(t, uint32(7), got.MinSegmentSize)
	assert.Empty(t, got.Segments)
	assert.Empty(t, got.InitSegments)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data, err := Encode(testImage(), DefaultOptions())
	require.NoError(t, err)

	data[0] ^= 0xFF
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	data, err := Encode(testImage(), DefaultOptions())
	require.NoError(t, err)

	data[4] = 99
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestDecodeRejectsCorruptBody(t *testing.T) {
	data, err := Encode(testImage(), DefaultOptions())
	require.NoError(t, err)

	data[HeaderSize+10] ^= 0xFF
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	data, err := Encode(testImage(), DefaultOptions())
	require.NoError(t, err)

	_, err = Decode(data[:HeaderSize-1])
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = Decode(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeRejectsHugeBodySize(t *testing.T) {
	data, err := Encode(testImage(), DefaultOptions())
	require.NoError(t, err)

	// A BodySize near 2^64 wraps HeaderSize+BodySize below len(data); the
	// decoder must not fall for it.
	binary.LittleEndian.PutUint64(data[24:], ^uint64(0))
	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeRejectsHugeSegmentLength(t *testing.T) {
	img := &Image{AddressBits: 32, MinSegmentSize: 15,
		Segments: []Segment{{Start: 0, Data: []byte{1, 2, 3}}}}

	data, err := Encode(img, Options{Compression: CompressionNone})
	require.NoError(t, err)

	// Record layout in the raw body: start u64, length u64, bytes. The body
	// block carries an 8-byte framing header even uncompressed. A length
	// near 2^64 wraps off+length below len(raw).
	lengthOff := HeaderSize + blockHeaderSize + 8
	binary.LittleEndian.PutUint64(data[lengthOff:], ^uint64(0)-7)

	// Re-sign the body: the checksum only proves the file says what its
	// author wrote, not that the sizes are sane.
	binary.LittleEndian.PutUint32(data[40:], crc32.Checksum(data[HeaderSize:], castagnoli))

	_, err = Decode(data)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := FileHeader{
		Magic:            MagicNumber,
		Version:          Version,
		AddressBits:      48,
		Compression:      CompressionZSTD,
		MinSegmentSize:   31,
		SegmentCount:     12,
		InitSegmentCount: 3,
		BodySize:         1024,
		RawSize:          4096,
		Checksum:         0xDEADBEEF,
	}

	buf := h.Encode()
	require.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, &h, got)
}

func TestIncompressibleBlocksStoredRaw(t *testing.T) {
	// Already-compressed-looking data should fall back to raw blocks
	// instead of growing.
	data := make([]byte, 4096)
	state := uint64(0x9E3779B97F4A7C15)
	for i := range data {
		state = state*6364136223846793005 + 1442695040888963407
		data[i] = byte(state >> 56)
	}

	img := &Image{AddressBits: 32, MinSegmentSize: 15,
		Segments: []Segment{{Start: 0, Data: data}}}

	encoded, err := Encode(img, Options{Compression: CompressionLZ4})
	require.NoError(t, err)
	assert.Less(t, len(encoded), HeaderSize+16+len(data)+64)

	got, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got.Segments[0].Data))
}

func TestParseCompression(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		parsed, err := ParseCompression(comp.String())
		require.NoError(t, err)
		assert.Equal(t, comp, parsed)
	}

	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestBlockWriterSplitsLargeBodies(t *testing.T) {
	var out bytes.Buffer
	bw := newBlockWriter(&out, CompressionLZ4, 1024)

	payload := bytes.Repeat([]byte("memgo"), 2000)
	n, err := bw.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, bw.Flush())

	got, err := decompressBody(out.Bytes(), CompressionLZ4, uint64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
