package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression algorithm for the image body.
type Compression uint8

const (
	// CompressionNone stores blocks uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast, decent ratio for
	// zero-heavy memory).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd block compression (better ratio, good for
	// cold archived snapshots).
	CompressionZSTD Compression = 2
)

// String returns the stable name recorded in manifests.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression is the inverse of String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("snapshot: unknown compression %q", name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Each block carries an 8-byte header:
// [UncompressedSize uint32][CompressedSize uint32][Data...]
// CompressedSize == 0 means the block is stored raw, which also covers
// incompressible blocks and CompressionNone.
const blockHeaderSize = 8

const defaultBlockSize = 256 * 1024

// compressBlock encodes one block with header. Blocks whose compressed form
// saves less than 10% are stored raw.
func compressBlock(data []byte, comp Compression) ([]byte, error) {
	var compressed []byte
	var err error

	switch comp {
	case CompressionLZ4:
		compressed, err = compressBlockLZ4(data)
	case CompressionZSTD:
		compressed = compressBlockZSTD(data)
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		result := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[4:], 0)
		copy(result[blockHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], uint32(len(compressed)))
	copy(result[blockHeaderSize:], compressed)
	return result, nil
}

func compressBlockLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible.
		return nil, nil
	}
	return compressed[:n], nil
}

func compressBlockZSTD(data []byte) []byte {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)
	return enc.EncodeAll(data, nil)
}

// blockWriter buffers body bytes and flushes them as compressed blocks.
type blockWriter struct {
	w         io.Writer
	comp      Compression
	blockSize int
	buffer    *bytes.Buffer
	written   int64
}

func newBlockWriter(w io.Writer, comp Compression, blockSize int) *blockWriter {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return &blockWriter{
		w:         w,
		comp:      comp,
		blockSize: blockSize,
		buffer:    bytes.NewBuffer(make([]byte, 0, blockSize)),
	}
}

func (c *blockWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := c.blockSize - c.buffer.Len()
		if space <= 0 {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
			space = c.blockSize
		}

		toWrite := min(len(p), space)
		n, err := c.buffer.Write(p[:toWrite])
		if err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *blockWriter) flushBlock() error {
	if c.buffer.Len() == 0 {
		return nil
	}

	block, err := compressBlock(c.buffer.Bytes(), c.comp)
	if err != nil {
		return err
	}

	n, err := c.w.Write(block)
	if err != nil {
		return err
	}
	c.written += int64(n)
	c.buffer.Reset()
	return nil
}

// Flush writes any remaining buffered data.
func (c *blockWriter) Flush() error {
	return c.flushBlock()
}

// decompressBody expands a sequence of compressed blocks. rawSize is used
// to pre-size the output and verified against the result.
func decompressBody(data []byte, comp Compression, rawSize uint64) ([]byte, error) {
	result := make([]byte, 0, rawSize)
	off := 0

	for off < len(data) {
		if off+blockHeaderSize > len(data) {
			return nil, ErrTruncated
		}
		uncompressedSize := int(binary.LittleEndian.Uint32(data[off:]))
		compressedSize := int(binary.LittleEndian.Uint32(data[off+4:]))
		off += blockHeaderSize

		if compressedSize == 0 {
			if off+uncompressedSize > len(data) {
				return nil, ErrTruncated
			}
			result = append(result, data[off:off+uncompressedSize]...)
			off += uncompressedSize
			continue
		}

		if off+compressedSize > len(data) {
			return nil, ErrTruncated
		}
		block := data[off : off+compressedSize]
		off += compressedSize

		switch comp {
		case CompressionZSTD:
			dec := getZstdDecoder()
			decoded, err := dec.DecodeAll(block, nil)
			putZstdDecoder(dec)
			if err != nil {
				return nil, err
			}
			if len(decoded) != uncompressedSize {
				return nil, errors.New("snapshot: decompressed size mismatch")
			}
			result = append(result, decoded...)

		case CompressionLZ4:
			decoded := make([]byte, uncompressedSize)
			n, err := lz4.UncompressBlock(block, decoded)
			if err != nil {
				return nil, err
			}
			if n != uncompressedSize {
				return nil, errors.New("snapshot: decompressed size mismatch")
			}
			result = append(result, decoded...)

		default:
			return nil, fmt.Errorf("snapshot: compressed block with compression %q", comp)
		}
	}

	if uint64(len(result)) != rawSize {
		return nil, errors.New("snapshot: body size mismatch")
	}
	return result, nil
}
