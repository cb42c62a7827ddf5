package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// Segment is one contiguous run of bytes at an absolute address.
type Segment struct {
	Start uint64
	Data  []byte
}

// Image is the decoded content of a snapshot file: the address space
// configuration, its live segments and its initialization segments.
type Image struct {
	AddressBits    uint8
	MinSegmentSize uint32
	Segments       []Segment
	InitSegments   []Segment
}

// Options tune how an image is encoded.
type Options struct {
	// Compression for the body. Default is LZ4.
	Compression Compression
	// BlockSize for body compression. Default 256KB.
	BlockSize int
}

// DefaultOptions returns the encoding defaults.
func DefaultOptions() Options {
	return Options{Compression: CompressionLZ4}
}

// Encode serializes an image into the snapshot file format.
func Encode(img *Image, opts Options) ([]byte, error) {
	if len(img.Segments) > math.MaxUint32 || len(img.InitSegments) > math.MaxUint32 {
		return nil, fmt.Errorf("snapshot: too many segments")
	}

	var body bytes.Buffer
	bw := newBlockWriter(&body, opts.Compression, opts.BlockSize)

	rawSize, err := writeSegments(bw, img.Segments, img.InitSegments)
	if err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	h := FileHeader{
		Magic:            MagicNumber,
		Version:          Version,
		AddressBits:      img.AddressBits,
		Compression:      opts.Compression,
		MinSegmentSize:   img.MinSegmentSize,
		SegmentCount:     uint32(len(img.Segments)),
		InitSegmentCount: uint32(len(img.InitSegments)),
		BodySize:         uint64(body.Len()),
		RawSize:          rawSize,
		Checksum:         crc32.Checksum(body.Bytes(), castagnoli),
	}

	out := make([]byte, 0, HeaderSize+body.Len())
	out = append(out, h.Encode()...)
	out = append(out, body.Bytes()...)
	return out, nil
}

func writeSegments(bw *blockWriter, groups ...[]Segment) (uint64, error) {
	var raw uint64
	var rec [16]byte

	for _, segs := range groups {
		for _, seg := range segs {
			binary.LittleEndian.PutUint64(rec[0:], seg.Start)
			binary.LittleEndian.PutUint64(rec[8:], uint64(len(seg.Data)))
			if _, err := bw.Write(rec[:]); err != nil {
				return 0, err
			}
			if _, err := bw.Write(seg.Data); err != nil {
				return 0, err
			}
			raw += 16 + uint64(len(seg.Data))
		}
	}
	return raw, nil
}

// Decode parses a snapshot file produced by Encode. The checksum is
// verified before any segment data is trusted.
func Decode(data []byte) (*Image, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	// Subtraction form: the header field is untrusted and an addition on the
	// left would wrap past the check.
	if h.BodySize > uint64(len(data))-HeaderSize {
		return nil, ErrTruncated
	}

	body := data[HeaderSize : HeaderSize+h.BodySize]
	if crc32.Checksum(body, castagnoli) != h.Checksum {
		return nil, ErrChecksum
	}

	raw, err := decompressBody(body, h.Compression, h.RawSize)
	if err != nil {
		return nil, err
	}

	img := &Image{
		AddressBits:    h.AddressBits,
		MinSegmentSize: h.MinSegmentSize,
	}

	off := 0
	readGroup := func(count uint32) ([]Segment, error) {
		segs := make([]Segment, 0, count)
		for i := uint32(0); i < count; i++ {
			if off+16 > len(raw) {
				return nil, ErrTruncated
			}
			start := binary.LittleEndian.Uint64(raw[off:])
			length := binary.LittleEndian.Uint64(raw[off+8:])
			off += 16
			// length is untrusted; adding it to off could wrap below
			// len(raw) and pass.
			if length > uint64(len(raw)-off) {
				return nil, ErrTruncated
			}
			data := make([]byte, length)
			copy(data, raw[off:off+int(length)])
			off += int(length)
			segs = append(segs, Segment{Start: start, Data: data})
		}
		return segs, nil
	}

	if img.Segments, err = readGroup(h.SegmentCount); err != nil {
		return nil, err
	}
	if img.InitSegments, err = readGroup(h.InitSegmentCount); err != nil {
		return nil, err
	}
	if off != len(raw) {
		return nil, fmt.Errorf("snapshot: %d trailing bytes after last segment", len(raw)-off)
	}
	return img, nil
}
