package snapshot

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// MagicNumber is "SMG1" little-endian.
	MagicNumber = 0x31474D53
	// Version of the image format.
	Version = 1
	// HeaderSize is the fixed size of the file header in bytes.
	HeaderSize = 64
)

var (
	ErrInvalidMagic   = errors.New("snapshot: invalid magic number")
	ErrInvalidVersion = errors.New("snapshot: unsupported version")
	ErrChecksum       = errors.New("snapshot: checksum mismatch")
	ErrTruncated      = errors.New("snapshot: truncated file")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// FileHeader describes the layout of a snapshot image file. It is stored
// little-endian at the beginning of the file.
type FileHeader struct {
	Magic            uint32
	Version          uint32
	AddressBits      uint8
	Compression      Compression
	_                [2]byte  // padding
	MinSegmentSize   uint32
	SegmentCount     uint32
	InitSegmentCount uint32
	BodySize         uint64   // compressed body length in bytes
	RawSize          uint64   // uncompressed body length in bytes
	Checksum         uint32   // CRC32C of the compressed body
	_                [20]byte // reserved
}

// Encode serializes the header.
func (h *FileHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	buf[8] = h.AddressBits
	buf[9] = uint8(h.Compression)
	// Padding [10:12]
	binary.LittleEndian.PutUint32(buf[12:], h.MinSegmentSize)
	binary.LittleEndian.PutUint32(buf[16:], h.SegmentCount)
	binary.LittleEndian.PutUint32(buf[20:], h.InitSegmentCount)
	binary.LittleEndian.PutUint64(buf[24:], h.BodySize)
	binary.LittleEndian.PutUint64(buf[32:], h.RawSize)
	binary.LittleEndian.PutUint32(buf[40:], h.Checksum)
	return buf
}

// DecodeHeader parses and validates a header.
func DecodeHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < HeaderSize {
		return nil, ErrTruncated
	}
	h := &FileHeader{}
	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	if h.Magic != MagicNumber {
		return nil, ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	if h.Version != Version {
		return nil, ErrInvalidVersion
	}
	h.AddressBits = buf[8]
	h.Compression = Compression(buf[9])
	h.MinSegmentSize = binary.LittleEndian.Uint32(buf[12:])
	h.SegmentCount = binary.LittleEndian.Uint32(buf[16:])
	h.InitSegmentCount = binary.LittleEndian.Uint32(buf[20:])
	h.BodySize = binary.LittleEndian.Uint64(buf[24:])
	h.RawSize = binary.LittleEndian.Uint64(buf[32:])
	h.Checksum = binary.LittleEndian.Uint32(buf[40:])
	return h, nil
}
