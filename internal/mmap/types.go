package mmap

import "errors"

// AccessPattern is a kernel paging hint. Only the patterns the blob store
// actually issues are defined: snapshot decodes scan the file front to back,
// block-cache fills land scattered.
type AccessPattern int

const (
	// AccessDefault leaves the kernel's readahead policy alone.
	AccessDefault AccessPattern = iota
	// AccessSequential hints a front-to-back scan (full snapshot decode).
	AccessSequential
	// AccessRandom hints scattered reads (block-granular cache fills).
	AccessRandom
)

var (
	// ErrClosed is returned when accessing a mapping after Close.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the file reports a negative size.
	ErrInvalidSize = errors.New("mmap: invalid file size")
	// ErrInvalidOffset is returned for reads at a negative offset.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)
