// Package snapshot implements the persistent image format for address
// spaces.
//
// An image file is a fixed little-endian header followed by a compressed
// body holding every live segment and every initialization segment as
// (start, length, bytes) records. The body is written in independently
// compressed blocks (LZ4 for speed, zstd for ratio) and protected by a
// CRC32C checksum, so a torn or bit-rotted file is rejected on load rather
// than silently restoring garbage memory.
//
// Save and Load move images through a blobstore.BlobStore, optionally
// throttled by a resource.Controller. A JSON manifest can be written next
// to the image so tooling can inspect a snapshot without decoding it.
package snapshot
