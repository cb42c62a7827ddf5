// Package mmap provides read-only memory-mapped file access.
//
// Snapshot files opened through the local blob store are mapped rather than
// read into heap buffers, so loading an image touches only the pages the
// reader actually decodes.
//
//	m, err := mmap.Open("snapshot.smg")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()          // zero-copy view of the file
//	m.Advise(mmap.AccessSequential)
//
// Unix platforms use mmap(2) with madvise(2) hints; Windows uses
// CreateFileMapping/MapViewOfFile and treats Advise as a no-op.
//
// A Mapping is safe for concurrent reads. Close is idempotent, but callers
// must not touch Bytes() slices after Close returns.
package mmap
