// Package blobstore provides storage abstraction for memgo snapshot images.
//
// BlobStore is the interface for reading and writing immutable blobs
// (snapshot images, manifests). Implementations must be safe for concurrent
// use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and ephemeral sessions
//   - LocalStore: local filesystem with mmap reads and atomic writes
//   - CachingStore: block-level read cache wrapped around another store
//   - s3.Store: Amazon S3 with ranged reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible object stores
//
// # Custom Implementations
//
// Implement the BlobStore interface to support other backends. For cloud
// backends, ReadRange should issue a single ranged request rather than
// falling back to ReadAt loops.
package blobstore
