// Package cache provides LRU caching for blob blocks.
//
// The LRUBlockCache stores recently read snapshot blocks so repeated loads
// from slow backends (S3, MinIO) avoid refetching. It can report its memory
// to a resource.Controller so cache growth counts against the global limit.
package cache
