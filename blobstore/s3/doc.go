// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil { ... }
//
//	store := s3.NewStore(s3.NewFromConfig(cfg), "my-bucket", "snapshots/")
//
// # Features
//
//   - Ranged GETs so partial snapshot loads fetch only what they decode
//   - Multipart uploads with CRC32C checksums for large images
//   - Automatic pagination for listing
//   - Configurable prefix for keeping several machines in one bucket
//
// CommitStore layers a DynamoDB pointer on top so concurrent writers can
// publish "latest snapshot" atomically; plain S3 has no compare-and-swap.
package s3
