// Package minio provides a BlobStore implementation using the MinIO client.
//
// MinIO is an S3-compatible object store that is easy to run next to a
// simulator farm. The official MinIO Go client also talks to other
// S3-compatible systems such as Ceph, SeaweedFS and Garage, with no AWS
// dependencies required.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := miniostore.NewStore(client, "my-bucket", "snapshots/")
//
// The store supports ranged reads for partial snapshot loads and streaming
// uploads for large images.
package minio
