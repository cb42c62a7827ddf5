package snapshot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/memgo/blobstore"
	"github.com/hupe1980/memgo/codec"
)

// ManifestVersion is the current manifest schema version.
const ManifestVersion = 1

// Manifest describes a snapshot image so tooling can inspect it without
// decoding the binary file. It lives next to the image in the blob store.
type Manifest struct {
	Version        int       `json:"version"`
	Codec          string    `json:"codec"`
	SnapshotPath   string    `json:"snapshot_path"`
	CreatedAt      time.Time `json:"created_at"`
	AddressBits    uint8     `json:"address_bits"`
	MinSegmentSize uint32    `json:"min_segment_size"`
	SegmentCount   uint32    `json:"segment_count"`
	Compression    string    `json:"compression"`
	SizeBytes      int64     `json:"size_bytes"`
	Checksum       uint32    `json:"checksum"`
}

// WriteManifest stores the manifest under name.
func WriteManifest(ctx context.Context, store blobstore.BlobStore, name string, m *Manifest) error {
	m.Version = ManifestVersion
	m.Codec = codec.Default.Name()

	data, err := codec.Default.Marshal(m)
	if err != nil {
		return err
	}
	return store.Put(ctx, name, data)
}

// ReadManifest loads and validates a manifest.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, name string) (*Manifest, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := codec.Default.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("snapshot: unsupported manifest version %d", m.Version)
	}
	if _, ok := codec.ByName(m.Codec); !ok {
		return nil, fmt.Errorf("snapshot: unknown manifest codec %q", m.Codec)
	}
	return &m, nil
}
