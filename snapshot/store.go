package snapshot

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hupe1980/memgo/blobstore"
	"github.com/hupe1980/memgo/resource"
)

// ioChunkSize is the granularity at which snapshot IO is throttled.
const ioChunkSize = 1 << 20

// Save encodes the image, writes it to the blob store and returns the
// manifest describing the stored file. rc may be nil; when set, the write is
// rate limited and counted against the snapshot operation slots.
//
// The manifest is returned, not stored; callers decide where it lives (see
// WriteManifest).
func Save(ctx context.Context, store blobstore.BlobStore, name string, img *Image, opts Options, rc *resource.Controller) (*Manifest, error) {
	if err := rc.AcquireSnapshotSlot(ctx); err != nil {
		return nil, err
	}
	defer rc.ReleaseSnapshotSlot()

	data, err := Encode(img, opts)
	if err != nil {
		return nil, err
	}
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	w, err := store.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	for off := 0; off < len(data); off += ioChunkSize {
		end := min(off+ioChunkSize, len(data))
		if err := rc.WaitIO(ctx, end-off); err != nil {
			w.Close()
			return nil, err
		}
		if _, err := w.Write(data[off:end]); err != nil {
			w.Close()
			return nil, err
		}
	}

	if err := w.Sync(); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return &Manifest{
		SnapshotPath:   name,
		CreatedAt:      time.Now().UTC(),
		AddressBits:    h.AddressBits,
		MinSegmentSize: h.MinSegmentSize,
		SegmentCount:   h.SegmentCount,
		Compression:    h.Compression.String(),
		SizeBytes:      int64(len(data)),
		Checksum:       h.Checksum,
	}, nil
}

// Load reads and decodes an image from the blob store. Memory-mapped blobs
// are decoded in place without copying the file.
func Load(ctx context.Context, store blobstore.BlobStore, name string, rc *resource.Controller) (*Image, error) {
	if err := rc.AcquireSnapshotSlot(ctx); err != nil {
		return nil, err
	}
	defer rc.ReleaseSnapshotSlot()

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data, err := readBlob(ctx, blob, rc)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func readBlob(ctx context.Context, blob blobstore.Blob, rc *resource.Controller) ([]byte, error) {
	if m, ok := blob.(blobstore.Mappable); ok && rc.IOLimiter() == nil {
		return m.Bytes()
	}

	size := blob.Size()
	data := make([]byte, size)
	for off := int64(0); off < size; off += ioChunkSize {
		end := min(off+ioChunkSize, size)
		if err := rc.WaitIO(ctx, int(end-off)); err != nil {
			return nil, err
		}
		n, err := blob.ReadAt(ctx, data[off:end], off)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if int64(n) != end-off {
			return nil, ErrTruncated
		}
	}
	return data, nil
}
