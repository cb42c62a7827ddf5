package memgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/memgo/internal/sparse"
	"github.com/hupe1980/memgo/resource"
	"github.com/hupe1980/memgo/snapshot"
)

var (
	// ErrInvalidWidth is returned for multi-byte accesses outside 1..8 bytes.
	ErrInvalidWidth = errors.New("value width must be between 1 and 8 bytes")

	// ErrMemoryLimit is returned when an explicit insert or snapshot load
	// would exceed the configured memory budget.
	ErrMemoryLimit = errors.New("memory limit exceeded")

	// ErrSnapshotCorrupt is returned when a snapshot file fails validation.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
)

// ErrInvalidConfig indicates an invalid AddressSpace configuration.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidConfig struct {
	Field string
	Value int
	cause error
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config: %s = %d", e.Field, e.Value)
}

func (e *ErrInvalidConfig) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sparse.ErrInvalidWidth) {
		return fmt.Errorf("%w: %w", ErrInvalidWidth, err)
	}
	if errors.Is(err, resource.ErrMemoryLimit) {
		return fmt.Errorf("%w: %w", ErrMemoryLimit, err)
	}

	// Snapshot validation unification.
	if errors.Is(err, snapshot.ErrInvalidMagic) ||
		errors.Is(err, snapshot.ErrInvalidVersion) ||
		errors.Is(err, snapshot.ErrChecksum) ||
		errors.Is(err, snapshot.ErrTruncated) {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}

	return err
}
