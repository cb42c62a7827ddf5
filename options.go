package memgo

import (
	"log/slog"

	"github.com/hupe1980/memgo/internal/sparse"
	"github.com/hupe1980/memgo/resource"
	"github.com/hupe1980/memgo/snapshot"
)

type options struct {
	minSegmentSize     int
	addressBits        int
	trackWrites        bool
	metricsCollector   MetricsCollector
	logger             *Logger
	resourceController *resource.Controller
	compression        snapshot.Compression
}

// Option configures AddressSpace constructor behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. config-specific constructor variants).
type Option func(*options)

// WithMinSegmentSize configures the width of segments materialized on first
// touch of an unmapped address. Must be odd and >= 3 so the allocation window
// centers on the touched address.
//
// Larger values trade memory for fewer allocations on scattered access
// patterns. The default of 15 keeps per-touch overhead small.
func WithMinSegmentSize(size int) Option {
	return func(o *options) {
		o.minSegmentSize = size
	}
}

// WithAddressBits configures the address width in bits (1..64). Addresses are
// truncated to this width on every access, the way a hardware bus ignores
// lines it does not have.
//
// The default of 32 models a 32-bit machine.
func WithAddressBits(bits int) Option {
	return func(o *options) {
		o.addressBits = bits
	}
}

// WithWriteTracking records every written address in a compressed bitmap.
// DirtyRanges then returns the written addresses as coalesced runs, which
// backs differential snapshots and change detection in debuggers.
//
// Tracking costs one bitmap update per written byte.
func WithWriteTracking() Option {
	return func(o *options) {
		o.trackWrites = true
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &memgo.BasicMetricsCollector{}
//	mem, _ := memgo.New(memgo.WithMetricsCollector(metrics))
//	// ... use mem ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserts: %d, Avg latency: %dns\n", stats.InsertCount, stats.InsertAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := memgo.NewJSONLogger(slog.LevelInfo)
//	mem, _ := memgo.New(memgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController shares a resource controller across address spaces.
// The controller caps the total bytes of materialized segments, bounds
// concurrent snapshot operations and throttles snapshot IO.
//
// Memory accounting is advisory for the write path: a write never fails even
// over the limit. Explicit inserts and snapshot loads are refused with
// ErrMemoryLimit.
//
// Example:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30, // 1 GiB across all spaces
//	})
//	a, _ := memgo.New(memgo.WithResourceController(rc))
//	b, _ := memgo.New(memgo.WithResourceController(rc))
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resourceController = rc
	}
}

// WithSnapshotCompression configures the compression used by SaveSnapshot.
// The default is LZ4; zero-heavy address spaces compress dramatically.
func WithSnapshotCompression(comp snapshot.Compression) Option {
	return func(o *options) {
		o.compression = comp
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		minSegmentSize:   sparse.DefaultMinSegmentSize,
		addressBits:      sparse.DefaultAddressBits,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		compression:      snapshot.CompressionLZ4,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
