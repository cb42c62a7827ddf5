// Package interval implements a static centered interval tree.
//
// The tree is the ordered index behind the sparse address space: segments are
// registered as [start, end+1] intervals and located by point or range
// queries. Construction is batch-only; the segment store rebuilds the tree
// after every coalescing insert, trading incremental updates for a simple
// structure that is optimal for the small live-segment counts a sparse
// memory model maintains.
package interval
