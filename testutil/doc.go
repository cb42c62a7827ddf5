// Package testutil provides testing utilities for memgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating reproducible address-space workloads
// and for checking memory content against a flat reference model.
//
// # Random Workload Generation
//
//	rng := testutil.NewRNG(seed)
//	data := rng.Bytes(4096)            // random payload
//	addr := rng.Addr(1 << 32)          // uniform address below 2^32
//	segs := rng.Segments(100, 1<<20, 64) // scattered segments
//
// # Reference Model
//
//	ref := testutil.NewRefMem()
//	ref.Write(addr, data)
//	testutil.AssertMatches(t, ref, mem)
package testutil
