package testutil

import (
	"math/rand"
	"sort"
	"sync"
	"testing"
)

// Segment is a contiguous run of bytes at an absolute address.
type Segment struct {
	Start uint64
	Data  []byte
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Bytes returns n random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, n)
	r.rand.Read(out)
	return out
}

// Addr returns a uniform address below limit.
func (r *RNG) Addr(limit uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rand.Uint64() % limit
}

// Segments generates count segments scattered below addrLimit, each between
// 1 and maxLen bytes. Segments may overlap; callers exercising coalescing
// rely on that.
func (r *RNG) Segments(count int, addrLimit uint64, maxLen int) []Segment {
	segs := make([]Segment, count)
	for i := range segs {
		n := 1 + int(r.Addr(uint64(maxLen)))
		segs[i] = Segment{
			Start: r.Addr(addrLimit),
			Data:  r.Bytes(n),
		}
	}
	return segs
}

// RefMem is a flat reference model of sparse memory: a map from address to
// byte, with unwritten addresses reading as zero. It is deliberately naive;
// tests compare the real implementation against it.
type RefMem struct {
	bytes map[uint64]byte
}

// NewRefMem creates an empty reference memory.
func NewRefMem() *RefMem {
	return &RefMem{bytes: make(map[uint64]byte)}
}

// WriteByte records a single byte.
func (m *RefMem) WriteByte(addr uint64, value byte) {
	m.bytes[addr] = value
}

// Write records data starting at addr.
func (m *RefMem) Write(addr uint64, data []byte) {
	for i, b := range data {
		m.bytes[addr+uint64(i)] = b
	}
}

// ReadByte returns the byte at addr, zero if never written.
func (m *RefMem) ReadByte(addr uint64) byte {
	return m.bytes[addr]
}

// Len returns the number of written addresses.
func (m *RefMem) Len() int {
	return len(m.bytes)
}

// Addrs returns all written addresses in ascending order.
func (m *RefMem) Addrs() []uint64 {
	out := make([]uint64, 0, len(m.bytes))
	for addr := range m.bytes {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Peeker reads memory without side effects.
type Peeker interface {
	PeekByte(addr uint64) byte
}

// AssertMatches fails the test if mem disagrees with the reference model at
// any written address. Only written addresses are checked; probing the full
// range would defeat sparseness.
func AssertMatches(t *testing.T, ref *RefMem, mem Peeker) {
	t.Helper()

	for _, addr := range ref.Addrs() {
		if got, want := mem.PeekByte(addr), ref.ReadByte(addr); got != want {
			t.Fatalf("memory mismatch at %#x: got %#x, want %#x", addr, got, want)
		}
	}
}
