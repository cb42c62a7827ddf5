package interval

import "sort"

// Interval is a half-open-by-convention numeric range with an attached value.
//
// The tree itself treats both bounds as inclusive when matching queries;
// callers that want exclusive upper bounds store Hi = end+1. The segment
// store relies on exactly that: probing the address one past a segment's end
// reports the adjacent segment, which is what drives coalescing.
type Interval[V any] struct {
	Lo    uint64
	Hi    uint64
	Value V
}

// Tree is a static centered interval tree.
//
// It is built once from a batch of intervals (O(n log n)) and answers
// overlap, containment and enumeration queries in O(log n + k). There is no
// incremental insert or delete; callers rebuild on mutation, which is the
// intended usage for small interval counts.
type Tree[V any] struct {
	root *node[V]
	size int
}

type node[V any] struct {
	center uint64
	// items contains every interval that covers center, sorted by Lo.
	items []Interval[V]
	left  *node[V]
	right *node[V]
}

// New builds a tree from the given intervals. The input slice is not
// retained. Intervals with Hi < Lo are ignored.
func New[V any](ivs []Interval[V]) *Tree[V] {
	valid := make([]Interval[V], 0, len(ivs))
	for _, iv := range ivs {
		if iv.Hi >= iv.Lo {
			valid = append(valid, iv)
		}
	}
	t := &Tree[V]{size: len(valid)}
	t.root = build(valid)
	return t
}

func build[V any](ivs []Interval[V]) *node[V] {
	if len(ivs) == 0 {
		return nil
	}

	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Lo < ivs[j].Lo })

	// Median interval midpoint keeps the tree balanced for both clustered
	// and evenly spread inputs.
	mid := ivs[len(ivs)/2]
	center := mid.Lo + (mid.Hi-mid.Lo)/2

	var lefts, rights, here []Interval[V]
	for _, iv := range ivs {
		switch {
		case iv.Hi < center:
			lefts = append(lefts, iv)
		case iv.Lo > center:
			rights = append(rights, iv)
		default:
			here = append(here, iv)
		}
	}

	return &node[V]{
		center: center,
		items:  here,
		left:   build(lefts),
		right:  build(rights),
	}
}

// Len returns the number of stored intervals.
func (t *Tree[V]) Len() int {
	if t == nil {
		return 0
	}
	return t.size
}

// Overlapping returns every interval iv with iv.Lo <= hi and iv.Hi >= lo,
// i.e. all intervals that touch the inclusive range [lo, hi].
func (t *Tree[V]) Overlapping(lo, hi uint64) []Interval[V] {
	if t == nil {
		return nil
	}
	var out []Interval[V]
	t.root.overlapping(lo, hi, &out)
	return out
}

// OverlappingPoint is shorthand for Overlapping(p, p).
func (t *Tree[V]) OverlappingPoint(p uint64) []Interval[V] {
	return t.Overlapping(p, p)
}

func (n *node[V]) overlapping(lo, hi uint64, out *[]Interval[V]) {
	if n == nil {
		return
	}
	if lo < n.center {
		n.left.overlapping(lo, hi, out)
	}
	for _, iv := range n.items {
		if iv.Lo > hi {
			break // items sorted by Lo
		}
		if iv.Hi >= lo {
			*out = append(*out, iv)
		}
	}
	if hi > n.center {
		n.right.overlapping(lo, hi, out)
	}
}

// Contained returns every interval that lies entirely within [lo, hi],
// i.e. iv.Lo >= lo and iv.Hi <= hi.
func (t *Tree[V]) Contained(lo, hi uint64) []Interval[V] {
	if t == nil {
		return nil
	}
	var out []Interval[V]
	t.root.contained(lo, hi, &out)
	return out
}

func (n *node[V]) contained(lo, hi uint64, out *[]Interval[V]) {
	if n == nil {
		return
	}
	if lo < n.center {
		n.left.contained(lo, hi, out)
	}
	for _, iv := range n.items {
		if iv.Lo > hi {
			break
		}
		if iv.Lo >= lo && iv.Hi <= hi {
			*out = append(*out, iv)
		}
	}
	if hi > n.center {
		n.right.contained(lo, hi, out)
	}
}

// Visit calls fn for every stored interval. For non-overlapping inputs the
// walk is ascending by Lo. Returning false stops the walk.
func (t *Tree[V]) Visit(fn func(iv Interval[V]) bool) {
	if t == nil {
		return
	}
	t.root.visit(fn)
}

func (n *node[V]) visit(fn func(iv Interval[V]) bool) bool {
	if n == nil {
		return true
	}
	if !n.left.visit(fn) {
		return false
	}
	for _, iv := range n.items {
		if !fn(iv) {
			return false
		}
	}
	return n.right.visit(fn)
}
