package coreutil

import "math/bits"

// BitSet is a growable set of small non-negative integers, used wherever
// the mid-end needs a dense membership set (e.g. the "top" set of a
// lattice.PlaceMap, or a set of already-visited basic blocks) without the
// overhead of a map[uint32]struct{}.
//
// Most BitSets in this package stay small (one function's worth of places
// or blocks), so the backing array starts on the stack-sized buf and only
// spills to the heap once a function has more than 320 entities of that
// kind.
type BitSet struct {
	bits []uint64
	buf  [5]uint64
}

// Reset clears the set, keeping the backing storage for reuse.
func (b *BitSet) Reset() {
	b.bits, b.buf = b.bits[:0], [5]uint64{}
}

// Has reports whether i is a member of the set.
func (b *BitSet) Has(i uint32) bool {
	index, shift := i/64, i%64
	return index < uint32(len(b.bits)) && (b.bits[index]&(1<<shift)) != 0
}

// Insert adds i to the set, growing the backing storage if necessary.
func (b *BitSet) Insert(i uint32) {
	index, shift := i/64, i%64
	if index >= uint32(len(b.bits)) {
		if index < uint32(len(b.buf)) {
			b.bits = b.buf[:]
		} else {
			b.bits = append(b.bits, make([]uint64, (index+1)-uint32(len(b.bits)))...)
			b.buf = [5]uint64{}
		}
	}
	b.bits[index] |= 1 << shift
}

// Remove removes i from the set. A no-op if i is not present or not yet
// within the backing storage.
func (b *BitSet) Remove(i uint32) {
	index, shift := i/64, i%64
	if index < uint32(len(b.bits)) {
		b.bits[index] &^= 1 << shift
	}
}

// InsertAll grows the backing storage to cover [0, n) and sets every bit in
// that range. This is how the const-propagation place lattice seeds "every
// place starts at Top" at the entry block without allocating one entry per
// place up front (see lattice.PlaceMap).
func (b *BitSet) InsertAll(n uint32) {
	words := (n + 63) / 64
	if words > uint32(len(b.bits)) {
		if words <= uint32(len(b.buf)) {
			b.bits = b.buf[:words]
		} else {
			b.bits = append(b.bits, make([]uint64, words-uint32(len(b.bits)))...)
		}
	}
	for i := uint32(0); i < n/64; i++ {
		b.bits[i] = ^uint64(0)
	}
	if rem := n % 64; rem != 0 {
		b.bits[n/64] |= (uint64(1) << rem) - 1
	}
}

// Scan calls f once for every member of the set, in ascending order.
func (b *BitSet) Scan(f func(uint32)) {
	for i, v := range b.bits {
		for j := uint32(i * 64); v != 0; j++ {
			n := uint32(bits.TrailingZeros64(v))
			j += n
			v >>= n + 1
			f(j)
		}
	}
}

// Clone returns a copy of b that shares no storage with it.
func (b *BitSet) Clone() BitSet {
	var ret BitSet
	ret.bits = append(ret.bits, b.bits...)
	return ret
}

// Or destructively joins other into b, returning true if b changed.
func (b *BitSet) Or(other *BitSet) bool {
	if len(other.bits) > len(b.bits) {
		grown := make([]uint64, len(other.bits))
		copy(grown, b.bits)
		b.bits = grown
	}
	changed := false
	for i, v := range other.bits {
		if merged := b.bits[i] | v; merged != b.bits[i] {
			b.bits[i] = merged
			changed = true
		}
	}
	return changed
}
