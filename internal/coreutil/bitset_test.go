package coreutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitSet_InsertAndHas(t *testing.T) {
	var b BitSet
	require.False(t, b.Has(3))
	b.Insert(3)
	require.True(t, b.Has(3))
	require.False(t, b.Has(2))
}

// TestBitSet_GrowsPastInlineBuffer exercises the spill from the stack-sized
// buf into a heap-allocated slice: buf holds 5 uint64s (320 bits), so bit
// 400 forces a grow.
func TestBitSet_GrowsPastInlineBuffer(t *testing.T) {
	var b BitSet
	b.Insert(400)
	require.True(t, b.Has(400))
	require.False(t, b.Has(399))
}

func TestBitSet_Remove(t *testing.T) {
	var b BitSet
	b.Insert(10)
	b.Remove(10)
	require.False(t, b.Has(10))

	// Removing a bit past the backing storage is a no-op, not a panic.
	b.Remove(1000)
}

func TestBitSet_InsertAllSetsFullRange(t *testing.T) {
	var b BitSet
	b.InsertAll(70)
	for i := uint32(0); i < 70; i++ {
		require.True(t, b.Has(i), "bit %d should be set", i)
	}
	require.False(t, b.Has(70))
}

func TestBitSet_Reset(t *testing.T) {
	var b BitSet
	b.Insert(5)
	b.Reset()
	require.False(t, b.Has(5))
}

func TestBitSet_ScanVisitsMembersInOrder(t *testing.T) {
	var b BitSet
	members := []uint32{0, 1, 63, 64, 65, 200}
	for _, m := range members {
		b.Insert(m)
	}

	var seen []uint32
	b.Scan(func(i uint32) { seen = append(seen, i) })
	require.Equal(t, members, seen)
}

func TestBitSet_CloneIsIndependent(t *testing.T) {
	var b BitSet
	b.Insert(5)
	clone := b.Clone()
	clone.Insert(6)

	require.False(t, b.Has(6))
	require.True(t, clone.Has(5))
	require.True(t, clone.Has(6))
}

func TestBitSet_OrMergesAndReportsChange(t *testing.T) {
	var a, b BitSet
	a.Insert(1)
	b.Insert(2)

	changed := a.Or(&b)
	require.True(t, changed)
	require.True(t, a.Has(1))
	require.True(t, a.Has(2))

	// Or-ing the same bits again must report no change.
	require.False(t, a.Or(&b))
}

// TestBitSet_OrGrowsDestination checks merging a larger set into a smaller,
// freshly-zeroed one correctly extends the backing storage rather than
// panicking on an index out of range.
func TestBitSet_OrGrowsDestination(t *testing.T) {
	var small, large BitSet
	small.Insert(1)
	large.Insert(500)

	small.Or(&large)
	require.True(t, small.Has(1))
	require.True(t, small.Has(500))
}
