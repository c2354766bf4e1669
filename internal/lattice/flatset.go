// Package lattice implements the join-semilattices internal/dataflow's
// fixed-point engine is generic over.
package lattice

import "github.com/erusyd/openvaf-core/internal/hir"

// Kind discriminates FlatSet.
type Kind uint8

const (
	// KindTop is the identity element of Join: "not yet analyzed". Sparse
	// conditional constant propagation starts every value optimistically at
	// Top, including unreachable code, so that a single constant reaching a
	// merge point is not immediately polluted by an unvisited predecessor.
	KindTop Kind = iota
	// KindElem holds a single known constant value.
	KindElem
	// KindBottom is the absorbing element: "proven not a compile-time
	// constant". Once a value reaches Bottom it can never become an Elem
	// again during the same analysis.
	KindBottom
)

// FlatSet is a flat lattice Bottom | Elem(c) | Top: every pair of distinct
// Elems joins to Bottom, Top joins to whatever the other operand is, and
// Bottom is absorbing.
type FlatSet struct {
	Kind  Kind
	Value hir.Const
}

func Top() FlatSet              { return FlatSet{Kind: KindTop} }
func Bottom() FlatSet            { return FlatSet{Kind: KindBottom} }
func Elem(c hir.Const) FlatSet   { return FlatSet{Kind: KindElem, Value: c} }

func (f FlatSet) IsTop() bool    { return f.Kind == KindTop }
func (f FlatSet) IsBottom() bool { return f.Kind == KindBottom }
func (f FlatSet) IsElem() bool   { return f.Kind == KindElem }

// constEqual compares two Consts by value, treating reals bit-exactly: two
// computed NaN/-0.0 results are not silently conflated with a
// textually-equal literal unless they are bit-identical floats, which here
// just means ==. That inherits IEEE754's own surprises deliberately:
// -0.0 == 0.0 is true, NaN == NaN is false.
func constEqual(a, b hir.Const) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case hir.TypeReal:
		return a.Real == b.Real
	case hir.TypeInteger:
		return a.Int == b.Int
	case hir.TypeBool:
		return a.Bool == b.Bool
	default:
		return a.Str == b.Str
	}
}

// Join computes the least upper bound of a and b.
func Join(a, b FlatSet) FlatSet {
	if a.Kind == KindTop {
		return b
	}
	if b.Kind == KindTop {
		return a
	}
	if a.Kind == KindBottom || b.Kind == KindBottom {
		return Bottom()
	}
	if constEqual(a.Value, b.Value) {
		return a
	}
	return Bottom()
}
