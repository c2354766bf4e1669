package lattice

import (
	"github.com/erusyd/openvaf-core/internal/coreutil"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// PlaceMap is a sparse per-place FlatSet map: rather than storing one
// FlatSet per place explicitly, it stores a bitset of places that are
// still Top (the common case at the start of the analysis, when almost
// every place is unvisited) plus a sparse map of the places that have
// resolved to a known Elem. A place present in neither is Bottom.
type PlaceMap struct {
	numPlaces uint32
	top       coreutil.BitSet
	elems     map[ssa.PlaceID]hir.Const
}

// NewPlaceMap returns a PlaceMap with every place optimistically at Top,
// the seed state a forward analysis's entry block needs.
func NewPlaceMap(numPlaces int) PlaceMap {
	var m PlaceMap
	m.numPlaces = uint32(numPlaces)
	m.top.InsertAll(m.numPlaces)
	m.elems = make(map[ssa.PlaceID]hir.Const)
	return m
}

// BottomPlaceMap returns a PlaceMap with every place at Bottom, the seed state for
// a backward analysis or for a block not yet reached by the forward
// worklist.
func BottomPlaceMap(numPlaces int) PlaceMap {
	var m PlaceMap
	m.numPlaces = uint32(numPlaces)
	m.elems = make(map[ssa.PlaceID]hir.Const)
	return m
}

func (m *PlaceMap) Get(p ssa.PlaceID) FlatSet {
	if m.top.Has(uint32(p)) {
		return Top()
	}
	if v, ok := m.elems[p]; ok {
		return Elem(v)
	}
	return Bottom()
}

func (m *PlaceMap) SetTop(p ssa.PlaceID) {
	m.top.Insert(uint32(p))
	delete(m.elems, p)
}

func (m *PlaceMap) SetBottom(p ssa.PlaceID) {
	m.top.Remove(uint32(p))
	delete(m.elems, p)
}

func (m *PlaceMap) SetElem(p ssa.PlaceID, c hir.Const) {
	m.top.Remove(uint32(p))
	m.elems[p] = c
}

// SetFlat writes f into place p, dispatching to the right internal
// representation (top bitset, element map, or neither for Bottom). Used by
// internal/ccp's transfer function, which computes a FlatSet once and then
// just needs somewhere to put it regardless of which case it landed in.
func (m *PlaceMap) SetFlat(p ssa.PlaceID, f FlatSet) {
	switch f.Kind {
	case KindTop:
		m.SetTop(p)
	case KindBottom:
		m.SetBottom(p)
	default:
		m.SetElem(p, f.Value)
	}
}

// Clone returns a PlaceMap sharing no storage with m.
func (m *PlaceMap) Clone() PlaceMap {
	out := PlaceMap{numPlaces: m.numPlaces, top: m.top.Clone(), elems: make(map[ssa.PlaceID]hir.Const, len(m.elems))}
	for k, v := range m.elems {
		out.elems[k] = v
	}
	return out
}

// Join destructively joins other into m, returning whether m changed. This
// is the join-semilattice contract internal/dataflow's fixed-point engine
// requires of every analysis state.
func (m *PlaceMap) Join(other *PlaceMap) bool {
	changed := false
	for p := uint32(0); p < m.numPlaces; p++ {
		id := ssa.PlaceID(p)
		before := m.Get(id)
		joined := Join(before, other.Get(id))
		if joined.Kind == before.Kind && (joined.Kind != KindElem || constEqual(joined.Value, before.Value)) {
			continue
		}
		changed = true
		switch joined.Kind {
		case KindTop:
			m.SetTop(id)
		case KindBottom:
			m.SetBottom(id)
		default:
			m.SetElem(id, joined.Value)
		}
	}
	return changed
}
