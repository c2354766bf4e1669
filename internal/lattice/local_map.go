package lattice

import "github.com/erusyd/openvaf-core/internal/ssa"

// LocalMap is the per-local counterpart of PlaceMap: since every LocalID is
// defined exactly once (true SSA), a dense slice indexed by LocalID is
// simpler and just as cheap as a sparse map. There is no "top set" to
// special-case the way there is for places, because a Local's single
// definition point is always known statically.
type LocalMap struct {
	vals []FlatSet
}

func NewLocalMap(numLocals int) LocalMap {
	vals := make([]FlatSet, numLocals)
	for i := range vals {
		vals[i] = Top()
	}
	return LocalMap{vals: vals}
}

func BottomLocalMap(numLocals int) LocalMap {
	vals := make([]FlatSet, numLocals)
	for i := range vals {
		vals[i] = Bottom()
	}
	return LocalMap{vals: vals}
}

func (m *LocalMap) Get(l ssa.LocalID) FlatSet {
	if int(l) >= len(m.vals) {
		return Bottom()
	}
	return m.vals[l]
}

func (m *LocalMap) Set(l ssa.LocalID, v FlatSet) { m.vals[l] = v }

func (m *LocalMap) Clone() LocalMap {
	out := make([]FlatSet, len(m.vals))
	copy(out, m.vals)
	return LocalMap{vals: out}
}

func (m *LocalMap) Join(other *LocalMap) bool {
	changed := false
	for i := range m.vals {
		joined := Join(m.vals[i], other.vals[i])
		if joined.Kind != m.vals[i].Kind || (joined.Kind == KindElem && !constEqual(joined.Value, m.vals[i].Value)) {
			m.vals[i] = joined
			changed = true
		}
	}
	return changed
}
