// Package ccp implements sparse conditional constant propagation: a
// dataflow.Analysis client that discovers, for every SSA local and every
// place, whether its value is a compile-time constant, and a rewrite pass
// that substitutes the discovered constants back into the CFG.
package ccp

import (
	"github.com/erusyd/openvaf-core/internal/dataflow"
	"github.com/erusyd/openvaf-core/internal/lattice"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// BasicBlockConstants is the per-block lattice state: whether the block is
// known reachable, plus a per-place and a per-local constant map. A
// would-be "did anything change" flag is folded into the engine's own
// changed-tracking instead, since internal/dataflow already reports
// whether Join changed anything.
type BasicBlockConstants struct {
	Reachable bool
	Places    lattice.PlaceMap
	Locals    lattice.LocalMap
}

func newState(numPlaces, numLocals int) *BasicBlockConstants {
	return &BasicBlockConstants{
		Reachable: false,
		Places:    lattice.NewPlaceMap(numPlaces),
		Locals:    lattice.NewLocalMap(numLocals),
	}
}

func (s *BasicBlockConstants) Clone() dataflow.State {
	return &BasicBlockConstants{
		Reachable: s.Reachable,
		Places:    s.Places.Clone(),
		Locals:    s.Locals.Clone(),
	}
}

// Join implements dataflow.State. An edge out of a block not yet proven
// reachable contributes no information at all, so an unreachable block's
// place write never influences a successor's place join without needing a
// special case in the rewrite pass.
func (s *BasicBlockConstants) Join(otherState dataflow.State) bool {
	other := otherState.(*BasicBlockConstants)
	if !other.Reachable {
		return false
	}
	if !s.Reachable {
		s.Reachable = true
		s.Places = other.Places.Clone()
		s.Locals = other.Locals.Clone()
		return true
	}
	placesChanged := s.Places.Join(&other.Places)
	localsChanged := s.Locals.Join(&other.Locals)
	return placesChanged || localsChanged
}

func (s *BasicBlockConstants) Get(o ssa.Operand) lattice.FlatSet {
	switch o.Kind {
	case ssa.OperandConst:
		return lattice.Elem(o.Const)
	case ssa.OperandLocal:
		return s.Locals.Get(o.Local)
	case ssa.OperandPlace:
		return s.Places.Get(o.Place)
	default:
		// ssa.OperandParam and ssa.OperandCallBack are resolved through
		// knownParams/derivative bookkeeping, which is an
		// internal/autodiff/internal/lower concern, not CCP's; CCP treats
		// an unresolved param conservatively as not-a-compile-time-constant
		// unless the job supplied a KnownParams value for it (see EvalCtx).
		return lattice.Bottom()
	}
}
