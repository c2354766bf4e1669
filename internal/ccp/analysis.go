package ccp

import (
	"github.com/erusyd/openvaf-core/internal/coreutil"
	"github.com/erusyd/openvaf-core/internal/dataflow"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/lattice"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// Analysis is the dataflow.Analysis client implementing sparse conditional
// constant propagation, forward over BasicBlockConstants.
type Analysis struct {
	KnownParams map[ssa.ParamID]hir.Const
}

var _ dataflow.Analysis = (*Analysis)(nil)

func (a *Analysis) Direction() dataflow.Direction { return dataflow.Forward }

func (a *Analysis) Bottom(cfg *ssa.CFG) dataflow.State {
	return newState(len(cfg.Places), cfg.NumLocals())
}

// InitialState seeds the entry block: reachable, and every place/local
// optimistically Top.
func (a *Analysis) InitialState(cfg *ssa.CFG) dataflow.State {
	s := newState(len(cfg.Places), cfg.NumLocals())
	s.Reachable = true
	return s
}

func (a *Analysis) ApplyPhiEffect(cfg *ssa.CFG, blk ssa.BasicBlockID, phi *ssa.Phi, state dataflow.State) {
	s := state.(*BasicBlockConstants)
	// Fold starting from the join-identity value. lattice.Top() is "not yet
	// analyzed" and is Join's identity element in this package's Top/Bottom
	// convention.
	res := lattice.Top()
	for _, src := range phi.Sources {
		res = lattice.Join(res, s.Locals.Get(src.Local))
	}
	s.Locals.Set(phi.Dst, res)
}

func (a *Analysis) ApplyInstrEffect(cfg *ssa.CFG, blk ssa.BasicBlockID, instr *ssa.Instruction, state dataflow.State) {
	s := state.(*BasicBlockConstants)
	ctx := EvalCtx{State: s, KnownParams: a.KnownParams}
	res := ctx.EvalOp(instr)

	switch instr.Dst.Kind {
	case ssa.DestLocal:
		s.Locals.Set(instr.Dst.Local, res)
	case ssa.DestPlace:
		s.Places.SetFlat(instr.Dst.Place, res)
	case ssa.DestIgnore:
	}
}

func (a *Analysis) ApplyEdgeEffects(cfg *ssa.CFG, blk ssa.BasicBlockID, state dataflow.State) {
	// Reachability itself is carried through Join (BasicBlockConstants.Join
	// discards everything from a not-yet-reachable predecessor), so a
	// Goto-targeted successor inherits it for free; there is nothing else
	// this hook needs to do for CCP.
}

func (a *Analysis) ApplySplitEdgeEffects(cfg *ssa.CFG, blk ssa.BasicBlockID, cond ssa.Operand, state dataflow.State, edges *dataflow.SplitEdges) {
	s := state.(*BasicBlockConstants)
	if !s.Reachable {
		edges.PropagateThen, edges.PropagateElse = false, false
		return
	}
	ctx := EvalCtx{State: s, KnownParams: a.KnownParams}
	d := ctx.GetOperand(cond)
	if d.IsElem() {
		val := d.Value.AsBool()
		edges.PropagateThen, edges.PropagateElse = val, !val
		if coreutil.CCPLoggingEnabled {
			println("ccp: bb", int(blk), "split folded to", val)
		}
	}
}
