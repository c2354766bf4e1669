// Package dataflow is a generic work-list dataflow engine: a forward or
// backward analysis over a join-semilattice state, run to a fixed point
// over a CFG's basic blocks. internal/ccp is its primary client; the engine
// itself is agnostic to what State actually holds (per-place constants,
// per-local constants, liveness sets, ...), in the style of rustc's MIR
// dataflow framework.
package dataflow

import "github.com/erusyd/openvaf-core/internal/ssa"

// Direction is an analysis's traversal direction.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

// State is the per-block lattice value an Analysis maintains. Implementors
// are almost always a pointer type (e.g. *ccp.BasicBlockConstants) so that
// Join and the Apply* hooks can mutate in place.
type State interface {
	// Join merges other into the receiver, returning whether the receiver
	// changed. Must be monotonic: repeated Join calls converge.
	Join(other State) bool
	// Clone returns a deep-enough copy that mutating it never affects the
	// receiver (the engine clones a predecessor's exit state before handing
	// it to a new block, since one predecessor may feed multiple successors
	// with different per-edge narrowing).
	Clone() State
}

// SplitEdges lets an Analysis's ApplySplitEdgeEffects hook decide, per edge,
// whether to propagate state across it. Both default to true; a CCP-style
// analysis sets one to false when the split's condition is a known
// constant, so a block behind a folded-false branch never contributes
// information to its sibling.
type SplitEdges struct {
	PropagateThen bool
	PropagateElse bool
}

// Analysis is the set of hooks a dataflow client implements. Phi and
// instruction effects are applied in program order for Forward analyses and
// in reverse program order for Backward ones.
type Analysis interface {
	Direction() Direction

	// Bottom returns a fresh Bottom-valued state, one instance per block.
	Bottom(cfg *ssa.CFG) State

	// InitialState seeds the traversal's start block (Entry for Forward,
	// Exit for Backward) in place of Bottom.
	InitialState(cfg *ssa.CFG) State

	// ApplyPhiEffect folds a block's phi assignments into state.
	ApplyPhiEffect(cfg *ssa.CFG, blk ssa.BasicBlockID, phi *ssa.Phi, state State)

	// ApplyInstrEffect folds a single instruction into state.
	ApplyInstrEffect(cfg *ssa.CFG, blk ssa.BasicBlockID, instr *ssa.Instruction, state State)

	// ApplyEdgeEffects runs once per block, after instruction effects and
	// before the state is propagated to successors (a hook for effects that
	// depend on which block is being left, not on any one instruction).
	ApplyEdgeEffects(cfg *ssa.CFG, blk ssa.BasicBlockID, state State)

	// ApplySplitEdgeEffects customizes propagation across a Split
	// terminator's two edges.
	ApplySplitEdgeEffects(cfg *ssa.CFG, blk ssa.BasicBlockID, cond ssa.Operand, state State, edges *SplitEdges)
}

// Results holds the fixed-point entry state of every block, indexed by
// BasicBlockID.
type Results struct {
	cfg     *ssa.CFG
	a       Analysis
	Entries []State
}

func (r *Results) EntryState(b ssa.BasicBlockID) State { return r.Entries[b] }

// ExitState replays b's transfer functions starting from its converged
// entry state and returns the resulting state as of b's terminator: the
// state a rewrite pass needs when it wants a Split condition's value at the
// point of the terminator rather than at block entry.
func (r *Results) ExitState(b ssa.BasicBlockID) State {
	state := r.Entries[b].Clone()
	applyBlock(r.cfg, r.a, b, state)
	return state
}

// Run computes a to a fixed point over cfg and returns the per-block entry
// states.
func Run(cfg *ssa.CFG, a Analysis) *Results {
	n := cfg.NumBlocks()
	entries := make([]State, n)
	for i := range entries {
		entries[i] = a.Bottom(cfg)
	}

	start := cfg.Entry
	if a.Direction() == Backward {
		start = cfg.Exit
	}
	entries[start] = a.InitialState(cfg)

	var order []ssa.BasicBlockID
	if a.Direction() == Forward {
		order = cfg.ReversePostOrder()
	} else {
		order = cfg.Postorder()
	}

	inWorklist := make([]bool, n)
	worklist := append([]ssa.BasicBlockID(nil), order...)
	for _, b := range worklist {
		inWorklist[b] = true
	}
	pos := make(map[ssa.BasicBlockID]int, len(order))
	for i, b := range order {
		pos[b] = i
	}

	push := func(b ssa.BasicBlockID) {
		if !inWorklist[b] {
			inWorklist[b] = true
			worklist = append(worklist, b)
		}
	}

	for len(worklist) > 0 {
		// Pop the lowest-position (highest-priority) block, preserving the
		// chosen traversal order's tie-breaking.
		bestIdx := 0
		for i := 1; i < len(worklist); i++ {
			if pos[worklist[i]] < pos[worklist[bestIdx]] {
				bestIdx = i
			}
		}
		b := worklist[bestIdx]
		worklist[bestIdx] = worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		inWorklist[b] = false

		state := entries[b].Clone()
		if b == start {
			state = a.InitialState(cfg).Clone()
		}
		applyBlock(cfg, a, b, state)

		for _, succ := range propagationTargets(cfg, a, b, state) {
			if entries[succ.id].Join(succ.state) {
				push(succ.id)
			}
		}
	}

	return &Results{cfg: cfg, a: a, Entries: entries}
}

// applyBlock folds b's phi and instruction effects into state, in program
// order for a Forward analysis and in reverse program order for a Backward
// one (a Backward analysis reads a block back to front, since its state
// describes what is true after the block rather than before it).
func applyBlock(cfg *ssa.CFG, a Analysis, b ssa.BasicBlockID, state State) {
	blk := cfg.Block(b)
	if a.Direction() == Backward {
		for instr := blk.Last(); instr != nil; instr = instr.Prev() {
			a.ApplyInstrEffect(cfg, b, instr, state)
		}
		for i := len(blk.Phis) - 1; i >= 0; i-- {
			a.ApplyPhiEffect(cfg, b, &blk.Phis[i], state)
		}
		a.ApplyEdgeEffects(cfg, b, state)
		return
	}
	for i := range blk.Phis {
		a.ApplyPhiEffect(cfg, b, &blk.Phis[i], state)
	}
	blk.Instructions(func(instr *ssa.Instruction) {
		a.ApplyInstrEffect(cfg, b, instr, state)
	})
	a.ApplyEdgeEffects(cfg, b, state)
}

type successorState struct {
	id    ssa.BasicBlockID
	state State
}

func propagationTargets(cfg *ssa.CFG, a Analysis, b ssa.BasicBlockID, state State) []successorState {
	term := cfg.Block(b).Term
	switch term.Kind {
	case ssa.TermGoto:
		return []successorState{{term.Target, state}}
	case ssa.TermSplit:
		edges := SplitEdges{PropagateThen: true, PropagateElse: true}
		a.ApplySplitEdgeEffects(cfg, b, term.Cond, state, &edges)
		var out []successorState
		if edges.PropagateThen {
			out = append(out, successorState{term.Then, state.Clone()})
		}
		if edges.PropagateElse {
			out = append(out, successorState{term.Else, state.Clone()})
		}
		return out
	default:
		return nil
	}
}

// Visitor replays an already-converged Results over the CFG, invoking
// VisitInstruction with the per-instruction state at the point the
// instruction runs, so a rewrite pass can consume the fixed point without
// the engine itself knowing what a rewrite is.
type Visitor interface {
	VisitPhi(cfg *ssa.CFG, blk ssa.BasicBlockID, phi *ssa.Phi, stateBefore State)
	VisitInstruction(cfg *ssa.CFG, blk ssa.BasicBlockID, instr *ssa.Instruction, stateBefore State)
}

// Visit re-walks cfg in block order, recomputing the state at each
// instruction by re-applying a's transfer functions starting from each
// block's converged entry state (Results does not itself store
// per-instruction states, only per-block ones, to keep memory use linear in
// block count rather than instruction count).
func (r *Results) Visit(v Visitor) {
	r.cfg.Blocks(func(id ssa.BasicBlockID, blk *ssa.BasicBlock) {
		state := r.Entries[id].Clone()
		for i := range blk.Phis {
			v.VisitPhi(r.cfg, id, &blk.Phis[i], state)
			r.a.ApplyPhiEffect(r.cfg, id, &blk.Phis[i], state)
		}
		blk.Instructions(func(instr *ssa.Instruction) {
			v.VisitInstruction(r.cfg, id, instr, state)
			r.a.ApplyInstrEffect(r.cfg, id, instr, state)
		})
	})
}
