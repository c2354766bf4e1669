package dataflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erusyd/openvaf-core/internal/ssa"
)

// noopState lets recordingAnalysis satisfy the State contract without
// caring about any merged value. It only records visitation order.
type noopState struct{}

func (noopState) Join(State) bool { return false }
func (noopState) Clone() State    { return noopState{} }

// recordingAnalysis records the order Run visits blocks in, to check it
// honors its declared Direction: reverse postorder for Forward, postorder
// for Backward, both tie-broken by block index.
type recordingAnalysis struct {
	dir     Direction
	visited *[]ssa.BasicBlockID
}

func (a recordingAnalysis) Direction() Direction          { return a.dir }
func (recordingAnalysis) Bottom(*ssa.CFG) State           { return noopState{} }
func (recordingAnalysis) InitialState(*ssa.CFG) State     { return noopState{} }
func (recordingAnalysis) ApplyPhiEffect(*ssa.CFG, ssa.BasicBlockID, *ssa.Phi, State) {}
func (recordingAnalysis) ApplyInstrEffect(*ssa.CFG, ssa.BasicBlockID, *ssa.Instruction, State) {}
func (a recordingAnalysis) ApplyEdgeEffects(_ *ssa.CFG, blk ssa.BasicBlockID, _ State) {
	*a.visited = append(*a.visited, blk)
}
func (recordingAnalysis) ApplySplitEdgeEffects(*ssa.CFG, ssa.BasicBlockID, ssa.Operand, State, *SplitEdges) {
}

const chainSrc = `bb0: goto bb1
bb1: goto bb2
bb2: end
`

func TestRun_BackwardVisitsInPostorder(t *testing.T) {
	cfg, err := ssa.Parse(chainSrc)
	require.NoError(t, err)

	var visited []ssa.BasicBlockID
	Run(cfg, recordingAnalysis{dir: Backward, visited: &visited})

	// A linear, join-free chain never triggers a Join-driven re-push, so
	// the whole traversal happens in exactly one sweep through the
	// Analysis's declared order.
	require.Equal(t, cfg.Postorder(), visited)
}

func TestRun_ForwardVisitsInReversePostorder(t *testing.T) {
	cfg, err := ssa.Parse(chainSrc)
	require.NoError(t, err)

	var visited []ssa.BasicBlockID
	Run(cfg, recordingAnalysis{dir: Forward, visited: &visited})

	require.Equal(t, cfg.ReversePostOrder(), visited)
}

// TestRun_JoinDrivesFixedPoint checks the generic engine actually iterates
// to a fixed point rather than a single sweep: a counting state that Joins
// by taking the max seen so far must converge to the true max once a block
// with two predecessors has both of their values folded in.
type maxState struct{ n int }

func (s *maxState) Join(other State) bool {
	o := other.(*maxState)
	if o.n > s.n {
		s.n = o.n
		return true
	}
	return false
}
func (s *maxState) Clone() State { return &maxState{n: s.n} }

type maxAnalysis struct{ seed map[ssa.BasicBlockID]int }

func (maxAnalysis) Direction() Direction                  { return Forward }
func (maxAnalysis) Bottom(*ssa.CFG) State                 { return &maxState{n: -1} }
func (a maxAnalysis) InitialState(*ssa.CFG) State         { return &maxState{n: a.seed[0]} }
func (maxAnalysis) ApplyPhiEffect(*ssa.CFG, ssa.BasicBlockID, *ssa.Phi, State)       {}
func (maxAnalysis) ApplyInstrEffect(*ssa.CFG, ssa.BasicBlockID, *ssa.Instruction, State) {}
func (a maxAnalysis) ApplyEdgeEffects(_ *ssa.CFG, blk ssa.BasicBlockID, state State) {
	s := state.(*maxState)
	if v, ok := a.seed[blk]; ok && v > s.n {
		s.n = v
	}
}
func (maxAnalysis) ApplySplitEdgeEffects(*ssa.CFG, ssa.BasicBlockID, ssa.Operand, State, *SplitEdges) {
}

func TestRun_JoinDrivesFixedPoint(t *testing.T) {
	const src = `bb0: let _0 := f64.<= [f64 1.0, f64 2.0];
     if _0 { bb1 } else { bb2 }
bb1: goto bb3
bb2: goto bb3
bb3: end
`
	cfg, err := ssa.Parse(src)
	require.NoError(t, err)

	// bb1 carries the largest seeded value; bb3 (joined from both bb1 and
	// bb2) must converge to it regardless of which predecessor is folded
	// in first.
	a := maxAnalysis{seed: map[ssa.BasicBlockID]int{0: 0, 1: 5, 2: 1}}
	results := Run(cfg, a)

	bb3 := results.EntryState(3).(*maxState)
	require.Equal(t, 5, bb3.n)
}
