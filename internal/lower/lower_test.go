package lower

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erusyd/openvaf-core/internal/diagnostics"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// TestLower_IfElseMergesAtJoin lowers `if (cond) x = 1; else x = 2;` and
// checks it lowers without diagnostics into a CFG that validates.
func TestLower_IfElseMergesAtJoin(t *testing.T) {
	b := hir.NewBuilder("ifelse")
	x := b.AddVariable("x", hir.TypeReal)

	cond := b.Const(hir.BoolConst(true))
	thenBody := []hir.StmtID{b.Assign(x, b.Const(hir.RealConst(1)))}
	elseBody := []hir.StmtID{b.Assign(x, b.Const(hir.RealConst(2)))}
	ifStmt := b.If(cond, thenBody, elseBody)
	b.SetAnalog([]hir.StmtID{ifStmt})

	sink := diagnostics.NewSink()
	cfg := Lower(b.Build(), sink)
	require.False(t, sink.HasErrors())
	require.NoError(t, cfg.Validate())
}

// TestLower_WhileMarksLoopHead lowers `while (cond) x = x + 1;` and checks
// the loop header's Split carries LoopHead.
func TestLower_WhileMarksLoopHead(t *testing.T) {
	b := hir.NewBuilder("loop")
	x := b.AddVariable("x", hir.TypeReal)

	cond := b.Const(hir.BoolConst(true))
	body := []hir.StmtID{b.Assign(x, b.Binary(hir.BinaryAdd, b.VarRef(x), b.Const(hir.RealConst(1))))}
	whileStmt := b.While(cond, body)
	b.SetAnalog([]hir.StmtID{whileStmt})

	sink := diagnostics.NewSink()
	cfg := Lower(b.Build(), sink)
	require.False(t, sink.HasErrors())
	require.NoError(t, cfg.Validate())

	foundLoopHead := false
	cfg.Blocks(func(_ ssa.BasicBlockID, blk *ssa.BasicBlock) {
		if blk.Term.Kind == ssa.TermSplit && blk.Term.LoopHead {
			foundLoopHead = true
		}
	})
	require.True(t, foundLoopHead, "expected a Split flagged as the loop header")
}

// TestLower_TernaryEmitsExplicitPhi lowers `x = cond ? 1 : 2;` and checks it
// produces a Split merged by an explicit phi rather than a select
// pseudo-op: CCP is expected to fold the phi when the condition is
// constant, not a dedicated lowering-time fold.
func TestLower_TernaryEmitsExplicitPhi(t *testing.T) {
	b := hir.NewBuilder("ternary")
	x := b.AddVariable("x", hir.TypeReal)

	cond := b.Const(hir.BoolConst(true))
	tern := b.Ternary(cond, b.Const(hir.RealConst(1)), b.Const(hir.RealConst(2)))
	assign := b.Assign(x, tern)
	b.SetAnalog([]hir.StmtID{assign})

	sink := diagnostics.NewSink()
	cfg := Lower(b.Build(), sink)
	require.False(t, sink.HasErrors())
	require.NoError(t, cfg.Validate())

	phiCount := 0
	splitCount := 0
	cfg.Blocks(func(_ ssa.BasicBlockID, blk *ssa.BasicBlock) {
		phiCount += len(blk.Phis)
		if blk.Term.Kind == ssa.TermSplit {
			splitCount++
		}
	})
	require.Equal(t, 1, splitCount)
	require.GreaterOrEqual(t, phiCount, 1, "ternary's join block must carry an explicit phi")
}

// TestLower_TemperatureIsASingleSharedParam lowers two `$temperature`
// references and checks they resolve to the same ssa.ParamID: internal/lower
// dedupes parameters by paramKey, one CFG-level parameter per distinct
// simulator input.
func TestLower_TemperatureIsASingleSharedParam(t *testing.T) {
	b := hir.NewBuilder("temp")
	x := b.AddVariable("x", hir.TypeReal)

	expr := b.Binary(hir.BinaryAdd, b.Temperature(), b.Temperature())
	assign := b.Assign(x, expr)
	b.SetAnalog([]hir.StmtID{assign})

	sink := diagnostics.NewSink()
	cfg := Lower(b.Build(), sink)
	require.False(t, sink.HasErrors())
	require.NoError(t, cfg.Validate())

	tempParams := 0
	for _, p := range cfg.Params {
		if p.Tag == ssa.ParamTemperature {
			tempParams++
		}
	}
	require.Equal(t, 1, tempParams, "both $temperature reads must share one CFG-level parameter")
}

// TestLower_ContributeAccumulatesAcrossStatements lowers two contributions
// to the same branch and checks they accumulate into a single output: a
// second contribution to the same output reads the first back and adds to it.
func TestLower_ContributeAccumulatesAcrossStatements(t *testing.T) {
	b := hir.NewBuilder("accum")
	elec := b.AddDiscipline(hir.Discipline{Name: "electrical"})
	a := b.AddNode("a")
	br := b.AddBranch(hir.NodeGnd(a), elec)

	c1 := b.Contribute(hir.OutputKind{Branch: br}, b.Const(hir.RealConst(1)))
	c2 := b.Contribute(hir.OutputKind{Branch: br}, b.Const(hir.RealConst(2)))
	b.SetAnalog([]hir.StmtID{c1, c2})

	sink := diagnostics.NewSink()
	cfg := Lower(b.Build(), sink)
	require.False(t, sink.HasErrors())
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Outputs, 1)
}
