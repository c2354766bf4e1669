package ccp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// TestRun_FoldsConstantBranch checks that a constant-valued comparison
// folds its Split into a Goto and drops the unreachable branch's
// predecessor edge.
func TestRun_FoldsConstantBranch(t *testing.T) {
	const src = `bb0: let _0 := f64.+ [f64 3.141, f64 2.0];
     let _1 := f64.<= [_0, f64 10.0];
     if _1 { bb1 } else { bb2 }
bb1: goto bb3
bb2: goto bb3
bb3: end
`
	cfg, err := ssa.Parse(src)
	require.NoError(t, err)

	Run(cfg, nil)

	bb0 := cfg.Block(0)
	require.Equal(t, ssa.TermGoto, bb0.Term.Kind)
	require.Equal(t, ssa.BasicBlockID(1), bb0.Term.Target)

	bb2 := cfg.Block(2)
	require.NotContains(t, bb2.Preds, ssa.BasicBlockID(0), "the folded-false edge must not list bb0 as a live predecessor")

	var instr1 *ssa.Instruction
	bb0.Instructions(func(i *ssa.Instruction) {
		if i.Dst.Kind == ssa.DestLocal && i.Dst.Local == 1 {
			instr1 = i
		}
	})
	require.NotNil(t, instr1)
	require.Equal(t, ssa.OpCopy, instr1.Op)
	require.True(t, instr1.Args[0].Kind == ssa.OperandConst)
	require.True(t, instr1.Args[0].Const.AsBool())
}

// TestRun_UnreachableBlockPlaceIndependence checks that a write to a place
// in a block CCP proves unreachable does not influence the place's join at
// successor blocks.
func TestRun_UnreachableBlockPlaceIndependence(t *testing.T) {
	b := ssa.NewBuilder()
	entry := b.CreateBlock()
	b.SetEntry(entry)
	b.SetCurrentBlock(entry)
	b.Seal(entry)

	place := b.CFG().AddPlace("p")
	b.EmitPlaceWrite(place, 0, hir.Span{}, ssa.ConstOperand(hir.RealConst(1)))

	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	join := b.CreateBlock()

	cond := b.Emit(ssa.OpLe, 0, hir.Span{}, ssa.ConstOperand(hir.RealConst(0)), ssa.ConstOperand(hir.RealConst(1)))
	b.SetTerminator(entry, ssa.Split(ssa.LocalOperand(cond), thenBlk, elseBlk, false))
	b.Seal(thenBlk)
	b.Seal(elseBlk)

	// elseBlk is the dead branch (0 <= 1 is always true): it writes a
	// different value to the same place.
	b.SetCurrentBlock(elseBlk)
	b.EmitPlaceWrite(place, 0, hir.Span{}, ssa.ConstOperand(hir.RealConst(99)))
	b.SetTerminator(elseBlk, ssa.Goto(join))

	b.SetCurrentBlock(thenBlk)
	b.SetTerminator(thenBlk, ssa.Goto(join))

	b.Seal(join)
	b.SetCurrentBlock(join)
	read := b.Emit(ssa.OpCopy, 0, hir.Span{}, ssa.PlaceOperand(place))
	b.SetTerminator(join, ssa.Return())

	cfg := b.CFG()
	cfg.Exit = join

	Run(cfg, nil)

	var readInstr *ssa.Instruction
	cfg.Block(join).Instructions(func(i *ssa.Instruction) {
		if i.Dst.Kind == ssa.DestLocal && i.Dst.Local == read {
			readInstr = i
		}
	})
	require.NotNil(t, readInstr)
	require.Equal(t, ssa.OpCopy, readInstr.Op)
	require.Equal(t, ssa.OperandConst, readInstr.Args[0].Kind)
	require.Equal(t, float64(1), readInstr.Args[0].Const.Real, "the dead elseBlk write of 99 must not leak into the join")
}

// TestFloatIdentity_ScopeKeyedOnSrc checks that an x*1.0 identity applies
// only to compiler-generated (Src<0) instructions.
func TestFloatIdentity_ScopeKeyedOnSrc(t *testing.T) {
	b := ssa.NewBuilder()
	entry := b.CreateBlock()
	b.SetEntry(entry)
	b.SetCurrentBlock(entry)
	b.Seal(entry)

	x := b.Emit(ssa.OpCopy, 0, hir.Span{}, ssa.ParamOperand(0))
	userMul := b.Emit(ssa.OpMul, 0, hir.Span{}, ssa.LocalOperand(x), ssa.ConstOperand(hir.RealConst(1)))
	genMul := b.Emit(ssa.OpMul, -1, hir.Span{}, ssa.LocalOperand(x), ssa.ConstOperand(hir.RealConst(1)))
	b.SetTerminator(entry, ssa.Return())

	cfg := b.CFG()
	cfg.Exit = entry
	cfg.AddParam(ssa.TemperatureParam())

	Run(cfg, nil)

	require.Equal(t, ssa.OpMul, cfg.Instr(userMul).Op, "user-written x*1 must not be rewritten")
	require.Equal(t, ssa.OpCopy, cfg.Instr(genMul).Op, "compiler-generated x*1 must be rewritten to a copy")
}
