package ssa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erusyd/openvaf-core/internal/hir"
)

func TestBuilder_OutputPhiAcrossIf(t *testing.T) {
	b := NewBuilder()
	entry := b.CreateBlock()
	b.SetEntry(entry)
	b.SetCurrentBlock(entry)

	out := BranchCurrent(0)
	zero := b.Emit(OpCopy, -1, hir.Span{}, ConstOperand(hir.RealConst(0)))
	b.DefineOutput(out, entry, zero)

	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	join := b.CreateBlock()

	b.SetTerminator(entry, Split(ConstOperand(hir.BoolConst(true)), thenBlk, elseBlk, false))
	b.Seal(entry)
	b.Seal(thenBlk)
	b.Seal(elseBlk)

	b.SetCurrentBlock(thenBlk)
	prior := b.ReadOutput(out, thenBlk)
	one := b.Emit(OpAdd, 0, hir.Span{}, LocalOperand(prior), ConstOperand(hir.RealConst(1)))
	b.DefineOutput(out, thenBlk, one)
	b.SetTerminator(thenBlk, Goto(join))

	b.SetCurrentBlock(elseBlk)
	b.SetTerminator(elseBlk, Goto(join))

	b.Seal(join)
	b.SetCurrentBlock(join)
	b.SetTerminator(join, Return())

	joined := b.ReadOutput(out, join)
	require.True(t, joined.Valid())

	cfg := b.CFG()
	cfg.Exit = join

	phis := cfg.Block(join).Phis
	require.Len(t, phis, 1)
	require.Equal(t, joined, phis[0].Dst)
	require.Len(t, phis[0].Sources, len(cfg.Block(join).Preds))

	thenSrc, ok := phis[0].SourceFor(thenBlk)
	require.True(t, ok)
	require.Equal(t, one, thenSrc)

	elseSrc, ok := phis[0].SourceFor(elseBlk)
	require.True(t, ok)
	require.Equal(t, zero, elseSrc)

	require.NoError(t, cfg.Validate())
}

func TestDominators(t *testing.T) {
	b := NewBuilder()
	entry := b.CreateBlock()
	b.SetEntry(entry)
	b.SetCurrentBlock(entry)

	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	join := b.CreateBlock()

	b.SetTerminator(entry, Split(ConstOperand(hir.BoolConst(true)), thenBlk, elseBlk, false))
	b.Seal(entry)
	b.Seal(thenBlk)
	b.Seal(elseBlk)
	b.SetTerminator(thenBlk, Goto(join))
	b.SetTerminator(elseBlk, Goto(join))
	b.Seal(join)
	b.SetTerminator(join, Return())

	cfg := b.CFG()
	dom := cfg.ComputeDominators()
	require.True(t, dom.Dominates(entry, thenBlk))
	require.True(t, dom.Dominates(entry, elseBlk))
	require.True(t, dom.Dominates(entry, join))
	require.False(t, dom.Dominates(thenBlk, join)) // join has two preds, neither alone dominates it
	require.False(t, dom.Dominates(elseBlk, join))
}

func TestBasicBlock_RemovePred(t *testing.T) {
	b := NewBuilder()
	entry := b.CreateBlock()
	target := b.CreateBlock()
	b.AddEdge(entry, target)
	require.Equal(t, []BasicBlockID{entry}, b.CFG().Block(target).Preds)

	b.CFG().Block(target).RemovePred(entry)
	require.Empty(t, b.CFG().Block(target).Preds)
}

func TestCFG_Validate_CatchesUseBeforeDef(t *testing.T) {
	b := NewBuilder()
	entry := b.CreateBlock()
	b.SetEntry(entry)
	b.SetCurrentBlock(entry)
	b.Seal(entry)
	b.SetTerminator(entry, Return())

	cfg := b.CFG()
	cfg.Exit = entry
	require.NoError(t, cfg.Validate())

	// Splice in a use of a local that was never defined in any block.
	bogus := LocalOperand(LocalID(9999))
	cfg.Block(entry).InsertInstruction(&Instruction{Op: OpAdd, Dst: LocalDest(LocalID(1)), Args: []Operand{bogus, ConstOperand(hir.RealConst(0))}})
	require.Error(t, cfg.Validate())
}
