package autodiff

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erusyd/openvaf-core/internal/ccp"
	"github.com/erusyd/openvaf-core/internal/diagnostics"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// TestDerivativeOfLinearChainReducesToBPlusOne checks that y = a*b + a,
// differentiated w.r.t. a, reduces to b + 1 once the emitted derivative
// instructions (all Src<0) go through CCP's float identities and
// trivial-copy forwarding.
func TestDerivativeOfLinearChainReducesToBPlusOne(t *testing.T) {
	b := ssa.NewBuilder()
	entry := b.CreateBlock()
	b.SetEntry(entry)
	b.SetCurrentBlock(entry)
	b.Seal(entry)

	cfg := b.CFG()
	unknownA := cfg.AddParam(ssa.VoltageParam(1, 0, false))
	paramB := cfg.AddParam(ssa.VoltageParam(2, 0, false))

	mul := b.Emit(ssa.OpMul, 0, hir.Span{}, ssa.ParamOperand(unknownA), ssa.ParamOperand(paramB))
	add := b.Emit(ssa.OpAdd, 0, hir.Span{}, ssa.LocalOperand(mul), ssa.ParamOperand(unknownA))
	b.SetTerminator(entry, ssa.Return())
	cfg.Exit = entry

	sink := diagnostics.NewSink()
	derivs, err := Differentiate(cfg, sink, []Request{{Value: add, Unknown: unknownA}})
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	dOp := derivs[Request{Value: add, Unknown: unknownA}]
	require.Equal(t, ssa.OperandLocal, dOp.Kind)

	// Materialize the derivative as a visible output so CCP's rewrite pass
	// has something rooted to walk from, then run CCP over the whole CFG.
	out := b.Emit(ssa.OpCopy, -1, hir.Span{}, dOp)
	ccp.Run(cfg, nil)

	final := cfg.Instr(out)
	// foldTrivialCopies chases the copy chain back to whatever the
	// reduced derivative expression actually is.
	for final.Op == ssa.OpCopy && len(final.Args) == 1 && final.Args[0].Kind == ssa.OperandLocal {
		final = cfg.Instr(final.Args[0].Local)
	}
	require.Equal(t, ssa.OpAdd, final.Op, "d(a*b+a)/da should reduce to an addition of b and 1")
	require.Len(t, final.Args, 2)

	hasParamB := false
	hasOne := false
	for _, a := range final.Args {
		if a.Kind == ssa.OperandParam && a.Param == paramB {
			hasParamB = true
		}
		if a.Kind == ssa.OperandConst && a.Const.Type == hir.TypeReal && a.Const.Real == 1 {
			hasOne = true
		}
	}
	require.True(t, hasParamB, "expected b to survive as an operand of the final add")
	require.True(t, hasOne, "expected the +1 term from d(a)/da to survive")
}

// TestDifferentiate_UnsupportedOpcodeReportsDiagnostic checks that an
// unsupported opcode raises a diagnostic attributed to the offending
// instruction's span.
func TestDifferentiate_UnsupportedOpcodeReportsDiagnostic(t *testing.T) {
	b := ssa.NewBuilder()
	entry := b.CreateBlock()
	b.SetEntry(entry)
	b.SetCurrentBlock(entry)
	b.Seal(entry)

	cfg := b.CFG()
	p := cfg.AddParam(ssa.VoltageParam(1, 0, false))
	cmp := b.Emit(ssa.OpLt, 0, hir.Span{}, ssa.ParamOperand(p), ssa.ConstOperand(hir.RealConst(1)))
	b.SetTerminator(entry, ssa.Return())
	cfg.Exit = entry

	sink := diagnostics.NewSink()
	_, err := Differentiate(cfg, sink, []Request{{Value: cmp, Unknown: p}})
	require.Error(t, err)
	require.True(t, sink.HasErrors())
}
