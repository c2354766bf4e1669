package ccp

import (
	"math"

	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/lattice"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// EvalCtx evaluates an operand or an instruction's opcode against the
// current lattice state. Both the transfer function (analysis.go) and the
// rewrite pass (rewrite.go) build one of these per instruction; it is cheap
// (two slice lookups and a map read), so there is no benefit to caching it
// across instructions the way the block state itself is cached for a whole
// block.
type EvalCtx struct {
	State       *BasicBlockConstants
	KnownParams map[ssa.ParamID]hir.Const
}

// GetOperand resolves o's FlatSet value: a literal is always Elem, a local
// or place is looked up in the block state, a known parameter is Elem, and
// an unresolved parameter or call-back is Bottom. Known parameters are
// consulted by the evaluator but never live in the lattice state itself.
func (e EvalCtx) GetOperand(o ssa.Operand) lattice.FlatSet {
	switch o.Kind {
	case ssa.OperandConst:
		return lattice.Elem(o.Const)
	case ssa.OperandLocal:
		return e.State.Locals.Get(o.Local)
	case ssa.OperandPlace:
		return e.State.Places.Get(o.Place)
	case ssa.OperandParam:
		if c, ok := e.KnownParams[o.Param]; ok {
			return lattice.Elem(c)
		}
		return lattice.Bottom()
	default:
		return lattice.Bottom()
	}
}

// EvalOp evaluates instr's opcode against its (already-resolved) operands,
// applying the opcode's constant-folding rule.
func (e EvalCtx) EvalOp(instr *ssa.Instruction) lattice.FlatSet {
	if instr.Op == ssa.OpCopy {
		return e.GetOperand(instr.Args[0])
	}
	if instr.Op == ssa.OpCallBack {
		// Derivative queries and other compiler intrinsics are not folded by
		// CCP; internal/autodiff resolves Derivative call-backs directly by
		// substitution before CCP ever runs over the differentiated code.
		return lattice.Bottom()
	}

	args := make([]lattice.FlatSet, len(instr.Args))
	for i, a := range instr.Args {
		args[i] = e.GetOperand(a)
	}

	// Any Bottom argument makes the result Bottom (definitely not constant);
	// any Top argument (and no Bottom) keeps the result optimistically Top,
	// since the value may still resolve once the iteration converges.
	for _, a := range args {
		if a.IsBottom() {
			return lattice.Bottom()
		}
	}
	for _, a := range args {
		if a.IsTop() {
			return lattice.Top()
		}
	}

	switch instr.Op {
	case ssa.OpAdd:
		return realBinary(args[0], args[1], func(a, b float64) float64 { return a + b })
	case ssa.OpSub:
		return realBinary(args[0], args[1], func(a, b float64) float64 { return a - b })
	case ssa.OpMul:
		return realBinary(args[0], args[1], func(a, b float64) float64 { return a * b })
	case ssa.OpDiv:
		return realBinary(args[0], args[1], func(a, b float64) float64 { return a / b })
	case ssa.OpPow:
		return realBinary(args[0], args[1], math.Pow)
	case ssa.OpNeg:
		return realUnary(args[0], func(a float64) float64 { return -a })
	case ssa.OpSin:
		return realUnary(args[0], math.Sin)
	case ssa.OpCos:
		return realUnary(args[0], math.Cos)
	case ssa.OpExp:
		return realUnary(args[0], math.Exp)
	case ssa.OpLn:
		return realUnary(args[0], math.Log)
	case ssa.OpSqrt:
		return realUnary(args[0], math.Sqrt)
	case ssa.OpLe:
		return boolBinary(args[0], args[1], func(a, b float64) bool { return a <= b })
	case ssa.OpLt:
		return boolBinary(args[0], args[1], func(a, b float64) bool { return a < b })
	case ssa.OpGe:
		return boolBinary(args[0], args[1], func(a, b float64) bool { return a >= b })
	case ssa.OpGt:
		return boolBinary(args[0], args[1], func(a, b float64) bool { return a > b })
	case ssa.OpEq:
		return boolBinary(args[0], args[1], func(a, b float64) bool { return a == b })
	case ssa.OpNe:
		return boolBinary(args[0], args[1], func(a, b float64) bool { return a != b })
	case ssa.OpNot:
		return lattice.Elem(hir.BoolConst(!args[0].Value.AsBool()))
	default:
		return lattice.Bottom()
	}
}

func realBinary(a, b lattice.FlatSet, f func(float64, float64) float64) lattice.FlatSet {
	return lattice.Elem(hir.RealConst(f(a.Value.AsFloat64(), b.Value.AsFloat64())))
}

func realUnary(a lattice.FlatSet, f func(float64) float64) lattice.FlatSet {
	return lattice.Elem(hir.RealConst(f(a.Value.AsFloat64())))
}

func boolBinary(a, b lattice.FlatSet, f func(float64, float64) bool) lattice.FlatSet {
	return lattice.Elem(hir.BoolConst(f(a.Value.AsFloat64(), b.Value.AsFloat64())))
}
