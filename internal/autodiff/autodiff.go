// Package autodiff implements forward-mode automatic differentiation:
// given a set of (value, unknown) requests, it builds, for each, the SSA
// instructions computing d(value)/d(unknown) by walking the value's
// definition backward through the ordinary chain rules, memoizing by
// request so that two requests sharing a sub-expression share its
// derivative too.
//
// Building a sibling value that mirrors an existing SSA value's shape is
// the same trick internal/ccp's rewrite pass uses for constants; here it
// is derivatives instead.
package autodiff

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/erusyd/openvaf-core/internal/diagnostics"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// Request asks for the derivative of Value with respect to Unknown.
type Request struct {
	Value   ssa.LocalID
	Unknown ssa.ParamID
}

// Differentiate resolves every request against cfg, inserting the
// derivative instructions it needs (each tagged Src < 0, which makes them
// eligible for internal/ccp's float-identity folding) and returns the resulting
// operand per request.
//
// A request whose value's definition cannot be differentiated (a boolean
// comparison, an unsupported call-back) is recorded both as a diagnostics
// Report against the offending instruction's span and as the returned
// error; internal/pipeline discards the job's partial result when this
// error is non-nil.
func Differentiate(cfg *ssa.CFG, sink *diagnostics.Sink, reqs []Request) (map[Request]ssa.Operand, error) {
	d := &differentiator{cfg: cfg, sink: sink, memo: make(map[Request]ssa.Operand)}
	d.index()

	out := make(map[Request]ssa.Operand, len(reqs))
	for _, r := range reqs {
		out[r] = d.derivativeOf(r.Value, r.Unknown)
	}
	if d.err != nil {
		return out, errors.Wrap(d.err, "autodiff")
	}
	return out, nil
}

type phiLoc struct {
	block ssa.BasicBlockID
	idx   int
}

type differentiator struct {
	cfg  *ssa.CFG
	sink *diagnostics.Sink

	memo    map[Request]ssa.Operand
	phiOf   map[ssa.LocalID]phiLoc
	blockOf map[ssa.LocalID]ssa.BasicBlockID

	err error
}

func (d *differentiator) index() {
	d.phiOf = make(map[ssa.LocalID]phiLoc)
	d.blockOf = make(map[ssa.LocalID]ssa.BasicBlockID)
	d.cfg.Blocks(func(id ssa.BasicBlockID, blk *ssa.BasicBlock) {
		for i := range blk.Phis {
			d.phiOf[blk.Phis[i].Dst] = phiLoc{block: id, idx: i}
			d.blockOf[blk.Phis[i].Dst] = id
		}
		blk.Instructions(func(instr *ssa.Instruction) {
			if instr.Dst.Kind == ssa.DestLocal {
				d.blockOf[instr.Dst.Local] = id
			}
		})
	})
}

func zero() ssa.Operand { return ssa.ConstOperand(hir.RealConst(0)) }
func one() ssa.Operand  { return ssa.ConstOperand(hir.RealConst(1)) }

// derivativeOf returns d(v)/d(p), building whatever instructions it needs
// and memoizing the result under Request{v, p}.
func (d *differentiator) derivativeOf(v ssa.LocalID, p ssa.ParamID) ssa.Operand {
	req := Request{Value: v, Unknown: p}
	if cached, ok := d.memo[req]; ok {
		return cached
	}

	if loc, ok := d.phiOf[v]; ok {
		return d.derivativeOfPhi(req, loc)
	}

	instr := d.cfg.Instr(v)
	result := d.derivativeOfInstr(instr, p)
	d.memo[req] = result
	return result
}

// derivativeOfPhi builds a sibling phi merging each source's derivative. The
// placeholder local is memoized before its sources are computed so that a
// loop-carried source referring back to this same phi resolves to the
// placeholder instead of recursing forever: the same incomplete-phi
// discipline internal/ssa.Builder uses for ordinary values.
func (d *differentiator) derivativeOfPhi(req Request, loc phiLoc) ssa.Operand {
	dst := d.cfg.NewLocal()
	result := ssa.LocalOperand(dst)
	d.memo[req] = result

	orig := d.cfg.Block(loc.block).Phis[loc.idx]
	sources := make([]ssa.PhiSource, 0, len(orig.Sources))
	for _, src := range orig.Sources {
		dOp := d.derivativeOf(src.Local, req.Unknown)
		sources = append(sources, ssa.PhiSource{Pred: src.Pred, Local: d.materialize(src.Pred, dOp)})
	}
	d.cfg.Block(loc.block).Phis = append(d.cfg.Block(loc.block).Phis, ssa.Phi{Dst: dst, Sources: sources})
	return result
}

// materialize returns op's LocalID, appending a trivial Copy at the end of
// block if op isn't already a Local: a Phi source must name a LocalID.
func (d *differentiator) materialize(block ssa.BasicBlockID, op ssa.Operand) ssa.LocalID {
	if op.Kind == ssa.OperandLocal {
		return op.Local
	}
	return d.cfg.Append(block, ssa.OpCopy, -1, hir.Span{}, op)
}

// dArg resolves the derivative of one operand position, without requiring
// an instruction to recurse through: a literal's derivative is always
// zero, the seed unknown's is one, every other parameter's is zero.
func (d *differentiator) dArg(o ssa.Operand, p ssa.ParamID) ssa.Operand {
	switch o.Kind {
	case ssa.OperandConst:
		return zero()
	case ssa.OperandLocal:
		return d.derivativeOf(o.Local, p)
	case ssa.OperandPlace:
		// A Place is a mutable Verilog-A variable, not an autodiff source;
		// anything reaching the Jacobian stage through a Place has already
		// been read into a Local by internal/lower.
		return zero()
	case ssa.OperandParam:
		if o.Param == p {
			return one()
		}
		return zero()
	case ssa.OperandCallBack:
		if o.CB.IsDerivative {
			if o.CB.Unknown == p {
				return one()
			}
			return zero()
		}
		return zero()
	default:
		return zero()
	}
}

func (d *differentiator) fail(instr *ssa.Instruction, format string, args ...any) ssa.Operand {
	msg := fmt.Sprintf(format, args...)
	d.sink.Error(instr.Span, msg)
	if d.err == nil {
		d.err = errors.Errorf("%s at %s", msg, instr.Span)
	}
	return zero()
}

// derivativeOfInstr applies the per-opcode chain rule, emitting the new
// instructions right after instr itself (so a reader scanning the
// block sees a value immediately followed by its derivative) and tagging
// every emitted instruction Src: -1.
func (d *differentiator) derivativeOfInstr(instr *ssa.Instruction, p ssa.ParamID) ssa.Operand {
	block := d.blockOf[instr.Dst.Local]
	// after tracks the insertion cursor: each new derivative instruction is
	// spliced in right after the previous one (not always after instr
	// itself), so a chain rule needing several emits in a row (Mul, Pow,
	// Div, ...) comes out in a valid def-before-use order instead of having
	// its last emit end up closest to instr and its first emit pushed
	// furthest away.
	after := instr
	emit := func(op ssa.Opcode, args ...ssa.Operand) ssa.Operand {
		local := d.cfg.EmitAfter(block, after, op, -1, instr.Span, args...)
		after = d.cfg.Instr(local)
		return ssa.LocalOperand(local)
	}
	orig := ssa.LocalOperand(instr.Dst.Local)

	switch instr.Op {
	case ssa.OpCopy:
		// A pure alias: its derivative is its operand's derivative, with no
		// new instruction needed.
		return d.dArg(instr.Args[0], p)

	case ssa.OpAdd:
		da, db := d.dArg(instr.Args[0], p), d.dArg(instr.Args[1], p)
		return emit(ssa.OpAdd, da, db)

	case ssa.OpSub:
		da, db := d.dArg(instr.Args[0], p), d.dArg(instr.Args[1], p)
		return emit(ssa.OpSub, da, db)

	case ssa.OpNeg:
		da := d.dArg(instr.Args[0], p)
		return emit(ssa.OpNeg, da)

	case ssa.OpMul:
		a, b := instr.Args[0], instr.Args[1]
		da, db := d.dArg(a, p), d.dArg(b, p)
		t1 := emit(ssa.OpMul, da, b)
		t2 := emit(ssa.OpMul, a, db)
		return emit(ssa.OpAdd, t1, t2)

	case ssa.OpDiv:
		a, b := instr.Args[0], instr.Args[1]
		da, db := d.dArg(a, p), d.dArg(b, p)
		t1 := emit(ssa.OpMul, da, b)
		t2 := emit(ssa.OpMul, a, db)
		num := emit(ssa.OpSub, t1, t2)
		denom := emit(ssa.OpMul, b, b)
		return emit(ssa.OpDiv, num, denom)

	case ssa.OpPow:
		a, b := instr.Args[0], instr.Args[1]
		da, db := d.dArg(a, p), d.dArg(b, p)
		// d[a^b] = b*a^(b-1)*da + a^b*ln(a)*db
		bMinus1 := emit(ssa.OpSub, b, one())
		aPowBMinus1 := emit(ssa.OpPow, a, bMinus1)
		t1 := emit(ssa.OpMul, da, b)
		t1 = emit(ssa.OpMul, t1, aPowBMinus1)
		lnA := emit(ssa.OpLn, a)
		t2 := emit(ssa.OpMul, orig, lnA)
		t2 = emit(ssa.OpMul, t2, db)
		return emit(ssa.OpAdd, t1, t2)

	case ssa.OpSin:
		da := d.dArg(instr.Args[0], p)
		cosA := emit(ssa.OpCos, instr.Args[0])
		return emit(ssa.OpMul, cosA, da)

	case ssa.OpCos:
		da := d.dArg(instr.Args[0], p)
		sinA := emit(ssa.OpSin, instr.Args[0])
		negSinA := emit(ssa.OpNeg, sinA)
		return emit(ssa.OpMul, negSinA, da)

	case ssa.OpExp:
		da := d.dArg(instr.Args[0], p)
		return emit(ssa.OpMul, orig, da)

	case ssa.OpLn:
		da := d.dArg(instr.Args[0], p)
		return emit(ssa.OpDiv, da, instr.Args[0])

	case ssa.OpSqrt:
		da := d.dArg(instr.Args[0], p)
		twoSqrtA := emit(ssa.OpMul, ssa.ConstOperand(hir.RealConst(2)), orig)
		return emit(ssa.OpDiv, da, twoSqrtA)

	case ssa.OpCallBack:
		if instr.CB.IsDerivative {
			if instr.CB.Unknown == p {
				return one()
			}
			return zero()
		}
		return d.fail(instr, "cannot differentiate through compiler intrinsic %v", instr.CB)

	case ssa.OpLe, ssa.OpLt, ssa.OpGe, ssa.OpGt, ssa.OpEq, ssa.OpNe, ssa.OpNot:
		return d.fail(instr, "cannot differentiate boolean-valued %s", instr.Op)

	default:
		return d.fail(instr, "cannot differentiate %s", instr.Op)
	}
}
