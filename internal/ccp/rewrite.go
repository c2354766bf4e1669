package ccp

import (
	"github.com/erusyd/openvaf-core/internal/dataflow"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// Run computes the fixed point of Analysis over cfg, rewrites the CFG in
// place with every constant the analysis proved, and replaces any Split
// whose condition folded to a literal with a Goto.
//
// One dataflow-analysis-then-rewrite cycle can leave a later identity
// unexposed: folding t2 to Copy(0) only happens while rewriting t2 itself,
// so a parent like Add(t1, t2) that would itself become an add-zero
// identity once t2's copy is forwarded doesn't get a chance to fold until a
// following cycle sees the already-forwarded operand. internal/autodiff's
// chain-rule output produces exactly this shape, so Run repeats the cycle
// until one leaves the CFG unchanged.
//
// knownParams may be nil.
func Run(cfg *ssa.CFG, knownParams map[ssa.ParamID]hir.Const) {
	for {
		a := &Analysis{KnownParams: knownParams}
		results := dataflow.Run(cfg, a)
		changed := rewrite(cfg, results, knownParams)
		changed = simplify(cfg) || changed
		changed = foldTrivialCopies(cfg) || changed
		if !changed {
			return
		}
	}
}

// rewriteVisitor implements dataflow.Visitor, rewriting each instruction in
// place using the state as of just before it ran (sufficient to
// independently recompute the instruction's own folded value, since that
// value is a pure function of its operands' pre-effect state).
type rewriteVisitor struct {
	knownParams map[ssa.ParamID]hir.Const
	changed     bool
}

func (*rewriteVisitor) VisitPhi(cfg *ssa.CFG, blk ssa.BasicBlockID, phi *ssa.Phi, stateBefore dataflow.State) {
	// Phis are not rewritten directly: a phi whose value is fully known is
	// instead observed through its downstream uses, which the instruction
	// rewrite below substitutes directly.
}

func (v *rewriteVisitor) VisitInstruction(cfg *ssa.CFG, blk ssa.BasicBlockID, instr *ssa.Instruction, stateBefore dataflow.State) {
	s := stateBefore.(*BasicBlockConstants)
	ctx := EvalCtx{State: s, KnownParams: v.knownParams}

	if val := ctx.EvalOp(instr); val.IsElem() {
		if instr.Op != ssa.OpCopy || len(instr.Args) != 1 ||
			instr.Args[0].Kind != ssa.OperandConst || instr.Args[0].Const != val.Value {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{ssa.ConstOperand(val.Value)}
			v.changed = true
		}
		return
	}

	for i, arg := range instr.Args {
		if val := ctx.GetOperand(arg); val.IsElem() && arg.Kind != ssa.OperandConst {
			instr.Args[i] = ssa.ConstOperand(val.Value)
			v.changed = true
		}
	}

	if instr.IsCompilerGenerated() {
		before := instr.Op
		applyFloatIdentity(instr)
		if instr.Op != before {
			v.changed = true
		}
	}
}

func rewrite(cfg *ssa.CFG, results *dataflow.Results, knownParams map[ssa.ParamID]hir.Const) bool {
	v := &rewriteVisitor{knownParams: knownParams}
	results.Visit(v)

	cfg.Blocks(func(id ssa.BasicBlockID, blk *ssa.BasicBlock) {
		if blk.Term.Kind != ssa.TermSplit {
			return
		}
		exit := results.ExitState(id).(*BasicBlockConstants)
		if !exit.Reachable {
			return
		}
		ctx := EvalCtx{State: exit, KnownParams: knownParams}
		if val := ctx.GetOperand(blk.Term.Cond); val.IsElem() && blk.Term.Cond.Kind != ssa.OperandConst {
			blk.Term.Cond = ssa.ConstOperand(val.Value)
			v.changed = true
		}
	})
	return v.changed
}

// simplify replaces every Split whose condition has been folded to a
// literal with a Goto to the statically-chosen successor, and drops the
// abandoned successor's now-stale predecessor entry.
func simplify(cfg *ssa.CFG) bool {
	changed := false
	cfg.Blocks(func(id ssa.BasicBlockID, blk *ssa.BasicBlock) {
		if blk.Term.Kind != ssa.TermSplit || blk.Term.Cond.Kind != ssa.OperandConst {
			return
		}
		keep, drop := blk.Term.Else, blk.Term.Then
		if blk.Term.Cond.Const.AsBool() {
			keep, drop = blk.Term.Then, blk.Term.Else
		}
		blk.Term = ssa.Goto(keep)
		if drop != keep {
			cfg.Block(drop).RemovePred(id)
		}
		changed = true
	})
	return changed
}

// foldTrivialCopies forwards every operand referencing a Local whose own
// instruction is a plain Copy to that Copy's source, repeating until no
// instruction changes. The float-identity rewrites above each turn one
// instruction into a Copy in isolation; without this pass a chain like
// `_1 := copy(b); _2 := f64.+ [_1, _3]` never reads as the `b + ...` it
// actually computes. Ordinary codegen would just treat Copy as an alias and
// never materialize it, but this module keeps the CFG itself as the
// reference for what "fully reduced" means, so the alias is resolved
// eagerly instead.
func foldTrivialCopies(cfg *ssa.CFG) bool {
	resolve := func(o ssa.Operand) (ssa.Operand, bool) {
		if o.Kind != ssa.OperandLocal {
			return o, false
		}
		def := cfg.Instr(o.Local)
		if def.Op != ssa.OpCopy || len(def.Args) != 1 {
			return o, false
		}
		return def.Args[0], true
	}

	anyChange := false
	changed := true
	for changed {
		changed = false
		cfg.Blocks(func(id ssa.BasicBlockID, blk *ssa.BasicBlock) {
			blk.Instructions(func(instr *ssa.Instruction) {
				for i, a := range instr.Args {
					if r, ok := resolve(a); ok {
						instr.Args[i] = r
						changed = true
					}
				}
			})
			if blk.Term.Kind == ssa.TermSplit {
				if r, ok := resolve(blk.Term.Cond); ok {
					blk.Term.Cond = r
					changed = true
				}
			}
		})
		anyChange = anyChange || changed
	}
	return anyChange
}

// applyFloatIdentity rewrites instr in place to Copy when it matches one of
// a handful of algebraic identities (x+0, 0+x, x-0, x*1, 1*x, x*0, 0*x,
// x/1), and rewrites 0-x to Neg x.
// Argument position matters for Sub and Div but not for Add and Mul.
func applyFloatIdentity(instr *ssa.Instruction) {
	isZero := func(o ssa.Operand) bool {
		return o.Kind == ssa.OperandConst && o.Const.Type == hir.TypeReal && o.Const.Real == 0
	}
	isOne := func(o ssa.Operand) bool {
		return o.Kind == ssa.OperandConst && o.Const.Type == hir.TypeReal && o.Const.Real == 1
	}

	switch instr.Op {
	case ssa.OpSub:
		if len(instr.Args) == 2 && isZero(instr.Args[0]) {
			instr.Op = ssa.OpNeg
			instr.Args = []ssa.Operand{instr.Args[1]}
			return
		}
		if len(instr.Args) == 2 && isZero(instr.Args[1]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[0]}
		}
	case ssa.OpAdd:
		if len(instr.Args) == 2 && isZero(instr.Args[0]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[1]}
			return
		}
		if len(instr.Args) == 2 && isZero(instr.Args[1]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[0]}
		}
	case ssa.OpMul:
		// x*0 and 0*x both fold to the literal zero operand. This is not
		// among propagation.rs's enumerated identities (it deliberately
		// avoids assuming 0*x==0 for arbitrary runtime float x, since
		// 0*NaN and 0*Inf are not 0), but internal/autodiff's naive product
		// rule emits exactly this shape whenever one side of a product has a
		// zero derivative, and restricting the rule to Src<0 (compiler
		// generated) code limits the unsound case to derivative plumbing,
		// never to a user's literal `x * 0`.
		if len(instr.Args) == 2 && isZero(instr.Args[1]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[1]}
			return
		}
		if len(instr.Args) == 2 && isZero(instr.Args[0]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[0]}
			return
		}
		if len(instr.Args) == 2 && isOne(instr.Args[1]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[0]}
			return
		}
		if len(instr.Args) == 2 && isOne(instr.Args[0]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[1]}
		}
	case ssa.OpDiv:
		if len(instr.Args) == 2 && isOne(instr.Args[1]) {
			instr.Op = ssa.OpCopy
			instr.Args = []ssa.Operand{instr.Args[0]}
		}
	}
}
