// Package lower implements a single pass lowering a type-checked,
// scope-resolved hir.Module's analog behaviour into an ssa.CFG. It uses
// internal/ssa/builder.go's incomplete-phi (Braun et al.) SSA construction for
// output accumulators: a contribute statement's running sum reads and
// writes an output the same way an ordinary variable read/write would.
package lower

import (
	"github.com/erusyd/openvaf-core/internal/coreutil"
	"github.com/erusyd/openvaf-core/internal/diagnostics"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// Lower runs the single-pass lowerer over m's analog block. An invalid HIR
// is assumed already rejected before this pass runs, so Lower itself never
// diagnoses a voltage contribution it cannot stamp into the Jacobian; this
// pass happily lowers one, and it is jacobian.Assemble downstream that
// reports it as unsupported.
func Lower(m *hir.Module, sink *diagnostics.Sink) *ssa.CFG {
	l := &lowerer{
		m:         m,
		b:         ssa.NewBuilder(),
		sink:      sink,
		varPlace:  make(map[hir.VariableID]ssa.PlaceID),
		paramOf:   make(map[paramKey]ssa.ParamID),
	}
	return l.run()
}

type paramKey struct {
	tag    ssa.ParamKindTag
	hi, lo hir.NodeID
	hasLo  bool
	branch hir.BranchID
	param  hir.ParameterID
}

type lowerer struct {
	m    *hir.Module
	b    *ssa.Builder
	sink *diagnostics.Sink

	varPlace map[hir.VariableID]ssa.PlaceID
	paramOf  map[paramKey]ssa.ParamID
}

func (l *lowerer) run() *ssa.CFG {
	entry := l.b.CreateBlock()
	l.b.SetEntry(entry)
	l.b.SetCurrentBlock(entry)

	for v := range l.m.Variables {
		l.varPlace[hir.VariableID(v)] = l.b.CFG().AddPlace(l.m.Variables[v].Name)
	}

	// entry never gains a predecessor after construction, so it can (and
	// must) be sealed before its body is lowered: a contribute statement
	// that is the first use of its output reads an as-yet-undefined
	// accumulator, and Builder.ReadOutput only resolves that read
	// immediately, without an incomplete-phi placeholder, for a sealed
	// block.
	l.b.Seal(entry)

	tail := l.lowerStmts(l.m.Analog)
	l.b.SetTerminator(tail, ssa.Return())

	cfg := l.b.CFG()
	cfg.Exit = tail

	l.b.OutputKinds(func(k ssa.PlaceKind) {
		cfg.Outputs[k] = l.b.ReadOutput(k, tail)
	})

	if coreutil.LoweringLoggingEnabled {
		println(cfg.Format())
	}
	if coreutil.CFGValidationEnabled {
		if err := cfg.Validate(); err != nil {
			panic(err)
		}
	}
	return cfg
}

// lowerStmts lowers a statement list starting at the builder's current
// block and returns the id of the block execution falls through to after
// the last statement (the "tail"), updating the builder's current block as
// it goes. Every block created along the way that has a single known
// predecessor is sealed immediately; loop headers are sealed only once
// their back edge is wired (see lowerWhile).
func (l *lowerer) lowerStmts(stmts []hir.StmtID) ssa.BasicBlockID {
	for _, id := range stmts {
		l.lowerStmt(l.m.Stmt(id))
	}
	return l.b.CurrentBlock()
}

func (l *lowerer) lowerStmt(s *hir.Stmt) {
	switch s.Kind {
	case hir.StmtAssign:
		rhs := l.lowerExpr(s.Expr)
		place := l.varPlace[s.Var]
		l.b.EmitPlaceWrite(place, userSrc, s.Span, rhs)
	case hir.StmtContribute:
		l.lowerContribute(s)
	case hir.StmtIf:
		l.lowerIf(s)
	case hir.StmtWhile:
		l.lowerWhile(s)
	case hir.StmtBlock:
		l.lowerStmts(s.Body)
	default:
		panic("BUG: unreachable statement kind in well-formed HIR")
	}
}

// userSrc is the Src tag lowering gives every instruction it emits directly
// from source: non-negative, so CCP's float-identity rewrite never touches
// it. User-written code never sees these rewrites.
const userSrc int32 = 0

func (l *lowerer) lowerContribute(s *hir.Stmt) {
	kind := outputPlaceKind(s.Output)
	rhs := l.lowerExpr(s.Expr)
	block := l.b.CurrentBlock()
	prior := l.b.ReadOutput(kind, block)
	sum := l.b.Emit(ssa.OpAdd, userSrc, s.Span, ssa.LocalOperand(prior), rhs)
	l.b.DefineOutput(kind, block, sum)
}

func outputPlaceKind(o hir.OutputKind) ssa.PlaceKind {
	switch {
	case o.Implicit && o.Voltage:
		return ssa.ImplicitBranchVoltage(o.Hi, o.Lo)
	case o.Implicit:
		return ssa.ImplicitBranchCurrent(o.Hi, o.Lo)
	case o.Voltage:
		return ssa.BranchVoltage(o.Branch)
	default:
		return ssa.BranchCurrent(o.Branch)
	}
}

// lowerIf lowers an hir.StmtIf into a Split over a then- and an else-block,
// merging at a join block.
func (l *lowerer) lowerIf(s *hir.Stmt) {
	cond := l.lowerExpr(s.Cond)
	header := l.b.CurrentBlock()

	thenBlock := l.b.CreateBlock()
	elseBlock := l.b.CreateBlock()
	l.b.SetTerminator(header, ssa.Split(cond, thenBlock, elseBlock, false))
	l.b.Seal(thenBlock)
	l.b.Seal(elseBlock)

	l.b.SetCurrentBlock(thenBlock)
	thenTail := l.lowerStmts(s.Then)

	l.b.SetCurrentBlock(elseBlock)
	elseTail := l.lowerStmts(s.Else)

	join := l.b.CreateBlock()
	l.b.SetTerminator(thenTail, ssa.Goto(join))
	l.b.SetTerminator(elseTail, ssa.Goto(join))
	l.b.Seal(join)
	l.b.SetCurrentBlock(join)
}

// lowerWhile lowers an hir.StmtWhile into a loop header whose own Split is
// flagged LoopHead, marking its back edge directly rather than leaving it
// to be inferred from dominance.
func (l *lowerer) lowerWhile(s *hir.Stmt) {
	preheader := l.b.CurrentBlock()
	header := l.b.CreateBlock()
	l.b.SetTerminator(preheader, ssa.Goto(header))
	l.b.SetCurrentBlock(header)

	cond := l.lowerExpr(s.Cond)

	body := l.b.CreateBlock()
	exit := l.b.CreateBlock()
	l.b.SetTerminator(header, ssa.Split(cond, body, exit, true))
	l.b.Seal(body)

	l.b.SetCurrentBlock(body)
	bodyTail := l.lowerStmts(s.Then)
	l.b.SetTerminator(bodyTail, ssa.Goto(header))

	l.b.Seal(header)
	l.b.Seal(exit)
	l.b.SetCurrentBlock(exit)
}

func (l *lowerer) lowerExpr(id hir.ExprID) ssa.Operand {
	e := l.m.Expr(id)
	switch e.Kind {
	case hir.ExprConstLit:
		return ssa.ConstOperand(e.Const)
	case hir.ExprVarRef:
		return ssa.PlaceOperand(l.varPlace[e.Var])
	case hir.ExprParamRef:
		return ssa.ParamOperand(l.moduleParameter(e.Param))
	case hir.ExprBuiltinTemp:
		return ssa.ParamOperand(l.param(paramKey{tag: ssa.ParamTemperature}, ssa.TemperatureParam()))
	case hir.ExprBranchAccess:
		return l.lowerBranchAccess(e)
	case hir.ExprUnary:
		return l.lowerUnary(e)
	case hir.ExprBinary:
		return l.lowerBinary(e)
	case hir.ExprTernary:
		return l.lowerTernary(e)
	default:
		panic("BUG: unreachable expression kind in well-formed HIR")
	}
}

// lowerBranchAccess expands V(b)/I(b) into a Param operand keyed by the
// branch's node topology: a Voltage{hi,lo} or Current(b) kind depending on
// which quantity is accessed. Every branch the HIR construction stage
// admits here is treated as terminal (directly probed); this module does
// not model the sum/difference expansion a non-terminal branch access
// would otherwise require.
func (l *lowerer) lowerBranchAccess(e *hir.Expr) ssa.Operand {
	br := l.m.Branches[e.Branch]
	if e.Access == hir.AccessFlow {
		return ssa.ParamOperand(l.param(paramKey{tag: ssa.ParamCurrent, branch: e.Branch}, ssa.CurrentParam(e.Branch)))
	}
	hi, lo, hasLo, ok := br.Kind.HiLo()
	if !ok {
		panic("BUG: voltage access on a PortFlow branch should have been rejected during HIR construction")
	}
	return ssa.ParamOperand(l.param(paramKey{tag: ssa.ParamVoltage, hi: hi, lo: lo, hasLo: hasLo}, ssa.VoltageParam(hi, lo, hasLo)))
}

func (l *lowerer) moduleParameter(p hir.ParameterID) ssa.ParamID {
	return l.param(paramKey{tag: ssa.ParamModuleParameter, param: p}, ssa.ModuleParameterParam(p))
}

func (l *lowerer) param(key paramKey, kind ssa.ParamKind) ssa.ParamID {
	if id, ok := l.paramOf[key]; ok {
		return id
	}
	id := l.b.CFG().AddParam(kind)
	l.paramOf[key] = id
	return id
}

func (l *lowerer) lowerUnary(e *hir.Expr) ssa.Operand {
	x := l.lowerExpr(e.Lhs)
	if e.IsTrans {
		return ssa.LocalOperand(l.b.Emit(transOpcode(e.Trans), userSrc, e.Span, x))
	}
	op := ssa.OpNeg
	if e.UnaryOp == hir.UnaryNot {
		op = ssa.OpNot
	}
	return ssa.LocalOperand(l.b.Emit(op, userSrc, e.Span, x))
}

func transOpcode(t hir.TranscendentalOp) ssa.Opcode {
	switch t {
	case hir.TransSin:
		return ssa.OpSin
	case hir.TransCos:
		return ssa.OpCos
	case hir.TransExp:
		return ssa.OpExp
	case hir.TransLn:
		return ssa.OpLn
	case hir.TransSqrt:
		return ssa.OpSqrt
	default:
		panic("BUG: unreachable transcendental op in well-formed HIR")
	}
}

func (l *lowerer) lowerBinary(e *hir.Expr) ssa.Operand {
	x := l.lowerExpr(e.Lhs)
	y := l.lowerExpr(e.Rhs)
	return ssa.LocalOperand(l.b.Emit(binOpcode(e.BinaryOp), userSrc, e.Span, x, y))
}

func binOpcode(op hir.BinaryOp) ssa.Opcode {
	switch op {
	case hir.BinaryAdd:
		return ssa.OpAdd
	case hir.BinarySub:
		return ssa.OpSub
	case hir.BinaryMul:
		return ssa.OpMul
	case hir.BinaryDiv:
		return ssa.OpDiv
	case hir.BinaryPow:
		return ssa.OpPow
	case hir.BinaryLe:
		return ssa.OpLe
	case hir.BinaryLt:
		return ssa.OpLt
	case hir.BinaryGe:
		return ssa.OpGe
	case hir.BinaryGt:
		return ssa.OpGt
	case hir.BinaryEq:
		return ssa.OpEq
	case hir.BinaryNe:
		return ssa.OpNe
	default:
		panic("BUG: unreachable binary op in well-formed HIR")
	}
}

// lowerTernary lowers cond ? then : else as a Split into two single-value
// blocks merged by an explicit phi. It is deliberately not folded into a
// select pseudo-op: the CCP pass is what is expected to fold it when the
// condition is constant.
func (l *lowerer) lowerTernary(e *hir.Expr) ssa.Operand {
	cond := l.lowerExpr(e.Cond)
	header := l.b.CurrentBlock()

	thenBlock := l.b.CreateBlock()
	elseBlock := l.b.CreateBlock()
	l.b.SetTerminator(header, ssa.Split(cond, thenBlock, elseBlock, false))
	l.b.Seal(thenBlock)
	l.b.Seal(elseBlock)

	l.b.SetCurrentBlock(thenBlock)
	thenVal := l.lowerExpr(e.Then)
	thenTail := l.b.CurrentBlock()

	l.b.SetCurrentBlock(elseBlock)
	elseVal := l.lowerExpr(e.Else)
	elseTail := l.b.CurrentBlock()

	join := l.b.CreateBlock()
	l.b.SetTerminator(thenTail, ssa.Goto(join))
	l.b.SetTerminator(elseTail, ssa.Goto(join))
	l.b.Seal(join)
	l.b.SetCurrentBlock(join)

	thenLocal := operandToLocal(l.b, thenTail, userSrc, e.Span, thenVal)
	elseLocal := operandToLocal(l.b, elseTail, userSrc, e.Span, elseVal)
	dst := l.b.AddPhi(join, ssa.PhiSource{Pred: thenTail, Local: thenLocal}, ssa.PhiSource{Pred: elseTail, Local: elseLocal})
	return ssa.LocalOperand(dst)
}

// operandToLocal materializes op as a Local if it is not one already
// (phis require a LocalID source, not an arbitrary operand), emitting the
// Copy into block (which must still be the builder's current block).
func operandToLocal(b *ssa.Builder, block ssa.BasicBlockID, src int32, span hir.Span, op ssa.Operand) ssa.LocalID {
	if op.Kind == ssa.OperandLocal {
		return op.Local
	}
	cur := b.CurrentBlock()
	b.SetCurrentBlock(block)
	local := b.Emit(ssa.OpCopy, src, span, op)
	b.SetCurrentBlock(cur)
	return local
}
