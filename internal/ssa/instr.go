package ssa

import (
	"fmt"

	"github.com/erusyd/openvaf-core/internal/hir"
)

// Opcode enumerates the instruction operators the mid-end reasons about.
// This list is deliberately the minimal closure of the operators constant
// folding and automatic differentiation have rules for.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpLe
	OpLt
	OpGe
	OpGt
	OpEq
	OpNe
	OpNot
	OpSin
	OpCos
	OpExp
	OpLn
	OpSqrt
	OpPow
	OpCopy     // alias of a single operand; used by CCP folding and place writes.
	OpCallBack // invocation of a CallBackKind intrinsic (args are the operands).
	// OpOptBarrier is an identity op (one operand, same value) that
	// internal/jacobian wraps a freshly created matrix entry in. It carries
	// no different runtime meaning than OpCopy; the distinct tag exists so a
	// pass running between entry creation and matrix finalization can
	// recognize "this value is still under construction" before
	// jacobian.Matrix.Finalize strips it back to an ordinary OpCopy.
	OpOptBarrier
)

func (op Opcode) String() string {
	switch op {
	case OpAdd:
		return "f64.+"
	case OpSub:
		return "f64.-"
	case OpMul:
		return "f64.*"
	case OpDiv:
		return "f64./"
	case OpNeg:
		return "f64.neg"
	case OpLe:
		return "f64.<="
	case OpLt:
		return "f64.<"
	case OpGe:
		return "f64.>="
	case OpGt:
		return "f64.>"
	case OpEq:
		return "f64.=="
	case OpNe:
		return "f64.!="
	case OpNot:
		return "bool.not"
	case OpSin:
		return "f64.sin"
	case OpCos:
		return "f64.cos"
	case OpExp:
		return "f64.exp"
	case OpLn:
		return "f64.ln"
	case OpSqrt:
		return "f64.sqrt"
	case OpPow:
		return "f64.pow"
	case OpCopy:
		return "copy"
	case OpCallBack:
		return "callback"
	case OpOptBarrier:
		return "optbarrier"
	default:
		return "invalid"
	}
}

// IsCommutative reports whether swapping Args[0] and Args[1] doesn't change
// the result.
func (op Opcode) IsCommutative() bool {
	switch op {
	case OpAdd, OpMul, OpEq, OpNe:
		return true
	default:
		return false
	}
}

// Instruction is one operation inside a basic block. It carries no implicit
// control flow: sequencing is the block's linked list, not a pointer graph
// between instructions.
//
// Src is the source tag used for float-identity eligibility: a negative Src
// marks a compiler-generated instruction, not traceable to a single source
// expression; only such instructions are eligible for the float-identity
// folding rules in internal/ccp.
type Instruction struct {
	Op   Opcode
	Dst  Dest
	Args []Operand
	CB   CallBackKind // meaningful iff Op == OpCallBack
	Src  int32
	Span hir.Span

	prev, next *Instruction
}

func (i *Instruction) Next() *Instruction { return i.next }
func (i *Instruction) Prev() *Instruction { return i.prev }

// IsCompilerGenerated reports whether this instruction cannot be attributed
// to a single source expression (Src < 0).
func (i *Instruction) IsCompilerGenerated() bool { return i.Src < 0 }

func (i *Instruction) String() string {
	args := ""
	for idx, a := range i.Args {
		if idx > 0 {
			args += ", "
		}
		args += a.String()
	}
	if i.Op == OpCallBack {
		return fmt.Sprintf("let %s := callback(%v) [%s];", i.Dst, i.CB, args)
	}
	return fmt.Sprintf("let %s := %s [%s];", i.Dst, i.Op, args)
}

func (cb CallBackKind) String() string {
	if cb.IsDerivative {
		return fmt.Sprintf("ddx(%d)", cb.Unknown)
	}
	return "intrinsic"
}

// PhiSource is one (predecessor block, incoming local) pair of a Phi.
type PhiSource struct {
	Pred  BasicBlockID
	Local LocalID
}

// Phi merges the values of Dst's underlying quantity reaching this block
// along each predecessor; it must have exactly one source per predecessor,
// no more, no fewer.
type Phi struct {
	Dst     LocalID
	Sources []PhiSource
}

func (p *Phi) SourceFor(pred BasicBlockID) (LocalID, bool) {
	for _, s := range p.Sources {
		if s.Pred == pred {
			return s.Local, true
		}
	}
	return LocalInvalid, false
}
