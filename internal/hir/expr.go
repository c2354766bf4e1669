package hir

// Span is the source location a diagnostic or a source tag is attributed
// to. The lexer/parser are external collaborators; the mid-end only ever
// threads Span values it was handed, it never constructs them from text.
type Span struct {
	File        string
	Line, Col   int
}

func (s Span) String() string {
	if s.File == "" {
		return "<generated>"
	}
	return s.File + ":" + itoa(s.Line) + ":" + itoa(s.Col)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ExprID is a dense index into Module.Exprs.
type ExprID uint32

// ExprKind discriminates the flattened Expr node below. Verilog-A analog
// expressions are small in number of shapes; a flattened tagged struct
// (rather than an interface per kind) keeps the arena contiguous and cheap
// to walk.
type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprConstLit
	ExprVarRef
	ExprParamRef
	ExprBranchAccess
	ExprBuiltinTemp
	ExprUnary
	ExprBinary
	ExprTernary
)

// UnaryOp enumerates the unary operators lowering understands.
type UnaryOp uint8

const (
	UnaryNeg UnaryOp = iota
	UnaryNot
)

// BinaryOp enumerates the binary operators lowering understands: the
// arithmetic operators the automatic differentiator has rules for, plus the
// comparison operators constant folding needs.
type BinaryOp uint8

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryPow
	BinaryLe
	BinaryLt
	BinaryGe
	BinaryGt
	BinaryEq
	BinaryNe
)

// TranscendentalOp enumerates the unary transcendental functions the
// automatic differentiator has rules for (sin, cos, exp, ln, sqrt); pow is
// binary and modeled via BinaryPow.
type TranscendentalOp uint8

const (
	TransSin TranscendentalOp = iota
	TransCos
	TransExp
	TransLn
	TransSqrt
)

// Expr is a single node of an analog expression tree. Only the fields
// relevant to Kind are meaningful, following the same flattened-instruction
// convention internal/ssa uses for its own Instruction type.
type Expr struct {
	Kind ExprKind
	Span Span

	Const     Const
	Var       VariableID
	Param     ParameterID
	Branch    BranchID
	Access    Access
	UnaryOp   UnaryOp
	BinaryOp  BinaryOp
	Trans     TranscendentalOp
	IsTrans   bool
	Lhs, Rhs  ExprID
	Cond, Then, Else ExprID
}
