package hir

// StmtID is a dense index into Module.Stmts.
type StmtID uint32

// StmtKind discriminates the flattened Stmt node.
type StmtKind uint8

const (
	StmtInvalid StmtKind = iota
	StmtAssign
	StmtContribute
	StmtIf
	StmtWhile
	StmtBlock
)

// OutputKind names the branch quantity a contribution targets: a branch's
// voltage or current, addressed either by BranchID or, for contributions to
// an implicit branch, by a direct (Hi, Lo) node pair. It is the HIR-level
// counterpart of ssa.PlaceKind's output variants; internal/lower maps one to
// the other 1:1.
type OutputKind struct {
	Voltage  bool // true: potential contribution; false: flow contribution.
	Branch   BranchID
	Implicit bool // true: Branch is not meaningful, Hi/Lo are used instead.
	Hi, Lo   NodeID
}

// Stmt is a single node of the analog block's statement tree.
type Stmt struct {
	Kind StmtKind
	Span Span

	// StmtAssign
	Var  VariableID
	Expr ExprID

	// StmtContribute
	Output OutputKind

	// StmtIf / StmtWhile
	Cond       ExprID
	Then, Else []StmtID

	// StmtBlock
	Body []StmtID
}
