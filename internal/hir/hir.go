// Package hir is the read-only, type-checked, scope-resolved high-level IR
// that internal/lower consumes. Name resolution and type checking are
// external collaborators; a hir.Module is always assumed to be well-formed
// by the time it reaches internal/lower, which is total on well-formed
// input.
//
// Every cross-referencing id here is a dense 32-bit index into a Module's
// arena slices, not a pointer. This keeps a Module cheap to clone/compare
// and free of lifetime cycles.
package hir

import "fmt"

// NodeID identifies an electrical net (a node of the circuit).
type NodeID uint32

// GroundNodeID is the reserved id of the implicit ground node. Every module
// has exactly one ground net; it is never allocated a NodeID the normal way.
const GroundNodeID NodeID = 0

// BranchID identifies a branch: a path across (or through) which potential
// (voltage) or flow (current) is defined.
type BranchID uint32

// VariableID identifies an analog block-local mutable variable.
type VariableID uint32

// ParameterID identifies a user-facing module parameter (a `parameter real
// ...` declaration), not a simulator-supplied input. Contrast with
// ssa.ParamKind, which models the latter.
type ParameterID uint32

// DisciplineID identifies a discipline (e.g. electrical), which constrains
// which accesses (potential/flow) are legal on a branch.
type DisciplineID uint32

// FunctionID identifies an analog function. No expression kind calls a
// function, so internal/lower never lowers one.
type FunctionID uint32

// Discipline describes the physical domain of a net (e.g. electrical,
// thermal); branches between nodes of different disciplines are rejected
// before lowering runs.
type Discipline struct {
	Name string
}

// Access distinguishes the two observables of a discipline: V(...) reads
// potential, I(...) reads flow.
type Access uint8

const (
	AccessPotential Access = iota
	AccessFlow
)

func (a Access) String() string {
	if a == AccessPotential {
		return "V"
	}
	return "I"
}

// BranchKind is a branch's node topology: either an explicit node pair, a
// node-to-ground pair, or a port-flow branch, which can only ever be read,
// never stamped as a Jacobian row.
type BranchKind struct {
	tag     branchTag
	hi, lo  NodeID
	hasLo   bool
	port    NodeID
}

type branchTag uint8

const (
	branchNodeGnd branchTag = iota
	branchNodes
	branchPortFlow
)

// NodeGnd constructs a branch between node and the implicit ground node.
func NodeGnd(node NodeID) BranchKind { return BranchKind{tag: branchNodeGnd, hi: node} }

// Nodes constructs a branch between two explicit nodes.
func Nodes(hi, lo NodeID) BranchKind { return BranchKind{tag: branchNodes, hi: hi, lo: lo, hasLo: true} }

// PortFlow constructs a port-flow branch (I(<port>) on a module port).
func PortFlow(node NodeID) BranchKind { return BranchKind{tag: branchPortFlow, port: node} }

// IsPortFlow reports whether this is a PortFlow branch.
func (b BranchKind) IsPortFlow() bool { return b.tag == branchPortFlow }

// HiLo decomposes the branch into (hi, lo, hasLo, ok). ok is false for PortFlow
// branches, which have no (hi, lo) decomposition.
func (b BranchKind) HiLo() (hi NodeID, lo NodeID, hasLo bool, ok bool) {
	switch b.tag {
	case branchNodeGnd:
		return b.hi, GroundNodeID, false, true
	case branchNodes:
		return b.hi, b.lo, b.hasLo, true
	default:
		return 0, 0, false, false
	}
}

func (b BranchKind) String() string {
	switch b.tag {
	case branchNodeGnd:
		return fmt.Sprintf("(%d, gnd)", b.hi)
	case branchNodes:
		return fmt.Sprintf("(%d, %d)", b.hi, b.lo)
	default:
		return fmt.Sprintf("port(%d)", b.port)
	}
}

// Branch is an ordered pair of nodes (or one node and ground) across/through
// which potential or flow is defined.
type Branch struct {
	Kind       BranchKind
	Discipline DisciplineID
}

// Variable is a mutable, analog-block-local location (a Verilog-A `real`/
// `integer` variable). Lowered to an ssa.Place that the lowerer writes
// directly; its value at merge points is tracked by internal/ccp's place
// lattice, not by phi placement.
type Variable struct {
	Name string
	Type ValueType
}

// Parameter is a user-facing module parameter with a compile-time or
// instance-time default, e.g. `parameter real r = 1e3;`.
type Parameter struct {
	Name    string
	Type    ValueType
	Default Const
}

// ValueType is the scalar type system of Verilog-A analog expressions as
// seen by the mid-end: real, integer, bool, or string (string values never
// reach CFG arithmetic operators; they are rejected by HIR construction if
// used in a numeric context).
type ValueType uint8

const (
	TypeReal ValueType = iota
	TypeInteger
	TypeBool
	TypeString
)

func (t ValueType) String() string {
	switch t {
	case TypeReal:
		return "real"
	case TypeInteger:
		return "integer"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	default:
		return "invalid"
	}
}

// Const is a literal operand value, carried by both HIR expressions and SSA
// Const operands.
type Const struct {
	Type ValueType
	Real float64
	Int  int64
	Bool bool
	Str  string
}

func RealConst(v float64) Const { return Const{Type: TypeReal, Real: v} }
func IntConst(v int64) Const    { return Const{Type: TypeInteger, Int: v} }
func BoolConst(v bool) Const    { return Const{Type: TypeBool, Bool: v} }

// AsFloat64 returns the const's value coerced to float64, for arithmetic
// evaluation over a uniform numeric representation (booleans are 0.0/1.0).
func (c Const) AsFloat64() float64 {
	switch c.Type {
	case TypeReal:
		return c.Real
	case TypeInteger:
		return float64(c.Int)
	case TypeBool:
		if c.Bool {
			return 1
		}
		return 0
	default:
		panic("BUG: string const used in numeric context, should have been rejected during HIR construction")
	}
}

func (c Const) AsBool() bool {
	switch c.Type {
	case TypeBool:
		return c.Bool
	case TypeReal:
		return c.Real != 0
	case TypeInteger:
		return c.Int != 0
	default:
		panic("BUG: string const used in boolean context, should have been rejected during HIR construction")
	}
}

func (c Const) String() string {
	switch c.Type {
	case TypeReal:
		return fmt.Sprintf("%g", c.Real)
	case TypeInteger:
		return fmt.Sprintf("%d", c.Int)
	case TypeBool:
		return fmt.Sprintf("%t", c.Bool)
	default:
		return fmt.Sprintf("%q", c.Str)
	}
}
