// Package ssa is the mid-end's own intermediate representation: the
// control-flow graph of basic blocks, SSA locals, mutable places, and
// simulator-supplied parameters. Every other mid-end package (dataflow, ccp,
// autodiff, jacobian, lower) is a client that reads and rewrites a *CFG
// built by this package.
package ssa

import (
	"fmt"

	"github.com/erusyd/openvaf-core/internal/hir"
)

// LocalID identifies a single-assignment SSA temporary. Every use of a
// LocalID is dominated by its unique definition.
type LocalID uint32

// LocalInvalid is the sentinel for "no local".
const LocalInvalid LocalID = 0xffff_ffff

func (l LocalID) Valid() bool  { return l != LocalInvalid }
func (l LocalID) String() string {
	if !l.Valid() {
		return "_invalid"
	}
	return fmt.Sprintf("_%d", uint32(l))
}

// PlaceID identifies a named mutable location: an ordinary Verilog-A
// variable. Unlike LocalID, a PlaceID may be written more than once; its
// cross-block merging happens through the dataflow lattice state rather
// than phi-over-locals.
type PlaceID uint32

func (p PlaceID) String() string { return fmt.Sprintf("place%d", uint32(p)) }

// ParamID identifies a CFG-level parameter: a simulator-supplied unknown
// (a node-pair voltage, a branch current, or temperature).
type ParamID uint32

func (p ParamID) String() string { return fmt.Sprintf("param%d", uint32(p)) }

// ParamKindTag discriminates ParamKind.
type ParamKindTag uint8

const (
	ParamVoltage ParamKindTag = iota
	ParamCurrent
	ParamTemperature
	// ParamModuleParameter models a user-facing `parameter real ...`
	// declaration (hir.ParameterID) referenced from an analog expression, as
	// opposed to a simulator-supplied unknown. It carries no first-order
	// unknown id of its own, since the Jacobian only ever stamps Voltage
	// params, but it is still a legitimate KnownParams key: a caller can fix
	// a module parameter to a compile-time constant the same way it fixes
	// any other input.
	ParamModuleParameter
)

// ParamKind is a CFG-level parameter: a simulator-supplied input such as a
// voltage across a pair of nodes, a branch current, or temperature.
type ParamKind struct {
	Tag       ParamKindTag
	Hi, Lo    hir.NodeID
	HasLo     bool
	Branch    hir.BranchID
	Parameter hir.ParameterID
}

func VoltageParam(hi, lo hir.NodeID, hasLo bool) ParamKind {
	return ParamKind{Tag: ParamVoltage, Hi: hi, Lo: lo, HasLo: hasLo}
}

func CurrentParam(branch hir.BranchID) ParamKind {
	return ParamKind{Tag: ParamCurrent, Branch: branch}
}

func TemperatureParam() ParamKind { return ParamKind{Tag: ParamTemperature} }

func ModuleParameterParam(p hir.ParameterID) ParamKind {
	return ParamKind{Tag: ParamModuleParameter, Parameter: p}
}

func (k ParamKind) String() string {
	switch k.Tag {
	case ParamVoltage:
		if k.HasLo {
			return fmt.Sprintf("V(%d,%d)", k.Hi, k.Lo)
		}
		return fmt.Sprintf("V(%d,gnd)", k.Hi)
	case ParamCurrent:
		return fmt.Sprintf("I(br%d)", k.Branch)
	case ParamModuleParameter:
		return fmt.Sprintf("param(%d)", k.Parameter)
	default:
		return "$temperature"
	}
}

func (k ParamKind) Equal(o ParamKind) bool {
	return k.Tag == o.Tag && k.Hi == o.Hi && k.Lo == o.Lo && k.HasLo == o.HasLo &&
		k.Branch == o.Branch && k.Parameter == o.Parameter
}

// CallBackKind enumerates the compiler intrinsics invocable through an
// OperandCallBack operand. DerivativeQuery models the Verilog-A `ddx(expr,
// V(...))` builtin; it is resolved by internal/autodiff.
type CallBackKind struct {
	IsDerivative bool
	Unknown      ParamID // valid iff IsDerivative
}

func DerivativeQuery(of ParamID) CallBackKind { return CallBackKind{IsDerivative: true, Unknown: of} }

// OperandKind discriminates Operand: a literal constant, an SSA local, a
// mutable place, a CFG parameter, or a compiler call-back.
type OperandKind uint8

const (
	OperandConst OperandKind = iota
	OperandLocal
	OperandPlace
	OperandParam
	OperandCallBack
)

// Operand is one argument (or the condition of a Split) to an instruction.
type Operand struct {
	Kind     OperandKind
	Const    hir.Const
	Local    LocalID
	Place    PlaceID
	Param    ParamID
	CB       CallBackKind
	CBArgs   []Operand
}

func ConstOperand(c hir.Const) Operand    { return Operand{Kind: OperandConst, Const: c} }
func LocalOperand(l LocalID) Operand      { return Operand{Kind: OperandLocal, Local: l} }
func PlaceOperand(p PlaceID) Operand      { return Operand{Kind: OperandPlace, Place: p} }
func ParamOperand(p ParamID) Operand      { return Operand{Kind: OperandParam, Param: p} }
func CallBackOperand(cb CallBackKind, args ...Operand) Operand {
	return Operand{Kind: OperandCallBack, CB: cb, CBArgs: args}
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandConst:
		return o.Const.String()
	case OperandLocal:
		return o.Local.String()
	case OperandPlace:
		return o.Place.String()
	case OperandParam:
		return o.Param.String()
	default:
		return "callback(...)"
	}
}

// DestKind discriminates Dest: a destination is either an SSA local, a
// mutable place, or ignored entirely.
type DestKind uint8

const (
	DestLocal DestKind = iota
	DestPlace
	DestIgnore
)

// Dest is an instruction's destination.
type Dest struct {
	Kind  DestKind
	Local LocalID
	Place PlaceID
}

func LocalDest(l LocalID) Dest { return Dest{Kind: DestLocal, Local: l} }
func PlaceDest(p PlaceID) Dest { return Dest{Kind: DestPlace, Place: p} }
func IgnoreDest() Dest         { return Dest{Kind: DestIgnore} }

func (d Dest) String() string {
	switch d.Kind {
	case DestLocal:
		return d.Local.String()
	case DestPlace:
		return d.Place.String()
	default:
		return "_"
	}
}
