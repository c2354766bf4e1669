package ssa

import (
	"fmt"

	"github.com/erusyd/openvaf-core/internal/hir"
)

// PlaceKind names a module output: a branch quantity a contribution
// statement accumulates into. It is deliberately a distinct type from
// PlaceID, which names an ordinary mutable Verilog-A variable's location.
type PlaceKind struct {
	Voltage  bool
	Branch   hir.BranchID
	Implicit bool
	Hi, Lo   hir.NodeID
}

func BranchVoltage(b hir.BranchID) PlaceKind { return PlaceKind{Voltage: true, Branch: b} }
func BranchCurrent(b hir.BranchID) PlaceKind { return PlaceKind{Voltage: false, Branch: b} }
func ImplicitBranchVoltage(hi, lo hir.NodeID) PlaceKind {
	return PlaceKind{Voltage: true, Implicit: true, Hi: hi, Lo: lo}
}
func ImplicitBranchCurrent(hi, lo hir.NodeID) PlaceKind {
	return PlaceKind{Voltage: false, Implicit: true, Hi: hi, Lo: lo}
}

func (k PlaceKind) String() string {
	kind := "I"
	if k.Voltage {
		kind = "V"
	}
	if k.Implicit {
		return fmt.Sprintf("%s(%d,%d)", kind, k.Hi, k.Lo)
	}
	return fmt.Sprintf("%s(br%d)", kind, k.Branch)
}

func (k PlaceKind) Equal(o PlaceKind) bool {
	return k.Voltage == o.Voltage && k.Branch == o.Branch && k.Implicit == o.Implicit && k.Hi == o.Hi && k.Lo == o.Lo
}
