// Package jacobian assembles the Jacobian matrix: for every current
// contribution the lowered CFG accumulates, the partial derivative of its
// residual with respect to every node-voltage unknown, stamped into the
// two affected KCL rows (hi and lo) with ground rows elided.
package jacobian

import (
	"github.com/pkg/errors"

	"github.com/erusyd/openvaf-core/internal/autodiff"
	"github.com/erusyd/openvaf-core/internal/diagnostics"
	"github.com/erusyd/openvaf-core/internal/hir"
	"github.com/erusyd/openvaf-core/internal/ssa"
)

// Key addresses one Jacobian entry: a KCL row (a circuit node) and a
// column (also a circuit node). A two-terminal voltage unknown V(hi,lo)
// contributes to two separate columns, hi and lo, with opposite sign; Key
// names the column by the node, not by the ssa.ParamID the unknown came
// from, so that decomposition is visible directly in the map's keys.
type Key struct {
	Row hir.NodeID
	Col hir.NodeID
}

// Matrix is the sparse set of non-zero Jacobian entries produced by
// Assemble.
type Matrix struct {
	Entries map[Key]ssa.Operand
}

func (m *Matrix) Get(row, col hir.NodeID) (ssa.Operand, bool) {
	v, ok := m.Entries[Key{Row: row, Col: col}]
	return v, ok
}

type rowInfo struct {
	hi, lo   hir.NodeID
	hasLo    bool
	residual ssa.LocalID
}

// Assemble stamps cfg's current-contribution outputs into a sparse Jacobian
// against every node-voltage parameter cfg references. A voltage
// contribution (BranchVoltage/ImplicitBranchVoltage) is diagnosed as
// unsupported rather than stamped, and Assemble continues past it so the
// sink collects every such occurrence in one pass.
//
// Every entry Assemble creates is wrapped in an OpOptBarrier instruction,
// which an evaluator treats as not-a-constant, so that any constant-folding
// pass run after Assemble (internal/ccp's rewrite pass, most commonly one
// meant to finish reducing autodiff's chain-rule output) cannot collapse an
// entry out from under the matrix before it has had its final chance to
// simplify. Call the returned Matrix's Finalize once that pass has reached
// its own fixed point: only then is it safe to strip the barriers back to
// plain copies and drop whatever entries folded all the way to zero.
func Assemble(cfg *ssa.CFG, m *hir.Module, sink *diagnostics.Sink) (*Matrix, error) {
	a := &assembler{cfg: cfg, entries: make(map[Key]ssa.Operand)}

	var rows []rowInfo
	for k, local := range cfg.Outputs {
		if k.Voltage {
			sink.Error(hir.Span{}, "voltage contribution to %s cannot be stamped into the Jacobian (not yet supported)", k)
			continue
		}
		hi, lo, hasLo := rowTopology(m, k)
		rows = append(rows, rowInfo{hi: hi, lo: lo, hasLo: hasLo, residual: local})
	}

	var cols []ssa.ParamID
	for i, p := range cfg.Params {
		if p.Tag == ssa.ParamVoltage {
			cols = append(cols, ssa.ParamID(i))
		}
	}

	reqs := make([]autodiff.Request, 0, len(rows)*len(cols))
	for _, r := range rows {
		for _, c := range cols {
			reqs = append(reqs, autodiff.Request{Value: r.residual, Unknown: c})
		}
	}

	derivs, err := autodiff.Differentiate(cfg, sink, reqs)
	if err != nil {
		return nil, errors.Wrap(err, "jacobian")
	}

	// Each Voltage{hi:ch,lo:cl} column parameter decomposes into up to two
	// node-keyed columns: +ddx at ch (and, if the unknown has a lo channel,
	// -ddx at cl), mirrored with the opposite signs for the row's lo node.
	for _, r := range rows {
		hiGnd := m.NodeIsGnd(r.hi)
		loGnd := !r.hasLo || m.NodeIsGnd(r.lo)

		for _, c := range cols {
			ddx := derivs[autodiff.Request{Value: r.residual, Unknown: c}]
			if isLiteralZero(ddx) {
				continue
			}
			ch, cl, hasCl := cfg.Params[c].Hi, cfg.Params[c].Lo, cfg.Params[c].HasLo

			if !hiGnd {
				a.addEntry(r.hi, ch, ddx, false)
				if hasCl {
					a.addEntry(r.hi, cl, ddx, true)
				}
			}
			if r.hasLo && !loGnd {
				a.addEntry(r.lo, ch, ddx, true)
				if hasCl {
					a.addEntry(r.lo, cl, ddx, false)
				}
			}
		}
	}

	return &Matrix{Entries: a.entries}, nil
}

// Finalize converts every OpOptBarrier instruction in cfg back to a plain
// OpCopy and drops any entry that has folded all the way to a literal zero
// (e.g. two opposite-signed contributions from different branches that
// happened to cancel exactly). Call this after the CCP pass that runs
// following Assemble has reached its own fixed point; finalizing any
// earlier lets a later fold reach a zero this pass would have missed.
func (m *Matrix) Finalize(cfg *ssa.CFG) {
	for key, val := range m.Entries {
		// An entry is the Local of its barrier (or of a later add/sub), so
		// look through single-operand copies and barriers to the value the
		// CCP pass left behind.
		for val.Kind == ssa.OperandLocal {
			instr := cfg.Instr(val.Local)
			if (instr.Op != ssa.OpCopy && instr.Op != ssa.OpOptBarrier) || len(instr.Args) != 1 {
				break
			}
			val = instr.Args[0]
		}
		if isLiteralZero(val) {
			delete(m.Entries, key)
		}
	}
	stripBarriers(cfg)
}

// rowTopology decodes a current-contribution PlaceKind into the (hi, lo)
// node pair its value is stamped against. A PortFlow branch can only ever
// be read, never contributed to as a row: well-formed HIR (and
// internal/lower, which never lowers a contribution into a PortFlow
// output) rules this out before it reaches here, so it is a BUG, not a
// diagnostic.
func rowTopology(m *hir.Module, k ssa.PlaceKind) (hi, lo hir.NodeID, hasLo bool) {
	if k.Implicit {
		return k.Hi, k.Lo, true
	}
	br := m.Branches[k.Branch]
	if br.Kind.IsPortFlow() {
		panic("BUG: port-flow branch used as a Jacobian row")
	}
	hi, lo, hasLo, ok := br.Kind.HiLo()
	if !ok {
		panic("BUG: unreachable branch kind for a current contribution")
	}
	return hi, lo, hasLo
}

func isLiteralZero(o ssa.Operand) bool {
	return o.Kind == ssa.OperandConst && o.Const.Type == hir.TypeReal && o.Const.Real == 0
}

type assembler struct {
	cfg     *ssa.CFG
	entries map[Key]ssa.Operand
}

// addEntry folds val (negated first, if negate) into the (row, col) entry,
// creating it under an opt barrier if this is the first contributor, or
// combining it with the existing value via a plain add/sub otherwise.
func (a *assembler) addEntry(row, col hir.NodeID, val ssa.Operand, negate bool) {
	key := Key{Row: row, Col: col}
	if existing, ok := a.entries[key]; ok {
		op := ssa.OpAdd
		if negate {
			op = ssa.OpSub
		}
		a.entries[key] = ssa.LocalOperand(a.cfg.Append(a.cfg.Exit, op, -1, hir.Span{}, existing, val))
		return
	}
	if negate {
		val = a.negate(val)
	}
	a.entries[key] = ssa.LocalOperand(a.cfg.Append(a.cfg.Exit, ssa.OpOptBarrier, -1, hir.Span{}, val))
}

func (a *assembler) negate(o ssa.Operand) ssa.Operand {
	if o.Kind == ssa.OperandConst && o.Const.Type == hir.TypeReal {
		return ssa.ConstOperand(hir.RealConst(-o.Const.Real))
	}
	return ssa.LocalOperand(a.cfg.Append(a.cfg.Exit, ssa.OpNeg, -1, hir.Span{}, o))
}

// stripBarriers converts every OpOptBarrier instruction in cfg back to a
// plain OpCopy once the matrix is fully assembled.
func stripBarriers(cfg *ssa.CFG) {
	cfg.Blocks(func(_ ssa.BasicBlockID, blk *ssa.BasicBlock) {
		blk.Instructions(func(instr *ssa.Instruction) {
			if instr.Op == ssa.OpOptBarrier {
				instr.Op = ssa.OpCopy
			}
		})
	})
}
