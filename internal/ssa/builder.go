package ssa

import (
	"github.com/erusyd/openvaf-core/internal/hir"
)

// Builder assembles a CFG one instruction at a time. It additionally
// resolves reads of output accumulators (PlaceKind) across not-yet-sealed
// blocks using the incomplete-CFG SSA construction algorithm of Braun,
// Buchwald, Hack, Leißa, Mehofer, Zwinkau ("Simple and Efficient
// Construction of Static Single Assignment Form"), applied here to
// PlaceKind-keyed output accumulators rather than general local variables.
type Builder struct {
	cfg *CFG

	current BasicBlockID

	outputVarID   map[PlaceKind]int
	outputVars    []PlaceKind
	currentDef    [][]LocalID            // [outputVarID][block] -> local, LocalInvalid if undefined in that block.
	incompletePhi []map[int]LocalID      // [block] -> {outputVarID: placeholder phi local}, only for unsealed blocks.
}

func NewBuilder() *Builder {
	cfg := NewCFG()
	return &Builder{
		cfg:         cfg,
		outputVarID: make(map[PlaceKind]int),
	}
}

func (b *Builder) CFG() *CFG { return b.cfg }

func (b *Builder) growBlockBookkeeping() {
	for len(b.currentDef) < len(b.cfg.blocks) {
		b.currentDef = append(b.currentDef, nil)
		b.incompletePhi = append(b.incompletePhi, nil)
	}
}

// CreateBlock allocates a new, initially unsealed block with no terminator.
func (b *Builder) CreateBlock() BasicBlockID {
	id := b.cfg.newBlock()
	b.growBlockBookkeeping()
	return id
}

// SetCurrentBlock directs subsequent Emit calls to append to block.
func (b *Builder) SetCurrentBlock(block BasicBlockID) { b.current = block }

func (b *Builder) CurrentBlock() BasicBlockID { return b.current }

// SetEntry designates the CFG's unique entry block.
func (b *Builder) SetEntry(block BasicBlockID) { b.cfg.Entry = block }

// AddEdge records that pred is a predecessor of succ. internal/lower calls
// this whenever it wires a Terminator, before the successor is (maybe)
// sealed.
func (b *Builder) AddEdge(pred, succ BasicBlockID) {
	b.cfg.blocks[succ].addPred(pred)
}

// SetTerminator installs block's terminator and wires predecessor edges for
// its successors in Terminator.Successors() order (Then before Else),
// matching the convention Phi.Sources relies on.
func (b *Builder) SetTerminator(block BasicBlockID, term Terminator) {
	b.cfg.blocks[block].Term = term
	for _, s := range term.Successors() {
		b.AddEdge(block, s)
	}
}

// NewLocal reserves a fresh LocalID without emitting an instruction (used
// for phi destinations).
func (b *Builder) NewLocal() LocalID {
	instr, id := b.cfg.newInstr()
	*instr = Instruction{Op: OpInvalid}
	return id
}

// AddPhi installs a manually-constructed phi at the entry of block, for
// callers (internal/lower's ternary-expression lowering) that need a merge
// point over expression values rather than over an output accumulator's
// running sum (which goes through DefineOutput/ReadOutput's incomplete-phi
// placement instead). sources must list exactly one entry per predecessor of
// block, in predecessor order.
func (b *Builder) AddPhi(block BasicBlockID, sources ...PhiSource) LocalID {
	dst := b.NewLocal()
	b.cfg.blocks[block].Phis = append(b.cfg.blocks[block].Phis, Phi{Dst: dst, Sources: sources})
	return dst
}

// Emit appends instr (with a freshly allocated Dst local) to the current
// block and returns the local.
func (b *Builder) Emit(op Opcode, src int32, span hir.Span, args ...Operand) LocalID {
	instr, id := b.cfg.newInstr()
	*instr = Instruction{Op: op, Dst: LocalDest(id), Args: args, Src: src, Span: span}
	b.cfg.blocks[b.current].InsertInstruction(instr)
	return id
}

// EmitCallBack appends a CallBack invocation instruction.
func (b *Builder) EmitCallBack(cb CallBackKind, src int32, span hir.Span, args ...Operand) LocalID {
	instr, id := b.cfg.newInstr()
	*instr = Instruction{Op: OpCallBack, Dst: LocalDest(id), CB: cb, Args: args, Src: src, Span: span}
	b.cfg.blocks[b.current].InsertInstruction(instr)
	return id
}

// EmitPlaceWrite appends an instruction writing operand rhs into place, with
// no result Local.
func (b *Builder) EmitPlaceWrite(place PlaceID, src int32, span hir.Span, rhs Operand) {
	instr, _ := b.cfg.newInstr()
	*instr = Instruction{Op: OpCopy, Dst: PlaceDest(place), Args: []Operand{rhs}, Src: src, Span: span}
	b.cfg.blocks[b.current].InsertInstruction(instr)
}

// OutputKinds calls f once per distinct output PlaceKind this CFG
// accumulates a contribution into, in first-use order. internal/lower calls
// this once at the end of a lowering pass to resolve each output's final
// value at the exit block into CFG.Outputs.
func (b *Builder) OutputKinds(f func(PlaceKind)) {
	for _, k := range b.outputVars {
		f(k)
	}
}

func (b *Builder) outputVar(kind PlaceKind) int {
	if id, ok := b.outputVarID[kind]; ok {
		return id
	}
	id := len(b.outputVars)
	b.outputVars = append(b.outputVars, kind)
	b.outputVarID[kind] = id
	for i := range b.currentDef {
		b.currentDef[i] = append(b.currentDef[i], LocalInvalid)
	}
	return id
}

// DefineOutput records that, within block, out's running value is now
// local. Used at every contribution site; the synthetic zero seed is placed
// by ReadOutput itself when it reaches a block with no predecessors.
func (b *Builder) DefineOutput(out PlaceKind, block BasicBlockID, local LocalID) {
	v := b.outputVar(out)
	b.growBlockBookkeeping()
	b.currentDef[block][v] = local
}

// ReadOutput resolves out's current value as of block, recursing through
// predecessors and inserting phis at merge points exactly as Braun et al.
// describe. Unsealed blocks get an incomplete (placeholder) phi that Seal
// later fills in.
func (b *Builder) ReadOutput(out PlaceKind, block BasicBlockID) LocalID {
	v := b.outputVar(out)
	b.growBlockBookkeeping()
	if local := b.currentDef[block][v]; local.Valid() {
		return local
	}
	return b.readOutputRecursive(v, block)
}

func (b *Builder) readOutputRecursive(v int, block BasicBlockID) LocalID {
	blk := b.cfg.blocks[block]
	var local LocalID

	if !blk.sealed {
		local = b.NewLocal()
		if b.incompletePhi[block] == nil {
			b.incompletePhi[block] = make(map[int]LocalID)
		}
		b.incompletePhi[block][v] = local
	} else if len(blk.Preds) == 1 {
		local = b.readOutputRecursiveFrom(v, blk.Preds[0])
	} else if len(blk.Preds) == 0 {
		// A block with no predecessors (the entry block, or a block nothing
		// branches to) and no definition: seed a zero
		// directly into block, not into whatever the builder's current
		// block happens to be, so downstream passes never observe an
		// invalid local or a dominance violation.
		local = b.cfg.Append(block, OpCopy, -1, hir.Span{}, ConstOperand(hir.RealConst(0)))
	} else {
		local = b.NewLocal()
		phi := Phi{Dst: local}
		blk.Phis = append(blk.Phis, phi)
		b.currentDef[block][v] = local
		b.addPhiOperands(v, block, local)
		return local
	}
	b.currentDef[block][v] = local
	return local
}

func (b *Builder) readOutputRecursiveFrom(v int, block BasicBlockID) LocalID {
	if local := b.currentDef[block][v]; local.Valid() {
		return local
	}
	return b.readOutputRecursive(v, block)
}

// addPhiOperands fills in phi's sources by reading v's value along every
// predecessor of block.
func (b *Builder) addPhiOperands(v int, block BasicBlockID, phiLocal LocalID) {
	blk := b.cfg.blocks[block]
	for _, pred := range blk.Preds {
		src := b.readOutputRecursiveFrom(v, pred)
		for i := range blk.Phis {
			if blk.Phis[i].Dst == phiLocal {
				blk.Phis[i].Sources = append(blk.Phis[i].Sources, PhiSource{Pred: pred, Local: src})
			}
		}
	}
}

// Seal marks block as having all of its predecessors known, resolving any
// incomplete phis placeholders created while it was open. Per Braun et al.
// this must run after the block's final predecessor edge has been added
// (for a loop header, after the back edge is wired).
func (b *Builder) Seal(block BasicBlockID) {
	blk := b.cfg.blocks[block]
	for v, phiLocal := range b.incompletePhi[block] {
		blk.Phis = append(blk.Phis, Phi{Dst: phiLocal})
		b.addPhiOperands(v, block, phiLocal)
	}
	b.incompletePhi[block] = nil
	blk.sealed = true
}
