package ssa

import (
	"fmt"

	"github.com/erusyd/openvaf-core/internal/coreutil"
	"github.com/erusyd/openvaf-core/internal/hir"
)

// PlaceInfo is debug metadata for a PlaceID.
type PlaceInfo struct {
	Name string
}

// CFG is a complete, lowered analog block: its basic blocks, the places and
// parameters it references, and the residual output values internal/lower
// populates once the (single) output accumulator for each PlaceKind reaches
// its final value at the exit block.
type CFG struct {
	blockPool coreutil.Pool[BasicBlock]
	instrPool coreutil.Pool[Instruction]

	blocks []*BasicBlock

	Places []PlaceInfo
	Params []ParamKind

	Entry BasicBlockID
	Exit  BasicBlockID

	// Outputs maps each module output to the Local holding its final,
	// fully-accumulated value at Exit.
	Outputs map[PlaceKind]LocalID
}

func NewCFG() *CFG {
	return &CFG{Outputs: make(map[PlaceKind]LocalID)}
}

func (c *CFG) Block(id BasicBlockID) *BasicBlock { return c.blocks[id] }
func (c *CFG) NumBlocks() int                    { return len(c.blocks) }

// NumLocals returns one past the highest LocalID ever allocated for this
// CFG, the size a dense per-local lattice array needs.
func (c *CFG) NumLocals() int { return c.instrPool.Allocated() }

// Instr returns the instruction that defines local (its Dst.Local == local).
func (c *CFG) Instr(local LocalID) *Instruction { return c.instrPool.View(int(local)) }

func (c *CFG) Blocks(f func(BasicBlockID, *BasicBlock)) {
	for i, b := range c.blocks {
		f(BasicBlockID(i), b)
	}
}

func (c *CFG) AddPlace(name string) PlaceID {
	c.Places = append(c.Places, PlaceInfo{Name: name})
	return PlaceID(len(c.Places) - 1)
}

func (c *CFG) AddParam(kind ParamKind) ParamID {
	for i, p := range c.Params {
		if p.Equal(kind) {
			return ParamID(i)
		}
	}
	c.Params = append(c.Params, kind)
	return ParamID(len(c.Params) - 1)
}

func (c *CFG) newBlock() BasicBlockID {
	id := BasicBlockID(len(c.blocks))
	blk := c.blockPool.Allocate()
	blk.id = id
	blk.cfg = c
	c.blocks = append(c.blocks, blk)
	return id
}

func (c *CFG) newInstr() (*Instruction, LocalID) {
	instr := c.instrPool.Allocate()
	return instr, LocalID(c.instrPool.Allocated() - 1)
}

// NewLocal reserves a fresh LocalID with no instruction attached, for passes
// (internal/autodiff's derivative phis) that run directly over an
// already-built CFG instead of through a Builder.
func (c *CFG) NewLocal() LocalID {
	instr, id := c.newInstr()
	*instr = Instruction{Op: OpInvalid}
	return id
}

// Append adds a new instruction to the end of block, returning its Dst
// local. internal/autodiff uses this to materialize a constant derivative
// operand into a phi source, where "end of block" is always safe since the
// value depends on nothing already in the block.
func (c *CFG) Append(block BasicBlockID, op Opcode, src int32, span hir.Span, args ...Operand) LocalID {
	instr, id := c.newInstr()
	*instr = Instruction{Op: op, Dst: LocalDest(id), Args: args, Src: src, Span: span}
	c.blocks[block].InsertInstruction(instr)
	return id
}

// EmitAfter inserts a new instruction immediately after an existing one,
// returning its Dst local. internal/autodiff places a value's derivative
// instruction right after the instruction it differentiates.
func (c *CFG) EmitAfter(block BasicBlockID, after *Instruction, op Opcode, src int32, span hir.Span, args ...Operand) LocalID {
	instr, id := c.newInstr()
	*instr = Instruction{Op: op, Dst: LocalDest(id), Args: args, Src: src, Span: span}
	c.blocks[block].InsertInstructionAfter(after, instr)
	return id
}

// ReversePostOrder returns the block ids reachable from Entry in reverse
// postorder, the traversal a forward dataflow analysis uses for its
// worklist priority.
func (c *CFG) ReversePostOrder() []BasicBlockID {
	post := c.postorder()
	rpo := make([]BasicBlockID, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

// Postorder returns the block ids reachable from Entry in postorder, the
// traversal a backward dataflow analysis uses for its worklist priority.
func (c *CFG) Postorder() []BasicBlockID { return c.postorder() }

func (c *CFG) postorder() []BasicBlockID {
	visited := make([]bool, len(c.blocks))
	var order []BasicBlockID
	var walk func(BasicBlockID)
	walk = func(id BasicBlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, s := range c.blocks[id].Term.Successors() {
			walk(s)
		}
		order = append(order, id)
	}
	walk(c.Entry)
	return order
}

// Dominators computes each reachable block's immediate dominator using the
// Cooper/Harvey/Kennedy "A Simple, Fast Dominance Algorithm" iterative
// fixed-point.
type Dominators struct {
	idom []BasicBlockID
	rpo  []BasicBlockID
	pos  map[BasicBlockID]int
}

func (c *CFG) ComputeDominators() *Dominators {
	rpo := c.ReversePostOrder()
	pos := make(map[BasicBlockID]int, len(rpo))
	for i, b := range rpo {
		pos[b] = i
	}

	idom := make([]BasicBlockID, len(c.blocks))
	for i := range idom {
		idom[i] = BasicBlockInvalid
	}
	idom[c.Entry] = c.Entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == c.Entry {
				continue
			}
			var newIdom BasicBlockID = BasicBlockInvalid
			for _, p := range c.blocks[b].Preds {
				if idom[p] == BasicBlockInvalid {
					continue
				}
				if newIdom == BasicBlockInvalid {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, pos, newIdom, p)
			}
			if newIdom != BasicBlockInvalid && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return &Dominators{idom: idom, rpo: rpo, pos: pos}
}

func intersect(idom []BasicBlockID, pos map[BasicBlockID]int, a, b BasicBlockID) BasicBlockID {
	for a != b {
		for pos[a] > pos[b] {
			a = idom[a]
		}
		for pos[b] > pos[a] {
			b = idom[b]
		}
	}
	return a
}

// Dominates reports whether a dominates b (every path from Entry to b
// passes through a), including a == b.
func (d *Dominators) Dominates(a, b BasicBlockID) bool {
	if _, ok := d.pos[b]; !ok {
		return a == b // b unreachable: vacuously not dominated by anything but itself.
	}
	for b != a {
		if d.idom[b] == BasicBlockInvalid {
			return false
		}
		if d.idom[b] == b {
			return false
		}
		b = d.idom[b]
	}
	return true
}

func (d *Dominators) Idom(b BasicBlockID) (BasicBlockID, bool) {
	id := d.idom[b]
	return id, id != BasicBlockInvalid
}

// Validate checks the CFG's structural invariants: every local use is
// dominated by its definition, and every phi has exactly one source per
// predecessor.
func (c *CFG) Validate() error {
	dom := c.ComputeDominators()
	defBlock := make(map[LocalID]BasicBlockID)

	var err error
	c.Blocks(func(id BasicBlockID, b *BasicBlock) {
		for _, phi := range b.Phis {
			defBlock[phi.Dst] = id
			seen := make(map[BasicBlockID]bool)
			for _, s := range phi.Sources {
				if seen[s.Pred] {
					err = fmt.Errorf("BUG: bb%d: phi %s has duplicate source for pred bb%d", id, phi.Dst, s.Pred)
				}
				seen[s.Pred] = true
			}
			if len(phi.Sources) != len(b.Preds) {
				err = fmt.Errorf("BUG: bb%d: phi %s has %d sources, want %d (one per predecessor)", id, phi.Dst, len(phi.Sources), len(b.Preds))
			}
		}
		b.Instructions(func(instr *Instruction) {
			if instr.Dst.Kind == DestLocal {
				defBlock[instr.Dst.Local] = id
			}
		})
	})

	c.Blocks(func(id BasicBlockID, b *BasicBlock) {
		checkOperand := func(o Operand) {
			if o.Kind != OperandLocal {
				return
			}
			defB, ok := defBlock[o.Local]
			if !ok {
				err = fmt.Errorf("BUG: bb%d: use of %s has no definition", id, o.Local)
				return
			}
			if !dom.Dominates(defB, id) {
				err = fmt.Errorf("BUG: bb%d: use of %s is not dominated by its definition in bb%d", id, o.Local, defB)
			}
		}
		b.Instructions(func(instr *Instruction) {
			for _, a := range instr.Args {
				checkOperand(a)
			}
		})
		if b.Term.Kind == TermSplit {
			checkOperand(b.Term.Cond)
		}
	})
	return err
}
