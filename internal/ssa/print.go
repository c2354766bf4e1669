package ssa

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/erusyd/openvaf-core/internal/hir"
)

// Format renders cfg in a textual form resembling a disassembly listing:
//
//	bb0: let _0 := f64.+ [f64 3.141, f64 2];
//	     let _1 := f64.<= [_0, f64 10];
//	     if _1 { bb1 } else { bb2 }
//	bb1: goto bb3
//	bb2: goto bb3
//	bb3: end
//
// Parse is its inverse over the subset Format actually emits: arithmetic
// and comparison opcodes, Const/Local operands, Phi, Goto/Split/Return.
// Places, params and callbacks are rendered for human debugging but are not
// expected to round-trip.
func (c *CFG) Format() string {
	var b strings.Builder
	c.Blocks(func(id BasicBlockID, blk *BasicBlock) {
		fmt.Fprintf(&b, "bb%d:", id)
		first := true
		for _, phi := range blk.Phis {
			if !first {
				b.WriteString("\n    ")
			}
			fmt.Fprintf(&b, " let %s := phi [", phi.Dst)
			for i, s := range phi.Sources {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "bb%d: %s", s.Pred, s.Local)
			}
			b.WriteString("];")
			first = false
		}
		blk.Instructions(func(instr *Instruction) {
			if !first {
				b.WriteString("\n    ")
			}
			b.WriteString(" ")
			b.WriteString(formatInstr(instr))
			first = false
		})
		if !first {
			b.WriteString("\n    ")
		}
		b.WriteString(" ")
		b.WriteString(formatTerm(blk.Term))
		b.WriteString("\n")
	})
	return b.String()
}

func formatInstr(i *Instruction) string {
	args := make([]string, len(i.Args))
	for idx, a := range i.Args {
		args[idx] = formatOperand(a)
	}
	if i.Op == OpCallBack {
		return fmt.Sprintf("let %s := callback [%s];", i.Dst, strings.Join(args, ", "))
	}
	return fmt.Sprintf("let %s := %s [%s];", i.Dst, i.Op, strings.Join(args, ", "))
}

func formatOperand(o Operand) string {
	switch o.Kind {
	case OperandConst:
		return "f64 " + formatConst(o.Const)
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

func formatConst(c hir.Const) string {
	switch c.Type {
	case hir.TypeReal:
		return strconv.FormatFloat(c.Real, 'g', -1, 64)
	case hir.TypeInteger:
		return strconv.FormatInt(c.Int, 10)
	case hir.TypeBool:
		return strconv.FormatBool(c.Bool)
	default:
		return strconv.Quote(c.Str)
	}
}

func formatTerm(t Terminator) string {
	switch t.Kind {
	case TermGoto:
		return fmt.Sprintf("goto bb%d", t.Target)
	case TermSplit:
		loop := ""
		if t.LoopHead {
			loop = " loop"
		}
		return fmt.Sprintf("if %s { bb%d } else { bb%d }%s", formatOperand(t.Cond), t.Then, t.Else, loop)
	default:
		return "end"
	}
}

// Parse reads the subset of Format's output described above back into a
// CFG. Block and local numbering is preserved exactly (Parse does not
// renumber), so Format(Parse(Format(cfg))) == Format(cfg) for any cfg built
// only from the opcodes/operand kinds Parse understands.
func Parse(text string) (*CFG, error) {
	p := &parser{cfg: NewCFG()}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blockOrder []BasicBlockID
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "bb") {
			header, rest, _ := strings.Cut(line, ":")
			id, err := p.blockID(header)
			if err != nil {
				return nil, err
			}
			for BasicBlockID(len(p.cfg.blocks)) <= id {
				p.cfg.newBlock()
			}
			blockOrder = append(blockOrder, id)
			if err := p.parseStatements(id, rest); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.parseStatements(blockOrder[len(blockOrder)-1], line); err != nil {
			return nil, err
		}
	}
	if len(blockOrder) > 0 {
		p.cfg.Entry = blockOrder[0]
	}
	return p.cfg, sc.Err()
}

type parser struct {
	cfg     *CFG
	maxLocal int
}

func (p *parser) blockID(s string) (BasicBlockID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "bb")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad block header %q: %w", s, err)
	}
	return BasicBlockID(n), nil
}

func (p *parser) parseStatements(block BasicBlockID, rest string) error {
	for _, stmt := range splitStatements(rest) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := p.parseStatement(block, stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits on ';' but also treats a trailing goto/if/end
// clause (no terminating ';') as its own statement.
func splitStatements(s string) []string {
	parts := strings.Split(s, ";")
	return parts
}

func (p *parser) parseStatement(block BasicBlockID, stmt string) error {
	switch {
	case strings.HasPrefix(stmt, "goto "):
		target, err := p.blockID(strings.TrimPrefix(stmt, "goto "))
		if err != nil {
			return err
		}
		p.ensureBlock(target)
		p.cfg.blocks[block].Term = Goto(target)
		p.cfg.blocks[target].addPred(block)
		return nil
	case stmt == "end":
		p.cfg.blocks[block].Term = Return()
		return nil
	case strings.HasPrefix(stmt, "if "):
		return p.parseSplit(block, stmt)
	case strings.HasPrefix(stmt, "let "):
		return p.parseLet(block, stmt)
	default:
		return fmt.Errorf("unrecognized statement %q", stmt)
	}
}

func (p *parser) ensureBlock(id BasicBlockID) {
	for BasicBlockID(len(p.cfg.blocks)) <= id {
		p.cfg.newBlock()
	}
}

func (p *parser) parseSplit(block BasicBlockID, stmt string) error {
	// if <cond> { bb<T> } else { bb<E> }[ loop]
	loop := strings.HasSuffix(stmt, " loop")
	stmt = strings.TrimSuffix(stmt, " loop")
	stmt = strings.TrimPrefix(stmt, "if ")
	condStr, rest, ok := strings.Cut(stmt, "{")
	if !ok {
		return fmt.Errorf("malformed split %q", stmt)
	}
	thenStr, rest, ok := strings.Cut(rest, "}")
	if !ok {
		return fmt.Errorf("malformed split %q", stmt)
	}
	_, rest, ok = strings.Cut(rest, "{")
	if !ok {
		return fmt.Errorf("malformed split %q", stmt)
	}
	elseStr, _, _ := strings.Cut(rest, "}")

	cond, err := p.parseOperand(strings.TrimSpace(condStr))
	if err != nil {
		return err
	}
	then, err := p.blockID(strings.TrimSpace(thenStr))
	if err != nil {
		return err
	}
	els, err := p.blockID(strings.TrimSpace(elseStr))
	if err != nil {
		return err
	}
	p.ensureBlock(then)
	p.ensureBlock(els)
	p.cfg.blocks[block].Term = Split(cond, then, els, loop)
	p.cfg.blocks[then].addPred(block)
	p.cfg.blocks[els].addPred(block)
	return nil
}

func (p *parser) parseLet(block BasicBlockID, stmt string) error {
	stmt = strings.TrimPrefix(stmt, "let ")
	dstStr, rest, ok := strings.Cut(stmt, ":=")
	if !ok {
		return fmt.Errorf("malformed let %q", stmt)
	}
	dst, err := p.parseLocal(strings.TrimSpace(dstStr))
	if err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	opStr, argsStr, ok := strings.Cut(rest, "[")
	if !ok {
		return fmt.Errorf("malformed let rhs %q", rest)
	}
	opStr = strings.TrimSpace(opStr)
	argsStr = strings.TrimSuffix(strings.TrimSpace(argsStr), "]")

	if opStr == "phi" {
		if got := p.cfg.NewLocal(); got != dst {
			return fmt.Errorf("local numbering gap: got _%d while parsing _%d; Parse requires locals defined in increasing order", got, dst)
		}
		phi := Phi{Dst: dst}
		for _, src := range strings.Split(argsStr, ",") {
			src = strings.TrimSpace(src)
			if src == "" {
				continue
			}
			predStr, localStr, ok := strings.Cut(src, ":")
			if !ok {
				return fmt.Errorf("malformed phi source %q", src)
			}
			pred, err := p.blockID(strings.TrimSpace(predStr))
			if err != nil {
				return err
			}
			local, err := p.parseLocal(strings.TrimSpace(localStr))
			if err != nil {
				return err
			}
			phi.Sources = append(phi.Sources, PhiSource{Pred: pred, Local: local})
		}
		p.cfg.blocks[block].Phis = append(p.cfg.blocks[block].Phis, phi)
		return nil
	}

	var args []Operand
	if strings.TrimSpace(argsStr) != "" {
		for _, a := range strings.Split(argsStr, ",") {
			op, err := p.parseOperand(strings.TrimSpace(a))
			if err != nil {
				return err
			}
			args = append(args, op)
		}
	}

	op, err := parseOpcode(opStr)
	if err != nil {
		return err
	}
	// Format always emits locals in increasing definition order, so
	// allocating sequentially from the pool reproduces the original LocalIDs.
	instr := p.cfg.instrPool.Allocate()
	if got := LocalID(p.cfg.instrPool.Allocated() - 1); got != dst {
		return fmt.Errorf("local numbering gap: got _%d while parsing _%d; Parse requires locals defined in increasing order", got, dst)
	}
	*instr = Instruction{Op: op, Dst: LocalDest(dst), Args: args}
	p.cfg.blocks[block].InsertInstruction(instr)
	return nil
}

func (p *parser) parseLocal(s string) (LocalID, error) {
	s = strings.TrimPrefix(s, "_")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad local %q: %w", s, err)
	}
	return LocalID(n), nil
}

func (p *parser) parseOperand(s string) (Operand, error) {
	if strings.HasPrefix(s, "f64 ") || strings.HasPrefix(s, "i64 ") {
		_, valStr, _ := strings.Cut(s, " ")
		if valStr == "true" || valStr == "false" {
			return ConstOperand(hir.BoolConst(valStr == "true")), nil
		}
		v, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("bad const %q: %w", s, err)
		}
		return ConstOperand(hir.RealConst(v)), nil
	}
	if strings.HasPrefix(s, "_") {
		l, err := p.parseLocal(s)
		if err != nil {
			return Operand{}, err
		}
		return LocalOperand(l), nil
	}
	return Operand{}, fmt.Errorf("unsupported operand %q in textual form", s)
}

func parseOpcode(s string) (Opcode, error) {
	switch s {
	case "f64.+":
		return OpAdd, nil
	case "f64.-":
		return OpSub, nil
	case "f64.*":
		return OpMul, nil
	case "f64./":
		return OpDiv, nil
	case "f64.neg":
		return OpNeg, nil
	case "f64.<=":
		return OpLe, nil
	case "f64.<":
		return OpLt, nil
	case "f64.>=":
		return OpGe, nil
	case "f64.>":
		return OpGt, nil
	case "f64.==":
		return OpEq, nil
	case "f64.!=":
		return OpNe, nil
	case "f64.sin":
		return OpSin, nil
	case "f64.cos":
		return OpCos, nil
	case "f64.exp":
		return OpExp, nil
	case "f64.ln":
		return OpLn, nil
	case "f64.sqrt":
		return OpSqrt, nil
	case "f64.pow":
		return OpPow, nil
	case "copy":
		return OpCopy, nil
	default:
		return OpInvalid, fmt.Errorf("unknown opcode %q in textual form", s)
	}
}
