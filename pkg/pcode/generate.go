package pcode

import (
	"fmt"
	"strconv"

	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/symtab"
)

var oprCodes = map[ir.Op]int64{
	ir.OpAdd: OprAdd,
	ir.OpSub: OprSub,
	ir.OpMul: OprMul,
	ir.OpDiv: OprDiv,
	ir.OpEq:  OprEq,
	ir.OpNeq: OprNeq,
	ir.OpLt:  OprLt,
	ir.OpLte: OprLte,
	ir.OpGt:  OprGt,
	ir.OpGte: OprGte,
}

type generator struct {
	global *symtab.Scope
	scope  *symtab.Scope
	frames map[string]Frame
	prog   *Program
	quadID int
}

// Generate lowers quads into stack-machine code. Label operands are emitted
// symbolically and resolved once the whole program has been laid out.
func Generate(quads []ir.Quad, global *symtab.Scope) (*Program, error) {
	if global == nil {
		return nil, fmt.Errorf("pcode: nil symbol table")
	}
	frames := AllocateTemps(quads, global)
	g := &generator{
		global: global,
		scope:  global,
		frames: frames,
		prog:   &Program{Labels: LabelMap{}, Frames: frames},
	}
	for _, q := range quads {
		g.quadID = q.ID
		if err := g.quad(q); err != nil {
			return nil, err
		}
	}
	if err := g.resolve(); err != nil {
		return nil, err
	}
	return g.prog, nil
}

func (g *generator) emit(op Opcode, l, a int64) {
	g.prog.Code = append(g.prog.Code, Instruction{Op: op, L: l, A: a})
}

func (g *generator) emitLabel(op Opcode, l int64, label string) {
	g.prog.Code = append(g.prog.Code, Instruction{Op: op, L: l, Label: label})
}

func (g *generator) fail(name, msg string) error {
	return &ResolutionError{Name: name, QuadID: g.quadID, Msg: msg}
}

func (g *generator) defineLabel(label string) error {
	if _, dup := g.prog.Labels[label]; dup {
		return g.fail(label, "duplicate label")
	}
	g.prog.Labels[label] = len(g.prog.Code)
	return nil
}

func (g *generator) quad(q ir.Quad) error {
	switch {
	case q.Op == ir.OpLabel:
		if err := g.defineLabel(q.Result); err != nil {
			return err
		}
		if s, ok := scopeLabel(q, g.global); ok {
			g.scope = s
			g.emit(INT, 0, int64(g.frames[s.Label].Size))
		}
		return nil

	case q.Op.IsBinary():
		if err := g.push(q.Arg1); err != nil {
			return err
		}
		if err := g.push(q.Arg2); err != nil {
			return err
		}
		g.emit(OPR, 0, oprCodes[q.Op])
		return g.store(q.Result)

	case q.Op == ir.OpOdd:
		if err := g.push(q.Arg1); err != nil {
			return err
		}
		g.emit(OPR, 0, OprOdd)
		return g.store(q.Result)

	case q.Op == ir.OpAssign:
		if err := g.push(q.Arg1); err != nil {
			return err
		}
		return g.store(q.Result)

	case q.Op == ir.OpJmp, q.Op == ir.OpGoto:
		g.emitLabel(JMP, 0, q.Result)
		return nil

	case q.Op == ir.OpJz:
		if err := g.push(q.Arg1); err != nil {
			return err
		}
		g.emitLabel(JPC, 0, q.Result)
		return nil

	case q.Op == ir.OpParam:
		return g.push(q.Arg1)

	case q.Op == ir.OpCall:
		return g.call(q)

	case q.Op == ir.OpRet, q.Op == ir.OpEnd:
		g.emit(OPR, 0, OprRet)
		return nil

	case q.Op == ir.OpRead:
		g.emit(OPR, 0, OprRead)
		return g.store(q.Result)

	case q.Op == ir.OpWrite:
		if err := g.push(q.Arg1); err != nil {
			return err
		}
		g.emit(WRT, 0, 0)
		return nil
	}
	return g.fail(string(q.Op), "unknown operation")
}

func (g *generator) call(q ir.Quad) error {
	callee, ok := g.global.Find(q.Arg1)
	if !ok || callee.Parent == nil {
		return g.fail(q.Arg1, "unknown procedure")
	}
	ld, ok := g.scope.HopsTo(callee.Parent)
	if !ok {
		return g.fail(q.Arg1, "procedure not visible from "+g.scope.Label)
	}
	n, err := strconv.ParseInt(q.Arg2, 10, 64)
	if err != nil {
		return g.fail(q.Arg2, "bad argument count")
	}
	g.emitLabel(CAL, int64(ld), q.Arg1)
	if n > 0 {
		g.emit(INT, 0, -n)
	}
	return nil
}

func (g *generator) tempSlot(name string) (int, bool) {
	slot, ok := g.frames[g.scope.Label].Slots[name]
	return slot, ok
}

func (g *generator) push(operand string) error {
	if v, ok := ir.IsConst(operand); ok {
		g.emit(LIT, 0, v)
		return nil
	}
	if ir.IsTemp(operand) {
		slot, ok := g.tempSlot(operand)
		if !ok {
			return g.fail(operand, "temporary has no slot")
		}
		g.emit(LOD, 0, int64(slot))
		return nil
	}
	e, ld, ok := g.scope.Lookup(operand)
	if !ok {
		return g.fail(operand, "undeclared name")
	}
	switch e.Kind {
	case symtab.Constant:
		g.emit(LIT, 0, e.Value)
	case symtab.Variable:
		g.emit(LOD, int64(ld), int64(e.Address))
	default:
		return g.fail(operand, "procedure used as a value")
	}
	return nil
}

func (g *generator) store(name string) error {
	if ir.IsTemp(name) {
		slot, ok := g.tempSlot(name)
		if !ok {
			return g.fail(name, "temporary has no slot")
		}
		g.emit(STO, 0, int64(slot))
		return nil
	}
	e, ld, ok := g.scope.Lookup(name)
	if !ok {
		return g.fail(name, "undeclared name")
	}
	if e.Kind != symtab.Variable {
		return g.fail(name, "cannot store into "+e.Kind.String())
	}
	g.emit(STO, int64(ld), int64(e.Address))
	return nil
}

func (g *generator) resolve() error {
	for i := range g.prog.Code {
		in := &g.prog.Code[i]
		if in.Label == "" {
			continue
		}
		addr, ok := g.prog.Labels[in.Label]
		if !ok {
			return &ResolutionError{Name: in.Label, QuadID: -1, Msg: "unresolved label"}
		}
		in.A = int64(addr)
	}
	return nil
}
