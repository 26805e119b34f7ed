package optimizer

import (
	"sort"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/util"
)

// known is what constant propagation knows about a temporary: either a
// constant value or that it holds a copy of another name.
type known struct {
	isConst bool
	value   int64
	name    string
}

func (k known) operand() string {
	if k.isConst {
		return ir.ConstString(k.value)
	}
	return k.name
}

type valueTable map[string]known

// forget drops name and every temporary recorded as a copy of it.
func (vt valueTable) forget(name string) {
	delete(vt, name)
	for t, k := range vt {
		if !k.isConst && k.name == name {
			delete(vt, t)
		}
	}
}

func (vt valueTable) subst(operand string) string {
	if !ir.IsTemp(operand) {
		return operand
	}
	if k, ok := vt[operand]; ok {
		return k.operand()
	}
	return operand
}

func (o *optimizer) constFold(quads []ir.Quad) []ir.Quad {
	vt := valueTable{}
	for i := range quads {
		q := &quads[i]
		before := *q

		switch {
		case q.Op.IsBinary():
			q.Arg1, q.Arg2 = vt.subst(q.Arg1), vt.subst(q.Arg2)
		case q.Op == ir.OpAssign, q.Op == ir.OpOdd, q.Op == ir.OpJz, q.Op == ir.OpParam, q.Op == ir.OpWrite:
			q.Arg1 = vt.subst(q.Arg1)
		}
		if *q != before {
			o.record(PassConstFold, q.ID, &before, q, "propagate")
		}

		o.simplify(q)

		if def, ok := q.Def(); ok {
			vt.forget(def)
			if ir.IsTemp(def) && q.Op == ir.OpAssign && q.Arg1 != def {
				if v, isConst := ir.IsConst(q.Arg1); isConst {
					vt[def] = known{isConst: true, value: v}
				} else {
					vt[def] = known{name: q.Arg1}
				}
			}
		}
		if q.EndsBlock() {
			vt = valueTable{}
		}
	}
	return quads
}

// simplify folds a fully numeric quad or applies an algebraic identity.
func (o *optimizer) simplify(q *ir.Quad) {
	before := *q
	toCopy := func(src string) {
		q.Op, q.Arg1, q.Arg2 = ir.OpAssign, src, ir.Empty
	}

	if q.Op == ir.OpOdd {
		if v, ok := ir.IsConst(q.Arg1); ok {
			toCopy(boolConst(ir.Odd(v)))
			o.record(PassConstFold, q.ID, &before, q, "fold")
		}
		return
	}
	if !q.Op.IsBinary() {
		return
	}

	a, aok := ir.IsConst(q.Arg1)
	b, bok := ir.IsConst(q.Arg2)
	if aok && bok {
		v, ok := fold(q.Op, a, b)
		if !ok {
			util.Warnf(o.cfg, config.WarnDivZero, "division by constant zero in '%s' is left to fail at run time", q.Text())
			return
		}
		toCopy(ir.ConstString(v))
		o.record(PassConstFold, q.ID, &before, q, "fold")
		return
	}

	switch {
	case q.Op == ir.OpAdd && bok && b == 0, q.Op == ir.OpSub && bok && b == 0:
		toCopy(q.Arg1)
	case q.Op == ir.OpAdd && aok && a == 0:
		toCopy(q.Arg2)
	case q.Op == ir.OpMul && bok && b == 1, q.Op == ir.OpDiv && bok && b == 1:
		toCopy(q.Arg1)
	case q.Op == ir.OpMul && aok && a == 1:
		toCopy(q.Arg2)
	case q.Op == ir.OpMul && ((aok && a == 0) || (bok && b == 0)):
		toCopy("0")
	case q.Op == ir.OpMul && bok && b == 2:
		q.Op, q.Arg2 = ir.OpAdd, q.Arg1
	case q.Op == ir.OpMul && aok && a == 2:
		q.Op, q.Arg1 = ir.OpAdd, q.Arg2
	case q.Op == ir.OpDiv && bok && b == 0:
		util.Warnf(o.cfg, config.WarnDivZero, "division by constant zero in '%s'", q.Text())
		return
	default:
		return
	}
	o.record(PassConstFold, q.ID, &before, q, "simplify")
}

func boolConst(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// fold evaluates a binary operator on constants. It reports false for a zero divisor.
func fold(op ir.Op, a, b int64) (int64, bool) {
	switch op {
	case ir.OpAdd:
		return a + b, true
	case ir.OpSub:
		return a - b, true
	case ir.OpMul:
		return a * b, true
	case ir.OpDiv:
		if b == 0 {
			return 0, false
		}
		return ir.FloorDiv(a, b), true
	}
	var r bool
	switch op {
	case ir.OpEq:
		r = a == b
	case ir.OpNeq:
		r = a != b
	case ir.OpLt:
		r = a < b
	case ir.OpLte:
		r = a <= b
	case ir.OpGt:
		r = a > b
	case ir.OpGte:
		r = a >= b
	default:
		return 0, false
	}
	if r {
		return 1, true
	}
	return 0, true
}

type exprKey struct {
	op         ir.Op
	arg1, arg2 string
}

func keyOf(q ir.Quad) exprKey {
	a1, a2 := q.Arg1, q.Arg2
	if q.Op == ir.OpOdd {
		a2 = ir.Empty
	}
	if q.Op.IsCommutative() {
		pair := []string{a1, a2}
		sort.Strings(pair)
		a1, a2 = pair[0], pair[1]
	}
	return exprKey{q.Op, a1, a2}
}

func (o *optimizer) cse(quads []ir.Quad) []ir.Quad {
	avail := map[exprKey]string{}
	for i := range quads {
		q := &quads[i]
		candidate := q.Op.IsBinary() || q.Op == ir.OpOdd
		var key exprKey
		if candidate {
			key = keyOf(*q)
			if t, ok := avail[key]; ok && ir.IsTemp(q.Result) {
				before := *q
				q.Op, q.Arg1, q.Arg2 = ir.OpAssign, t, ir.Empty
				o.record(PassCSE, q.ID, &before, q, "reuse %s", t)
				candidate = false
			}
		}
		if def, ok := q.Def(); ok {
			for k, t := range avail {
				if k.arg1 == def || k.arg2 == def || t == def {
					delete(avail, k)
				}
			}
			if candidate && ir.IsTemp(def) && key.arg1 != def && key.arg2 != def {
				avail[key] = def
			}
		}
		if q.EndsBlock() {
			avail = map[exprKey]string{}
		}
	}
	return quads
}

func (o *optimizer) dce(quads []ir.Quad) []ir.Quad {
	live := map[string]bool{}
	kept := make([]ir.Quad, 0, len(quads))
	for i := len(quads) - 1; i >= 0; i-- {
		q := quads[i]
		def, defines := q.Def()
		if defines && q.IsPure() && ir.IsTemp(def) && !live[def] {
			o.record(PassDCE, q.ID, &q, nil, "remove unused %s", def)
			continue
		}
		if defines {
			delete(live, def)
		}
		for _, u := range q.Uses() {
			if ir.IsTemp(u) {
				live[u] = true
			}
		}
		kept = append(kept, q)
	}
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}
