package optimizer

import (
	"sort"

	"github.com/xplshn/gpl0/pkg/ir"
)

// loop is the span from a LABEL to the last unconditional jump back to it.
type loop struct {
	label      string
	head, tail int
}

func (l loop) size() int { return l.tail - l.head }

// findLoops returns the back-edge spans in quads, innermost first.
func findLoops(quads []ir.Quad) []loop {
	labels := map[string]int{}
	byLabel := map[string]loop{}
	for i, q := range quads {
		switch {
		case q.Op == ir.OpLabel:
			labels[q.Result] = i
		case q.Op == ir.OpJmp || q.Op == ir.OpGoto:
			if h, ok := labels[q.Result]; ok && h < i {
				byLabel[q.Result] = loop{label: q.Result, head: h, tail: i}
			}
		}
	}
	loops := make([]loop, 0, len(byLabel))
	for _, l := range byLabel {
		loops = append(loops, l)
	}
	sort.Slice(loops, func(i, j int) bool {
		if loops[i].size() != loops[j].size() {
			return loops[i].size() < loops[j].size()
		}
		return loops[i].head < loops[j].head
	})
	return loops
}

// hasSideEffects reports whether the loop body calls a procedure or reads input,
// either of which can change any variable.
func hasSideEffects(quads []ir.Quad, l loop) bool {
	for _, q := range quads[l.head : l.tail+1] {
		if q.Op == ir.OpCall || q.Op == ir.OpRead {
			return true
		}
	}
	return false
}

func definedIn(quads []ir.Quad, l loop) map[string]int {
	defs := map[string]int{}
	for _, q := range quads[l.head : l.tail+1] {
		if d, ok := q.Def(); ok {
			defs[d]++
		}
	}
	return defs
}

func invariant(q ir.Quad, defs map[string]int) bool {
	if !q.IsPure() || !ir.IsTemp(q.Result) || defs[q.Result] != 1 {
		return false
	}
	if q.Op == ir.OpDiv {
		if d, ok := ir.IsConst(q.Arg2); !ok || d == 0 {
			return false
		}
	}
	for _, u := range q.Uses() {
		if _, isConst := ir.IsConst(u); isConst {
			continue
		}
		if defs[u] > 0 {
			return false
		}
	}
	return true
}

// hoistOne moves the first invariant quad of the innermost eligible loop to
// just before its label. It reports whether anything moved.
func (o *optimizer) hoistOne(quads []ir.Quad) ([]ir.Quad, bool) {
	for _, l := range findLoops(quads) {
		if hasSideEffects(quads, l) {
			continue
		}
		defs := definedIn(quads, l)
		for i := l.head + 1; i < l.tail; i++ {
			q := quads[i]
			if !invariant(q, defs) {
				continue
			}
			o.record(PassLoop, q.ID, &q, nil, "hoist invariant out of loop %s", l.label)
			out := make([]ir.Quad, 0, len(quads))
			out = append(out, quads[:l.head]...)
			out = append(out, q)
			out = append(out, quads[l.head:i]...)
			out = append(out, quads[i+1:]...)
			return out, true
		}
	}
	return quads, false
}

type induction struct {
	step int64
}

// basicInductions finds variables updated as "Tk := i + c; i := Tk" inside l.
func basicInductions(quads []ir.Quad, l loop) map[string]induction {
	ivs := map[string]induction{}
	defs := definedIn(quads, l)
	for i := l.head + 1; i+1 < l.tail; i++ {
		q, next := quads[i], quads[i+1]
		if q.Op != ir.OpAdd && q.Op != ir.OpSub {
			continue
		}
		if next.Op != ir.OpAssign || next.Arg1 != q.Result || next.Result != q.Arg1 {
			continue
		}
		c, ok := ir.IsConst(q.Arg2)
		if !ok || ir.IsTemp(q.Arg1) || defs[q.Arg1] != 1 {
			continue
		}
		if q.Op == ir.OpSub {
			c = -c
		}
		ivs[q.Arg1] = induction{step: c}
	}
	return ivs
}

func (o *optimizer) strengthReduce(quads []ir.Quad) {
	for _, l := range findLoops(quads) {
		ivs := basicInductions(quads, l)
		if len(ivs) == 0 {
			continue
		}
		names := make([]string, 0, len(ivs))
		for name := range ivs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			o.record(PassLoop, quads[l.head].ID, nil, nil, "basic induction variable %s in loop %s, step %d", name, l.label, ivs[name].step)
		}

		for i := l.head + 1; i < l.tail; i++ {
			q := &quads[i]
			if q.Op != ir.OpMul {
				continue
			}
			iv, c := q.Arg1, q.Arg2
			if _, ok := ivs[iv]; !ok {
				iv, c = q.Arg2, q.Arg1
			}
			step, isIV := ivs[iv]
			k, isConst := ir.IsConst(c)
			if !isIV || !isConst {
				continue
			}
			if k == 2 {
				before := *q
				q.Op, q.Arg1, q.Arg2 = ir.OpAdd, iv, iv
				o.record(PassLoop, q.ID, &before, q, "strength-reduce %s*2", iv)
				continue
			}
			o.record(PassLoop, q.ID, q, nil, "derived induction variable %s = %s*%d, step %d", q.Result, iv, k, step.step*k)
		}
	}
}

func (o *optimizer) loops(quads []ir.Quad) []ir.Quad {
	// Bounded in case of a malformed label layout.
	for n := 0; n < len(quads)*len(quads)+1; n++ {
		var moved bool
		quads, moved = o.hoistOne(quads)
		if !moved {
			break
		}
	}
	ir.Renumber(quads)
	o.strengthReduce(quads)
	return quads
}
