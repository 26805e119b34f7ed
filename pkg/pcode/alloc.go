package pcode

import (
	"sort"
	"strconv"

	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/symtab"
)

type interval struct {
	name       string
	start, end int
}

// region is the quads between one scope label and the next.
type region struct {
	scope      *symtab.Scope
	start, end int
}

// scopeLabel returns the scope entered by q, if q is a scope label.
func scopeLabel(q ir.Quad, global *symtab.Scope) (*symtab.Scope, bool) {
	if q.Op != ir.OpLabel || !symtab.IsProcLabel(q.Result) {
		return nil, false
	}
	return global.Find(q.Result)
}

func regions(quads []ir.Quad, global *symtab.Scope) []region {
	var out []region
	for i, q := range quads {
		s, ok := scopeLabel(q, global)
		if !ok {
			continue
		}
		if n := len(out); n > 0 {
			out[n-1].end = i
		}
		out = append(out, region{scope: s, start: i, end: len(quads)})
	}
	return out
}

// liveIntervals computes [first, last] occurrence of every temporary in
// quads[r.start:r.end], extending intervals that reach into a loop from
// outside it to the loop's back edge.
func liveIntervals(quads []ir.Quad, r region) []interval {
	byName := map[string]*interval{}
	var order []string
	touch := func(name string, i int) {
		if !ir.IsTemp(name) {
			return
		}
		iv, ok := byName[name]
		if !ok {
			byName[name] = &interval{name: name, start: i, end: i}
			order = append(order, name)
			return
		}
		iv.end = max(iv.end, i)
	}

	labels := map[string]int{}
	type backEdge struct{ head, tail int }
	var loops []backEdge
	for i := r.start; i < r.end; i++ {
		q := quads[i]
		for _, u := range q.Uses() {
			touch(u, i)
		}
		if d, ok := q.Def(); ok {
			touch(d, i)
		}
		switch {
		case q.Op == ir.OpLabel:
			labels[q.Result] = i
		case q.Op == ir.OpJmp || q.Op == ir.OpGoto:
			if h, ok := labels[q.Result]; ok {
				loops = append(loops, backEdge{h, i})
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, name := range order {
			iv := byName[name]
			for _, l := range loops {
				if iv.start < l.head && iv.end >= l.head && iv.end < l.tail {
					iv.end = l.tail
					changed = true
				}
			}
		}
	}

	out := make([]interval, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].start != out[j].start {
			return out[i].start < out[j].start
		}
		return tempIndex(out[i].name) < tempIndex(out[j].name)
	})
	return out
}

func tempIndex(name string) int {
	n, _ := strconv.Atoi(name[len(ir.TempPrefix):])
	return n
}

// linearScan assigns each interval the lowest slot free at its start and
// returns the assignment and the number of slots used.
func linearScan(intervals []interval) (map[string]int, int) {
	slots := map[string]int{}
	var active []interval
	var free []int
	used := 0
	for _, iv := range intervals {
		kept := active[:0]
		for _, a := range active {
			if a.end <= iv.start {
				free = append(free, slots[a.name])
			} else {
				kept = append(kept, a)
			}
		}
		active = kept

		var slot int
		if len(free) > 0 {
			sort.Ints(free)
			slot, free = free[0], free[1:]
		} else {
			slot = used
			used++
		}
		slots[iv.name] = slot
		active = append(active, iv)
	}
	return slots, used
}

// AllocateTemps assigns every temporary a frame slot above its scope's
// variables and returns the resulting frame of each scope, keyed by label.
// Temporaries whose lifetimes do not overlap share a slot.
func AllocateTemps(quads []ir.Quad, global *symtab.Scope) map[string]Frame {
	frames := map[string]Frame{}
	global.Walk(func(s *symtab.Scope) {
		frames[s.Label] = Frame{Label: s.Label, Locals: s.NextOffset, Size: s.NextOffset, Slots: map[string]int{}}
	})
	for _, r := range regions(quads, global) {
		slots, n := linearScan(liveIntervals(quads, r))
		f := frames[r.scope.Label]
		for name, slot := range slots {
			f.Slots[name] = f.Locals + slot
		}
		f.Temps = max(f.Temps, n)
		f.Size = f.Locals + f.Temps
		frames[r.scope.Label] = f
	}
	return frames
}
