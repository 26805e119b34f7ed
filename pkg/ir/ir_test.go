package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
		{-8, 2, -4},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := FloorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("FloorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOdd(t *testing.T) {
	for v, want := range map[int64]bool{0: false, 1: true, -1: true, -4: false, 9: true} {
		if Odd(v) != want {
			t.Errorf("Odd(%d) = %v", v, !want)
		}
	}
}

func TestQuadText(t *testing.T) {
	tests := []struct {
		q         Quad
		str, text string
	}{
		{Quad{Op: OpAdd, Arg1: "a", Arg2: "1", Result: "T0"}, "(+, a, 1, T0)", "T0 := a + 1"},
		{Quad{Op: OpAssign, Arg1: "T0", Arg2: Empty, Result: "x"}, "(:=, T0, _, x)", "x := T0"},
		{Quad{Op: OpOdd, Arg1: "x", Result: "T1"}, "(ODD, x, _, T1)", "T1 := odd x"},
		{Quad{Op: OpJz, Arg1: "T1", Arg2: Empty, Result: "L0"}, "(JZ, T1, _, L0)", "if T1 == 0 goto L0"},
		{Quad{Op: OpCall, Arg1: "proc_p", Arg2: "2", Result: Empty}, "(CALL, proc_p, 2, _)", "call proc_p, 2"},
		{Quad{Op: OpWrite, Arg1: "T2", Arg2: Empty, Result: Empty}, "(WRITE, T2, _, _)", "write T2"},
		{Quad{Op: OpRead, Arg1: Empty, Arg2: Empty, Result: "x"}, "(READ, _, _, x)", "read x"},
		{Quad{Op: OpLabel, Result: "L3"}, "(LABEL, _, _, L3)", "L3:"},
		{Quad{Op: OpRet}, "(RET, _, _, _)", "ret"},
	}
	for _, tt := range tests {
		if got := tt.q.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if got := tt.q.Text(); got != tt.text {
			t.Errorf("Text() = %q, want %q", got, tt.text)
		}
	}
}

func TestUsesAndDef(t *testing.T) {
	tests := []struct {
		q    Quad
		uses []string
		def  string
	}{
		{Quad{Op: OpMul, Arg1: "a", Arg2: "T0", Result: "T1"}, []string{"a", "T0"}, "T1"},
		{Quad{Op: OpAssign, Arg1: "T1", Result: "b"}, []string{"T1"}, "b"},
		{Quad{Op: OpRead, Result: "x"}, nil, "x"},
		{Quad{Op: OpParam, Arg1: "T4"}, []string{"T4"}, ""},
		{Quad{Op: OpCall, Arg1: "proc_p", Arg2: "1"}, nil, ""},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.uses, tt.q.Uses()); diff != "" {
			t.Errorf("%s uses mismatch (-want +got):\n%s", tt.q, diff)
		}
		def, ok := tt.q.Def()
		if def != tt.def || ok != (tt.def != "") {
			t.Errorf("%s Def() = %q, %v", tt.q, def, ok)
		}
	}
}

func TestNames(t *testing.T) {
	for name, want := range map[string]bool{"T0": true, "T12": true, "T": false, "Tx": false, "t1": false, "x": false} {
		if IsTemp(name) != want {
			t.Errorf("IsTemp(%q) = %v", name, !want)
		}
	}
	if v, ok := IsConst("-42"); !ok || v != -42 {
		t.Errorf("IsConst(-42) = %d, %v", v, ok)
	}
	if _, ok := IsConst("T0"); ok {
		t.Error("IsConst(T0) reported a constant")
	}
}

func TestCloneAndRenumber(t *testing.T) {
	quads := []Quad{{ID: 9, Op: OpRet}, {ID: 4, Op: OpEnd}}
	c := Renumber(Clone(quads))
	if c[0].ID != 0 || c[1].ID != 1 {
		t.Errorf("Renumber ids = %d, %d", c[0].ID, c[1].ID)
	}
	if quads[0].ID != 9 {
		t.Error("Clone shares storage with its input")
	}
	want := "   0  (RET, _, _, _)               ret\n   1  (END, _, _, _)               end\n"
	if diff := cmp.Diff(want, Format(c)); diff != "" {
		t.Errorf("Format mismatch (-want +got):\n%s", diff)
	}
}
