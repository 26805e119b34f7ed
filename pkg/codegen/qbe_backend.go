package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/pcode"
)

// qbeBackend translates stack-machine code into a single QBE function. The
// machine stack becomes a global array of 64-bit cells, each instruction
// becomes a block named after its index, and returns dispatch on the saved
// instruction index.
type qbeBackend struct {
	out     *strings.Builder
	prog    *pcode.Program
	cfg     *config.Config
	tmp     int
	retSite []int
}

func NewQBEBackend() Backend { return &qbeBackend{} }

const wordSize = 8

func (b *qbeBackend) GenerateIL(prog *pcode.Program, cfg *config.Config) (string, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	var sb strings.Builder
	b.out, b.prog, b.cfg, b.tmp = &sb, prog, cfg, 0
	b.retSite = nil

	n := len(prog.Code)
	for i, in := range prog.Code {
		switch in.Op {
		case pcode.JMP, pcode.JPC, pcode.CAL:
			if in.A < 0 || in.A > int64(n) {
				return "", fmt.Errorf("qbe: instruction %d (%s) jumps outside the program", i, in)
			}
		}
		if in.Op == pcode.CAL {
			b.retSite = append(b.retSite, i+1)
		}
	}
	sort.Ints(b.retSite)

	b.genData()
	b.genHelpers()
	b.genMain()
	return sb.String(), nil
}

func (b *qbeBackend) genData() {
	stackSize := b.cfg.StackSize
	if stackSize <= 0 {
		stackSize = config.DefaultStackSize
	}
	fmt.Fprintf(b.out, "data $stack = align 8 { z %d }\n", stackSize*wordSize)
	b.out.WriteString("data $inbuf = align 8 { z 8 }\n")
	b.out.WriteString("data $fmt_out = { b \"%lld\\n\", b 0 }\n")
	b.out.WriteString("data $fmt_in = { b \" %lld\", b 0 }\n")
	b.out.WriteString("data $fmt_echo = { b \"input: %lld\\n\", b 0 }\n")
	b.out.WriteString("data $msg_done = { b \"program finished\", b 0 }\n")
	b.out.WriteString("data $msg_div = { b \"runtime error: division by zero\", b 0 }\n")
	b.out.WriteString("data $msg_input = { b \"runtime error: invalid input\", b 0 }\n")
	b.out.WriteString("data $msg_ret = { b \"runtime error: bad return address\", b 0 }\n")
	b.out.WriteString("data $msg_op = { b \"runtime error: unknown instruction\", b 0 }\n")
}

func (b *qbeBackend) genHelpers() {
	b.out.WriteString(`
function $pl0_trap(l %msg) {
@start
	call $puts(l %msg)
	call $exit(w 1)
	ret
}

function l $pl0_base(l %b0, l %l0) {
@start
	%b =l copy %b0
	%l =l copy %l0
@loop
	%more =w cnel %l, 0
	jnz %more, @step, @done
@step
	%off =l mul %b, 8
	%p =l add $stack, %off
	%b =l loadl %p
	%l =l sub %l, 1
	jmp @loop
@done
	ret %b
}

function l $pl0_div(l %x, l %y) {
@start
	%zero =w ceql %y, 0
	jnz %zero, @fail, @ok
@fail
	call $pl0_trap(l $msg_div)
	ret 0
@ok
	%q =l div %x, %y
	%r =l rem %x, %y
	%inexact =w cnel %r, 0
	%rneg =w csltl %r, 0
	%yneg =w csltl %y, 0
	%signs =w cnew %rneg, %yneg
	%adj =w and %inexact, %signs
	%adjl =l extuw %adj
	%f =l sub %q, %adjl
	ret %f
}

function l $pl0_read() {
@start
	%n =w call $scanf(l $fmt_in, ..., l $inbuf)
	%ok =w ceqw %n, 1
	jnz %ok, @done, @fail
@fail
	call $pl0_trap(l $msg_input)
	ret 0
@done
	%v =l loadl $inbuf
	ret %v
}
`)
}

func (b *qbeBackend) newTemp() string {
	b.tmp++
	return fmt.Sprintf("%%v%d", b.tmp)
}

func (b *qbeBackend) emit(format string, args ...interface{}) {
	b.out.WriteByte('\t')
	fmt.Fprintf(b.out, format, args...)
	b.out.WriteByte('\n')
}

// cell returns a temporary holding the address of stack cell idx.
func (b *qbeBackend) cell(idx string) string {
	off, p := b.newTemp(), b.newTemp()
	b.emit("%s =l mul %s, %d", off, idx, wordSize)
	b.emit("%s =l add $stack, %s", p, off)
	return p
}

func (b *qbeBackend) push(v string) {
	p := b.cell("%t")
	b.emit("storel %s, %s", v, p)
	b.emit("%%t =l add %%t, 1")
}

func (b *qbeBackend) pop() string {
	b.emit("%%t =l sub %%t, 1")
	p := b.cell("%t")
	v := b.newTemp()
	b.emit("%s =l loadl %s", v, p)
	return v
}

// frameAddr returns a temporary holding the cell index of (l, a).
func (b *qbeBackend) frameAddr(l, a int64) string {
	base := "%b"
	if l > 0 {
		base = b.newTemp()
		b.emit("%s =l call $pl0_base(l %%b, l %d)", base, l)
	}
	idx := b.newTemp()
	b.emit("%s =l add %s, %d", idx, base, a)
	return idx
}

func (b *qbeBackend) echo(v string) {
	if b.cfg.IsFeatureEnabled(config.FeatEchoInput) {
		b.emit("call $printf(l $fmt_echo, ..., l %s)", v)
	}
}

var qbeCompare = map[int64]string{
	pcode.OprEq:  "ceql",
	pcode.OprNeq: "cnel",
	pcode.OprLt:  "csltl",
	pcode.OprGte: "csgel",
	pcode.OprGt:  "csgtl",
	pcode.OprLte: "cslel",
}

var qbeArith = map[int64]string{
	pcode.OprAdd: "add",
	pcode.OprSub: "sub",
	pcode.OprMul: "mul",
}

func (b *qbeBackend) genMain() {
	b.out.WriteString("\nexport function w $main() {\n@start\n")
	b.emit("%%b =l copy 0")
	b.emit("%%t =l copy 0")
	b.emit("%%r =l copy 0")

	for i, in := range b.prog.Code {
		fmt.Fprintf(b.out, "@i%d\n", i)
		b.genInstr(i, in)
	}
	fmt.Fprintf(b.out, "@i%d\n", len(b.prog.Code))
	b.emit("jmp @halt")

	b.out.WriteString("@ret\n")
	for k, site := range b.retSite {
		c := b.newTemp()
		b.emit("%s =w ceql %%r, %d", c, site)
		b.emit("jnz %s, @i%d, @ret%d", c, site, k)
		fmt.Fprintf(b.out, "@ret%d\n", k)
	}
	b.emit("call $pl0_trap(l $msg_ret)")
	b.emit("jmp @halt")

	b.out.WriteString("@halt\n")
	b.emit("call $puts(l $msg_done)")
	b.emit("ret 0")
	b.out.WriteString("}\n")
}

func (b *qbeBackend) genInstr(i int, in pcode.Instruction) {
	next := fmt.Sprintf("@i%d", i+1)
	switch in.Op {
	case pcode.LIT:
		b.push(fmt.Sprintf("%d", in.A))

	case pcode.LOD:
		p := b.cell(b.frameAddr(in.L, in.A))
		v := b.newTemp()
		b.emit("%s =l loadl %s", v, p)
		b.push(v)

	case pcode.STO:
		idx := b.frameAddr(in.L, in.A)
		v := b.pop()
		b.emit("storel %s, %s", v, b.cell(idx))

	case pcode.CAL:
		link := "%b"
		if in.L > 0 {
			link = b.newTemp()
			b.emit("%s =l call $pl0_base(l %%b, l %d)", link, in.L)
		}
		b.emit("storel %s, %s", link, b.cell("%t"))
		dl := b.newTemp()
		b.emit("%s =l add %%t, 1", dl)
		b.emit("storel %%b, %s", b.cell(dl))
		ra := b.newTemp()
		b.emit("%s =l add %%t, 2", ra)
		b.emit("storel %d, %s", i+1, b.cell(ra))
		b.emit("%%b =l copy %%t")
		b.emit("jmp @i%d", in.A)

	case pcode.INT:
		b.emit("%%t =l add %%t, %d", in.A)

	case pcode.JMP:
		b.emit("jmp @i%d", in.A)

	case pcode.JPC:
		v := b.pop()
		c := b.newTemp()
		b.emit("%s =w cnel %s, 0", c, v)
		b.emit("jnz %s, %s, @i%d", c, next, in.A)

	case pcode.RED:
		v := b.newTemp()
		b.emit("%s =l call $pl0_read()", v)
		b.echo(v)
		b.emit("storel %s, %s", v, b.cell(b.frameAddr(in.L, in.A)))

	case pcode.WRT:
		v := b.pop()
		b.emit("call $printf(l $fmt_out, ..., l %s)", v)

	case pcode.OPR:
		b.genOpr(in)
	}
}

func (b *qbeBackend) genOpr(in pcode.Instruction) {
	switch in.A {
	case pcode.OprRet:
		c := b.newTemp()
		b.emit("%s =w ceql %%b, 0", c)
		ret := fmt.Sprintf("@r%d", b.tmp)
		b.emit("jnz %s, @halt, %s", c, ret)
		fmt.Fprintf(b.out, "%s\n", ret)
		b.emit("%%t =l copy %%b")
		raIdx, dlIdx := b.newTemp(), b.newTemp()
		b.emit("%s =l add %%t, 2", raIdx)
		b.emit("%s =l add %%t, 1", dlIdx)
		b.emit("%%r =l loadl %s", b.cell(raIdx))
		b.emit("%%b =l loadl %s", b.cell(dlIdx))
		b.emit("jmp @ret")
		return

	case pcode.OprNeg:
		v := b.pop()
		n := b.newTemp()
		b.emit("%s =l neg %s", n, v)
		b.push(n)
		return

	case pcode.OprOdd:
		v := b.pop()
		rem, odd := b.newTemp(), b.newTemp()
		b.emit("%s =l rem %s, 2", rem, v)
		b.emit("%s =l cnel %s, 0", odd, rem)
		b.push(odd)
		return

	case pcode.OprRead:
		v := b.newTemp()
		b.emit("%s =l call $pl0_read()", v)
		b.echo(v)
		b.push(v)
		return
	}

	y := b.pop()
	x := b.pop()
	r := b.newTemp()
	switch {
	case in.A == pcode.OprDiv:
		b.emit("%s =l call $pl0_div(l %s, l %s)", r, x, y)
	case qbeArith[in.A] != "":
		b.emit("%s =l %s %s, %s", r, qbeArith[in.A], x, y)
	case qbeCompare[in.A] != "":
		b.emit("%s =l %s %s, %s", r, qbeCompare[in.A], x, y)
	default:
		b.emit("call $pl0_trap(l $msg_op)")
		b.emit("jmp @halt")
		return
	}
	b.push(r)
}
