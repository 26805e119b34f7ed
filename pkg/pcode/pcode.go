// Package pcode lowers quadruples into instructions for the PL/0 stack machine.
package pcode

import (
	"fmt"
	"sort"
	"strings"
)

type Opcode int

const (
	LIT Opcode = iota // push constant A
	OPR               // arithmetic, comparison, return or read, selected by A
	LOD               // push the cell at (L, A)
	STO               // pop into the cell at (L, A)
	CAL               // call the procedure at A, L levels out
	INT               // move the stack top by A
	JMP               // jump to A
	JPC               // pop, jump to A if zero
	RED               // read into the cell at (L, A)
	WRT               // pop and write
)

var opcodeNames = [...]string{"LIT", "OPR", "LOD", "STO", "CAL", "INT", "JMP", "JPC", "RED", "WRT"}

func (op Opcode) String() string {
	if op >= 0 && int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("OP(%d)", int(op))
}

// OPR sub-operations.
const (
	OprRet  = 0
	OprNeg  = 1
	OprAdd  = 2
	OprSub  = 3
	OprMul  = 4
	OprDiv  = 5
	OprOdd  = 6
	OprEq   = 8
	OprNeq  = 9
	OprLt   = 10
	OprGte  = 11
	OprGt   = 12
	OprLte  = 13
	OprRead = 16
)

type Instruction struct {
	Op Opcode
	L  int64
	A  int64
	// Label is the symbolic jump or call target, resolved into A.
	Label string
}

func (in Instruction) String() string {
	s := fmt.Sprintf("%s %d %d", in.Op, in.L, in.A)
	if in.Label != "" {
		s += "  ; " + in.Label
	}
	return s
}

// LabelMap maps a label to the index of the instruction it names.
type LabelMap map[string]int

// Frame describes the activation record of one scope.
type Frame struct {
	Label string
	// Locals is the first free offset after the header and variables.
	Locals int
	Temps  int
	Size   int
	// Slots maps each temporary to its frame offset.
	Slots map[string]int
}

type Program struct {
	Code   []Instruction
	Labels LabelMap
	Frames map[string]Frame
}

func (p *Program) String() string {
	byIndex := map[int][]string{}
	for l, i := range p.Labels {
		byIndex[i] = append(byIndex[i], l)
	}
	var sb strings.Builder
	for i, in := range p.Code {
		names := byIndex[i]
		sort.Strings(names)
		for _, l := range names {
			fmt.Fprintf(&sb, "%s:\n", l)
		}
		fmt.Fprintf(&sb, "%4d  %s\n", i, in)
	}
	return sb.String()
}

// ResolutionError reports a name or label that could not be mapped to storage or code.
type ResolutionError struct {
	Name   string
	QuadID int
	Msg    string
}

func (e *ResolutionError) Error() string {
	if e.QuadID >= 0 {
		return fmt.Sprintf("quad %d: %s '%s'", e.QuadID, e.Msg, e.Name)
	}
	return fmt.Sprintf("%s '%s'", e.Msg, e.Name)
}
