package ir

import (
	"fmt"
	"strconv"
	"strings"
)

type Op string

const (
	OpAdd    Op = "+"
	OpSub    Op = "-"
	OpMul    Op = "*"
	OpDiv    Op = "/"
	OpEq     Op = "="
	OpNeq    Op = "<>"
	OpLt     Op = "<"
	OpLte    Op = "<="
	OpGt     Op = ">"
	OpGte    Op = ">="
	OpOdd    Op = "ODD"
	OpAssign Op = ":="
	OpLabel  Op = "LABEL"
	OpJmp    Op = "JMP"
	OpJz     Op = "JZ"
	OpCall   Op = "CALL"
	OpRet    Op = "RET"
	OpRead   Op = "READ"
	OpWrite  Op = "WRITE"
	OpParam  Op = "PARAM"
	OpGoto   Op = "GOTO"
	OpEnd    Op = "END"
)

// Empty marks an unused operand slot.
const Empty = "_"

// TempPrefix starts every compiler temporary name.
const TempPrefix = "T"

type Quad struct {
	ID     int
	Op     Op
	Arg1   string
	Arg2   string
	Result string
}

func (q Quad) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", q.Op, orEmpty(q.Arg1), orEmpty(q.Arg2), orEmpty(q.Result))
}

// Text is the human-readable three-address form used in listings and logs.
func (q Quad) Text() string {
	switch {
	case q.Op == OpAssign:
		return fmt.Sprintf("%s := %s", q.Result, q.Arg1)
	case q.Op.IsBinary():
		return fmt.Sprintf("%s := %s %s %s", q.Result, q.Arg1, q.Op, q.Arg2)
	case q.Op == OpOdd:
		return fmt.Sprintf("%s := odd %s", q.Result, q.Arg1)
	case q.Op == OpLabel:
		return q.Result + ":"
	case q.Op == OpJmp, q.Op == OpGoto:
		return "goto " + q.Result
	case q.Op == OpJz:
		return fmt.Sprintf("if %s == 0 goto %s", q.Arg1, q.Result)
	case q.Op == OpCall:
		return fmt.Sprintf("call %s, %s", q.Arg1, q.Arg2)
	case q.Op == OpParam, q.Op == OpWrite:
		return fmt.Sprintf("%s %s", strings.ToLower(string(q.Op)), q.Arg1)
	case q.Op == OpRead:
		return "read " + q.Result
	}
	return strings.ToLower(string(q.Op))
}

func orEmpty(s string) string {
	if s == "" {
		return Empty
	}
	return s
}

func (op Op) IsArith() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

func (op Op) IsRelational() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

func (op Op) IsBinary() bool { return op.IsArith() || op.IsRelational() }

// IsCommutative reports whether swapping the operands leaves the result unchanged.
func (op Op) IsCommutative() bool {
	switch op {
	case OpAdd, OpMul, OpEq, OpNeq:
		return true
	}
	return false
}

// IsPure reports whether q computes Result from its operands with no other effect.
func (q Quad) IsPure() bool { return q.Op.IsBinary() || q.Op == OpOdd || q.Op == OpAssign }

// IsJump reports whether q transfers control.
func (q Quad) IsJump() bool { return q.Op == OpJmp || q.Op == OpGoto || q.Op == OpJz }

// EndsBlock reports whether local value tables must be discarded after q.
func (q Quad) EndsBlock() bool {
	switch q.Op {
	case OpLabel, OpJmp, OpGoto, OpJz, OpCall, OpRet, OpEnd:
		return true
	}
	return false
}

// Uses returns the operands q reads.
func (q Quad) Uses() []string {
	var uses []string
	switch {
	case q.Op.IsBinary():
		uses = []string{q.Arg1, q.Arg2}
	case q.Op == OpAssign, q.Op == OpOdd, q.Op == OpJz, q.Op == OpParam, q.Op == OpWrite:
		uses = []string{q.Arg1}
	}
	return uses
}

// Def returns the name q writes, if any.
func (q Quad) Def() (string, bool) {
	if q.IsPure() || q.Op == OpRead {
		return q.Result, true
	}
	return "", false
}

// IsTemp reports whether name is a compiler temporary.
func IsTemp(name string) bool {
	if len(name) < 2 || !strings.HasPrefix(name, TempPrefix) {
		return false
	}
	_, err := strconv.Atoi(name[1:])
	return err == nil
}

// IsConst reports whether operand is an integer literal and returns its value.
func IsConst(operand string) (int64, bool) {
	v, err := strconv.ParseInt(operand, 10, 64)
	return v, err == nil
}

func ConstString(v int64) string { return strconv.FormatInt(v, 10) }

// Renumber assigns positional ids.
func Renumber(quads []Quad) []Quad {
	for i := range quads {
		quads[i].ID = i
	}
	return quads
}

// Clone returns a copy of quads that can be rewritten without touching the original.
func Clone(quads []Quad) []Quad {
	out := make([]Quad, len(quads))
	copy(out, quads)
	return out
}

// Format renders a listing of quads, one per line.
func Format(quads []Quad) string {
	var sb strings.Builder
	for _, q := range quads {
		fmt.Fprintf(&sb, "%4d  %-28s %s\n", q.ID, q.String(), q.Text())
	}
	return sb.String()
}

// Program is the output of IR generation.
type Program struct {
	Quads  []Quad
	Temps  int
	Labels int
}

// FloorDiv divides rounding towards negative infinity. b must be non-zero.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Odd reports whether v is odd, for either sign.
func Odd(v int64) bool { return v%2 != 0 }
