package token

import (
	"fmt"
	"strings"
)

type Type int

const (
	EOF Type = iota
	Ident
	Number
	Const
	Var
	Procedure
	Call
	Begin
	End
	If
	Then
	Else
	While
	Do
	Odd
	Read
	Write
	Plus
	Minus
	Star
	Slash
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte
	Assign
	LParen
	RParen
	Comma
	Semi
	Dot
)

var KeywordMap = map[string]Type{
	"const":     Const,
	"var":       Var,
	"procedure": Procedure,
	"call":      Call,
	"begin":     Begin,
	"end":       End,
	"if":        If,
	"then":      Then,
	"else":      Else,
	"while":     While,
	"do":        Do,
	"odd":       Odd,
	"read":      Read,
	"write":     Write,
}

var punctStrings = map[Type]string{
	EOF:    "end of file",
	Ident:  "identifier",
	Number: "number",
	Plus:   "+",
	Minus:  "-",
	Star:   "*",
	Slash:  "/",
	Eq:     "=",
	Neq:    "<>",
	Lt:     "<",
	Lte:    "<=",
	Gt:     ">",
	Gte:    ">=",
	Assign: ":=",
	LParen: "(",
	RParen: ")",
	Comma:  ",",
	Semi:   ";",
	Dot:    ".",
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// IsKeyword reports whether t is one of the reserved words.
func (t Type) IsKeyword() bool { return t >= Const && t <= Write }

// IsRelOp reports whether t is a relational operator usable in a condition.
func (t Type) IsRelOp() bool { return t >= Eq && t <= Gte }

// LookupIdent classifies an identifier lexeme, matching keywords case-insensitively.
func LookupIdent(name string) Type {
	if typ, ok := KeywordMap[strings.ToLower(name)]; ok {
		return typ
	}
	return Ident
}

type Token struct {
	Type   Type
	Value  string
	Num    int64
	Line   int
	Column int
	Len    int
}

func (t Token) String() string {
	switch t.Type {
	case Ident:
		return fmt.Sprintf("identifier '%s'", t.Value)
	case Number:
		return fmt.Sprintf("number %d", t.Num)
	case EOF:
		return t.Type.String()
	}
	return fmt.Sprintf("'%s'", t.Type)
}
