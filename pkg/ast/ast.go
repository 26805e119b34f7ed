// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
// of a PL/0 program. The node set is closed: every implementation of Node lives
// in this package, and consumers switch over the concrete types.
package ast

import (
	"fmt"
	"strings"

	"github.com/xplshn/gpl0/pkg/token"
)

// Node is any AST node.
type Node interface {
	Pos() token.Token
	node()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

type Program struct {
	Tok   token.Token
	Block *Block
}

type Block struct {
	Tok    token.Token
	Consts []*ConstDecl
	Vars   *VarDecl
	Procs  []*Procedure
	Body   *Body
}

type ConstDecl struct {
	Tok   token.Token
	Name  string
	Value int64
}

type VarDecl struct {
	Tok   token.Token
	Names []string
	Toks  []token.Token
}

type Procedure struct {
	Tok       token.Token
	Name      string
	Params    []string
	ParamToks []token.Token
	Block     *Block
}

type Body struct {
	Tok   token.Token
	Stmts []Stmt
}

// --- Statements ---

type Assign struct {
	Tok  token.Token
	Var  string
	Expr Expr
}

type If struct {
	Tok  token.Token
	Cond Expr
	Then Stmt
	Else Stmt // nil when there is no else branch
}

type While struct {
	Tok  token.Token
	Cond Expr
	Body Stmt
}

type Call struct {
	Tok  token.Token
	Proc string
	Args []Expr
}

type Read struct {
	Tok  token.Token
	Vars []string
}

type Write struct {
	Tok   token.Token
	Exprs []Expr
}

// --- Expressions ---

type BinOp struct {
	Tok         token.Token
	Op          token.Type
	Left, Right Expr
}

type Odd struct {
	Tok  token.Token
	Expr Expr
}

type Num struct {
	Tok   token.Token
	Value int64
}

type Var struct {
	Tok  token.Token
	Name string
}

type Paren struct {
	Tok  token.Token
	Expr Expr
}

func (n *Program) Pos() token.Token   { return n.Tok }
func (n *Block) Pos() token.Token     { return n.Tok }
func (n *ConstDecl) Pos() token.Token { return n.Tok }
func (n *VarDecl) Pos() token.Token   { return n.Tok }
func (n *Procedure) Pos() token.Token { return n.Tok }
func (n *Body) Pos() token.Token      { return n.Tok }
func (n *Assign) Pos() token.Token    { return n.Tok }
func (n *If) Pos() token.Token        { return n.Tok }
func (n *While) Pos() token.Token     { return n.Tok }
func (n *Call) Pos() token.Token      { return n.Tok }
func (n *Read) Pos() token.Token      { return n.Tok }
func (n *Write) Pos() token.Token     { return n.Tok }
func (n *BinOp) Pos() token.Token     { return n.Tok }
func (n *Odd) Pos() token.Token       { return n.Tok }
func (n *Num) Pos() token.Token       { return n.Tok }
func (n *Var) Pos() token.Token       { return n.Tok }
func (n *Paren) Pos() token.Token     { return n.Tok }

func (*Program) node()   {}
func (*Block) node()     {}
func (*ConstDecl) node() {}
func (*VarDecl) node()   {}
func (*Procedure) node() {}
func (*Body) node()      {}
func (*Assign) node()    {}
func (*If) node()        {}
func (*While) node()     {}
func (*Call) node()      {}
func (*Read) node()      {}
func (*Write) node()     {}
func (*BinOp) node()     {}
func (*Odd) node()       {}
func (*Num) node()       {}
func (*Var) node()       {}
func (*Paren) node()     {}

// A Body is also a statement: nested begin...end blocks parse into one.
func (*Body) stmt()   {}
func (*Assign) stmt() {}
func (*If) stmt()     {}
func (*While) stmt()  {}
func (*Call) stmt()   {}
func (*Read) stmt()   {}
func (*Write) stmt()  {}

func (*BinOp) expr() {}
func (*Odd) expr()   {}
func (*Num) expr()   {}
func (*Var) expr()   {}
func (*Paren) expr() {}

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	var out []Node
	switch n := n.(type) {
	case *Program:
		out = append(out, n.Block)
	case *Block:
		for _, c := range n.Consts {
			out = append(out, c)
		}
		if n.Vars != nil {
			out = append(out, n.Vars)
		}
		for _, p := range n.Procs {
			out = append(out, p)
		}
		out = append(out, n.Body)
	case *Procedure:
		out = append(out, n.Block)
	case *Body:
		for _, s := range n.Stmts {
			out = append(out, s)
		}
	case *Assign:
		out = append(out, n.Expr)
	case *If:
		out = append(out, n.Cond, n.Then)
		if n.Else != nil {
			out = append(out, n.Else)
		}
	case *While:
		out = append(out, n.Cond, n.Body)
	case *Call:
		for _, a := range n.Args {
			out = append(out, a)
		}
	case *Write:
		for _, e := range n.Exprs {
			out = append(out, e)
		}
	case *BinOp:
		out = append(out, n.Left, n.Right)
	case *Odd:
		out = append(out, n.Expr)
	case *Paren:
		out = append(out, n.Expr)
	case *ConstDecl, *VarDecl, *Read, *Num, *Var:
	default:
		panic(fmt.Sprintf("ast: unhandled node %T", n))
	}
	return out
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Dump renders the tree as an indented outline, one node per line.
func Dump(n Node) string {
	var sb strings.Builder
	dump(&sb, n, 0)
	return sb.String()
}

func dump(sb *strings.Builder, n Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(Label(n))
	sb.WriteByte('\n')
	for _, c := range Children(n) {
		dump(sb, c, depth+1)
	}
}

// Label is the one-line description of a node used by Dump.
func Label(n Node) string {
	switch n := n.(type) {
	case *Program:
		return "Program"
	case *Block:
		return "Block"
	case *ConstDecl:
		return fmt.Sprintf("Const %s = %d", n.Name, n.Value)
	case *VarDecl:
		return "Var " + strings.Join(n.Names, ", ")
	case *Procedure:
		return fmt.Sprintf("Procedure %s(%s)", n.Name, strings.Join(n.Params, ", "))
	case *Body:
		return "Body"
	case *Assign:
		return "Assign " + n.Var
	case *If:
		return "If"
	case *While:
		return "While"
	case *Call:
		return "Call " + n.Proc
	case *Read:
		return "Read " + strings.Join(n.Vars, ", ")
	case *Write:
		return "Write"
	case *BinOp:
		return "BinOp " + n.Op.String()
	case *Odd:
		return "Odd"
	case *Num:
		return fmt.Sprintf("Num %d", n.Value)
	case *Var:
		return "Var " + n.Name
	case *Paren:
		return "Paren"
	default:
		panic(fmt.Sprintf("ast: unhandled node %T", n))
	}
}
