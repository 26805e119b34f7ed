package codegen

import (
	"fmt"
	"strconv"

	"github.com/xplshn/gpl0/pkg/ast"
	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/symtab"
	"github.com/xplshn/gpl0/pkg/token"
)

func (ctx *Context) codegenBody(body *ast.Body) error {
	if body == nil {
		return nil
	}
	for _, s := range body.Stmts {
		if err := ctx.codegenStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *Context) codegenStmt(node ast.Stmt) error {
	switch n := node.(type) {
	case nil:
		return nil
	case *ast.Body:
		return ctx.codegenBody(n)
	case *ast.Assign:
		return ctx.codegenAssign(n)
	case *ast.If:
		return ctx.codegenIf(n)
	case *ast.While:
		return ctx.codegenWhile(n)
	case *ast.Call:
		return ctx.codegenFuncCall(n)
	case *ast.Read:
		for _, name := range n.Vars {
			if err := ctx.checkStorable(n.Tok, name, "read into"); err != nil {
				return err
			}
			ctx.emit(ir.OpRead, ir.Empty, ir.Empty, name)
		}
		return nil
	case *ast.Write:
		for _, e := range n.Exprs {
			t, err := ctx.codegenExpr(e)
			if err != nil {
				return err
			}
			ctx.emit(ir.OpWrite, t, ir.Empty, ir.Empty)
		}
		return nil
	default:
		panic(fmt.Sprintf("codegen: unhandled statement %T", node))
	}
}

// checkStorable rejects writes to names that have no storage. Undeclared
// names are left to target resolution.
func (ctx *Context) checkStorable(tok token.Token, name, what string) error {
	e, _, ok := ctx.currentScope.Lookup(name)
	if !ok || e.Kind == symtab.Variable {
		return nil
	}
	return ctx.errorf(tok, "cannot %s %s '%s'", what, e.Kind, name)
}

func (ctx *Context) codegenAssign(n *ast.Assign) error {
	if err := ctx.checkStorable(n.Tok, n.Var, "assign to"); err != nil {
		return err
	}
	t, err := ctx.codegenExpr(n.Expr)
	if err != nil {
		return err
	}
	ctx.emit(ir.OpAssign, t, ir.Empty, n.Var)
	return nil
}

func (ctx *Context) codegenIf(n *ast.If) error {
	cond, err := ctx.codegenExpr(n.Cond)
	if err != nil {
		return err
	}
	elseLabel := ctx.newLabel()
	ctx.emit(ir.OpJz, cond, ir.Empty, elseLabel)
	if err := ctx.codegenStmt(n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		ctx.emit(ir.OpLabel, ir.Empty, ir.Empty, elseLabel)
		return nil
	}
	endLabel := ctx.newLabel()
	ctx.emit(ir.OpJmp, ir.Empty, ir.Empty, endLabel)
	ctx.emit(ir.OpLabel, ir.Empty, ir.Empty, elseLabel)
	if err := ctx.codegenStmt(n.Else); err != nil {
		return err
	}
	ctx.emit(ir.OpLabel, ir.Empty, ir.Empty, endLabel)
	return nil
}

func (ctx *Context) codegenWhile(n *ast.While) error {
	top, exit := ctx.newLabel(), ctx.newLabel()
	ctx.emit(ir.OpLabel, ir.Empty, ir.Empty, top)
	cond, err := ctx.codegenExpr(n.Cond)
	if err != nil {
		return err
	}
	ctx.emit(ir.OpJz, cond, ir.Empty, exit)
	if err := ctx.codegenStmt(n.Body); err != nil {
		return err
	}
	ctx.emit(ir.OpJmp, ir.Empty, ir.Empty, top)
	ctx.emit(ir.OpLabel, ir.Empty, ir.Empty, exit)
	return nil
}

func (ctx *Context) codegenFuncCall(n *ast.Call) error {
	e, _, ok := ctx.currentScope.Lookup(n.Proc)
	if !ok {
		return ctx.errorf(n.Tok, "call to undeclared procedure '%s'", n.Proc)
	}
	if e.Kind != symtab.Procedure || e.Scope == nil {
		return ctx.errorf(n.Tok, "'%s' is a %s, not a procedure", n.Proc, e.Kind)
	}
	if len(n.Args) != e.ParamCount {
		return ctx.errorf(n.Tok, "procedure '%s' expects %d argument(s), got %d", n.Proc, e.ParamCount, len(n.Args))
	}
	for _, arg := range n.Args {
		t, err := ctx.codegenExpr(arg)
		if err != nil {
			return err
		}
		ctx.emit(ir.OpParam, t, ir.Empty, ir.Empty)
	}
	ctx.emit(ir.OpCall, e.Scope.Label, strconv.Itoa(len(n.Args)), ir.Empty)
	return nil
}

// codegenExpr lowers an expression and returns the temporary holding its value.
func (ctx *Context) codegenExpr(node ast.Expr) (string, error) {
	switch n := node.(type) {
	case *ast.Num:
		t := ctx.newTemp()
		ctx.emit(ir.OpAssign, ir.ConstString(n.Value), ir.Empty, t)
		return t, nil
	case *ast.Var:
		t := ctx.newTemp()
		ctx.emit(ir.OpAssign, n.Name, ir.Empty, t)
		return t, nil
	case *ast.Paren:
		return ctx.codegenExpr(n.Expr)
	case *ast.Odd:
		a, err := ctx.codegenExpr(n.Expr)
		if err != nil {
			return "", err
		}
		t := ctx.newTemp()
		ctx.emit(ir.OpOdd, a, ir.Empty, t)
		return t, nil
	case *ast.BinOp:
		return ctx.codegenBinaryOp(n)
	default:
		panic(fmt.Sprintf("codegen: unhandled expression %T", node))
	}
}

func (ctx *Context) codegenBinaryOp(n *ast.BinOp) (string, error) {
	op, ok := binaryOps[n.Op]
	if !ok {
		return "", ctx.errorf(n.Tok, "unsupported operator '%s'", n.Op)
	}
	l, err := ctx.codegenExpr(n.Left)
	if err != nil {
		return "", err
	}
	r, err := ctx.codegenExpr(n.Right)
	if err != nil {
		return "", err
	}
	t := ctx.newTemp()
	ctx.emit(op, l, r, t)
	return t, nil
}

var binaryOps = map[token.Type]ir.Op{
	token.Plus:  ir.OpAdd,
	token.Minus: ir.OpSub,
	token.Star:  ir.OpMul,
	token.Slash: ir.OpDiv,
	token.Eq:    ir.OpEq,
	token.Neq:   ir.OpNeq,
	token.Lt:    ir.OpLt,
	token.Lte:   ir.OpLte,
	token.Gt:    ir.OpGt,
	token.Gte:   ir.OpGte,
}
