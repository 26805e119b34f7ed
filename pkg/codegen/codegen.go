package codegen

import (
	"fmt"
	"strconv"

	"github.com/xplshn/gpl0/pkg/ast"
	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/symtab"
	"github.com/xplshn/gpl0/pkg/token"
)

// Error is a semantic error found while lowering the AST.
type Error struct {
	Tok token.Token
	Msg string
}

func (e *Error) Error() string      { return fmt.Sprintf("line %d: %s", e.Tok.Line, e.Msg) }
func (e *Error) Token() token.Token { return e.Tok }

// Context holds all state of one IR generation run. Counters start at zero,
// so two contexts fed the same program produce identical quadruples.
type Context struct {
	cfg          *config.Config
	quads        []ir.Quad
	tempCount    int
	labelCount   int
	currentScope *symtab.Scope
}

func NewContext(cfg *config.Config) *Context {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Context{cfg: cfg}
}

func (ctx *Context) newTemp() string {
	t := ir.TempPrefix + strconv.Itoa(ctx.tempCount)
	ctx.tempCount++
	return t
}

func (ctx *Context) newLabel() string {
	l := "L" + strconv.Itoa(ctx.labelCount)
	ctx.labelCount++
	return l
}

func (ctx *Context) emit(op ir.Op, arg1, arg2, result string) {
	ctx.quads = append(ctx.quads, ir.Quad{ID: len(ctx.quads), Op: op, Arg1: arg1, Arg2: arg2, Result: result})
}

func (ctx *Context) errorf(tok token.Token, format string, args ...interface{}) error {
	return &Error{Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// GenerateIR lowers prog into quadruples. global must be the table built for
// prog by symtab.Build.
func (ctx *Context) GenerateIR(prog *ast.Program, global *symtab.Scope) (*ir.Program, error) {
	if prog == nil || global == nil {
		return nil, fmt.Errorf("codegen: nil program or symbol table")
	}
	ctx.quads, ctx.tempCount, ctx.labelCount = nil, 0, 0

	ctx.emit(ir.OpJmp, ir.Empty, ir.Empty, global.Label)
	if err := ctx.codegenProcedures(prog.Block, global); err != nil {
		return nil, err
	}
	ctx.currentScope = global
	ctx.emit(ir.OpLabel, ir.Empty, ir.Empty, global.Label)
	if err := ctx.codegenBody(prog.Block.Body); err != nil {
		return nil, err
	}
	ctx.emit(ir.OpEnd, ir.Empty, ir.Empty, ir.Empty)

	return &ir.Program{Quads: ctx.quads, Temps: ctx.tempCount, Labels: ctx.labelCount}, nil
}

// codegenProcedures emits every procedure declared in blk, innermost first.
// symtab.Build creates one child scope per declaration, in source order.
func (ctx *Context) codegenProcedures(blk *ast.Block, s *symtab.Scope) error {
	if len(blk.Procs) != len(s.Children) {
		return fmt.Errorf("codegen: scope %s has %d children for %d procedures", s.Name, len(s.Children), len(blk.Procs))
	}
	for i, proc := range blk.Procs {
		if err := ctx.codegenFuncDecl(proc, s.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *Context) codegenFuncDecl(proc *ast.Procedure, s *symtab.Scope) error {
	if err := ctx.codegenProcedures(proc.Block, s); err != nil {
		return err
	}
	ctx.currentScope = s
	ctx.emit(ir.OpLabel, ir.Empty, ir.Empty, s.Label)
	if err := ctx.codegenBody(proc.Block.Body); err != nil {
		return err
	}
	ctx.emit(ir.OpRet, ir.Empty, ir.Empty, ir.Empty)
	return nil
}

// GenerateIR is a convenience wrapper that runs a fresh Context.
func GenerateIR(prog *ast.Program, global *symtab.Scope, cfg *config.Config) (*ir.Program, error) {
	return NewContext(cfg).GenerateIR(prog, global)
}
