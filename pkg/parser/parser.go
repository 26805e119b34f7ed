package parser

import (
	"fmt"
	"strings"

	"github.com/xplshn/gpl0/pkg/ast"
	"github.com/xplshn/gpl0/pkg/token"
)

// Error is a syntax error: the token found does not fit the grammar position.
type Error struct {
	Expected []token.Type
	Found    token.Token
	Context  string
}

func (e *Error) Error() string {
	want := make([]string, len(e.Expected))
	for i, t := range e.Expected {
		want[i] = "'" + t.String() + "'"
	}
	msg := fmt.Sprintf("line %d: expected %s, found %s", e.Found.Line, strings.Join(want, " or "), e.Found)
	if e.Context != "" {
		msg += " " + e.Context
	}
	return msg
}

func (e *Error) Token() token.Token { return e.Found }

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != token.EOF {
		tokens = append(tokens, token.Token{Type: token.EOF})
	}
	return &Parser{tokens: tokens, current: tokens[0]}
}

// Parse parses a complete program from tokens.
func Parse(tokens []token.Token) (*ast.Program, error) {
	return NewParser(tokens).Parse()
}

// syntaxPanic carries an *Error out of the recursive descent; Parse recovers it.
type syntaxPanic struct{ err *Error }

func (p *Parser) Parse() (prog *ast.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			sp, ok := r.(syntaxPanic)
			if !ok {
				panic(r)
			}
			prog, err = nil, sp.err
		}
	}()
	return p.parseProgram(), nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, context string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.fail(context, tokType)
	return token.Token{}
}

func (p *Parser) fail(context string, expected ...token.Type) {
	panic(syntaxPanic{&Error{Expected: expected, Found: p.current, Context: context}})
}

func (p *Parser) parseProgram() *ast.Program {
	tok := p.current
	block := p.parseBlock()
	p.expect(token.Dot, "at end of program")
	if !p.check(token.EOF) {
		p.fail("after '.'", token.EOF)
	}
	return &ast.Program{Tok: tok, Block: block}
}

func (p *Parser) parseBlock() *ast.Block {
	block := &ast.Block{Tok: p.current}
	if p.match(token.Const) {
		for {
			nameTok := p.expect(token.Ident, "in constant declaration")
			p.expect(token.Eq, "after constant name")
			numTok := p.expect(token.Number, "as constant value")
			block.Consts = append(block.Consts, &ast.ConstDecl{Tok: nameTok, Name: nameTok.Value, Value: numTok.Num})
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.Semi, "after constant declarations")
	}
	if p.check(token.Var) {
		decl := &ast.VarDecl{Tok: p.current}
		p.advance()
		for {
			nameTok := p.expect(token.Ident, "in variable declaration")
			decl.Names = append(decl.Names, nameTok.Value)
			decl.Toks = append(decl.Toks, nameTok)
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.Semi, "after variable declarations")
		block.Vars = decl
	}
	for p.check(token.Procedure) {
		block.Procs = append(block.Procs, p.parseProcedure())
	}
	block.Body = p.parseBody()
	return block
}

func (p *Parser) parseProcedure() *ast.Procedure {
	p.expect(token.Procedure, "")
	nameTok := p.expect(token.Ident, "as procedure name")
	proc := &ast.Procedure{Tok: nameTok, Name: nameTok.Value}
	if p.match(token.LParen) {
		if !p.check(token.RParen) {
			for {
				param := p.expect(token.Ident, "in parameter list")
				proc.Params = append(proc.Params, param.Value)
				proc.ParamToks = append(proc.ParamToks, param)
				if !p.match(token.Comma) {
					break
				}
			}
		}
		p.expect(token.RParen, "after parameter list")
	}
	p.expect(token.Semi, "after procedure header")
	proc.Block = p.parseBlock()
	p.expect(token.Semi, "after procedure body")
	return proc
}

// parseBody normalises the block's statement into a statement list.
func (p *Parser) parseBody() *ast.Body {
	tok := p.current
	stmt := p.parseStatement()
	if body, ok := stmt.(*ast.Body); ok {
		return body
	}
	body := &ast.Body{Tok: tok}
	if stmt != nil {
		body.Stmts = append(body.Stmts, stmt)
	}
	return body
}

// parseStatement returns nil for the empty statement.
func (p *Parser) parseStatement() ast.Stmt {
	tok := p.current
	switch tok.Type {
	case token.Ident:
		p.advance()
		p.expect(token.Assign, "in assignment")
		return &ast.Assign{Tok: tok, Var: tok.Value, Expr: p.parseExpression()}

	case token.Call:
		p.advance()
		name := p.expect(token.Ident, "after 'call'")
		call := &ast.Call{Tok: tok, Proc: name.Value}
		if p.match(token.LParen) {
			if !p.check(token.RParen) {
				call.Args = p.parseExprList()
			}
			p.expect(token.RParen, "after call arguments")
		}
		return call

	case token.Read:
		p.advance()
		p.expect(token.LParen, "after 'read'")
		read := &ast.Read{Tok: tok}
		for {
			name := p.expect(token.Ident, "in read list")
			read.Vars = append(read.Vars, name.Value)
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RParen, "after read list")
		return read

	case token.Write:
		p.advance()
		p.expect(token.LParen, "after 'write'")
		write := &ast.Write{Tok: tok, Exprs: p.parseExprList()}
		p.expect(token.RParen, "after write list")
		return write

	case token.Begin:
		p.advance()
		body := &ast.Body{Tok: tok}
		for {
			if s := p.parseStatement(); s != nil {
				body.Stmts = append(body.Stmts, s)
			}
			if !p.match(token.Semi) {
				break
			}
		}
		if !p.check(token.End) {
			p.fail("to close 'begin'", token.Semi, token.End)
		}
		p.advance()
		return body

	case token.If:
		p.advance()
		cond := p.parseCondition()
		p.expect(token.Then, "after if condition")
		stmt := &ast.If{Tok: tok, Cond: cond, Then: p.emptyToBody(p.parseStatement())}
		if p.match(token.Else) {
			stmt.Else = p.emptyToBody(p.parseStatement())
		}
		return stmt

	case token.While:
		p.advance()
		cond := p.parseCondition()
		p.expect(token.Do, "after while condition")
		return &ast.While{Tok: tok, Cond: cond, Body: p.emptyToBody(p.parseStatement())}
	}
	return nil
}

func (p *Parser) emptyToBody(s ast.Stmt) ast.Stmt {
	if s == nil {
		return &ast.Body{Tok: p.previous}
	}
	return s
}

func (p *Parser) parseExprList() []ast.Expr {
	var list []ast.Expr
	for {
		list = append(list, p.parseExpression())
		if !p.match(token.Comma) {
			return list
		}
	}
}

func (p *Parser) parseCondition() ast.Expr {
	tok := p.current
	if p.match(token.Odd) {
		return &ast.Odd{Tok: tok, Expr: p.parseExpression()}
	}
	left := p.parseExpression()
	opTok := p.current
	if !opTok.Type.IsRelOp() {
		p.fail("in condition", token.Eq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte)
	}
	p.advance()
	right := p.parseExpression()
	return &ast.BinOp{Tok: opTok, Op: opTok.Type, Left: left, Right: right}
}

func (p *Parser) parseExpression() ast.Expr {
	tok := p.current
	var left ast.Expr
	switch {
	case p.match(token.Minus):
		zero := &ast.Num{Tok: tok, Value: 0}
		left = &ast.BinOp{Tok: tok, Op: token.Minus, Left: zero, Right: p.parseTerm()}
	case p.match(token.Plus):
		left = p.parseTerm()
	default:
		left = p.parseTerm()
	}
	for p.check(token.Plus) || p.check(token.Minus) {
		opTok := p.current
		p.advance()
		left = &ast.BinOp{Tok: opTok, Op: opTok.Type, Left: left, Right: p.parseTerm()}
	}
	return left
}

func (p *Parser) parseTerm() ast.Expr {
	left := p.parseFactor()
	for p.check(token.Star) || p.check(token.Slash) {
		opTok := p.current
		p.advance()
		left = &ast.BinOp{Tok: opTok, Op: opTok.Type, Left: left, Right: p.parseFactor()}
	}
	return left
}

func (p *Parser) parseFactor() ast.Expr {
	tok := p.current
	switch {
	case p.match(token.Ident):
		return &ast.Var{Tok: tok, Name: tok.Value}
	case p.match(token.Number):
		return &ast.Num{Tok: tok, Value: tok.Num}
	case p.match(token.LParen):
		expr := p.parseExpression()
		p.expect(token.RParen, "after parenthesized expression")
		return &ast.Paren{Tok: tok, Expr: expr}
	}
	p.fail("in expression", token.Ident, token.Number, token.LParen)
	return nil
}
