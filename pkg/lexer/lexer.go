package lexer

import (
	"fmt"
	"strconv"
	"unicode"

	"github.com/xplshn/gpl0/pkg/token"
)

// Error is a lexical error: an unrecognized character or a malformed operator.
type Error struct {
	Char rune
	Tok  token.Token
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Tok.Line, e.Msg)
}

// Token returns the position of the offending input.
func (e *Error) Token() token.Token { return e.Tok }

type Lexer struct {
	source []rune
	pos    int
	line   int
	column int
}

func NewLexer(source []rune) *Lexer {
	return &Lexer{source: source, line: 1, column: 1}
}

// Tokenize lexes src completely. The returned slice always ends with an EOF token.
// On error no partial token list is returned.
func Tokenize(src string) ([]token.Token, error) {
	l := NewLexer([]rune(src))
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) Next() (token.Token, error) {
	l.skipWhitespace()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, startPos, startCol, startLine), nil
	}

	ch := l.peek()
	if isLetter(ch) {
		return l.identifierOrKeyword(startPos, startCol, startLine), nil
	}
	if isDigit(ch) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '+': return l.makeToken(token.Plus, startPos, startCol, startLine), nil
	case '-': return l.makeToken(token.Minus, startPos, startCol, startLine), nil
	case '*': return l.makeToken(token.Star, startPos, startCol, startLine), nil
	case '/': return l.makeToken(token.Slash, startPos, startCol, startLine), nil
	case '=': return l.makeToken(token.Eq, startPos, startCol, startLine), nil
	case '#': return l.makeToken(token.Neq, startPos, startCol, startLine), nil
	case '(': return l.makeToken(token.LParen, startPos, startCol, startLine), nil
	case ')': return l.makeToken(token.RParen, startPos, startCol, startLine), nil
	case ',': return l.makeToken(token.Comma, startPos, startCol, startLine), nil
	case ';': return l.makeToken(token.Semi, startPos, startCol, startLine), nil
	case '.': return l.makeToken(token.Dot, startPos, startCol, startLine), nil
	case '<':
		if l.match('>') {
			return l.makeToken(token.Neq, startPos, startCol, startLine), nil
		}
		return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine), nil
	case '>':
		return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine), nil
	case ':':
		if l.match('=') {
			return l.makeToken(token.Assign, startPos, startCol, startLine), nil
		}
		tok := l.makeToken(token.EOF, startPos, startCol, startLine)
		return tok, &Error{Char: ch, Tok: tok, Msg: "expected '=' after ':'"}
	}

	tok := l.makeToken(token.EOF, startPos, startCol, startLine)
	return tok, &Error{Char: ch, Tok: tok, Msg: fmt.Sprintf("unexpected character '%c'", ch)}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: string(l.source[startPos:l.pos]),
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespace() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for isLetter(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	tok := l.makeToken(token.Ident, startPos, startCol, startLine)
	tok.Type = token.LookupIdent(tok.Value)
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) (token.Token, error) {
	for isDigit(l.peek()) {
		l.advance()
	}
	tok := l.makeToken(token.Number, startPos, startCol, startLine)
	val, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return tok, &Error{Char: rune(tok.Value[0]), Tok: tok, Msg: fmt.Sprintf("integer constant out of range: %s", tok.Value)}
	}
	tok.Num = val
	return tok, nil
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, sPos, sCol, sLine)
	}
	return l.makeToken(elseType, sPos, sCol, sLine)
}

// PL/0 identifiers are ASCII; anything else falls through to the error path.
func isLetter(ch rune) bool { return ch < unicode.MaxASCII && (unicode.IsLetter(ch) || ch == '_') }
func isDigit(ch rune) bool  { return ch >= '0' && ch <= '9' }
