package lexer

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gpl0/pkg/token"
)

func types(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []token.Type
	}{
		{
			name: "declarations",
			src:  "const m = 7; var x, y;",
			want: []token.Type{token.Const, token.Ident, token.Eq, token.Number, token.Semi,
				token.Var, token.Ident, token.Comma, token.Ident, token.Semi, token.EOF},
		},
		{
			name: "two character operators",
			src:  ":= <= >= <> < > # =",
			want: []token.Type{token.Assign, token.Lte, token.Gte, token.Neq, token.Lt, token.Gt, token.Neq, token.Eq, token.EOF},
		},
		{
			name: "keywords ignore case",
			src:  "BEGIN While do ODD End",
			want: []token.Type{token.Begin, token.While, token.Do, token.Odd, token.End, token.EOF},
		},
		{
			name: "punctuation",
			src:  "call p(a, 1); write(x).",
			want: []token.Type{token.Call, token.Ident, token.LParen, token.Ident, token.Comma, token.Number, token.RParen,
				token.Semi, token.Write, token.LParen, token.Ident, token.RParen, token.Dot, token.EOF},
		},
		{
			name: "empty input",
			src:  " \n\t ",
			want: []token.Type{token.EOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := Tokenize(tt.src)
			if err != nil {
				t.Fatalf("Tokenize failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, types(toks)); diff != "" {
				t.Errorf("token types mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokenPositions(t *testing.T) {
	toks, err := Tokenize("var abc;\n  x := 42")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	type pos struct {
		Value        string
		Line, Column int
		Len          int
	}
	var got []pos
	for _, tok := range toks[:len(toks)-1] {
		got = append(got, pos{tok.Value, tok.Line, tok.Column, tok.Len})
	}
	want := []pos{
		{"var", 1, 1, 3},
		{"abc", 1, 5, 3},
		{";", 1, 8, 1},
		{"x", 2, 3, 1},
		{":=", 2, 5, 2},
		{"42", 2, 8, 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
	if toks[5].Num != 42 {
		t.Errorf("number value = %d, want 42", toks[5].Num)
	}
}

// Re-joining the lexemes with single spaces must lex to the same token types.
func TestLexemeRoundTrip(t *testing.T) {
	src := `const n = 10;
var i, s;
procedure add(a);
begin s := s + a end;
begin
  i := 0; s := 0;
  while i <= n do begin call add(i); i := i + 1 end;
  if odd s then write(s) else write(-s)
end.`
	first, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	var parts []string
	for _, tok := range first[:len(first)-1] {
		parts = append(parts, tok.Value)
	}
	second, err := Tokenize(strings.Join(parts, " "))
	if err != nil {
		t.Fatalf("Tokenize of joined lexemes failed: %v", err)
	}
	if diff := cmp.Diff(types(first), types(second)); diff != "" {
		t.Errorf("round trip changed tokens (-first +second):\n%s", diff)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantChar rune
		wantLine int
		wantMsg  string
	}{
		{"unknown character", "var x;\nx := 1 $ 2", '$', 2, "unexpected character '$'"},
		{"lone colon", "x : 1", ':', 1, "expected '=' after ':'"},
		{"non ascii letter", "var é;", 'é', 1, "unexpected character"},
		{"number too large", "x := 99999999999999999999", '9', 1, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := Tokenize(tt.src)
			if err == nil {
				t.Fatalf("expected an error, got tokens %v", toks)
			}
			if toks != nil {
				t.Errorf("expected no partial tokens, got %d", len(toks))
			}
			var le *Error
			if !errors.As(err, &le) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if le.Char != tt.wantChar {
				t.Errorf("Char = %q, want %q", le.Char, tt.wantChar)
			}
			if le.Tok.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", le.Tok.Line, tt.wantLine)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}
