package symtab

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/lexer"
	"github.com/xplshn/gpl0/pkg/parser"
)

func build(t *testing.T, src string, cfg *config.Config) (*Scope, error) {
	t.Helper()
	toks, err := lexer.Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	prog, err := parser.Parse(toks)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return Build(prog, cfg)
}

type entrySummary struct {
	Name    string
	Kind    Kind
	Level   int
	Address int
	Value   int64
}

func summarize(s *Scope) []entrySummary {
	var out []entrySummary
	for _, e := range s.Entries {
		out = append(out, entrySummary{e.Name, e.Kind, e.Level, e.Address, e.Value})
	}
	return out
}

const nested = `const m = 7;
var x, y, z;
procedure multiply(a, b);
  var q, r;
  procedure inner;
    var w;
  begin w := q end;
begin q := a end;
procedure other;
begin end;
begin end.`

func TestBuildScopes(t *testing.T) {
	global, err := build(t, nested, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []entrySummary{
		{"m", Constant, 0, 0, 7},
		{"x", Variable, 0, 3, 0},
		{"y", Variable, 0, 4, 0},
		{"z", Variable, 0, 5, 0},
		{"multiply", Procedure, 0, 0, 0},
		{"other", Procedure, 0, 0, 0},
	}
	if diff := cmp.Diff(want, summarize(global)); diff != "" {
		t.Errorf("global entries mismatch (-want +got):\n%s", diff)
	}
	if global.Label != MainLabel || global.Level != 0 || global.NextOffset != 6 {
		t.Errorf("global scope = %s level %d offset %d", global.Label, global.Level, global.NextOffset)
	}

	mul, ok := global.Find("proc_multiply")
	if !ok {
		t.Fatal("proc_multiply not found")
	}
	want = []entrySummary{
		{"a", Variable, 1, -2, 0},
		{"b", Variable, 1, -1, 0},
		{"q", Variable, 1, 3, 0},
		{"r", Variable, 1, 4, 0},
		{"inner", Procedure, 1, 0, 0},
	}
	if diff := cmp.Diff(want, summarize(mul)); diff != "" {
		t.Errorf("multiply entries mismatch (-want +got):\n%s", diff)
	}
	if mul.Proc.Size != 5 || mul.Proc.ParamCount != 2 {
		t.Errorf("multiply size %d params %d, want 5 and 2", mul.Proc.Size, mul.Proc.ParamCount)
	}

	inner, ok := global.Find("proc_inner")
	if !ok {
		t.Fatal("proc_inner not found")
	}
	if inner.Level != 2 || inner.Parent != mul {
		t.Errorf("inner level %d, parent %v", inner.Level, inner.Parent)
	}

	var labels []string
	global.Walk(func(s *Scope) { labels = append(labels, s.Label) })
	if diff := cmp.Diff([]string{"proc_main", "proc_multiply", "proc_inner", "proc_other"}, labels); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	global, err := build(t, nested, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	inner, _ := global.Find("proc_inner")

	tests := []struct {
		name     string
		wantDiff int
		wantKind Kind
	}{
		{"w", 0, Variable},
		{"q", 1, Variable},
		{"z", 2, Variable},
		{"m", 2, Constant},
		{"multiply", 2, Procedure},
		{"inner", 1, Procedure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, diff, ok := inner.Lookup(tt.name)
			if !ok {
				t.Fatalf("%s not found", tt.name)
			}
			if diff != tt.wantDiff || e.Kind != tt.wantKind {
				t.Errorf("got %s at level diff %d, want %s at %d", e.Kind, diff, tt.wantKind, tt.wantDiff)
			}
		})
	}

	if _, _, ok := inner.Lookup("nope"); ok {
		t.Error("undeclared name resolved")
	}
	if hops, ok := inner.HopsTo(global); !ok || hops != 2 {
		t.Errorf("HopsTo(global) = %d, %v", hops, ok)
	}
}

func TestDuplicateProcedureLabels(t *testing.T) {
	src := `procedure p; procedure p; begin end; begin end;
procedure q; procedure p; begin end; begin end;
begin end.`
	global, err := build(t, src, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	var labels []string
	global.Walk(func(s *Scope) { labels = append(labels, s.Label) })
	want := []string{"proc_main", "proc_p", "proc_p_1", "proc_q", "proc_p_2"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestRedeclare(t *testing.T) {
	src := "var x, y, x; begin end."

	var warnings bytes.Buffer
	cfg := config.NewConfig()
	cfg.Stderr = &warnings
	global, err := build(t, src, cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if global.NextOffset != 5 {
		t.Errorf("NextOffset = %d, want 5 (duplicate takes no slot)", global.NextOffset)
	}
	if !strings.Contains(warnings.String(), "'x' redeclared") {
		t.Errorf("expected a redeclare warning, got %q", warnings.String())
	}

	cfg = config.NewConfig()
	cfg.Stderr = &bytes.Buffer{}
	cfg.SetFeature(config.FeatStrictDecl, true)
	_, err = build(t, src, cfg)
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error with strict-decl, got %v", err)
	}
	if se.Tok.Column != 11 {
		t.Errorf("error column = %d, want 11", se.Tok.Column)
	}
}

func TestShadowWarning(t *testing.T) {
	var warnings bytes.Buffer
	cfg := config.NewConfig()
	cfg.Stderr = &warnings
	cfg.SetWarning(config.WarnShadow, true)
	if _, err := build(t, "var x; procedure p; var x; begin end; begin end.", cfg); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(warnings.String(), "'x' shadows the var declared on line 1") {
		t.Errorf("expected a shadow warning, got %q", warnings.String())
	}
}

func TestParameterPositions(t *testing.T) {
	src := "var a;\nprocedure p(b, a); begin b := a end;\nbegin call p(1, 2); a := 0 end."

	var warnings bytes.Buffer
	cfg := config.NewConfig()
	cfg.Stderr = &warnings
	cfg.SetWarning(config.WarnShadow, true)
	if _, err := build(t, src, cfg); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(warnings.String(), "2:16: warning: 'a' shadows the var declared on line 1") {
		t.Errorf("shadow warning does not point at the parameter: %q", warnings.String())
	}

	cfg = config.NewConfig()
	cfg.Stderr = &bytes.Buffer{}
	cfg.SetFeature(config.FeatStrictDecl, true)
	_, err := build(t, "procedure p(a, a); ; call p(1, 2).", cfg)
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error for a repeated parameter, got %v", err)
	}
	if se.Tok.Column != 16 {
		t.Errorf("error column = %d, want 16", se.Tok.Column)
	}
}

func TestUnusedWarnings(t *testing.T) {
	src := `var used, idle;
procedure helper(n);
  var scratch;
begin used := n end;
procedure orphan;
begin end;
procedure self;
begin call self end;
begin call helper(1); write(used) end.`

	tests := []struct {
		want   string
		absent bool
	}{
		{want: "1:11: warning: variable 'idle' is declared but never used [-Wextra]"},
		{want: "3:7: warning: variable 'scratch' is declared but never used [-Wextra]"},
		{want: "5:11: warning: procedure 'orphan' is never called [-Wextra]"},
		{want: "'used'", absent: true},
		{want: "'helper'", absent: true},
		{want: "'n'", absent: true},
		{want: "'self'", absent: true},
	}

	var warnings bytes.Buffer
	cfg := config.NewConfig()
	cfg.Stderr = &warnings
	global, err := build(t, src, cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, tt := range tests {
		if got := strings.Contains(warnings.String(), tt.want); got == tt.absent {
			t.Errorf("warning %q present = %v, want %v; warnings:\n%s", tt.want, got, !tt.absent, warnings.String())
		}
	}
	if e, _ := global.LookupLocal("used"); e.Refs != 2 {
		t.Errorf("used.Refs = %d, want 2", e.Refs)
	}

	warnings.Reset()
	cfg.SetWarning(config.WarnExtra, false)
	if _, err := build(t, src, cfg); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if warnings.Len() != 0 {
		t.Errorf("-Wno-extra still warned: %q", warnings.String())
	}
}
