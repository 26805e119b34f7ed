package driver

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gpl0/pkg/codegen"
	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/lexer"
	"github.com/xplshn/gpl0/pkg/parser"
	"github.com/xplshn/gpl0/pkg/pcode"
	"github.com/xplshn/gpl0/pkg/symtab"
	"github.com/xplshn/gpl0/pkg/vm"
)

const multiply = `const m = 7, n = 85;
var x, y, z;

procedure multiply(a, b);
  var q, r;
begin
  q := a; r := b; z := 0;
  while r > 0 do
  begin
    if odd r then z := z + q;
    q := 2 * q;
    r := r / 2
  end
end;

begin
  x := m; y := n;
  call multiply(x, y);
  write(z)
end.`

func quietConfig(t *testing.T, level int) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Stderr = &bytes.Buffer{}
	if err := cfg.ApplyOptLevel(level); err != nil {
		t.Fatalf("ApplyOptLevel failed: %v", err)
	}
	return cfg
}

func TestMultiply(t *testing.T) {
	for _, level := range []int{0, 1, 2} {
		cfg := quietConfig(t, level)
		art, err := Compile(multiply, cfg)
		if err != nil {
			t.Fatalf("-O%d: Compile failed: %v", level, err)
		}
		var out bytes.Buffer
		m, err := Run(context.Background(), art, cfg, &out, nil)
		if err != nil {
			t.Fatalf("-O%d: Run failed: %v", level, err)
		}
		if out.String() != "595\nprogram finished\n" {
			t.Errorf("-O%d: output = %q", level, out.String())
		}
		if m.Status() != vm.Halted {
			t.Errorf("-O%d: status = %s", level, m.Status())
		}
	}
}

func TestArtifacts(t *testing.T) {
	cfg := quietConfig(t, 2)
	art, err := Compile(multiply, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(art.Tokens) == 0 || art.AST == nil || art.Symbols == nil || art.Program == nil {
		t.Fatal("missing artifacts")
	}
	if len(art.Optimized) >= len(art.IR) {
		t.Errorf("optimizer did not shrink the program: %d -> %d quads", len(art.IR), len(art.Optimized))
	}
	if len(art.Log) == 0 {
		t.Error("expected optimizer log entries")
	}
	if _, ok := art.Program.Labels["proc_multiply"]; !ok {
		t.Error("proc_multiply has no address")
	}
}

func TestEchoInput(t *testing.T) {
	src := "var a, b; begin read(a, b); write(a - b) end."
	cfg := quietConfig(t, 2)
	art, err := Compile(src, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var out bytes.Buffer
	if _, err := Run(context.Background(), art, cfg, &out, vm.Values(10, 4)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := "input: 10\ninput: 4\n6\nprogram finished\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}

	cfg.SetFeature(config.FeatEchoInput, false)
	out.Reset()
	if _, err := Run(context.Background(), art, cfg, &out, vm.Values(10, 4)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "6\nprogram finished\n" {
		t.Errorf("output without echo = %q", out.String())
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		stage  string
		target interface{}
	}{
		{"lexical", "var x; x := 1 ? 2.", StageLex, new(*lexer.Error)},
		{"syntax", "var x; x = 1.", StageParse, new(*parser.Error)},
		{"redeclared with strict-decl", "var x, x; .", StageSymbols, new(*symtab.Error)},
		{"wrong argument count", "procedure p(a); ; call p.", StageIR, new(*codegen.Error)},
		{"undeclared variable", "begin x := 1 end.", StageCodegen, new(*pcode.ResolutionError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quietConfig(t, 2)
			cfg.SetFeature(config.FeatStrictDecl, true)
			art, err := Compile(tt.src, cfg)
			if err == nil {
				t.Fatalf("expected an error, got %d instructions", len(art.Program.Code))
			}
			if !strings.HasPrefix(err.Error(), tt.stage+": ") {
				t.Errorf("error %q is not prefixed with stage %q", err, tt.stage)
			}
			if !errors.As(err, tt.target) {
				t.Errorf("error %v (%T) does not unwrap to %T", err, errors.Unwrap(err), tt.target)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	cfg := quietConfig(t, 0)
	art, err := Compile("var a; begin a := 0; write(10 / a) end.", cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	var out bytes.Buffer
	m, err := Run(context.Background(), art, cfg, &out, nil)
	if !errors.Is(err, vm.ErrDivideByZero) {
		t.Fatalf("err = %v, want division by zero", err)
	}
	if !strings.HasPrefix(err.Error(), StageRun+": ") {
		t.Errorf("error %q is not prefixed with %q", err, StageRun)
	}
	if m.Status() != vm.Failed {
		t.Errorf("status = %s, want failed", m.Status())
	}

	// A fresh run of the same artifacts is unaffected by the failure.
	art, err = Compile("write(1).", cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	out.Reset()
	if _, err := Run(context.Background(), art, cfg, &out, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "1\nprogram finished\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestStackLimit(t *testing.T) {
	src := "procedure down; call down; call down."
	cfg := quietConfig(t, 2)
	cfg.StackSize = 64
	art, err := Compile(src, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	_, err = Run(context.Background(), art, cfg, nil, nil)
	if !errors.Is(err, vm.ErrStackOverflow) {
		t.Errorf("err = %v, want stack overflow", err)
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	o2 := quietConfig(t, 2)
	o0 := quietConfig(t, 0)

	first, err := c.Compile(multiply, o2)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := c.Compile(multiply, o2)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if first != second {
		t.Error("identical source and options compiled twice")
	}
	third, err := c.Compile(multiply, o0)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if third == first {
		t.Error("different optimization settings shared a cache entry")
	}
	if entries, hits := c.Stats(); entries != 2 || hits != 1 {
		t.Errorf("Stats = %d entries, %d hits; want 2, 1", entries, hits)
	}

	if _, err := c.Compile("var x; x := .", o2); err == nil {
		t.Error("expected a compile error")
	}
	if entries, _ := c.Stats(); entries != 2 {
		t.Errorf("failed compile was cached: %d entries", entries)
	}
}
