package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xplshn/gpl0/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.OptLevel != 2 || cfg.StackSize != DefaultStackSize {
		t.Errorf("OptLevel = %d, StackSize = %d", cfg.OptLevel, cfg.StackSize)
	}
	for f := Feature(0); f < FeatCount; f++ {
		want := f != FeatStrictDecl
		if got := cfg.IsFeatureEnabled(f); got != want {
			t.Errorf("feature %s enabled = %v, want %v", cfg.Features[f].Name, got, want)
		}
	}
	if cfg.IsWarningEnabled(WarnShadow) || !cfg.IsWarningEnabled(WarnRedeclare) {
		t.Error("unexpected default warning set")
	}
}

func TestApplyOptLevel(t *testing.T) {
	tests := []struct {
		level                 int
		fold, cse, dce, loops bool
	}{
		{0, false, false, false, false},
		{1, true, true, true, false},
		{2, true, true, true, true},
	}
	for _, tt := range tests {
		cfg := NewConfig()
		if err := cfg.ApplyOptLevel(tt.level); err != nil {
			t.Fatalf("ApplyOptLevel(%d) failed: %v", tt.level, err)
		}
		got := []bool{
			cfg.IsFeatureEnabled(FeatConstFold),
			cfg.IsFeatureEnabled(FeatCSE),
			cfg.IsFeatureEnabled(FeatDCE),
			cfg.IsFeatureEnabled(FeatLoopOpt),
		}
		want := []bool{tt.fold, tt.cse, tt.dce, tt.loops}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("-O%d: features = %v, want %v", tt.level, got, want)
				break
			}
		}
		if cfg.OptLevel != tt.level {
			t.Errorf("OptLevel = %d, want %d", cfg.OptLevel, tt.level)
		}
	}

	cfg := NewConfig()
	if err := cfg.ApplyOptLevel(3); err == nil {
		t.Error("expected an error for -O3")
	}
	if cfg.OptLevel != 2 {
		t.Errorf("failed ApplyOptLevel changed OptLevel to %d", cfg.OptLevel)
	}
}

func TestProcessFlags(t *testing.T) {
	cfg := NewConfig()
	cfg.ProcessFlags("-Wno-redeclare -Wshadow -Fstrict-decl -Fno-echo-input -Wbogus -Fbogus")
	if cfg.IsWarningEnabled(WarnRedeclare) {
		t.Error("-Wno-redeclare ignored")
	}
	if !cfg.IsWarningEnabled(WarnShadow) {
		t.Error("-Wshadow ignored")
	}
	if !cfg.IsFeatureEnabled(FeatStrictDecl) {
		t.Error("-Fstrict-decl ignored")
	}
	if cfg.IsFeatureEnabled(FeatEchoInput) {
		t.Error("-Fno-echo-input ignored")
	}

	cfg.ProcessFlags("-Wall")
	for w := Warning(0); w < WarnCount; w++ {
		if !cfg.IsWarningEnabled(w) {
			t.Errorf("-Wall left %s disabled", cfg.Warnings[w].Name)
		}
	}
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet("gpl0")
	warnings, features := cfg.SetupFlagGroups(fs)
	if err := fs.Parse([]string{"-Wshadow", "-Fno-dce", "prog.pl0"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg.ApplyFlagGroups(warnings, features)

	if !cfg.IsWarningEnabled(WarnShadow) {
		t.Error("-Wshadow not applied")
	}
	if cfg.IsFeatureEnabled(FeatDCE) {
		t.Error("-Fno-dce not applied")
	}
	if !cfg.IsFeatureEnabled(FeatCSE) {
		t.Error("untouched feature was disabled")
	}
	if args := fs.Args(); len(args) != 1 || args[0] != "prog.pl0" {
		t.Errorf("Args = %v", args)
	}
}

func TestSetTarget(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewConfig()
	cfg.Stderr = &buf

	cfg.SetTarget("linux", "arm64", "rv64")
	if cfg.QbeTarget != "rv64" || cfg.TargetArch != "arm64" {
		t.Errorf("target = %s/%s", cfg.QbeTarget, cfg.TargetArch)
	}
	if buf.Len() != 0 {
		t.Errorf("supported target warned: %q", buf.String())
	}

	cfg.SetTarget("linux", "amd64", "vax")
	if !strings.Contains(buf.String(), "unsupported QBE target 'vax'") {
		t.Errorf("no warning for unsupported target, got %q", buf.String())
	}

	cfg.SetTarget("linux", "amd64", "")
	if cfg.QbeTarget == "" {
		t.Error("default target not resolved")
	}
}
