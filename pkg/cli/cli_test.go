package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	var (
		output  string
		verbose bool
		level   int
		inputs  []string
	)
	fs := NewFlagSet("gpl0")
	fs.String(&output, "output", "o", "", "Output file", "file")
	fs.Bool(&verbose, "verbose", "v", false, "Verbose output")
	fs.Int(&level, "opt", "O", 2, "Optimization level", "level")
	fs.List(&inputs, "input", "i", nil, "Input value", "n")

	args := []string{"-O1", "--output=out.qbe", "-v", "-i", "4", "--input", "5", "a.pl0", "--", "-b.pl0"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if output != "out.qbe" || !verbose || level != 1 {
		t.Errorf("output=%q verbose=%v level=%d", output, verbose, level)
	}
	if diff := cmp.Diff([]string{"4", "5"}, inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.pl0", "-b.pl0"}, fs.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown long flag", []string{"--nope"}, "unknown flag: --nope"},
		{"unknown shorthand", []string{"-z"}, "unknown shorthand flag: -z"},
		{"missing value", []string{"--opt"}, "flag needs an argument: --opt"},
		{"bad integer", []string{"-Ofast"}, "invalid integer value 'fast'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var level int
			fs := NewFlagSet("gpl0")
			fs.Int(&level, "opt", "O", 2, "Optimization level", "level")
			err := fs.Parse(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestFlagGroup(t *testing.T) {
	entries := []FlagGroupEntry{
		{Name: "shadow", Prefix: "W", Usage: "Warn on shadowing", Enabled: new(bool), Disabled: new(bool)},
		{Name: "extra", Prefix: "W", Usage: "Extra warnings", Enabled: new(bool), Disabled: new(bool)},
	}
	fs := NewFlagSet("gpl0")
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning", "Available Warnings:", entries)
	if err := fs.Parse([]string{"-Wshadow", "-Wno-extra"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !*entries[0].Enabled || *entries[0].Disabled {
		t.Error("-Wshadow not recorded")
	}
	if *entries[1].Enabled || !*entries[1].Disabled {
		t.Error("-Wno-extra not recorded")
	}
}

func TestAppHelp(t *testing.T) {
	var stdout bytes.Buffer
	app := NewApp("gpl0")
	app.Synopsis = "[options] <file.pl0>"
	app.Stdout = &stdout
	var level int
	app.FlagSet.Int(&level, "opt", "O", 2, "Optimization level", "level")
	app.FlagSet.AddFlagGroup("Feature Flags", "", "feature", "Available Features:",
		[]FlagGroupEntry{{Name: "dce", Prefix: "F", Usage: "Dead code elimination", Enabled: new(bool), Disabled: new(bool)}})
	app.Action = func([]string) error { return errors.New("action ran") }

	if err := app.Run([]string{"--help"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	help := stdout.String()
	for _, want := range []string{"Synopsis", "gpl0 [options] <file.pl0>", "-O, --opt <level>", "|2|", "Feature Flags", "-Fno-<feature>", "dce"} {
		if !strings.Contains(help, want) {
			t.Errorf("help does not contain %q:\n%s", want, help)
		}
	}
	if strings.Contains(help, "--Fdce") {
		t.Error("grouped flag listed under Options")
	}
}

func TestAppRun(t *testing.T) {
	var stderr bytes.Buffer
	app := NewApp("gpl0")
	app.Stderr = &stderr
	var got []string
	app.Action = func(args []string) error { got = args; return nil }

	if err := app.Run([]string{"x.pl0"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{"x.pl0"}, got); diff != "" {
		t.Errorf("action args mismatch (-want +got):\n%s", diff)
	}

	app = NewApp("gpl0")
	app.Stderr = &stderr
	if err := app.Run([]string{"--bogus"}); err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
	if !strings.Contains(stderr.String(), "Usage: gpl0") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if diff := cmp.Diff([]string{"one two", "three", "four"}, got); diff != "" {
		t.Errorf("wrapText mismatch (-want +got):\n%s", diff)
	}
	if wrapText("   ", 10) != nil {
		t.Error("blank text should wrap to nothing")
	}
}
