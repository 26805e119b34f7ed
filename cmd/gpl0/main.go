package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"github.com/xplshn/gpl0/pkg/ast"
	"github.com/xplshn/gpl0/pkg/cli"
	"github.com/xplshn/gpl0/pkg/codegen"
	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/driver"
	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/optimizer"
	"github.com/xplshn/gpl0/pkg/util"
	"github.com/xplshn/gpl0/pkg/vm"
	"golang.org/x/term"
)

const (
	emitRun   = "run"
	emitPcode = "pcode"
	emitQBE   = "qbe"
	emitAsm   = "asm"
	emitExe   = "exe"
)

var dumpKinds = []string{"tokens", "ast", "symbols", "ir", "opt", "log", "pcode"}

func main() {
	app := cli.NewApp("gpl0")
	app.Synopsis = "[options] <input.pl0>"
	app.Description = "A PL/0 compiler with a quadruple optimizer, a stack virtual machine and a native QBE backend."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/gpl0>"

	var (
		outFile    string
		target     string
		emit       string
		dumps      []string
		inputs     []string
		linkerArgs []string
		optLevel   int
		stackSize  int
		verbose    bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "a.out", "Place the output into <file>.", "file")
	fs.String(&target, "target", "t", "", "Set the QBE target ABI (default: host).", "target")
	fs.String(&emit, "emit", "e", emitRun, "What to produce: run, pcode, qbe, asm or exe.", "kind")
	fs.List(&dumps, "dump", "d", []string{}, "Print an intermediate artifact: "+strings.Join(dumpKinds, ", ")+".", "artifact")
	fs.List(&inputs, "input", "i", []string{}, "Supply a value for 'read' instead of standard input.", "n")
	fs.List(&linkerArgs, "linker-arg", "L", []string{}, "Pass an argument to the linker.", "arg")
	fs.Int(&optLevel, "opt", "O", 2, "Optimization level (0, 1, 2).", "level")
	fs.Int(&stackSize, "stack", "s", config.DefaultStackSize, "Virtual machine stack size in cells.", "cells")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation stage.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if len(inputFiles) != 1 {
			err := errors.New("exactly one input file is required")
			util.Report(os.Stderr, nil, err)
			return err
		}

		// -O first so explicit -F flags override it
		if err := cfg.ApplyOptLevel(optLevel); err != nil {
			util.Report(os.Stderr, nil, err)
			return err
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		cfg.StackSize = stackSize
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)

		progress := func(format string, args ...interface{}) {
			if verbose {
				fmt.Fprintf(os.Stderr, format+"\n", args...)
			}
		}

		path := inputFiles[0]
		content, err := os.ReadFile(path)
		if err != nil {
			util.Report(os.Stderr, nil, fmt.Errorf("could not read file '%s': %w", path, err))
			return err
		}
		src := &util.SourceFile{Name: path, Content: []rune(string(content))}

		progress("Compiling '%s' (-O%d)...", path, cfg.OptLevel)
		art, err := driver.Compile(string(content), cfg)
		if err != nil {
			util.Report(os.Stderr, src, err)
			return err
		}
		progress("%d tokens, %d quadruples, %d after optimization, %d instructions",
			len(art.Tokens), len(art.IR), len(art.Optimized), len(art.Program.Code))

		if err := dumpArtifacts(os.Stdout, art, dumps); err != nil {
			util.Report(os.Stderr, src, err)
			return err
		}

		switch emit {
		case emitRun:
			return run(art, cfg, inputs, progress)
		case emitPcode:
			fmt.Print(art.Program)
			return nil
		case emitQBE, emitAsm, emitExe:
			return native(art, cfg, emit, outFile, linkerArgs, progress)
		default:
			err := fmt.Errorf("unknown -emit kind '%s'", emit)
			util.Report(os.Stderr, src, err)
			return err
		}
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func dumpArtifacts(w io.Writer, art *driver.Artifacts, dumps []string) error {
	for _, d := range dumps {
		fmt.Fprintf(w, "--- %s ---\n", d)
		switch d {
		case "tokens":
			for _, tok := range art.Tokens {
				fmt.Fprintln(w, tok)
			}
		case "ast":
			fmt.Fprint(w, ast.Dump(art.AST))
		case "symbols":
			fmt.Fprint(w, art.Symbols)
		case "ir":
			fmt.Fprint(w, ir.Format(art.IR))
		case "opt":
			fmt.Fprint(w, ir.Format(art.Optimized))
		case "log":
			fmt.Fprint(w, optimizer.FormatLog(art.Log))
		case "pcode":
			fmt.Fprint(w, art.Program)
		default:
			return fmt.Errorf("unknown dump '%s', expected one of: %s", d, strings.Join(dumpKinds, ", "))
		}
	}
	return nil
}

func run(art *driver.Artifacts, cfg *config.Config, inputs []string, progress func(string, ...interface{})) error {
	var in vm.Input
	if len(inputs) > 0 {
		vals := make([]int64, 0, len(inputs))
		for _, s := range inputs {
			v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				err = fmt.Errorf("invalid -input value '%s'", s)
				util.Report(os.Stderr, nil, err)
				return err
			}
			vals = append(vals, v)
		}
		in = vm.Values(vals...)
	} else {
		var prompt io.Writer
		if term.IsTerminal(int(os.Stdin.Fd())) {
			prompt = os.Stderr
		}
		in = vm.NewReaderInput(os.Stdin, prompt)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	progress("Running %d instructions (stack %d cells)...", len(art.Program.Code), cfg.StackSize)
	if _, err := driver.Run(ctx, art, cfg, os.Stdout, in); err != nil {
		util.Report(os.Stderr, nil, err)
		return err
	}
	return nil
}

func selectBackend(name string) (codegen.Backend, error) {
	switch name {
	case "qbe":
		return codegen.NewQBEBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend '%s'", name)
	}
}

func native(art *driver.Artifacts, cfg *config.Config, emit, outFile string, linkerArgs []string, progress func(string, ...interface{})) error {
	backend, err := selectBackend("qbe")
	if err != nil {
		util.Report(os.Stderr, nil, err)
		return err
	}

	if emit == emitQBE {
		il, err := backend.GenerateIL(art.Program, cfg)
		if err != nil {
			util.Report(os.Stderr, nil, err)
			return err
		}
		fmt.Print(il)
		return nil
	}

	progress("Generating code for target '%s'...", cfg.QbeTarget)
	asm, err := backend.Generate(art.Program, cfg)
	if err != nil {
		util.Report(os.Stderr, nil, fmt.Errorf("backend code generation failed: %w", err))
		return err
	}
	if emit == emitAsm {
		fmt.Print(asm.String())
		return nil
	}

	progress("Linking to create '%s'...", outFile)
	if err := assembleAndLink(outFile, asm.String(), linkerArgs); err != nil {
		util.Report(os.Stderr, nil, fmt.Errorf("assembler/linker failed: %w", err))
		return err
	}
	progress("Done!")
	return nil
}

func assembleAndLink(outFile, mainAsm string, linkerArgs []string) error {
	asmFile, err := os.CreateTemp("", "gpl0-main-*.s")
	if err != nil {
		return fmt.Errorf("failed to create temp file for asm: %w", err)
	}
	defer os.Remove(asmFile.Name())
	if _, err := asmFile.WriteString(mainAsm); err != nil {
		asmFile.Close()
		return fmt.Errorf("failed to write to temp file for asm: %w", err)
	}
	asmFile.Close()

	ccArgs := []string{"-no-pie", "-o", outFile, asmFile.Name()}
	ccArgs = append(ccArgs, linkerArgs...)

	cmd := exec.Command("cc", ccArgs...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cc command failed: %w\nOutput:\n%s", err, string(output))
	}
	return nil
}
