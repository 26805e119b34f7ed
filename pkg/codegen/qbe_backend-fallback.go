//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/pcode"
)

func (b *qbeBackend) Generate(prog *pcode.Program, cfg *config.Config) (*bytes.Buffer, error) {
	fmt.Fprintln(cfg.ErrWriter(), "Self-contained QBE backend is not supported on Windows. Falling back to the system's 'qbe'.")
	if _, err := exec.LookPath("qbe"); err != nil {
		return nil, fmt.Errorf("QBE not found in PATH: %w", err)
	}

	qbeIL, err := b.GenerateIL(prog, cfg)
	if err != nil {
		return nil, err
	}

	inputFile, err := os.CreateTemp("", "gpl0-qbe-*.ssa")
	if err != nil {
		return nil, err
	}
	defer os.Remove(inputFile.Name())
	defer inputFile.Close()

	if _, err = inputFile.WriteString(qbeIL); err != nil {
		return nil, err
	}

	outputName := inputFile.Name() + ".s"
	cmd := exec.Command("qbe", "-o", outputName, "-t", cfg.QbeTarget, inputFile.Name())
	if err = cmd.Run(); err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IL:\n%s\n\nError: %w", qbeIL, err)
	}
	defer os.Remove(outputName)

	outputFile, err := os.Open(outputName)
	if err != nil {
		return nil, err
	}
	defer outputFile.Close()

	var asmBuf bytes.Buffer
	if _, err = io.Copy(&asmBuf, outputFile); err != nil {
		return nil, err
	}
	return &asmBuf, nil
}
