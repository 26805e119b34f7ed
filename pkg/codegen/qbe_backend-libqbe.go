//go:build !windows

package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/pcode"
	"modernc.org/libqbe"
)

func (b *qbeBackend) Generate(prog *pcode.Program, cfg *config.Config) (*bytes.Buffer, error) {
	qbeIL, err := b.GenerateIL(prog, cfg)
	if err != nil {
		return nil, err
	}

	var asmBuf bytes.Buffer
	err = libqbe.Main(cfg.QbeTarget, "input.ssa", strings.NewReader(qbeIL), &asmBuf, nil)
	if err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IL:\n%s\n\nlibqbe error: %w", qbeIL, err)
	}
	return &asmBuf, nil
}
