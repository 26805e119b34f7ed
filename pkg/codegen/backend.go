package codegen

import (
	"bytes"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/pcode"
)

// Backend is the interface that all native code generation backends must implement.
type Backend interface {
	// Generate takes a stack-machine program and a configuration, and produces
	// target assembly as a byte buffer.
	Generate(prog *pcode.Program, cfg *config.Config) (*bytes.Buffer, error)
	// GenerateIL returns the backend's textual intermediate language.
	GenerateIL(prog *pcode.Program, cfg *config.Config) (string, error)
}
