// Package driver runs the compilation pipeline and keeps every intermediate
// artifact for inspection.
package driver

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/gpl0/pkg/ast"
	"github.com/xplshn/gpl0/pkg/codegen"
	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/lexer"
	"github.com/xplshn/gpl0/pkg/optimizer"
	"github.com/xplshn/gpl0/pkg/parser"
	"github.com/xplshn/gpl0/pkg/pcode"
	"github.com/xplshn/gpl0/pkg/symtab"
	"github.com/xplshn/gpl0/pkg/token"
	"github.com/xplshn/gpl0/pkg/vm"
)

type Artifacts struct {
	Hash      uint64
	Tokens    []token.Token
	AST       *ast.Program
	Symbols   *symtab.Scope
	IR        []ir.Quad
	Optimized []ir.Quad
	Log       []optimizer.LogEntry
	Program   *pcode.Program
}

// Stage names used to wrap errors.
const (
	StageLex     = "lex"
	StageParse   = "parse"
	StageSymbols = "symbols"
	StageIR      = "ir"
	StageCodegen = "codegen"
	StageRun     = "run"
)

// Compile runs every compile-time stage over src and stops at the first error.
// Errors are wrapped with the stage name; errors.As still reaches the stage's
// error type.
func Compile(src string, cfg *config.Config) (*Artifacts, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	art := &Artifacts{Hash: xxhash.Sum64String(src)}

	var err error
	if art.Tokens, err = lexer.Tokenize(src); err != nil {
		return nil, fmt.Errorf("%s: %w", StageLex, err)
	}
	if art.AST, err = parser.Parse(art.Tokens); err != nil {
		return nil, fmt.Errorf("%s: %w", StageParse, err)
	}
	if art.Symbols, err = symtab.Build(art.AST, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", StageSymbols, err)
	}
	irProg, err := codegen.NewContext(cfg).GenerateIR(art.AST, art.Symbols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageIR, err)
	}
	art.IR = irProg.Quads
	art.Optimized, art.Log = optimizer.Optimize(art.IR, cfg)
	if art.Program, err = pcode.Generate(art.Optimized, art.Symbols); err != nil {
		return nil, fmt.Errorf("%s: %w", StageCodegen, err)
	}
	return art, nil
}

// Run executes the compiled program to completion and returns the machine
// so callers can inspect its final state.
func Run(ctx context.Context, art *Artifacts, cfg *config.Config, out io.Writer, in vm.Input) (*vm.VM, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	m := vm.New(art.Program.Code, vm.ConfigFrom(cfg, out))
	if err := m.Run(ctx, in); err != nil {
		return m, fmt.Errorf("%s: %w", StageRun, err)
	}
	return m, nil
}

type cacheKey struct {
	hash uint64
	opts string
}

// Cache memoises Compile by source hash and optimizer settings. It is safe
// for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*Artifacts
	hits    int
}

func NewCache() *Cache { return &Cache{entries: make(map[cacheKey]*Artifacts)} }

func optionsKey(cfg *config.Config) string {
	var b []byte
	for f := config.Feature(0); f < config.FeatCount; f++ {
		if cfg.IsFeatureEnabled(f) {
			b = append(b, '1')
		} else {
			b = append(b, '0')
		}
	}
	return string(b)
}

// Compile returns cached artifacts for src when available. Artifacts are
// shared between callers and must not be modified.
func (c *Cache) Compile(src string, cfg *config.Config) (*Artifacts, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	key := cacheKey{hash: xxhash.Sum64String(src), opts: optionsKey(cfg)}
	c.mu.Lock()
	if art, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return art, nil
	}
	c.mu.Unlock()

	art, err := Compile(src, cfg)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = art
	c.mu.Unlock()
	return art, nil
}

// Stats returns the number of cached programs and cache hits.
func (c *Cache) Stats() (entries, hits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.hits
}
