// Package symtab builds the tree of lexical scopes for a PL/0 program and
// assigns every variable its frame offset.
//
// Frame layout, relative to a procedure's base pointer:
//
//	-n .. -1   parameters, first parameter lowest
//	 0         static link
//	 1         dynamic link
//	 2         return address
//	 3 ..      locals, then compiler temporaries
package symtab

import (
	"fmt"
	"strings"

	"github.com/xplshn/gpl0/pkg/ast"
	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/token"
	"github.com/xplshn/gpl0/pkg/util"
)

// FrameHeader is the number of cells reserved at the bottom of every frame.
const FrameHeader = 3

// MainLabel is the code label of the global scope.
const MainLabel = "proc_main"

const procPrefix = "proc_"

type Kind int

const (
	Constant Kind = iota
	Variable
	Procedure
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "const"
	case Variable:
		return "var"
	case Procedure:
		return "procedure"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Entry struct {
	Name string
	Kind Kind
	// Value holds a constant's value.
	Value int64
	// Level is the lexical level of the declaring scope.
	Level int
	// Address is a variable's frame offset.
	Address int
	// Size is a procedure's frame size (header, locals), back-filled after its body.
	Size       int
	ParamCount int
	// Scope is the child scope created by a procedure entry.
	Scope *Scope
	Tok   token.Token
	// Refs counts the statements that name this entry.
	Refs int
}

type Scope struct {
	Name       string
	Label      string
	Level      int
	Entries    []*Entry
	Children   []*Scope
	Parent     *Scope
	NextOffset int
	// Proc is the entry in the parent scope that declared this scope; nil for the global scope.
	Proc *Entry
}

// Error is a semantic error found while building the table.
type Error struct {
	Tok token.Token
	Msg string
}

func (e *Error) Error() string      { return fmt.Sprintf("line %d: %s", e.Tok.Line, e.Msg) }
func (e *Error) Token() token.Token { return e.Tok }

func newScope(name, label string, parent *Scope) *Scope {
	s := &Scope{Name: name, Label: label, Parent: parent, NextOffset: FrameHeader}
	if parent != nil {
		s.Level = parent.Level + 1
		parent.Children = append(parent.Children, s)
	}
	return s
}

// IsProcLabel reports whether label names a scope entry point.
func IsProcLabel(label string) bool { return strings.HasPrefix(label, procPrefix) }

// LookupLocal finds name among this scope's own entries.
func (s *Scope) LookupLocal(name string) (*Entry, bool) {
	for _, e := range s.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Lookup resolves name from this scope outwards. levelDiff is the number of
// static-link hops from s to the declaring scope.
func (s *Scope) Lookup(name string) (entry *Entry, levelDiff int, ok bool) {
	for cur, hops := s, 0; cur != nil; cur, hops = cur.Parent, hops+1 {
		if e, found := cur.LookupLocal(name); found {
			return e, hops, true
		}
	}
	return nil, 0, false
}

// HopsTo returns the number of parent links from s up to ancestor.
func (s *Scope) HopsTo(ancestor *Scope) (int, bool) {
	for cur, hops := s, 0; cur != nil; cur, hops = cur.Parent, hops+1 {
		if cur == ancestor {
			return hops, true
		}
	}
	return 0, false
}

// Walk visits s and every descendant scope in declaration order.
func (s *Scope) Walk(fn func(*Scope)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// Find returns the scope whose code label is label.
func (s *Scope) Find(label string) (*Scope, bool) {
	var found *Scope
	s.Walk(func(c *Scope) {
		if found == nil && c.Label == label {
			found = c
		}
	})
	return found, found != nil
}

// String renders the scope tree as a table, one entry per line.
func (s *Scope) String() string {
	var sb strings.Builder
	s.Walk(func(c *Scope) {
		fmt.Fprintf(&sb, "scope %s (level %d, label %s, frame %d)\n", c.Name, c.Level, c.Label, c.NextOffset)
		for _, e := range c.Entries {
			switch e.Kind {
			case Constant:
				fmt.Fprintf(&sb, "  %-12s const     value=%d\n", e.Name, e.Value)
			case Variable:
				fmt.Fprintf(&sb, "  %-12s var       level=%d addr=%d\n", e.Name, e.Level, e.Address)
			case Procedure:
				fmt.Fprintf(&sb, "  %-12s procedure level=%d size=%d params=%d\n", e.Name, e.Level, e.Size, e.ParamCount)
			}
		}
	})
	return sb.String()
}

type builder struct {
	cfg    *config.Config
	labels map[string]int
	bodies []scopedBody
}

type scopedBody struct {
	body  *ast.Body
	scope *Scope
}

// Build declares every name in prog and returns the global scope.
func Build(prog *ast.Program, cfg *config.Config) (*Scope, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	b := &builder{cfg: cfg, labels: map[string]int{MainLabel: 1}}
	global := newScope("main", MainLabel, nil)
	if err := b.block(prog.Block, global); err != nil {
		return nil, err
	}
	for _, sb := range b.bodies {
		countRefs(sb.body, sb.scope)
	}
	b.reportUnused(global)
	return global, nil
}

// countRefs resolves every name a body mentions and bumps its entry's Refs.
// Unresolved names are left for code generation to report.
func countRefs(body *ast.Body, s *Scope) {
	ref := func(name string) {
		if e, _, ok := s.Lookup(name); ok {
			e.Refs++
		}
	}
	ast.Walk(body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Var:
			ref(n.Name)
		case *ast.Assign:
			ref(n.Var)
		case *ast.Read:
			for _, name := range n.Vars {
				ref(name)
			}
		case *ast.Call:
			ref(n.Proc)
		}
		return true
	})
}

func (b *builder) reportUnused(global *Scope) {
	global.Walk(func(s *Scope) {
		for _, e := range s.Entries {
			if e.Refs > 0 {
				continue
			}
			switch {
			case e.Kind == Variable && e.Address >= FrameHeader:
				util.Warn(b.cfg, config.WarnExtra, e.Tok, "variable '%s' is declared but never used", e.Name)
			case e.Kind == Procedure:
				util.Warn(b.cfg, config.WarnExtra, e.Tok, "procedure '%s' is never called", e.Name)
			}
		}
	})
}

func (b *builder) uniqueLabel(name string) string {
	label := procPrefix + name
	n := b.labels[label]
	b.labels[label] = n + 1
	if n == 0 {
		return label
	}
	for {
		candidate := fmt.Sprintf("%s_%d", label, n)
		if b.labels[candidate] == 0 {
			b.labels[candidate] = 1
			return candidate
		}
		n++
	}
}

// declare registers e in s. It returns false when the name was already
// declared there, in which case the first declaration is kept.
func (b *builder) declare(s *Scope, e *Entry) (bool, error) {
	if _, dup := s.LookupLocal(e.Name); dup {
		if b.cfg.IsFeatureEnabled(config.FeatStrictDecl) {
			return false, &Error{Tok: e.Tok, Msg: fmt.Sprintf("'%s' redeclared in scope '%s'", e.Name, s.Name)}
		}
		util.Warn(b.cfg, config.WarnRedeclare, e.Tok, "'%s' redeclared in scope '%s', keeping the first declaration", e.Name, s.Name)
		return false, nil
	}
	if s.Parent != nil {
		if outer, _, found := s.Parent.Lookup(e.Name); found {
			util.Warn(b.cfg, config.WarnShadow, e.Tok, "'%s' shadows the %s declared on line %d", e.Name, outer.Kind, outer.Tok.Line)
		}
	}
	s.Entries = append(s.Entries, e)
	return true, nil
}

func (b *builder) block(blk *ast.Block, s *Scope) error {
	for _, c := range blk.Consts {
		if _, err := b.declare(s, &Entry{Name: c.Name, Kind: Constant, Value: c.Value, Level: s.Level, Tok: c.Tok}); err != nil {
			return err
		}
	}
	if blk.Vars != nil {
		for i, name := range blk.Vars.Names {
			e := &Entry{Name: name, Kind: Variable, Level: s.Level, Address: s.NextOffset, Tok: blk.Vars.Toks[i]}
			ok, err := b.declare(s, e)
			if err != nil {
				return err
			}
			if ok {
				s.NextOffset++
			}
		}
	}
	for _, proc := range blk.Procs {
		if err := b.procedure(proc, s); err != nil {
			return err
		}
	}
	b.bodies = append(b.bodies, scopedBody{blk.Body, s})
	return nil
}

func (b *builder) procedure(proc *ast.Procedure, s *Scope) error {
	entry := &Entry{Name: proc.Name, Kind: Procedure, Level: s.Level, ParamCount: len(proc.Params), Tok: proc.Tok}
	ok, err := b.declare(s, entry)
	if err != nil {
		return err
	}
	child := newScope(proc.Name, b.uniqueLabel(proc.Name), s)
	if ok {
		entry.Scope = child
		child.Proc = entry
	} else {
		// A duplicate procedure still gets its own scope so its body can be
		// checked and emitted, but nothing can call it.
		child.Proc = &Entry{Name: proc.Name, Kind: Procedure, Level: s.Level, ParamCount: len(proc.Params), Tok: proc.Tok, Scope: child}
	}

	n := len(proc.Params)
	for i, name := range proc.Params {
		param := &Entry{Name: name, Kind: Variable, Level: child.Level, Address: i - n, Tok: proc.ParamToks[i]}
		if _, err := b.declare(child, param); err != nil {
			return err
		}
	}
	if err := b.block(proc.Block, child); err != nil {
		return err
	}
	child.Proc.Size = child.NextOffset
	return nil
}
