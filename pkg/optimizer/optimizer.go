// Package optimizer rewrites quadruple IR. Optimize never modifies the slice
// it is given; every rewrite it performs is recorded in the returned log.
package optimizer

import (
	"fmt"
	"strings"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/ir"
)

const (
	PassConstFold = "const-fold"
	PassCSE       = "cse"
	PassDCE       = "dce"
	PassLoop      = "loop-opt"
)

// LogEntry describes one rewrite. Before and After are empty when the entry
// is advisory or the quad was removed.
type LogEntry struct {
	Pass        string
	QuadID      int
	Description string
	Before      string
	After       string
}

type optimizer struct {
	cfg *config.Config
	log []LogEntry
}

func (o *optimizer) record(pass string, id int, before, after *ir.Quad, format string, args ...interface{}) {
	e := LogEntry{Pass: pass, QuadID: id, Description: fmt.Sprintf(format, args...)}
	if before != nil {
		e.Before = before.Text()
	}
	if after != nil {
		e.After = after.Text()
	}
	o.log = append(o.log, e)
}

type pass struct {
	feature config.Feature
	run     func([]ir.Quad) []ir.Quad
}

// Optimize runs the enabled passes in order: constant propagation and
// folding, common subexpressions, dead temporaries, loops.
func Optimize(quads []ir.Quad, cfg *config.Config) ([]ir.Quad, []LogEntry) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	out := ir.Renumber(ir.Clone(quads))
	if !cfg.IsFeatureEnabled(config.FeatOptimize) {
		return out, nil
	}
	o := &optimizer{cfg: cfg}
	passes := []pass{
		{config.FeatConstFold, o.constFold},
		{config.FeatCSE, o.cse},
		{config.FeatDCE, o.dce},
		{config.FeatLoopOpt, o.loops},
	}
	for _, p := range passes {
		if cfg.IsFeatureEnabled(p.feature) {
			out = ir.Renumber(p.run(out))
		}
	}
	return out, o.log
}

// FormatLog renders log as one line per entry.
func FormatLog(log []LogEntry) string {
	var sb strings.Builder
	for _, e := range log {
		fmt.Fprintf(&sb, "[%s] #%d %s", e.Pass, e.QuadID, e.Description)
		switch {
		case e.Before != "" && e.After != "":
			fmt.Fprintf(&sb, ": %s  =>  %s", e.Before, e.After)
		case e.Before != "":
			fmt.Fprintf(&sb, ": %s", e.Before)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
