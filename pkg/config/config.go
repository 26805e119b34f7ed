package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/gpl0/pkg/cli"
	"modernc.org/libqbe"
)

type Feature int

const (
	FeatOptimize Feature = iota
	FeatConstFold
	FeatCSE
	FeatDCE
	FeatLoopOpt
	FeatStrictDecl
	FeatEchoInput
	FeatCount
)

type Warning int

const (
	WarnRedeclare Warning = iota
	WarnShadow
	WarnDivZero
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

const DefaultStackSize = 2048

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	OptLevel   int
	StackSize  int
	TargetArch string
	QbeTarget  string
	// Stderr receives warnings. Nil means os.Stderr.
	Stderr io.Writer
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		OptLevel:   2,
		StackSize:  DefaultStackSize,
	}

	features := map[Feature]Info{
		FeatOptimize:   {"optimize", true, "Run the IR optimizer before target code generation."},
		FeatConstFold:  {"const-fold", true, "Constant propagation, folding and algebraic simplification."},
		FeatCSE:        {"cse", true, "Common-subexpression elimination within basic blocks."},
		FeatDCE:        {"dce", true, "Remove temporaries that are never read."},
		FeatLoopOpt:    {"loop-opt", true, "Loop-invariant motion and induction-variable strength reduction."},
		FeatStrictDecl: {"strict-decl", false, "Treat a redeclared name in one scope as an error."},
		FeatEchoInput:  {"echo-input", true, "Echo every value consumed by 'read' to the output stream."},
	}

	warnings := map[Warning]Info{
		WarnRedeclare: {"redeclare", true, "Warn when a name is declared twice in the same scope."},
		WarnShadow:    {"shadow", false, "Warn when a declaration hides a name from an enclosing scope."},
		WarnDivZero:   {"div-zero", true, "Warn about division by a constant zero."},
		WarnExtra:     {"extra", true, "Warn about unused variables and procedures that are never called."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget configures the QBE target used by the native backend.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) {
	if qbeTarget == "" {
		c.QbeTarget = libqbe.DefaultTarget(goos, goarch)
	} else {
		c.QbeTarget = qbeTarget
	}
	c.TargetArch = goarch

	switch c.QbeTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
	default:
		fmt.Fprintf(c.ErrWriter(), "gpl0: warning: unsupported QBE target '%s', native output assumes a 64-bit target.\n", c.QbeTarget)
	}
}

func (c *Config) ErrWriter() io.Writer {
	if c.Stderr == nil {
		return os.Stderr
	}
	return c.Stderr
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyOptLevel maps -O0/-O1/-O2 onto the individual optimizer features.
func (c *Config) ApplyOptLevel(level int) error {
	type levelSettings struct {
		feature Feature
		min     int
	}
	settings := []levelSettings{
		{FeatOptimize, 1},
		{FeatConstFold, 1},
		{FeatCSE, 1},
		{FeatDCE, 1},
		{FeatLoopOpt, 2},
	}
	if level < 0 || level > 2 {
		return fmt.Errorf("unsupported optimization level '%d'. Supported: 0, 1, 2", level)
	}
	c.OptLevel = level
	for _, s := range settings {
		c.SetFeature(s.feature, level >= s.min)
	}
	return nil
}

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
	}
}

// ProcessFlags applies a whitespace separated list such as "-Wno-shadow -Fstrict-decl".
func (c *Config) ProcessFlags(flagStr string) {
	for _, flag := range strings.Fields(flagStr) {
		c.applyFlag(flag)
	}
}

// SetupFlagGroups registers -F<feature> and -W<warning> toggles on fs and
// returns the entries so the caller can apply them after parsing.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	warnings = make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnings[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: new(bool), Disabled: new(bool)}
	}
	features = make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		features[i] = cli.FlagGroupEntry{Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: new(bool), Disabled: new(bool)}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning", "Available Warnings:", warnings)
	fs.AddFlagGroup("Feature Flags", "Enable or disable compiler features", "feature", "Available Features:", features)
	return warnings, features
}

// ApplyFlagGroups copies parsed group toggles back into the configuration.
func (c *Config) ApplyFlagGroups(warnings, features []cli.FlagGroupEntry) {
	for i, entry := range warnings {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range features {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}
