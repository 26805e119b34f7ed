package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/token"
	"golang.org/x/term"
)

// SourceFile tracks the name and content of the file being compiled.
type SourceFile struct {
	Name    string
	Content []rune
}

// Positioned is implemented by every stage error that can point into the source.
type Positioned interface {
	error
	Token() token.Token
}

const (
	cRed    = "\033[31m"
	cYellow = "\033[33m"
	cGreen  = "\033[32m"
	cNone   = "\033[0m"
)

type painter bool

func (p painter) paint(color, s string) string {
	if !p {
		return s
	}
	return color + s + cNone
}

// colorFor reports whether w is a terminal that should receive ANSI colours.
func colorFor(w io.Writer) painter {
	f, ok := w.(*os.File)
	return painter(ok && term.IsTerminal(int(f.Fd())))
}

// Report prints err as "file:line:col: error: msg" followed by the source line
// and a caret when the error carries a position.
func Report(w io.Writer, src *SourceFile, err error) {
	p := colorFor(w)
	name := "<input>"
	if src != nil && src.Name != "" {
		name = src.Name
	}
	var pe Positioned
	if errors.As(err, &pe) && pe.Token().Line > 0 {
		tok := pe.Token()
		fmt.Fprintf(w, "%s:%d:%d: %s %s\n", name, tok.Line, tok.Column, p.paint(cRed, "error:"), err)
		printErrorLine(w, p, src, tok)
		return
	}
	fmt.Fprintf(w, "%s: %s %s\n", name, p.paint(cRed, "error:"), err)
}

// Warn prints a formatted warning if the corresponding warning is enabled.
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	w := cfg.ErrWriter()
	p := colorFor(w)
	fmt.Fprintf(w, "%d:%d: %s ", tok.Line, tok.Column, p.paint(cYellow, "warning:"))
	fmt.Fprintf(w, format, args...)
	fmt.Fprintf(w, " [-W%s]\n", cfg.Warnings[wt].Name)
}

// Warnf prints a warning that has no source position.
func Warnf(cfg *config.Config, wt config.Warning, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	w := cfg.ErrWriter()
	fmt.Fprintf(w, "%s ", colorFor(w).paint(cYellow, "warning:"))
	fmt.Fprintf(w, format, args...)
	fmt.Fprintf(w, " [-W%s]\n", cfg.Warnings[wt].Name)
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, p painter, src *SourceFile, tok token.Token) {
	if src == nil || tok.Line == 0 {
		return
	}
	line, ok := SourceLine(src.Content, tok.Line)
	if !ok {
		return
	}
	fmt.Fprintf(w, "  %s\n", line)
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), p.paint(cGreen, caret))
}

// SourceLine returns the 1-based line n of content without its newline.
func SourceLine(content []rune, n int) (string, bool) {
	lineStart := 0
	for i, r := range content {
		if n <= 1 {
			break
		}
		if r == '\n' {
			n--
			lineStart = i + 1
		}
	}
	if n > 1 {
		return "", false
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}
	return strings.TrimRight(string(content[lineStart:lineEnd]), "\r"), true
}
