package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const indentUnit = 4

func indent(level int) string { return strings.Repeat(" ", indentUnit*level) }

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	val, err := strconv.ParseBool(s)
	if err != nil && s != "" {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val || s == ""
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	val, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }
func (v *intValue) Get() any       { return *v.p }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v *listValue) Get() any           { return *v.p }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

type FlagGroup struct {
	Name                 string
	Description          string
	Flags                []FlagGroupEntry
	GroupType            string
	AvailableFlagsHeader string
}

type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	args       []string
	flagGroups []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage, expectedType string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.Itoa(value), expectedType)
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, shorthand, usage, fmt.Sprintf("%v", value), expectedType)
}

func (f *FlagSet) AddFlagGroup(name, description, groupType, availableFlagsHeader string, entries []FlagGroupEntry) {
	for i := range entries {
		if entries[i].Enabled != nil {
			f.Bool(entries[i].Enabled, entries[i].Prefix+entries[i].Name, "", *entries[i].Enabled, entries[i].Usage)
		}
		if entries[i].Disabled != nil {
			f.Bool(entries[i].Disabled, entries[i].Prefix+"no-"+entries[i].Name, "", *entries[i].Disabled, "Disable '"+entries[i].Name+"'")
		}
	}
	f.flagGroups = append(f.flagGroups, FlagGroup{
		Name:                 name,
		Description:          description,
		Flags:                entries,
		GroupType:            groupType,
		AvailableFlagsHeader: availableFlagsHeader,
	})
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}
		var err error
		if strings.HasPrefix(arg, "--") {
			err = f.parseLong(arg[2:], arguments, &i)
		} else if name, _, _ := strings.Cut(arg[1:], "="); f.flags[name] != nil {
			// single-dash long form, e.g. -Wno-shadow or -O=1
			err = f.parseLong(arg[1:], arguments, &i)
		} else {
			err = f.parseShort(arg, arguments, &i)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *FlagSet) parseLong(body string, arguments []string, i *int) error {
	name, value, hasValue := strings.Cut(body, "=")
	if name == "" {
		return fmt.Errorf("empty flag name")
	}
	flag, ok := f.flags[name]
	if !ok {
		return fmt.Errorf("unknown flag: --%s", name)
	}
	if hasValue {
		return flag.Value.Set(value)
	}
	if _, isBool := flag.Value.(*boolValue); isBool {
		return flag.Value.Set("")
	}
	if *i+1 >= len(arguments) {
		return fmt.Errorf("flag needs an argument: --%s", name)
	}
	*i++
	return flag.Value.Set(arguments[*i])
}

func (f *FlagSet) parseShort(arg string, arguments []string, i *int) error {
	shorthand := arg[1:2]
	flag, ok := f.shorthands[shorthand]
	if !ok {
		return fmt.Errorf("unknown shorthand flag: -%s", shorthand)
	}
	if _, isBool := flag.Value.(*boolValue); isBool {
		return flag.Value.Set("")
	}
	value := arg[2:]
	if value == "" {
		if *i+1 >= len(arguments) {
			return fmt.Errorf("flag needs an argument: -%s", shorthand)
		}
		*i++
		value = arguments[*i]
	}
	return flag.Value.Set(value)
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
	Stdout      io.Writer
	Stderr      io.Writer
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name), Stdout: os.Stdout, Stderr: os.Stderr}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		a.writeUsage(a.Stderr)
		return err
	}
	if help {
		a.writeHelp(a.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) writeUsage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	fmt.Fprintf(&sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	fmt.Fprint(w, sb.String())
}

func (a *App) writeHelp(w io.Writer) {
	var sb strings.Builder
	termWidth := getTerminalWidth(w)

	optionFlags := a.optionFlags()
	leftWidth, usageWidth := 0, 0
	for _, flag := range optionFlags {
		leftWidth = max(leftWidth, len(formatFlagString(flag)))
		usageWidth = max(usageWidth, len(flag.Usage))
	}
	for _, group := range a.FlagSet.flagGroups {
		prefix := group.Flags[0].Prefix
		leftWidth = max(leftWidth, len(fmt.Sprintf("-%sno-<%s>", prefix, group.GroupType)))
		for _, entry := range group.Flags {
			leftWidth = max(leftWidth, len(entry.Name))
			usageWidth = max(usageWidth, len(entry.Usage))
		}
	}

	if len(a.Authors) > 0 {
		fmt.Fprintf(&sb, "\n%sCopyright (c): %s and contributors\n", indent(1), strings.Join(a.Authors, ", "))
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indent(1), a.Repository)
	}
	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indent(1), indent(2), a.Name, a.Synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n%s%s\n", indent(1), indent(2), a.Description)
	}

	if len(optionFlags) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indent(1))
		sort.Slice(optionFlags, func(i, j int) bool { return optionFlags[i].Name < optionFlags[j].Name })
		for _, flag := range optionFlags {
			right := ""
			if _, isBool := flag.Value.(*boolValue); !isBool && flag.DefValue != "" && flag.DefValue != "[]" {
				right = fmt.Sprintf("|%s|", flag.DefValue)
			}
			formatEntry(&sb, termWidth, formatFlagString(flag), flag.Usage, right, leftWidth, usageWidth)
		}
	}

	groups := make([]FlagGroup, len(a.FlagSet.flagGroups))
	copy(groups, a.FlagSet.flagGroups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, group := range groups {
		prefix := group.Flags[0].Prefix
		fmt.Fprintf(&sb, "\n%s%s\n", indent(1), group.Name)
		fmt.Fprintf(&sb, "%s%-*s Enable a specific %s\n", indent(2), leftWidth, fmt.Sprintf("-%s<%s>", prefix, group.GroupType), group.GroupType)
		fmt.Fprintf(&sb, "%s%-*s Disable a specific %s\n", indent(2), leftWidth, fmt.Sprintf("-%sno-<%s>", prefix, group.GroupType), group.GroupType)
		if group.AvailableFlagsHeader != "" {
			fmt.Fprintf(&sb, "%s%s\n", indent(1), group.AvailableFlagsHeader)
		}
		entries := make([]FlagGroupEntry, len(group.Flags))
		copy(entries, group.Flags)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, entry := range entries {
			formatEntry(&sb, termWidth, entry.Name, entry.Usage, "", leftWidth, usageWidth)
		}
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) optionFlags() []*Flag {
	grouped := make(map[string]bool)
	for _, group := range a.FlagSet.flagGroups {
		for _, entry := range group.Flags {
			grouped[entry.Prefix+entry.Name] = true
			grouped[entry.Prefix+"no-"+entry.Name] = true
		}
	}
	var out []*Flag
	for _, flag := range a.FlagSet.flags {
		if !grouped[flag.Name] {
			out = append(out, flag)
		}
	}
	return out
}

func formatFlagString(flag *Flag) string {
	var sb strings.Builder
	_, isBool := flag.Value.(*boolValue)
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", flag.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if !isBool && flag.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", flag.ExpectedType)
	}
	return sb.String()
}

func formatEntry(sb *strings.Builder, termWidth int, left, usage, right string, leftWidth, usageWidth int) {
	available := termWidth - (len(indent(2)) + leftWidth + 1 + 2 + len(right))
	if available < 10 {
		available = 10
	}
	lines := wrapText(usage, available)
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent(2), leftWidth, left, min(usageWidth, available), first, right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent(2), leftWidth, left, first)
	}
	pad := strings.Repeat(" ", leftWidth+1)
	for _, line := range lines[min(1, len(lines)):] {
		fmt.Fprintf(sb, "%s%s%s\n", indent(2), pad, line)
	}
}

func getTerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	if width < 20 {
		return 20
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+len(word)+1 > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
