package toolchain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/isa"
)

// Symbols bounding the signature region in every compiled test.
const (
	SymbolBegin = "begin_signature"
	SymbolEnd   = "end_signature"
)

// MacroFlagPrefix is prepended to each compile macro.
const MacroFlagPrefix = "-D"

// codegenFlags are fixed machine-specific flags: no standard library or
// start files, static medany code, debug info.
var codegenFlags = []string{
	"-static",
	"-mcmodel=medany",
	"-fvisibility=hidden",
	"-nostdlib",
	"-nostartfiles",
	"-g",
}

// Templates holds everything about command construction that does not
// depend on a particular test.
type Templates struct {
	// ToolPrefix is prepended to gcc/nm; "{xlen}" is replaced by the xlen.
	ToolPrefix string

	LinkerScript string
	IncludeDirs  []string
	ABI          string

	DUTPath string
	Mode    config.RunMode
}

// New builds the templates for a run from its configuration and resolved ISA.
func New(cfg config.Config, isaCfg isa.Config) Templates {
	includes := []string{cfg.PluginEnv()}
	if cfg.SuiteEnv != "" {
		includes = append(includes, cfg.SuiteEnv)
	}
	return Templates{
		ToolPrefix:   cfg.ToolPrefix,
		LinkerScript: cfg.LinkerScript(),
		IncludeDirs:  includes,
		ABI:          isaCfg.ABI,
		DUTPath:      cfg.DUTPath,
		Mode:         cfg.Mode,
	}
}

// Tool returns the toolchain binary name for xlen, e.g. "riscv32-unknown-elf-gcc".
func (t Templates) Tool(xlen int, tool string) string {
	return strings.ReplaceAll(t.ToolPrefix, "{xlen}", strconv.Itoa(xlen)) + tool
}

// MacroFlags renders one -D flag per macro.
// An empty macro, or one containing whitespace or starting with '-', is E_TEMPLATE.
func MacroFlags(macros []string) ([]string, error) {
	flags := make([]string, 0, len(macros))
	for i, m := range macros {
		if err := checkMacro(m); err != nil {
			return nil, errors.NewWithDetails(errors.ETemplate,
				fmt.Sprintf("macro %d (%q): %v", i, m, err),
				map[string]string{"field": "macros"})
		}
		flags = append(flags, MacroFlagPrefix+m)
	}
	return flags, nil
}

func checkMacro(m string) error {
	if m == "" {
		return fmt.Errorf("empty macro")
	}
	if strings.HasPrefix(m, "-") {
		return fmt.Errorf("macro must not start with '-'")
	}
	if strings.IndexFunc(m, func(r rune) bool { return unicode.IsSpace(r) || r == 0 }) >= 0 {
		return fmt.Errorf("macro must not contain whitespace")
	}
	if strings.HasPrefix(m, "=") {
		return fmt.Errorf("macro has no name")
	}
	return nil
}

// Compile renders the compile command for one test.
func (t Templates) Compile(arch string, xlen int, source, output string, macros []string) (Command, error) {
	if source == "" {
		return Command{}, errors.NewWithDetails(errors.ETemplate, "compile: empty source path", map[string]string{"field": "test_path"})
	}
	if output == "" {
		return Command{}, errors.New(errors.ETemplate, "compile: empty output path")
	}
	if arch == "" {
		return Command{}, errors.NewWithDetails(errors.ETemplate, "compile: empty architecture string", map[string]string{"field": "isa"})
	}
	flags, err := MacroFlags(macros)
	if err != nil {
		return Command{}, err
	}

	args := []string{"-march=" + arch}
	args = append(args, codegenFlags...)
	args = append(args, "-T", t.LinkerScript)
	for _, dir := range t.IncludeDirs {
		args = append(args, "-I", dir)
	}
	args = append(args, source, "-o", output)
	args = append(args, flags...)
	args = append(args, "-mabi="+t.ABI)

	return Command{Name: t.Tool(xlen, "gcc"), Args: args}, nil
}

// Query is a symbol-table lookup: the command lists the binary's symbols and
// Symbol is the entry whose address is wanted.
type Query struct {
	Command Command `yaml:"command" json:"command"`
	Symbol  string  `yaml:"symbol" json:"symbol"`
}

// SymbolQuery renders the symbol-table query for one symbol of binary.
func (t Templates) SymbolQuery(xlen int, binary, symbol string) Query {
	return Query{
		Command: Command{Name: t.Tool(xlen, "nm"), Args: []string{binary}},
		Symbol:  symbol,
	}
}

// Placeholders in a simulate template, bound once the window is resolved.
const (
	PlaceholderSigStart = "{sig_start}"
	PlaceholderSigEnd   = "{sig_end}"
)

// SimulateTemplate renders the DUT invocation with the signature window left
// as placeholders, or the inert no-op in build-only mode.
func (t Templates) SimulateTemplate(signature, binary string) Command {
	if t.Mode == config.BuildOnly {
		return NoOp()
	}
	return Command{
		Name: t.DUTPath,
		Args: []string{
			"+signature=" + signature,
			"+sig_start=" + PlaceholderSigStart,
			"+sig_end=" + PlaceholderSigEnd,
			"+firmware=" + binary,
		},
	}
}

// Simulate renders the DUT invocation for a resolved signature window.
// Addresses are rendered in decimal.
func (t Templates) Simulate(start, end uint64, signature, binary string) Command {
	return BindWindow(t.SimulateTemplate(signature, binary), start, end)
}

// BindWindow returns a copy of cmd with the window placeholders replaced by
// decimal addresses. Inert commands are returned unchanged.
func BindWindow(cmd Command, start, end uint64) Command {
	if cmd.Inert {
		return cmd
	}
	r := strings.NewReplacer(
		PlaceholderSigStart, strconv.FormatUint(start, 10),
		PlaceholderSigEnd, strconv.FormatUint(end, 10),
	)
	bound := Command{Name: cmd.Name, Args: make([]string, len(cmd.Args))}
	for i, a := range cmd.Args {
		bound.Args[i] = r.Replace(a)
	}
	return bound
}
