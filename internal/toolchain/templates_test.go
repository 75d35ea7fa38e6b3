package toolchain

import (
	"slices"
	"strings"
	"testing"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/isa"
)

func testTemplates(mode config.RunMode) Templates {
	cfg := config.Config{
		Name:       "DUT-kian-",
		DUTPath:    "/opt/kian/Vkian_sim",
		PluginPath: "/plugins/kian",
		SuiteEnv:   "/suite/env",
		ToolPrefix: config.DefaultToolPrefix,
		Mode:       mode,
	}
	return New(cfg, isa.Config{XLEN: 32, ABI: isa.ABI32})
}

func TestCompile(t *testing.T) {
	tpl := testTemplates(config.BuildAndRun)

	cmd, err := tpl.Compile("rv32imc", 32, "/suite/add-01.S", "my.elf", []string{"TEST_CASE_1=True", "XLEN=32"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if cmd.Name != "riscv32-unknown-elf-gcc" {
		t.Errorf("Name = %q", cmd.Name)
	}
	want := []string{
		"-march=rv32imc",
		"-static", "-mcmodel=medany", "-fvisibility=hidden", "-nostdlib", "-nostartfiles", "-g",
		"-T", "/plugins/kian/env/link.ld",
		"-I", "/plugins/kian/env",
		"-I", "/suite/env",
		"/suite/add-01.S", "-o", "my.elf",
		"-DTEST_CASE_1=True", "-DXLEN=32",
		"-mabi=ilp32",
	}
	if !slices.Equal(cmd.Args, want) {
		t.Errorf("Args =\n%v\nwant\n%v", cmd.Args, want)
	}
}

func TestCompileNoMacros(t *testing.T) {
	cmd, err := testTemplates(config.BuildAndRun).Compile("rv64i", 64, "/s.S", "my.elf", nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if cmd.Name != "riscv64-unknown-elf-gcc" {
		t.Errorf("Name = %q", cmd.Name)
	}
	for _, a := range cmd.Args {
		if strings.HasPrefix(a, "-D") {
			t.Errorf("unexpected macro flag %q", a)
		}
	}
}

func TestCompileTemplateErrors(t *testing.T) {
	tpl := testTemplates(config.BuildAndRun)
	tests := []struct {
		name   string
		arch   string
		source string
		macros []string
	}{
		{"empty source", "rv32i", "", nil},
		{"empty arch", "", "/s.S", nil},
		{"empty macro", "rv32i", "/s.S", []string{"A=1", ""}},
		{"macro with space", "rv32i", "/s.S", []string{"A=1 -DB"}},
		{"macro looks like flag", "rv32i", "/s.S", []string{"-o/etc/passwd"}},
		{"nameless macro", "rv32i", "/s.S", []string{"=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tpl.Compile(tt.arch, 32, tt.source, "my.elf", tt.macros)
			if errors.GetCode(err) != errors.ETemplate {
				t.Errorf("Compile() error = %v, want E_TEMPLATE", err)
			}
		})
	}
}

func TestMacroFlagsOnePerMacro(t *testing.T) {
	macros := []string{"A", "B=2", "C=x"}
	flags, err := MacroFlags(macros)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(flags, []string{"-DA", "-DB=2", "-DC=x"}) {
		t.Errorf("MacroFlags() = %v", flags)
	}
}

func TestSymbolQuery(t *testing.T) {
	q := testTemplates(config.BuildAndRun).SymbolQuery(32, "my.elf", SymbolBegin)
	if q.Command.Name != "riscv32-unknown-elf-nm" || !slices.Equal(q.Command.Args, []string{"my.elf"}) {
		t.Errorf("command = %+v", q.Command)
	}
	if q.Symbol != "begin_signature" {
		t.Errorf("Symbol = %q", q.Symbol)
	}
}

func TestSimulate(t *testing.T) {
	cmd := testTemplates(config.BuildAndRun).Simulate(0x80002000, 0x80002100, "/w/DUT-kian.signature", "my.elf")
	want := []string{"+signature=/w/DUT-kian.signature", "+sig_start=2147491840", "+sig_end=2147492096", "+firmware=my.elf"}
	if cmd.Inert || cmd.Name != "/opt/kian/Vkian_sim" || !slices.Equal(cmd.Args, want) {
		t.Errorf("Simulate() = %+v", cmd)
	}
}

func TestSimulateBuildOnlyIsInert(t *testing.T) {
	cmd := testTemplates(config.BuildOnly).Simulate(1, 2, "/w/DUT-kian.signature", "my.elf")
	if !cmd.Inert {
		t.Fatalf("Simulate() in build-only mode = %+v, want inert", cmd)
	}
	if cmd.Argv() != nil {
		t.Errorf("inert Argv() = %v, want nil", cmd.Argv())
	}
	if cmd.String() != `echo "NO RUN"` {
		t.Errorf("String() = %q", cmd.String())
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{Name: "riscv32-unknown-elf-gcc", Args: []string{"-DNAME=it's", "/a b/c.S", "-g", ""}}
	want := `riscv32-unknown-elf-gcc '-DNAME=it'\''s' '/a b/c.S' -g ''`
	if got := cmd.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

func TestBindWindowLeavesTemplateUntouched(t *testing.T) {
	tpl := testTemplates(config.BuildAndRun).SimulateTemplate("DUT-kian.signature", "my.elf")
	bound := BindWindow(tpl, 16, 32)

	if !slices.Contains(bound.Args, "+sig_start=16") || !slices.Contains(bound.Args, "+sig_end=32") {
		t.Errorf("bound args = %v", bound.Args)
	}
	if !slices.Contains(tpl.Args, "+sig_start="+PlaceholderSigStart) {
		t.Errorf("template mutated: %v", tpl.Args)
	}
	if noop := BindWindow(NoOp(), 1, 2); !noop.Inert {
		t.Error("binding an inert command should keep it inert")
	}
}
