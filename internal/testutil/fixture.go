package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Fixture is a complete plugin and suite tree on disk.
type Fixture struct {
	Root         string
	ConfigPath   string
	TestListPath string
	DUTPath      string
	WorkDir      string

	// Tests maps test name to its work dir.
	Tests map[string]string
}

// FixtureOpts tweaks the generated tree.
type FixtureOpts struct {
	Tests     []string // default: add-01, add-02
	XLEN      []int    // default: [32]
	ISA       string   // default: RV32IMC
	Jobs      int      // default: 2
	TargetRun string   // written verbatim when set
	Macros    []string // default: TEST_CASE_1=True
}

// NewFixture writes a plugin tree, ISA and platform specs, test sources,
// a test list and config.yaml under t.TempDir().
func NewFixture(t *testing.T, opts FixtureOpts) *Fixture {
	t.Helper()
	if len(opts.Tests) == 0 {
		opts.Tests = []string{"add-01", "add-02"}
	}
	if len(opts.XLEN) == 0 {
		opts.XLEN = []int{32}
	}
	if opts.ISA == "" {
		opts.ISA = "RV32IMC"
	}
	if opts.Jobs == 0 {
		opts.Jobs = 2
	}
	if opts.Macros == nil {
		opts.Macros = []string{"TEST_CASE_1=True"}
	}

	root := t.TempDir()
	f := &Fixture{
		Root:         root,
		ConfigPath:   filepath.Join(root, "config.yaml"),
		TestListPath: filepath.Join(root, "test_list.yaml"),
		DUTPath:      filepath.Join(root, "bin", "Vkian_sim"),
		WorkDir:      filepath.Join(root, "work"),
		Tests:        make(map[string]string, len(opts.Tests)),
	}

	writeFile(t, filepath.Join(root, "plugin-kian", "env", "link.ld"), "OUTPUT_ARCH( \"riscv\" )\n", 0o644)
	writeFile(t, filepath.Join(root, "suite", "env", "arch_test.h"), "\n", 0o644)
	writeFile(t, f.DUTPath, "#!/bin/sh\nexit 0\n", 0o755)

	xlens := make([]string, len(opts.XLEN))
	for i, x := range opts.XLEN {
		xlens[i] = fmt.Sprint(x)
	}
	writeFile(t, filepath.Join(root, "plugin-kian", "kian_isa.yaml"),
		fmt.Sprintf("hart_ids: [0]\nhart0:\n  ISA: %s\n  supported_xlen: [%s]\n", opts.ISA, strings.Join(xlens, ", ")), 0o644)
	writeFile(t, filepath.Join(root, "plugin-kian", "kian_platform.yaml"), "mtime:\n  implemented: true\n", 0o644)

	var list strings.Builder
	for _, name := range opts.Tests {
		src := filepath.Join(root, "suite", "rv32i_m", "I", name+".S")
		writeFile(t, src, "#include \"model_test.h\"\n", 0o644)
		work := filepath.Join(f.WorkDir, name)
		f.Tests[name] = work

		fmt.Fprintf(&list, "%s:\n  test_path: %s\n  work_dir: %s\n  isa: %s\n  macros:\n", name, src, work, opts.ISA)
		for _, m := range opts.Macros {
			fmt.Fprintf(&list, "    - %s\n", m)
		}
	}
	writeFile(t, f.TestListPath, list.String(), 0o644)

	cfg := fmt.Sprintf(`name: DUT-kian-
dut: bin/Vkian_sim
jobs: %d
pluginpath: plugin-kian
ispec: plugin-kian/kian_isa.yaml
pspec: plugin-kian/kian_platform.yaml
suite_env: suite/env
work_dir: work
`, opts.Jobs)
	if opts.TargetRun != "" {
		cfg += "target_run: \"" + opts.TargetRun + "\"\n"
	}
	writeFile(t, f.ConfigPath, cfg, 0o644)

	return f
}

func writeFile(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatal(err)
	}
}
