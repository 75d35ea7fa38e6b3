package testlist

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
)

const sampleList = `
rv32i_m/I/src/sub-01.S:
  commit_id: abc
  isa: RV32I
  macros: [TEST_CASE_1=True, XLEN=32]
  test_path: /suite/rv32i_m/I/src/sub-01.S
  work_dir: /work/rv32i_m/I/src/sub-01.S/dut
rv32i_m/I/src/add-01.S:
  isa: RV32I
  macros: [TEST_CASE_1=True, XLEN=32]
  test_path: /suite/rv32i_m/I/src/add-01.S
  work_dir: /work/rv32i_m/I/src/add-01.S/dut
`

func TestParseSortsByName(t *testing.T) {
	list, err := Parse([]byte(sampleList))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"rv32i_m/I/src/add-01.S", "rv32i_m/I/src/sub-01.S"}
	if !slices.Equal(list.Names(), want) {
		t.Errorf("Names() = %v, want %v", list.Names(), want)
	}

	e := list[0]
	if e.SourcePath != "/suite/rv32i_m/I/src/add-01.S" || e.ISA != "RV32I" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if !slices.Equal(e.Macros, []string{"TEST_CASE_1=True", "XLEN=32"}) {
		t.Errorf("Macros = %v", e.Macros)
	}
}

func TestParseMissingField(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"no test_path", "t1:\n  work_dir: /w\n  isa: RV32I\n", "test_path"},
		{"no work_dir", "t1:\n  test_path: /s.S\n  isa: RV32I\n", "work_dir"},
		{"no isa", "t1:\n  test_path: /s.S\n  work_dir: /w\n", "isa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			ae, ok := errors.AsArchtestError(err)
			if !ok || ae.Code != errors.EInvalidTestList {
				t.Fatalf("Parse() error = %v, want E_INVALID_TESTLIST", err)
			}
			if ae.Details["field"] != tt.wantField || ae.Details["test"] != "t1" {
				t.Errorf("details = %v", ae.Details)
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("- just\n- a list\n"))
	if errors.GetCode(err) != errors.EInvalidTestList {
		t.Errorf("Parse() error = %v, want E_INVALID_TESTLIST", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test_list.yaml")
	if err := os.WriteFile(path, []byte(sampleList), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := Load(fs.NewRealFS(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}

	_, err = Load(fs.NewRealFS(), filepath.Join(dir, "missing.yaml"))
	if errors.GetCode(err) != errors.ENoTestList {
		t.Errorf("missing list error = %v, want E_NO_TESTLIST", err)
	}
}
