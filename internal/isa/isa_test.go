package isa

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
)

func TestResolveXLEN(t *testing.T) {
	tests := []struct {
		name     string
		widths   []int
		wantXLEN int
		wantABI  string
		wantErr  bool
	}{
		{"32 only", []int{32}, 32, ABI32, false},
		{"64 only", []int{64}, 64, ABI64, false},
		{"both prefers 64", []int{32, 64}, 64, ABI64, false},
		{"both reversed", []int{64, 32}, 64, ABI64, false},
		{"empty", nil, 0, "", true},
		{"unsupported", []int{128}, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(HartSpec{SupportedXLEN: tt.widths, ISA: "RV32I"})
			if tt.wantErr {
				if errors.GetCode(err) != errors.EConfig {
					t.Fatalf("Resolve() error = %v, want E_CONFIG", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if cfg.XLEN != tt.wantXLEN || cfg.ABI != tt.wantABI {
				t.Errorf("got xlen=%d abi=%s, want xlen=%d abi=%s", cfg.XLEN, cfg.ABI, tt.wantXLEN, tt.wantABI)
			}
		})
	}
}

func TestResolveExtensionsCanonicalOrder(t *testing.T) {
	tests := []struct {
		isa      string
		widths   []int
		wantArch string
	}{
		{"RV32IMC", []int{32}, "rv32imc"},
		{"RV32CMI", []int{32}, "rv32imc"},
		{"RV64IMAFDC", []int{64}, "rv64imafdc"},
		{"RV64CDFAMI", []int{32, 64}, "rv64imafdc"},
		{"rv32imac_zicsr_zifencei", []int{32}, "rv32imac"},
		{"RV32IMZicsr", []int{32}, "rv32im"},
		{"RV32E", []int{32}, "rv32"},
		{"RV32IMV", []int{32}, "rv32im"},
	}

	for _, tt := range tests {
		t.Run(tt.isa, func(t *testing.T) {
			cfg, err := Resolve(HartSpec{SupportedXLEN: tt.widths, ISA: tt.isa})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := cfg.Arch(); got != tt.wantArch {
				t.Errorf("Arch() = %q, want %q", got, tt.wantArch)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	h := HartSpec{SupportedXLEN: []int{32}, ISA: "RV32IMAC"}
	a, _ := Resolve(h)
	b, _ := Resolve(h)
	if a.Arch() != b.Arch() || a.ABI != b.ABI || !slices.Equal(a.Extensions, b.Extensions) {
		t.Errorf("Resolve not deterministic: %+v vs %+v", a, b)
	}
}

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kian_isa.yaml")
	body := `hart_ids: [0]
hart0:
  ISA: RV32IMCZicsr_Zifencei
  physical_addr_sz: 32
  User_Spec_Version: '2.3'
  supported_xlen: [32]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadSpec(fs.NewRealFS(), path)
	if err != nil {
		t.Fatalf("LoadSpec() error = %v", err)
	}
	cfg, err := Resolve(spec.Hart0)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Arch() != "rv32imc" || cfg.ABI != ABI32 {
		t.Errorf("got arch=%s abi=%s", cfg.Arch(), cfg.ABI)
	}

	_, err = LoadSpec(fs.NewRealFS(), filepath.Join(dir, "missing.yaml"))
	if ae, ok := errors.AsArchtestError(err); !ok || ae.Code != errors.EConfig || ae.Details["path"] == "" {
		t.Errorf("missing spec error = %v", err)
	}

	if err := os.WriteFile(path, []byte("hart0: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSpec(fs.NewRealFS(), path); errors.GetCode(err) != errors.EConfig {
		t.Errorf("malformed spec error = %v, want E_CONFIG", err)
	}
}
