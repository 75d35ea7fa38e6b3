package signature

import (
	"context"
	"errors"
	"testing"

	archerrors "github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/exec"
	"github.com/NielsdaWheelz/archtest/internal/toolchain"
)

// fakeRunner returns canned results in call order.
type fakeRunner struct {
	calls     []fakeCall
	responses []fakeResponse
	callIndex int
}

type fakeCall struct {
	Name string
	Args []string
	Opts exec.RunOpts
}

type fakeResponse struct {
	Result exec.CmdResult
	Err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, opts exec.RunOpts) (exec.CmdResult, error) {
	f.calls = append(f.calls, fakeCall{Name: name, Args: args, Opts: opts})
	if f.callIndex < len(f.responses) {
		resp := f.responses[f.callIndex]
		f.callIndex++
		return resp.Result, resp.Err
	}
	return exec.CmdResult{}, nil
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	return "/usr/bin/" + file, nil
}

const nmOutput = `80000000 T _start
80002000 D begin_signature
80002100 D end_signature
80002104 d rvtest_data_end
         U undefined_sym
`

func queries() (toolchain.Query, toolchain.Query) {
	tpl := toolchain.Templates{ToolPrefix: "riscv{xlen}-unknown-elf-"}
	return tpl.SymbolQuery(32, "my.elf", toolchain.SymbolBegin), tpl.SymbolQuery(32, "my.elf", toolchain.SymbolEnd)
}

func TestParseSymbolAddress(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		symbol  string
		want    uint64
		wantErr bool
	}{
		{"begin", nmOutput, "begin_signature", 0x80002000, false},
		{"end", nmOutput, "end_signature", 0x80002100, false},
		{"64-bit address", "0000000080003000 D begin_signature\n", "begin_signature", 0x80003000, false},
		{"no output", "", "begin_signature", 0, true},
		{"whitespace only", "  \n", "begin_signature", 0, true},
		{"missing symbol", nmOutput, "nope", 0, true},
		{"undefined symbol", nmOutput, "undefined_sym", 0, true},
		{"non hex", "zz002000 D begin_signature\n", "begin_signature", 0, true},
		{"substring does not match", "80002000 D rvtest_begin_signature\n", "begin_signature", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSymbolAddress(tt.output, tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSymbolAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSymbolAddress() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{Result: exec.CmdResult{Stdout: nmOutput}},
		{Result: exec.CmdResult{Stdout: nmOutput}},
	}}
	start, end := queries()

	w, err := NewResolver(runner).Resolve(context.Background(), start, end, "/work/add-01")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if w.Start != 0x80002000 || w.End != 0x80002100 || w.Size() != 0x100 {
		t.Errorf("Window = %+v", w)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(runner.calls))
	}
	for _, c := range runner.calls {
		if c.Name != "riscv32-unknown-elf-nm" || c.Opts.Dir != "/work/add-01" {
			t.Errorf("unexpected call %+v", c)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name      string
		responses []fakeResponse
	}{
		{"inverted window", []fakeResponse{
			{Result: exec.CmdResult{Stdout: "80002100 D begin_signature\n"}},
			{Result: exec.CmdResult{Stdout: "80002000 D end_signature\n"}},
		}},
		{"empty window", []fakeResponse{
			{Result: exec.CmdResult{Stdout: "80002000 D begin_signature\n"}},
			{Result: exec.CmdResult{Stdout: "80002000 D end_signature\n"}},
		}},
		{"nm exits non-zero", []fakeResponse{
			{Result: exec.CmdResult{ExitCode: 1, Stderr: "nm: 'my.elf': No such file"}},
		}},
		{"nm cannot start", []fakeResponse{
			{Err: errors.New("exec: not found")},
		}},
		{"no output", []fakeResponse{
			{Result: exec.CmdResult{}},
		}},
		{"end missing", []fakeResponse{
			{Result: exec.CmdResult{Stdout: "80002000 D begin_signature\n"}},
			{Result: exec.CmdResult{Stdout: "80002000 D begin_signature\n"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := queries()
			_, err := NewResolver(&fakeRunner{responses: tt.responses}).Resolve(context.Background(), start, end, "/w")
			if archerrors.GetCode(err) != archerrors.ESymbolResolution {
				t.Errorf("Resolve() error = %v, want E_SYMBOL_RESOLUTION", err)
			}
		})
	}
}
