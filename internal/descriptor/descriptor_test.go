package descriptor

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
	"github.com/NielsdaWheelz/archtest/internal/job"
	"github.com/NielsdaWheelz/archtest/internal/toolchain"
)

func sampleJobs(mode config.RunMode) []job.Job {
	tpl := toolchain.Templates{
		ToolPrefix:   config.DefaultToolPrefix,
		LinkerScript: "/plugins/kian/env/link.ld",
		IncludeDirs:  []string{"/plugins/kian/env"},
		ABI:          "ilp32",
		DUTPath:      "/opt/kian/Vkian_sim",
		Mode:         mode,
	}
	var jobs []job.Job
	for i, name := range []string{"add-01", "sub-01"} {
		compile, _ := tpl.Compile("rv32i", 32, "/suite/"+name+".S", job.BinaryName, []string{"XLEN=32"})
		start := tpl.SymbolQuery(32, job.BinaryName, toolchain.SymbolBegin)
		end := tpl.SymbolQuery(32, job.BinaryName, toolchain.SymbolEnd)
		jobs = append(jobs, job.Job{
			ID:        job.ID(i),
			Test:      name,
			WorkDir:   "/work/" + name,
			Signature: "DUT-kian.signature",
			Steps: []job.Step{
				{Kind: job.StepCompile, Command: compile},
				{Kind: job.StepSigStart, Command: start.Command, Symbol: start.Symbol},
				{Kind: job.StepSigEnd, Command: end.Command, Symbol: end.Symbol},
				{Kind: job.StepSimulate, Command: tpl.SimulateTemplate("DUT-kian.signature", job.BinaryName)},
			},
		})
	}
	return jobs
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "DUT-kian")
	d := New("DUT-kian", config.BuildAndRun, 2, sampleJobs(config.BuildAndRun))

	if err := Write(path, dir, d); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := Read(fs.NewRealFS(), path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(got, d) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, d)
	}
	mode, _ := got.RunMode()
	if mode != config.BuildAndRun {
		t.Errorf("RunMode() = %v", mode)
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "DUT-kian")

	if err := Write(path, dir, New("DUT-kian", config.BuildAndRun, 1, sampleJobs(config.BuildAndRun))); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(path)

	if err := Write(path, dir, New("DUT-kian", config.BuildAndRun, 1, sampleJobs(config.BuildAndRun))); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(path)

	if !bytes.Equal(first, second) {
		t.Errorf("descriptor changed for unchanged input:\n%s\n---\n%s", first, second)
	}
}

func TestWriteReplacesStaleDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, "DUT-kian")
	if err := os.WriteFile(path, []byte("stale: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(path, dir, New("DUT-kian", config.BuildOnly, 1, sampleJobs(config.BuildOnly))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if bytes.Contains(data, []byte("stale")) {
		t.Error("stale descriptor content survived")
	}
	if !bytes.Contains(data, []byte("inert: true")) {
		t.Errorf("build-only descriptor should carry inert simulate steps:\n%s", data)
	}
}

func TestWriteRejectsPathOutsideWorkDir(t *testing.T) {
	root := t.TempDir()
	work := filepath.Join(root, "work")
	outside := filepath.Join(root, "Jobs.DUT-kian.yaml")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Write(outside, work, New("DUT-kian", config.BuildAndRun, 1, nil))
	if errors.GetCode(err) != errors.EDescriptorFailed {
		t.Errorf("Write() error = %v, want E_DESCRIPTOR_FAILED", err)
	}
}

func TestReadRejectsInvalid(t *testing.T) {
	good, err := Marshal(New("DUT-kian", config.BuildAndRun, 1, sampleJobs(config.BuildAndRun)))
	if err != nil {
		t.Fatal(err)
	}

	dup := New("DUT-kian", config.BuildAndRun, 1, sampleJobs(config.BuildAndRun))
	dup.Jobs[1].Test = dup.Jobs[0].Test
	dupData, _ := Marshal(dup)

	sharedDir := New("DUT-kian", config.BuildAndRun, 1, sampleJobs(config.BuildAndRun))
	sharedDir.Jobs[1].WorkDir = sharedDir.Jobs[0].WorkDir + "/"
	sharedData, _ := Marshal(sharedDir)

	wide := New("DUT-kian", config.BuildAndRun, config.MaxParallelism+1, sampleJobs(config.BuildAndRun))
	wideData, _ := Marshal(wide)

	tests := []struct {
		name string
		data []byte
	}{
		{"unknown field", append(append([]byte{}, good...), []byte("extra: 1\n")...)},
		{"wrong schema", bytes.Replace(good, []byte(`schema_version: "1"`), []byte(`schema_version: "9"`), 1)},
		{"bad mode", bytes.Replace(good, []byte("mode: build-and-run"), []byte("mode: sometimes"), 1)},
		{"duplicate test", dupData},
		{"shared work dir", sharedData},
		{"parallelism too large", wideData},
		{"zero parallelism", bytes.Replace(good, []byte("parallelism: 1"), []byte("parallelism: 0"), 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "Jobs.DUT-kian.yaml")
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Read(fs.NewRealFS(), path); errors.GetCode(err) != errors.EDescriptorFailed {
				t.Errorf("Read() error = %v, want E_DESCRIPTOR_FAILED", err)
			}
		})
	}
}
