// Package testlist loads the test list produced by suite discovery.
package testlist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/fs"
)

// Entry is one test in the suite. Read-only to archtest.
type Entry struct {
	Name       string   `yaml:"-"`
	SourcePath string   `yaml:"test_path"`
	WorkDir    string   `yaml:"work_dir"`
	ISA        string   `yaml:"isa"`
	Macros     []string `yaml:"macros"`
}

// List is a test list ordered by test name.
type List []Entry

// Names returns the test names in list order.
func (l List) Names() []string {
	names := make([]string, len(l))
	for i, e := range l {
		names[i] = e.Name
	}
	return names
}

// Parse decodes a test list document: a mapping from test name to entry.
// Fields other than test_path, work_dir, isa and macros are ignored.
func Parse(data []byte) (List, error) {
	var raw map[string]Entry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.EInvalidTestList, "invalid yaml: "+err.Error(), err)
	}

	list := make(List, 0, len(raw))
	for name, e := range raw {
		e.Name = name
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// Load reads and decodes the test list at path.
func Load(filesystem fs.FS, path string) (List, error) {
	data, err := filesystem.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewWithDetails(errors.ENoTestList, "test list not found", map[string]string{"path": path})
		}
		return nil, errors.WrapWithDetails(errors.ENoTestList, "failed to read test list", err, map[string]string{"path": path})
	}
	return Parse(data)
}

func validateEntry(e Entry) error {
	missing := func(field string) error {
		return errors.NewWithDetails(errors.EInvalidTestList,
			fmt.Sprintf("test %q: missing required field %s", e.Name, field),
			map[string]string{"test": e.Name, "field": field})
	}
	if strings.TrimSpace(e.Name) == "" {
		return errors.New(errors.EInvalidTestList, "test name must not be empty")
	}
	if e.SourcePath == "" {
		return missing("test_path")
	}
	if e.WorkDir == "" {
		return missing("work_dir")
	}
	if e.ISA == "" {
		return missing("isa")
	}
	return nil
}
