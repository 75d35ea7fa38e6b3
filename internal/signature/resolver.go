// Package signature resolves the signature window of a compiled test from
// its symbol table.
package signature

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/NielsdaWheelz/archtest/internal/errors"
	"github.com/NielsdaWheelz/archtest/internal/exec"
	"github.com/NielsdaWheelz/archtest/internal/toolchain"
)

// Window is the [Start, End) address range of the signature region.
type Window struct {
	Start uint64
	End   uint64
}

// Size returns the window length in bytes.
func (w Window) Size() uint64 {
	return w.End - w.Start
}

// Resolver runs symbol queries against compiled binaries.
type Resolver struct {
	Runner exec.CommandRunner
}

// NewResolver returns a Resolver using runner.
func NewResolver(runner exec.CommandRunner) *Resolver {
	return &Resolver{Runner: runner}
}

// Resolve runs both queries in dir and returns the window they bound.
// Every failure is E_SYMBOL_RESOLUTION: a query that cannot run or exits
// non-zero, a missing or non-hex symbol, or start >= end.
func (r *Resolver) Resolve(ctx context.Context, start, end toolchain.Query, dir string) (Window, error) {
	s, err := r.lookup(ctx, start, dir)
	if err != nil {
		return Window{}, err
	}
	e, err := r.lookup(ctx, end, dir)
	if err != nil {
		return Window{}, err
	}
	if s >= e {
		return Window{}, errors.NewWithDetails(errors.ESymbolResolution,
			fmt.Sprintf("signature window is empty or inverted: %s=%#x %s=%#x", start.Symbol, s, end.Symbol, e),
			map[string]string{"symbol": start.Symbol + "," + end.Symbol})
	}
	return Window{Start: s, End: e}, nil
}

func (r *Resolver) lookup(ctx context.Context, q toolchain.Query, dir string) (uint64, error) {
	details := map[string]string{
		"symbol":  q.Symbol,
		"command": q.Command.String(),
	}

	res, err := r.Runner.Run(ctx, q.Command.Name, q.Command.Args, exec.RunOpts{Dir: dir})
	if err != nil {
		return 0, errors.WrapWithDetails(errors.ESymbolResolution, "symbol query failed to run", err, details)
	}
	if res.ExitCode != 0 {
		details["exit_code"] = strconv.Itoa(res.ExitCode)
		details["stderr"] = res.Stderr
		return 0, errors.NewWithDetails(errors.ESymbolResolution,
			fmt.Sprintf("symbol query exited with %d", res.ExitCode), details)
	}

	addr, err := ParseSymbolAddress(res.Stdout, q.Symbol)
	if err != nil {
		return 0, errors.WrapWithDetails(errors.ESymbolResolution, err.Error(), err, details)
	}
	return addr, nil
}

// ParseSymbolAddress finds symbol in nm-style output ("<hex> <type> <name>"
// per line) and returns its address.
func ParseSymbolAddress(output, symbol string) (uint64, error) {
	if strings.TrimSpace(output) == "" {
		return 0, fmt.Errorf("symbol query produced no output")
	}

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || fields[len(fields)-1] != symbol {
			continue
		}
		if len(fields) != 3 {
			return 0, fmt.Errorf("symbol %s has no address (line %q)", symbol, sc.Text())
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("symbol %s: address %q is not hexadecimal", symbol, fields[0])
		}
		return addr, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("symbol %s not found", symbol)
}
