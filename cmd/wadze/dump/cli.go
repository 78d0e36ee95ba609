package dump

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wadze/internal/logging"
	"github.com/wippyai/wadze/wasm"
)

func Command() *cobra.Command {
	var stats bool
	var code bool

	command := &cobra.Command{
		Use:   "dump [path to module]",
		Short: "Dump the contents of a WebAssembly module",
		Long:  "Dump a WebAssembly module's sections, statistics, or disassembled code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			mod, err := wasm.ParseModule(data)
			if err != nil {
				return err
			}
			logging.Logger().Debug("module parsed",
				zap.String("path", args[0]),
				zap.Int("bytes", len(data)),
				zap.Int("functions", len(mod.Code)))

			switch {
			case stats:
				return dumpStats(os.Stdout, mod)
			case code:
				return dumpCode(os.Stdout, mod)
			default:
				return dumpSummary(os.Stdout, mod, args[0])
			}
		},
	}

	command.PersistentFlags().BoolVarP(&stats, "stats", "s", false, "dump per-function statistics in CSV format")
	command.PersistentFlags().BoolVarP(&code, "code", "c", false, "disassemble all function bodies")

	return command
}

func dumpSummary(w io.Writer, m *wasm.Module, path string) error {
	fmt.Fprintf(w, "Module: %s\n", path)
	fmt.Fprintf(w, "Types: %d\n", len(m.Types))
	fmt.Fprintf(w, "Imports: %d\n", len(m.Imports))
	fmt.Fprintf(w, "Functions: %d\n", len(m.Funcs))
	fmt.Fprintf(w, "Tables: %d\n", len(m.Tables))
	fmt.Fprintf(w, "Memories: %d\n", len(m.Memories))
	fmt.Fprintf(w, "Globals: %d\n", len(m.Globals))
	fmt.Fprintf(w, "Exports: %d\n", len(m.Exports))
	fmt.Fprintf(w, "Elements: %d\n", len(m.Elements))
	fmt.Fprintf(w, "Data segments: %d\n", len(m.Data))
	if m.Start != nil {
		fmt.Fprintf(w, "Start: func %d\n", *m.Start)
	}
	for _, cs := range m.CustomSections {
		fmt.Fprintf(w, "Custom section %q: %d bytes\n", cs.Name, len(cs.Data))
	}

	if len(m.Imports) > 0 {
		fmt.Fprintf(w, "\nImported definitions:\n")
		for _, imp := range m.Imports {
			fmt.Fprintf(w, "  %s %s.%s\n", wasm.KindName(imp.Desc.Kind), imp.Module, imp.Name)
		}
	}
	if len(m.Exports) > 0 {
		fmt.Fprintf(w, "\nExported definitions:\n")
		for _, exp := range m.Exports {
			fmt.Fprintf(w, "  %s %s (index %d)\n", wasm.KindName(exp.Kind), exp.Name, exp.Idx)
		}
	}
	return nil
}

func dumpCode(w io.Writer, m *wasm.Module) error {
	decoded, err := decodeAll(m.Code)
	if err != nil {
		return err
	}
	imported := m.NumImportedFuncs()
	for i, code := range decoded {
		fmt.Fprintf(w, "func %d", imported+i)
		if i < len(m.Funcs) && int(m.Funcs[i]) < len(m.Types) {
			fmt.Fprintf(w, " %s", sigString(m.Types[m.Funcs[i]]))
		}
		fmt.Fprintln(w)
		if len(code.Locals) > 0 {
			names := make([]string, len(code.Locals))
			for j, t := range code.Locals {
				names[j] = t.String()
			}
			fmt.Fprintf(w, "  (local %s)\n", strings.Join(names, " "))
		}
		writeInstrs(w, code.Body, 1)
		fmt.Fprintln(w)
	}
	return nil
}

// decodeAll decodes every function body, fanning the work out across
// available CPUs. Bodies are independent byte slices, so no locking is
// needed around the decoder itself.
func decodeAll(entries []wasm.CodeEntry) ([]*wasm.Code, error) {
	decoded := make([]*wasm.Code, len(entries))
	errs := make([]error, len(entries))

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.NumCPU())
	for i, entry := range entries {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			decoded[i], errs[i] = wasm.DecodeCode(entry.Body)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("func body %d: %w", i, err)
		}
	}
	return decoded, nil
}

func writeInstrs(w io.Writer, instrs []wasm.Instruction, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, instr := range instrs {
		fmt.Fprintf(w, "%s%s\n", indent, instr)
		switch imm := instr.Imm.(type) {
		case wasm.BlockImm:
			writeInstrs(w, imm.Body, depth+1)
			fmt.Fprintf(w, "%send\n", indent)
		case wasm.IfImm:
			writeInstrs(w, imm.Then, depth+1)
			if imm.Else != nil {
				fmt.Fprintf(w, "%selse\n", indent)
				writeInstrs(w, imm.Else, depth+1)
			}
			fmt.Fprintf(w, "%send\n", indent)
		}
	}
}

func sigString(ft wasm.FuncType) string {
	params := make([]string, len(ft.Params))
	for i, t := range ft.Params {
		params[i] = t.String()
	}
	results := make([]string, len(ft.Results))
	for i, t := range ft.Results {
		results[i] = t.String()
	}
	s := "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		s += " -> " + strings.Join(results, ", ")
	}
	return s
}
