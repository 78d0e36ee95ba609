package dump

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/wippyai/wadze/wasm"
)

type row struct {
	Funcidx          int    `csv:"funcidx"`
	Export           string `csv:"export"`
	In               int    `csv:"in"`
	Out              int    `csv:"out"`
	LocalCount       int    `csv:"local count"`
	BodyBytes        int    `csv:"body bytes"`
	InstructionCount int    `csv:"instruction count"`
	MaxNesting       int    `csv:"max nesting"`
	Control          int    `csv:"control"`
	Calls            int    `csv:"calls"`
	Locals           int    `csv:"local access"`
	Globals          int    `csv:"global access"`
	Loads            int    `csv:"loads"`
	Stores           int    `csv:"stores"`
	Consts           int    `csv:"consts"`
	Numeric          int    `csv:"numeric"`
}

// dumpStats writes one CSV row per defined function.
func dumpStats(w io.Writer, m *wasm.Module) error {
	exports := map[uint32]string{}
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc {
			exports[exp.Idx] = exp.Name
		}
	}

	decoded, err := decodeAll(m.Code)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()
	encoder := csvutil.NewEncoder(csvWriter)

	imported := m.NumImportedFuncs()
	for i, code := range decoded {
		funcidx := imported + i
		r := row{
			Funcidx:    funcidx,
			Export:     exports[uint32(funcidx)],
			LocalCount: len(code.Locals),
			BodyBytes:  len(m.Code[i].Body),
		}
		if i < len(m.Funcs) && int(m.Funcs[i]) < len(m.Types) {
			sig := m.Types[m.Funcs[i]]
			r.In = len(sig.Params)
			r.Out = len(sig.Results)
		}
		tally(&r, code.Body, 1)

		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	return nil
}

func tally(r *row, instrs []wasm.Instruction, depth int) {
	if depth > r.MaxNesting {
		r.MaxNesting = depth
	}
	for _, instr := range instrs {
		r.InstructionCount++
		switch imm := instr.Imm.(type) {
		case wasm.BlockImm:
			r.Control++
			tally(r, imm.Body, depth+1)
			continue
		case wasm.IfImm:
			r.Control++
			tally(r, imm.Then, depth+1)
			tally(r, imm.Else, depth+1)
			continue
		}

		op := instr.Opcode
		switch {
		case op <= wasm.OpReturn:
			r.Control++
		case op == wasm.OpCall || op == wasm.OpCallIndirect:
			r.Calls++
		case op >= wasm.OpLocalGet && op <= wasm.OpLocalTee:
			r.Locals++
		case op == wasm.OpGlobalGet || op == wasm.OpGlobalSet:
			r.Globals++
		case op >= wasm.OpI32Load && op <= wasm.OpI64Load32U:
			r.Loads++
		case op >= wasm.OpI32Store && op <= wasm.OpI64Store32:
			r.Stores++
		case op >= wasm.OpI32Const && op <= wasm.OpF64Const:
			r.Consts++
		case op >= wasm.OpI32Eqz:
			r.Numeric++
		}
	}
}
