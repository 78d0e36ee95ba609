package wasm_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/wippyai/wadze/wasm"
)

// Fixture-building helpers. Sections are assembled byte-by-byte so the
// tests stay independent of any encoder.

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func str(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func TestParseMinimalModule(t *testing.T) {
	m, err := wasm.ParseModule(header())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil module")
	}
}

func TestParseTypeSectionLiteral(t *testing.T) {
	data := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7F,
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.Types) != 1 {
		t.Fatalf("expected 1 type, got %d", len(m.Types))
	}
	ft := m.Types[0]
	if len(ft.Params) != 0 {
		t.Errorf("expected no params, got %v", ft.Params)
	}
	if len(ft.Results) != 1 || ft.Results[0] != wasm.ValI32 {
		t.Errorf("expected results [i32], got %v", ft.Results)
	}
}

func TestParseNotWasm(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{0x00, 0x61, 0x73}},
		{"seven bytes", []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00}},
		{"corrupt magic", []byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.ParseModule(tt.data)
			if !errors.Is(err, wasm.ErrNotWasm) {
				t.Errorf("expected ErrNotWasm, got %v", err)
			}
		})
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}
	_, err := wasm.ParseModule(data)
	if !errors.Is(err, wasm.ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

// fullModule builds a module exercising every section kind.
func fullModule() []byte {
	data := header()

	// type: () -> i32
	data = append(data, section(0x01, append(uleb(1), 0x60, 0x00, 0x01, 0x7F))...)

	// import: func env.add (type 0)
	imp := uleb(1)
	imp = append(imp, str("env")...)
	imp = append(imp, str("add")...)
	imp = append(imp, 0x00, 0x00)
	data = append(data, section(0x02, imp)...)

	// function: one func of type 0
	data = append(data, section(0x03, append(uleb(1), 0x00))...)

	// table: funcref [1..]
	data = append(data, section(0x04, append(uleb(1), 0x70, 0x00, 0x01))...)

	// memory: [1..2]
	data = append(data, section(0x05, append(uleb(1), 0x01, 0x01, 0x02))...)

	// global: mutable i32 = 42
	data = append(data, section(0x06, append(uleb(1), 0x7F, 0x01, 0x41, 0x2A, 0x0B))...)

	// exports: func "f" (index 1), memory "mem" (index 0)
	exp := uleb(2)
	exp = append(exp, str("f")...)
	exp = append(exp, 0x00, 0x01)
	exp = append(exp, str("mem")...)
	exp = append(exp, 0x02, 0x00)
	data = append(data, section(0x07, exp)...)

	// start: func 1
	data = append(data, section(0x08, uleb(1))...)

	// element: table 0 at offset 0, funcs [1]
	elem := uleb(1)
	elem = append(elem, 0x00, 0x41, 0x00, 0x0B)
	elem = append(elem, uleb(1)...)
	elem = append(elem, uleb(1)...)
	data = append(data, section(0x09, elem)...)

	// code: one body, locals (2 x i32), local.get 0, end
	body := []byte{0x01, 0x02, 0x7F, 0x20, 0x00, 0x0B}
	code := uleb(1)
	code = append(code, uleb(uint32(len(body)))...)
	code = append(code, body...)
	data = append(data, section(0x0A, code)...)

	// data: memory 0 at offset 0, "abc"
	seg := uleb(1)
	seg = append(seg, 0x00, 0x41, 0x00, 0x0B)
	seg = append(seg, str("abc")...)
	data = append(data, section(0x0B, seg)...)

	// custom section
	custom := str("name")
	custom = append(custom, 0xDE, 0xAD)
	data = append(data, section(0x00, custom)...)

	return data
}

func TestParseFullModule(t *testing.T) {
	m, err := wasm.ParseModule(fullModule())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(m.Types) != 1 || len(m.Types[0].Results) != 1 {
		t.Errorf("types = %v", m.Types)
	}
	if len(m.Imports) != 1 {
		t.Fatalf("expected 1 import, got %d", len(m.Imports))
	}
	imp := m.Imports[0]
	if imp.Module != "env" || imp.Name != "add" || imp.Desc.Kind != wasm.KindFunc || imp.Desc.TypeIdx != 0 {
		t.Errorf("import = %+v", imp)
	}
	if m.NumImportedFuncs() != 1 {
		t.Errorf("NumImportedFuncs = %d, want 1", m.NumImportedFuncs())
	}

	if len(m.Funcs) != 1 || m.Funcs[0] != 0 {
		t.Errorf("funcs = %v", m.Funcs)
	}
	if len(m.Tables) != 1 || m.Tables[0].ElemType != wasm.ValFuncRef || m.Tables[0].Limits.Min != 1 {
		t.Errorf("tables = %+v", m.Tables)
	}
	if len(m.Memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(m.Memories))
	}
	mem := m.Memories[0]
	if mem.Limits.Min != 1 || mem.Limits.Max == nil || *mem.Limits.Max != 2 {
		t.Errorf("memory limits = %+v", mem.Limits)
	}

	if len(m.Globals) != 1 {
		t.Fatalf("expected 1 global, got %d", len(m.Globals))
	}
	g := m.Globals[0]
	if g.Type.ValType != wasm.ValI32 || !g.Type.Mutable {
		t.Errorf("global type = %+v", g.Type)
	}
	instrs, err := wasm.DecodeInstructions(g.Init)
	if err != nil {
		t.Fatalf("DecodeInstructions(global init): %v", err)
	}
	if len(instrs) != 1 || instrs[0].Opcode != wasm.OpI32Const {
		t.Fatalf("global init = %v", instrs)
	}
	if imm := instrs[0].Imm.(wasm.I32Imm); imm.Value != 42 {
		t.Errorf("global init value = %d, want 42", imm.Value)
	}

	if len(m.Exports) != 2 || m.Exports[0].Name != "f" || m.Exports[1].Kind != wasm.KindMemory {
		t.Errorf("exports = %+v", m.Exports)
	}
	if m.Start == nil || *m.Start != 1 {
		t.Errorf("start = %v", m.Start)
	}
	if len(m.Elements) != 1 || m.Elements[0].TableIdx != 0 || len(m.Elements[0].FuncIdxs) != 1 {
		t.Errorf("elements = %+v", m.Elements)
	}
	if len(m.Code) != 1 {
		t.Fatalf("expected 1 code entry, got %d", len(m.Code))
	}
	if len(m.Data) != 1 || string(m.Data[0].Init) != "abc" {
		t.Errorf("data = %+v", m.Data)
	}
	cs := m.CustomSection("name")
	if cs == nil || len(cs.Data) != 2 {
		t.Errorf("custom section = %+v", cs)
	}
}

func TestParseCodeBodyDeferred(t *testing.T) {
	m, err := wasm.ParseModule(fullModule())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	code, err := wasm.DecodeCode(m.Code[0].Body)
	if err != nil {
		t.Fatalf("DecodeCode: %v", err)
	}
	if len(code.Locals) != 2 || code.Locals[0] != wasm.ValI32 || code.Locals[1] != wasm.ValI32 {
		t.Errorf("locals = %v", code.Locals)
	}
	if len(code.Body) != 1 || code.Body[0].Opcode != wasm.OpLocalGet {
		t.Errorf("body = %v", code.Body)
	}
}

func TestParseUnknownSection(t *testing.T) {
	data := append(header(), section(0x0C, []byte{0x00})...)
	_, err := wasm.ParseModule(data)
	if !errors.Is(err, wasm.ErrUnknownSection) {
		t.Errorf("expected ErrUnknownSection, got %v", err)
	}
}

func TestParseDuplicateSection(t *testing.T) {
	typeSec := section(0x01, append(uleb(1), 0x60, 0x00, 0x00))
	data := append(header(), typeSec...)
	data = append(data, typeSec...)
	_, err := wasm.ParseModule(data)
	if err == nil {
		t.Error("expected error for duplicate type section")
	}
}

func TestParseRepeatedCustomSections(t *testing.T) {
	data := header()
	for _, name := range []string{"a", "b", "a"} {
		data = append(data, section(0x00, str(name))...)
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.CustomSections) != 3 {
		t.Errorf("expected 3 custom sections, got %d", len(m.CustomSections))
	}
	// Lookup returns the first match.
	if cs := m.CustomSection("a"); cs == nil {
		t.Error("expected custom section a")
	}
	if cs := m.CustomSection("missing"); cs != nil {
		t.Errorf("expected nil, got %+v", cs)
	}
}

func TestParseSectionLengthMismatch(t *testing.T) {
	t.Run("leftover bytes", func(t *testing.T) {
		// Type section declares 5 bytes but its one type uses only 3.
		body := []byte{0x01, 0x60, 0x00, 0x00, 0xAA}
		data := append(header(), section(0x01, body)...)
		_, err := wasm.ParseModule(data)
		if !errors.Is(err, wasm.ErrSectionLengthMismatch) {
			t.Errorf("expected ErrSectionLengthMismatch, got %v", err)
		}
	})

	t.Run("content runs past declared size", func(t *testing.T) {
		// Declared size cuts the function type off after its tag.
		data := append(header(), 0x01, 0x02, 0x01, 0x60)
		data = append(data, 0x00, 0x00) // params/results now outside the window
		_, err := wasm.ParseModule(data)
		if !errors.Is(err, wasm.ErrSectionLengthMismatch) {
			t.Errorf("expected ErrSectionLengthMismatch, got %v", err)
		}
	})

	t.Run("size past end of input", func(t *testing.T) {
		data := append(header(), 0x01, 0x7F)
		_, err := wasm.ParseModule(data)
		if !errors.Is(err, wasm.ErrTruncated) {
			t.Errorf("expected ErrTruncated, got %v", err)
		}
	})
}

func TestParseAnySectionOrder(t *testing.T) {
	// Memory before type violates the binary format's prescribed ordering,
	// but the structural decoder takes sections in any order.
	data := header()
	data = append(data, section(0x05, append(uleb(1), 0x00, 0x01))...)
	data = append(data, section(0x01, append(uleb(1), 0x60, 0x00, 0x00))...)
	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.Memories) != 1 || len(m.Types) != 1 {
		t.Errorf("memories = %d, types = %d", len(m.Memories), len(m.Types))
	}
}

func TestParseErrorReportsOffset(t *testing.T) {
	// Export name is not valid UTF-8.
	exp := uleb(1)
	exp = append(exp, 0x02, 0xFF, 0xFE, 0x00, 0x00)
	data := append(header(), section(0x07, exp)...)

	_, err := wasm.ParseModule(data)
	if !errors.Is(err, wasm.ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	var pe *wasm.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if pe.Section != "export" {
		t.Errorf("section = %q, want %q", pe.Section, "export")
	}
	if pe.Offset < 8 {
		t.Errorf("offset = %d, want a position inside the section", pe.Offset)
	}
}

func TestParseModuleIndependentCalls(t *testing.T) {
	data := fullModule()
	m1, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(m1.Code) != len(m2.Code) || len(m1.Exports) != len(m2.Exports) {
		t.Error("independent parses disagree")
	}
}

func TestDecodeCodeConcurrent(t *testing.T) {
	m, err := wasm.ParseModule(fullModule())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				for _, entry := range m.Code {
					code, err := wasm.DecodeCode(entry.Body)
					if err != nil {
						t.Errorf("DecodeCode: %v", err)
						return
					}
					if len(code.Body) != 1 {
						t.Errorf("body = %v", code.Body)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
