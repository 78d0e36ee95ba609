package wasm

// Module represents a parsed WebAssembly module. It is assembled once per
// ParseModule call and never mutated afterwards; the caller owns it
// exclusively.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type indices for declared functions, matched by position with Code
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []CodeEntry
	Data     []DataSegment

	// CustomSections preserves unrecognized custom sections verbatim, in
	// the order they appeared.
	CustomSections []CustomSection
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, ValFuncRef.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	default:
		return "unknown"
	}
}

// FuncType represents a function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Limits describes size constraints for tables and memories.
// When Max is present it is at least Min.
type Limits struct {
	Min uint32
	Max *uint32
}

// TableType describes a table with element type and size limits.
type TableType struct {
	ElemType ValType
	Limits   Limits
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable declaration. Init is the raw
// constant-initializer expression, terminating end opcode included, and
// can be fed to DecodeInstructions.
type Global struct {
	Type GlobalType
	Init []byte
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes an imported item. Kind selects which field is set:
// TypeIdx for KindFunc, Table for KindTable, Memory for KindMemory,
// Global for KindGlobal.
type ImportDesc struct {
	Kind    byte
	TypeIdx uint32
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
}

// Export describes an exported item.
// Kind uses the KindFunc, KindTable, KindMemory, or KindGlobal constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element represents an element segment: function indices placed into a
// table at an offset computed by a constant expression.
type Element struct {
	TableIdx uint32
	Offset   []byte // raw offset expression, end opcode included
	FuncIdxs []uint32
}

// DataSegment represents a data segment: bytes placed into a linear memory
// at an offset computed by a constant expression.
type DataSegment struct {
	MemIdx uint32
	Offset []byte // raw offset expression, end opcode included
	Init   []byte
}

// CodeEntry holds the undecoded byte body of one function (local
// declarations followed by the instruction stream). Bodies stay raw until
// DecodeCode is called on them; independent entries may be decoded
// concurrently with no coordination.
type CodeEntry struct {
	Body []byte
}

// CustomSection holds a named custom section's data, preserved verbatim.
type CustomSection struct {
	Name string
	Data []byte
}

// CustomSection returns the first custom section with the given name, or
// nil if none exists.
func (m *Module) CustomSection(name string) *CustomSection {
	for i := range m.CustomSections {
		if m.CustomSections[i].Name == name {
			return &m.CustomSections[i]
		}
	}
	return nil
}

// NumImportedFuncs returns the number of imported functions. Function
// index space places imports before declared functions.
func (m *Module) NumImportedFuncs() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			count++
		}
	}
	return count
}
