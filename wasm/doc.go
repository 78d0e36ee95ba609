// Package wasm decodes WebAssembly binary modules.
//
// This package implements a structural decoder for version 1 (MVP)
// WebAssembly binaries. It maps the byte-level module format onto typed
// Go records without validating semantics: indices are not bounds-checked
// and instruction sequences are not type-checked. The goal is a faithful,
// fast view of what the binary contains.
//
// # Parsing
//
// Parse a module from an in-memory buffer:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A parsed module exposes every section:
//
//	module.Types      []FuncType      // Function signatures
//	module.Imports    []Import        // Imported definitions
//	module.Funcs      []uint32        // Type indices for functions
//	module.Tables     []TableType     // Table definitions
//	module.Memories   []MemoryType    // Memory definitions
//	module.Globals    []Global        // Global definitions
//	module.Exports    []Export        // Exported definitions
//	module.Elements   []Element       // Table element segments
//	module.Code       []CodeEntry     // Raw function bodies
//	module.Data       []DataSegment   // Data segments
//
// # Two-Phase Code Decoding
//
// ParseModule does not decode function bodies. Each code-section entry is
// kept as raw bytes, and DecodeCode expands one body into its locals and
// instruction sequence on demand:
//
//	for i, entry := range module.Code {
//	    code, err := wasm.DecodeCode(entry.Body)
//	    if err != nil {
//	        log.Fatalf("func %d: %v", i, err)
//	    }
//	    for _, instr := range code.Body {
//	        fmt.Println(instr)
//	    }
//	}
//
// DecodeCode reads only the bytes it is given, so distinct bodies may be
// decoded concurrently from separate goroutines without synchronization.
//
// # Errors
//
// All failures unwrap to one of the package's sentinel errors (ErrNotWasm,
// ErrTruncated, ErrUnknownOpcode, and so on) and carry the section name
// and byte offset of the fault via ParseError:
//
//	_, err := wasm.ParseModule(data)
//	var pe *wasm.ParseError
//	if errors.As(err, &pe) {
//	    log.Printf("%s section broke at offset %d", pe.Section, pe.Offset)
//	}
//
// The package never logs; it only reports.
package wasm
