package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wadze/wasm/internal/binary"
)

// ParseModule decodes a WebAssembly binary module held in memory. All
// sections are decoded except function bodies, which are captured as raw
// byte slices in Module.Code; decode those on demand with DecodeCode.
//
// Returned slices alias data, so the caller must not mutate the buffer
// while the module is in use.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil || magic != Magic {
		return nil, &ParseError{Offset: 0, Err: ErrNotWasm}
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, &ParseError{Offset: 4, Err: ErrNotWasm}
	}
	if version != Version {
		return nil, &ParseError{Offset: 4, Err: fmt.Errorf(
			"%w: version %d", ErrUnsupportedVersion, version)}
	}

	m := &Module{}
	var seen [SectionData + 1]bool

	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, &ParseError{Offset: r.Offset(), Err: err}
		}
		if int(id) >= len(seen) {
			return nil, &ParseError{Offset: r.Offset() - 1, Err: fmt.Errorf(
				"%w: id %d", ErrUnknownSection, id)}
		}
		name := SectionName(id)

		size, err := r.ReadU32()
		if err != nil {
			return nil, &ParseError{Section: name, Offset: r.Offset(), Err: err}
		}
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, &ParseError{Section: name, Offset: r.Offset(), Err: err}
		}

		if id != SectionCustom {
			if seen[id] {
				return nil, &ParseError{Section: name, Offset: sr.Offset(), Err: errors.New(
					"section appears more than once")}
			}
			seen[id] = true
		}

		if err := parseSection(sr, id, m); err != nil {
			if errors.Is(err, ErrTruncated) {
				// The section's content ran out before its structure did,
				// so the declared size was too small.
				err = fmt.Errorf("%w: %w", ErrSectionLengthMismatch, err)
			}
			return nil, sectionError(name, sr, err)
		}
		if sr.Len() != 0 {
			return nil, &ParseError{Section: name, Offset: sr.Offset(), Err: fmt.Errorf(
				"%w: %d byte(s) left over", ErrSectionLengthMismatch, sr.Len())}
		}
	}
	return m, nil
}

func parseSection(r *binary.Reader, id byte, m *Module) error {
	switch id {
	case SectionCustom:
		return parseCustomSection(r, m)
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return parseFunctionSection(r, m)
	case SectionTable:
		return parseTableSection(r, m)
	case SectionMemory:
		return parseMemorySection(r, m)
	case SectionGlobal:
		return parseGlobalSection(r, m)
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		return parseStartSection(r, m)
	case SectionElement:
		return parseElementSection(r, m)
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionData:
		return parseDataSection(r, m)
	}
	return fmt.Errorf("%w: id %d", ErrUnknownSection, id)
}

// sectionError stamps err with the section name and current offset,
// preserving an existing ParseError's offset.
func sectionError(name string, r *binary.Reader, err error) error {
	if pe, ok := err.(*ParseError); ok {
		pe.Section = name
		return pe
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return &ParseError{Section: name, Offset: pe.Offset, Err: err}
	}
	return &ParseError{Section: name, Offset: r.Offset(), Err: err}
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: r.ReadRemaining(),
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) (err error) {
	m.Types, err = binary.ReadVector(r, readFuncType)
	return err
}

func parseImportSection(r *binary.Reader, m *Module) (err error) {
	m.Imports, err = binary.ReadVector(r, readImport)
	return err
}

func parseFunctionSection(r *binary.Reader, m *Module) (err error) {
	m.Funcs, err = binary.ReadVector(r, (*binary.Reader).ReadU32)
	return err
}

func parseTableSection(r *binary.Reader, m *Module) (err error) {
	m.Tables, err = binary.ReadVector(r, readTableType)
	return err
}

func parseMemorySection(r *binary.Reader, m *Module) (err error) {
	m.Memories, err = binary.ReadVector(r, readMemoryType)
	return err
}

func parseGlobalSection(r *binary.Reader, m *Module) (err error) {
	m.Globals, err = binary.ReadVector(r, readGlobal)
	return err
}

func parseExportSection(r *binary.Reader, m *Module) (err error) {
	m.Exports, err = binary.ReadVector(r, readExport)
	return err
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) (err error) {
	m.Elements, err = binary.ReadVector(r, readElement)
	return err
}

func parseCodeSection(r *binary.Reader, m *Module) (err error) {
	m.Code, err = binary.ReadVector(r, readCodeEntry)
	return err
}

func parseDataSection(r *binary.Reader, m *Module) (err error) {
	m.Data, err = binary.ReadVector(r, readDataSegment)
	return err
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValI32, ValI64, ValF32, ValF64, ValFuncRef:
		return ValType(b), nil
	}
	return 0, fmt.Errorf("%w: %#02x", ErrUnknownValueType, b)
}

func readFuncType(r *binary.Reader) (FuncType, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return FuncType{}, err
	}
	if tag != FuncTypeByte {
		return FuncType{}, fmt.Errorf("%w: function type tag %#02x", ErrInvalidEncoding, tag)
	}
	params, err := binary.ReadVector(r, readValType)
	if err != nil {
		return FuncType{}, err
	}
	results, err := binary.ReadVector(r, readValType)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	min, err := r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: min}
	if flags&LimitsHasMax != 0 {
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		if max < min {
			return Limits{}, fmt.Errorf("%w: limits max %d below min %d", ErrInvalidEncoding, max, min)
		}
		l.Max = &max
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	elem, err := readValType(r)
	if err != nil {
		return TableType{}, err
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Limits: limits}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{ValType: t, Mutable: mut != 0}, nil
}

func readGlobal(r *binary.Reader) (Global, error) {
	gt, err := readGlobalType(r)
	if err != nil {
		return Global{}, err
	}
	init, err := readInitExpr(r)
	if err != nil {
		return Global{}, err
	}
	return Global{Type: gt, Init: init}, nil
}

func readImport(r *binary.Reader) (Import, error) {
	module, err := r.ReadName()
	if err != nil {
		return Import{}, err
	}
	name, err := r.ReadName()
	if err != nil {
		return Import{}, err
	}
	kind, err := r.ReadByte()
	if err != nil {
		return Import{}, err
	}
	desc := ImportDesc{Kind: kind}
	switch kind {
	case KindFunc:
		desc.TypeIdx, err = r.ReadU32()
	case KindTable:
		var tt TableType
		tt, err = readTableType(r)
		desc.Table = &tt
	case KindMemory:
		var mt MemoryType
		mt, err = readMemoryType(r)
		desc.Memory = &mt
	case KindGlobal:
		var gt GlobalType
		gt, err = readGlobalType(r)
		desc.Global = &gt
	default:
		err = fmt.Errorf("%w: import kind %#02x", ErrInvalidEncoding, kind)
	}
	if err != nil {
		return Import{}, err
	}
	return Import{Module: module, Name: name, Desc: desc}, nil
}

func readExport(r *binary.Reader) (Export, error) {
	name, err := r.ReadName()
	if err != nil {
		return Export{}, err
	}
	kind, err := r.ReadByte()
	if err != nil {
		return Export{}, err
	}
	if kind > KindGlobal {
		return Export{}, fmt.Errorf("%w: export kind %#02x", ErrInvalidEncoding, kind)
	}
	idx, err := r.ReadU32()
	if err != nil {
		return Export{}, err
	}
	return Export{Name: name, Kind: kind, Idx: idx}, nil
}

func readElement(r *binary.Reader) (Element, error) {
	tableIdx, err := r.ReadU32()
	if err != nil {
		return Element{}, err
	}
	offset, err := readInitExpr(r)
	if err != nil {
		return Element{}, err
	}
	funcIdxs, err := binary.ReadVector(r, (*binary.Reader).ReadU32)
	if err != nil {
		return Element{}, err
	}
	return Element{TableIdx: tableIdx, Offset: offset, FuncIdxs: funcIdxs}, nil
}

func readCodeEntry(r *binary.Reader) (CodeEntry, error) {
	size, err := r.ReadU32()
	if err != nil {
		return CodeEntry{}, err
	}
	body, err := r.ReadBytes(int(size))
	if err != nil {
		return CodeEntry{}, err
	}
	return CodeEntry{Body: body}, nil
}

func readDataSegment(r *binary.Reader) (DataSegment, error) {
	memIdx, err := r.ReadU32()
	if err != nil {
		return DataSegment{}, err
	}
	offset, err := readInitExpr(r)
	if err != nil {
		return DataSegment{}, err
	}
	size, err := r.ReadU32()
	if err != nil {
		return DataSegment{}, err
	}
	init, err := r.ReadBytes(int(size))
	if err != nil {
		return DataSegment{}, err
	}
	return DataSegment{MemIdx: memIdx, Offset: offset, Init: init}, nil
}

// readInitExpr consumes a constant-initializer expression and returns its
// raw bytes, terminating end opcode included, so the slice can later be
// handed to DecodeInstructions.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	start := r.Pos()
	if _, err := decodeExpr(r); err != nil {
		return nil, err
	}
	return r.Data()[start:r.Pos()], nil
}
