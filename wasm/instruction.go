package wasm

import (
	"fmt"
	"strings"

	"github.com/wippyai/wadze/wasm/internal/binary"
)

// Instruction represents a decoded WebAssembly instruction: an opcode plus
// its opcode-specific immediates. Control instructions carry their nested
// instruction sequences in the immediate.
type Instruction struct {
	Opcode Opcode
	Imm    any
}

// BlockType is the single-byte result signature of a structured control
// construct: BlockVoid or a value type byte.
type BlockType byte

// Result returns the construct's result type, or false for a void block.
func (bt BlockType) Result() (ValType, bool) {
	if byte(bt) == BlockVoid {
		return 0, false
	}
	return ValType(bt), true
}

func (bt BlockType) String() string {
	t, ok := bt.Result()
	if !ok {
		return ""
	}
	return t.String()
}

// BlockImm holds the block type and nested body for block and loop.
type BlockImm struct {
	Type BlockType
	Body []Instruction
}

// IfImm holds the block type and both branches of an if construct.
// Else is nil when the construct has no else boundary.
type IfImm struct {
	Type BlockType
	Then []Instruction
	Else []Instruction
}

// BranchImm holds the label index for br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds the type index for call_indirect. TableIdx is the
// reserved table byte, always zero in version 1 binaries.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx byte
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds the alignment/offset pair for load and store
// instructions. Both fields are decoded as signed varints.
type MemoryImm struct {
	Align  int64
	Offset int64
}

// MemoryIdxImm holds the reserved memory byte for memory.size and
// memory.grow, always zero in version 1 binaries.
type MemoryIdxImm struct {
	MemIdx byte
}

// I32Imm holds the constant value for i32.const.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const.
type F64Imm struct {
	Value float64
}

// Code is the decoded form of one CodeEntry: the expanded local slots
// followed by the function's instruction sequence.
type Code struct {
	Locals []ValType
	Body   []Instruction
}

// DecodeCode decodes the raw byte body of one function: local-declaration
// groups first, then the instruction stream up to the end opcode that
// terminates the body.
//
// DecodeCode holds no shared state; separate bodies may be decoded
// concurrently from independent calls.
func DecodeCode(body []byte) (*Code, error) {
	r := binary.NewReader(body)

	groups, err := binary.ReadVector(r, readLocalGroup)
	if err != nil {
		return nil, wrapAt(r, err)
	}
	var locals []ValType
	for _, g := range groups {
		for i := uint32(0); i < g.count; i++ {
			locals = append(locals, g.typ)
		}
	}

	instrs, err := decodeExpr(r)
	if err != nil {
		return nil, err
	}
	return &Code{Locals: locals, Body: instrs}, nil
}

// DecodeInstructions decodes a bare instruction stream, such as a
// constant-initializer expression, up to and including the end opcode that
// terminates it.
func DecodeInstructions(data []byte) ([]Instruction, error) {
	return decodeExpr(binary.NewReader(data))
}

type localGroup struct {
	count uint32
	typ   ValType
}

func readLocalGroup(r *binary.Reader) (localGroup, error) {
	count, err := r.ReadU32()
	if err != nil {
		return localGroup{}, err
	}
	t, err := readValType(r)
	if err != nil {
		return localGroup{}, err
	}
	return localGroup{count: count, typ: t}, nil
}

// codeFrame is one open control construct. The bottom frame is the
// implicit function-level construct; its terminating end closes the body.
type codeFrame struct {
	opcode    Opcode // OpBlock, OpLoop, or OpIf; zero for the implicit frame
	blockType BlockType
	list      []Instruction
	elseList  []Instruction
	inElse    bool
}

func (f *codeFrame) push(i Instruction) {
	if f.inElse {
		f.elseList = append(f.elseList, i)
	} else {
		f.list = append(f.list, i)
	}
}

// decodeExpr decodes instructions from r until the implicit bottom frame is
// closed by its matching end opcode, consuming that end. Nesting is tracked
// with an explicit frame stack so depth is bounded by input size, not by
// the call stack.
func decodeExpr(r *binary.Reader) ([]Instruction, error) {
	frames := []codeFrame{{}}

	for {
		off := r.Offset()
		b, err := r.ReadByte()
		if err != nil {
			return nil, &ParseError{Offset: off, Err: fmt.Errorf(
				"%w: stream ended with %d open construct(s)", ErrUnbalancedControlFlow, len(frames))}
		}
		op := Opcode(b)

		switch op {
		case OpBlock, OpLoop, OpIf:
			bt, err := readBlockType(r)
			if err != nil {
				return nil, wrapAt(r, err)
			}
			frames = append(frames, codeFrame{opcode: op, blockType: bt})

		case OpElse:
			top := &frames[len(frames)-1]
			if top.opcode != OpIf || top.inElse {
				return nil, &ParseError{Offset: off, Err: fmt.Errorf(
					"%w: else with no open if", ErrUnbalancedControlFlow)}
			}
			top.inElse = true

		case OpEnd:
			top := frames[len(frames)-1]
			frames = frames[:len(frames)-1]
			if len(frames) == 0 {
				return top.list, nil
			}
			var instr Instruction
			if top.opcode == OpIf {
				instr = Instruction{Opcode: OpIf, Imm: IfImm{Type: top.blockType, Then: top.list, Else: top.elseList}}
			} else {
				instr = Instruction{Opcode: top.opcode, Imm: BlockImm{Type: top.blockType, Body: top.list}}
			}
			frames[len(frames)-1].push(instr)

		default:
			if !op.Known() {
				return nil, &ParseError{Offset: off, Err: fmt.Errorf("%w: %#02x", ErrUnknownOpcode, b)}
			}
			imm, err := readImmediates(r, op)
			if err != nil {
				return nil, wrapAt(r, err)
			}
			frames[len(frames)-1].push(Instruction{Opcode: op, Imm: imm})
		}
	}
}

func readBlockType(r *binary.Reader) (BlockType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case BlockVoid, byte(ValI32), byte(ValI64), byte(ValF32), byte(ValF64), byte(ValFuncRef):
		return BlockType(b), nil
	default:
		return 0, fmt.Errorf("%w: block type %#02x", ErrUnknownValueType, b)
	}
}

// readImmediates decodes the immediate operands for op. Opcodes without
// immediates return nil.
func readImmediates(r *binary.Reader, op Opcode) (any, error) {
	switch op {
	case OpBr, OpBrIf:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return BranchImm{LabelIdx: idx}, nil

	case OpBrTable:
		labels, err := binary.ReadVector(r, (*binary.Reader).ReadU32)
		if err != nil {
			return nil, err
		}
		def, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return BrTableImm{Labels: labels, Default: def}, nil

	case OpCall:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return CallImm{FuncIdx: idx}, nil

	case OpCallIndirect:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		tbl, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return CallIndirectImm{TypeIdx: idx, TableIdx: tbl}, nil

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return LocalImm{LocalIdx: idx}, nil

	case OpGlobalGet, OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		return GlobalImm{GlobalIdx: idx}, nil

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U,
		OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		align, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		offset, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		return MemoryImm{Align: align, Offset: offset}, nil

	case OpMemorySize, OpMemoryGrow:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return MemoryIdxImm{MemIdx: b}, nil

	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return nil, err
		}
		return I32Imm{Value: v}, nil

	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		return I64Imm{Value: v}, nil

	case OpF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return nil, err
		}
		return F32Imm{Value: v}, nil

	case OpF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return nil, err
		}
		return F64Imm{Value: v}, nil

	default:
		return nil, nil
	}
}

// wrapAt attaches the reader's current offset to err unless it already
// carries one.
func wrapAt(r *binary.Reader, err error) error {
	if pe, ok := err.(*ParseError); ok {
		return pe
	}
	return &ParseError{Offset: r.Offset(), Err: err}
}

// String renders the instruction in text-format style, e.g. "i32.const 7"
// or "block (result i32)". Nested bodies are summarized, not expanded.
func (i Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Opcode.String())
	switch imm := i.Imm.(type) {
	case BlockImm:
		if t, ok := imm.Type.Result(); ok {
			fmt.Fprintf(&b, " (result %s)", t)
		}
	case IfImm:
		if t, ok := imm.Type.Result(); ok {
			fmt.Fprintf(&b, " (result %s)", t)
		}
	case BranchImm:
		fmt.Fprintf(&b, " %d", imm.LabelIdx)
	case BrTableImm:
		for _, l := range imm.Labels {
			fmt.Fprintf(&b, " %d", l)
		}
		fmt.Fprintf(&b, " %d", imm.Default)
	case CallImm:
		fmt.Fprintf(&b, " %d", imm.FuncIdx)
	case CallIndirectImm:
		fmt.Fprintf(&b, " (type %d)", imm.TypeIdx)
	case LocalImm:
		fmt.Fprintf(&b, " %d", imm.LocalIdx)
	case GlobalImm:
		fmt.Fprintf(&b, " %d", imm.GlobalIdx)
	case MemoryImm:
		fmt.Fprintf(&b, " align=%d offset=%d", imm.Align, imm.Offset)
	case I32Imm:
		fmt.Fprintf(&b, " %d", imm.Value)
	case I64Imm:
		fmt.Fprintf(&b, " %d", imm.Value)
	case F32Imm:
		fmt.Fprintf(&b, " %g", imm.Value)
	case F64Imm:
		fmt.Fprintf(&b, " %g", imm.Value)
	}
	return b.String()
}
