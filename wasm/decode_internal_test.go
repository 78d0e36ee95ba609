package wasm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wippyai/wadze/wasm/internal/binary"
)

// Unit tests for internal section-level decoders with controlled readers.

func TestReadLimits(t *testing.T) {
	r := binary.NewReader([]byte{0x01, 0x01, 0x10})
	l, err := readLimits(r)
	if err != nil {
		t.Fatalf("readLimits: %v", err)
	}
	if l.Min != 1 || l.Max == nil || *l.Max != 16 {
		t.Errorf("limits = %+v", l)
	}
}

func TestReadLimitsNoMax(t *testing.T) {
	r := binary.NewReader([]byte{0x00, 0x05})
	l, err := readLimits(r)
	if err != nil {
		t.Fatalf("readLimits: %v", err)
	}
	if l.Min != 5 || l.Max != nil {
		t.Errorf("limits = %+v", l)
	}
}

func TestReadLimitsMaxBelowMin(t *testing.T) {
	r := binary.NewReader([]byte{0x01, 0x10, 0x01})
	_, err := readLimits(r)
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestReadValTypeUnknown(t *testing.T) {
	r := binary.NewReader([]byte{0x6F})
	_, err := readValType(r)
	if !errors.Is(err, ErrUnknownValueType) {
		t.Errorf("expected ErrUnknownValueType, got %v", err)
	}
}

func TestReadFuncTypeBadTag(t *testing.T) {
	r := binary.NewReader([]byte{0x5F, 0x00, 0x00})
	_, err := readFuncType(r)
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestReadInitExprKeepsRawBytes(t *testing.T) {
	// i32.const 7, end, then unrelated trailing bytes
	data := []byte{0x41, 0x07, 0x0B, 0xAA, 0xBB}
	r := binary.NewReader(data)

	expr, err := readInitExpr(r)
	if err != nil {
		t.Fatalf("readInitExpr: %v", err)
	}
	if !bytes.Equal(expr, []byte{0x41, 0x07, 0x0B}) {
		t.Errorf("expr = % x", expr)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 bytes remaining, got %d", r.Len())
	}

	// The raw slice feeds back through the instruction decoder.
	instrs, err := DecodeInstructions(expr)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if len(instrs) != 1 || instrs[0].Opcode != OpI32Const {
		t.Errorf("instrs = %v", instrs)
	}
}

func TestReadInitExprUnterminated(t *testing.T) {
	r := binary.NewReader([]byte{0x41, 0x07})
	_, err := readInitExpr(r)
	if !errors.Is(err, ErrUnbalancedControlFlow) {
		t.Errorf("expected ErrUnbalancedControlFlow, got %v", err)
	}
}

func TestReadGlobalType(t *testing.T) {
	r := binary.NewReader([]byte{0x7E, 0x00})
	gt, err := readGlobalType(r)
	if err != nil {
		t.Fatalf("readGlobalType: %v", err)
	}
	if gt.ValType != ValI64 || gt.Mutable {
		t.Errorf("global type = %+v", gt)
	}
}

func TestReadImportBadKind(t *testing.T) {
	var data []byte
	data = append(data, 0x01, 'm')
	data = append(data, 0x01, 'n')
	data = append(data, 0x07)
	r := binary.NewReader(data)

	_, err := readImport(r)
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("expected ErrInvalidEncoding, got %v", err)
	}
}
