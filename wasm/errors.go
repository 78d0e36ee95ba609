package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wadze/wasm/internal/binary"
)

// Decode failures. Every error returned by ParseModule, DecodeCode, and
// DecodeInstructions matches exactly one of these with errors.Is. Malformed
// input is a permanent condition: a failure aborts the whole decode call and
// no partial result is returned.
var (
	// ErrNotWasm is returned when the input does not start with the
	// WebAssembly magic number (or is too short to contain it).
	ErrNotWasm = errors.New("wasm: not a WebAssembly module")

	// ErrUnsupportedVersion is returned when the binary version field is
	// not the supported version 1.
	ErrUnsupportedVersion = errors.New("wasm: unsupported binary version")

	// ErrTruncated is returned when a read runs past the end of the input.
	ErrTruncated = binary.ErrTruncated

	// ErrInvalidEncoding is returned when a name is not valid UTF-8.
	ErrInvalidEncoding = binary.ErrInvalidEncoding

	// ErrSectionLengthMismatch is returned when a section's content does
	// not consume exactly its declared byte length.
	ErrSectionLengthMismatch = errors.New("wasm: section length mismatch")

	// ErrUnknownSection is returned for a non-custom section tag outside
	// the recognized set.
	ErrUnknownSection = errors.New("wasm: unknown section id")

	// ErrUnknownValueType is returned for a value-type byte outside the
	// recognized set.
	ErrUnknownValueType = errors.New("wasm: unknown value type")

	// ErrUnknownOpcode is returned for an instruction byte outside the
	// recognized set.
	ErrUnknownOpcode = errors.New("wasm: unknown opcode")

	// ErrUnbalancedControlFlow is returned for mismatched or unterminated
	// block/loop/if nesting in a function body.
	ErrUnbalancedControlFlow = errors.New("wasm: unbalanced control flow")
)

// ParseError carries the byte offset at which a decode failure was detected,
// plus the section being decoded when there is one.
type ParseError struct {
	Section string
	Offset  int
	Err     error
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s section at offset %d: %v", e.Section, e.Offset, e.Err)
	}
	return fmt.Sprintf("offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
