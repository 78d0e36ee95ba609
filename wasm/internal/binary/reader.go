// Package binary implements the low-level byte cursor used by the wasm
// package. A Reader wraps a resident byte buffer and a mutable position;
// every read either returns a value and advances the position or fails
// without reading out of bounds.
package binary

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// ErrTruncated is returned when a read requires more bytes than remain.
var ErrTruncated = errors.New("truncated input")

// ErrInvalidEncoding is returned when a name is not valid UTF-8.
var ErrInvalidEncoding = errors.New("invalid UTF-8 encoding")

// Reader is a cursor over an immutable byte buffer. The buffer is shared,
// never copied; callers must not mutate it while any Reader derived from it
// is in use. A Reader is not safe for concurrent use, but independent
// Readers over the same buffer are.
type Reader struct {
	data []byte
	pos  int
	base int // absolute offset of data[0] in the original input
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Pos returns the current position relative to the start of this Reader's
// buffer. Useful for slicing raw byte ranges out of the buffer.
func (r *Reader) Pos() int {
	return r.pos
}

// Offset returns the absolute byte offset in the original input, for error
// reporting. For a sub-reader this accounts for where its window begins.
func (r *Reader) Offset() int {
	return r.base + r.pos
}

// Data returns the underlying buffer. The result must be treated as
// read-only.
func (r *Reader) Data() []byte {
	return r.data
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrTruncated
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the
// underlying buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrTruncated
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadRemaining consumes and returns all unread bytes.
func (r *Reader) ReadRemaining() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

// Sub consumes n bytes and returns a Reader bounded to exactly that window.
// The sub-reader shares the buffer and reports absolute offsets.
func (r *Reader) Sub(n int) (*Reader, error) {
	start := r.Offset()
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return &Reader{data: b, base: start}, nil
}

// ReadU32 reads an unsigned LEB128 value.
//
// Over-long encodings are accepted and bits beyond 32 are discarded; the
// only failure mode is running out of bytes. Canonical length is not
// enforced, so historically tolerated encodings keep decoding.
func (r *Reader) ReadU32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift < 32 {
			result |= uint32(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadU64 reads an unsigned 64-bit LEB128 value with the same permissive
// over-long handling as ReadU32.
func (r *Reader) ReadU64() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadS64 reads a signed LEB128 value. The final group's sign bit is
// extended into the result.
func (r *Reader) ReadS64() (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, nil
		}
	}
}

// ReadS32 reads a signed LEB128 value truncated to 32 bits.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadS64()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadF32 reads a fixed 4-byte little-endian IEEE-754 value.
func (r *Reader) ReadF32() (float32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadF64 reads a fixed 8-byte little-endian IEEE-754 value.
func (r *Reader) ReadF64() (float64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadU32LE reads a fixed 4-byte little-endian uint32.
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadName reads a length-prefixed UTF-8 string.
func (r *Reader) ReadName() (string, error) {
	length, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidEncoding
	}
	return string(b), nil
}

// ReadVector reads a count-prefixed sequence by invoking elem count times.
// Every repeated structure in the binary format goes through this.
func ReadVector[T any](r *Reader, elem func(*Reader) (T, error)) ([]T, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	// Each element occupies at least one byte; bound the initial allocation
	// by the bytes that remain so a corrupt count cannot force one.
	out := make([]T, 0, min(int(count), r.Len()))
	for i := uint32(0); i < count; i++ {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
