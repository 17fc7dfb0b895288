package link

import (
	"fmt"
	"io"
)

// Frame sizes.
const (
	HeaderSize     = 2
	TrailerSize    = 1
	Overhead       = HeaderSize + TrailerSize
	MaxPayloadSize = 0xff
	MaxFrameSize   = Overhead + MaxPayloadSize
)

// Frame is a complete, checksummed protocol message.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// NewFrame creates a frame.
func NewFrame(op Opcode, payload ...byte) *Frame {
	return &Frame{Opcode: op, Payload: payload}
}

// Len returns the encoded size.
func (f *Frame) Len() int {
	n := len(f.Payload)
	if n > MaxPayloadSize {
		n = MaxPayloadSize
	}
	return n + Overhead
}

// Bytes returns encoded bytes for sending.
// Payload beyond MaxPayloadSize is truncated, use Encode to get an error instead.
func (f *Frame) Bytes() []byte {
	b := make([]byte, f.Len())
	n := len(b) - Overhead
	b[0], b[1] = byte(f.Opcode), byte(n)
	copy(b[HeaderSize:], f.Payload[:n])
	b[len(b)-1] = Checksum(b[:len(b)-1])
	return b
}

// WriteTo implements io.WriterTo, it fails with ErrPayloadTooLarge
// instead of truncating the payload.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	b, err := Encode(f.Opcode, f.Payload)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return fmt.Sprintf("%s[% x]", f.Opcode, f.Payload)
}

// Encode encodes a frame from opcode and payload.
func Encode(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	return (&Frame{Opcode: op, Payload: payload}).Bytes(), nil
}

// Decode decodes the first frame in b using the default registry.
func Decode(b []byte) (*Frame, error) {
	return defaultRegistry.Decode(b)
}

// Decode decodes the first frame in b, bytes after it are ignored.
// The opcode must be registered.
func (r *Registry) Decode(b []byte) (*Frame, error) {
	if len(b) == 0 {
		return nil, &DecodeError{Kind: Truncated}
	}
	op := Opcode(b[0])
	if _, ok := r.Lookup(op); !ok {
		return nil, &DecodeError{Kind: UnknownOpcode, Opcode: op}
	}
	if len(b) < HeaderSize {
		return nil, &DecodeError{Kind: Truncated, Opcode: op}
	}
	size := int(b[1]) + Overhead
	if len(b) < size {
		return nil, &DecodeError{Kind: Truncated, Opcode: op}
	}
	if Checksum(b[:size-1]) != b[size-1] {
		return nil, &DecodeError{Kind: ChecksumMismatch, Opcode: op}
	}
	f := &Frame{Opcode: op}
	if size > Overhead {
		f.Payload = make([]byte, size-Overhead)
		copy(f.Payload, b[HeaderSize:size-1])
	}
	return f, nil
}
