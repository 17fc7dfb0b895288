package link

import (
	"errors"
	"fmt"
)

// DecodeErrorKind classifies a decoding failure.
type DecodeErrorKind int

// Decode error kinds.
const (
	Truncated DecodeErrorKind = iota + 1
	ChecksumMismatch
	UnknownOpcode
	Oversized
	BufferOverflow
)

var decodeErrorKindNames = map[DecodeErrorKind]string{
	Truncated:        "truncated",
	ChecksumMismatch: "checksum mismatch",
	UnknownOpcode:    "unknown opcode",
	Oversized:        "oversized payload",
	BufferOverflow:   "buffer overflow",
}

// String implements fmt.Stringer.
func (k DecodeErrorKind) String() string {
	if s, ok := decodeErrorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("decode error %d", int(k))
}

// DecodeError is returned when bytes can't be decoded into a frame.
// All decode errors are recoverable by resynchronizing the stream.
type DecodeError struct {
	Kind   DecodeErrorKind
	Opcode Opcode
	// Discarded is the number of bytes dropped while resynchronizing.
	Discarded int
}

// Error implements error.
func (e *DecodeError) Error() string {
	msg := "decode " + e.Opcode.String() + ": " + e.Kind.String()
	if e.Discarded > 0 {
		msg += fmt.Sprintf(" (%d bytes discarded)", e.Discarded)
	}
	return msg
}

// Is matches decode errors by kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrTruncated        = &DecodeError{Kind: Truncated}
	ErrChecksumMismatch = &DecodeError{Kind: ChecksumMismatch}
	ErrUnknownOpcode    = &DecodeError{Kind: UnknownOpcode}
	ErrOversized        = &DecodeError{Kind: Oversized}
	ErrBufferOverflow   = &DecodeError{Kind: BufferOverflow}
)

// ErrorCode is carried in a NACK to explain a rejected command.
type ErrorCode byte

// Error codes.
const (
	CodeInvalidPayload    ErrorCode = 0x01
	CodeUnexpectedCommand ErrorCode = 0x02
	CodeSessionNotReady   ErrorCode = 0x03
	CodeUnknownProperty   ErrorCode = 0x04
	CodeReadOnlyProperty  ErrorCode = 0x05
	CodeHandlerFailed     ErrorCode = 0x06
)

var errorCodeNames = map[ErrorCode]string{
	CodeInvalidPayload:    "invalid payload",
	CodeUnexpectedCommand: "unexpected command",
	CodeSessionNotReady:   "session not ready",
	CodeUnknownProperty:   "unknown property",
	CodeReadOnlyProperty:  "read-only property",
	CodeHandlerFailed:     "handler failed",
}

// IsValid indicates the code is defined.
func (c ErrorCode) IsValid() bool {
	_, ok := errorCodeNames[c]
	return ok
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error code %d", byte(c))
}

// CommandError indicates a decoded frame was rejected as a command.
type CommandError struct {
	Code   ErrorCode
	Opcode Opcode
	Err    error
}

// Error implements error.
func (e *CommandError) Error() string {
	msg := e.Opcode.String() + ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is matches command errors by code.
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidPayload    = &CommandError{Code: CodeInvalidPayload}
	ErrUnexpectedCommand = &CommandError{Code: CodeUnexpectedCommand}
	ErrSessionNotReady   = &CommandError{Code: CodeSessionNotReady}
	ErrUnknownProperty   = &CommandError{Code: CodeUnknownProperty}
	ErrReadOnlyProperty  = &CommandError{Code: CodeReadOnlyProperty}
	ErrHandlerFailed     = &CommandError{Code: CodeHandlerFailed}
)

func invalidPayload(op Opcode, format string, args ...interface{}) error {
	return &CommandError{Code: CodeInvalidPayload, Opcode: op, Err: fmt.Errorf(format, args...)}
}

// TransportError wraps a failure of the underlying byte stream.
// It is fatal to the current session but not to the process.
type TransportError struct {
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return "transport: " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

var (
	// ErrPayloadTooLarge indicates the payload doesn't fit in a frame.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrOpcodeRegistered indicates a conflicting registration.
	ErrOpcodeRegistered = errors.New("opcode already registered")
)
