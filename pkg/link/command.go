package link

import (
	"encoding/binary"
	"fmt"
)

// Command is a decoded frame. The set of implementations is closed,
// one per frame shape, so dispatch can switch on the concrete type.
type Command interface {
	Opcode() Opcode
	Payload() []byte
	isCommand()
}

// FrameOf encodes a command into a frame.
func FrameOf(cmd Command) *Frame {
	return &Frame{Opcode: cmd.Opcode(), Payload: cmd.Payload()}
}

// LogLevel is the severity of a log message.
type LogLevel byte

// Log levels.
const (
	LogDebug LogLevel = 0
	LogInfo  LogLevel = 1
	LogWarn  LogLevel = 2
	LogError LogLevel = 3

	// NackMarker replaces the level in a LOG frame to make it a NACK.
	NackMarker byte = 0xff
)

// LogMessage is a free-form notification, it's never acknowledged.
type LogMessage struct {
	Level LogLevel
	Text  string
}

// Nack rejects a command.
type Nack struct {
	Rejected Opcode
	Code     ErrorCode
}

// Err converts the NACK into a CommandError.
func (n *Nack) Err() error {
	return &CommandError{Code: n.Code, Opcode: n.Rejected}
}

// NackOf creates a NACK from an error, unknown errors become HandlerFailed.
func NackOf(op Opcode, err error) *Nack {
	n := &Nack{Rejected: op, Code: CodeHandlerFailed}
	if cmdErr, ok := err.(*CommandError); ok {
		n.Code = cmdErr.Code
	}
	return n
}

// RequestKind is the subtype of a REQ command.
type RequestKind byte

// RequestInit is the initial handshake.
const RequestInit RequestKind = 0x01

// Request is a REQ command.
type Request struct {
	Kind RequestKind
}

// RebootPhase distinguishes RBT frames.
type RebootPhase int

// Reboot phases.
const (
	// RebootRequested is the request, it has no payload.
	RebootRequested RebootPhase = iota
	// RebootPending acknowledges the request.
	RebootPending
	// RebootDone notifies the reboot completed.
	RebootDone
)

// Reboot is a RBT command.
type Reboot struct {
	Phase RebootPhase
}

// TelemetryQuery queries (Set is false) or sets the telemetry cadence.
type TelemetryQuery struct {
	Set     bool
	Cadence Cadence
}

// TelemetryStart starts streaming the fields, empty set stops streaming.
type TelemetryStart struct {
	Fields FieldSet
}

// TelemetryData carries an unsolicited sample.
type TelemetryData struct {
	Sample
}

// TelemetryValue requests the value of a field (HasValue is false)
// or carries the response.
type TelemetryValue struct {
	Field    Field
	HasValue bool
	Value    int32
}

// Swap stages a property value (Value non-nil) or commits the staged one.
type Swap struct {
	Key   PropertyKey
	Value []byte
}

// IsCommit indicates a commit of a staged swap.
func (c *Swap) IsCommit() bool {
	return c.Value == nil
}

// PropertyCommand reads (Mode is ModeDisplay) or writes a property.
// Responses carry the mode of the property and its value.
type PropertyCommand struct {
	Key   PropertyKey
	Mode  PropertyMode
	Value []byte
}

// IsWrite indicates a write.
func (c *PropertyCommand) IsWrite() bool {
	return c.Mode == ModeProperty
}

func (*LogMessage) isCommand()      {}
func (*Nack) isCommand()            {}
func (*SetCommand) isCommand()      {}
func (*Request) isCommand()         {}
func (*Reboot) isCommand()          {}
func (*TelemetryQuery) isCommand()  {}
func (*TelemetryStart) isCommand()  {}
func (*TelemetryData) isCommand()   {}
func (*TelemetryValue) isCommand()  {}
func (*Swap) isCommand()            {}
func (*PropertyCommand) isCommand() {}

// Opcode implements Command.
func (*LogMessage) Opcode() Opcode      { return OpLog }
func (*Nack) Opcode() Opcode            { return OpLog }
func (*SetCommand) Opcode() Opcode      { return OpSet }
func (*Request) Opcode() Opcode         { return OpRequest }
func (*Reboot) Opcode() Opcode          { return OpReboot }
func (*TelemetryQuery) Opcode() Opcode  { return OpTelemetryQuery }
func (*TelemetryStart) Opcode() Opcode  { return OpTelemetryStart }
func (*TelemetryData) Opcode() Opcode   { return OpTelemetryData }
func (*TelemetryValue) Opcode() Opcode  { return OpTelemetryValue }
func (*Swap) Opcode() Opcode            { return OpSwap }
func (*PropertyCommand) Opcode() Opcode { return OpProperty }

// Payload implements Command.
func (c *LogMessage) Payload() []byte {
	text := c.Text
	if len(text) > MaxPayloadSize-1 {
		text = text[:MaxPayloadSize-1]
	}
	return append([]byte{byte(c.Level)}, text...)
}

// Payload implements Command.
func (c *Nack) Payload() []byte {
	return []byte{NackMarker, byte(c.Rejected), byte(c.Code)}
}

// Payload implements Command.
func (c *SetCommand) Payload() []byte {
	return []byte{c.Code()}
}

// Payload implements Command.
func (c *Request) Payload() []byte {
	return []byte{byte(c.Kind)}
}

// Payload implements Command.
func (c *Reboot) Payload() []byte {
	switch c.Phase {
	case RebootPending:
		return []byte{0}
	case RebootDone:
		return []byte{1}
	}
	return nil
}

// Payload implements Command.
func (c *TelemetryQuery) Payload() []byte {
	if !c.Set {
		return nil
	}
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(c.Cadence))
	return b
}

// Payload implements Command.
func (c *TelemetryStart) Payload() []byte {
	return []byte{byte(c.Fields)}
}

// Payload implements Command.
func (c *TelemetryData) Payload() []byte {
	b := make([]byte, 9)
	b[0] = byte(c.Field)
	binary.LittleEndian.PutUint32(b[1:5], uint32(c.Value))
	binary.LittleEndian.PutUint32(b[5:9], c.Timestamp)
	return b
}

// Payload implements Command.
func (c *TelemetryValue) Payload() []byte {
	if !c.HasValue {
		return []byte{byte(c.Field)}
	}
	b := make([]byte, 5)
	b[0] = byte(c.Field)
	binary.LittleEndian.PutUint32(b[1:], uint32(c.Value))
	return b
}

// Payload implements Command.
func (c *Swap) Payload() []byte {
	return append([]byte{byte(c.Key)}, c.Value...)
}

// Payload implements Command.
func (c *PropertyCommand) Payload() []byte {
	return append([]byte{byte(c.Key), byte(c.Mode)}, c.Value...)
}

// String implements fmt.Stringer.
func (c *Nack) String() string {
	return fmt.Sprintf("NACK %s: %s", c.Rejected, c.Code)
}
