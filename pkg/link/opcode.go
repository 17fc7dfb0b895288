package link

import "fmt"

// Opcode selects the semantics of a frame.
type Opcode byte

// Opcodes
const (
	OpLog            Opcode = 0x00
	OpSet            Opcode = 0x01
	OpRequest        Opcode = 0x02
	OpReboot         Opcode = 0x03
	OpTelemetryQuery Opcode = 0x04
	OpTelemetryStart Opcode = 0x05
	OpTelemetryData  Opcode = 0x06
	OpTelemetryValue Opcode = 0x07
	OpSwap           Opcode = 0x08
	OpProperty       Opcode = 0xF0
)

var opcodeNames = map[Opcode]string{
	OpLog:            "LOG",
	OpSet:            "SET",
	OpRequest:        "REQ",
	OpReboot:         "RBT",
	OpTelemetryQuery: "TQS",
	OpTelemetryStart: "TMS",
	OpTelemetryData:  "TMD",
	OpTelemetryValue: "TMV",
	OpSwap:           "SWP",
	OpProperty:       "PRP",
}

// IsKnown indicates the opcode is part of the protocol vocabulary.
func (o Opcode) IsKnown() bool {
	_, ok := opcodeNames[o]
	return ok
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OP(%#02x)", byte(o))
}
