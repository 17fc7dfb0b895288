package link

import (
	"fmt"
	"strings"
)

// Axis identifies a control surface.
type Axis byte

// Control surfaces.
const (
	AxisRudder   Axis = 0
	AxisElevator Axis = 1
)

// Position is a setpoint of a control surface.
type Position byte

// Setpoints.
const (
	PositionMin     Position = 1
	PositionNeutral Position = 2
	PositionMax     Position = 3
)

var (
	axisNames     = []string{"rudder", "elevator"}
	positionNames = []string{"", "min", "neutral", "max"}
)

// String implements fmt.Stringer.
func (a Axis) String() string {
	if int(a) < len(axisNames) {
		return axisNames[a]
	}
	return fmt.Sprintf("axis(%d)", byte(a))
}

// String implements fmt.Stringer.
func (p Position) String() string {
	if p >= PositionMin && p <= PositionMax {
		return positionNames[p]
	}
	return fmt.Sprintf("position(%d)", byte(p))
}

// ParseAxis parses the name of an axis.
func ParseAxis(s string) (Axis, error) {
	s = strings.ToLower(s)
	for n, name := range axisNames {
		if s == name || s == name[:3] {
			return Axis(n), nil
		}
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// ParsePosition parses the name of a setpoint.
func ParsePosition(s string) (Position, error) {
	s = strings.ToLower(s)
	for n := int(PositionMin); n < len(positionNames); n++ {
		if name := positionNames[n]; s == name || s == name[:3] {
			return Position(n), nil
		}
	}
	return 0, fmt.Errorf("unknown position %q", s)
}

// SetCommand moves a control surface to a setpoint.
// On the wire it's a single byte: bit 2 selects the axis and the low
// two bits the position, so rudder is 1..3 and elevator is 5..7.
type SetCommand struct {
	Axis     Axis
	Position Position
}

// IsValid checks the command maps to a legal wire code.
func (c SetCommand) IsValid() bool {
	return c.Axis <= AxisElevator && c.Position >= PositionMin && c.Position <= PositionMax
}

// Code returns the wire code.
func (c SetCommand) Code() byte {
	return byte(c.Axis)<<2 | byte(c.Position)
}

// String implements fmt.Stringer.
func (c SetCommand) String() string {
	return c.Axis.String() + " " + c.Position.String()
}

// SetCommandFromCode decodes a wire code.
func SetCommandFromCode(code byte) (SetCommand, error) {
	c := SetCommand{Axis: Axis(code >> 2), Position: Position(code & 3)}
	if code > 7 || !c.IsValid() {
		return SetCommand{}, fmt.Errorf("illegal setpoint code %#02x", code)
	}
	return c, nil
}
