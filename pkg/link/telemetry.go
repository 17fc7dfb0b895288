package link

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field identifies a telemetry value.
type Field byte

// Telemetry fields.
const (
	FieldRudder   Field = 0
	FieldElevator Field = 1
	FieldSupply   Field = 2 // mV
	FieldUptime   Field = 3 // seconds
	FieldRxFrames Field = 4
	FieldRejected Field = 5
	FieldUser0    Field = 6
	FieldUser1    Field = 7

	// NumFields is the number of addressable fields.
	NumFields = 8
)

var fieldNames = [NumFields]string{
	"rudder", "elevator", "supply", "uptime", "rx", "rejected", "user0", "user1",
}

// IsValid checks the field is addressable.
func (f Field) IsValid() bool {
	return f < NumFields
}

// String implements fmt.Stringer.
func (f Field) String() string {
	if f.IsValid() {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", byte(f))
}

// ParseField parses a field by name or number.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(s)
	for n, name := range fieldNames {
		if s == name {
			return Field(n), nil
		}
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil && n < NumFields {
		return Field(n), nil
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

// FieldSet is a bitmask of fields.
type FieldSet byte

// FieldSetOf creates a FieldSet.
func FieldSetOf(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s = s.With(f)
	}
	return s
}

// With adds a field.
func (s FieldSet) With(f Field) FieldSet {
	if !f.IsValid() {
		return s
	}
	return s | 1<<f
}

// Has checks if a field is included.
func (s FieldSet) Has(f Field) bool {
	return f.IsValid() && s&(1<<f) != 0
}

// Fields lists the included fields in ascending order.
func (s FieldSet) Fields() []Field {
	var fields []Field
	for f := Field(0); f < NumFields; f++ {
		if s.Has(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// String implements fmt.Stringer.
func (s FieldSet) String() string {
	fields := s.Fields()
	names := make([]string, len(fields))
	for n, f := range fields {
		names[n] = f.String()
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Cadence is the telemetry interval in milliseconds.
// Zero means one-shot.
type Cadence uint16

// OneShot emits a single sample per field then unsubscribes.
const OneShot Cadence = 0

// CadenceOf converts a duration, clamped to the wire range.
func CadenceOf(d time.Duration) Cadence {
	ms := d / time.Millisecond
	if ms <= 0 {
		return OneShot
	}
	if ms > math.MaxUint16 {
		return math.MaxUint16
	}
	return Cadence(ms)
}

// IsOneShot indicates the cadence is one-shot.
func (c Cadence) IsOneShot() bool {
	return c == OneShot
}

// Interval returns the cadence as a duration.
func (c Cadence) Interval() time.Duration {
	return time.Duration(c) * time.Millisecond
}

// String implements fmt.Stringer.
func (c Cadence) String() string {
	if c.IsOneShot() {
		return "one-shot"
	}
	return c.Interval().String()
}

// Sample is a telemetry value with the time it was scheduled for,
// in milliseconds since the telemetry epoch.
type Sample struct {
	Field     Field
	Value     int32
	Timestamp uint32
}
