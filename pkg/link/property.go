package link

import "fmt"

// PropertyKey identifies a device property.
type PropertyKey byte

// PropertyMode is the access mode of a property.
type PropertyMode byte

// Property modes, also used as the PRP sub-mode byte.
const (
	// ModeDisplay is read-only, a PRP read only echoes it.
	ModeDisplay PropertyMode = 0x00
	// ModeProperty is read/write.
	ModeProperty PropertyMode = 0x01
)

// String implements fmt.Stringer.
func (m PropertyMode) String() string {
	switch m {
	case ModeDisplay:
		return "display"
	case ModeProperty:
		return "property"
	}
	return fmt.Sprintf("mode(%d)", byte(m))
}

// ParsePropertyMode parses a mode name.
func ParsePropertyMode(s string) (PropertyMode, error) {
	switch s {
	case "display", "dsp", "ro", "":
		return ModeDisplay, nil
	case "property", "prp", "rw":
		return ModeProperty, nil
	}
	return 0, fmt.Errorf("unknown property mode %q", s)
}

// MaxPropertyValueSize is the largest value a PRP frame carries.
const MaxPropertyValueSize = MaxPayloadSize - 2
