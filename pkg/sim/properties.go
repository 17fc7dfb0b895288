package sim

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/dispatch"
)

// Properties file layout:
//
//	[[property]]
//	key = 1
//	name = "serial"
//	mode = "display"
//	value = "SIM0001"
//
//	[[property]]
//	key = 2
//	name = "trim"
//	mode = "property"
//	bytes = [0, 0]
type propertyFile struct {
	Property []propertyDef `toml:"property"`
}

type propertyDef struct {
	Key   int    `toml:"key"`
	Name  string `toml:"name"`
	Mode  string `toml:"mode"`
	Value string `toml:"value"`
	Bytes []int  `toml:"bytes"`
}

// DefaultProperties are the properties of a simulated device when no
// properties file is given.
func DefaultProperties() []dispatch.Property {
	return []dispatch.Property{
		{Key: 1, Name: "serial", Mode: link.ModeDisplay, Value: []byte("SIM0001")},
		{Key: 2, Name: "firmware", Mode: link.ModeDisplay, Value: []byte("1.0.0")},
		{Key: 3, Name: "rudder-trim", Mode: link.ModeProperty, Value: []byte{0}},
		{Key: 4, Name: "elevator-trim", Mode: link.ModeProperty, Value: []byte{0}},
		{Key: 5, Name: "name", Mode: link.ModeProperty, Value: []byte("servolink")},
	}
}

// LoadProperties reads properties from a TOML file.
func LoadProperties(path string) ([]dispatch.Property, error) {
	var raw propertyFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load properties: %w", err)
	}
	return convertProperties(&raw, meta)
}

// DecodeProperties reads properties from TOML text.
func DecodeProperties(text string) ([]dispatch.Property, error) {
	var raw propertyFile
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return convertProperties(&raw, meta)
}

func convertProperties(raw *propertyFile, meta toml.MetaData) ([]dispatch.Property, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown property settings: %v", undecoded)
	}
	props := make([]dispatch.Property, 0, len(raw.Property))
	// validate through a table so duplicated keys are rejected.
	table := dispatch.NewPropertyTable()
	for n, def := range raw.Property {
		p, err := def.property()
		if err != nil {
			return nil, fmt.Errorf("property #%d: %w", n+1, err)
		}
		if err := table.Define(p); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

func (d *propertyDef) property() (dispatch.Property, error) {
	p := dispatch.Property{Name: strings.TrimSpace(d.Name)}
	if d.Key < 0 || d.Key > 0xff {
		return p, fmt.Errorf("key %d out of range", d.Key)
	}
	p.Key = link.PropertyKey(d.Key)
	mode, err := link.ParsePropertyMode(strings.TrimSpace(d.Mode))
	if err != nil {
		return p, err
	}
	p.Mode = mode
	if d.Value != "" && len(d.Bytes) > 0 {
		return p, fmt.Errorf("key %d: value and bytes are exclusive", d.Key)
	}
	p.Value = []byte(d.Value)
	for _, b := range d.Bytes {
		if b < 0 || b > 0xff {
			return p, fmt.Errorf("key %d: byte %d out of range", d.Key, b)
		}
		p.Value = append(p.Value, byte(b))
	}
	return p, nil
}
