package dispatch

import (
	"fmt"
	"sort"

	"github.com/robotalks/servolink/pkg/link"
)

// Property is a named device configuration value.
type Property struct {
	Key   link.PropertyKey
	Name  string
	Mode  link.PropertyMode
	Value []byte
}

func (p *Property) clone() Property {
	c := *p
	c.Value = append([]byte{}, p.Value...)
	return c
}

// PropertyTable holds the device properties. It's populated at boot
// with Define, afterwards only the Engine changes values, in response
// to validated PRP writes and committed swaps. Properties are never
// removed. PropertyTable is not safe for concurrent use.
type PropertyTable struct {
	props map[link.PropertyKey]*Property
}

// NewPropertyTable creates a table, panics on invalid definitions.
func NewPropertyTable(props ...Property) *PropertyTable {
	t := &PropertyTable{props: make(map[link.PropertyKey]*Property)}
	for _, p := range props {
		if err := t.Define(p); err != nil {
			panic(err)
		}
	}
	return t
}

// Define adds a property.
func (t *PropertyTable) Define(p Property) error {
	if _, exists := t.props[p.Key]; exists {
		return fmt.Errorf("property %d already defined", p.Key)
	}
	if p.Mode != link.ModeDisplay && p.Mode != link.ModeProperty {
		return fmt.Errorf("property %d: invalid mode %d", p.Key, p.Mode)
	}
	if len(p.Value) > link.MaxPropertyValueSize {
		return fmt.Errorf("property %d: value too large", p.Key)
	}
	// a PRP reply of a writable property must carry a value.
	if p.Mode == link.ModeProperty && len(p.Value) == 0 {
		return fmt.Errorf("property %d: writable property without value", p.Key)
	}
	c := p.clone()
	t.props[p.Key] = &c
	return nil
}

// Get returns a copy of a property.
func (t *PropertyTable) Get(key link.PropertyKey) (Property, bool) {
	p, ok := t.props[key]
	if !ok {
		return Property{}, false
	}
	return p.clone(), true
}

// Len returns the number of properties.
func (t *PropertyTable) Len() int {
	return len(t.props)
}

// Snapshot copies all properties ordered by key, e.g. to persist them
// across reboots and restore with NewPropertyTable.
func (t *PropertyTable) Snapshot() []Property {
	props := make([]Property, 0, len(t.props))
	for _, p := range t.props {
		props = append(props, p.clone())
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Key < props[j].Key })
	return props
}

// writable finds a property which can be written.
func (t *PropertyTable) writable(op link.Opcode, key link.PropertyKey) (*Property, error) {
	p, ok := t.props[key]
	if !ok {
		return nil, &link.CommandError{Code: link.CodeUnknownProperty, Opcode: op, Err: fmt.Errorf("key %d", key)}
	}
	if p.Mode != link.ModeProperty {
		return nil, &link.CommandError{Code: link.CodeReadOnlyProperty, Opcode: op, Err: fmt.Errorf("key %d", key)}
	}
	return p, nil
}
