package link

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// CommandSpec declares the payload shape of an opcode.
type CommandSpec struct {
	Opcode Opcode
	Name   string
	MinLen int
	MaxLen int
	// Validate checks the payload after the length check, optional.
	Validate func(payload []byte) error
	// Parse builds the Command from a validated payload.
	Parse func(payload []byte) Command
}

// Check validates the payload length and field ranges.
func (s *CommandSpec) Check(payload []byte) error {
	if l := len(payload); l < s.MinLen || l > s.MaxLen {
		if s.MinLen == s.MaxLen {
			return invalidPayload(s.Opcode, "length %d, expect %d", l, s.MinLen)
		}
		return invalidPayload(s.Opcode, "length %d, expect %d..%d", l, s.MinLen, s.MaxLen)
	}
	if s.Validate != nil {
		if err := s.Validate(payload); err != nil {
			if _, ok := err.(*CommandError); ok {
				return err
			}
			return &CommandError{Code: CodeInvalidPayload, Opcode: s.Opcode, Err: err}
		}
	}
	return nil
}

// Registry maps opcodes to their specs.
type Registry struct {
	specs    map[Opcode]*CommandSpec
	requests map[RequestKind]string
	lock     sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[Opcode]*CommandSpec),
		requests: make(map[RequestKind]string),
	}
}

var defaultRegistry = DefaultRegistry()

// DefaultRegistry creates a Registry with the full protocol vocabulary.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, spec := range r.builtinSpecs() {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	if err := r.RegisterRequest(RequestInit, "INI"); err != nil {
		panic(err)
	}
	return r
}

// Register adds a spec, an opcode can only be registered once.
func (r *Registry) Register(spec *CommandSpec) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.specs[spec.Opcode]; exists {
		return fmt.Errorf("%s: %w", spec.Opcode, ErrOpcodeRegistered)
	}
	r.specs[spec.Opcode] = spec
	return nil
}

// RegisterRequest adds a REQ subtype, subtypes must not collide.
func (r *Registry) RegisterRequest(kind RequestKind, name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if existing, ok := r.requests[kind]; ok {
		return fmt.Errorf("request %#02x already registered as %s", byte(kind), existing)
	}
	r.requests[kind] = name
	return nil
}

// Lookup finds the spec of an opcode.
func (r *Registry) Lookup(op Opcode) (*CommandSpec, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	spec, ok := r.specs[op]
	return spec, ok
}

// Validate checks the payload of a frame.
func (r *Registry) Validate(f *Frame) error {
	spec, ok := r.Lookup(f.Opcode)
	if !ok {
		return &DecodeError{Kind: UnknownOpcode, Opcode: f.Opcode}
	}
	return spec.Check(f.Payload)
}

// Parse validates a frame and converts it into a Command.
func (r *Registry) Parse(f *Frame) (Command, error) {
	spec, ok := r.Lookup(f.Opcode)
	if !ok {
		return nil, &DecodeError{Kind: UnknownOpcode, Opcode: f.Opcode}
	}
	if err := spec.Check(f.Payload); err != nil {
		return nil, err
	}
	return spec.Parse(f.Payload), nil
}

// Parse converts a frame into a Command using the default registry.
func Parse(f *Frame) (Command, error) {
	return defaultRegistry.Parse(f)
}

func (r *Registry) validateRequest(p []byte) error {
	r.lock.RLock()
	_, ok := r.requests[RequestKind(p[0])]
	r.lock.RUnlock()
	if !ok {
		return fmt.Errorf("unknown request %#02x", p[0])
	}
	return nil
}

func validateField(f byte) error {
	if !Field(f).IsValid() {
		return fmt.Errorf("unknown field %d", f)
	}
	return nil
}

func (r *Registry) builtinSpecs() []*CommandSpec {
	return []*CommandSpec{
		{
			Opcode: OpLog, Name: "log", MinLen: 1, MaxLen: MaxPayloadSize,
			Validate: func(p []byte) error {
				if p[0] == NackMarker {
					if len(p) != 3 || !Opcode(p[1]).IsKnown() || !ErrorCode(p[2]).IsValid() {
						return fmt.Errorf("malformed NACK")
					}
					return nil
				}
				if LogLevel(p[0]) > LogError {
					return fmt.Errorf("unknown log level %d", p[0])
				}
				return nil
			},
			Parse: func(p []byte) Command {
				if p[0] == NackMarker {
					return &Nack{Rejected: Opcode(p[1]), Code: ErrorCode(p[2])}
				}
				return &LogMessage{Level: LogLevel(p[0]), Text: string(p[1:])}
			},
		},
		{
			Opcode: OpSet, Name: "set", MinLen: 1, MaxLen: 1,
			Validate: func(p []byte) error {
				_, err := SetCommandFromCode(p[0])
				return err
			},
			Parse: func(p []byte) Command {
				cmd, _ := SetCommandFromCode(p[0])
				return &cmd
			},
		},
		{
			Opcode: OpRequest, Name: "request", MinLen: 1, MaxLen: 1,
			Validate: r.validateRequest,
			Parse: func(p []byte) Command {
				return &Request{Kind: RequestKind(p[0])}
			},
		},
		{
			Opcode: OpReboot, Name: "reboot", MinLen: 0, MaxLen: 1,
			Validate: func(p []byte) error {
				if len(p) > 0 && p[0] > 1 {
					return fmt.Errorf("unknown reboot status %d", p[0])
				}
				return nil
			},
			Parse: func(p []byte) Command {
				switch {
				case len(p) == 0:
					return &Reboot{Phase: RebootRequested}
				case p[0] == 0:
					return &Reboot{Phase: RebootPending}
				}
				return &Reboot{Phase: RebootDone}
			},
		},
		{
			Opcode: OpTelemetryQuery, Name: "telemetry-query", MinLen: 0, MaxLen: 2,
			Validate: func(p []byte) error {
				if len(p) == 1 {
					return fmt.Errorf("truncated cadence")
				}
				return nil
			},
			Parse: func(p []byte) Command {
				if len(p) == 0 {
					return &TelemetryQuery{}
				}
				return &TelemetryQuery{Set: true, Cadence: Cadence(binary.LittleEndian.Uint16(p))}
			},
		},
		{
			Opcode: OpTelemetryStart, Name: "telemetry-start", MinLen: 1, MaxLen: 1,
			Parse: func(p []byte) Command {
				return &TelemetryStart{Fields: FieldSet(p[0])}
			},
		},
		{
			Opcode: OpTelemetryData, Name: "telemetry-data", MinLen: 9, MaxLen: 9,
			Validate: func(p []byte) error {
				return validateField(p[0])
			},
			Parse: func(p []byte) Command {
				return &TelemetryData{Sample{
					Field:     Field(p[0]),
					Value:     int32(binary.LittleEndian.Uint32(p[1:5])),
					Timestamp: binary.LittleEndian.Uint32(p[5:9]),
				}}
			},
		},
		{
			Opcode: OpTelemetryValue, Name: "telemetry-value", MinLen: 1, MaxLen: 5,
			Validate: func(p []byte) error {
				if len(p) != 1 && len(p) != 5 {
					return fmt.Errorf("length %d, expect 1 or 5", len(p))
				}
				return validateField(p[0])
			},
			Parse: func(p []byte) Command {
				if len(p) == 1 {
					return &TelemetryValue{Field: Field(p[0])}
				}
				return &TelemetryValue{
					Field:    Field(p[0]),
					HasValue: true,
					Value:    int32(binary.LittleEndian.Uint32(p[1:])),
				}
			},
		},
		{
			Opcode: OpSwap, Name: "swap", MinLen: 1, MaxLen: 1 + MaxPropertyValueSize,
			Parse: func(p []byte) Command {
				cmd := &Swap{Key: PropertyKey(p[0])}
				if len(p) > 1 {
					cmd.Value = append([]byte{}, p[1:]...)
				}
				return cmd
			},
		},
		{
			Opcode: OpProperty, Name: "property", MinLen: 2, MaxLen: MaxPayloadSize,
			Validate: func(p []byte) error {
				switch PropertyMode(p[1]) {
				case ModeDisplay:
				case ModeProperty:
					if len(p) < 3 {
						return fmt.Errorf("write without value")
					}
				default:
					return fmt.Errorf("unknown property mode %d", p[1])
				}
				return nil
			},
			Parse: func(p []byte) Command {
				cmd := &PropertyCommand{Key: PropertyKey(p[0]), Mode: PropertyMode(p[1])}
				if len(p) > 2 {
					cmd.Value = append([]byte{}, p[2:]...)
				}
				return cmd
			},
		},
	}
}
