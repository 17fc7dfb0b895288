// Package notation converts commands to and from a line oriented text
// form, used by the shell and the MQTT bridge:
//
//	hello
//	set rudder max
//	prop 2 [VALUE...]
//	swap 2 [VALUE...]
//	schedule [MS|DURATION]
//	stream rudder,supply | stream off
//	value supply
//	reboot
//
// A VALUE token is a hex string (0x0a0b), a decimal byte (0..255),
// a quoted string or a bare word taken as raw bytes.
package notation

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/robotalks/servolink/pkg/link"
)

// Verbs lists the command names Parse accepts.
var Verbs = []string{"hello", "set", "prop", "swap", "schedule", "stream", "value", "reboot"}

// Parse parses a command line.
func Parse(line string) (link.Command, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return ParseArgs(args[0], args[1:])
}

// ParseArgs parses a command from its verb and arguments.
func ParseArgs(verb string, args []string) (link.Command, error) {
	switch strings.ToLower(verb) {
	case "hello", "init":
		return &link.Request{Kind: link.RequestInit}, nil
	case "set":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: set AXIS POSITION")
		}
		axis, err := link.ParseAxis(args[0])
		if err != nil {
			return nil, err
		}
		pos, err := link.ParsePosition(args[1])
		if err != nil {
			return nil, err
		}
		return &link.SetCommand{Axis: axis, Position: pos}, nil
	case "prop":
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: prop KEY [VALUE...]")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return &link.PropertyCommand{Key: key, Mode: link.ModeDisplay}, nil
		}
		val, err := ParseValue(args[1:])
		if err != nil {
			return nil, err
		}
		return &link.PropertyCommand{Key: key, Mode: link.ModeProperty, Value: val}, nil
	case "swap":
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: swap KEY [VALUE...]")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return nil, err
		}
		cmd := &link.Swap{Key: key}
		if len(args) > 1 {
			if cmd.Value, err = ParseValue(args[1:]); err != nil {
				return nil, err
			}
			if len(cmd.Value) == 0 {
				return nil, fmt.Errorf("swap value must not be empty")
			}
		}
		return cmd, nil
	case "schedule":
		if len(args) == 0 {
			return &link.TelemetryQuery{}, nil
		}
		cadence, err := ParseCadence(args[0])
		if err != nil {
			return nil, err
		}
		return &link.TelemetryQuery{Set: true, Cadence: cadence}, nil
	case "stream":
		fields, err := ParseFieldSet(args)
		if err != nil {
			return nil, err
		}
		return &link.TelemetryStart{Fields: fields}, nil
	case "value":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: value FIELD")
		}
		field, err := link.ParseField(args[0])
		if err != nil {
			return nil, err
		}
		return &link.TelemetryValue{Field: field}, nil
	case "reboot":
		return &link.Reboot{}, nil
	}
	return nil, fmt.Errorf("unknown command %q", verb)
}

func parseKey(s string) (link.PropertyKey, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid property key %q", s)
	}
	return link.PropertyKey(n), nil
}

// ParseCadence parses milliseconds or a duration, 0 is one-shot.
func ParseCadence(s string) (link.Cadence, error) {
	if ms, err := strconv.ParseUint(s, 10, 16); err == nil {
		return link.Cadence(ms), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid cadence %q", s)
	}
	return link.CadenceOf(d), nil
}

// ParseFieldSet parses field names separated by spaces or commas,
// "off" is the empty set.
func ParseFieldSet(args []string) (link.FieldSet, error) {
	var set link.FieldSet
	var names []string
	for _, arg := range args {
		arg = strings.Trim(arg, "{}")
		for _, name := range strings.Split(arg, ",") {
			if name != "" {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("fields or off expected")
	}
	if len(names) == 1 && (names[0] == "off" || names[0] == "none") {
		return 0, nil
	}
	for _, name := range names {
		field, err := link.ParseField(name)
		if err != nil {
			return 0, err
		}
		set = set.With(field)
	}
	return set, nil
}

// ParseValue converts VALUE tokens to bytes.
func ParseValue(tokens []string) ([]byte, error) {
	var val []byte
	for _, token := range tokens {
		switch {
		case strings.HasPrefix(token, "0x") || strings.HasPrefix(token, "0X"):
			b, err := hex.DecodeString(token[2:])
			if err != nil {
				return nil, fmt.Errorf("invalid hex value %q", token)
			}
			val = append(val, b...)
		case strings.HasPrefix(token, `"`):
			s, err := strconv.Unquote(token)
			if err != nil {
				return nil, fmt.Errorf("invalid string value %s", token)
			}
			val = append(val, s...)
		default:
			if n, err := strconv.ParseUint(token, 10, 8); err == nil {
				val = append(val, byte(n))
			} else {
				val = append(val, token...)
			}
		}
	}
	if len(val) > link.MaxPropertyValueSize {
		return nil, fmt.Errorf("value too large")
	}
	return val, nil
}

// FormatValue prints printable values quoted and others in hex.
func FormatValue(val []byte) string {
	if len(val) == 0 {
		return `""`
	}
	for _, b := range val {
		if b > unicode.MaxASCII || !unicode.IsPrint(rune(b)) {
			return "0x" + hex.EncodeToString(val)
		}
	}
	return strconv.Quote(string(val))
}

// Format prints a command in text form.
func Format(cmd link.Command) string {
	switch c := cmd.(type) {
	case *link.Request:
		if c.Kind == link.RequestInit {
			return "hello"
		}
		return fmt.Sprintf("request %#02x", byte(c.Kind))
	case *link.SetCommand:
		return "set " + c.String()
	case *link.PropertyCommand:
		if c.Value == nil {
			return fmt.Sprintf("prop %d", c.Key)
		}
		return fmt.Sprintf("prop %d %s %s", c.Key, c.Mode, FormatValue(c.Value))
	case *link.Swap:
		if c.IsCommit() {
			return fmt.Sprintf("swap %d", c.Key)
		}
		return fmt.Sprintf("swap %d %s", c.Key, FormatValue(c.Value))
	case *link.TelemetryQuery:
		if !c.Set {
			return "schedule"
		}
		return "schedule " + c.Cadence.String()
	case *link.TelemetryStart:
		if c.Fields == 0 {
			return "stream off"
		}
		return "stream " + c.Fields.String()
	case *link.TelemetryValue:
		if !c.HasValue {
			return "value " + c.Field.String()
		}
		return fmt.Sprintf("value %s = %d", c.Field, c.Value)
	case *link.TelemetryData:
		return fmt.Sprintf("data %s = %d @%dms", c.Field, c.Value, c.Timestamp)
	case *link.Reboot:
		switch c.Phase {
		case link.RebootPending:
			return "reboot pending"
		case link.RebootDone:
			return "reboot done"
		}
		return "reboot"
	case *link.LogMessage:
		return fmt.Sprintf("log %s: %s", logLevelNames[c.Level], c.Text)
	case *link.Nack:
		return c.String()
	}
	return link.FrameOf(cmd).String()
}

var logLevelNames = map[link.LogLevel]string{
	link.LogDebug: "debug",
	link.LogInfo:  "info",
	link.LogWarn:  "warn",
	link.LogError: "error",
}

// Fields converts a command to a JSON friendly map.
func Fields(cmd link.Command) map[string]interface{} {
	m := map[string]interface{}{"op": cmd.Opcode().String()}
	switch c := cmd.(type) {
	case *link.SetCommand:
		m["axis"], m["position"] = c.Axis.String(), c.Position.String()
	case *link.PropertyCommand:
		m["key"], m["mode"] = c.Key, c.Mode.String()
		if c.Value != nil {
			m["value"] = FormatValue(c.Value)
		}
	case *link.Swap:
		m["key"] = c.Key
		if c.Value != nil {
			m["value"] = FormatValue(c.Value)
		}
	case *link.TelemetryQuery:
		if c.Set {
			m["cadence_ms"] = uint16(c.Cadence)
		}
	case *link.TelemetryStart:
		fields := []string{}
		for _, f := range c.Fields.Fields() {
			fields = append(fields, f.String())
		}
		m["fields"] = fields
	case *link.TelemetryValue:
		m["field"] = c.Field.String()
		if c.HasValue {
			m["value"] = c.Value
		}
	case *link.TelemetryData:
		m["field"], m["value"], m["timestamp_ms"] = c.Field.String(), c.Value, c.Timestamp
	case *link.Reboot:
		m["phase"] = Format(c)
	case *link.LogMessage:
		m["level"], m["text"] = logLevelNames[c.Level], c.Text
	case *link.Nack:
		m["rejected"], m["code"] = c.Rejected.String(), c.Code.String()
	}
	return m
}
