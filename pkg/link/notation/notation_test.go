package notation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/servolink/pkg/link"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		line   string
		expect link.Command
	}{
		{"hello", &link.Request{Kind: link.RequestInit}},
		{"set rudder max", &link.SetCommand{Axis: link.AxisRudder, Position: link.PositionMax}},
		{"SET ele neu", &link.SetCommand{Axis: link.AxisElevator, Position: link.PositionNeutral}},
		{"prop 2", &link.PropertyCommand{Key: 2, Mode: link.ModeDisplay}},
		{"prop 0x10 0x0a0b 12", &link.PropertyCommand{Key: 16, Mode: link.ModeProperty, Value: []byte{10, 11, 12}}},
		{`prop 3 "hi"`, &link.PropertyCommand{Key: 3, Mode: link.ModeProperty, Value: []byte("hi")}},
		{"prop 3 abc", &link.PropertyCommand{Key: 3, Mode: link.ModeProperty, Value: []byte("abc")}},
		{"swap 4", &link.Swap{Key: 4}},
		{"swap 4 7", &link.Swap{Key: 4, Value: []byte{7}}},
		{"schedule", &link.TelemetryQuery{}},
		{"schedule 250", &link.TelemetryQuery{Set: true, Cadence: 250}},
		{"schedule 1s", &link.TelemetryQuery{Set: true, Cadence: 1000}},
		{"schedule 0", &link.TelemetryQuery{Set: true, Cadence: link.OneShot}},
		{"stream rudder supply", &link.TelemetryStart{Fields: link.FieldSetOf(link.FieldRudder, link.FieldSupply)}},
		{"stream {rudder,uptime}", &link.TelemetryStart{Fields: link.FieldSetOf(link.FieldRudder, link.FieldUptime)}},
		{"stream off", &link.TelemetryStart{}},
		{"value 2", &link.TelemetryValue{Field: link.FieldSupply}},
		{"reboot", &link.Reboot{}},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			cmd, err := Parse(tc.line)
			require.NoError(t, err)
			require.Equal(t, tc.expect, cmd)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"fly",
		"set rudder",
		"set aileron max",
		"set rudder full",
		"prop",
		"prop 256",
		"prop 1 0xabc",
		"swap 1 \"\"",
		"schedule fast",
		"schedule 70000",
		"stream",
		"stream wind",
		"value",
		"value 9",
	} {
		_, err := Parse(line)
		require.Error(t, err, line)
	}
}

func TestFormat(t *testing.T) {
	testCases := []struct {
		cmd    link.Command
		expect string
	}{
		{&link.Request{Kind: link.RequestInit}, "hello"},
		{&link.SetCommand{Axis: link.AxisElevator, Position: link.PositionMin}, "set elevator min"},
		{&link.PropertyCommand{Key: 1}, "prop 1"},
		{&link.PropertyCommand{Key: 1, Mode: link.ModeDisplay, Value: []byte("SN01")}, `prop 1 display "SN01"`},
		{&link.PropertyCommand{Key: 2, Mode: link.ModeProperty, Value: []byte{0, 0xff}}, "prop 2 property 0x00ff"},
		{&link.Swap{Key: 2}, "swap 2"},
		{&link.Swap{Key: 2, Value: []byte{1}}, "swap 2 0x01"},
		{&link.TelemetryQuery{Set: true, Cadence: 100}, "schedule 100ms"},
		{&link.TelemetryQuery{Set: true}, "schedule one-shot"},
		{&link.TelemetryStart{Fields: link.FieldSetOf(link.FieldRudder, link.FieldSupply)}, "stream {rudder,supply}"},
		{&link.TelemetryStart{}, "stream off"},
		{&link.TelemetryValue{Field: link.FieldSupply, HasValue: true, Value: 7400}, "value supply = 7400"},
		{&link.TelemetryData{Sample: link.Sample{Field: link.FieldUptime, Value: 3, Timestamp: 3000}}, "data uptime = 3 @3000ms"},
		{&link.Reboot{Phase: link.RebootPending}, "reboot pending"},
		{&link.LogMessage{Level: link.LogWarn, Text: "low"}, "log warn: low"},
		{&link.Nack{Rejected: link.OpSet, Code: link.CodeSessionNotReady}, "NACK SET: session not ready"},
	}
	for _, tc := range testCases {
		t.Run(tc.expect, func(t *testing.T) {
			require.Equal(t, tc.expect, Format(tc.cmd))
		})
	}
}

func TestFormatParses(t *testing.T) {
	for _, line := range []string{"hello", "set rudder neutral", "prop 5", "swap 3", "schedule", "stream {elevator,rx}", "stream off", "value uptime", "reboot"} {
		cmd, err := Parse(line)
		require.NoError(t, err)
		again, err := Parse(Format(cmd))
		require.NoError(t, err)
		require.Equal(t, cmd, again)
	}
}

func TestFields(t *testing.T) {
	require.Equal(t, map[string]interface{}{
		"op":           "TMD",
		"field":        "supply",
		"value":        int32(7400),
		"timestamp_ms": uint32(100),
	}, Fields(&link.TelemetryData{Sample: link.Sample{Field: link.FieldSupply, Value: 7400, Timestamp: 100}}))
	require.Equal(t, map[string]interface{}{
		"op":       "LOG",
		"rejected": "PRP",
		"code":     "unknown property",
	}, Fields(&link.Nack{Rejected: link.OpProperty, Code: link.CodeUnknownProperty}))
}
