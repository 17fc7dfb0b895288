package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/telemetry"
)

const (
	keySerial link.PropertyKey = 1
	keyTrim   link.PropertyKey = 2
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func testValues(field link.Field) (int32, error) {
	return int32(field) * 10, nil
}

func newTestEngine() *Engine {
	props := NewPropertyTable(
		Property{Key: keySerial, Name: "serial", Mode: link.ModeDisplay, Value: []byte("SN01")},
		Property{Key: keyTrim, Name: "trim", Mode: link.ModeProperty, Value: []byte{0x10}},
	)
	return New(props, telemetry.ValueFunc(testValues))
}

func newReadyEngine(t *testing.T) *Engine {
	e := newTestEngine()
	reply := e.Dispatch(t0, link.FrameOf(&link.Request{Kind: link.RequestInit}))
	require.Equal(t, link.FrameOf(&link.Request{Kind: link.RequestInit}), reply)
	require.Equal(t, StateReady, e.State())
	return e
}

func nack(op link.Opcode, code link.ErrorCode) *link.Frame {
	return link.FrameOf(&link.Nack{Rejected: op, Code: code})
}

func TestIdleRejectsUntilHandshake(t *testing.T) {
	e := newTestEngine()
	require.Equal(t, StateIdle, e.State())
	rejected := []*link.Frame{
		link.NewFrame(link.OpSet, 0x02),
		link.NewFrame(link.OpTelemetryQuery),
		link.NewFrame(link.OpTelemetryStart, 0x01),
		link.NewFrame(link.OpTelemetryValue, 0x00),
		link.NewFrame(link.OpSwap, byte(keyTrim)),
		link.NewFrame(link.OpProperty, byte(keySerial), 0x00),
		// malformed session commands are rejected for the state first.
		link.NewFrame(link.OpSet, 0x09),
		link.NewFrame(link.OpTelemetryQuery, 0x01),
		link.NewFrame(link.OpProperty, byte(keyTrim), 0x01),
	}
	for _, f := range rejected {
		require.Equal(t, nack(f.Opcode, link.CodeUnexpectedCommand), e.Dispatch(t0, f), f.String())
		require.Equal(t, StateIdle, e.State())
	}
	require.Nil(t, e.Dispatch(t0, link.FrameOf(&link.LogMessage{Level: link.LogInfo, Text: "boot"})))
	require.EqualValues(t, len(rejected), e.Stats().Rejected)

	require.Equal(t, link.NewFrame(link.OpRequest, 0x01), e.Dispatch(t0, link.NewFrame(link.OpRequest, 0x01)))
	require.Equal(t, StateReady, e.State())
	require.Equal(t, link.NewFrame(link.OpSet, 0x02), e.Dispatch(t0, link.NewFrame(link.OpSet, 0x02)))
}

func TestRepeatedHandshakeKeepsSession(t *testing.T) {
	e := newReadyEngine(t)
	e.Dispatch(t0, link.FrameOf(&link.TelemetryStart{Fields: link.FieldSetOf(link.FieldRudder)}))
	require.Equal(t, StateStreaming, e.State())
	require.Equal(t, link.NewFrame(link.OpRequest, 0x01), e.Dispatch(t0, link.NewFrame(link.OpRequest, 0x01)))
	require.Equal(t, StateStreaming, e.State())
	fields, _ := e.Subscription()
	require.Equal(t, link.FieldSetOf(link.FieldRudder), fields)
}

func TestInitiatedHandshake(t *testing.T) {
	t.Run("answered", func(t *testing.T) {
		e := newTestEngine()
		require.Equal(t, link.NewFrame(link.OpRequest, 0x01), e.Handshake(t0))
		require.Equal(t, StateHandshaking, e.State())
		require.Equal(t, nack(link.OpSet, link.CodeSessionNotReady), e.Dispatch(t0, link.NewFrame(link.OpSet, 0x01)))
		require.Equal(t, nack(link.OpSet, link.CodeSessionNotReady), e.Dispatch(t0, link.NewFrame(link.OpSet, 0x09)))
		require.Nil(t, e.Dispatch(t0, link.NewFrame(link.OpRequest, 0x01)))
		require.Equal(t, StateReady, e.State())
	})
	t.Run("timeout", func(t *testing.T) {
		e := newTestEngine()
		e.Handshake(t0)
		require.Empty(t, e.Tick(t0.Add(DefaultHandshakeTimeout-time.Millisecond)))
		require.Equal(t, StateHandshaking, e.State())
		e.Tick(t0.Add(DefaultHandshakeTimeout))
		require.Equal(t, StateIdle, e.State())
		require.EqualValues(t, 1, e.Stats().Timeouts)
	})
	t.Run("rejected", func(t *testing.T) {
		e := newTestEngine()
		e.Handshake(t0)
		require.Nil(t, e.Dispatch(t0, nack(link.OpRequest, link.CodeUnexpectedCommand)))
		require.Equal(t, StateIdle, e.State())
	})
}

func TestTelemetryStreaming(t *testing.T) {
	e := newReadyEngine(t)
	require.Equal(t, link.NewFrame(link.OpTelemetryQuery, 100, 0), e.Dispatch(t0, link.NewFrame(link.OpTelemetryQuery)))
	require.Equal(t, link.NewFrame(link.OpTelemetryQuery, 100, 0), e.Dispatch(t0, link.NewFrame(link.OpTelemetryQuery, 100, 0)))
	require.Equal(t, link.NewFrame(link.OpTelemetryStart, 0x02), e.Dispatch(t0, link.NewFrame(link.OpTelemetryStart, 0x02)))
	require.Equal(t, StateStreaming, e.State())

	frames := e.Tick(t0.Add(350 * time.Millisecond))
	require.Len(t, frames, 3)
	var last uint32
	for i, f := range frames {
		cmd, err := link.Parse(f)
		require.NoError(t, err)
		data := cmd.(*link.TelemetryData)
		require.Equal(t, link.FieldElevator, data.Field)
		require.EqualValues(t, 10, data.Value)
		require.EqualValues(t, (i+1)*100, data.Timestamp)
		require.True(t, data.Timestamp >= last)
		last = data.Timestamp
	}

	require.Equal(t, link.NewFrame(link.OpTelemetryStart, 0), e.Dispatch(t0, link.NewFrame(link.OpTelemetryStart, 0)))
	require.Equal(t, StateReady, e.State())
	require.Empty(t, e.Tick(t0.Add(time.Second)))
}

func TestOneShotTelemetryReturnsToReady(t *testing.T) {
	e := newReadyEngine(t)
	e.Dispatch(t0, link.NewFrame(link.OpTelemetryQuery, 0, 0))
	e.Dispatch(t0, link.FrameOf(&link.TelemetryStart{Fields: link.FieldSetOf(link.FieldRudder, link.FieldSupply)}))
	require.Equal(t, StateStreaming, e.State())
	require.Len(t, e.Tick(t0), 2)
	require.Equal(t, StateReady, e.State())
}

func TestRebootClearsSession(t *testing.T) {
	var rebooted int
	e := newReadyEngine(t)
	e.Rebooter = RebootFunc(func() error {
		rebooted++
		return nil
	})
	e.Dispatch(t0, link.NewFrame(link.OpTelemetryQuery, 50, 0))
	e.Dispatch(t0, link.NewFrame(link.OpTelemetryStart, 0x03))
	e.Dispatch(t0, link.FrameOf(&link.Swap{Key: keyTrim, Value: []byte{0x20}}))
	require.Equal(t, StateStreaming, e.State())

	require.Equal(t, link.NewFrame(link.OpReboot, 0x00), e.Dispatch(t0, link.NewFrame(link.OpReboot)))
	require.Equal(t, 1, rebooted)
	require.Equal(t, StateRebooting, e.State())
	require.Nil(t, e.Dispatch(t0, link.NewFrame(link.OpSet, 0x02)))
	require.Nil(t, e.Dispatch(t0, link.NewFrame(link.OpRequest, 0x01)))
	require.EqualValues(t, 2, e.Stats().Dropped)
	require.Empty(t, e.Tick(t0.Add(time.Second)))

	require.Nil(t, e.Dispatch(t0, link.NewFrame(link.OpReboot, 0x01)))
	require.Equal(t, StateIdle, e.State())
	require.Equal(t, link.NewFrame(link.OpRequest, 0x01), e.Dispatch(t0, link.NewFrame(link.OpRequest, 0x01)))
	fields, cadence := e.Subscription()
	require.Zero(t, fields)
	require.Equal(t, DefaultCadence, cadence)
	require.Equal(t, nack(link.OpSwap, link.CodeUnexpectedCommand), e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim))))
}

func TestRebootCompletion(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		e := newReadyEngine(t)
		e.Dispatch(t0, link.NewFrame(link.OpReboot))
		e.Tick(t0.Add(DefaultRebootTimeout - time.Millisecond))
		require.Equal(t, StateRebooting, e.State())
		e.Tick(t0.Add(DefaultRebootTimeout))
		require.Equal(t, StateIdle, e.State())
		require.EqualValues(t, 1, e.Stats().Timeouts)
	})
	t.Run("local", func(t *testing.T) {
		e := newReadyEngine(t)
		e.Dispatch(t0, link.NewFrame(link.OpReboot))
		require.Nil(t, e.Handshake(t0))
		e.RebootComplete(t0)
		require.Equal(t, StateIdle, e.State())
	})
	t.Run("failed", func(t *testing.T) {
		e := newReadyEngine(t)
		e.Rebooter = RebootFunc(func() error { return errors.New("busy") })
		require.Equal(t, nack(link.OpReboot, link.CodeHandlerFailed), e.Dispatch(t0, link.NewFrame(link.OpReboot)))
		require.Equal(t, StateReady, e.State())
	})
}

func TestProperties(t *testing.T) {
	testCases := []struct {
		name  string
		req   *link.PropertyCommand
		reply *link.Frame
	}{
		{"read display", &link.PropertyCommand{Key: keySerial},
			link.NewFrame(link.OpProperty, byte(keySerial), 0x00, 'S', 'N', '0', '1')},
		{"read writable", &link.PropertyCommand{Key: keyTrim},
			link.NewFrame(link.OpProperty, byte(keyTrim), 0x01, 0x10)},
		{"read unknown", &link.PropertyCommand{Key: 9},
			nack(link.OpProperty, link.CodeUnknownProperty)},
		{"read with value", &link.PropertyCommand{Key: keyTrim, Value: []byte{1}},
			nack(link.OpProperty, link.CodeInvalidPayload)},
		{"write display", &link.PropertyCommand{Key: keySerial, Mode: link.ModeProperty, Value: []byte("X")},
			nack(link.OpProperty, link.CodeReadOnlyProperty)},
		{"write unknown", &link.PropertyCommand{Key: 9, Mode: link.ModeProperty, Value: []byte{1}},
			nack(link.OpProperty, link.CodeUnknownProperty)},
		{"write", &link.PropertyCommand{Key: keyTrim, Mode: link.ModeProperty, Value: []byte{0x22, 0x33}},
			link.NewFrame(link.OpProperty, byte(keyTrim), 0x01, 0x22, 0x33)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newReadyEngine(t)
			require.Equal(t, tc.reply, e.Dispatch(t0, link.FrameOf(tc.req)))
		})
	}

	e := newReadyEngine(t)
	e.Dispatch(t0, link.FrameOf(&link.PropertyCommand{Key: keyTrim, Mode: link.ModeProperty, Value: []byte{0x44}}))
	p, ok := e.Properties.Get(keyTrim)
	require.True(t, ok)
	require.Equal(t, []byte{0x44}, p.Value)
}

func TestSwap(t *testing.T) {
	e := newReadyEngine(t)
	require.Equal(t, link.NewFrame(link.OpSwap, byte(keyTrim), 0x10),
		e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim), 0x77)))
	p, _ := e.Properties.Get(keyTrim)
	require.Equal(t, []byte{0x10}, p.Value)
	require.Equal(t, link.NewFrame(link.OpSwap, byte(keyTrim), 0x77),
		e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim))))
	p, _ = e.Properties.Get(keyTrim)
	require.Equal(t, []byte{0x77}, p.Value)
	require.Equal(t, nack(link.OpSwap, link.CodeUnexpectedCommand),
		e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim))))

	// a write cancels the staged swap of the same key.
	e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim), 0x01))
	e.Dispatch(t0, link.FrameOf(&link.PropertyCommand{Key: keyTrim, Mode: link.ModeProperty, Value: []byte{0x02}}))
	require.Equal(t, nack(link.OpSwap, link.CodeUnexpectedCommand),
		e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim))))

	require.Equal(t, nack(link.OpSwap, link.CodeReadOnlyProperty),
		e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keySerial), 0x01)))
	require.Equal(t, nack(link.OpSwap, link.CodeUnknownProperty),
		e.Dispatch(t0, link.NewFrame(link.OpSwap, 9, 0x01)))
}

func TestSwapValueLimit(t *testing.T) {
	e := newReadyEngine(t)
	oversized := append([]byte{byte(keyTrim)}, make([]byte, link.MaxPropertyValueSize+1)...)
	require.Equal(t, nack(link.OpSwap, link.CodeInvalidPayload), e.Dispatch(t0, link.NewFrame(link.OpSwap, oversized...)))
	require.Equal(t, nack(link.OpSwap, link.CodeUnexpectedCommand), e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim))))
	p, _ := e.Properties.Get(keyTrim)
	require.Equal(t, []byte{0x10}, p.Value)

	value := make([]byte, link.MaxPropertyValueSize)
	for n := range value {
		value[n] = byte(n)
	}
	staged := append([]byte{byte(keyTrim)}, value...)
	require.Equal(t, link.NewFrame(link.OpSwap, byte(keyTrim), 0x10), e.Dispatch(t0, link.NewFrame(link.OpSwap, staged...)))
	require.Equal(t, link.NewFrame(link.OpSwap, staged...), e.Dispatch(t0, link.NewFrame(link.OpSwap, byte(keyTrim))))

	reply := e.Dispatch(t0, link.FrameOf(&link.PropertyCommand{Key: keyTrim}))
	b, err := link.Encode(reply.Opcode, reply.Payload)
	require.NoError(t, err)
	f, err := link.Decode(b)
	require.NoError(t, err)
	cmd, err := link.Parse(f)
	require.NoError(t, err)
	require.Equal(t, &link.PropertyCommand{Key: keyTrim, Mode: link.ModeProperty, Value: value}, cmd)
}

func TestHandlers(t *testing.T) {
	var surfaces []link.SetCommand
	var logs []string
	e := newReadyEngine(t)
	e.Surfaces = SetSurfaceFunc(func(cmd link.SetCommand) error {
		if cmd.Axis == link.AxisElevator {
			return errors.New("jammed")
		}
		surfaces = append(surfaces, cmd)
		return nil
	})
	e.Logs = HandleLogFunc(func(msg *link.LogMessage) {
		logs = append(logs, msg.Text)
	})
	require.Equal(t, link.NewFrame(link.OpSet, 0x03), e.Dispatch(t0, link.NewFrame(link.OpSet, 0x03)))
	require.Equal(t, []link.SetCommand{{Axis: link.AxisRudder, Position: link.PositionMax}}, surfaces)
	require.Equal(t, nack(link.OpSet, link.CodeHandlerFailed), e.Dispatch(t0, link.NewFrame(link.OpSet, 0x05)))
	require.Nil(t, e.Dispatch(t0, link.FrameOf(&link.LogMessage{Level: link.LogWarn, Text: "low battery"})))
	require.Equal(t, []string{"low battery"}, logs)

	require.Equal(t, link.FrameOf(&link.TelemetryValue{Field: link.FieldSupply, HasValue: true, Value: 20}),
		e.Dispatch(t0, link.NewFrame(link.OpTelemetryValue, byte(link.FieldSupply))))
	e.scheduler.Source = telemetry.ValueFunc(func(link.Field) (int32, error) {
		return 0, errors.New("adc fault")
	})
	require.Equal(t, nack(link.OpTelemetryValue, link.CodeHandlerFailed),
		e.Dispatch(t0, link.NewFrame(link.OpTelemetryValue, byte(link.FieldSupply))))
}

func TestMalformedFrames(t *testing.T) {
	e := newReadyEngine(t)
	testCases := []struct {
		name  string
		frame *link.Frame
		reply *link.Frame
	}{
		{"bad set code", link.NewFrame(link.OpSet, 0x04), nack(link.OpSet, link.CodeInvalidPayload)},
		{"set too long", link.NewFrame(link.OpSet, 0x01, 0x02), nack(link.OpSet, link.CodeInvalidPayload)},
		{"bad request", link.NewFrame(link.OpRequest, 0x07), nack(link.OpRequest, link.CodeInvalidPayload)},
		{"half cadence", link.NewFrame(link.OpTelemetryQuery, 0x01), nack(link.OpTelemetryQuery, link.CodeInvalidPayload)},
		{"inbound data", link.FrameOf(&link.TelemetryData{Sample: link.Sample{Field: link.FieldRudder}}),
			nack(link.OpTelemetryData, link.CodeUnexpectedCommand)},
		{"inbound value", link.FrameOf(&link.TelemetryValue{Field: link.FieldRudder, HasValue: true}),
			nack(link.OpTelemetryValue, link.CodeUnexpectedCommand)},
		{"pending reboot", link.NewFrame(link.OpReboot, 0x00), nack(link.OpReboot, link.CodeUnexpectedCommand)},
		{"bad log", link.NewFrame(link.OpLog, 0x09), nil},
		{"unknown opcode", link.NewFrame(link.Opcode(0x42)), nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.reply, e.Dispatch(t0, tc.frame))
			require.Equal(t, StateReady, e.State())
		})
	}
	stats := e.Stats()
	require.EqualValues(t, 7, stats.Rejected)
	require.EqualValues(t, 2, stats.Dropped)
}

func TestReset(t *testing.T) {
	e := newReadyEngine(t)
	e.Dispatch(t0, link.NewFrame(link.OpTelemetryStart, 0x01))
	e.Reset(errors.New("transport closed"))
	require.Equal(t, StateIdle, e.State())
	require.EqualValues(t, 1, e.Stats().Resets)
	fields, _ := e.Subscription()
	require.Zero(t, fields)
}
