package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/servolink/pkg/framework"
	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/dispatch"
)

func TestServoSlew(t *testing.T) {
	testCases := []struct {
		name     string
		servo    Servo
		elapsed  time.Duration
		position int32
	}{
		{"up", Servo{Target: 1000}, 250 * time.Millisecond, 500},
		{"down", Servo{Position: 1000, Target: -1000}, 500 * time.Millisecond, 0},
		{"arrive", Servo{Position: 900, Target: 1000}, 250 * time.Millisecond, 1000},
		{"hold", Servo{Position: -1000, Target: -1000}, time.Second, -1000},
		{"no time", Servo{Target: 1000}, 0, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.servo
			s.Slew(DefaultSlewRate, tc.elapsed)
			require.Equal(t, tc.position, s.Position)
		})
	}
}

type simTestCtx struct {
	t     *testing.T
	now   time.Time
	loop  *fx.Loop
	model *Model
}

func newSimTestCtx(t *testing.T) *simTestCtx {
	c := &simTestCtx{t: t, now: time.Unix(1000, 0), model: NewModel()}
	c.loop = fx.NewLoop()
	c.loop.Now = func() time.Time { return c.now }
	c.loop.Add(c.model)
	c.step(0)
	return c
}

func (c *simTestCtx) step(d time.Duration) {
	c.now = c.now.Add(d)
	c.loop.Step(context.Background())
}

func (c *simTestCtx) expectValue(field link.Field, expected int32) {
	val, err := c.model.Value(field)
	require.NoError(c.t, err)
	require.Equal(c.t, expected, val, field.String())
}

func TestModelSlewsSurfaces(t *testing.T) {
	c := newSimTestCtx(t)
	c.expectValue(link.FieldSupply, DefaultSupply)

	require.NoError(t, c.model.SetSurface(link.SetCommand{Axis: link.AxisRudder, Position: link.PositionMax}))
	require.NoError(t, c.model.SetSurface(link.SetCommand{Axis: link.AxisElevator, Position: link.PositionMin}))
	c.step(250 * time.Millisecond)
	c.expectValue(link.FieldRudder, 500)
	c.expectValue(link.FieldElevator, -500)
	c.expectValue(link.FieldSupply, DefaultSupply-2*DefaultSupplySag)

	require.NoError(t, c.model.SetSurface(link.SetCommand{Axis: link.AxisElevator, Position: link.PositionNeutral}))
	c.step(250 * time.Millisecond)
	c.expectValue(link.FieldRudder, 1000)
	c.expectValue(link.FieldElevator, 0)
	c.expectValue(link.FieldSupply, DefaultSupply)
	c.expectValue(link.FieldUser0, 3)
	c.expectValue(link.FieldUser1, 6)

	c.step(1500 * time.Millisecond)
	c.expectValue(link.FieldUptime, 2)
}

func TestModelReboot(t *testing.T) {
	c := newSimTestCtx(t)
	var rebooted int
	c.model.OnRebooted = func() { rebooted++ }

	require.NoError(t, c.model.SetSurface(link.SetCommand{Axis: link.AxisRudder, Position: link.PositionMin}))
	c.step(time.Second)
	c.expectValue(link.FieldRudder, -1000)

	require.NoError(t, c.model.Reboot())
	c.step(0)
	require.True(t, c.model.Rebooting())
	require.NoError(t, c.model.SetSurface(link.SetCommand{Axis: link.AxisRudder, Position: link.PositionMax}))
	c.step(DefaultRebootDelay / 2)
	require.True(t, c.model.Rebooting())
	c.expectValue(link.FieldRudder, -1000)
	require.Equal(t, 0, rebooted)

	c.step(DefaultRebootDelay / 2)
	require.False(t, c.model.Rebooting())
	require.Equal(t, 1, rebooted)
	require.Equal(t, Servo{}, c.model.Servo(link.AxisRudder))
	c.expectValue(link.FieldUser0, 0)
	c.expectValue(link.FieldUptime, 0)
}

func TestModelLinkCounters(t *testing.T) {
	c := newSimTestCtx(t)
	_, err := c.model.Value(link.FieldRxFrames)
	require.Error(t, err)

	c.model.Stats = func() dispatch.Stats {
		return dispatch.Stats{Dispatched: 3, Notifications: 1, Rejected: 1, Dropped: 2}
	}
	c.expectValue(link.FieldRxFrames, 7)
	c.expectValue(link.FieldRejected, 1)

	_, err = c.model.Value(link.Field(link.NumFields))
	require.Error(t, err)
}

func TestModelNotRunning(t *testing.T) {
	m := NewModel()
	require.Error(t, m.SetSurface(link.SetCommand{Axis: link.AxisRudder, Position: link.PositionMax}))
	require.Error(t, m.Reboot())
}
