// Package sim simulates the device side of a link: two servo driven
// control surfaces, a supply sagging under load and the uptime counter.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/servolink/pkg/framework"
	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/dispatch"
)

// Supply in mV.
const (
	DefaultSupply int32 = 7400
	// DefaultSupplySag is the drop per moving servo.
	DefaultSupplySag int32 = 150
)

// DefaultRebootDelay is how long a simulated reboot takes.
const DefaultRebootDelay = 500 * time.Millisecond

type setpointMsg struct {
	cmd link.SetCommand
}

type rebootMsg struct{}

// Model is the simulated device. It's advanced by a framework Loop and
// serves the Engine as SurfaceController, Rebooter and ValueSource.
type Model struct {
	SlewRate    int32
	Supply      int32
	SupplySag   int32
	RebootDelay time.Duration
	// Stats reads the link counters reported as rx and rejected. The
	// Engine reads values synchronously so it may point at Engine.Stats.
	Stats func() dispatch.Stats
	// OnRebooted is called from the Loop once a reboot completes.
	OnRebooted func()

	loop fx.LoopControl

	lock     sync.Mutex
	servos   [2]Servo
	now      time.Time
	bootAt   time.Time
	rebootAt time.Time
	moves    int32
	lastSet  link.SetCommand
}

// NewModel creates a Model with surfaces at neutral.
func NewModel() *Model {
	return &Model{
		SlewRate:    DefaultSlewRate,
		Supply:      DefaultSupply,
		SupplySag:   DefaultSupplySag,
		RebootDelay: DefaultRebootDelay,
	}
}

// AddToLoop implements fx.LoopAdder.
func (m *Model) AddToLoop(l *fx.Loop) {
	m.loop = l
	l.AddController(fx.PrLvControl, fx.ControlFunc(m.control))
	l.AddController(fx.PrLvActuate, fx.ControlFunc(m.actuate))
}

// SetSurface implements dispatch.SurfaceController.
func (m *Model) SetSurface(cmd link.SetCommand) error {
	if m.loop == nil {
		return fmt.Errorf("simulator not running")
	}
	m.loop.PostMessage(&setpointMsg{cmd: cmd})
	m.loop.TriggerNext()
	return nil
}

// Reboot implements dispatch.Rebooter.
func (m *Model) Reboot() error {
	if m.loop == nil {
		return fmt.Errorf("simulator not running")
	}
	m.loop.PostMessage(&rebootMsg{})
	m.loop.TriggerNext()
	return nil
}

// Rebooting tells whether a reboot is in progress.
func (m *Model) Rebooting() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return !m.rebootAt.IsZero()
}

// Servo returns the state of the servo of an axis.
func (m *Model) Servo(axis link.Axis) Servo {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.servos[axis]
}

// Value implements telemetry.ValueSource.
func (m *Model) Value(field link.Field) (int32, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	switch field {
	case link.FieldRudder:
		return m.servos[link.AxisRudder].Position, nil
	case link.FieldElevator:
		return m.servos[link.AxisElevator].Position, nil
	case link.FieldSupply:
		supply := m.Supply
		for n := range m.servos {
			if m.servos[n].Moving() {
				supply -= m.SupplySag
			}
		}
		return supply, nil
	case link.FieldUptime:
		if m.bootAt.IsZero() || !m.now.After(m.bootAt) {
			return 0, nil
		}
		return int32(m.now.Sub(m.bootAt) / time.Second), nil
	case link.FieldRxFrames, link.FieldRejected:
		if m.Stats == nil {
			return 0, fmt.Errorf("no link counters")
		}
		stats := m.Stats()
		if field == link.FieldRejected {
			return int32(stats.Rejected), nil
		}
		return int32(stats.Dispatched + stats.Notifications + stats.Rejected + stats.Dropped), nil
	case link.FieldUser0:
		return m.moves, nil
	case link.FieldUser1:
		return int32(m.lastSet.Code()), nil
	}
	return 0, fmt.Errorf("unknown field %d", field)
}

func (m *Model) control(cc fx.ControlContext) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.now = cc.Time()
	if m.bootAt.IsZero() {
		m.bootAt = m.now
	}
	for _, msg := range cc.Messages() {
		switch msg := msg.(type) {
		case *setpointMsg:
			cc.Take(msg)
			if !m.rebootAt.IsZero() {
				continue
			}
			m.servos[msg.cmd.Axis].Target = Deflection(msg.cmd.Position)
			m.moves++
			m.lastSet = msg.cmd
			glog.V(2).Infof("sim: %s", msg.cmd)
		case *rebootMsg:
			cc.Take(msg)
			if m.rebootAt.IsZero() {
				m.rebootAt = m.now.Add(m.RebootDelay)
				glog.Infof("sim: rebooting")
			}
		}
	}
	return nil
}

func (m *Model) actuate(cc fx.ControlContext) error {
	m.lock.Lock()
	if !m.rebootAt.IsZero() {
		if m.now.Before(m.rebootAt) {
			m.lock.Unlock()
			return nil
		}
		m.boot()
		m.lock.Unlock()
		glog.Infof("sim: rebooted")
		if m.OnRebooted != nil {
			m.OnRebooted()
		}
		return nil
	}
	for n := range m.servos {
		m.servos[n].Slew(m.SlewRate, cc.Elapsed())
	}
	m.lock.Unlock()
	return nil
}

func (m *Model) boot() {
	m.servos = [2]Servo{}
	m.bootAt = m.now
	m.rebootAt = time.Time{}
	m.moves = 0
	m.lastSet = link.SetCommand{}
}
