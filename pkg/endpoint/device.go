package endpoint

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/dispatch"
)

// Device serves the device side of a session: a dispatch Engine over a Port.
// Replies are sent before any telemetry of the same tick, so a
// command/response pair is never split.
type Device struct {
	Engine *dispatch.Engine
	// Now is the clock, time.Now by default.
	Now func() time.Time

	port *Port
	lock sync.Mutex
}

// NewDevice creates a Device and wraps the Port.
func NewDevice(port *Port, engine *dispatch.Engine) *Device {
	d := &Device{Engine: engine, Now: time.Now, port: port}
	port.Handler = d
	port.Ticker = d
	port.Notifier = d
	return d
}

// NewDeviceWith creates a Device over a byte stream.
func NewDeviceWith(rw io.ReadWriter, engine *dispatch.Engine) *Device {
	return NewDevice(NewPort(rw), engine)
}

// Port gets the wrapped Port.
func (d *Device) Port() *Port {
	return d.port
}

// State returns the session state.
func (d *Device) State() dispatch.State {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.Engine.State()
}

// Stats returns the dispatch counters.
func (d *Device) Stats() dispatch.Stats {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.Engine.Stats()
}

// Subscription returns the telemetry subscription.
func (d *Device) Subscription() (link.FieldSet, link.Cadence) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.Engine.Subscription()
}

// Handshake initiates a session from the device side.
func (d *Device) Handshake() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if f := d.Engine.Handshake(d.Now()); f != nil {
		return d.port.Send(f)
	}
	return nil
}

// RebootComplete ends a reboot and notifies the peer.
func (d *Device) RebootComplete() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.Engine.State() != dispatch.StateRebooting {
		return nil
	}
	d.Engine.RebootComplete(d.Now())
	return d.port.Send(link.FrameOf(&link.Reboot{Phase: link.RebootDone}))
}

// Log sends a LOG notification.
func (d *Device) Log(level link.LogLevel, text string) error {
	return d.port.Send(link.FrameOf(&link.LogMessage{Level: level, Text: text}))
}

// HandleFrame implements FrameHandler.
func (d *Device) HandleFrame(ctx context.Context, f *link.Frame) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if reply := d.Engine.Dispatch(d.Now(), f); reply != nil {
		if err := d.port.Send(reply); err != nil {
			glog.Errorf("send %s: %v", reply, err)
		}
	}
}

// Tick implements Ticker.
func (d *Device) Tick(ctx context.Context, now time.Time) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if frames := d.Engine.Tick(d.Now()); len(frames) > 0 {
		if err := d.port.SendAll(frames...); err != nil {
			glog.Errorf("send telemetry: %v", err)
		}
	}
}

// LinkError implements LinkNotifier.
func (d *Device) LinkError(ctx context.Context, err error) {
	var terr *link.TransportError
	if errors.As(err, &terr) {
		d.lock.Lock()
		d.Engine.Reset(err)
		d.lock.Unlock()
	}
}

// Run implements Runnable.
func (d *Device) Run(ctx context.Context) error {
	return d.port.Run(ctx)
}
