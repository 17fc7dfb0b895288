// Package dispatch routes decoded frames of one session to handlers and
// drives the session and telemetry state machines.
package dispatch

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/telemetry"
)

// Defaults.
const (
	DefaultHandshakeTimeout = time.Second
	DefaultRebootTimeout    = 5 * time.Second
	DefaultCadence          = link.Cadence(100)
)

// Stats counts what the Engine did with inbound frames.
type Stats struct {
	Dispatched    uint64
	Notifications uint64
	Rejected      uint64
	Dropped       uint64
	Timeouts      uint64
	Resets        uint64
}

type pendingSwap struct {
	key   link.PropertyKey
	value []byte
}

// Engine is the dispatcher of a single session. It exclusively owns the
// property table and the telemetry subscription.
//
// Every command answered produces exactly one frame, either the response
// or a NACK. LOG notifications are never answered. While rebooting all
// inbound frames are dropped and counted, except a RBT done notice.
//
// Engine is synchronous and not safe for concurrent use.
type Engine struct {
	Registry         *link.Registry
	Properties       *PropertyTable
	Surfaces         SurfaceController
	Rebooter         Rebooter
	Logs             LogHandler
	HandshakeTimeout time.Duration
	RebootTimeout    time.Duration
	// Cadence is the telemetry cadence until changed with TQS.
	Cadence link.Cadence

	state     State
	deadline  time.Time
	cadence   link.Cadence
	scheduler *telemetry.Scheduler
	swap      *pendingSwap
	stats     Stats
}

// New creates an Engine.
func New(props *PropertyTable, values telemetry.ValueSource) *Engine {
	if props == nil {
		props = NewPropertyTable()
	}
	return &Engine{
		Registry:         link.DefaultRegistry(),
		Properties:       props,
		HandshakeTimeout: DefaultHandshakeTimeout,
		RebootTimeout:    DefaultRebootTimeout,
		Cadence:          DefaultCadence,
		cadence:          DefaultCadence,
		scheduler:        telemetry.NewScheduler(values, time.Time{}),
	}
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Stats returns the counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Subscription returns the subscribed telemetry fields and cadence.
func (e *Engine) Subscription() (link.FieldSet, link.Cadence) {
	return e.scheduler.Fields(), e.cadence
}

// TelemetryStats returns the counters of the telemetry scheduler.
func (e *Engine) TelemetryStats() telemetry.Stats {
	return e.scheduler.Stats()
}

// Handshake starts a new session initiated locally. The returned REQ(INI)
// must be sent to the peer, whose REQ(INI) completes the handshake.
// It returns nil while rebooting.
func (e *Engine) Handshake(now time.Time) *link.Frame {
	if e.state == StateRebooting {
		return nil
	}
	e.clearSession()
	e.setState(StateHandshaking)
	e.deadline = now.Add(e.timeout(e.HandshakeTimeout, DefaultHandshakeTimeout))
	return link.FrameOf(&link.Request{Kind: link.RequestInit})
}

// RebootComplete ends the Rebooting state.
func (e *Engine) RebootComplete(now time.Time) {
	if e.state == StateRebooting {
		e.completeReboot()
	}
}

// Reset ends the session, e.g. the transport is lost.
func (e *Engine) Reset(reason error) {
	glog.Warningf("session reset from %s: %v", e.state, reason)
	e.stats.Resets++
	e.clearSession()
	e.setState(StateIdle)
}

// Tick expires timeouts and emits due telemetry.
func (e *Engine) Tick(now time.Time) []*link.Frame {
	switch e.state {
	case StateHandshaking:
		if !now.Before(e.deadline) {
			glog.Warning("handshake timeout")
			e.stats.Timeouts++
			e.setState(StateIdle)
		}
	case StateRebooting:
		if !now.Before(e.deadline) {
			glog.Warning("reboot acknowledgment timeout")
			e.stats.Timeouts++
			e.completeReboot()
		}
	case StateStreaming:
		frames := e.scheduler.Tick(now)
		e.syncStreaming()
		return frames
	}
	return nil
}

// Dispatch processes an inbound frame and returns the frame to send
// back, nil if nothing should be sent.
func (e *Engine) Dispatch(now time.Time, f *link.Frame) *link.Frame {
	cmd, err := e.Registry.Parse(f)
	if e.state == StateRebooting {
		if reboot, ok := cmd.(*link.Reboot); ok && err == nil && reboot.Phase == link.RebootDone {
			e.completeReboot()
			return nil
		}
		e.drop(f, "rebooting")
		return nil
	}
	if err != nil {
		if _, ok := err.(*link.CommandError); !ok || f.Opcode == link.OpLog {
			e.drop(f, err.Error())
			return nil
		}
		if reply := e.outOfSession(f.Opcode); reply != nil {
			return reply
		}
		return e.reject(f.Opcode, err)
	}

	switch c := cmd.(type) {
	case *link.LogMessage:
		e.stats.Notifications++
		if e.Logs != nil {
			e.Logs.HandleLog(c)
		}
		return nil
	case *link.Nack:
		e.stats.Notifications++
		glog.Warningf("peer rejected %s", c)
		if e.state == StateHandshaking && c.Rejected == link.OpRequest {
			e.setState(StateIdle)
		}
		return nil
	case *link.Request:
		return e.handleRequest(now, c)
	case *link.Reboot:
		return e.handleReboot(now, c)
	}

	if reply := e.outOfSession(f.Opcode); reply != nil {
		return reply
	}

	var reply link.Command
	switch c := cmd.(type) {
	case *link.SetCommand:
		reply, err = e.handleSet(c)
	case *link.TelemetryQuery:
		reply, err = e.handleTelemetryQuery(now, c)
	case *link.TelemetryStart:
		reply, err = e.handleTelemetryStart(now, c)
	case *link.TelemetryValue:
		reply, err = e.handleTelemetryValue(c)
	case *link.Swap:
		reply, err = e.handleSwap(c)
	case *link.PropertyCommand:
		reply, err = e.handleProperty(c)
	case *link.TelemetryData:
		err = &link.CommandError{Code: link.CodeUnexpectedCommand, Opcode: f.Opcode, Err: fmt.Errorf("telemetry data is device to host only")}
	default:
		err = &link.CommandError{Code: link.CodeUnexpectedCommand, Opcode: f.Opcode}
	}
	if err != nil {
		return e.reject(f.Opcode, err)
	}
	out := link.FrameOf(reply)
	if len(out.Payload) > link.MaxPayloadSize {
		return e.reject(f.Opcode, &link.CommandError{Code: link.CodeHandlerFailed, Opcode: f.Opcode, Err: link.ErrPayloadTooLarge})
	}
	e.stats.Dispatched++
	return out
}

// outOfSession rejects session commands while no session is established,
// before their payload is validated.
func (e *Engine) outOfSession(op link.Opcode) *link.Frame {
	switch op {
	case link.OpLog, link.OpRequest, link.OpReboot:
		return nil
	}
	switch e.state {
	case StateIdle:
		return e.reject(op, &link.CommandError{Code: link.CodeUnexpectedCommand, Opcode: op, Err: fmt.Errorf("no session")})
	case StateHandshaking:
		return e.reject(op, &link.CommandError{Code: link.CodeSessionNotReady, Opcode: op})
	}
	return nil
}

func (e *Engine) handleRequest(now time.Time, c *link.Request) *link.Frame {
	e.stats.Dispatched++
	switch e.state {
	case StateHandshaking:
		// the peer answered our handshake.
		e.startSession(now)
		return nil
	case StateIdle:
		e.startSession(now)
	}
	return link.FrameOf(c)
}

func (e *Engine) handleReboot(now time.Time, c *link.Reboot) *link.Frame {
	switch c.Phase {
	case link.RebootRequested:
		if e.Rebooter != nil {
			if err := e.Rebooter.Reboot(); err != nil {
				return e.reject(link.OpReboot, err)
			}
		}
		e.stats.Dispatched++
		glog.Info("rebooting")
		e.clearSession()
		e.setState(StateRebooting)
		e.deadline = now.Add(e.timeout(e.RebootTimeout, DefaultRebootTimeout))
		return link.FrameOf(&link.Reboot{Phase: link.RebootPending})
	case link.RebootDone:
		// the peer rebooted, its session is gone.
		e.stats.Notifications++
		glog.Info("peer rebooted")
		e.clearSession()
		e.setState(StateIdle)
		return nil
	}
	return e.reject(link.OpReboot, &link.CommandError{Code: link.CodeUnexpectedCommand, Opcode: link.OpReboot})
}

func (e *Engine) handleSet(c *link.SetCommand) (link.Command, error) {
	if e.Surfaces != nil {
		if err := e.Surfaces.SetSurface(*c); err != nil {
			return nil, &link.CommandError{Code: link.CodeHandlerFailed, Opcode: link.OpSet, Err: err}
		}
	}
	return c, nil
}

func (e *Engine) handleTelemetryQuery(now time.Time, c *link.TelemetryQuery) (link.Command, error) {
	if c.Set && c.Cadence != e.cadence {
		e.cadence = c.Cadence
		if e.scheduler.Active() {
			e.scheduler.Subscribe(e.scheduler.Fields(), e.cadence, now)
		}
	}
	return &link.TelemetryQuery{Set: true, Cadence: e.cadence}, nil
}

func (e *Engine) handleTelemetryStart(now time.Time, c *link.TelemetryStart) (link.Command, error) {
	if c.Fields == 0 {
		e.scheduler.Unsubscribe()
	} else {
		e.scheduler.Subscribe(c.Fields, e.cadence, now)
	}
	e.syncStreaming()
	return c, nil
}

func (e *Engine) handleTelemetryValue(c *link.TelemetryValue) (link.Command, error) {
	if c.HasValue {
		return nil, &link.CommandError{Code: link.CodeUnexpectedCommand, Opcode: link.OpTelemetryValue, Err: fmt.Errorf("value responses are device to host only")}
	}
	if e.scheduler.Source == nil {
		return nil, &link.CommandError{Code: link.CodeHandlerFailed, Opcode: link.OpTelemetryValue, Err: fmt.Errorf("no value source")}
	}
	val, err := e.scheduler.Source.Value(c.Field)
	if err != nil {
		return nil, &link.CommandError{Code: link.CodeHandlerFailed, Opcode: link.OpTelemetryValue, Err: err}
	}
	return &link.TelemetryValue{Field: c.Field, HasValue: true, Value: val}, nil
}

func (e *Engine) handleSwap(c *link.Swap) (link.Command, error) {
	if c.IsCommit() {
		if e.swap == nil || e.swap.key != c.Key {
			return nil, &link.CommandError{Code: link.CodeUnexpectedCommand, Opcode: link.OpSwap, Err: fmt.Errorf("no swap staged for key %d", c.Key)}
		}
		p, err := e.Properties.writable(link.OpSwap, c.Key)
		if err != nil {
			return nil, err
		}
		p.Value, e.swap = e.swap.value, nil
		return &link.Swap{Key: c.Key, Value: append([]byte{}, p.Value...)}, nil
	}
	p, err := e.Properties.writable(link.OpSwap, c.Key)
	if err != nil {
		return nil, err
	}
	e.swap = &pendingSwap{key: c.Key, value: c.Value}
	return &link.Swap{Key: c.Key, Value: append([]byte{}, p.Value...)}, nil
}

func (e *Engine) handleProperty(c *link.PropertyCommand) (link.Command, error) {
	if !c.IsWrite() {
		if len(c.Value) > 0 {
			return nil, &link.CommandError{Code: link.CodeInvalidPayload, Opcode: link.OpProperty, Err: fmt.Errorf("read with value")}
		}
		p, ok := e.Properties.Get(c.Key)
		if !ok {
			return nil, &link.CommandError{Code: link.CodeUnknownProperty, Opcode: link.OpProperty, Err: fmt.Errorf("key %d", c.Key)}
		}
		return &link.PropertyCommand{Key: p.Key, Mode: p.Mode, Value: p.Value}, nil
	}
	p, err := e.Properties.writable(link.OpProperty, c.Key)
	if err != nil {
		return nil, err
	}
	p.Value = c.Value
	if e.swap != nil && e.swap.key == c.Key {
		// the staged swap was answered with the overwritten value.
		e.swap = nil
	}
	glog.V(2).Infof("property %d (%s) = % x", p.Key, p.Name, p.Value)
	return &link.PropertyCommand{Key: p.Key, Mode: p.Mode, Value: append([]byte{}, p.Value...)}, nil
}

func (e *Engine) startSession(now time.Time) {
	e.clearSession()
	e.scheduler.Reset(now)
	e.setState(StateReady)
}

// clearSession cancels telemetry and any staged swap atomically.
func (e *Engine) clearSession() {
	e.scheduler.Unsubscribe()
	e.swap = nil
	e.cadence = e.Cadence
}

func (e *Engine) completeReboot() {
	glog.Info("reboot complete")
	e.clearSession()
	e.setState(StateIdle)
}

func (e *Engine) syncStreaming() {
	switch {
	case e.state == StateReady && e.scheduler.Active():
		e.setState(StateStreaming)
	case e.state == StateStreaming && !e.scheduler.Active():
		e.setState(StateReady)
	}
}

func (e *Engine) setState(s State) {
	if s != e.state {
		glog.V(2).Infof("session %s -> %s", e.state, s)
		e.state = s
	}
}

func (e *Engine) reject(op link.Opcode, err error) *link.Frame {
	e.stats.Rejected++
	glog.V(2).Infof("reject %s: %v", op, err)
	return link.FrameOf(link.NackOf(op, err))
}

func (e *Engine) drop(f *link.Frame, reason string) {
	e.stats.Dropped++
	glog.V(2).Infof("drop %s: %s", f, reason)
}

func (e *Engine) timeout(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
