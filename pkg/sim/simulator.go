package sim

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/endpoint"
	fx "github.com/robotalks/servolink/pkg/framework"
	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/dispatch"
	"github.com/robotalks/servolink/pkg/link/notation"
)

// Simulator serves a simulated device on each link stream. Every stream
// gets its own Model, property table and session.
type Simulator struct {
	Properties   []dispatch.Property
	SlewRate     int32
	RebootDelay  time.Duration
	LoopInterval time.Duration
	// Cadence is the initial telemetry cadence.
	Cadence link.Cadence
	// Handshake makes the device initiate the session on connect.
	Handshake bool
}

// NewSimulator creates a Simulator with the default properties.
func NewSimulator() *Simulator {
	return &Simulator{
		Properties:   DefaultProperties(),
		SlewRate:     DefaultSlewRate,
		RebootDelay:  DefaultRebootDelay,
		LoopInterval: fx.DefaultLoopInterval,
		Cadence:      dispatch.DefaultCadence,
	}
}

// NewDevice wires a Model to a Device over a stream.
func (s *Simulator) NewDevice(rw io.ReadWriter) (*endpoint.Device, *Model) {
	model := NewModel()
	model.SlewRate = s.SlewRate
	model.RebootDelay = s.RebootDelay

	engine := dispatch.New(dispatch.NewPropertyTable(s.Properties...), model)
	engine.Surfaces = model
	engine.Rebooter = model
	engine.Cadence = s.Cadence
	engine.Logs = dispatch.HandleLogFunc(func(msg *link.LogMessage) {
		glog.Infof("peer %s", notation.Format(msg))
	})
	model.Stats = engine.Stats

	dev := endpoint.NewDeviceWith(rw, engine)
	model.OnRebooted = func() {
		if err := dev.RebootComplete(); err != nil {
			glog.Errorf("reboot complete: %v", err)
			return
		}
		dev.Log(link.LogInfo, "boot complete")
	}
	return dev, model
}

// Serve runs a simulated device on the stream until ctx is done or the
// stream fails.
func (s *Simulator) Serve(ctx context.Context, rw io.ReadWriter) error {
	dev, model := s.NewDevice(rw)
	loop := fx.NewLoop()
	loop.Interval = s.LoopInterval
	loop.Add(model)

	r := fx.NewRunnerWith(ctx)
	r.Go(fx.NamedRun("sim", loop), fx.NamedRun("device", dev))
	if s.Handshake {
		if err := dev.Handshake(); err != nil {
			r.Stop()
			r.Wait()
			return err
		}
	}
	return r.Wait()
}

// ServeConn implements transport.ConnHandler.
func (s *Simulator) ServeConn(ctx context.Context, conn io.ReadWriteCloser) {
	err := fx.RunWithContextCloser(ctx, conn, func() error {
		return s.Serve(ctx, conn)
	})
	var terr *link.TransportError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.As(err, &terr):
		glog.Infof("link closed: %v", err)
	default:
		glog.Errorf("link failed: %v", err)
	}
}
