package dispatch

import "github.com/robotalks/servolink/pkg/link"

// SurfaceController moves control surfaces to setpoints.
type SurfaceController interface {
	SetSurface(link.SetCommand) error
}

// SetSurfaceFunc is the func form of SurfaceController.
type SetSurfaceFunc func(link.SetCommand) error

// SetSurface implements SurfaceController.
func (f SetSurfaceFunc) SetSurface(cmd link.SetCommand) error {
	return f(cmd)
}

// Rebooter is invoked when a reboot is requested.
// The reboot completes when RebootComplete is called on the Engine, a
// RBT done frame is received, or the reboot timeout expires.
type Rebooter interface {
	Reboot() error
}

// RebootFunc is the func form of Rebooter.
type RebootFunc func() error

// Reboot implements Rebooter.
func (f RebootFunc) Reboot() error {
	return f()
}

// LogHandler receives LOG notifications from the peer.
type LogHandler interface {
	HandleLog(*link.LogMessage)
}

// HandleLogFunc is the func form of LogHandler.
type HandleLogFunc func(*link.LogMessage)

// HandleLog implements LogHandler.
func (f HandleLogFunc) HandleLog(msg *link.LogMessage) {
	f(msg)
}
