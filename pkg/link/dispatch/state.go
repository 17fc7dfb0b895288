package dispatch

import "fmt"

// State is the state of a session.
type State int

// Session states.
const (
	// StateIdle only accepts the initial handshake.
	StateIdle State = iota
	// StateHandshaking waits for the peer to answer our handshake.
	StateHandshaking
	// StateReady processes commands, telemetry is idle.
	StateReady
	// StateStreaming processes commands, telemetry is active.
	StateStreaming
	// StateRebooting drops everything until the reboot completes.
	StateRebooting
)

var stateNames = []string{"idle", "handshaking", "ready", "streaming", "rebooting"}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsReady indicates commands are processed.
func (s State) IsReady() bool {
	return s == StateReady || s == StateStreaming
}
