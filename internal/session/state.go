package session

import "fmt"

// State is the connection-level state of a [Client].
type State int

const (
	// StateIdle means no connection and no connection attempt.
	StateIdle State = iota

	// StateConnecting means the initial dial is in progress.
	StateConnecting

	// StateConnectedIdle means the connection is open and no session runs.
	StateConnectedIdle

	// StateRecording means a session is accepting audio.
	StateRecording

	// StateFinalizing means Stop was sent and the final result is awaited.
	StateFinalizing

	// StateDisconnected means the connection was lost. It is transient: the
	// client moves on to StateReconnecting immediately.
	StateDisconnected

	// StateReconnecting means the reconnect loop is running.
	StateReconnecting
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnectedIdle:
		return "connected_idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connected reports whether a live connection exists in state s.
func (s State) Connected() bool {
	return s == StateConnectedIdle || s == StateRecording || s == StateFinalizing
}
