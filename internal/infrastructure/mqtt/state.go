package mqtt

// ConnectionState describes the transport client's view of the broker
// connection. Transitions are owned by the Client; the connection supervisor
// reads the state to drive reconnection.
type ConnectionState int32

const (
	// StateDisconnected means no connection exists. The supervisor will
	// attempt reconnection from this state.
	StateDisconnected ConnectionState = iota

	// StateConnecting means connection establishment is in flight.
	StateConnecting

	// StateConnected means the network loop is up and publishes may proceed.
	StateConnected
)

// String returns the lowercase name of the state, used in logs and the
// statistics snapshot.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
