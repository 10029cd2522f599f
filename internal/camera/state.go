package camera

// State is the connection lifecycle of a Source.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// event drives transitions of the connection state machine.
type event int

const (
	evOpen event = iota
	evConnectOK
	evConnectFail
	evReadFail
	evClose
)

// next is the pure transition function for the connection lifecycle.
// Close is honored from every state; everything else only moves along
// the disconnected→connecting→connected path and back.
func (s State) next(ev event) State {
	if ev == evClose {
		return Disconnected
	}
	switch s {
	case Disconnected:
		if ev == evOpen {
			return Connecting
		}
	case Connecting:
		switch ev {
		case evConnectOK:
			return Connected
		case evConnectFail:
			return Failed
		}
	case Connected:
		if ev == evReadFail {
			return Disconnected
		}
	case Failed:
		// retry after backoff re-enters the connect path
		if ev == evOpen {
			return Connecting
		}
	}
	return s
}
