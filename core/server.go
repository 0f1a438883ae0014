package core

import (
	"context"
	"time"

	"github.com/realDragonium/Slumber/mc"
)

// Server is the handle connections get on the lifecycle of the backing
// server. Implementations serialize every transition.
type Server interface {
	State() ServerState
	// Wake requests a start, it returns false when the request was ignored.
	Wake() bool
	Sleep() bool
	// Subscribe returns a channel which is closed on the next transition.
	Subscribe() <-chan struct{}
	WaitFor(ctx context.Context, states ...ServerState) (ServerState, error)
	// Failure is the reason the last start attempt failed, nil when it
	// did not fail.
	Failure() error
	// Status is the last status the real server answered with.
	Status() (mc.ResponseJSON, bool)
	ConnOpened()
	ConnClosed()
}

type ServerState byte

const (
	Sleeping ServerState = iota
	Starting
	Running
	Stopping
)

func (state ServerState) String() string {
	var text string
	switch state {
	case Sleeping:
		text = "Sleeping"
	case Starting:
		text = "Starting"
	case Running:
		text = "Running"
	case Stopping:
		text = "Stopping"
	default:
		text = "Unknown"
	}
	return text
}

func ParseServerState(s string) (ServerState, bool) {
	for _, state := range []ServerState{Sleeping, Starting, Running, Stopping} {
		if state.String() == s {
			return state, true
		}
	}
	return Sleeping, false
}

type ServerAction byte

const (
	CLOSE ServerAction = iota
	STATUS
	LEGACY_STATUS
	DISCONNECT
	PROXY
	OCCUPY
)

func (action ServerAction) String() string {
	var text string
	switch action {
	case CLOSE:
		text = "Close"
	case STATUS:
		text = "Status"
	case LEGACY_STATUS:
		text = "Legacy Status"
	case DISCONNECT:
		text = "Disconnect"
	case PROXY:
		text = "Proxy"
	case OCCUPY:
		text = "Occupy"
	}
	return text
}

type EventKind byte

const (
	EventStarted EventKind = iota
	EventReady
	EventCrashed
	EventStopped
	EventStartFailed
	EventForceKilled
)

func (kind EventKind) String() string {
	var text string
	switch kind {
	case EventStarted:
		text = "started"
	case EventReady:
		text = "ready"
	case EventCrashed:
		text = "crashed"
	case EventStopped:
		text = "stopped"
	case EventStartFailed:
		text = "start-failed"
	case EventForceKilled:
		text = "force-killed"
	}
	return text
}

// Event is emitted on every lifecycle change of the backing process.
type Event struct {
	Kind EventKind
	Err  error
	Time time.Time
}
