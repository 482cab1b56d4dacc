package graph

import (
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// Event is a typed notification from the graph session. All events are
// delivered on a single channel in arrival order so the engine can process
// them on one goroutine without locking.
type Event interface {
	event()
}

// NodeAdded reports a new audio stream node in the graph.
type NodeAdded struct {
	ID   uint32
	Meta types.NodeMeta
}

// NodeRemoved reports that a previously added node left the graph.
type NodeRemoved struct {
	ID uint32
}

// LevelSample carries one metered RMS level for the tapped voice node.
type LevelSample struct {
	ID    uint32
	RMSDB float64
	Time  time.Time
}

// BaselineRead delivers the result of a baseline volume query.
type BaselineRead struct {
	ID     uint32
	Volume float64
}

// Tick drives gain ramps. Emitted on the session's dispatch cadence.
type Tick struct {
	Time time.Time
}

// SessionLost reports that the connection to the audio server dropped.
// The session keeps retrying with backoff; SessionRestored follows on success.
type SessionLost struct {
	Err error
}

// SessionRestored reports that the monitor reconnected. The full graph is
// re-announced through NodeAdded events after this.
type SessionRestored struct{}

func (NodeAdded) event()       {}
func (NodeRemoved) event()     {}
func (LevelSample) event()     {}
func (BaselineRead) event()    {}
func (Tick) event()            {}
func (SessionLost) event()     {}
func (SessionRestored) event() {}

// Session is the sole boundary to the audio server. The engine consumes
// Events and issues volume writes; nothing else talks to the server.
type Session interface {
	// Start establishes the session and begins event delivery.
	Start() error
	// Stop tears the session down and stops issuing further graph calls.
	Stop() error
	// Events returns the typed event stream. Closed after Stop.
	Events() <-chan Event

	// SetStreamVolume requests an asynchronous volume write for a node.
	// Fire-and-forget: a write racing a node removal is silently dropped.
	SetStreamVolume(id uint32, volume float64)
	// RequestBaseline queries the node's current volume; the result arrives
	// as a BaselineRead event.
	RequestBaseline(id uint32)
	// DropPending discards queued writes for a node that was unregistered.
	DropPending(id uint32)

	// OpenTap starts level metering on the given node. Samples arrive as
	// LevelSample events until CloseTap.
	OpenTap(id uint32, target string)
	// CloseTap stops the level tap, if any.
	CloseTap()
}
