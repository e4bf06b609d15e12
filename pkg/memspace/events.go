package memspace

import (
	"fmt"

	"github.com/marmos91/memspace/pkg/mcs"
)

// EventType identifies what happened to a cache.
type EventType int

const (
	// EventLoadingComplete fires once, after the last declared byte has been
	// requested and its reply processed.
	EventLoadingComplete EventType = iota + 1

	// EventDataChanged fires for a registered range once all of its bytes
	// are loaded, and again on every write that overlaps it.
	EventDataChanged

	// EventLoadFault fires when prefetching stops on an error. Event.Err
	// carries the cause.
	EventLoadFault
)

// String returns the event name as used in logs.
func (t EventType) String() string {
	switch t {
	case EventLoadingComplete:
		return "UPDATE_LOADING_COMPLETE"
	case EventDataChanged:
		return "UPDATE_DATA"
	case EventLoadFault:
		return "LOAD_FAULT"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered to listeners and subscribers.
type Event struct {
	Type  EventType
	Node  mcs.NodeID
	Space mcs.Space

	// Range is the registered range a data-changed event is delivered for.
	// It is zero for cache-wide events.
	Range Range

	// Err is set for EventLoadFault.
	Err error
}

// Listener observes cache events. Listeners run synchronously on the
// goroutine that produced the event and never under the cache lock, so they
// may call Read. An error or a panic is logged and does not stop delivery to
// the remaining listeners.
type Listener func(ev Event) error
