// ABOUTME: Events posted by the render side to the control side
// ABOUTME: Delivery is best effort; a full queue drops the event and counts it
package sound

import "fmt"

// EventKind identifies what happened
type EventKind int

const (
	// EventSourceStopped fires once per natural or explicit stop
	EventSourceStopped EventKind = iota
	// EventUnderrun fires on the first underrun of a run of starved passes
	EventUnderrun
	// EventInvalidHandle fires when a command names an expired handle
	EventInvalidHandle
	// EventDeviceLost fires when the output device fails at runtime
	EventDeviceLost
	// EventDecodeError fires when a streaming decoder fails during refill
	EventDecodeError
	// EventSourceDestroyed fires when a source slot is released
	EventSourceDestroyed
)

func (k EventKind) String() string {
	switch k {
	case EventSourceStopped:
		return "source-stopped"
	case EventUnderrun:
		return "underrun"
	case EventInvalidHandle:
		return "invalid-handle"
	case EventDeviceLost:
		return "device-lost"
	case EventDecodeError:
		return "decode-error"
	case EventSourceDestroyed:
		return "source-destroyed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a render-side notification
type Event struct {
	Kind   EventKind
	Handle Handle
	Frames int64 // engine frame clock when the event was posted
	Err    error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s at frame %d: %v", e.Kind, e.Handle, e.Frames, e.Err)
	}
	return fmt.Sprintf("%s %s at frame %d", e.Kind, e.Handle, e.Frames)
}

// eventQueue is the sending half of the event channel
type eventQueue struct {
	ch    chan Event
	stats *engineStats
}

// post never blocks
func (q *eventQueue) post(ev Event) {
	select {
	case q.ch <- ev:
	default:
		q.stats.droppedEvents.Add(1)
	}
}
