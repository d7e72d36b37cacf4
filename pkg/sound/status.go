// ABOUTME: Per-source status snapshots published once per render pass
// ABOUTME: A seqlock board lets the writer publish without ever waiting on readers
package sound

import (
	"math"
	"sync/atomic"
	"time"
)

// State is a source's playback state
type State int32

const (
	Stopped State = iota
	Playing
	Paused
	// stopping fades out over one quantum and never outlives the pass
	stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case stopping:
		return "stopping"
	}
	return "unknown"
}

// Status is a source snapshot as of the last completed render pass
type Status struct {
	Handle Handle
	State  State
	Frame  int64   // cursor in buffer frames
	Cursor float64 // cursor in seconds
}

// CursorDuration returns the cursor as a duration
func (s Status) CursorDuration() time.Duration {
	return time.Duration(s.Cursor * float64(time.Second))
}

type statusSlot struct {
	seq    atomic.Uint32
	handle atomic.Uint64
	state  atomic.Int32
	frame  atomic.Int64
	cursor atomic.Uint64 // float64 bits
}

type statusBoard struct {
	slots []statusSlot
}

func newStatusBoard(size int) *statusBoard {
	return &statusBoard{slots: make([]statusSlot, size)}
}

// publish is called only by the render side
func (b *statusBoard) publish(h Handle, state State, frame int64, cursor float64) {
	s := &b.slots[h.index()]
	s.seq.Add(1)
	s.handle.Store(uint64(h))
	s.state.Store(int32(state))
	s.frame.Store(frame)
	s.cursor.Store(math.Float64bits(cursor))
	s.seq.Add(1)
}

// clear marks a slot empty after its source is destroyed
func (b *statusBoard) clear(idx uint32) {
	s := &b.slots[idx]
	s.seq.Add(1)
	s.handle.Store(0)
	s.state.Store(int32(Stopped))
	s.frame.Store(0)
	s.cursor.Store(0)
	s.seq.Add(1)
}

// read returns the last consistent snapshot for h
func (b *statusBoard) read(h Handle) (Status, bool) {
	idx := h.index()
	if h == 0 || int(idx) >= len(b.slots) {
		return Status{}, false
	}
	s := &b.slots[idx]

	var st Status
	consistent := false
	for attempt := 0; attempt < 64 && !consistent; attempt++ {
		before := s.seq.Load()
		if before&1 == 1 {
			continue
		}
		st = Status{
			Handle: Handle(s.handle.Load()),
			State:  State(s.state.Load()),
			Frame:  s.frame.Load(),
			Cursor: math.Float64frombits(s.cursor.Load()),
		}
		consistent = s.seq.Load() == before
	}
	if !consistent {
		return Status{}, false
	}
	if st.Handle != h {
		return Status{}, false
	}
	return st, true
}
