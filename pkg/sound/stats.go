// ABOUTME: Engine counters shared between the render and control sides
// ABOUTME: All fields are atomics written by the render side
package sound

import (
	"math"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of engine counters
type Stats struct {
	Passes          uint64
	Frames          int64
	ActiveSources   int
	Underruns       uint64
	InvalidHandles  uint64
	DroppedEvents   uint64
	DroppedCommands uint64
	NonFinite       uint64 // samples replaced with silence before output
	DecodeErrors    uint64
	LastPass        time.Duration
	MaxPass         time.Duration
	PeakLeft        float32
	PeakRight       float32
}

// Load returns the fraction of the quantum's real-time budget the last
// pass consumed
func (s Stats) Load(quantum time.Duration) float64 {
	if quantum <= 0 {
		return 0
	}
	return float64(s.LastPass) / float64(quantum)
}

type engineStats struct {
	passes          atomic.Uint64
	frames          atomic.Int64
	active          atomic.Int32
	underruns       atomic.Uint64
	invalidHandles  atomic.Uint64
	droppedEvents   atomic.Uint64
	droppedCommands atomic.Uint64
	nonFinite       atomic.Uint64
	decodeErrors    atomic.Uint64
	lastPass        atomic.Int64
	maxPass         atomic.Int64
	peakLeft        atomic.Uint32
	peakRight       atomic.Uint32
}

func (s *engineStats) recordPass(d time.Duration, left, right float32) {
	s.passes.Add(1)
	s.lastPass.Store(int64(d))
	if int64(d) > s.maxPass.Load() {
		s.maxPass.Store(int64(d))
	}
	s.peakLeft.Store(math.Float32bits(left))
	s.peakRight.Store(math.Float32bits(right))
}

func (s *engineStats) snapshot() Stats {
	return Stats{
		Passes:          s.passes.Load(),
		Frames:          s.frames.Load(),
		ActiveSources:   int(s.active.Load()),
		Underruns:       s.underruns.Load(),
		InvalidHandles:  s.invalidHandles.Load(),
		DroppedEvents:   s.droppedEvents.Load(),
		DroppedCommands: s.droppedCommands.Load(),
		NonFinite:       s.nonFinite.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		LastPass:        time.Duration(s.lastPass.Load()),
		MaxPass:         time.Duration(s.maxPass.Load()),
		PeakLeft:        math.Float32frombits(s.peakLeft.Load()),
		PeakRight:       math.Float32frombits(s.peakRight.Load()),
	}
}
