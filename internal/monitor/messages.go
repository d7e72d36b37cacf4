// ABOUTME: JSON message types exchanged between the monitor and its viewers
// ABOUTME: Wraps engine stats and events in a typed envelope
package monitor

import (
	"encoding/json"
	"time"

	"github.com/Resonate-Protocol/soundscape/pkg/sound"
)

// Message types
const (
	TypeHello = "monitor/hello"
	TypeStats = "engine/stats"
	TypeEvent = "engine/event"
)

// Message is the top-level wrapper for all monitor messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// envelope defers payload decoding until the type is known
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hello is the first message on every connection
type Hello struct {
	SessionID  string `json:"session_id"`
	EngineID   string `json:"engine_id"`
	Product    string `json:"product"`
	Version    string `json:"version"`
	SampleRate int    `json:"sample_rate"`
	Quantum    int    `json:"quantum"`
	MaxSources int    `json:"max_sources"`
}

// StatsPayload is a JSON rendering of sound.Stats
type StatsPayload struct {
	Passes          uint64  `json:"passes"`
	Frames          int64   `json:"frames"`
	ActiveSources   int     `json:"active_sources"`
	Underruns       uint64  `json:"underruns"`
	InvalidHandles  uint64  `json:"invalid_handles"`
	DroppedEvents   uint64  `json:"dropped_events"`
	DroppedCommands uint64  `json:"dropped_commands"`
	NonFinite       uint64  `json:"non_finite"`
	DecodeErrors    uint64  `json:"decode_errors"`
	LastPassMicros  int64   `json:"last_pass_us"`
	MaxPassMicros   int64   `json:"max_pass_us"`
	Load            float64 `json:"load"`
	PeakLeft        float32 `json:"peak_left"`
	PeakRight       float32 `json:"peak_right"`
}

// EventPayload is a JSON rendering of sound.Event
type EventPayload struct {
	Kind   string `json:"kind"`
	Handle string `json:"handle"`
	Frames int64  `json:"frames"`
	Error  string `json:"error,omitempty"`
}

// NewStatsPayload converts a stats snapshot. quantum is the real-time
// budget of one render pass.
func NewStatsPayload(s sound.Stats, quantum time.Duration) StatsPayload {
	return StatsPayload{
		Passes:          s.Passes,
		Frames:          s.Frames,
		ActiveSources:   s.ActiveSources,
		Underruns:       s.Underruns,
		InvalidHandles:  s.InvalidHandles,
		DroppedEvents:   s.DroppedEvents,
		DroppedCommands: s.DroppedCommands,
		NonFinite:       s.NonFinite,
		DecodeErrors:    s.DecodeErrors,
		LastPassMicros:  s.LastPass.Microseconds(),
		MaxPassMicros:   s.MaxPass.Microseconds(),
		Load:            s.Load(quantum),
		PeakLeft:        s.PeakLeft,
		PeakRight:       s.PeakRight,
	}
}

// NewEventPayload converts an engine event
func NewEventPayload(ev sound.Event) EventPayload {
	p := EventPayload{
		Kind:   ev.Kind.String(),
		Handle: ev.Handle.String(),
		Frames: ev.Frames,
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}
