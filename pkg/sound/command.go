// ABOUTME: Commands sent from control goroutines to the render side
// ABOUTME: Applied in order at the start of a render pass; invalid handles are a no-op
package sound

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Resonate-Protocol/soundscape/pkg/sound/effect"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

type commandKind uint8

const (
	cmdCreateSource commandKind = iota
	cmdDestroySource
	cmdPlay
	cmdPause
	cmdStop
	cmdSetGain
	cmdSetPitch
	cmdSetLooping
	cmdSetSpatial
	cmdSetRenderer
	cmdSetPosition
	cmdSetVelocity
	cmdSetDirection
	cmdSetCone
	cmdSetDistance
	cmdSetBus
	cmdSetBuffer
	cmdSeek
	cmdSetListener
	cmdAddBus
	cmdSetBusGain
	cmdAddEffect
	cmdSetEffectParams
	cmdRemoveEffect
)

// command is a tagged value; each kind reads only the fields it needs
type command struct {
	kind   commandKind
	handle Handle

	source *Source
	buffer *Buffer
	conv   *hrtf.Convolver

	bus      *Bus
	busID    BusHandle
	effectID EffectHandle
	fx       *effect.Effect
	params   effect.Params

	flag     bool
	renderer Renderer
	a, b, c  float32
	seconds  float64
	vec      [4]mgl32.Vec3
}

// apply executes one command on the render side
func (m *mixer) apply(c *command) {
	switch c.kind {
	case cmdCreateSource:
		m.create(c.handle, c.source)
		return
	case cmdSetListener:
		m.listener.setPose(c.vec[0], c.vec[1], c.vec[2], c.vec[3])
		return
	case cmdAddBus:
		m.addBus(c.bus)
		return
	case cmdSetBusGain:
		if int(c.busID) < len(m.buses) {
			m.buses[c.busID].gain = c.a
		}
		return
	case cmdAddEffect:
		if int(c.busID) < len(m.buses) {
			m.buses[c.busID].addEffect(c.effectID, c.fx)
		}
		return
	case cmdSetEffectParams:
		if int(c.busID) < len(m.buses) {
			b := m.buses[c.busID]
			if i := b.findEffect(c.effectID); i >= 0 {
				_ = b.effects[i].fx.SetParams(c.params)
			}
		}
		return
	case cmdRemoveEffect:
		if int(c.busID) < len(m.buses) {
			m.buses[c.busID].removeEffect(c.effectID)
		}
		return
	}

	src := m.lookup(c.handle)
	if src == nil {
		if c.buffer != nil {
			c.buffer.detach()
		}
		m.invalid(c.handle)
		return
	}

	switch c.kind {
	case cmdDestroySource:
		m.destroy(c.handle.index())
	case cmdPlay:
		src.play()
	case cmdPause:
		src.pause()
	case cmdStop:
		if src.stop() {
			m.stopped(src)
		}
	case cmdSetGain:
		src.gain = c.a
	case cmdSetPitch:
		src.pitch = c.a
	case cmdSetLooping:
		src.setLooping(c.flag)
	case cmdSetSpatial:
		src.spatial = c.flag
		src.smoothed = false
	case cmdSetRenderer:
		if c.conv != nil && src.conv == nil {
			src.conv = c.conv
		}
		src.renderer = c.renderer
		src.smoothed = false
	case cmdSetPosition:
		src.position = c.vec[0]
	case cmdSetVelocity:
		src.velocity = c.vec[0]
	case cmdSetDirection:
		src.direction = c.vec[0]
	case cmdSetCone:
		src.coneInner, src.coneOuter, src.coneOuterGain = c.a, c.b, c.c
	case cmdSetDistance:
		src.radius, src.maxDistance, src.rolloff = c.a, c.b, c.c
	case cmdSetBus:
		if int(c.busID) < len(m.buses) {
			src.bus = c.busID
		}
	case cmdSetBuffer:
		if old := src.setBuffer(c.buffer); old != nil {
			old.detach()
		}
		src.setLooping(src.looping)
		if src.conv != nil {
			src.conv.Reset()
		}
	case cmdSeek:
		if b := src.buffer; b != nil {
			src.seek(int64(math.Round(c.seconds * float64(b.sampleRate))))
		}
	}
	m.publish(src)
}

func (m *mixer) lookup(h Handle) *Source {
	idx := h.index()
	if h == 0 || int(idx) >= len(m.slots) {
		return nil
	}
	s := m.slots[idx]
	if s.src == nil || s.gen != h.generation() {
		return nil
	}
	return s.src
}

func (m *mixer) invalid(h Handle) {
	m.stats.invalidHandles.Add(1)
	m.events.post(Event{Kind: EventInvalidHandle, Handle: h, Frames: m.frames})
}
