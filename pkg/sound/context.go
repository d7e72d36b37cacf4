// ABOUTME: Render-side mixer that produces one quantum per pass
// ABOUTME: Owns sources, listener and buses; never allocates, blocks or logs
package sound

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
)

type slot struct {
	src *Source
	gen uint32
}

// mixer is the render-side half of an Engine. Only the goroutine running
// render passes touches it.
type mixer struct {
	cfg Config

	slots    []slot
	active   []uint32
	listener Listener
	buses    []*Bus
	order    []int

	scratch []float32 // stereo source block
	mono    []float32 // HRTF input

	events   *eventQueue
	stats    *engineStats
	board    *statusBoard
	released chan<- uint32

	frames int64
}

func newMixer(cfg Config, events *eventQueue, stats *engineStats, board *statusBoard, released chan<- uint32) *mixer {
	m := &mixer{
		cfg:      cfg,
		slots:    make([]slot, cfg.MaxSources),
		active:   make([]uint32, 0, cfg.MaxSources),
		listener: defaultListener(),
		buses:    make([]*Bus, 0, cfg.MaxBuses),
		order:    make([]int, 0, cfg.MaxBuses),
		scratch:  make([]float32, cfg.Quantum*2),
		mono:     make([]float32, cfg.Quantum),
		events:   events,
		stats:    stats,
		board:    board,
		released: released,
	}
	m.addBus(newBus(MasterBus, "master", MasterBus, 0, cfg.Quantum, cfg.MaxEffectsPerBus))
	return m
}

func (m *mixer) addBus(b *Bus) {
	if len(m.buses) == cap(m.buses) {
		return
	}
	m.buses = append(m.buses, b)
	m.order = append(m.order, len(m.buses)-1)
	sortBuses(m.order, m.buses)
}

func (m *mixer) create(h Handle, src *Source) {
	idx := h.index()
	if int(idx) >= len(m.slots) || m.slots[idx].src != nil {
		if src.buffer != nil {
			src.buffer.detach()
		}
		return
	}
	if int(src.bus) >= len(m.buses) {
		src.bus = MasterBus
	}
	src.setLooping(src.looping)
	m.slots[idx] = slot{src: src, gen: h.generation()}
	m.active = append(m.active, idx)
	m.stats.active.Store(int32(len(m.active)))
	m.publish(src)
}

// destroy frees a slot and hands its index back to the control side
func (m *mixer) destroy(idx uint32) {
	src := m.slots[idx].src
	if src == nil {
		return
	}
	if src.buffer != nil {
		src.buffer.detach()
		src.buffer = nil
	}
	m.slots[idx] = slot{}
	for i, a := range m.active {
		if a == idx {
			last := len(m.active) - 1
			m.active[i] = m.active[last]
			m.active = m.active[:last]
			break
		}
	}
	m.stats.active.Store(int32(len(m.active)))
	m.board.clear(idx)
	select {
	case m.released <- idx:
	default:
	}
	m.events.post(Event{Kind: EventSourceDestroyed, Handle: src.handle, Frames: m.frames})
}

// stopped reports a stop and retires play-once sources
func (m *mixer) stopped(src *Source) {
	m.events.post(Event{Kind: EventSourceStopped, Handle: src.handle, Frames: m.frames})
	if src.playOnce {
		m.destroy(src.handle.index())
	}
}

func (m *mixer) publish(src *Source) {
	if m.slots[src.handle.index()].src != src {
		return
	}
	frame, secs := src.cursor()
	m.board.publish(src.handle, src.state, frame, secs)
}

// render mixes one quantum into out, which holds Quantum stereo frames
func (m *mixer) render(out []float32) {
	for _, b := range m.buses {
		clear(b.buf)
	}

	for i := 0; i < len(m.active); {
		src := m.slots[m.active[i]].src
		if src.state == Playing || src.state == stopping {
			n := m.renderSource(src)
			if src.state == stopping || n < m.cfg.Quantum || src.exhausted() {
				src.finish()
				m.stopped(src)
				if m.slots[src.handle.index()].src != src {
					// destroyed; the slot at i now holds another source
					continue
				}
			}
		}
		m.publish(src)
		i++
	}

	nonFinite := 0
	for _, bi := range m.order {
		b := m.buses[bi]
		nonFinite += b.process()
		if bi != int(MasterBus) {
			parent := m.buses[b.parent].buf
			for j, s := range b.buf {
				parent[j] += s
			}
		}
	}

	copy(out, m.buses[MasterBus].buf)
	nonFinite += audio.Sanitize(out)
	if nonFinite > 0 {
		m.stats.nonFinite.Add(uint64(nonFinite))
	}
	m.frames += int64(m.cfg.Quantum)
	m.stats.frames.Store(m.frames)
}

// renderSource pulls, spatializes and adds one source into its bus. It
// returns how many frames the source produced before its buffer ended.
func (m *mixer) renderSource(src *Source) int {
	q := m.cfg.Quantum
	b := src.buffer
	if b == nil {
		return 0
	}

	gain := src.gain
	if src.state == stopping {
		gain = 0
	}
	doppler := float32(1)
	var toSource mgl32.Vec3
	if src.spatial {
		rel := src.position.Sub(m.listener.Position)
		toSource = m.listener.local(rel)
		dist := rel.Len()
		gain *= Attenuation(m.cfg.DistanceModel, dist, src.radius, src.maxDistance, src.rolloff)
		gain *= ConeGain(src.direction, rel.Mul(-1), src.coneInner, src.coneOuter, src.coneOuterGain)
		doppler = DopplerFactor(m.listener.Position, m.listener.Velocity, src.position, src.velocity,
			m.cfg.DopplerFactor, m.cfg.SpeedOfSound)
	}

	step := float64(src.pitch) * float64(doppler) * float64(b.sampleRate) / float64(m.cfg.SampleRate)
	block := m.scratch
	n, underrun := src.read(block, q, step, m.cfg.Interpolation)
	clear(block[n*2:])

	if underrun {
		m.stats.underruns.Add(1)
		if !src.underrunning {
			src.underrunning = true
			m.events.post(Event{Kind: EventUnderrun, Handle: src.handle, Frames: m.frames})
		}
	} else {
		src.underrunning = false
	}
	if b.stream != nil {
		if err := b.stream.takeError(); err != nil {
			m.stats.decodeErrors.Add(1)
			m.events.post(Event{Kind: EventDecodeError, Handle: src.handle, Frames: m.frames, Err: err})
		}
	}

	dst := m.buses[src.bus].buf
	switch {
	case !src.spatial:
		if !src.smoothed {
			src.prevLeft, src.prevRight = gain, gain
			src.smoothed = true
		}
		mixStereo(dst, block, src.prevLeft, src.prevRight, gain, gain)
		src.prevLeft, src.prevRight = gain, gain

	case src.renderer == RendererHRTF && src.conv != nil:
		if !src.smoothed {
			src.prevMono = gain
			src.smoothed = true
		}
		g := src.prevMono
		rampStep := (gain - g) / float32(q)
		for i := 0; i < q; i++ {
			g += rampStep
			m.mono[i] = (block[i*2] + block[i*2+1]) * 0.5 * g
		}
		src.conv.Process(m.mono, toSource, 1, dst)
		src.prevMono = gain

	default:
		pan := float32(0)
		if l := toSource.Len(); l > basisEpsilon {
			pan = toSource[0] / l
		}
		pl, pr := PanGains(pan)
		left, right := gain*pl, gain*pr
		if !src.smoothed {
			src.prevLeft, src.prevRight = left, right
			src.smoothed = true
		}
		mixMono(dst, block, src.prevLeft, src.prevRight, left, right)
		src.prevLeft, src.prevRight = left, right
	}
	return n
}

// mixStereo adds src into dst with per-channel gains ramping from (l0, r0)
// to (l1, r1) across the block
func mixStereo(dst, src []float32, l0, r0, l1, r1 float32) {
	frames := len(src) / 2
	if l0 == l1 && r0 == r1 {
		for i := 0; i < frames; i++ {
			dst[i*2] += src[i*2] * l1
			dst[i*2+1] += src[i*2+1] * r1
		}
		return
	}
	dl := (l1 - l0) / float32(frames)
	dr := (r1 - r0) / float32(frames)
	gl, gr := l0, r0
	for i := 0; i < frames; i++ {
		gl += dl
		gr += dr
		dst[i*2] += src[i*2] * gl
		dst[i*2+1] += src[i*2+1] * gr
	}
}

// mixMono folds src to mono and pans it into dst with ramped gains
func mixMono(dst, src []float32, l0, r0, l1, r1 float32) {
	frames := len(src) / 2
	dl := (l1 - l0) / float32(frames)
	dr := (r1 - r0) / float32(frames)
	gl, gr := l0, r0
	for i := 0; i < frames; i++ {
		gl += dl
		gr += dr
		x := (src[i*2] + src[i*2+1]) * 0.5
		dst[i*2] += x * gl
		dst[i*2+1] += x * gr
	}
}

// releaseAll drops every source's buffer reference once rendering has
// stopped for good
func (m *mixer) releaseAll() {
	for _, idx := range m.active {
		if src := m.slots[idx].src; src != nil && src.buffer != nil {
			src.buffer.detach()
			src.buffer = nil
		}
	}
}
