// ABOUTME: Engine ties the control API to the render-side mixer
// ABOUTME: Commands cross a bounded channel; device callbacks run render passes
package sound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/soundscape/pkg/audio"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/decode"
	"github.com/Resonate-Protocol/soundscape/pkg/audio/output"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/effect"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

// Channels is the engine's output channel count
const Channels = 2

type effectInfo struct {
	bus  BusHandle
	kind effect.Kind
}

// Engine mixes sources into a stereo output. Control methods are safe for
// concurrent use and never wait on the render side.
type Engine struct {
	cfg    Config
	id     uuid.UUID
	sphere *hrtf.Sphere

	cmds    chan command
	events  chan Event
	handles *handleAllocator
	stats   *engineStats
	board   *statusBoard

	// Render side
	mix      *mixer
	carry    []float32
	carryPos int

	mu         sync.Mutex
	device     output.Device
	devCancel  context.CancelFunc
	busDepths  []int
	busEffects []int
	effects    map[EffectHandle]effectInfo
	nextEffect EffectHandle

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewEngine builds an engine and, when dev is non-nil, opens and starts
// it. Without a device the caller drives rendering through Render.
func NewEngine(cfg Config, dev output.Device) (*Engine, error) {
	cfg = cfg.withDefaults()

	var sphere *hrtf.Sphere
	if cfg.HRTF != nil {
		if err := cfg.HRTF.Validate(); err != nil {
			return nil, fmt.Errorf("hrtf: %w", err)
		}
		sphere = cfg.HRTF
		if sphere.SampleRate != cfg.SampleRate {
			sphere = sphere.Resampled(cfg.SampleRate)
		}
	}

	stats := &engineStats{}
	released := make(chan uint32, cfg.MaxSources)
	e := &Engine{
		cfg:        cfg,
		id:         uuid.New(),
		sphere:     sphere,
		cmds:       make(chan command, cfg.CommandQueue),
		events:     make(chan Event, cfg.EventQueue),
		handles:    newHandleAllocator(cfg.MaxSources, released),
		stats:      stats,
		board:      newStatusBoard(cfg.MaxSources),
		carry:      make([]float32, cfg.Quantum*Channels),
		busDepths:  []int{0},
		busEffects: []int{0},
		effects:    make(map[EffectHandle]effectInfo),
	}
	e.carryPos = len(e.carry)
	e.mix = newMixer(cfg, &eventQueue{ch: e.events, stats: stats}, stats, e.board, released)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group, e.ctx = errgroup.WithContext(ctx)

	if dev != nil {
		if err := e.attach(dev); err != nil {
			cancel()
			return nil, err
		}
	}

	log.Infof("Engine %s: %d Hz, %d-frame quantum, %d sources, hrtf=%t",
		e.id, cfg.SampleRate, cfg.Quantum, cfg.MaxSources, sphere != nil)
	return e, nil
}

// attach opens dev and forwards its runtime errors as events. Callers
// hold mu or own e exclusively.
func (e *Engine) attach(dev output.Device) error {
	err := dev.Open(output.Config{
		SampleRate:  e.cfg.SampleRate,
		Channels:    Channels,
		BlockFrames: e.cfg.Quantum,
	}, e.render)
	if err != nil {
		return fmt.Errorf("%w: %w", output.ErrDeviceOpen, err)
	}
	if err := dev.Start(); err != nil {
		_ = dev.Close()
		return fmt.Errorf("starting device: %w", err)
	}

	ctx, cancel := context.WithCancel(e.ctx)
	e.device = dev
	e.devCancel = cancel
	errs := dev.Errors()
	q := &eventQueue{ch: e.events, stats: e.stats}
	e.group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-errs:
				if !ok {
					return nil
				}
				log.Errorf("Output device failed: %v", err)
				q.post(Event{Kind: EventDeviceLost, Frames: e.stats.frames.Load(), Err: err})
			}
		}
	})
	return nil
}

// ReplaceDevice closes the current device, if any, and continues
// rendering on dev. The mix state carries over.
func (e *Engine) ReplaceDevice(dev output.Device) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.device != nil {
		if err := e.device.Close(); err != nil {
			log.Warnf("Closing previous device: %v", err)
		}
		e.devCancel()
		e.device = nil
	}
	if dev == nil {
		return nil
	}
	if err := e.attach(dev); err != nil {
		return err
	}
	log.Infof("Engine %s: output device replaced", e.id)
	return nil
}

// Render produces len(out)/2 stereo frames when no device drives the
// engine. It must not be called from more than one goroutine at a time.
func (e *Engine) Render(out []float32) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.mu.Lock()
	attached := e.device != nil
	e.mu.Unlock()
	if attached {
		return ErrDeviceAttached
	}
	e.render(out)
	return nil
}

// render is the device callback. Blocks longer than a quantum take
// several passes; a partial pass leaves its remainder for the next call.
func (e *Engine) render(out []float32) {
	n := 0
	if e.carryPos < len(e.carry) {
		n = copy(out, e.carry[e.carryPos:])
		e.carryPos += n
	}
	block := len(e.carry)
	for n < len(out) {
		if len(out)-n >= block {
			e.pass(out[n : n+block])
			n += block
			continue
		}
		e.pass(e.carry)
		e.carryPos = copy(out[n:], e.carry)
		n += e.carryPos
	}
}

func (e *Engine) pass(block []float32) {
	start := time.Now()
	e.drain()
	e.mix.render(block)
	l, r := audio.Peak(block)
	e.stats.recordPass(time.Since(start), l, r)
}

// drain applies at most MaxCommandsPerPass queued commands
func (e *Engine) drain() {
	for i := 0; i < e.cfg.MaxCommandsPerPass; i++ {
		select {
		case c := <-e.cmds:
			e.mix.apply(&c)
		default:
			return
		}
	}
}

// Close stops the device and releases every buffer still attached to a
// source. The Events channel is left open.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	dev := e.device
	e.device = nil
	e.mu.Unlock()

	var errs []error
	if dev != nil {
		if err := dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing device: %w", err))
		}
	}
	e.cancel()
	if err := e.group.Wait(); err != nil {
		errs = append(errs, err)
	}
	e.discardPending()
	e.mix.releaseAll()

	s := e.stats.snapshot()
	log.Infof("Engine %s closed after %d passes (%d underruns, %d dropped events)",
		e.id, s.Passes, s.Underruns, s.DroppedEvents)
	return errors.Join(errs...)
}

// discardPending drops commands that never reached the render side,
// releasing the buffer references they carry
func (e *Engine) discardPending() {
	for {
		select {
		case c := <-e.cmds:
			if c.source != nil && c.source.buffer != nil {
				c.source.buffer.detach()
			}
			if c.buffer != nil {
				c.buffer.detach()
			}
		default:
			return
		}
	}
}

func (e *Engine) send(c command) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	select {
	case e.cmds <- c:
		return nil
	default:
		e.stats.droppedCommands.Add(1)
		log.Debugf("Command queue full, dropping command %d", c.kind)
		return ErrCommandQueueFull
	}
}

// ID identifies this engine instance
func (e *Engine) ID() uuid.UUID { return e.id }

// Config returns the effective configuration
func (e *Engine) Config() Config { return e.cfg }

// QuantumDuration is the real-time length of one render pass
func (e *Engine) QuantumDuration() time.Duration {
	return time.Duration(e.cfg.Quantum) * time.Second / time.Duration(e.cfg.SampleRate)
}

// Events delivers render-side notifications. Events are dropped, and
// counted, when nobody drains the channel.
func (e *Engine) Events() <-chan Event { return e.events }

// Stats returns the current counters
func (e *Engine) Stats() Stats { return e.stats.snapshot() }

// SourceStatus returns h's state as of the last completed pass. It
// reports false for handles the render side does not know (yet).
func (e *Engine) SourceStatus(h Handle) (Status, bool) {
	return e.board.read(h)
}

// CreateStaticBuffer decodes dec completely
func (e *Engine) CreateStaticBuffer(dec decode.Decoder) (*Buffer, error) {
	return LoadStaticBuffer(dec)
}

// CreateStreamingBuffer streams dec with the engine's ring geometry
func (e *Engine) CreateStreamingBuffer(dec decode.Decoder) (*Buffer, error) {
	return NewStreamingBuffer(dec, e.cfg.StreamOptions())
}

// CreateSource publishes a new stopped source
func (e *Engine) CreateSource(o SourceOptions) (Handle, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	o = o.withDefaults()
	if err := o.validate(); err != nil {
		return 0, err
	}
	if o.Renderer == RendererHRTF && e.sphere == nil {
		return 0, ErrNoHRTF
	}
	if err := e.checkBus(o.Bus); err != nil {
		return 0, err
	}
	if o.Buffer != nil {
		if err := o.Buffer.claim(); err != nil {
			return 0, err
		}
	}

	h, err := e.handles.alloc()
	if err != nil {
		if o.Buffer != nil {
			o.Buffer.detach()
		}
		return 0, err
	}
	src := newSource(h, o)
	if o.Renderer == RendererHRTF {
		src.conv = hrtf.NewConvolver(e.sphere, e.cfg.Quantum)
	}
	if err := e.send(command{kind: cmdCreateSource, handle: h, source: src}); err != nil {
		e.handles.abandon(h)
		if o.Buffer != nil {
			o.Buffer.detach()
		}
		return 0, err
	}
	return h, nil
}

func (e *Engine) sourceCommand(kind commandKind, h Handle) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	return e.send(command{kind: kind, handle: h})
}

// DestroySource releases the source and its buffer reference; h expires
func (e *Engine) DestroySource(h Handle) error { return e.sourceCommand(cmdDestroySource, h) }

// Play starts or resumes playback
func (e *Engine) Play(h Handle) error { return e.sourceCommand(cmdPlay, h) }

// Pause holds the cursor
func (e *Engine) Pause(h Handle) error { return e.sourceCommand(cmdPause, h) }

// Stop fades out over one quantum and rewinds
func (e *Engine) Stop(h Handle) error { return e.sourceCommand(cmdStop, h) }

func (e *Engine) scalarCommand(kind commandKind, h Handle, v float32, clamp func(float32) float32) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	if !finite32(v) {
		return ErrInvalidParameter
	}
	return e.send(command{kind: kind, handle: h, a: clamp(v)})
}

// SetGain sets the linear source gain, clamped to [0, 16]
func (e *Engine) SetGain(h Handle, gain float32) error {
	return e.scalarCommand(cmdSetGain, h, gain, clampGain)
}

// SetPitch sets the playback rate multiplier, clamped to [1/64, 16]
func (e *Engine) SetPitch(h Handle, pitch float32) error {
	return e.scalarCommand(cmdSetPitch, h, pitch, clampPitch)
}

// SetLooping toggles wrap-around at the end of the buffer
func (e *Engine) SetLooping(h Handle, on bool) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	return e.send(command{kind: cmdSetLooping, handle: h, flag: on})
}

// SetSpatial toggles 3D positioning
func (e *Engine) SetSpatial(h Handle, on bool) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	return e.send(command{kind: cmdSetSpatial, handle: h, flag: on})
}

// SetRenderer selects panning or HRTF rendering for a spatial source
func (e *Engine) SetRenderer(h Handle, r Renderer) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	c := command{kind: cmdSetRenderer, handle: h, renderer: r}
	if r == RendererHRTF {
		if e.sphere == nil {
			return ErrNoHRTF
		}
		c.conv = hrtf.NewConvolver(e.sphere, e.cfg.Quantum)
	}
	return e.send(c)
}

func (e *Engine) vectorCommand(kind commandKind, h Handle, v mgl32.Vec3) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	if !finiteVec3(v) {
		return ErrInvalidParameter
	}
	c := command{kind: kind, handle: h}
	c.vec[0] = v
	return e.send(c)
}

// SetPosition places the source in world space
func (e *Engine) SetPosition(h Handle, p mgl32.Vec3) error {
	return e.vectorCommand(cmdSetPosition, h, p)
}

// SetVelocity sets the source velocity used for doppler
func (e *Engine) SetVelocity(h Handle, v mgl32.Vec3) error {
	return e.vectorCommand(cmdSetVelocity, h, v)
}

// SetDirection aims the source cone; zero makes it omnidirectional
func (e *Engine) SetDirection(h Handle, d mgl32.Vec3) error {
	return e.vectorCommand(cmdSetDirection, h, d)
}

// SetCone sets the inner and outer cone widths in degrees and the gain
// outside the outer cone
func (e *Engine) SetCone(h Handle, inner, outer, outerGain float32) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	if !finite32(inner) || !finite32(outer) || !finite32(outerGain) {
		return ErrInvalidParameter
	}
	return e.send(command{
		kind: cmdSetCone, handle: h,
		a: clampAngle(inner), b: clampAngle(outer), c: mgl32.Clamp(outerGain, 0, 1),
	})
}

// SetDistance sets the reference radius, maximum distance and rolloff
func (e *Engine) SetDistance(h Handle, radius, maxDistance, rolloff float32) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	if !finite32(radius) || !finite32(maxDistance) || !finite32(rolloff) {
		return ErrInvalidParameter
	}
	return e.send(command{
		kind: cmdSetDistance, handle: h,
		a: clampRadius(radius), b: clampRadius(maxDistance), c: max(rolloff, 0),
	})
}

// SetBus routes the source to bus
func (e *Engine) SetBus(h Handle, bus BusHandle) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	if err := e.checkBus(bus); err != nil {
		return err
	}
	return e.send(command{kind: cmdSetBus, handle: h, busID: bus})
}

// SetBuffer swaps the source's buffer and rewinds it. A nil buffer
// silences the source.
func (e *Engine) SetBuffer(h Handle, b *Buffer) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	if b != nil {
		if err := b.claim(); err != nil {
			return err
		}
	}
	if err := e.send(command{kind: cmdSetBuffer, handle: h, buffer: b}); err != nil {
		if b != nil {
			b.detach()
		}
		return err
	}
	return nil
}

// SeekSource moves the cursor to the given offset in seconds
func (e *Engine) SeekSource(h Handle, seconds float64) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	if seconds != seconds || seconds < 0 || seconds > 1e9 {
		return ErrInvalidParameter
	}
	return e.send(command{kind: cmdSeek, handle: h, seconds: seconds})
}

// SetListenerPose moves the listener. Forward and up are re-orthonormalized;
// degenerate directions keep the previous orientation.
func (e *Engine) SetListenerPose(position, forward, up, velocity mgl32.Vec3) error {
	for _, v := range []mgl32.Vec3{position, forward, up, velocity} {
		if !finiteVec3(v) {
			return ErrInvalidParameter
		}
	}
	c := command{kind: cmdSetListener}
	c.vec = [4]mgl32.Vec3{position, forward, up, velocity}
	return e.send(c)
}

func (e *Engine) checkBus(bus BusHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(bus) >= len(e.busDepths) {
		return fmt.Errorf("%w: %d", ErrUnknownBus, bus)
	}
	return nil
}

// AddBus creates a bus feeding parent
func (e *Engine) AddBus(name string, parent BusHandle) (BusHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if int(parent) >= len(e.busDepths) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownBus, parent)
	}
	if len(e.busDepths) >= e.cfg.MaxBuses {
		return 0, ErrTooManyBuses
	}
	id := BusHandle(len(e.busDepths))
	depth := e.busDepths[parent] + 1
	bus := newBus(id, name, parent, depth, e.cfg.Quantum, e.cfg.MaxEffectsPerBus)
	if err := e.send(command{kind: cmdAddBus, bus: bus}); err != nil {
		return 0, err
	}
	e.busDepths = append(e.busDepths, depth)
	e.busEffects = append(e.busEffects, 0)
	log.Debugf("Added bus %d %q under %d", id, name, parent)
	return id, nil
}

// SetBusGain sets a bus's output gain, clamped to [0, 16]
func (e *Engine) SetBusGain(bus BusHandle, gain float32) error {
	if !finite32(gain) {
		return ErrInvalidParameter
	}
	if err := e.checkBus(bus); err != nil {
		return err
	}
	return e.send(command{kind: cmdSetBusGain, busID: bus, a: clampGain(gain)})
}

// SetMasterGain sets the master bus gain
func (e *Engine) SetMasterGain(gain float32) error {
	return e.SetBusGain(MasterBus, gain)
}

// AddEffect appends an effect to the end of bus's chain
func (e *Engine) AddEffect(bus BusHandle, p effect.Params) (EffectHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if int(bus) >= len(e.busDepths) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownBus, bus)
	}
	if e.busEffects[bus] >= e.cfg.MaxEffectsPerBus {
		return 0, ErrTooManyEffects
	}
	fx, err := effect.New(p, e.cfg.SampleRate)
	if err != nil {
		return 0, err
	}
	id := e.nextEffect + 1
	if err := e.send(command{kind: cmdAddEffect, busID: bus, effectID: id, fx: fx}); err != nil {
		return 0, err
	}
	e.nextEffect = id
	e.busEffects[bus]++
	e.effects[id] = effectInfo{bus: bus, kind: p.Kind}
	log.Debugf("Added %s effect %d to bus %d", p.Kind, id, bus)
	return id, nil
}

// SetEffectParams replaces an effect's parameters. The kind cannot change.
func (e *Engine) SetEffectParams(bus BusHandle, id EffectHandle, p effect.Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, ok := e.effects[id]
	if !ok || info.bus != bus {
		return ErrUnknownEffect
	}
	if p.Kind != info.kind {
		return effect.ErrKindMismatch
	}
	return e.send(command{kind: cmdSetEffectParams, busID: bus, effectID: id, params: p.Clamped(e.cfg.SampleRate)})
}

// RemoveEffect drops an effect from its chain
func (e *Engine) RemoveEffect(bus BusHandle, id EffectHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, ok := e.effects[id]
	if !ok || info.bus != bus {
		return ErrUnknownEffect
	}
	if err := e.send(command{kind: cmdRemoveEffect, busID: bus, effectID: id}); err != nil {
		return err
	}
	delete(e.effects, id)
	e.busEffects[bus]--
	return nil
}
