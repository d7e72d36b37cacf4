// ABOUTME: Tests for the engine control API and render passes
// ABOUTME: Covers mixing scenarios, state transitions, handles, commands and device blocks
package sound

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Resonate-Protocol/soundscape/pkg/audio/output"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/effect"
	"github.com/Resonate-Protocol/soundscape/pkg/sound/hrtf"
)

func TestSineAtHalfGain(t *testing.T) {
	e := newTestEngine(t, Config{SampleRate: 48000, Quantum: 512})
	in := sine(1000, 48000, 4800)
	buf := staticBuffer(t, in, 1, 48000)
	mustPlay(t, e, SourceOptions{Buffer: buf, Gain: 0.5})

	out := renderFrames(t, e, 512)
	for i := 0; i < 512; i++ {
		want := in[i] * 0.5
		if out[i*2] != want || out[i*2+1] != want {
			t.Fatalf("frame %d: got (%v, %v), want %v on both channels", i, out[i*2], out[i*2+1], want)
		}
	}
}

func TestIdentityMix(t *testing.T) {
	t.Run("mono", func(t *testing.T) {
		e := newTestEngine(t, Config{Quantum: 128})
		in := ramp(1000)
		mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, in, 1, 48000)})

		out := renderFrames(t, e, 256)
		for i := 0; i < 256; i++ {
			if out[i*2] != in[i] || out[i*2+1] != in[i] {
				t.Fatalf("frame %d: got (%v, %v), want %v", i, out[i*2], out[i*2+1], in[i])
			}
		}
	})

	t.Run("stereo", func(t *testing.T) {
		e := newTestEngine(t, Config{Quantum: 128})
		in := make([]float32, 600)
		for i := 0; i < 300; i++ {
			in[i*2] = float32(i) / 300
			in[i*2+1] = -float32(i) / 600
		}
		mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, in, 2, 48000)})

		out := renderFrames(t, e, 128)
		for i := 0; i < 128*2; i++ {
			if out[i] != in[i] {
				t.Fatalf("sample %d: got %v, want %v", i, out[i], in[i])
			}
		}
	})
}

func TestNonLoopingEndStopsOnce(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 512})
	h := mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, constant(700, 0.25), 1, 48000)})

	out := renderFrames(t, e, 1024)
	for i := 0; i < 1024; i++ {
		want := float32(0.25)
		if i >= 700 {
			want = 0
		}
		if out[i*2] != want {
			t.Fatalf("frame %d: got %v, want %v", i, out[i*2], want)
		}
	}

	st, ok := e.SourceStatus(h)
	if !ok || st.State != Stopped || st.Frame != 0 {
		t.Errorf("status = %+v, %t; want stopped at frame 0", st, ok)
	}

	out = renderFrames(t, e, 512)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d after end = %v, want silence", i, s)
		}
	}
	if n := countKind(pendingEvents(e), EventSourceStopped); n != 1 {
		t.Errorf("got %d stop events, want 1", n)
	}
}

func TestEndOnQuantumBoundary(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 512})
	h := mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, constant(512, 0.25), 1, 48000)})

	out := renderFrames(t, e, 512)
	if out[0] != 0.25 || out[511*2] != 0.25 {
		t.Fatalf("expected the whole buffer in one pass, got %v .. %v", out[0], out[511*2])
	}
	st, ok := e.SourceStatus(h)
	if !ok || st.State != Stopped || st.Frame != 0 {
		t.Errorf("status = %+v, %t; want stopped at frame 0 after the last frame", st, ok)
	}
	if n := countKind(pendingEvents(e), EventSourceStopped); n != 1 {
		t.Errorf("got %d stop events in the final pass, want 1", n)
	}
}

func TestSeekWhileStoppedSurvivesPlay(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128})
	in := ramp(1000)
	h, err := e.CreateSource(SourceOptions{Buffer: staticBuffer(t, in, 1, 48000)})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SeekSource(h, 500.0/48000); err != nil {
		t.Fatal(err)
	}
	renderFrames(t, e, 128)
	if st, ok := e.SourceStatus(h); !ok || st.State != Stopped || st.Frame != 500 {
		t.Fatalf("status after seek = %+v, %t; want stopped at frame 500", st, ok)
	}

	if err := e.Play(h); err != nil {
		t.Fatal(err)
	}
	out := renderFrames(t, e, 128)
	for i := 0; i < 128; i++ {
		if out[i*2] != in[500+i] {
			t.Fatalf("frame %d: got %v, want %v", i, out[i*2], in[500+i])
		}
	}

	// Once stopped, the next Play starts from the beginning again
	e.Stop(h)
	renderFrames(t, e, 128)
	e.Play(h)
	out = renderFrames(t, e, 128)
	if out[2] != in[1] {
		t.Errorf("replay after stop: frame 1 = %v, want %v", out[2], in[1])
	}
}

func TestLoopContinuity(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 256})
	in := ramp(100)
	mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, in, 1, 48000), Looping: true})

	out := renderFrames(t, e, 768)
	for i := 0; i < 768; i++ {
		if want := in[i%100]; out[i*2] != want {
			t.Fatalf("frame %d: got %v, want %v", i, out[i*2], want)
		}
	}
	if n := countKind(pendingEvents(e), EventSourceStopped); n != 0 {
		t.Errorf("looping source posted %d stop events", n)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128})
	in := ramp(2000)
	h := mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, in, 1, 48000)})
	renderFrames(t, e, 128)

	e.Pause(h)
	e.Pause(h)
	out := renderFrames(t, e, 128)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("paused output sample %d = %v", i, s)
		}
	}
	st, _ := e.SourceStatus(h)
	if st.State != Paused || st.Frame != 128 {
		t.Fatalf("status = %+v, want paused at frame 128", st)
	}

	e.Pause(h)
	renderFrames(t, e, 128)
	if again, _ := e.SourceStatus(h); again != st {
		t.Errorf("second pause changed status: %+v -> %+v", st, again)
	}

	e.Play(h)
	out = renderFrames(t, e, 128)
	if out[0] != in[128] {
		t.Errorf("resume started at %v, want %v", out[0], in[128])
	}
}

func TestStopFadesOverOneQuantum(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 512})
	h := mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, constant(100, 0.5), 1, 48000), Looping: true})
	renderFrames(t, e, 512)

	e.Stop(h)
	out := renderFrames(t, e, 512)
	if out[0] < 0.49 {
		t.Errorf("fade starts at %v, want near 0.5", out[0])
	}
	for i := 1; i < 512; i++ {
		if out[i*2] > out[(i-1)*2] {
			t.Fatalf("fade rises at frame %d", i)
		}
	}
	if last := out[511*2]; math.Abs(float64(last)) > 1e-4 {
		t.Errorf("fade ends at %v, want 0", last)
	}

	st, _ := e.SourceStatus(h)
	if st.State != Stopped {
		t.Errorf("state after fade = %v", st.State)
	}
	out = renderFrames(t, e, 512)
	for _, s := range out {
		if s != 0 {
			t.Fatal("output after stop is not silent")
		}
	}
	if n := countKind(pendingEvents(e), EventSourceStopped); n != 1 {
		t.Errorf("got %d stop events, want 1", n)
	}
}

func TestExpiredHandleIsNoOp(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128, MaxSources: 1})
	in := ramp(1000)
	buf := staticBuffer(t, in, 1, 48000)
	old := mustPlay(t, e, SourceOptions{Buffer: buf})
	e.Stop(old)
	e.DestroySource(old)
	renderFrames(t, e, 128)

	if _, ok := e.SourceStatus(old); ok {
		t.Error("destroyed source still has a status")
	}

	// The single slot is reused under a new generation
	fresh := mustPlay(t, e, SourceOptions{Buffer: buf})
	if fresh == old || fresh.index() != old.index() {
		t.Fatalf("handles old=%v fresh=%v", old, fresh)
	}
	if err := e.SetGain(old, 0); err != nil {
		t.Fatalf("SetGain on expired handle: %v", err)
	}
	out := renderFrames(t, e, 128)
	for i := 0; i < 128; i++ {
		if out[i*2] != in[i] {
			t.Fatalf("expired handle changed the new source at frame %d: %v != %v", i, out[i*2], in[i])
		}
	}
	if s := e.Stats(); s.InvalidHandles != 1 {
		t.Errorf("InvalidHandles = %d, want 1", s.InvalidHandles)
	}
	if n := countKind(pendingEvents(e), EventInvalidHandle); n != 1 {
		t.Errorf("got %d invalid-handle events, want 1", n)
	}
}

func TestSourceLimit(t *testing.T) {
	e := newTestEngine(t, Config{MaxSources: 2})
	for i := 0; i < 2; i++ {
		if _, err := e.CreateSource(SourceOptions{}); err != nil {
			t.Fatalf("CreateSource %d: %v", i, err)
		}
	}
	if _, err := e.CreateSource(SourceOptions{}); !errors.Is(err, ErrTooManySources) {
		t.Errorf("got %v, want ErrTooManySources", err)
	}
}

func TestPlayOnceDestroysItself(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128})
	buf := staticBuffer(t, constant(50, 0.1), 1, 48000)
	h := mustPlay(t, e, SourceOptions{Buffer: buf, PlayOnce: true})
	renderFrames(t, e, 128)

	if _, ok := e.SourceStatus(h); ok {
		t.Error("play-once source survived its end")
	}
	if s := e.Stats(); s.ActiveSources != 0 {
		t.Errorf("ActiveSources = %d", s.ActiveSources)
	}
	if buf.refs.Load() != 1 {
		t.Errorf("buffer refs = %d, want only the creator's", buf.refs.Load())
	}
}

func TestCommandQueueFull(t *testing.T) {
	e := newTestEngine(t, Config{CommandQueue: 2})
	h, err := e.CreateSource(SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Play(h); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(h); !errors.Is(err, ErrCommandQueueFull) {
		t.Fatalf("got %v, want ErrCommandQueueFull", err)
	}
	if s := e.Stats(); s.DroppedCommands != 1 {
		t.Errorf("DroppedCommands = %d", s.DroppedCommands)
	}
}

func TestCommandsBoundedPerPass(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 64, MaxCommandsPerPass: 4, CommandQueue: 64})
	h, err := e.CreateSource(SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		if err := e.SetGain(h, float32(i)/10); err != nil {
			t.Fatal(err)
		}
	}

	for _, want := range []int{6, 2, 0} {
		renderFrames(t, e, 64)
		if got := len(e.cmds); got != want {
			t.Errorf("queued after pass = %d, want %d", got, want)
		}
	}
}

func TestParameterValidation(t *testing.T) {
	e := newTestEngine(t, Config{})
	h, err := e.CreateSource(SourceOptions{})
	if err != nil {
		t.Fatal(err)
	}
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nan gain", e.SetGain(h, nan), ErrInvalidParameter},
		{"inf pitch", e.SetPitch(h, inf), ErrInvalidParameter},
		{"nan position", e.SetPosition(h, mgl32.Vec3{nan, 0, 0}), ErrInvalidParameter},
		{"nan cone", e.SetCone(h, 90, nan, 0), ErrInvalidParameter},
		{"negative seek", e.SeekSource(h, -1), ErrInvalidParameter},
		{"zero handle", e.Play(0), ErrInvalidHandle},
		{"unknown bus", e.SetBus(h, 7), ErrUnknownBus},
		{"hrtf without sphere", e.SetRenderer(h, RendererHRTF), ErrNoHRTF},
		{"nan listener", e.SetListenerPose(mgl32.Vec3{}, mgl32.Vec3{0, 0, inf}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{}), ErrInvalidParameter},
		{"huge gain is clamped", e.SetGain(h, 1e9), nil},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, tt.err, tt.want)
		}
	}
}

func TestStreamingBufferSingleAttachment(t *testing.T) {
	e := newTestEngine(t, Config{})
	buf, err := e.CreateStreamingBuffer(newSliceDecoder(ramp(100), 1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()

	if _, err := e.CreateSource(SourceOptions{Buffer: buf}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateSource(SourceOptions{Buffer: buf}); !errors.Is(err, ErrStreamingBufferInUse) {
		t.Errorf("got %v, want ErrStreamingBufferInUse", err)
	}
}

func TestCloseRejectsCommands(t *testing.T) {
	e, err := NewEngine(Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := e.CreateSource(SourceOptions{})
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Play(h); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Play after Close: %v", err)
	}
	if err := e.Render(make([]float32, 64)); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Render after Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDeviceBlockSplitting(t *testing.T) {
	dev := output.NewManual()
	e, err := NewEngine(Config{Quantum: 64}, dev)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	in := ramp(1000)
	mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, in, 1, 48000), Looping: true})

	var got []float32
	for i := 0; i < 2; i++ {
		got = append(got, dev.Pull(100)...)
	}
	for i := 0; i < 200; i++ {
		if got[i*2] != in[i] {
			t.Fatalf("frame %d: got %v, want %v", i, got[i*2], in[i])
		}
	}
	if s := e.Stats(); s.Passes != 4 {
		t.Errorf("Passes = %d, want 4", s.Passes)
	}
	if err := e.Render(make([]float32, 128)); !errors.Is(err, ErrDeviceAttached) {
		t.Errorf("Render with device: %v", err)
	}

	// Large blocks take several passes
	big := dev.Pull(300)
	for i := 0; i < 300; i++ {
		if big[i*2] != in[200+i] {
			t.Fatalf("large block frame %d: got %v, want %v", i, big[i*2], in[200+i])
		}
	}
}

func TestDeviceLossBecomesEvent(t *testing.T) {
	dev := output.NewManual()
	e, err := NewEngine(Config{}, dev)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	dev.Fail(output.ErrDeviceLost)
	select {
	case ev := <-e.Events():
		if ev.Kind != EventDeviceLost || !errors.Is(ev.Err, output.ErrDeviceLost) {
			t.Errorf("got %v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no device-lost event")
	}

	replacement := output.NewManual()
	if err := e.ReplaceDevice(replacement); err != nil {
		t.Fatalf("ReplaceDevice: %v", err)
	}
	if block := replacement.Pull(64); len(block) != 128 {
		t.Errorf("replacement produced %d samples", len(block))
	}
}

func TestBusGainAndRouting(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128})
	music, err := e.AddBus("music", MasterBus)
	if err != nil {
		t.Fatal(err)
	}
	in := constant(1000, 0.5)
	mustPlay(t, e, SourceOptions{Buffer: staticBuffer(t, in, 1, 48000), Bus: music})
	if err := e.SetBusGain(music, 0.5); err != nil {
		t.Fatal(err)
	}

	renderFrames(t, e, 128) // gain ramps during the first pass
	out := renderFrames(t, e, 128)
	for i := 0; i < 128; i++ {
		if out[i*2] != 0.25 {
			t.Fatalf("frame %d = %v, want 0.25", i, out[i*2])
		}
	}
}

func TestEffectManagement(t *testing.T) {
	e := newTestEngine(t, Config{MaxEffectsPerBus: 2})

	lp, err := e.AddEffect(MasterBus, effect.DefaultParams(effect.KindLowPass))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddEffect(MasterBus, effect.DefaultParams(effect.KindReverb)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddEffect(MasterBus, effect.DefaultParams(effect.KindGain)); !errors.Is(err, ErrTooManyEffects) {
		t.Errorf("third effect: %v", err)
	}
	if err := e.SetEffectParams(MasterBus, lp, effect.DefaultParams(effect.KindReverb)); !errors.Is(err, effect.ErrKindMismatch) {
		t.Errorf("kind change: %v", err)
	}
	if _, err := e.AddEffect(3, effect.DefaultParams(effect.KindGain)); !errors.Is(err, ErrUnknownBus) {
		t.Errorf("unknown bus: %v", err)
	}

	p := effect.DefaultParams(effect.KindLowPass)
	p.Cutoff = 1e9
	if err := e.SetEffectParams(MasterBus, lp, p); err != nil {
		t.Fatal(err)
	}
	renderFrames(t, e, 512)
	master := e.mix.buses[MasterBus]
	if got := master.effects[0].fx.Params().Cutoff; got > 0.5*48000 {
		t.Errorf("cutoff not clamped: %v", got)
	}

	if err := e.RemoveEffect(MasterBus, lp); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveEffect(MasterBus, lp); !errors.Is(err, ErrUnknownEffect) {
		t.Errorf("double remove: %v", err)
	}
	renderFrames(t, e, 512)
	if len(master.effects) != 1 || master.effects[0].fx.Kind() != effect.KindReverb {
		t.Errorf("chain after removal: %+v", master.effects)
	}
}

func TestPanningFollowsPosition(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 256})
	h := mustPlay(t, e, SourceOptions{
		Buffer:   staticBuffer(t, constant(100, 0.5), 1, 48000),
		Looping:  true,
		Spatial:  true,
		Position: mgl32.Vec3{3, 0, 0},
	})

	out := renderFrames(t, e, 256)
	if out[200*2+1] <= out[200*2] {
		t.Errorf("source on the right: L=%v R=%v", out[400], out[401])
	}

	e.SetPosition(h, mgl32.Vec3{-3, 0, 0})
	renderFrames(t, e, 256)
	out = renderFrames(t, e, 256)
	if out[200*2] <= out[200*2+1] {
		t.Errorf("source on the left: L=%v R=%v", out[400], out[401])
	}

	// Turning the listener around swaps the sides again
	e.SetListenerPose(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{})
	renderFrames(t, e, 256)
	out = renderFrames(t, e, 256)
	if out[200*2+1] <= out[200*2] {
		t.Errorf("after turning: L=%v R=%v", out[400], out[401])
	}
}

func TestDistanceAttenuatesSpatialSources(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 256})
	h := mustPlay(t, e, SourceOptions{
		Buffer:   staticBuffer(t, constant(100, 0.5), 1, 48000),
		Looping:  true,
		Spatial:  true,
		Position: mgl32.Vec3{0, 0, 1},
	})
	near := renderFrames(t, e, 256)[255*2]

	e.SetPosition(h, mgl32.Vec3{0, 0, 8})
	renderFrames(t, e, 256)
	far := renderFrames(t, e, 256)[255*2]
	if !(far < near && far > 0) {
		t.Errorf("near=%v far=%v", near, far)
	}
}

func TestHRTFLateralizes(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 256, HRTF: hrtf.Synthesize(48000, 64)})
	mustPlay(t, e, SourceOptions{
		Buffer:   staticBuffer(t, sine(440, 48000, 4800), 1, 48000),
		Looping:  true,
		Spatial:  true,
		Renderer: RendererHRTF,
		Position: mgl32.Vec3{2, 0, 0},
	})

	renderFrames(t, e, 256)
	out := renderFrames(t, e, 1024)
	var left, right float64
	for i := 0; i < 1024; i++ {
		left += float64(out[i*2]) * float64(out[i*2])
		right += float64(out[i*2+1]) * float64(out[i*2+1])
	}
	if right <= left*2 {
		t.Errorf("right ear energy %v not well above left %v", right, left)
	}
}

func TestHRTFSmallMoveIsContinuous(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 256, HRTF: hrtf.Synthesize(48000, 64)})
	h := mustPlay(t, e, SourceOptions{
		Buffer:   staticBuffer(t, constant(100, 0.25), 1, 48000),
		Looping:  true,
		Spatial:  true,
		Renderer: RendererHRTF,
		Position: mgl32.Vec3{1, 0, 1},
	})
	renderFrames(t, e, 512)
	before := renderFrames(t, e, 256)

	e.SetPosition(h, mgl32.Vec3{1.02, 0, 1})
	after := renderFrames(t, e, 256)
	for c := 0; c < 2; c++ {
		jump := math.Abs(float64(after[c] - before[255*2+c]))
		if jump > 0.01 {
			t.Errorf("channel %d jumps by %v across the move", c, jump)
		}
	}
}

func TestRenderDoesNotAllocate(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 256})
	buf := staticBuffer(t, sine(220, 44100, 44100), 1, 44100)
	for i := 0; i < 8; i++ {
		mustPlay(t, e, SourceOptions{
			Buffer:   buf,
			Looping:  true,
			Spatial:  i%2 == 0,
			Gain:     0.1,
			Position: mgl32.Vec3{float32(i), 0, 2},
		})
	}
	bus, _ := e.AddBus("fx", MasterBus)
	e.AddEffect(bus, effect.DefaultParams(effect.KindReverb))
	e.AddEffect(MasterBus, effect.DefaultParams(effect.KindLowShelf))

	out := make([]float32, 256*2)
	e.render(out)
	if allocs := testing.AllocsPerRun(50, func() { e.render(out) }); allocs != 0 {
		t.Errorf("render allocated %v times per pass", allocs)
	}
}

func TestStalledStreamDoesNotBlockRender(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 512})
	dec := &stallDecoder{unblock: make(chan struct{})}
	t.Cleanup(func() { close(dec.unblock) })

	buf, err := e.CreateStreamingBuffer(dec)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	mustPlay(t, e, SourceOptions{Buffer: buf})

	done := make(chan []float32, 1)
	go func() {
		out := make([]float32, 512*2)
		_ = e.Render(out)
		done <- out
	}()

	select {
	case out := <-done:
		if len(out) != 1024 {
			t.Fatalf("block has %d samples", len(out))
		}
		for i, s := range out {
			if s != 0 {
				t.Fatalf("sample %d = %v, want silence", i, s)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("render blocked on a stalled decoder")
	}

	if s := e.Stats(); s.Underruns == 0 {
		t.Error("underrun not counted")
	}
	if n := countKind(pendingEvents(e), EventUnderrun); n != 1 {
		t.Errorf("got %d underrun events, want 1", n)
	}
}

func TestStreamingPlayback(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128, StreamChunkFrames: 256, StreamChunks: 3})
	in := ramp(2000)
	buf, err := e.CreateStreamingBuffer(newSliceDecoder(in, 1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	h := mustPlay(t, e, SourceOptions{Buffer: buf})

	var got []float32
	for pass := 0; pass < 17; pass++ {
		waitStream(t, buf)
		out := renderFrames(t, e, 128)
		for i := 0; i < 128; i++ {
			got = append(got, out[i*2])
		}
	}
	for i := 0; i < 2000; i++ {
		if got[i] != in[i] {
			t.Fatalf("frame %d: got %v, want %v", i, got[i], in[i])
		}
	}
	for i := 2000; i < len(got); i++ {
		if got[i] != 0 {
			t.Fatalf("frame %d after end = %v", i, got[i])
		}
	}
	if st, _ := e.SourceStatus(h); st.State != Stopped {
		t.Errorf("state = %v", st.State)
	}
	if s := e.Stats(); s.Underruns != 0 {
		t.Errorf("Underruns = %d", s.Underruns)
	}
}

func TestStreamingLoopHasNoGap(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128, StreamChunkFrames: 256, StreamChunks: 3})
	in := ramp(1000)
	buf, err := e.CreateStreamingBuffer(newSliceDecoder(in, 1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	mustPlay(t, e, SourceOptions{Buffer: buf, Looping: true})

	for pass := 0; pass < 20; pass++ {
		waitStream(t, buf)
		out := renderFrames(t, e, 128)
		for i := 0; i < 128; i++ {
			frame := pass*128 + i
			if want := in[frame%1000]; out[i*2] != want {
				t.Fatalf("frame %d: got %v, want %v", frame, out[i*2], want)
			}
		}
	}
}

func TestStreamingSeekBeforePlay(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128, StreamChunkFrames: 256, StreamChunks: 3})
	in := ramp(2000)
	buf, err := e.CreateStreamingBuffer(newSliceDecoder(in, 1, 48000))
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := buf.WaitReady(ctx); err != nil {
		t.Fatal(err)
	}
	if err := buf.Seek(ctx, 500); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	mustPlay(t, e, SourceOptions{Buffer: buf})

	// Chunks decoded before the seek are discarded, so playback may start
	// after a short underrun
	var got []float32
	for pass := 0; pass < 4; pass++ {
		out := renderFrames(t, e, 128)
		for i := 0; i < 128; i++ {
			got = append(got, out[i*2])
		}
		waitStream(t, buf)
	}
	start := -1
	for i, v := range got {
		if v != 0 {
			start = i
			break
		}
	}
	if start < 0 || start+128 > len(got) {
		t.Fatalf("playback did not start in time (start=%d)", start)
	}
	for i := 0; i < 128; i++ {
		if got[start+i] != in[500+i] {
			t.Fatalf("frame %d: got %v, want %v", i, got[start+i], in[500+i])
		}
	}
}

func TestStreamingDecodeErrorIsReported(t *testing.T) {
	e := newTestEngine(t, Config{Quantum: 128, StreamChunkFrames: 128, StreamChunks: 2})
	dec := newSliceDecoder(ramp(1000), 1, 48000)
	dec.failAt = 300
	buf, err := e.CreateStreamingBuffer(dec)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	mustPlay(t, e, SourceOptions{Buffer: buf})

	for pass := 0; pass < 5; pass++ {
		waitStream(t, buf)
		renderFrames(t, e, 128)
	}
	evs := pendingEvents(e)
	var decodeErr error
	for _, ev := range evs {
		if ev.Kind == EventDecodeError {
			decodeErr = ev.Err
		}
	}
	if !errors.Is(decodeErr, errBroken) {
		t.Errorf("decode error event carried %v", decodeErr)
	}
	if countKind(evs, EventSourceStopped) != 1 {
		t.Error("failed stream did not end the source")
	}
}

func BenchmarkRenderPass(b *testing.B) {
	e, err := NewEngine(Config{Quantum: 512}, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	buf, _ := NewStaticBuffer(sine(330, 48000, 48000), 1, 48000)
	for i := 0; i < 32; i++ {
		h, _ := e.CreateSource(SourceOptions{Buffer: buf, Looping: true, Spatial: true, Position: mgl32.Vec3{float32(i - 16), 0, 4}})
		e.Play(h)
	}
	out := make([]float32, 1024)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.render(out)
	}
}
