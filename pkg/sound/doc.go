// ABOUTME: Package documentation for the sound engine
// ABOUTME: Describes the control/render split and the handle model
// Package sound is a real-time mixing and spatialization engine.
//
// An Engine owns a render side, which runs inside the output device
// callback (or Engine.Render), and a control side, which is every other
// goroutine. The control side never touches playback state directly: each
// control method queues a command that the render side applies at the
// start of its next pass. Commands never block; a full queue returns
// ErrCommandQueueFull.
//
// Sources are named by generational Handles. A handle to a destroyed
// source stays invalid forever, even after its slot is reused; commands
// naming it are ignored and reported as EventInvalidHandle.
//
// Each pass renders one quantum: sources are read through a cubic or
// linear interpolator at pitch times doppler times the sample rate ratio,
// spatialized by equal-power panning or HRTF convolution, summed into
// buses, processed by each bus's effect chain and clipped to [-1, 1].
//
//	eng, _ := sound.NewEngine(sound.Config{}, output.NewMalgo())
//	buf, _ := sound.NewStaticBuffer(samples, 1, 44100)
//	h, _ := eng.CreateSource(sound.SourceOptions{Buffer: buf, Spatial: true})
//	eng.SetPosition(h, mgl32.Vec3{2, 0, 1})
//	eng.Play(h)
package sound
