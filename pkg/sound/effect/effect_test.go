// ABOUTME: Tests for bus effects
// ABOUTME: Covers parameter clamping, filter responses, reverb stability and allocation
package effect

import (
	"errors"
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

const rate = 48000

func sine(freq float64, frames int) []float32 {
	block := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
		block[i*2] = v
		block[i*2+1] = v
	}
	return block
}

func rms(block []float32) float64 {
	var sum float64
	for _, v := range block {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(block)))
}

func TestParamsClamped(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	tests := []struct {
		name  string
		in    Params
		check func(Params) bool
	}{
		{"cutoff above nyquist", Params{Kind: KindLowPass, Cutoff: 40000, Q: 1}, func(p Params) bool { return p.Cutoff == 0.49*rate }},
		{"cutoff below floor", Params{Kind: KindHighPass, Cutoff: 1, Q: 1}, func(p Params) bool { return p.Cutoff == 10 }},
		{"nan cutoff uses default", Params{Kind: KindLowPass, Cutoff: nan, Q: 1}, func(p Params) bool { return p.Cutoff == 1000 }},
		{"q range", Params{Kind: KindBandPass, Cutoff: 100, Q: 500}, func(p Params) bool { return p.Q == 20 }},
		{"gain range", Params{Kind: KindGain, GainDB: -90}, func(p Params) bool { return p.GainDB == -24 }},
		{"wet range", Params{Kind: KindReverb, DecayTime: 1, Wet: 4}, func(p Params) bool { return p.Wet == 1 }},
		{"decay floor", Params{Kind: KindReverb, DecayTime: 0}, func(p Params) bool { return p.DecayTime == 0.1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.in.Clamped(rate); !tt.check(got) {
				t.Errorf("unexpected clamp result %+v", got)
			}
		})
	}
}

func TestParamsYAMLDefaults(t *testing.T) {
	t.Parallel()

	var chain []Params
	doc := "- kind: lowpass\n  cutoff: 4000\n- kind: reverb\n- kind: reverb\n  wet: 0\n"
	if err := yaml.Unmarshal([]byte(doc), &chain); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 effects, got %d", len(chain))
	}
	if lp := chain[0]; lp.Kind != KindLowPass || lp.Cutoff != 4000 || lp.Q != 0.7071 {
		t.Errorf("lowpass should keep the default Q: %+v", lp)
	}
	if rv := chain[1]; rv != DefaultParams(KindReverb) {
		t.Errorf("bare reverb should use defaults: %+v", rv)
	}
	if rv := chain[2]; rv.Wet != 0 || rv.DecayTime != 2 {
		t.Errorf("explicit zero should survive: %+v", rv)
	}
}

func TestParamsYAMLRejects(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"kind: flanger\n", "kind: lowpass\ncutof: 10\n", "lowpass\n"} {
		var p Params
		if err := yaml.Unmarshal([]byte(doc), &p); err == nil {
			t.Errorf("expected %q to be rejected, got %+v", doc, p)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Params{Kind: Kind(99)}, rate); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("highshelf")
	if err != nil || k != KindHighShelf {
		t.Errorf("ParseKind = %v, %v", k, err)
	}
	if _, err := ParseKind("chorus"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestSetParamsKindMismatch(t *testing.T) {
	e, err := New(DefaultParams(KindLowPass), rate)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.SetParams(DefaultParams(KindReverb)); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
	if err := e.SetParams(Params{Kind: KindLowPass, Cutoff: 1e9, Q: 1}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if e.Params().Cutoff != 0.49*rate {
		t.Errorf("expected clamped cutoff, got %v", e.Params().Cutoff)
	}
}

func TestLowPassAttenuatesHighFrequencies(t *testing.T) {
	e, _ := New(Params{Kind: KindLowPass, Cutoff: 500, Q: 0.7071}, rate)

	high := sine(8000, 4800)
	before := rms(high[2400:])
	e.Process(high)
	after := rms(high[2400:])
	if after > before*0.05 {
		t.Errorf("8 kHz through 500 Hz lowpass: rms %v -> %v", before, after)
	}

	e.Reset()
	low := sine(50, 4800)
	before = rms(low[4800:])
	e.Process(low)
	after = rms(low[4800:])
	if math.Abs(after-before) > before*0.05 {
		t.Errorf("50 Hz should pass: rms %v -> %v", before, after)
	}
}

func TestHighPassBlocksDC(t *testing.T) {
	e, _ := New(Params{Kind: KindHighPass, Cutoff: 200, Q: 0.7071}, rate)
	block := make([]float32, 2*4800)
	for i := range block {
		block[i] = 0.5
	}
	e.Process(block)
	if last := block[len(block)-1]; math.Abs(float64(last)) > 1e-3 {
		t.Errorf("expected DC removed, got %v", last)
	}
}

func TestShelfBoostsItsBand(t *testing.T) {
	e, _ := New(Params{Kind: KindLowShelf, Cutoff: 300, Q: 0.7071, GainDB: 12}, rate)
	low := sine(40, 9600)
	before := rms(low[9600:])
	e.Process(low)
	after := rms(low[9600:])
	if ratio := after / before; ratio < 3.5 || ratio > 4.5 {
		t.Errorf("expected about +12 dB at 40 Hz, got ratio %v", ratio)
	}
}

func TestGain(t *testing.T) {
	e, _ := New(Params{Kind: KindGain, GainDB: 6}, rate)
	block := []float32{0.25, -0.25}
	e.Process(block)
	if math.Abs(float64(block[0])-0.25*1.9953) > 1e-3 {
		t.Errorf("unexpected gain result %v", block[0])
	}
}

func TestReverbTailDecays(t *testing.T) {
	e, _ := New(Params{Kind: KindReverb, DecayTime: 0.5, Damping: 0.3, Wet: 1, Dry: 0}, rate)

	block := make([]float32, 2*rate)
	block[0], block[1] = 1, 1
	e.Process(block)

	early := rms(block[2*4800 : 2*9600])
	late := rms(block[2*38400:])
	if early == 0 {
		t.Fatal("expected a reverb tail")
	}
	if late >= early*0.1 {
		t.Errorf("tail did not decay: early %v late %v", early, late)
	}
}

func TestReverbStableAtMaximumDecay(t *testing.T) {
	e, _ := New(Params{Kind: KindReverb, DecayTime: 1000, Damping: 0, Wet: 1, Dry: 1}, rate)

	block := make([]float32, 2*1024)
	for pass := 0; pass < 500; pass++ {
		for i := range block {
			if pass < 50 {
				block[i] = float32(math.Sin(float64(i) * 0.37))
			} else {
				block[i] = 0
			}
		}
		e.Process(block)
		for _, v := range block {
			if math.IsNaN(float64(v)) || math.Abs(float64(v)) > 500 {
				t.Fatalf("reverb diverged on pass %d: %v", pass, v)
			}
		}
	}
}

func TestReverbReset(t *testing.T) {
	e, _ := New(DefaultParams(KindReverb), rate)
	block := sine(440, 2048)
	e.Process(block)
	e.Reset()

	silent := make([]float32, 2*2048)
	e.Process(silent)
	if rms(silent) != 0 {
		t.Error("expected silence after Reset")
	}
}

func TestProcessDoesNotAllocate(t *testing.T) {
	block := make([]float32, 1024)
	for _, kind := range []Kind{KindReverb, KindLowPass, KindHighShelf, KindGain} {
		e, _ := New(DefaultParams(kind), rate)
		if allocs := testing.AllocsPerRun(20, func() { e.Process(block) }); allocs != 0 {
			t.Errorf("%v allocated %v times per block", kind, allocs)
		}
	}
}

func BenchmarkReverb(b *testing.B) {
	e, _ := New(DefaultParams(KindReverb), rate)
	block := make([]float32, 1024)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Process(block)
	}
}
