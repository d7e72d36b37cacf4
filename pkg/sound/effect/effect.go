// ABOUTME: Bus effect variants and their parameters
// ABOUTME: A closed set of kinds processed in place on interleaved stereo blocks
package effect

import (
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownKind  = errors.New("unknown effect kind")
	ErrKindMismatch = errors.New("params kind does not match effect")
)

// Kind identifies an effect variant
type Kind int

const (
	KindReverb Kind = iota
	KindLowPass
	KindHighPass
	KindBandPass
	KindAllPass
	KindLowShelf
	KindHighShelf
	KindGain
)

var kindNames = map[Kind]string{
	KindReverb:    "reverb",
	KindLowPass:   "lowpass",
	KindHighPass:  "highpass",
	KindBandPass:  "bandpass",
	KindAllPass:   "allpass",
	KindLowShelf:  "lowshelf",
	KindHighShelf: "highshelf",
	KindGain:      "gain",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a config name to a Kind
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Params configures an effect. Fields not used by a kind are ignored.
type Params struct {
	Kind Kind `yaml:"kind"`

	// Reverb
	DecayTime float32 `yaml:"decay_time"` // seconds to decay by 60 dB
	Damping   float32 `yaml:"damping"`    // 0..1 high-frequency absorption
	Wet       float32 `yaml:"wet"`        // 0..1
	Dry       float32 `yaml:"dry"`        // 0..1

	// Filters
	Cutoff float32 `yaml:"cutoff"` // Hz
	Q      float32 `yaml:"q"`

	// Shelves and KindGain
	GainDB float32 `yaml:"gain_db"`
}

// DefaultParams returns sensible settings for kind
func DefaultParams(kind Kind) Params {
	switch kind {
	case KindReverb:
		return Params{Kind: kind, DecayTime: 2, Damping: 0.5, Wet: 0.3, Dry: 1}
	case KindGain:
		return Params{Kind: kind}
	default:
		return Params{Kind: kind, Cutoff: 1000, Q: 0.7071}
	}
}

var paramKeys = map[string]bool{
	"kind": true, "decay_time": true, "damping": true, "wet": true, "dry": true,
	"cutoff": true, "q": true, "gain_db": true,
}

// UnmarshalYAML starts from the kind's defaults, so fields a document
// leaves out keep usable values instead of zero
func (p *Params) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: effect must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if key := value.Content[i]; !paramKeys[key.Value] {
			return fmt.Errorf("line %d: unknown effect field %q", key.Line, key.Value)
		}
	}

	var head struct {
		Kind Kind `yaml:"kind"`
	}
	if err := value.Decode(&head); err != nil {
		return err
	}
	type plain Params
	out := plain(DefaultParams(head.Kind))
	if err := value.Decode(&out); err != nil {
		return err
	}
	*p = Params(out)
	return nil
}

// Clamped returns p limited to ranges that keep the DSP stable at sampleRate.
// Non-finite values fall back to the kind's defaults.
func (p Params) Clamped(sampleRate int) Params {
	def := DefaultParams(p.Kind)
	nyquistGuard := float32(0.49 * float64(sampleRate))

	p.DecayTime = clampOr(p.DecayTime, 0.1, 20, def.DecayTime)
	p.Damping = clampOr(p.Damping, 0, 1, def.Damping)
	p.Wet = clampOr(p.Wet, 0, 1, def.Wet)
	p.Dry = clampOr(p.Dry, 0, 1, def.Dry)
	p.Cutoff = clampOr(p.Cutoff, 10, nyquistGuard, def.Cutoff)
	p.Q = clampOr(p.Q, 0.1, 20, def.Q)
	p.GainDB = clampOr(p.GainDB, -24, 24, def.GainDB)
	return p
}

func clampOr(v, lo, hi, fallback float32) float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		v = fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Effect is one stage of a bus chain. It owns its DSP state and is used
// only by the goroutine that renders the bus.
type Effect struct {
	params     Params
	sampleRate int

	reverb *reverb
	filter *biquad
	gain   float32
}

// New allocates an effect and its state
func New(p Params, sampleRate int) (*Effect, error) {
	e := &Effect{sampleRate: sampleRate}
	switch p.Kind {
	case KindReverb:
		e.reverb = newReverb(sampleRate)
	case KindLowPass, KindHighPass, KindBandPass, KindAllPass, KindLowShelf, KindHighShelf:
		e.filter = &biquad{}
	case KindGain:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(p.Kind))
	}
	e.apply(p)
	return e, nil
}

// Kind returns the effect variant
func (e *Effect) Kind() Kind {
	return e.params.Kind
}

// Params returns the clamped parameters in effect
func (e *Effect) Params() Params {
	return e.params
}

// SetParams clamps and applies new parameters of the same kind
func (e *Effect) SetParams(p Params) error {
	if p.Kind != e.params.Kind {
		return fmt.Errorf("%w: %v to %v", ErrKindMismatch, p.Kind, e.params.Kind)
	}
	e.apply(p)
	return nil
}

func (e *Effect) apply(p Params) {
	p = p.Clamped(e.sampleRate)
	e.params = p
	switch p.Kind {
	case KindReverb:
		e.reverb.configure(p, e.sampleRate)
	case KindGain:
		e.gain = dbToGain(p.GainDB)
	default:
		e.filter.configure(p, e.sampleRate)
	}
}

// Process transforms an interleaved stereo block in place
func (e *Effect) Process(block []float32) {
	switch e.params.Kind {
	case KindReverb:
		e.reverb.process(block)
	case KindGain:
		for i := range block {
			block[i] *= e.gain
		}
	default:
		e.filter.process(block)
	}
}

// Reset clears delay lines and filter memories
func (e *Effect) Reset() {
	if e.reverb != nil {
		e.reverb.reset()
	}
	if e.filter != nil {
		e.filter.reset()
	}
}

func dbToGain(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}
