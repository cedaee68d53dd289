// Package pulse maps scheduled gates onto continuous-time control
// waveforms on named channels, and defines the channel/segment model those
// waveforms live in.
package pulse

import (
	"fmt"
	"math"
	"sort"

	"qpulsec/circuit"
)

// Envelope names a closed-form pulse shape with support [0,1] and unit
// peak. Shapes are pure functions so compiled schedules stay value types.
type Envelope string

const (
	// Square holds the peak for the whole duration.
	Square Envelope = "square"
	// Cosine is the raised-cosine (Hann) window.
	Cosine Envelope = "cosine"
	// Gaussian is a truncated gaussian with sigma = 1/6 of the duration.
	Gaussian Envelope = "gaussian"
)

// At evaluates the normalized shape at x in [0,1].
func (e Envelope) At(x float64) float64 {
	if x < 0 || x > 1 {
		return 0
	}
	switch e {
	case Cosine:
		return 0.5 * (1 - math.Cos(2*math.Pi*x))
	case Gaussian:
		d := (x - 0.5) / (1.0 / 6.0)
		return math.Exp(-0.5 * d * d)
	default:
		return 1
	}
}

// Area is the integral of the shape over [0,1], used to convert a target
// rotation angle into a peak amplitude.
func (e Envelope) Area() float64 {
	switch e {
	case Cosine:
		return 0.5
	case Gaussian:
		// σ·√(2π)·erf(3/√2) with σ=1/6, truncated at ±3σ.
		return 0.4166
	default:
		return 1
	}
}

// Channel is a physical control line with an amplitude window. Additive
// channels tolerate overlapping segments (contributions sum); on all
// others overlap is a compile error.
type Channel struct {
	Name     string
	MinAmp   float64
	MaxAmp   float64
	Additive bool
}

// ChannelConfig is the device's set of control lines.
type ChannelConfig struct {
	channels map[string]Channel
}

// NewChannelConfig builds a config from explicit channel definitions.
func NewChannelConfig(chs ...Channel) ChannelConfig {
	cfg := ChannelConfig{channels: make(map[string]Channel, len(chs))}
	for _, ch := range chs {
		cfg.channels[ch.Name] = ch
	}
	return cfg
}

// Lookup returns the channel definition by name.
func (c ChannelConfig) Lookup(name string) (Channel, bool) {
	ch, ok := c.channels[name]
	return ch, ok
}

// Names returns all channel names, sorted.
func (c ChannelConfig) Names() []string {
	out := make([]string, 0, len(c.channels))
	for name := range c.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (c ChannelConfig) Clone() ChannelConfig {
	out := ChannelConfig{channels: make(map[string]Channel, len(c.channels))}
	for k, v := range c.channels {
		out.channels[k] = v
	}
	return out
}

// DriveChannel names the single-qubit drive line of qubit q.
func DriveChannel(q int) string { return fmt.Sprintf("drive%d", q) }

// CouplingChannel names the coupler line between two qubits; the name is
// order-independent.
func CouplingChannel(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("coupling%d-%d", a, b)
}

// DefaultChannels declares one drive line per qubit and one coupler per
// qubit pair, all with the given symmetric amplitude bound.
func DefaultChannels(numQubits int, maxAmp float64) ChannelConfig {
	var chs []Channel
	for q := 0; q < numQubits; q++ {
		chs = append(chs, Channel{Name: DriveChannel(q), MinAmp: -maxAmp, MaxAmp: maxAmp})
	}
	for a := 0; a < numQubits; a++ {
		for b := a + 1; b < numQubits; b++ {
			chs = append(chs, Channel{Name: CouplingChannel(a, b), MinAmp: -maxAmp, MaxAmp: maxAmp})
		}
	}
	return NewChannelConfig(chs...)
}

// Segment is one continuous pulse: a peak amplitude shaped by Envelope,
// modulating a fixed operator on specific qubits over [Start, Start+Duration).
// Conditional segments execute only when the classical bit matches.
type Segment struct {
	Channel     string
	Start       float64
	Duration    float64
	Amplitude   float64
	Envelope    Envelope
	Operator    string
	Qubits      []int
	Conditional *circuit.ClassicalCondition
	// GateIndex points back at the scheduled gate this segment came from;
	// -1 for noise contributions.
	GateIndex int
	// Cbit is the classical destination bit of a measurement segment;
	// ignored for every other operator.
	Cbit int
}

// End returns Start + Duration.
func (s Segment) End() float64 { return s.Start + s.Duration }

// PulseSchedule maps channels to their start-ordered segment sequences.
type PulseSchedule struct {
	Channels map[string][]Segment
	Duration float64
}

// Segments returns every segment across channels in (start, channel)
// order, for consumers that want a flat timeline.
func (ps PulseSchedule) Segments() []Segment {
	var out []Segment
	for _, name := range ps.ChannelNames() {
		out = append(out, ps.Channels[name]...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// ChannelNames returns the active channel names, sorted.
func (ps PulseSchedule) ChannelNames() []string {
	out := make([]string, 0, len(ps.Channels))
	for name := range ps.Channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (ps PulseSchedule) Clone() PulseSchedule {
	out := PulseSchedule{Channels: make(map[string][]Segment, len(ps.Channels)), Duration: ps.Duration}
	for name, segs := range ps.Channels {
		cp := make([]Segment, len(segs))
		for i, s := range segs {
			cp[i] = cloneSegment(s)
		}
		out.Channels[name] = cp
	}
	return out
}

func cloneSegment(s Segment) Segment {
	c := s
	c.Qubits = append([]int(nil), s.Qubits...)
	if s.Conditional != nil {
		cond := *s.Conditional
		c.Conditional = &cond
	}
	return c
}
