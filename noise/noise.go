// Package noise models device imperfections as contributions to a
// compiled pulse schedule: extra or perturbed segments on the control
// channels, plus collapse operators for the dissipative part of the
// evolution. Sources are applied only by the processor, after
// compilation; the transpiler, scheduler and compiler never see them.
package noise

import (
	"fmt"
	"math/rand"

	"qpulsec/pulse"
)

// CollapseOp is a dissipative channel on one qubit, consumed by the
// evolution engine. Operator is an open vocabulary the engine interprets
// ("sm" relaxation, "sz" dephasing).
type CollapseOp struct {
	Qubit    int
	Operator string
	Rate     float64
}

// Device is the read-only device view sources may consult.
type Device struct {
	NumQubits   int
	Calibration pulse.Calibration
	Channels    pulse.ChannelConfig
}

// Source contributes noise for one physical mechanism. Apply may mutate
// segments of ps (the processor passes a copy it owns) and returns any
// additional segments plus collapse operators.
type Source interface {
	Name() string
	Apply(ps *pulse.PulseSchedule, dev Device) ([]pulse.Segment, []CollapseOp, error)
}

// Model is an ordered set of sources.
type Model struct {
	sources []Source
}

// NewModel builds a model applying sources in the given order.
func NewModel(sources ...Source) *Model {
	return &Model{sources: append([]Source(nil), sources...)}
}

// Sources returns the configured sources in application order.
func (m *Model) Sources() []Source {
	return append([]Source(nil), m.sources...)
}

// Clone returns an independent copy sharing the source values.
func (m *Model) Clone() *Model {
	if m == nil {
		return NewModel()
	}
	return NewModel(m.sources...)
}

// Apply runs every source in order, folding extra segments into ps and
// collecting collapse operators.
func (m *Model) Apply(ps *pulse.PulseSchedule, dev Device) ([]CollapseOp, error) {
	if m == nil {
		return nil, nil
	}
	var collapse []CollapseOp
	for _, src := range m.sources {
		extra, ops, err := src.Apply(ps, dev)
		if err != nil {
			return nil, fmt.Errorf("noise: source %s: %w", src.Name(), err)
		}
		for _, seg := range extra {
			ps.Channels[seg.Channel] = append(ps.Channels[seg.Channel], seg)
			if seg.End() > ps.Duration {
				ps.Duration = seg.End()
			}
		}
		collapse = append(collapse, ops...)
	}
	return collapse, nil
}

// Relaxation models per-qubit T1 decay and T2 dephasing. T2 must satisfy
// T2 <= 2*T1; the pure-dephasing rate is 1/T2 - 1/(2*T1). A zero entry
// disables that channel for the qubit.
type Relaxation struct {
	T1 []float64
	T2 []float64
}

// Name implements Source.
func (Relaxation) Name() string { return "relaxation" }

// Apply implements Source.
func (r Relaxation) Apply(ps *pulse.PulseSchedule, dev Device) ([]pulse.Segment, []CollapseOp, error) {
	var ops []CollapseOp
	for q := 0; q < dev.NumQubits; q++ {
		t1 := at(r.T1, q)
		t2 := at(r.T2, q)
		if t1 > 0 {
			ops = append(ops, CollapseOp{Qubit: q, Operator: "sm", Rate: 1 / t1})
		}
		if t2 > 0 {
			dephase := 1 / t2
			if t1 > 0 {
				if t2 > 2*t1 {
					return nil, nil, fmt.Errorf("qubit %d: T2=%g exceeds 2*T1=%g", q, t2, 2*t1)
				}
				dephase = 1/t2 - 1/(2*t1)
			}
			if dephase > 0 {
				ops = append(ops, CollapseOp{Qubit: q, Operator: "sz", Rate: dephase})
			}
		}
	}
	return nil, ops, nil
}

// at returns v[q], or the single shared value when len(v)==1, or 0.
func at(v []float64, q int) float64 {
	switch {
	case q < len(v):
		return v[q]
	case len(v) == 1:
		return v[0]
	default:
		return 0
	}
}

// Dephasing applies a uniform sigma-z collapse on every qubit.
type Dephasing struct {
	Rate float64
}

// Name implements Source.
func (Dephasing) Name() string { return "dephasing" }

// Apply implements Source.
func (d Dephasing) Apply(ps *pulse.PulseSchedule, dev Device) ([]pulse.Segment, []CollapseOp, error) {
	if d.Rate <= 0 {
		return nil, nil, nil
	}
	ops := make([]CollapseOp, 0, dev.NumQubits)
	for q := 0; q < dev.NumQubits; q++ {
		ops = append(ops, CollapseOp{Qubit: q, Operator: "sz", Rate: d.Rate})
	}
	return nil, ops, nil
}

// ZZCrossTalk models the always-on ZZ coupling between neighboring
// qubits: one full-length segment per adjacent pair on the pair's coupler
// line, accumulating conditional phase at Strength for the whole schedule.
type ZZCrossTalk struct {
	// Strength is the ZZ interaction rate, in the same angular units the
	// coupler calibration uses.
	Strength float64
}

// Name implements Source.
func (ZZCrossTalk) Name() string { return "zz-crosstalk" }

// Apply implements Source.
func (z ZZCrossTalk) Apply(ps *pulse.PulseSchedule, dev Device) ([]pulse.Segment, []CollapseOp, error) {
	if z.Strength <= 0 || ps.Duration <= 0 || dev.NumQubits < 2 {
		return nil, nil, nil
	}
	if dev.Calibration.CouplingStrength == 0 {
		return nil, nil, fmt.Errorf("zz-crosstalk needs a nonzero coupling strength")
	}
	segs := make([]pulse.Segment, 0, dev.NumQubits-1)
	for q := 0; q+1 < dev.NumQubits; q++ {
		segs = append(segs, pulse.Segment{
			Channel:   pulse.CouplingChannel(q, q+1),
			Start:     0,
			Duration:  ps.Duration,
			Amplitude: z.Strength / dev.Calibration.CouplingStrength,
			Envelope:  pulse.Square,
			Operator:  "zzphase",
			Qubits:    []int{q, q + 1},
			GateIndex: -1,
		})
	}
	return segs, nil, nil
}

// ControlAmp models systematic control-line miscalibration: every segment
// on a named channel has its amplitude multiplied by the channel's scale
// factor. Scaled amplitudes are re-checked against the channel window so
// a miscalibration that drives a line out of range surfaces as a
// ChannelOverflowError instead of silently saturating.
type ControlAmp struct {
	Scale map[string]float64
}

// Name implements Source.
func (ControlAmp) Name() string { return "control-amp" }

// Apply implements Source.
func (c ControlAmp) Apply(ps *pulse.PulseSchedule, dev Device) ([]pulse.Segment, []CollapseOp, error) {
	for name, scale := range c.Scale {
		segs, ok := ps.Channels[name]
		if !ok {
			continue
		}
		ch, known := dev.Channels.Lookup(name)
		for i := range segs {
			segs[i].Amplitude *= scale
			if known && (segs[i].Amplitude < ch.MinAmp || segs[i].Amplitude > ch.MaxAmp) {
				return nil, nil, &pulse.ChannelOverflowError{
					Channel:   name,
					GateIndex: segs[i].GateIndex,
					Amplitude: segs[i].Amplitude,
					MinAmp:    ch.MinAmp,
					MaxAmp:    ch.MaxAmp,
				}
			}
		}
	}
	return nil, nil, nil
}

// RandomAmp jitters every segment amplitude with zero-mean gaussian noise
// of the given standard deviation. The random source is explicit so runs
// are reproducible under a fixed seed.
type RandomAmp struct {
	Std  float64
	Rand *rand.Rand
}

// Name implements Source.
func (RandomAmp) Name() string { return "random-amp" }

// Apply implements Source.
func (r RandomAmp) Apply(ps *pulse.PulseSchedule, dev Device) ([]pulse.Segment, []CollapseOp, error) {
	if r.Std <= 0 {
		return nil, nil, nil
	}
	if r.Rand == nil {
		return nil, nil, fmt.Errorf("random-amp source needs an explicit rand source")
	}
	for _, name := range ps.ChannelNames() {
		segs := ps.Channels[name]
		for i := range segs {
			segs[i].Amplitude += r.Std * r.Rand.NormFloat64()
		}
	}
	return nil, nil, nil
}
