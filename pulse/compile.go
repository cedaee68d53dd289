package pulse

import (
	"fmt"
	"sort"

	"qpulsec/schedule"
	"qpulsec/transpile"
)

// overlapEps absorbs float noise when adjacent segments abut exactly.
const overlapEps = 1e-9

// ChannelOverflowError reports a compiled segment violating its channel's
// constraints: amplitude outside the declared window, or overlapping
// timing on a non-additive channel. Amplitudes are never clamped; masking
// a calibration error is worse than failing the compile.
type ChannelOverflowError struct {
	Channel   string
	GateIndex int
	Amplitude float64
	MinAmp    float64
	MaxAmp    float64
	Overlap   bool
}

func (e *ChannelOverflowError) Error() string {
	if e.Overlap {
		return fmt.Sprintf("pulse: overlapping segments on non-additive channel %q (gate %d)",
			e.Channel, e.GateIndex)
	}
	return fmt.Sprintf("pulse: amplitude %g on channel %q (gate %d) outside [%g, %g]",
		e.Amplitude, e.Channel, e.GateIndex, e.MinAmp, e.MaxAmp)
}

// Compile instantiates every scheduled gate's pulse template at its start
// time and validates the result against the channel config.
//
// Policy knobs, fixed and documented rather than implicit: multi-qubit
// gates compile to whatever channels their template emits (the standard
// library emits one coupling-channel pulse); classically conditioned gates
// compile eagerly, with the condition carried on each emitted segment for
// the evolution engine to evaluate.
func Compile(sched schedule.Schedule, lib *Library, cfg ChannelConfig) (PulseSchedule, error) {
	out := PulseSchedule{Channels: make(map[string][]Segment)}
	for _, sg := range sched.Gates {
		tmpl, ok := lib.Template(sg.Gate.Name)
		if !ok {
			return PulseSchedule{}, &transpile.UnknownGateError{
				Name:  sg.Gate.Name,
				Arity: sg.Gate.Arity(),
				Index: sg.Index,
			}
		}
		segs, err := tmpl(sg, lib.cal)
		if err != nil {
			return PulseSchedule{}, err
		}
		for _, seg := range segs {
			seg.Start += sg.Start
			seg.GateIndex = sg.Index
			if sg.Gate.Condition != nil {
				cond := *sg.Gate.Condition
				seg.Conditional = &cond
			}
			ch, ok := cfg.Lookup(seg.Channel)
			if !ok {
				return PulseSchedule{}, fmt.Errorf("pulse: template for %q emitted unknown channel %q",
					sg.Gate.Name, seg.Channel)
			}
			if seg.Amplitude < ch.MinAmp || seg.Amplitude > ch.MaxAmp {
				return PulseSchedule{}, &ChannelOverflowError{
					Channel:   seg.Channel,
					GateIndex: sg.Index,
					Amplitude: seg.Amplitude,
					MinAmp:    ch.MinAmp,
					MaxAmp:    ch.MaxAmp,
				}
			}
			out.Channels[seg.Channel] = append(out.Channels[seg.Channel], seg)
			if seg.End() > out.Duration {
				out.Duration = seg.End()
			}
		}
	}

	for name, segs := range out.Channels {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
		ch, _ := cfg.Lookup(name)
		if ch.Additive {
			continue
		}
		for i := 1; i < len(segs); i++ {
			if segs[i].Start < segs[i-1].End()-overlapEps {
				return PulseSchedule{}, &ChannelOverflowError{
					Channel:   name,
					GateIndex: segs[i].GateIndex,
					Overlap:   true,
				}
			}
		}
	}
	return out, nil
}
