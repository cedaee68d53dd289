package pulse

import (
	"fmt"
	"math"

	"qpulsec/circuit"
	"qpulsec/schedule"
)

// Calibration holds the device constants pulse templates are instantiated
// against. Angles are reached by integrating amplitude × envelope × the
// relevant strength over the gate duration.
type Calibration struct {
	// RabiFreq scales drive-channel amplitude into rotation rate.
	RabiFreq float64
	// CouplingStrength scales coupler-channel amplitude into conditional
	// phase rate.
	CouplingStrength float64
}

// DefaultCalibration matches the default native-set durations: a π
// rotation in a single-qubit slot stays well inside unit amplitude.
func DefaultCalibration() Calibration {
	return Calibration{RabiFreq: 500, CouplingStrength: 60}
}

// Template instantiates pulse segments for one scheduled gate, with
// segment starts relative to zero; the compiler shifts them to the gate's
// scheduled start.
type Template func(sg schedule.ScheduledGate, cal Calibration) ([]Segment, error)

// Library is the registry of pulse templates keyed by gate name, plus the
// calibration they are instantiated with.
type Library struct {
	templates map[string]Template
	cal       Calibration
}

// NewLibrary returns an empty template registry.
func NewLibrary(cal Calibration) *Library {
	return &Library{templates: make(map[string]Template), cal: cal}
}

// Calibration returns the library's device constants.
func (l *Library) Calibration() Calibration { return l.cal }

// Register installs the template for a gate name.
func (l *Library) Register(name string, t Template) error {
	if t == nil {
		return fmt.Errorf("pulse: nil template for gate %q", name)
	}
	if _, ok := l.templates[name]; ok {
		return fmt.Errorf("pulse: template for %q already registered", name)
	}
	l.templates[name] = t
	return nil
}

// Template returns the template for a gate name.
func (l *Library) Template(name string) (Template, bool) {
	t, ok := l.templates[name]
	return t, ok
}

// Clone returns an independent registry sharing the (pure) templates.
func (l *Library) Clone() *Library {
	out := NewLibrary(l.cal)
	for k, v := range l.templates {
		out.templates[k] = v
	}
	return out
}

// StandardLibrary covers the default native set: cosine-shaped drive
// pulses for RX/RY/RZ and one square coupler pulse for CZ. Two-qubit
// gates compile to a single coupling-channel pulse rather than
// simultaneous per-qubit drives; that choice is fixed here, not in the
// compiler.
func StandardLibrary(cal Calibration) *Library {
	l := NewLibrary(cal)
	reg := func(name string, t Template) {
		if err := l.Register(name, t); err != nil {
			panic(err)
		}
	}
	reg("RX", driveTemplate("sx"))
	reg("RY", driveTemplate("sy"))
	reg("RZ", driveTemplate("sz"))
	reg("CZ", czTemplate)
	reg(circuit.MeasureGate, measureTemplate)
	return l
}

// driveTemplate shapes a one-angle rotation about the given axis on the
// target's drive channel. Peak amplitude is chosen so the integrated
// pulse reaches the requested angle under the calibration's Rabi rate.
func driveTemplate(operator string) Template {
	return func(sg schedule.ScheduledGate, cal Calibration) ([]Segment, error) {
		g := sg.Gate
		if len(g.Targets) != 1 || len(g.Controls) != 0 {
			return nil, fmt.Errorf("pulse: gate %q wants exactly one target", g.Name)
		}
		if len(g.Params) != 1 {
			return nil, fmt.Errorf("pulse: gate %q wants exactly one angle, got %d", g.Name, len(g.Params))
		}
		theta := g.Params[0]
		q := g.Targets[0]
		env := Cosine
		amp := theta / (sg.Duration * env.Area() * cal.RabiFreq)
		return []Segment{{
			Channel:   DriveChannel(q),
			Start:     0,
			Duration:  sg.Duration,
			Amplitude: amp,
			Envelope:  env,
			Operator:  operator,
			Qubits:    []int{q},
			GateIndex: sg.Index,
		}}, nil
	}
}

// measureTemplate reserves the qubit's drive channel for the readout
// window. The segment carries no drive amplitude; the evolver recognizes
// the operator and projects the qubit into its classical bit.
func measureTemplate(sg schedule.ScheduledGate, cal Calibration) ([]Segment, error) {
	g := sg.Gate
	if len(g.Targets) != 1 || len(g.Controls) != 0 {
		return nil, fmt.Errorf("pulse: measurement wants exactly one target")
	}
	q := g.Targets[0]
	return []Segment{{
		Channel:   DriveChannel(q),
		Start:     0,
		Duration:  sg.Duration,
		Amplitude: 0,
		Envelope:  Square,
		Operator:  "measure",
		Qubits:    []int{q},
		GateIndex: sg.Index,
		Cbit:      g.Cbit,
	}}, nil
}

// czTemplate drives the coupler between the two qubits until the |11>
// branch has accumulated a π phase.
func czTemplate(sg schedule.ScheduledGate, cal Calibration) ([]Segment, error) {
	g := sg.Gate
	qs := g.Qubits()
	if len(qs) != 2 {
		return nil, fmt.Errorf("pulse: CZ wants exactly two qubits, got %d", len(qs))
	}
	env := Square
	amp := math.Pi / (sg.Duration * env.Area() * cal.CouplingStrength)
	return []Segment{{
		Channel:   CouplingChannel(qs[0], qs[1]),
		Start:     0,
		Duration:  sg.Duration,
		Amplitude: amp,
		Envelope:  env,
		Operator:  "czphase",
		Qubits:    []int{qs[0], qs[1]},
		GateIndex: sg.Index,
	}}, nil
}
