package transpile

import (
	"fmt"
	"math"

	"qpulsec/circuit"
)

// Default native gate durations, in microseconds. Single-qubit rotations
// are fast drive pulses; the entangling CZ rides the slower coupler, and
// readout is slower still.
const (
	DefaultSingleQubitTime = 0.02
	DefaultTwoQubitTime    = 0.1
	DefaultMeasureTime     = 0.3
)

// DefaultNativeSet returns the stock RX/RY/RZ + CZ device vocabulary with
// decomposition rules for the common gate zoo. All rules are sound up to
// global phase.
func DefaultNativeSet() *NativeGateSet {
	s := NewNativeGateSet("rxryrz-cz")
	must(s.AddNative("RX", 1, DefaultSingleQubitTime))
	must(s.AddNative("RY", 1, DefaultSingleQubitTime))
	must(s.AddNative("RZ", 1, DefaultSingleQubitTime))
	must(s.AddNative("CZ", 2, DefaultTwoQubitTime))
	must(s.AddNative(circuit.MeasureGate, 1, DefaultMeasureTime))
	RegisterStandardRules(s)
	return s
}

// RegisterStandardRules installs the stock single- and multi-qubit
// lowerings onto set. The rules only assume RX/RY/RZ/CZ exist somewhere
// down the chain, so they compose with custom native sets too.
func RegisterStandardRules(s *NativeGateSet) {
	must(s.AddRule("I", 1, func(g circuit.Gate) ([]circuit.Gate, error) {
		return nil, nil
	}))
	must(s.AddRule("H", 1, singleRotations("RZ", math.Pi, "RY", math.Pi/2)))
	must(s.AddRule("X", 1, fixedRotation("RX", math.Pi)))
	must(s.AddRule("Y", 1, fixedRotation("RY", math.Pi)))
	must(s.AddRule("Z", 1, fixedRotation("RZ", math.Pi)))
	must(s.AddRule("S", 1, fixedRotation("RZ", math.Pi/2)))
	must(s.AddRule("SDG", 1, fixedRotation("RZ", -math.Pi/2)))
	must(s.AddRule("T", 1, fixedRotation("RZ", math.Pi/4)))
	must(s.AddRule("TDG", 1, fixedRotation("RZ", -math.Pi/4)))
	must(s.AddRule("PHASE", 1, paramRotation("RZ")))
	must(s.AddRule("CX", 2, decomposeCX))
	must(s.AddRule("SWAP", 2, decomposeSWAP))
	must(s.AddRule("CCX", 3, decomposeCCX))
}

// fixedRotation lowers a parameterless gate to a single native rotation
// with a fixed angle.
func fixedRotation(name string, theta float64) Rule {
	return func(g circuit.Gate) ([]circuit.Gate, error) {
		q := g.Targets[0]
		return []circuit.Gate{circuit.NewGate(name, []int{q}, theta)}, nil
	}
}

// paramRotation lowers a one-parameter gate to the named rotation with the
// same angle.
func paramRotation(name string) Rule {
	return func(g circuit.Gate) ([]circuit.Gate, error) {
		if len(g.Params) != 1 {
			return nil, fmt.Errorf("gate %q wants exactly one angle, got %d", g.Name, len(g.Params))
		}
		q := g.Targets[0]
		return []circuit.Gate{circuit.NewGate(name, []int{q}, g.Params[0])}, nil
	}
}

// singleRotations emits two fixed rotations on the gate's target, first
// then second in program order.
func singleRotations(first string, theta1 float64, second string, theta2 float64) Rule {
	return func(g circuit.Gate) ([]circuit.Gate, error) {
		q := g.Targets[0]
		return []circuit.Gate{
			circuit.NewGate(first, []int{q}, theta1),
			circuit.NewGate(second, []int{q}, theta2),
		}, nil
	}
}

// decomposeCX rewrites a controlled-X as a CZ conjugated by RY(±π/2) on
// the target; exact, no phase correction needed.
func decomposeCX(g circuit.Gate) ([]circuit.Gate, error) {
	c, t, err := controlTarget(g)
	if err != nil {
		return nil, err
	}
	return []circuit.Gate{
		circuit.NewGate("RY", []int{t}, -math.Pi/2),
		circuit.NewGate("CZ", []int{c, t}),
		circuit.NewGate("RY", []int{t}, math.Pi/2),
	}, nil
}

// decomposeSWAP uses the textbook three-CX identity; the CXs lower further
// on the next round of expansion.
func decomposeSWAP(g circuit.Gate) ([]circuit.Gate, error) {
	if len(g.Targets) != 2 || len(g.Controls) != 0 {
		return nil, fmt.Errorf("SWAP wants two targets, got %d targets %d controls", len(g.Targets), len(g.Controls))
	}
	a, b := g.Targets[0], g.Targets[1]
	return []circuit.Gate{
		cx(a, b),
		cx(b, a),
		cx(a, b),
	}, nil
}

// decomposeCCX is the standard 15-gate Toffoli over H, T, T† and CX.
func decomposeCCX(g circuit.Gate) ([]circuit.Gate, error) {
	if len(g.Controls) != 2 || len(g.Targets) != 1 {
		return nil, fmt.Errorf("CCX wants two controls and one target, got %d controls %d targets",
			len(g.Controls), len(g.Targets))
	}
	c1, c2, t := g.Controls[0], g.Controls[1], g.Targets[0]
	one := func(name string, q int) circuit.Gate { return circuit.NewGate(name, []int{q}) }
	return []circuit.Gate{
		one("H", t),
		cx(c2, t),
		one("TDG", t),
		cx(c1, t),
		one("T", t),
		cx(c2, t),
		one("TDG", t),
		cx(c1, t),
		one("T", c2),
		one("T", t),
		one("H", t),
		cx(c1, c2),
		one("TDG", c2),
		cx(c1, c2),
		one("T", c1),
	}, nil
}

func cx(control, target int) circuit.Gate {
	return circuit.Controlled("CX", []int{control}, []int{target})
}

func controlTarget(g circuit.Gate) (int, int, error) {
	if len(g.Controls) == 1 && len(g.Targets) == 1 {
		return g.Controls[0], g.Targets[0], nil
	}
	// Accept the two-target form some builders emit: first qubit controls.
	if len(g.Controls) == 0 && len(g.Targets) == 2 {
		return g.Targets[0], g.Targets[1], nil
	}
	return 0, 0, fmt.Errorf("gate %q wants one control and one target", g.Name)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
