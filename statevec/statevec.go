// Package statevec is a reference evolution engine: a dense statevector
// driven directly by pulse segments, with a simple single-trajectory
// treatment of collapse operators. The processor only depends on the
// Evolver interface, so a heavier external solver can replace this
// package without touching the pipeline.
package statevec

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"qpulsec/circuit"
)

// State is a pure quantum state over NumQubits qubits plus the classical
// register consulted by conditional pulse segments.
type State struct {
	Amps      []complex128
	NumQubits int
	Cbits     []int
}

// NewState returns |0...0> with an all-zero classical register.
func NewState(numQubits, numCbits int) State {
	amps := make([]complex128, 1<<numQubits)
	amps[0] = 1
	return State{Amps: amps, NumQubits: numQubits, Cbits: make([]int, numCbits)}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	amps := make([]complex128, len(s.Amps))
	copy(amps, s.Amps)
	cbits := make([]int, len(s.Cbits))
	copy(cbits, s.Cbits)
	return State{Amps: amps, NumQubits: s.NumQubits, Cbits: cbits}
}

// Norm returns the L2 norm of the amplitudes.
func (s State) Norm() float64 {
	sum := 0.0
	for _, a := range s.Amps {
		sum += real(a)*real(a) + imag(a)*imag(a)
	}
	return math.Sqrt(sum)
}

// Prob1 returns the probability of measuring qubit q as 1.
func (s State) Prob1(q int) float64 {
	bit := 1 << q
	p := 0.0
	for i, a := range s.Amps {
		if i&bit != 0 {
			p += real(a)*real(a) + imag(a)*imag(a)
		}
	}
	return p
}

// Measure samples an outcome for qubit q from r, projects the state onto
// it, writes it into classical bit cbit, and returns it.
func (s *State) Measure(q, cbit int, r *rand.Rand) (int, error) {
	if q < 0 || q >= s.NumQubits {
		return 0, fmt.Errorf("statevec: measurement of qubit %d of %d", q, s.NumQubits)
	}
	if cbit < 0 || cbit >= len(s.Cbits) {
		return 0, &circuit.ClassicalControlError{Gate: circuit.MeasureGate, Bit: cbit, NumCbits: len(s.Cbits)}
	}
	if r == nil {
		return 0, fmt.Errorf("statevec: measurement needs a random source")
	}
	outcome := 0
	if r.Float64() < s.Prob1(q) {
		outcome = 1
	}
	s.project(q, outcome)
	s.Cbits[cbit] = outcome
	return outcome, nil
}

// project zeroes the branch inconsistent with the outcome and renormalizes.
func (s *State) project(q, outcome int) {
	bit := 1 << q
	for i := range s.Amps {
		if (i&bit != 0) != (outcome == 1) {
			s.Amps[i] = 0
		}
	}
	renormalize(s)
}

// OverlapMagnitude returns |<a|b>|, which ignores global phase; two states
// are equivalent up to global phase iff this is 1 for normalized states.
func OverlapMagnitude(a, b State) float64 {
	if len(a.Amps) != len(b.Amps) {
		return 0
	}
	var dot complex128
	for i := range a.Amps {
		dot += cmplx.Conj(a.Amps[i]) * b.Amps[i]
	}
	return cmplx.Abs(dot)
}

// applySingle applies the 2x2 matrix m to qubit q on every basis pair
// whose control bits (ctrlMask) are all set.
func (s *State) applySingle(q int, m [2][2]complex128, ctrlMask int) {
	bit := 1 << q
	for i := range s.Amps {
		if i&bit != 0 || i&ctrlMask != ctrlMask {
			continue
		}
		j := i | bit
		a0, a1 := s.Amps[i], s.Amps[j]
		s.Amps[i] = m[0][0]*a0 + m[0][1]*a1
		s.Amps[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

// applyPhase multiplies amplitudes whose mask bits are all set by the
// given phase factor.
func (s *State) applyPhase(mask int, factor complex128) {
	for i := range s.Amps {
		if i&mask == mask {
			s.Amps[i] *= factor
		}
	}
}

// applySwap exchanges the two qubits' amplitudes where control bits are set.
func (s *State) applySwap(q1, q2, ctrlMask int) {
	b1, b2 := 1<<q1, 1<<q2
	for i := range s.Amps {
		if i&b1 != 0 || i&b2 == 0 || i&ctrlMask != ctrlMask {
			continue
		}
		j := (i &^ b2) | b1
		s.Amps[i], s.Amps[j] = s.Amps[j], s.Amps[i]
	}
}

func rxMatrix(theta float64) [2][2]complex128 {
	c := complex(math.Cos(theta/2), 0)
	js := complex(0, -math.Sin(theta/2))
	return [2][2]complex128{{c, js}, {js, c}}
}

func ryMatrix(theta float64) [2][2]complex128 {
	c := complex(math.Cos(theta/2), 0)
	sn := complex(math.Sin(theta/2), 0)
	return [2][2]complex128{{c, -sn}, {sn, c}}
}

func rzMatrix(theta float64) [2][2]complex128 {
	return [2][2]complex128{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	}
}

var hMatrix = [2][2]complex128{
	{complex(1/math.Sqrt2, 0), complex(1/math.Sqrt2, 0)},
	{complex(1/math.Sqrt2, 0), complex(-1/math.Sqrt2, 0)},
}

// ApplyGate applies a gate directly by name, honoring control qubits and
// the classical condition. Used by the circuit-level simulator and by
// decomposition soundness tests; pulse-driven evolution goes through
// Engine instead.
func (s *State) ApplyGate(g circuit.Gate) error {
	if g.Condition != nil {
		if g.Condition.Bit < 0 || g.Condition.Bit >= len(s.Cbits) {
			return &circuit.ClassicalControlError{Gate: g.Name, Bit: g.Condition.Bit, NumCbits: len(s.Cbits)}
		}
		if s.Cbits[g.Condition.Bit] != g.Condition.Value {
			return nil
		}
	}

	ctrlMask := 0
	for _, c := range g.Controls {
		ctrlMask |= 1 << c
	}
	theta := 0.0
	if len(g.Params) > 0 {
		theta = g.Params[0]
	}
	t := g.Targets[0]

	switch g.Name {
	case "I":
	case "H":
		s.applySingle(t, hMatrix, ctrlMask)
	case "X":
		s.applySingle(t, [2][2]complex128{{0, 1}, {1, 0}}, ctrlMask)
	case "Y":
		s.applySingle(t, [2][2]complex128{{0, -1i}, {1i, 0}}, ctrlMask)
	case "Z":
		s.applyPhase(ctrlMask|1<<t, -1)
	case "S":
		s.applyPhase(ctrlMask|1<<t, 1i)
	case "SDG":
		s.applyPhase(ctrlMask|1<<t, -1i)
	case "T":
		s.applyPhase(ctrlMask|1<<t, cmplx.Exp(complex(0, math.Pi/4)))
	case "TDG":
		s.applyPhase(ctrlMask|1<<t, cmplx.Exp(complex(0, -math.Pi/4)))
	case "PHASE":
		s.applyPhase(ctrlMask|1<<t, cmplx.Exp(complex(0, theta)))
	case "RX":
		s.applySingle(t, rxMatrix(theta), ctrlMask)
	case "RY":
		s.applySingle(t, ryMatrix(theta), ctrlMask)
	case "RZ":
		s.applySingle(t, rzMatrix(theta), ctrlMask)
	case "CX", "CCX":
		// CX also comes in the two-target spelling, first target acting as
		// the control, matching what the decomposition rules accept.
		if g.Name == "CX" && len(g.Controls) == 0 && len(g.Targets) == 2 {
			ctrlMask = 1 << g.Targets[0]
			t = g.Targets[1]
		}
		s.applySingle(t, [2][2]complex128{{0, 1}, {1, 0}}, ctrlMask)
	case "CZ":
		mask := ctrlMask
		for _, q := range g.Qubits() {
			mask |= 1 << q
		}
		s.applyPhase(mask, -1)
	case "SWAP":
		if len(g.Targets) != 2 {
			return fmt.Errorf("statevec: SWAP wants two targets")
		}
		s.applySwap(g.Targets[0], g.Targets[1], ctrlMask)
	case circuit.MeasureGate:
		return fmt.Errorf("statevec: measurement needs a random source; use State.Measure or evolve through Engine")
	default:
		return fmt.Errorf("statevec: no kernel for gate %q", g.Name)
	}
	return nil
}

// SimulateCircuit applies the circuit gate by gate to a fresh |0...0>
// state. Independent of the pulse pipeline; soundness tests use it to
// compare an original circuit against its decomposition.
func SimulateCircuit(circ circuit.Circuit) (State, error) {
	s := NewState(circ.NumQubits, circ.NumCbits)
	for i, g := range circ.Gates {
		if err := s.ApplyGate(g); err != nil {
			return State{}, fmt.Errorf("gate %d: %w", i, err)
		}
	}
	return s, nil
}
