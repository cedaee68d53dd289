package statevec

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"

	"qpulsec/noise"
	"qpulsec/pulse"
)

// Engine evolves a statevector under a compiled pulse schedule. Each
// segment is treated as one completed rotation: the angle is recovered
// from peak amplitude, duration, envelope area and the calibration the
// pulses were compiled against. Collapse operators are approximated on
// the single trajectory: "sm" as amplitude damping over the schedule
// duration with the lost population transferred to the ground branch,
// "sz" as a random phase kick.
//
// Safe for concurrent Evolve calls: each call draws an independent
// random stream from the engine's seeded source under a lock.
type Engine struct {
	cal pulse.Calibration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine builds an engine for pulses compiled against cal, with a
// fixed default seed so repeated runs agree.
func NewEngine(cal pulse.Calibration) *Engine {
	return &Engine{cal: cal, rng: rand.New(rand.NewSource(1))}
}

// Seed replaces the engine's random source.
func (e *Engine) Seed(seed int64) {
	e.mu.Lock()
	e.rng = rand.New(rand.NewSource(seed))
	e.mu.Unlock()
}

// Evolve implements the processor's evolution contract. The initial state
// is not mutated.
func (e *Engine) Evolve(ps pulse.PulseSchedule, collapse []noise.CollapseOp, initial State) (State, error) {
	e.mu.Lock()
	r := rand.New(rand.NewSource(e.rng.Int63()))
	e.mu.Unlock()

	s := initial.Clone()
	for _, seg := range ps.Segments() {
		if seg.Conditional != nil {
			c := seg.Conditional
			if c.Bit < 0 || c.Bit >= len(s.Cbits) {
				return State{}, fmt.Errorf("statevec: conditional segment reads bit %d of %d", c.Bit, len(s.Cbits))
			}
			if s.Cbits[c.Bit] != c.Value {
				continue
			}
		}
		if err := e.applySegment(&s, seg, r); err != nil {
			return State{}, err
		}
	}
	for _, op := range collapse {
		if err := applyCollapse(&s, op, ps.Duration, r); err != nil {
			return State{}, err
		}
	}
	renormalize(&s)
	return s, nil
}

func (e *Engine) applySegment(s *State, seg pulse.Segment, r *rand.Rand) error {
	area := seg.Envelope.Area()
	switch seg.Operator {
	case "sx", "sy", "sz":
		if len(seg.Qubits) != 1 {
			return fmt.Errorf("statevec: operator %q wants one qubit, segment has %d", seg.Operator, len(seg.Qubits))
		}
		theta := seg.Amplitude * seg.Duration * area * e.cal.RabiFreq
		var m [2][2]complex128
		switch seg.Operator {
		case "sx":
			m = rxMatrix(theta)
		case "sy":
			m = ryMatrix(theta)
		case "sz":
			m = rzMatrix(theta)
		}
		s.applySingle(seg.Qubits[0], m, 0)
	case "czphase":
		if len(seg.Qubits) != 2 {
			return fmt.Errorf("statevec: operator czphase wants two qubits, segment has %d", len(seg.Qubits))
		}
		theta := seg.Amplitude * seg.Duration * area * e.cal.CouplingStrength
		mask := 1<<seg.Qubits[0] | 1<<seg.Qubits[1]
		s.applyPhase(mask, cmplx.Exp(complex(0, theta)))
	case "zzphase":
		// Always-on ZZ coupling: same-parity basis states pick up the
		// conjugate phase of opposite-parity ones.
		if len(seg.Qubits) != 2 {
			return fmt.Errorf("statevec: operator zzphase wants two qubits, segment has %d", len(seg.Qubits))
		}
		theta := seg.Amplitude * seg.Duration * area * e.cal.CouplingStrength
		same := cmplx.Exp(complex(0, -theta))
		diff := cmplx.Exp(complex(0, theta))
		b0, b1 := 1<<seg.Qubits[0], 1<<seg.Qubits[1]
		for i := range s.Amps {
			if (i&b0 != 0) == (i&b1 != 0) {
				s.Amps[i] *= same
			} else {
				s.Amps[i] *= diff
			}
		}
	case "measure":
		if len(seg.Qubits) != 1 {
			return fmt.Errorf("statevec: operator measure wants one qubit, segment has %d", len(seg.Qubits))
		}
		if _, err := s.Measure(seg.Qubits[0], seg.Cbit, r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("statevec: no kernel for operator %q", seg.Operator)
	}
	return nil
}

// applyCollapse approximates a dissipative channel on the trajectory.
// Relaxation shrinks each |1> amplitude of the qubit by exp(-rate*T/2)
// and moves the lost population onto the paired |0> amplitude, keeping
// that amplitude's phase; dephasing kicks the |1> branch by a gaussian
// random phase of variance 2*rate*T.
func applyCollapse(s *State, op noise.CollapseOp, duration float64, r *rand.Rand) error {
	if op.Qubit < 0 || op.Qubit >= s.NumQubits {
		return fmt.Errorf("statevec: collapse operator on qubit %d of %d", op.Qubit, s.NumQubits)
	}
	if op.Rate <= 0 || duration <= 0 {
		return nil
	}
	bit := 1 << op.Qubit
	switch op.Operator {
	case "sm":
		survive := math.Exp(-op.Rate * duration)
		damp := complex(math.Sqrt(survive), 0)
		for i := range s.Amps {
			if i&bit != 0 {
				continue
			}
			j := i | bit
			a0, a1 := s.Amps[i], s.Amps[j]
			p1 := real(a1)*real(a1) + imag(a1)*imag(a1)
			if p1 == 0 {
				continue
			}
			s.Amps[j] = a1 * damp
			gained := (1 - survive) * p1
			if abs0 := cmplx.Abs(a0); abs0 > 0 {
				s.Amps[i] = a0 * complex(math.Sqrt(abs0*abs0+gained)/abs0, 0)
			} else {
				s.Amps[i] = complex(math.Sqrt(gained), 0)
			}
		}
	case "sz":
		phi := math.Sqrt(2*op.Rate*duration) * r.NormFloat64()
		kick := cmplx.Exp(complex(0, phi))
		for i := range s.Amps {
			if i&bit != 0 {
				s.Amps[i] *= kick
			}
		}
	default:
		return fmt.Errorf("statevec: unknown collapse operator %q", op.Operator)
	}
	return nil
}

func renormalize(s *State) {
	n := s.Norm()
	if n == 0 || n == 1 {
		return
	}
	inv := complex(1/n, 0)
	for i := range s.Amps {
		s.Amps[i] *= inv
	}
}
