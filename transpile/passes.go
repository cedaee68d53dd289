package transpile

import (
	"math"

	"qpulsec/circuit"
)

// Pass is a local rewrite over a fully expanded native circuit. Passes
// must be sound (preserve the circuit's unitary action up to global phase)
// but are free to miss optimization opportunities.
type Pass interface {
	Name() string
	Apply(c circuit.Circuit, set *NativeGateSet) (circuit.Circuit, error)
}

// fusableAxes are the single-qubit rotations whose adjacent applications
// on the same qubit compose by angle addition.
var fusableAxes = map[string]bool{"RX": true, "RY": true, "RZ": true}

// FuseSingleQubitRotations merges adjacent same-axis rotations on the same
// qubit into one gate and drops rotations whose merged angle is a multiple
// of 2π (identity up to global phase). Gates on disjoint qubits in between
// do not block fusion since they commute with the rotation.
type FuseSingleQubitRotations struct{}

// Name implements Pass.
func (FuseSingleQubitRotations) Name() string { return "fuse-1q-rotations" }

// Apply implements Pass.
func (FuseSingleQubitRotations) Apply(c circuit.Circuit, set *NativeGateSet) (circuit.Circuit, error) {
	out := circuit.Circuit{NumQubits: c.NumQubits, NumCbits: c.NumCbits}
	// lastOnQubit[q] indexes the most recent emitted gate touching q, or -1.
	lastOnQubit := make([]int, c.NumQubits)
	for i := range lastOnQubit {
		lastOnQubit[i] = -1
	}

	for _, g := range c.Gates {
		if fusable(g) {
			q := g.Targets[0]
			if j := lastOnQubit[q]; j >= 0 {
				prev := &out.Gates[j]
				if fusable(*prev) && prev.Name == g.Name && prev.Targets[0] == q {
					sum := prev.Params[0] + g.Params[0]
					if isFullTurn(sum) {
						// The pair cancels; forget the slot so later
						// rotations do not fuse across the removal.
						out.Gates = append(out.Gates[:j], out.Gates[j+1:]...)
						reindex(lastOnQubit, j)
						lastOnQubit[q] = -1
					} else {
						prev.Params[0] = sum
					}
					continue
				}
			}
		}
		out.Gates = append(out.Gates, g.Clone())
		for _, q := range g.Qubits() {
			lastOnQubit[q] = len(out.Gates) - 1
		}
	}
	return out, nil
}

// fusable reports whether the gate is an unconditioned single-qubit axis
// rotation.
func fusable(g circuit.Gate) bool {
	return fusableAxes[g.Name] &&
		len(g.Targets) == 1 && len(g.Controls) == 0 &&
		len(g.Params) == 1 && g.Condition == nil
}

// isFullTurn reports whether theta is a multiple of 2π within tolerance.
func isFullTurn(theta float64) bool {
	_, frac := math.Modf(theta / (2 * math.Pi))
	return math.Abs(frac) < 1e-12 || math.Abs(math.Abs(frac)-1) < 1e-12
}

// reindex fixes lastOnQubit entries after removing the gate at index j.
func reindex(lastOnQubit []int, j int) {
	for q, idx := range lastOnQubit {
		switch {
		case idx == j:
			lastOnQubit[q] = -1
		case idx > j:
			lastOnQubit[q] = idx - 1
		}
	}
}
