// Package circuit defines the gate-level description of a quantum program.
//
// A Circuit is an ordered sequence of named, parameterized gates applied to
// qubit indices, with optional classical-control conditions. Gate names form
// an open vocabulary: the circuit model carries no knowledge of what a gate
// does, only which resources it touches. Downstream stages (transpiler,
// scheduler, pulse compiler) consume circuits as values and never mutate
// their input.
package circuit

import (
	"fmt"
	"math"
	"slices"
)

// ClassicalCondition gates the execution of a gate on a classical bit
// holding a required value.
type ClassicalCondition struct {
	Bit   int
	Value int
}

// Gate is a single quantum operation. Targets and Controls are qubit
// indices; Params are real-valued gate parameters such as rotation angles.
// A Gate is a value: copying it with Clone yields an independent gate.
type Gate struct {
	Name      string
	Targets   []int
	Controls  []int
	Params    []float64
	Condition *ClassicalCondition
	// Cbit is the classical destination bit of a measurement gate, -1 for
	// every other gate.
	Cbit int
}

// NewGate builds an unconditioned gate on the given target qubits.
func NewGate(name string, targets []int, params ...float64) Gate {
	return Gate{Name: name, Targets: slices.Clone(targets), Params: slices.Clone(params), Cbit: -1}
}

// MeasureGate is the reserved name of the measurement operation.
const MeasureGate = "MEASURE"

// Measure builds a measurement of one qubit into one classical bit.
func Measure(qubit, cbit int) Gate {
	g := NewGate(MeasureGate, []int{qubit})
	g.Cbit = cbit
	return g
}

// Controlled builds a gate with explicit control qubits, mirroring the
// controlled-unitary construction used by phase-estimation style circuits.
func Controlled(name string, controls, targets []int, params ...float64) Gate {
	g := NewGate(name, targets, params...)
	g.Controls = slices.Clone(controls)
	return g
}

// Qubits returns the occupancy set of the gate: controls first, then
// targets, in declaration order.
func (g Gate) Qubits() []int {
	out := make([]int, 0, len(g.Controls)+len(g.Targets))
	out = append(out, g.Controls...)
	out = append(out, g.Targets...)
	return out
}

// Arity returns the total number of qubits the gate occupies.
func (g Gate) Arity() int {
	return len(g.Controls) + len(g.Targets)
}

// Clone returns a deep copy of the gate.
func (g Gate) Clone() Gate {
	c := Gate{
		Name:     g.Name,
		Targets:  slices.Clone(g.Targets),
		Controls: slices.Clone(g.Controls),
		Params:   slices.Clone(g.Params),
		Cbit:     g.Cbit,
	}
	if g.Condition != nil {
		cond := *g.Condition
		c.Condition = &cond
	}
	return c
}

// Equal reports configuration equality: same name, qubits, parameters
// (within a small tolerance) and condition.
func (g Gate) Equal(other Gate) bool {
	if g.Name != other.Name {
		return false
	}
	if !slices.Equal(g.Targets, other.Targets) || !slices.Equal(g.Controls, other.Controls) {
		return false
	}
	if len(g.Params) != len(other.Params) {
		return false
	}
	for i := range g.Params {
		if math.Abs(g.Params[i]-other.Params[i]) > 1e-12 {
			return false
		}
	}
	if (g.Condition == nil) != (other.Condition == nil) {
		return false
	}
	if g.Condition != nil && *g.Condition != *other.Condition {
		return false
	}
	return g.Cbit == other.Cbit
}

// validate checks the gate invariants against circuit bounds: indices in
// range, no qubit referenced twice.
func (g Gate) validate(numQubits, numCbits int) error {
	if g.Name == "" {
		return fmt.Errorf("circuit: gate with empty name")
	}
	if len(g.Targets) == 0 {
		return fmt.Errorf("circuit: gate %q has no target qubits", g.Name)
	}
	seen := make(map[int]bool, g.Arity())
	for _, q := range g.Qubits() {
		if q < 0 || q >= numQubits {
			return fmt.Errorf("circuit: gate %q qubit %d out of range [0,%d)", g.Name, q, numQubits)
		}
		if seen[q] {
			return fmt.Errorf("circuit: gate %q references qubit %d twice", g.Name, q)
		}
		seen[q] = true
	}
	if g.Condition != nil {
		if g.Condition.Bit < 0 || g.Condition.Bit >= numCbits {
			return &ClassicalControlError{Gate: g.Name, Bit: g.Condition.Bit, NumCbits: numCbits}
		}
	}
	if g.Name == MeasureGate {
		if g.Cbit < 0 || g.Cbit >= numCbits {
			return &ClassicalControlError{Gate: g.Name, Bit: g.Cbit, NumCbits: numCbits}
		}
		if len(g.Controls) > 0 || len(g.Targets) != 1 {
			return fmt.Errorf("circuit: measurement must act on exactly one qubit")
		}
	}
	return nil
}

// Circuit is an immutable-once-consumed description of a quantum program
// over NumQubits qubits and NumCbits classical bits.
type Circuit struct {
	NumQubits int
	NumCbits  int
	Gates     []Gate
}

// New returns an empty circuit with the given register sizes.
func New(numQubits, numCbits int) *Circuit {
	return &Circuit{NumQubits: numQubits, NumCbits: numCbits}
}

// Append validates the gate against the circuit bounds and appends it.
func (c *Circuit) Append(g Gate) error {
	if err := g.validate(c.NumQubits, c.NumCbits); err != nil {
		return err
	}
	c.Gates = append(c.Gates, g.Clone())
	return nil
}

// AppendGate appends an unconditioned gate built from its parts.
func (c *Circuit) AppendGate(name string, targets []int, params ...float64) error {
	return c.Append(NewGate(name, targets, params...))
}

// AppendControlled appends a gate with explicit control qubits.
func (c *Circuit) AppendControlled(name string, controls, targets []int, params ...float64) error {
	return c.Append(Controlled(name, controls, targets, params...))
}

// AppendConditioned appends a gate that executes only when the classical
// bit holds the required value.
func (c *Circuit) AppendConditioned(g Gate, bit, value int) error {
	g = g.Clone()
	g.Condition = &ClassicalCondition{Bit: bit, Value: value}
	return c.Append(g)
}

// Clone returns a deep copy. Pipeline stages clone their input before
// producing a transformed circuit so the caller's value is never touched.
func (c Circuit) Clone() Circuit {
	out := Circuit{NumQubits: c.NumQubits, NumCbits: c.NumCbits}
	out.Gates = make([]Gate, len(c.Gates))
	for i, g := range c.Gates {
		out.Gates[i] = g.Clone()
	}
	return out
}

// Validate re-checks every gate against the circuit bounds. Builders
// validate on append; Validate covers circuits assembled by hand.
func (c Circuit) Validate() error {
	if c.NumQubits <= 0 {
		return fmt.Errorf("circuit: NumQubits must be positive, got %d", c.NumQubits)
	}
	for i, g := range c.Gates {
		if err := g.validate(c.NumQubits, c.NumCbits); err != nil {
			return fmt.Errorf("gate %d: %w", i, err)
		}
	}
	return nil
}

// Depth returns the number of layers when gates are packed greedily by
// qubit disjointness, the same occupancy rule the scheduler uses.
func (c Circuit) Depth() int {
	level := make(map[int]int, c.NumQubits)
	depth := 0
	for _, g := range c.Gates {
		start := 0
		for _, q := range g.Qubits() {
			if level[q] > start {
				start = level[q]
			}
		}
		for _, q := range g.Qubits() {
			level[q] = start + 1
		}
		if start+1 > depth {
			depth = start + 1
		}
	}
	return depth
}

// ClassicalControlError reports a classical condition referencing a bit
// outside the circuit's classical register.
type ClassicalControlError struct {
	Gate     string
	Bit      int
	NumCbits int
}

func (e *ClassicalControlError) Error() string {
	return fmt.Sprintf("circuit: gate %q condition references classical bit %d outside register of size %d",
		e.Gate, e.Bit, e.NumCbits)
}
