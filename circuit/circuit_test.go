package circuit

import (
	"errors"
	"math"
	"testing"
)

func TestAppendValidatesBounds(t *testing.T) {
	c := New(2, 1)

	if err := c.AppendGate("H", []int{0}); err != nil {
		t.Fatalf("valid gate rejected: %v", err)
	}
	if err := c.AppendGate("H", []int{2}); err == nil {
		t.Error("out-of-range target accepted")
	}
	if err := c.AppendControlled("CX", []int{0}, []int{0}); err == nil {
		t.Error("duplicate qubit accepted")
	}
	if err := c.AppendGate("X", nil); err == nil {
		t.Error("gate without targets accepted")
	}
	if len(c.Gates) != 1 {
		t.Fatalf("rejected gates were appended: %d gates", len(c.Gates))
	}
}

func TestConditionOutOfRange(t *testing.T) {
	c := New(2, 1)
	err := c.AppendConditioned(NewGate("X", []int{0}), 3, 1)
	if err == nil {
		t.Fatal("condition on missing classical bit accepted")
	}
	var cce *ClassicalControlError
	if !errors.As(err, &cce) {
		t.Fatalf("want ClassicalControlError, got %T: %v", err, err)
	}
	if cce.Bit != 3 || cce.NumCbits != 1 {
		t.Errorf("error carries bit=%d cbits=%d", cce.Bit, cce.NumCbits)
	}
}

func TestMeasureValidation(t *testing.T) {
	c := New(2, 1)
	if err := c.Append(Measure(0, 0)); err != nil {
		t.Fatalf("valid measurement rejected: %v", err)
	}

	err := c.Append(Measure(1, 3))
	if err == nil {
		t.Fatal("measurement into a missing classical bit accepted")
	}
	var cce *ClassicalControlError
	if !errors.As(err, &cce) {
		t.Fatalf("want ClassicalControlError, got %T: %v", err, err)
	}
	if cce.Bit != 3 {
		t.Errorf("error carries bit=%d", cce.Bit)
	}

	// A bare MEASURE gate has no destination bit and must not validate.
	if err := c.Append(NewGate(MeasureGate, []int{0})); err == nil {
		t.Error("measurement without a destination bit accepted")
	}
	if err := c.Append(Controlled(MeasureGate, []int{0}, []int{1})); err == nil {
		t.Error("controlled measurement accepted")
	}

	if !Measure(0, 0).Equal(Measure(0, 0)) {
		t.Error("identical measurements compare unequal")
	}
	if Measure(0, 0).Equal(Measure(0, 1)) {
		t.Error("different destination bits compare equal")
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := New(2, 1)
	if err := c.AppendConditioned(NewGate("RX", []int{0}, math.Pi), 0, 1); err != nil {
		t.Fatal(err)
	}
	cp := c.Clone()
	cp.Gates[0].Params[0] = 0
	cp.Gates[0].Condition.Value = 0
	cp.Gates[0].Targets[0] = 1

	g := c.Gates[0]
	if g.Params[0] != math.Pi || g.Condition.Value != 1 || g.Targets[0] != 0 {
		t.Error("mutating the clone leaked into the original")
	}
}

func TestQubitsOrder(t *testing.T) {
	g := Controlled("CCX", []int{2, 0}, []int{1})
	want := []int{2, 0, 1}
	got := g.Qubits()
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("controls must precede targets in declaration order: got %v", got)
		}
	}
}

func TestDepthPacksDisjointGates(t *testing.T) {
	c := New(3, 0)
	_ = c.AppendGate("H", []int{0})
	_ = c.AppendGate("H", []int{1}) // parallel with the first
	_ = c.AppendControlled("CX", []int{0}, []int{1})
	_ = c.AppendGate("X", []int{2}) // parallel with everything so far

	if d := c.Depth(); d != 2 {
		t.Errorf("depth = %d, want 2", d)
	}
}

// TestPhaseEstimationShape builds a small phase-estimation circuit with
// the controlled-unitary helper and checks the structural accessors.
func TestPhaseEstimationShape(t *testing.T) {
	// 2 counting qubits, 1 system qubit, controlled-Z powers, then the
	// (trivial 2-qubit) inverse transform sketched with H and CZ.
	c := New(3, 2)
	_ = c.AppendGate("H", []int{0})
	_ = c.AppendGate("H", []int{1})
	_ = c.AppendGate("X", []int{2})
	if err := c.Append(Controlled("CZ", []int{0}, []int{2})); err != nil {
		t.Fatal(err)
	}
	if err := c.Append(Controlled("CZ", []int{1}, []int{2})); err != nil {
		t.Fatal(err)
	}
	_ = c.Append(Controlled("CZ", []int{1}, []int{2}))
	_ = c.AppendGate("H", []int{1})
	_ = c.Append(Controlled("CZ", []int{0}, []int{1}))
	_ = c.AppendGate("H", []int{0})

	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := c.Gates[3].Qubits(); got[0] != 0 || got[1] != 2 {
		t.Errorf("controlled gate occupancy %v", got)
	}
	if d := c.Depth(); d < 4 {
		t.Errorf("depth %d is too shallow for a serialized controlled chain", d)
	}
}

func TestEqualTolerance(t *testing.T) {
	a := NewGate("RZ", []int{0}, math.Pi)
	b := NewGate("RZ", []int{0}, math.Pi+1e-15)
	if !a.Equal(b) {
		t.Error("angles within tolerance compare unequal")
	}
	b.Params[0] = math.Pi + 1e-6
	if a.Equal(b) {
		t.Error("clearly different angles compare equal")
	}
}
