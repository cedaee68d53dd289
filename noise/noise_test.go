package noise

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"qpulsec/pulse"
)

func device(numQubits int) Device {
	return Device{
		NumQubits:   numQubits,
		Calibration: pulse.DefaultCalibration(),
		Channels:    pulse.DefaultChannels(numQubits, 1.0),
	}
}

func driveSchedule(amp float64) pulse.PulseSchedule {
	return pulse.PulseSchedule{
		Channels: map[string][]pulse.Segment{
			pulse.DriveChannel(0): {{
				Channel:   pulse.DriveChannel(0),
				Duration:  0.02,
				Amplitude: amp,
				Envelope:  pulse.Cosine,
				Operator:  "sx",
				Qubits:    []int{0},
			}},
		},
		Duration: 0.02,
	}
}

func TestRelaxationRates(t *testing.T) {
	ps := driveSchedule(0.1)
	src := Relaxation{T1: []float64{50, 0}, T2: []float64{40, 30}}
	_, ops, err := src.Apply(&ps, device(2))
	if err != nil {
		t.Fatal(err)
	}

	// Qubit 0: sm at 1/T1, sz at 1/T2 - 1/(2*T1). Qubit 1: T1 disabled,
	// pure 1/T2 dephasing.
	want := map[[2]interface{}]float64{
		{0, "sm"}: 1.0 / 50,
		{0, "sz"}: 1.0/40 - 1.0/100,
		{1, "sz"}: 1.0 / 30,
	}
	if len(ops) != len(want) {
		t.Fatalf("got %d collapse ops, want %d: %+v", len(ops), len(want), ops)
	}
	for _, op := range ops {
		w, ok := want[[2]interface{}{op.Qubit, op.Operator}]
		if !ok {
			t.Errorf("unexpected collapse op %+v", op)
			continue
		}
		if math.Abs(op.Rate-w) > 1e-12 {
			t.Errorf("qubit %d %s rate %g, want %g", op.Qubit, op.Operator, op.Rate, w)
		}
	}
}

func TestRelaxationRejectsT2Above2T1(t *testing.T) {
	ps := driveSchedule(0.1)
	src := Relaxation{T1: []float64{10}, T2: []float64{25}}
	if _, _, err := src.Apply(&ps, device(1)); err == nil {
		t.Fatal("T2 > 2*T1 accepted")
	}
}

func TestRelaxationBroadcastsSingleValue(t *testing.T) {
	ps := driveSchedule(0.1)
	src := Relaxation{T1: []float64{50}}
	_, ops, err := src.Apply(&ps, device(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("got %d ops, want one per qubit", len(ops))
	}
	for _, op := range ops {
		if op.Operator != "sm" || math.Abs(op.Rate-0.02) > 1e-12 {
			t.Errorf("op %+v", op)
		}
	}
}

func TestZZCrossTalkSegments(t *testing.T) {
	ps := driveSchedule(0.1)
	src := ZZCrossTalk{Strength: 0.5}
	extra, ops, err := src.Apply(&ps, device(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Errorf("always-on coupling is coherent, got collapse ops %+v", ops)
	}
	// One full-length coupler segment per adjacent pair.
	if len(extra) != 2 {
		t.Fatalf("got %d segments, want one per adjacent pair", len(extra))
	}
	cal := pulse.DefaultCalibration()
	for i, seg := range extra {
		if seg.Channel != pulse.CouplingChannel(i, i+1) {
			t.Errorf("segment %d on channel %q", i, seg.Channel)
		}
		if seg.Start != 0 || seg.Duration != ps.Duration {
			t.Errorf("segment %d spans [%g, %g), want the whole schedule", i, seg.Start, seg.End())
		}
		if seg.Operator != "zzphase" {
			t.Errorf("segment %d operator %q", i, seg.Operator)
		}
		if math.Abs(seg.Amplitude*cal.CouplingStrength-0.5) > 1e-12 {
			t.Errorf("segment %d amplitude %g does not encode the strength", i, seg.Amplitude)
		}
	}
}

func TestZZCrossTalkNeedsTwoQubits(t *testing.T) {
	ps := driveSchedule(0.1)
	extra, _, err := ZZCrossTalk{Strength: 0.5}.Apply(&ps, device(1))
	if err != nil || len(extra) != 0 {
		t.Errorf("single-qubit device: extra=%v err=%v", extra, err)
	}
}

func TestZZCrossTalkExtendsThroughModel(t *testing.T) {
	ps := driveSchedule(0.1)
	m := NewModel(ZZCrossTalk{Strength: 0.5})
	if _, err := m.Apply(&ps, device(2)); err != nil {
		t.Fatal(err)
	}
	segs := ps.Channels[pulse.CouplingChannel(0, 1)]
	if len(segs) != 1 {
		t.Fatalf("coupler channel has %d segments", len(segs))
	}
	if segs[0].Duration != ps.Duration {
		t.Errorf("coupling segment duration %g, schedule duration %g", segs[0].Duration, ps.Duration)
	}
}

func TestControlAmpScalesInPlace(t *testing.T) {
	ps := driveSchedule(0.2)
	src := ControlAmp{Scale: map[string]float64{pulse.DriveChannel(0): 1.5}}
	extra, ops, err := src.Apply(&ps, device(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(extra) != 0 || len(ops) != 0 {
		t.Error("systematic miscalibration should not add segments or collapse ops")
	}
	got := ps.Channels[pulse.DriveChannel(0)][0].Amplitude
	if math.Abs(got-0.3) > 1e-12 {
		t.Errorf("amplitude %g, want 0.3", got)
	}
}

func TestControlAmpReportsOverflow(t *testing.T) {
	ps := driveSchedule(0.8)
	src := ControlAmp{Scale: map[string]float64{pulse.DriveChannel(0): 2.0}}
	_, _, err := src.Apply(&ps, device(1))
	var overflow *pulse.ChannelOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("want ChannelOverflowError, got %v", err)
	}
	if overflow.Channel != pulse.DriveChannel(0) {
		t.Errorf("error names channel %q", overflow.Channel)
	}
}

func TestRandomAmpNeedsRand(t *testing.T) {
	ps := driveSchedule(0.1)
	src := RandomAmp{Std: 0.01}
	if _, _, err := src.Apply(&ps, device(1)); err == nil {
		t.Fatal("nil rand source accepted")
	}
}

func TestRandomAmpDeterministicUnderSeed(t *testing.T) {
	jitter := func() float64 {
		ps := driveSchedule(0.1)
		src := RandomAmp{Std: 0.01, Rand: rand.New(rand.NewSource(7))}
		if _, _, err := src.Apply(&ps, device(1)); err != nil {
			t.Fatal(err)
		}
		return ps.Channels[pulse.DriveChannel(0)][0].Amplitude
	}
	a, b := jitter(), jitter()
	if a == 0.1 {
		t.Error("jitter left the amplitude untouched")
	}
	if a != b {
		t.Errorf("identical seeds produced %g and %g", a, b)
	}
}

func TestModelAppliesSourcesInOrder(t *testing.T) {
	ps := driveSchedule(0.1)
	m := NewModel(
		ControlAmp{Scale: map[string]float64{pulse.DriveChannel(0): 2.0}},
		Dephasing{Rate: 0.01},
	)
	ops, err := m.Apply(&ps, device(1))
	if err != nil {
		t.Fatal(err)
	}
	if got := ps.Channels[pulse.DriveChannel(0)][0].Amplitude; math.Abs(got-0.2) > 1e-12 {
		t.Errorf("amplitude %g after scaling", got)
	}
	if len(ops) != 1 || ops[0].Operator != "sz" {
		t.Errorf("collapse ops %+v", ops)
	}
}

func TestNilModelIsNoop(t *testing.T) {
	ps := driveSchedule(0.1)
	var m *Model
	ops, err := m.Apply(&ps, device(1))
	if err != nil || ops != nil {
		t.Errorf("nil model: ops=%v err=%v", ops, err)
	}
}
