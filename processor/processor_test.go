package processor

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"qpulsec/circuit"
	"qpulsec/noise"
	"qpulsec/pulse"
	"qpulsec/statevec"
	"qpulsec/transpile"
)

func bell() circuit.Circuit {
	c := circuit.New(2, 0)
	_ = c.AppendGate("H", []int{0})
	_ = c.AppendControlled("CX", []int{0}, []int{1})
	return *c
}

func TestRunBellEndToEnd(t *testing.T) {
	p, err := Default(2, 0)
	require.NoError(t, err)

	res, err := p.Run(bell(), nil)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	require.NotEmpty(t, res.Native.Gates)
	require.NotEmpty(t, res.Schedule.Gates)
	require.NotEmpty(t, res.Pulses.Channels)
	require.Contains(t, res.Timings, "decompose")
	require.Contains(t, res.Timings, "evolve")

	// The pulse-level evolution must agree with direct gate simulation up
	// to global phase.
	want, err := statevec.SimulateCircuit(bell())
	require.NoError(t, err)
	overlap := statevec.OverlapMagnitude(want, res.Final)
	require.InDelta(t, 1.0, overlap, 1e-9)
}

func TestRunToffoliEndToEnd(t *testing.T) {
	c := circuit.New(3, 0)
	_ = c.AppendGate("X", []int{0})
	_ = c.AppendGate("X", []int{1})
	_ = c.AppendControlled("CCX", []int{0, 1}, []int{2})

	p, err := Default(3, 0)
	require.NoError(t, err)
	res, err := p.Run(*c, nil)
	require.NoError(t, err)

	// Both controls set: target flips, so the population sits in |111>.
	require.InDelta(t, 1.0, res.Final.Prob1(2), 1e-9)
}

func TestRunMeasurementFeedsConditionedGate(t *testing.T) {
	// Excite, measure into c0, then a classically controlled reset on the
	// same qubit: the register reads 1 and the qubit returns to ground.
	c := circuit.New(1, 1)
	_ = c.AppendGate("X", []int{0})
	require.NoError(t, c.Append(circuit.Measure(0, 0)))
	require.NoError(t, c.AppendConditioned(circuit.NewGate("X", []int{0}), 0, 1))

	p, err := Default(1, 1)
	require.NoError(t, err)
	res, err := p.Run(*c, nil)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)

	require.Equal(t, []int{1}, res.Final.Cbits)
	require.InDelta(t, 0.0, res.Final.Prob1(0), 1e-9)
}

func TestRunMeasurementUnsetBitSkipsConditionedGate(t *testing.T) {
	c := circuit.New(1, 1)
	require.NoError(t, c.Append(circuit.Measure(0, 0)))
	require.NoError(t, c.AppendConditioned(circuit.NewGate("X", []int{0}), 0, 1))

	p, err := Default(1, 1)
	require.NoError(t, err)
	res, err := p.Run(*c, nil)
	require.NoError(t, err)

	require.Equal(t, []int{0}, res.Final.Cbits)
	require.InDelta(t, 0.0, res.Final.Prob1(0), 1e-9)
}

func TestConcurrentRunsIndependent(t *testing.T) {
	cfg := Config{
		NumQubits: 2,
		NativeSet: transpile.DefaultNativeSet(),
		Library:   pulse.StandardLibrary(pulse.DefaultCalibration()),
		Channels:  pulse.DefaultChannels(2, 1.0),
		Noise:     noise.NewModel(noise.Dephasing{Rate: 0.01}),
	}
	p, err := New(cfg)
	require.NoError(t, err)

	want, err := statevec.SimulateCircuit(bell())
	require.NoError(t, err)

	const workers = 8
	const runsPerWorker = 25
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < runsPerWorker; i++ {
				res, err := p.Run(bell(), nil)
				if err != nil {
					errs <- err
					return
				}
				// Dephasing only kicks phases, so every trajectory keeps the
				// Bell populations.
				if d := math.Abs(res.Final.Prob1(1) - want.Prob1(1)); d > 1e-9 {
					errs <- fmt.Errorf("population drifted by %g under concurrent runs", d)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestUnknownGateFailsDecomposeStage(t *testing.T) {
	c := circuit.New(1, 0)
	_ = c.AppendGate("H", []int{0})
	_ = c.AppendGate("FROBNICATE", []int{0})

	p, err := Default(1, 0)
	require.NoError(t, err)
	res, err := p.Run(*c, nil)
	require.Error(t, err)
	require.Equal(t, StateFailed, res.State)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "decompose", serr.Stage)
	require.Equal(t, 1, serr.GateIndex)

	var unknown *transpile.UnknownGateError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "FROBNICATE", unknown.Name)
}

func TestOversizedCircuitFailsValidation(t *testing.T) {
	p, err := Default(1, 0)
	require.NoError(t, err)
	res, err := p.Run(bell(), nil)
	require.Error(t, err)
	require.Equal(t, StateFailed, res.State)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "validate", serr.Stage)
}

func TestChannelOverflowFailsCompileStage(t *testing.T) {
	cal := pulse.DefaultCalibration()
	cfg := Config{
		NumQubits: 1,
		NativeSet: transpile.DefaultNativeSet(),
		Library:   pulse.StandardLibrary(cal),
		// Far too tight for any pulse.
		Channels: pulse.DefaultChannels(1, 1e-6),
	}
	p, err := New(cfg)
	require.NoError(t, err)

	c := circuit.New(1, 0)
	_ = c.AppendGate("X", []int{0})
	_, err = p.Run(*c, nil)
	require.Error(t, err)

	var serr *StageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "compile", serr.Stage)
	var overflow *pulse.ChannelOverflowError
	require.ErrorAs(t, err, &overflow)
}

// flakyEvolver fails a configured number of times before delegating to
// the real engine.
type flakyEvolver struct {
	inner     Evolver
	failures  int
	transient bool
	calls     int
}

type flakyError struct{ transient bool }

func (e *flakyError) Error() string   { return "evolver hiccup" }
func (e *flakyError) Transient() bool { return e.transient }

func (f *flakyEvolver) Evolve(ps pulse.PulseSchedule, collapse []noise.CollapseOp, initial statevec.State) (statevec.State, error) {
	f.calls++
	if f.calls <= f.failures {
		return statevec.State{}, &flakyError{transient: f.transient}
	}
	return f.inner.Evolve(ps, collapse, initial)
}

func testConfig(evolver Evolver) Config {
	cal := pulse.DefaultCalibration()
	return Config{
		NumQubits: 1,
		NativeSet: transpile.DefaultNativeSet(),
		Library:   pulse.StandardLibrary(cal),
		Channels:  pulse.DefaultChannels(1, 1.0),
		Evolver:   evolver,
	}
}

func TestTransientEvolutionErrorRetriedOnce(t *testing.T) {
	cal := pulse.DefaultCalibration()
	flaky := &flakyEvolver{inner: statevec.NewEngine(cal), failures: 1, transient: true}
	p, err := New(testConfig(flaky))
	require.NoError(t, err)

	c := circuit.New(1, 0)
	_ = c.AppendGate("X", []int{0})
	res, err := p.Run(*c, nil)
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	require.Equal(t, 2, flaky.calls)
}

func TestTransientErrorNotRetriedTwice(t *testing.T) {
	cal := pulse.DefaultCalibration()
	flaky := &flakyEvolver{inner: statevec.NewEngine(cal), failures: 2, transient: true}
	p, err := New(testConfig(flaky))
	require.NoError(t, err)

	c := circuit.New(1, 0)
	_ = c.AppendGate("X", []int{0})
	_, err = p.Run(*c, nil)
	require.Error(t, err)
	require.Equal(t, 2, flaky.calls)

	var efail *EvolutionFailure
	require.ErrorAs(t, err, &efail)
}

func TestPersistentEvolutionErrorNotRetried(t *testing.T) {
	cal := pulse.DefaultCalibration()
	flaky := &flakyEvolver{inner: statevec.NewEngine(cal), failures: 1, transient: false}
	p, err := New(testConfig(flaky))
	require.NoError(t, err)

	c := circuit.New(1, 0)
	_ = c.AppendGate("X", []int{0})
	_, err = p.Run(*c, nil)
	require.Error(t, err)
	require.Equal(t, 1, flaky.calls)
}

func TestConfigCopiedAtConstruction(t *testing.T) {
	set := transpile.DefaultNativeSet()
	cfg := testConfig(nil)
	cfg.NativeSet = set
	p, err := New(cfg)
	require.NoError(t, err)

	// Mutating the caller's set after New must not leak into the processor.
	require.NoError(t, set.AddNative("LATECOMER", 1, 0.02))

	c := circuit.New(1, 0)
	_ = c.AppendGate("LATECOMER", []int{0})
	_, err = p.Run(*c, nil)
	require.Error(t, err, "processor saw a native gate registered after construction")
}

func TestDeterministicAcrossEqualProcessors(t *testing.T) {
	run := func() statevec.State {
		cal := pulse.DefaultCalibration()
		eng := statevec.NewEngine(cal)
		eng.Seed(99)
		cfg := testConfig(eng)
		cfg.Noise = noise.NewModel(noise.Dephasing{Rate: 0.001})
		p, err := New(cfg)
		require.NoError(t, err)

		c := circuit.New(1, 0)
		_ = c.AppendGate("H", []int{0})
		res, err := p.Run(*c, nil)
		require.NoError(t, err)
		return res.Final
	}
	a, b := run(), run()
	require.Equal(t, a.Amps, b.Amps)
}

func TestInitialStateUsed(t *testing.T) {
	p, err := Default(1, 0)
	require.NoError(t, err)

	// Start in |1> and apply X: population returns to |0>.
	init := statevec.NewState(1, 0)
	init.Amps[0], init.Amps[1] = 0, 1
	c := circuit.New(1, 0)
	_ = c.AppendGate("X", []int{0})
	res, err := p.Run(*c, &init)
	require.NoError(t, err)
	require.InDelta(t, 0.0, res.Final.Prob1(0), 1e-9)

	// The caller's state is untouched.
	require.Equal(t, complex128(1), init.Amps[1])
}

func TestNoiseStageCollectsCollapseOps(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Noise = noise.NewModel(noise.Relaxation{T1: []float64{50}, T2: []float64{40}})
	p, err := New(cfg)
	require.NoError(t, err)

	c := circuit.New(1, 0)
	_ = c.AppendGate("X", []int{0})
	res, err := p.Run(*c, nil)
	require.NoError(t, err)
	require.Len(t, res.Collapse, 2)
	require.True(t, math.Abs(res.Collapse[0].Rate-0.02) < 1e-12)
}

func TestRunIDsUnique(t *testing.T) {
	p, err := Default(1, 0)
	require.NoError(t, err)
	c := circuit.New(1, 0)
	_ = c.AppendGate("X", []int{0})

	a, err := p.Run(*c, nil)
	require.NoError(t, err)
	b, err := p.Run(*c, nil)
	require.NoError(t, err)
	require.NotEqual(t, a.RunID, b.RunID)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	cfg := testConfig(nil)
	cfg.NativeSet = nil
	_, err = New(cfg)
	require.Error(t, err)

	cfg = testConfig(nil)
	cfg.Channels = pulse.ChannelConfig{}
	_, err = New(cfg)
	require.Error(t, err)
}
