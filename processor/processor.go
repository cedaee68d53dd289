// Package processor orchestrates the full pipeline: decompose, schedule,
// compile to pulses, apply noise, evolve. It owns run lifecycle and error
// context; the stage packages stay independent of each other's policies.
package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qpulsec/circuit"
	"qpulsec/noise"
	"qpulsec/pulse"
	"qpulsec/schedule"
	"qpulsec/statevec"
	"qpulsec/transpile"
)

// RunState tracks a run through the pipeline. FAILED is terminal; every
// other state advances monotonically toward DONE.
type RunState int

const (
	StateCreated RunState = iota
	StateDecomposed
	StateScheduled
	StateCompiled
	StateNoiseApplied
	StateEvolved
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateDecomposed:
		return "DECOMPOSED"
	case StateScheduled:
		return "SCHEDULED"
	case StateCompiled:
		return "COMPILED"
	case StateNoiseApplied:
		return "NOISE_APPLIED"
	case StateEvolved:
		return "EVOLVED"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Evolver integrates a state under a compiled, noise-adjusted pulse
// schedule. statevec.Engine is the in-tree implementation; production
// solvers plug in here.
type Evolver interface {
	Evolve(ps pulse.PulseSchedule, collapse []noise.CollapseOp, initial statevec.State) (statevec.State, error)
}

// Transient marks evolution errors worth a single retry. Errors that
// don't implement it, or return false, fail the run immediately.
type Transient interface {
	Transient() bool
}

// EvolutionFailure wraps an evolver error that exhausted its retry.
type EvolutionFailure struct {
	Err error
}

func (e *EvolutionFailure) Error() string { return fmt.Sprintf("evolution failed: %v", e.Err) }
func (e *EvolutionFailure) Unwrap() error { return e.Err }

// StageError carries the pipeline stage and, where a stage error names
// one, the source-circuit gate index that caused the failure.
type StageError struct {
	Stage     string
	GateIndex int
	Err       error
}

func (e *StageError) Error() string {
	if e.GateIndex >= 0 {
		return fmt.Sprintf("processor: stage %s (gate %d): %v", e.Stage, e.GateIndex, e.Err)
	}
	return fmt.Sprintf("processor: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Config assembles a processor. All components are deep-copied at
// construction, so the caller may keep mutating its own copies without
// affecting in-flight runs.
type Config struct {
	NumQubits int
	NumCbits  int

	NativeSet        *transpile.NativeGateSet
	TranspileOptions transpile.Options
	Policy           schedule.Policy
	Library          *pulse.Library
	Channels         pulse.ChannelConfig
	Noise            *noise.Model

	// Evolver defaults to statevec.NewEngine over the library calibration.
	Evolver Evolver
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Processor runs circuits through the pipeline. Safe for concurrent use:
// its configuration is immutable after New and each run works on copies.
type Processor struct {
	numQubits int
	numCbits  int
	set       *transpile.NativeGateSet
	topts     transpile.Options
	policy    schedule.Policy
	lib       *pulse.Library
	channels  pulse.ChannelConfig
	noise     *noise.Model
	evolver   Evolver
	log       *zap.Logger
}

// New validates and copies cfg.
func New(cfg Config) (*Processor, error) {
	if cfg.NumQubits <= 0 {
		return nil, fmt.Errorf("processor: NumQubits must be positive, got %d", cfg.NumQubits)
	}
	if cfg.NumCbits < 0 {
		return nil, fmt.Errorf("processor: NumCbits must be non-negative, got %d", cfg.NumCbits)
	}
	if cfg.NativeSet == nil {
		return nil, fmt.Errorf("processor: nil native gate set")
	}
	if cfg.Library == nil {
		return nil, fmt.Errorf("processor: nil pulse library")
	}
	if len(cfg.Channels.Names()) == 0 {
		return nil, fmt.Errorf("processor: empty channel config")
	}
	evolver := cfg.Evolver
	if evolver == nil {
		evolver = statevec.NewEngine(cfg.Library.Calibration())
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		numQubits: cfg.NumQubits,
		numCbits:  cfg.NumCbits,
		set:       cfg.NativeSet.Clone(),
		topts:     cfg.TranspileOptions,
		policy:    cfg.Policy,
		lib:       cfg.Library.Clone(),
		channels:  cfg.Channels.Clone(),
		noise:     cfg.Noise.Clone(),
		evolver:   evolver,
		log:       log,
	}, nil
}

// Default builds a processor over the default native set, standard pulse
// library, default calibration and all-to-all channels. The common entry
// point for simulation without custom hardware description.
func Default(numQubits, numCbits int) (*Processor, error) {
	cal := pulse.DefaultCalibration()
	return New(Config{
		NumQubits: numQubits,
		NumCbits:  numCbits,
		NativeSet: transpile.DefaultNativeSet(),
		Library:   pulse.StandardLibrary(cal),
		Channels:  pulse.DefaultChannels(numQubits, 1.0),
	})
}

// Result is everything a completed run produced, including the
// intermediate artifacts for inspection.
type Result struct {
	RunID    uuid.UUID
	State    RunState
	Native   circuit.Circuit
	Schedule schedule.Schedule
	Pulses   pulse.PulseSchedule
	Collapse []noise.CollapseOp
	Final    statevec.State
	Timings  map[string]time.Duration
}

// Run takes a circuit from CREATED to DONE, or to FAILED with a
// StageError identifying where and (when a stage reports one) which gate.
// A nil initial state means |0...0>.
func (p *Processor) Run(circ circuit.Circuit, initial *statevec.State) (*Result, error) {
	res := &Result{
		RunID:   uuid.New(),
		State:   StateCreated,
		Timings: make(map[string]time.Duration),
	}
	log := p.log.With(zap.String("run", res.RunID.String()))

	fail := func(stage string, err error) (*Result, error) {
		res.State = StateFailed
		serr := &StageError{Stage: stage, GateIndex: gateIndex(err), Err: err}
		log.Warn("run failed", zap.String("stage", stage), zap.Error(err))
		return res, serr
	}

	if circ.NumQubits > p.numQubits {
		return fail("validate", fmt.Errorf("circuit wants %d qubits, processor has %d", circ.NumQubits, p.numQubits))
	}
	if circ.NumCbits > p.numCbits {
		return fail("validate", fmt.Errorf("circuit wants %d classical bits, processor has %d", circ.NumCbits, p.numCbits))
	}
	if err := circ.Validate(); err != nil {
		return fail("validate", err)
	}

	stage := func(name string, f func() error) error {
		t0 := time.Now()
		err := f()
		res.Timings[name] = time.Since(t0)
		if err == nil {
			log.Debug("stage complete", zap.String("stage", name), zap.Duration("took", res.Timings[name]))
		}
		return err
	}

	if err := stage("decompose", func() error {
		native, err := transpile.Decompose(circ, p.set, p.topts)
		if err != nil {
			return err
		}
		res.Native = native
		return nil
	}); err != nil {
		return fail("decompose", err)
	}
	res.State = StateDecomposed

	if err := stage("schedule", func() error {
		sched, err := schedule.NewScheduler(p.set, p.policy).Schedule(res.Native)
		if err != nil {
			return err
		}
		res.Schedule = sched
		return nil
	}); err != nil {
		return fail("schedule", err)
	}
	res.State = StateScheduled

	if err := stage("compile", func() error {
		ps, err := pulse.Compile(res.Schedule, p.lib, p.channels)
		if err != nil {
			return err
		}
		res.Pulses = ps
		return nil
	}); err != nil {
		return fail("compile", err)
	}
	res.State = StateCompiled

	if err := stage("noise", func() error {
		dev := noise.Device{
			NumQubits:   p.numQubits,
			Calibration: p.lib.Calibration(),
			Channels:    p.channels,
		}
		collapse, err := p.noise.Apply(&res.Pulses, dev)
		if err != nil {
			return err
		}
		res.Collapse = collapse
		return nil
	}); err != nil {
		return fail("noise", err)
	}
	res.State = StateNoiseApplied

	init := statevec.NewState(p.numQubits, p.numCbits)
	if initial != nil {
		if len(initial.Amps) != 1<<p.numQubits {
			return fail("evolve", fmt.Errorf("initial state has %d amplitudes, want %d", len(initial.Amps), 1<<p.numQubits))
		}
		init = initial.Clone()
	}
	if err := stage("evolve", func() error {
		final, err := p.evolve(log, res.Pulses, res.Collapse, init)
		if err != nil {
			return err
		}
		res.Final = final
		return nil
	}); err != nil {
		return fail("evolve", err)
	}
	res.State = StateEvolved

	res.State = StateDone
	log.Info("run complete",
		zap.Int("gates", len(res.Native.Gates)),
		zap.Float64("duration", res.Pulses.Duration))
	return res, nil
}

// evolve calls the evolver, retrying exactly once when the error is
// marked transient.
func (p *Processor) evolve(log *zap.Logger, ps pulse.PulseSchedule, collapse []noise.CollapseOp, init statevec.State) (statevec.State, error) {
	final, err := p.evolver.Evolve(ps, collapse, init)
	if err == nil {
		return final, nil
	}
	var tr Transient
	if errors.As(err, &tr) && tr.Transient() {
		log.Warn("transient evolution error, retrying once", zap.Error(err))
		final, err = p.evolver.Evolve(ps, collapse, init)
		if err == nil {
			return final, nil
		}
	}
	return statevec.State{}, &EvolutionFailure{Err: err}
}

// gateIndex extracts the offending gate index from a stage error, or -1.
func gateIndex(err error) int {
	var unknown *transpile.UnknownGateError
	if errors.As(err, &unknown) {
		return unknown.Index
	}
	var decomp *transpile.DecompositionError
	if errors.As(err, &decomp) {
		return decomp.Index
	}
	var overflow *pulse.ChannelOverflowError
	if errors.As(err, &overflow) {
		return overflow.GateIndex
	}
	return -1
}
