// Package schedule assigns start times to circuit gates using only their
// qubit-occupancy semantics.
//
// Two gates conflict iff they share a qubit; the earlier gate in program
// order must finish before the later one starts. Gates on disjoint qubit
// sets are free to run in parallel. The scheduler never consults gate
// algebra: commuting same-qubit gates are still kept in program order.
package schedule

import (
	"fmt"
	"sort"

	"qpulsec/circuit"
)

// DurationModel yields the execution time of a (native) gate.
// transpile.NativeGateSet satisfies this.
type DurationModel interface {
	Duration(g circuit.Gate) (float64, bool)
}

// Policy selects the list-scheduling order.
type Policy int

const (
	// PolicyASAP schedules gates greedily in program order with
	// as-soon-as-possible starts. The default.
	PolicyASAP Policy = iota
	// PolicyCriticalPath prefers gates with the longest downstream
	// duration chain, shortening the makespan on wide circuits. Same-qubit
	// program order is still preserved via dependency edges.
	PolicyCriticalPath
)

// ScheduledGate is a gate with its assigned start time and duration.
// Index is the gate's position in the scheduled circuit.
type ScheduledGate struct {
	Gate     circuit.Gate
	Index    int
	Start    float64
	Duration float64
}

// End returns Start + Duration.
func (sg ScheduledGate) End() float64 { return sg.Start + sg.Duration }

// Schedule is the derived, start-ordered assignment of every gate.
type Schedule struct {
	Gates    []ScheduledGate
	Duration float64
}

// Interval is an occupied span on one qubit lane.
type Interval struct {
	Index      int
	Start, End float64
}

// Lanes returns per-qubit occupancy intervals, ordered by start. Consumed
// by visualization layers; the scheduler itself never reads them back.
func (s Schedule) Lanes(numQubits int) [][]Interval {
	lanes := make([][]Interval, numQubits)
	for _, sg := range s.Gates {
		for _, q := range sg.Gate.Qubits() {
			if q >= 0 && q < numQubits {
				lanes[q] = append(lanes[q], Interval{Index: sg.Index, Start: sg.Start, End: sg.End()})
			}
		}
	}
	for _, lane := range lanes {
		sort.Slice(lane, func(i, j int) bool { return lane[i].Start < lane[j].Start })
	}
	return lanes
}

// SchedulingError reports a malformed dependency graph. Construction from
// linear program order cannot produce one, but the scheduler checks
// defensively rather than looping forever.
type SchedulingError struct {
	Unscheduled int
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule: dependency graph contains a cycle, %d gates unschedulable", e.Unscheduled)
}

// Scheduler assigns start times under a duration model and policy.
type Scheduler struct {
	durations DurationModel
	policy    Policy
}

// NewScheduler returns a scheduler over the given duration model.
func NewScheduler(durations DurationModel, policy Policy) *Scheduler {
	return &Scheduler{durations: durations, policy: policy}
}

// Schedule computes start times for every gate in circ. Gates without a
// duration-model entry get unit duration.
func (s *Scheduler) Schedule(circ circuit.Circuit) (Schedule, error) {
	n := len(circ.Gates)
	durs := make([]float64, n)
	for i, g := range circ.Gates {
		d, ok := s.durations.Duration(g)
		if !ok {
			d = 1
		}
		durs[i] = d
	}

	succs, preds := dependencyGraph(circ)

	order := make([]int, 0, n)
	switch s.policy {
	case PolicyCriticalPath:
		order = criticalPathOrder(succs, preds, durs)
	default:
		// Program order is already a topological order of the graph.
		for i := 0; i < n; i++ {
			order = append(order, i)
		}
	}
	if len(order) < n {
		return Schedule{}, &SchedulingError{Unscheduled: n - len(order)}
	}

	out := Schedule{Gates: make([]ScheduledGate, 0, n)}
	ready := make(map[int]float64, circ.NumQubits)
	for _, i := range order {
		g := circ.Gates[i]
		start := 0.0
		for _, q := range g.Qubits() {
			if t := ready[q]; t > start {
				start = t
			}
		}
		end := start + durs[i]
		for _, q := range g.Qubits() {
			ready[q] = end
		}
		out.Gates = append(out.Gates, ScheduledGate{Gate: g.Clone(), Index: i, Start: start, Duration: durs[i]})
		if end > out.Duration {
			out.Duration = end
		}
	}

	sort.SliceStable(out.Gates, func(a, b int) bool {
		if out.Gates[a].Start != out.Gates[b].Start {
			return out.Gates[a].Start < out.Gates[b].Start
		}
		return out.Gates[a].Index < out.Gates[b].Index
	})
	return out, nil
}

// dependencyGraph links each gate to the previous gate on every qubit it
// occupies, the minimal ordering that must be preserved.
func dependencyGraph(circ circuit.Circuit) (succs, preds [][]int) {
	n := len(circ.Gates)
	succs = make([][]int, n)
	preds = make([][]int, n)
	last := make(map[int]int, circ.NumQubits)
	for i, g := range circ.Gates {
		seen := make(map[int]bool)
		for _, q := range g.Qubits() {
			if j, ok := last[q]; ok && !seen[j] {
				succs[j] = append(succs[j], i)
				preds[i] = append(preds[i], j)
				seen[j] = true
			}
		}
		for _, q := range g.Qubits() {
			last[q] = i
		}
	}
	return succs, preds
}

// criticalPathOrder is Kahn's algorithm with ready gates drained by
// longest downstream duration chain first, gate index breaking ties for
// determinism. A cycle leaves gates unvisited; the caller turns that into
// a SchedulingError.
func criticalPathOrder(succs, preds [][]int, durs []float64) []int {
	n := len(succs)
	// priority[i] = duration of the longest chain starting at i.
	priority := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		longest := 0.0
		for _, j := range succs[i] {
			if priority[j] > longest {
				longest = priority[j]
			}
		}
		priority[i] = durs[i] + longest
	}

	indegree := make([]int, n)
	for i := range preds {
		indegree[i] = len(preds[i])
	}
	var ready []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		best := 0
		for k := 1; k < len(ready); k++ {
			a, b := ready[k], ready[best]
			if priority[a] > priority[b] || (priority[a] == priority[b] && a < b) {
				best = k
			}
		}
		i := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, i)
		for _, j := range succs[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	return order
}
