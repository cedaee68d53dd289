// Package transpile rewrites circuits into a device's native gate set.
//
// Decomposition rules are registered per gate name and arity, forming an
// open vocabulary: new gates can be supported without touching this
// package. Decomposition is deterministic and idempotent on already-native
// circuits.
package transpile

import (
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"qpulsec/circuit"
)

// DefaultMaxDepth bounds the recursive expansion of a single source gate.
const DefaultMaxDepth = 64

// defaultCacheSize bounds the expansion memo cache.
const defaultCacheSize = 512

// Rule expands a non-native gate into a sequence of (not necessarily
// native) gates with the same unitary action up to global phase.
type Rule func(g circuit.Gate) ([]circuit.Gate, error)

type gateKey struct {
	name  string
	arity int
}

// NativeGateSet is a named, closed vocabulary of directly executable gates
// plus decomposition rules for everything else and a duration model for
// the natives. It is populated once at configuration time and treated as
// immutable afterwards; Clone produces an independent copy for
// copy-on-construct processor configuration.
type NativeGateSet struct {
	name      string
	durations map[gateKey]float64
	rules     map[gateKey]Rule
}

// NewNativeGateSet returns an empty set with the given name.
func NewNativeGateSet(name string) *NativeGateSet {
	return &NativeGateSet{
		name:      name,
		durations: make(map[gateKey]float64),
		rules:     make(map[gateKey]Rule),
	}
}

// Name returns the set's name.
func (s *NativeGateSet) Name() string { return s.name }

// AddNative declares a gate as directly executable with the given duration.
func (s *NativeGateSet) AddNative(name string, arity int, duration float64) error {
	if name == "" {
		return fmt.Errorf("transpile: native gate with empty name")
	}
	if duration <= 0 {
		return fmt.Errorf("transpile: native gate %q needs a positive duration, got %g", name, duration)
	}
	k := gateKey{name, arity}
	if _, ok := s.durations[k]; ok {
		return fmt.Errorf("transpile: native gate %q/%d already registered", name, arity)
	}
	s.durations[k] = duration
	return nil
}

// AddRule registers the decomposition rule for a non-native gate.
func (s *NativeGateSet) AddRule(name string, arity int, r Rule) error {
	if r == nil {
		return fmt.Errorf("transpile: nil rule for gate %q", name)
	}
	k := gateKey{name, arity}
	if _, ok := s.rules[k]; ok {
		return fmt.Errorf("transpile: rule for %q/%d already registered", name, arity)
	}
	if _, ok := s.durations[k]; ok {
		return fmt.Errorf("transpile: %q/%d is native, refusing decomposition rule", name, arity)
	}
	s.rules[k] = r
	return nil
}

// IsNative reports whether the gate can execute directly.
func (s *NativeGateSet) IsNative(g circuit.Gate) bool {
	_, ok := s.durations[gateKey{g.Name, g.Arity()}]
	return ok
}

// Duration returns the declared duration of a native gate.
func (s *NativeGateSet) Duration(g circuit.Gate) (float64, bool) {
	d, ok := s.durations[gateKey{g.Name, g.Arity()}]
	return d, ok
}

// rule returns the decomposition rule for the gate, if any.
func (s *NativeGateSet) rule(g circuit.Gate) (Rule, bool) {
	r, ok := s.rules[gateKey{g.Name, g.Arity()}]
	return r, ok
}

// Clone returns an independent copy sharing the (pure) rule functions.
func (s *NativeGateSet) Clone() *NativeGateSet {
	out := NewNativeGateSet(s.name)
	for k, d := range s.durations {
		out.durations[k] = d
	}
	for k, r := range s.rules {
		out.rules[k] = r
	}
	return out
}

// Options configures a decomposition run.
type Options struct {
	// MaxDepth bounds rule recursion per source gate; zero means
	// DefaultMaxDepth.
	MaxDepth int
	// Passes are local rewrite passes applied, in order, after full
	// expansion.
	Passes []Pass
	// CacheSize bounds the expansion memo cache; zero means the default.
	CacheSize int
}

// UnknownGateError reports a gate that is neither native nor covered by a
// decomposition rule. Index is the gate's position in the source circuit.
type UnknownGateError struct {
	Name  string
	Arity int
	Index int
}

func (e *UnknownGateError) Error() string {
	return fmt.Sprintf("transpile: no rule or native entry for gate %q (arity %d) at circuit index %d",
		e.Name, e.Arity, e.Index)
}

// DecompositionError reports a rule expansion that exceeded the recursion
// bound, typically a rule that fails to make progress.
type DecompositionError struct {
	Name     string
	Index    int
	MaxDepth int
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("transpile: decomposition of gate %q at circuit index %d exceeded depth %d",
		e.Name, e.Index, e.MaxDepth)
}

// Decompose rewrites every gate of circ into natives of set, then applies
// the configured rewrite passes. The input circuit is never modified.
func Decompose(circ circuit.Circuit, set *NativeGateSet, opts Options) (circuit.Circuit, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	// Identical gates expand identically, so repeated gates hit the memo.
	cache, err := lru.New[string, []circuit.Gate](cacheSize)
	if err != nil {
		return circuit.Circuit{}, fmt.Errorf("transpile: %w", err)
	}

	out := circuit.Circuit{NumQubits: circ.NumQubits, NumCbits: circ.NumCbits}
	for i, g := range circ.Gates {
		expanded, err := expand(g, i, set, maxDepth, cache)
		if err != nil {
			return circuit.Circuit{}, err
		}
		out.Gates = append(out.Gates, expanded...)
	}

	for _, p := range opts.Passes {
		out, err = p.Apply(out, set)
		if err != nil {
			return circuit.Circuit{}, fmt.Errorf("transpile: pass %s: %w", p.Name(), err)
		}
	}
	return out, nil
}

// expand lowers one source gate to natives with an explicit work stack and
// per-item depth counter, so a non-terminating rule fails deterministically
// instead of overflowing the goroutine stack.
func expand(g circuit.Gate, index int, set *NativeGateSet, maxDepth int, cache *lru.Cache[string, []circuit.Gate]) ([]circuit.Gate, error) {
	key := signature(g)
	if hit, ok := cache.Get(key); ok {
		return cloneWithCondition(hit, g.Condition), nil
	}

	type item struct {
		gate  circuit.Gate
		depth int
	}
	// Stack holds pending gates in reverse program order so natives are
	// emitted in the order the rules produced them.
	stack := []item{{gate: g, depth: 0}}
	var out []circuit.Gate
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if set.IsNative(it.gate) {
			out = append(out, it.gate)
			continue
		}
		if it.depth >= maxDepth {
			return nil, &DecompositionError{Name: g.Name, Index: index, MaxDepth: maxDepth}
		}
		rule, ok := set.rule(it.gate)
		if !ok {
			return nil, &UnknownGateError{Name: it.gate.Name, Arity: it.gate.Arity(), Index: index}
		}
		children, err := rule(it.gate)
		if err != nil {
			return nil, fmt.Errorf("transpile: rule for %q at index %d: %w", it.gate.Name, index, err)
		}
		for j := len(children) - 1; j >= 0; j-- {
			stack = append(stack, item{gate: children[j], depth: it.depth + 1})
		}
	}

	// Cache the unconditioned expansion; conditions are re-attached on use.
	cached := make([]circuit.Gate, len(out))
	for i, e := range out {
		e = e.Clone()
		e.Condition = nil
		cached[i] = e
	}
	cache.Add(key, cached)
	return cloneWithCondition(cached, g.Condition), nil
}

// cloneWithCondition deep-copies an expansion, propagating the source
// gate's classical condition onto every produced gate.
func cloneWithCondition(gates []circuit.Gate, cond *circuit.ClassicalCondition) []circuit.Gate {
	out := make([]circuit.Gate, len(gates))
	for i, g := range gates {
		c := g.Clone()
		if cond != nil {
			cc := *cond
			c.Condition = &cc
		}
		out[i] = c
	}
	return out
}

// signature is a stable cache key over everything a rule may depend on.
func signature(g circuit.Gate) string {
	var sb strings.Builder
	sb.WriteString(g.Name)
	sb.WriteByte('|')
	for _, q := range g.Controls {
		sb.WriteString(strconv.Itoa(q))
		sb.WriteByte(',')
	}
	sb.WriteByte('|')
	for _, q := range g.Targets {
		sb.WriteString(strconv.Itoa(q))
		sb.WriteByte(',')
	}
	sb.WriteByte('|')
	for _, p := range g.Params {
		sb.WriteString(strconv.FormatFloat(p, 'g', -1, 64))
		sb.WriteByte(',')
	}
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(g.Cbit))
	return sb.String()
}
