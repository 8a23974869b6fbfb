// Package grid models the static electrical network a scenario is generated
// against: buses, AC lines, and the derived per-line constant buffers the
// physics layers consume.
//
// A Topology is built once from external records, validated eagerly, and never
// mutated afterwards, so it can be shared read-only by any number of
// concurrent forward passes.
package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBuses indicates an attempt to build a topology without any bus.
	ErrNoBuses = errors.New("topology requires at least one bus")
	// ErrDuplicateUID indicates two buses or two lines share the same uid.
	ErrDuplicateUID = errors.New("duplicate uid")
	// ErrUnknownBus indicates a line references a bus uid that was never declared.
	ErrUnknownBus = errors.New("line references unknown bus")
	// ErrBadReactance indicates a line reactance that is zero or negative.
	// Flow is angle difference divided by reactance, so zero must be rejected
	// here, before any tensor work.
	ErrBadReactance = errors.New("line reactance must be positive")
	// ErrBadResistance indicates a negative line resistance.
	ErrBadResistance = errors.New("line resistance must not be negative")
	// ErrBadLimit indicates a negative thermal limit. A zero limit is legal:
	// it simply makes any nonzero flow overloaded.
	ErrBadLimit = errors.New("line thermal limit must not be negative")
)

// BusRecord is the external description of a single bus.
// Field names follow the scenario document wire format.
type BusRecord struct {
	UID    string  `yaml:"uid" json:"uid"`
	BaseKV float64 `yaml:"base_kv" json:"base_kv"`
}

// LineRecord is the external description of a single AC line.
type LineRecord struct {
	UID             string  `yaml:"uid" json:"uid"`
	FromBus         string  `yaml:"fr_bus" json:"fr_bus"`
	ToBus           string  `yaml:"to_bus" json:"to_bus"`
	Reactance       float64 `yaml:"x" json:"x"`
	Resistance      float64 `yaml:"r" json:"r"`
	ThermalLimitMVA float64 `yaml:"mva_ub_nom" json:"mva_ub_nom"`
}

// Bus is a validated bus with its assigned index.
type Bus struct {
	UID    string
	BaseKV float64
	// Index is assigned by first-appearance order and is immutable.
	Index int
}

// Line is a validated line with resolved endpoint indices.
type Line struct {
	UID             string
	FromBus         string
	ToBus           string
	Reactance       float64
	Resistance      float64
	ThermalLimitMVA float64
	Index           int
	FromIndex       int
	ToIndex         int
}

// Topology owns the bus and line collections plus the derived constant
// buffers (from-index, to-index, reactance, limit arrays) used by the
// correction layers. It is immutable after construction.
type Topology struct {
	buses    []Bus
	lines    []Line
	busIndex map[string]int

	fromIdx   []int
	toIdx     []int
	reactance []float64
	limit     []float64
}

// New validates the records and builds a topology. Index maps follow the
// order of first appearance in the input slices and are fixed for the
// lifetime of the value.
func New(buses []BusRecord, lines []LineRecord) (*Topology, error) {
	if len(buses) == 0 {
		return nil, ErrNoBuses
	}

	t := &Topology{
		buses:    make([]Bus, 0, len(buses)),
		lines:    make([]Line, 0, len(lines)),
		busIndex: make(map[string]int, len(buses)),

		fromIdx:   make([]int, 0, len(lines)),
		toIdx:     make([]int, 0, len(lines)),
		reactance: make([]float64, 0, len(lines)),
		limit:     make([]float64, 0, len(lines)),
	}

	for i, b := range buses {
		if b.UID == "" {
			return nil, fmt.Errorf("bus %d: empty uid", i)
		}
		if _, exists := t.busIndex[b.UID]; exists {
			return nil, fmt.Errorf("bus %q: %w", b.UID, ErrDuplicateUID)
		}
		t.busIndex[b.UID] = i
		t.buses = append(t.buses, Bus{UID: b.UID, BaseKV: b.BaseKV, Index: i})
	}

	seenLines := make(map[string]struct{}, len(lines))
	for i, l := range lines {
		if l.UID == "" {
			return nil, fmt.Errorf("line %d: empty uid", i)
		}
		if _, exists := seenLines[l.UID]; exists {
			return nil, fmt.Errorf("line %q: %w", l.UID, ErrDuplicateUID)
		}
		seenLines[l.UID] = struct{}{}

		from, ok := t.busIndex[l.FromBus]
		if !ok {
			return nil, fmt.Errorf("line %q (fr_bus %q): %w", l.UID, l.FromBus, ErrUnknownBus)
		}
		to, ok := t.busIndex[l.ToBus]
		if !ok {
			return nil, fmt.Errorf("line %q (to_bus %q): %w", l.UID, l.ToBus, ErrUnknownBus)
		}
		if l.Reactance <= 0 {
			return nil, fmt.Errorf("line %q (x=%g): %w", l.UID, l.Reactance, ErrBadReactance)
		}
		if l.Resistance < 0 {
			return nil, fmt.Errorf("line %q (r=%g): %w", l.UID, l.Resistance, ErrBadResistance)
		}
		if l.ThermalLimitMVA < 0 {
			return nil, fmt.Errorf("line %q (mva_ub_nom=%g): %w", l.UID, l.ThermalLimitMVA, ErrBadLimit)
		}

		t.lines = append(t.lines, Line{
			UID:             l.UID,
			FromBus:         l.FromBus,
			ToBus:           l.ToBus,
			Reactance:       l.Reactance,
			Resistance:      l.Resistance,
			ThermalLimitMVA: l.ThermalLimitMVA,
			Index:           i,
			FromIndex:       from,
			ToIndex:         to,
		})
		t.fromIdx = append(t.fromIdx, from)
		t.toIdx = append(t.toIdx, to)
		t.reactance = append(t.reactance, l.Reactance)
		t.limit = append(t.limit, l.ThermalLimitMVA)
	}

	return t, nil
}

// NumBuses returns the number of buses.
func (t *Topology) NumBuses() int { return len(t.buses) }

// NumLines returns the number of lines.
func (t *Topology) NumLines() int { return len(t.lines) }

// Buses returns the validated buses in index order.
// The returned slice is shared; callers must not modify it.
func (t *Topology) Buses() []Bus { return t.buses }

// Lines returns the validated lines in index order.
// The returned slice is shared; callers must not modify it.
func (t *Topology) Lines() []Line { return t.lines }

// BusIndex resolves a bus uid to its index.
func (t *Topology) BusIndex(uid string) (int, bool) {
	i, ok := t.busIndex[uid]
	return i, ok
}

// FromIndices returns the per-line from-bus index buffer.
// The returned slice is shared; callers must not modify it.
func (t *Topology) FromIndices() []int { return t.fromIdx }

// ToIndices returns the per-line to-bus index buffer.
// The returned slice is shared; callers must not modify it.
func (t *Topology) ToIndices() []int { return t.toIdx }

// Reactances returns the per-line reactance buffer.
// The returned slice is shared; callers must not modify it.
func (t *Topology) Reactances() []float64 { return t.reactance }

// Limits returns the per-line thermal limit buffer.
// The returned slice is shared; callers must not modify it.
func (t *Topology) Limits() []float64 { return t.limit }
