// Package metrics provides the metric schema types shared by the agent and
// controller, plus self-monitoring counters for both processes.
package metrics

import (
	"fmt"
	"strconv"
)

// Kind is the series type announced in a FORMAT block.
type Kind int

const (
	// Gauge represents a series that can go up or down.
	Gauge Kind = 1
	// Counter represents a monotonically increasing series.
	Counter Kind = 2
)

func (k Kind) String() string {
	switch k {
	case Gauge:
		return "GAUGE"
	case Counter:
		return "COUNTER"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a wire kind id.
func ParseKind(id string) (Kind, error) {
	switch id {
	case "1":
		return Gauge, nil
	case "2":
		return Counter, nil
	default:
		return 0, fmt.Errorf("unknown kind id %q", id)
	}
}

// Unbounded is the wire token for a missing bound.
const Unbounded = "U"

// Bound is an optional min or max limit on a series.
type Bound struct {
	value int64
	set   bool
}

// NoBound returns an unbounded limit.
func NoBound() Bound { return Bound{} }

// Limit returns a bound at v.
func Limit(v int64) Bound { return Bound{value: v, set: true} }

// Value returns the bound and whether it is set.
func (b Bound) Value() (int64, bool) { return b.value, b.set }

func (b Bound) String() string {
	if !b.set {
		return Unbounded
	}
	return strconv.FormatInt(b.value, 10)
}

// ParseBound parses a decimal integer or the U sentinel.
func ParseBound(s string) (Bound, error) {
	if s == Unbounded {
		return NoBound(), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Bound{}, fmt.Errorf("invalid bound %q: %w", s, err)
	}
	return Limit(v), nil
}

// Series describes one measured series of a metric.
type Series struct {
	Kind Kind
	Name string
	// Heartbeat is the expected maximum gap between samples, in seconds.
	Heartbeat int64
	Min       Bound
	Max       Bound
}

// GaugeSeries is shorthand for a gauge series.
func GaugeSeries(name string, heartbeat int64, min, max Bound) Series {
	return Series{Kind: Gauge, Name: name, Heartbeat: heartbeat, Min: min, Max: max}
}

// CounterSeries is shorthand for a counter series.
func CounterSeries(name string, heartbeat int64, min, max Bound) Series {
	return Series{Kind: Counter, Name: name, Heartbeat: heartbeat, Min: min, Max: max}
}

// Schema is the ordered list of series making up a metric.
type Schema []Series

// Equal reports whether both schemas hold the same series in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing array with s.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// Names returns the series names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, series := range s {
		names[i] = series.Name
	}
	return names
}
