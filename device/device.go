// Package device holds the minimal, immutable handles the observation
// store borrows from the (out-of-scope) device model: DataItem
// descriptors and a weak link to their owning Component. The core never
// constructs or mutates these; it only reads them for the lifetime of an
// Observation.
package device

import "go.uber.org/atomic"

// Category classifies what kind of stream a DataItem produces.
type Category int

const (
	Sample Category = iota
	Event
	Condition
)

func (c Category) String() string {
	switch c {
	case Sample:
		return "SAMPLE"
	case Event:
		return "EVENT"
	case Condition:
		return "CONDITION"
	default:
		return "UNKNOWN"
	}
}

// Representation describes the shape of the values a DataItem reports.
type Representation int

const (
	Value Representation = iota
	TimeSeries
	DataSet
	Table
	Discrete
)

func (r Representation) String() string {
	switch r {
	case Value:
		return "VALUE"
	case TimeSeries:
		return "TIME_SERIES"
	case DataSet:
		return "DATA_SET"
	case Table:
		return "TABLE"
	case Discrete:
		return "DISCRETE"
	default:
		return "UNKNOWN"
	}
}

// FilterConfig carries the duplicate/delta-filter thresholds configured
// for a DataItem (spec §4.5 DuplicateFilter/DeltaFilter).
type FilterConfig struct {
	MinimumDelta  float64 // 0 disables the delta threshold
	MinimumPeriod float64 // seconds; 0 disables the period threshold
}

// ComponentHandle is a weak reference to an owning Component: the core
// holds this cheap proxy rather than the Component itself, so a torn-down
// Component can be collected independent of any DataItem or Observation
// still referencing it. Resolve reports false once the component has been
// torn down; callers (checkpoint/query readers) treat that as an orphan
// and skip the observation, per spec §4.2 "Orphan handling".
type ComponentHandle struct {
	id    string
	alive *atomic.Bool
}

// NewComponentHandle creates a live handle for a component identified by
// id. The returned Teardown func marks every handle sharing this state as
// orphaned; call it when the owning component is destroyed.
func NewComponentHandle(id string) (h ComponentHandle, teardown func()) {
	alive := atomic.NewBool(true)
	h = ComponentHandle{id: id, alive: alive}
	return h, func() { alive.Store(false) }
}

// ID returns the component id regardless of liveness (used for logging).
func (h ComponentHandle) ID() string { return h.id }

// Resolve reports whether the component is still alive.
func (h ComponentHandle) Resolve() (id string, ok bool) {
	if h.alive == nil {
		return "", false
	}
	return h.id, h.alive.Load()
}

// DataItem is the immutable, borrowed descriptor identifying a stream of
// observations. The core never mutates a DataItem; it's constructed once
// by the (out-of-scope) device model and handed in by reference.
type DataItem struct {
	ID             string
	Name           string
	Category       Category
	Representation Representation
	Type           string
	SubType        string
	NativeUnits    string
	Units          string
	Filter         FilterConfig
	InitialValue   string
	ResetTrigger   string
	Component      ComponentHandle
}

// Orphaned reports whether this DataItem's owning component has been
// torn down.
func (d *DataItem) Orphaned() bool {
	_, ok := d.Component.Resolve()
	return !ok
}
