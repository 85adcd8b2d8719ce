// Package observation implements the typed observation payloads of spec
// §3: scalar samples/events, timeseries, data sets, tables, conditions,
// messages, and asset events. An Observation is immutable after
// construction; the sink assigns its Sequence exactly once.
package observation

import (
	"fmt"
	"time"

	"github.com/mtconnect/agent/device"
)

// Kind discriminates the payload carried by an Observation.
type Kind int

const (
	KindScalar Kind = iota
	KindTimeseries
	KindDataSet
	KindTable
	KindCondition
	KindMessage
	KindAssetEvent
)

// Payload is implemented by every concrete observation value type.
type Payload interface {
	Kind() Kind
}

// Observation is a single, immutable, sequenced measurement or event.
type Observation struct {
	Item      *device.DataItem
	Timestamp time.Time
	Sequence  uint64 // 0 until assigned by the sink
	Payload   Payload
}

// WithSequence returns a shallow copy of o with Sequence set.
// CircularBuffer.Push, which the sink calls, is the only caller: it's how
// a freshly-constructed, sequence-less
// Observation becomes the immutable, committed record stored in the
// buffer.
func (o *Observation) WithSequence(seq uint64) *Observation {
	cp := *o
	cp.Sequence = seq
	return &cp
}

// DataItemID is a convenience accessor used throughout checkpoint/buffer
// code that keys state by data-item id.
func (o *Observation) DataItemID() string {
	if o.Item == nil {
		return ""
	}
	return o.Item.ID
}

// ScalarKind is the runtime type of a scalar value, per the dataset
// parser's numeric-vs-string coercion rules (spec §4.1) and plain
// sample/event values (spec §3).
type ScalarKind int

const (
	ScalarString ScalarKind = iota
	ScalarInt
	ScalarDouble
)

// Scalar is a typed value: integer, double, or string.
type Scalar struct {
	Kind   ScalarKind
	Int    int64
	Double float64
	Str    string
}

func NewIntScalar(v int64) Scalar    { return Scalar{Kind: ScalarInt, Int: v} }
func NewDoubleScalar(v float64) Scalar { return Scalar{Kind: ScalarDouble, Double: v} }
func NewStringScalar(v string) Scalar { return Scalar{Kind: ScalarString, Str: v} }

// Equal reports whether two scalars carry the same type and value, used
// by the DuplicateFilter transform.
func (s Scalar) Equal(o Scalar) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case ScalarInt:
		return s.Int == o.Int
	case ScalarDouble:
		return s.Double == o.Double
	default:
		return s.Str == o.Str
	}
}

// String renders the scalar the way it would appear in a re-serialized
// SHDR token.
func (s Scalar) String() string {
	switch s.Kind {
	case ScalarInt:
		return fmt.Sprintf("%d", s.Int)
	case ScalarDouble:
		return fmt.Sprintf("%g", s.Double)
	default:
		return s.Str
	}
}

// ScalarPayload is a Sample/Event scalar observation (spec §3).
type ScalarPayload struct {
	Value Scalar
}

func (ScalarPayload) Kind() Kind { return KindScalar }

// TimeseriesPayload carries a vector of float samples at a fixed rate.
type TimeseriesPayload struct {
	SampleCount int
	SampleRate  float64
	Samples     []float64
}

func (TimeseriesPayload) Kind() Kind { return KindTimeseries }

// Entry is one key/value pair of a data set, or one key/cell pair of a
// table row. Removed marks a deletion during merge (spec §3, §4.2).
type Entry struct {
	Key     string
	Value   Scalar     // scalar value, for DataSetPayload entries
	Cell    *DataSet   // nested data set, for TablePayload entries (nil for a plain data set entry)
	Removed bool
}

// DataSet is an ordered collection of entries with unique keys. Order is
// preserve-on-construction (insertion order), not re-sorted, since
// spec §8's round-trip property depends on a stable serialize/parse
// cycle.
type DataSet struct {
	Entries []Entry
}

// Get returns the entry for key, if present.
func (d *DataSet) Get(key string) (Entry, bool) {
	for _, e := range d.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Clone returns a deep-enough copy: the entry slice is copied, but scalar
// values (already immutable) are shared.
func (d *DataSet) Clone() *DataSet {
	cp := &DataSet{Entries: make([]Entry, len(d.Entries))}
	copy(cp.Entries, d.Entries)
	return cp
}

// DataSetPayload is a DATA_SET observation: resetTriggered is the reset
// trigger kind set by a leading `:KIND` token, or empty. Unavailable
// marks this observation as the data item going UNAVAILABLE, which (like
// a reset trigger) causes the checkpoint to replace rather than merge.
type DataSetPayload struct {
	Set            DataSet
	ResetTriggered string
	Unavailable    bool
}

func (DataSetPayload) Kind() Kind { return KindDataSet }

// TablePayload is a TABLE observation: same shape as DataSetPayload, but
// every entry's Cell holds a nested DataSet rather than a scalar.
type TablePayload struct {
	Set            DataSet
	ResetTriggered string
	Unavailable    bool
}

func (TablePayload) Kind() Kind { return KindTable }

// Level is a condition severity level.
type Level int

const (
	Normal Level = iota
	Warning
	Fault
	Unavailable
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "NORMAL"
	case Warning:
		return "WARNING"
	case Fault:
		return "FAULT"
	case Unavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// ConditionPayload is one entry in a data item's condition chain. Prev is
// a persistent (copy-on-write) singly-linked back-pointer to the
// previously active condition for the same data item; see spec §4.2 and
// §9 Design Notes.
type ConditionPayload struct {
	Level          Level
	NativeCode     string
	NativeSeverity string
	Qualifier      string
	Text           string
	Prev           *Observation
}

func (ConditionPayload) Kind() Kind { return KindCondition }

// MessagePayload is a native-code + text message observation.
type MessagePayload struct {
	NativeCode string
	Text       string
}

func (MessagePayload) Kind() Kind { return KindMessage }

// AssetAction distinguishes the three kinds of asset notification.
type AssetAction int

const (
	AssetChanged AssetAction = iota
	AssetRemoved
	AssetCount
)

// AssetEventPayload fires on asset change/remove/count.
type AssetEventPayload struct {
	AssetID   string
	AssetType string
	Hash      string
	Action    AssetAction
	Count     int // valid when Action == AssetCount
}

func (AssetEventPayload) Kind() Kind { return KindAssetEvent }
