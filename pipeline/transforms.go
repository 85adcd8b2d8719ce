package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mtconnect/agent/buffer"
	"github.com/mtconnect/agent/config"
	"github.com/mtconnect/agent/dataset"
	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/observation"
	"github.com/mtconnect/agent/sink"
	"github.com/mtconnect/agent/stats"
	"github.com/mtconnect/agent/xlog"
)

// Standard assembles the canonical pipeline order of spec §4.5,
// including or omitting the per-adapter-optional stages according to
// cfg. buf is the buffer DuplicateFilter/DeltaFilter consult (through
// its locked LatestObservation accessor) for the last-observed value;
// snk is the terminal sink. metrics may be nil.
func Standard(cfg *config.Owner, buf *buffer.CircularBuffer, snk *sink.Sink, metrics *stats.Metrics, log *xlog.Logger) *Pipeline {
	stages := []Transform{&ShdrTokenMapper{}}

	if cfg.Get().UpcaseDataItemValue {
		stages = append(stages, &UpcaseValue{cfg: cfg})
	}
	stages = append(stages, &ConvertValue{cfg: cfg})
	if cfg.Get().FilterDuplicates {
		stages = append(stages, &DuplicateFilter{buf: buf, metrics: metrics})
	}
	stages = append(stages, &DeltaFilter{buf: buf, metrics: metrics})
	stages = append(stages, &TimestampExtractor{cfg: cfg})
	stages = append(stages, &DeliverObservation{sink: snk, log: log})

	return New(stages...)
}

// ShdrTokenMapper is the first transform: it builds the representation-
// specific Observation payload from the raw adapter text, using the
// DataItem's category/representation to decide how to interpret it.
type ShdrTokenMapper struct{}

func (*ShdrTokenMapper) Name() string  { return "ShdrTokenMapper" }
func (*ShdrTokenMapper) Guard() Guard  { return AnyEntity }

func (*ShdrTokenMapper) Apply(e *Entity) (*Entity, bool) {
	if e.Item == nil {
		return e, false
	}

	var payload observation.Payload
	switch e.Item.Category {
	case device.Condition:
		payload = parseCondition(e.RawValue)
	default:
		switch e.Item.Representation {
		case device.TimeSeries:
			payload = parseTimeseries(e.RawValue)
		case device.DataSet:
			payload = parseDataSetValue(e.RawValue)
		case device.Table:
			payload = parseTableValue(e.RawValue)
		default:
			if strings.Contains(e.RawValue, "|") {
				payload = parseMessage(e.RawValue)
			} else {
				payload = observation.ScalarPayload{Value: observation.NewStringScalar(e.RawValue)}
			}
		}
	}
	if payload == nil {
		// data-set/table parse failure: the observation is dropped
		return e, false
	}

	e.Observation = &observation.Observation{Item: e.Item, Payload: payload}
	return e, true
}

func parseCondition(raw string) observation.ConditionPayload {
	parts := strings.SplitN(raw, "|", 5)
	for len(parts) < 5 {
		parts = append(parts, "")
	}
	return observation.ConditionPayload{
		Level:          parseLevel(parts[0]),
		NativeCode:     parts[1],
		NativeSeverity: parts[2],
		Qualifier:      parts[3],
		Text:           parts[4],
	}
}

func parseLevel(s string) observation.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARNING":
		return observation.Warning
	case "FAULT":
		return observation.Fault
	case "UNAVAILABLE":
		return observation.Unavailable
	default:
		return observation.Normal
	}
}

func parseMessage(raw string) observation.MessagePayload {
	parts := strings.SplitN(raw, "|", 2)
	code := parts[0]
	text := ""
	if len(parts) > 1 {
		text = parts[1]
	}
	return observation.MessagePayload{NativeCode: code, Text: text}
}

func parseTimeseries(raw string) observation.TimeseriesPayload {
	parts := strings.SplitN(raw, "|", 3)
	var count int
	var rate float64
	samplesField := raw
	if len(parts) == 3 {
		count, _ = strconv.Atoi(parts[0])
		rate, _ = strconv.ParseFloat(parts[1], 64)
		samplesField = parts[2]
	}
	var samples []float64
	for _, tok := range strings.Fields(samplesField) {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			samples = append(samples, v)
		}
	}
	if count == 0 {
		count = len(samples)
	}
	return observation.TimeseriesPayload{SampleCount: count, SampleRate: rate, Samples: samples}
}

func parseDataSetValue(raw string) observation.Payload {
	if raw == "UNAVAILABLE" {
		return observation.DataSetPayload{Unavailable: true}
	}
	result, err := dataset.ParseDataSet(raw)
	if err != nil {
		return nil
	}
	return observation.DataSetPayload{Set: result.Set, ResetTriggered: result.ResetTriggered}
}

func parseTableValue(raw string) observation.Payload {
	if raw == "UNAVAILABLE" {
		return observation.TablePayload{Unavailable: true}
	}
	result, err := dataset.ParseTable(raw)
	if err != nil {
		return nil
	}
	return observation.TablePayload{Set: result.Set, ResetTriggered: result.ResetTriggered}
}

// UpcaseValue upcases string scalar values for event/discrete data items
// when configured (spec §4.5 step 2).
type UpcaseValue struct {
	cfg *config.Owner
}

func (*UpcaseValue) Name() string { return "UpcaseValue" }
func (u *UpcaseValue) Guard() Guard {
	return func(e *Entity) bool {
		if e.Item == nil || e.Item.Category != device.Event || e.Observation == nil {
			return false
		}
		sp, ok := e.Observation.Payload.(observation.ScalarPayload)
		return ok && sp.Value.Kind == observation.ScalarString
	}
}

func (u *UpcaseValue) Apply(e *Entity) (*Entity, bool) {
	if !u.cfg.Get().UpcaseDataItemValue {
		return e, true
	}
	sp := e.Observation.Payload.(observation.ScalarPayload)
	sp.Value = observation.NewStringScalar(strings.ToUpper(sp.Value.Str))
	e.Observation = withPayload(e.Observation, sp)
	return e, true
}

// conversionFactors is a representative subset of linear unit
// conversions; it isn't meant to be exhaustive.
var conversionFactors = map[string]map[string]float64{
	"INCH":       {"MILLIMETER": 25.4},
	"MILLIMETER": {"INCH": 1 / 25.4},
	"FOOT":       {"METER": 0.3048},
	"METER":      {"FOOT": 1 / 0.3048},
	"POUND":      {"KILOGRAM": 0.45359237},
	"KILOGRAM":   {"POUND": 1 / 0.45359237},
}

// ConvertValue coerces the raw scalar string into its typed value and,
// for numeric values, applies a unit conversion when the data item's
// native and reported units differ (spec §4.5 step 3).
type ConvertValue struct {
	cfg *config.Owner
}

func (*ConvertValue) Name() string { return "ConvertValue" }
func (*ConvertValue) Guard() Guard {
	return func(e *Entity) bool {
		if e.Observation == nil {
			return false
		}
		_, ok := e.Observation.Payload.(observation.ScalarPayload)
		return ok
	}
}

func (c *ConvertValue) Apply(e *Entity) (*Entity, bool) {
	sp := e.Observation.Payload.(observation.ScalarPayload)
	if !c.cfg.Get().ConversionRequired {
		return e, true
	}
	value := dataset.Coerce(sp.Value.Str)

	if e.Item.NativeUnits != "" && e.Item.NativeUnits != e.Item.Units {
		if factors, ok := conversionFactors[e.Item.NativeUnits]; ok {
			if factor, ok := factors[e.Item.Units]; ok {
				switch value.Kind {
				case observation.ScalarInt:
					value = observation.NewDoubleScalar(float64(value.Int) * factor)
				case observation.ScalarDouble:
					value = observation.NewDoubleScalar(value.Double * factor)
				}
			}
		}
	}

	e.Observation = withPayload(e.Observation, observation.ScalarPayload{Value: value})
	return e, true
}

// DuplicateFilter drops a scalar observation whose value equals the
// last observed value for that data item (spec §4.5 step 4).
type DuplicateFilter struct {
	buf     *buffer.CircularBuffer
	metrics *stats.Metrics
}

func (*DuplicateFilter) Name() string { return "DuplicateFilter" }
func (*DuplicateFilter) Guard() Guard {
	return func(e *Entity) bool {
		if e.Observation == nil {
			return false
		}
		_, ok := e.Observation.Payload.(observation.ScalarPayload)
		return ok
	}
}

func (d *DuplicateFilter) Apply(e *Entity) (*Entity, bool) {
	prev, ok := d.buf.LatestObservation(e.Item.ID)
	if !ok {
		return e, true
	}
	prevScalar, ok := prev.Payload.(observation.ScalarPayload)
	if !ok {
		return e, true
	}
	cur := e.Observation.Payload.(observation.ScalarPayload)
	if prevScalar.Value.Equal(cur.Value) {
		if d.metrics != nil {
			d.metrics.DropObservation("duplicate")
		}
		return nil, false
	}
	return e, true
}

// DeltaFilter drops a scalar numeric observation too close to the last
// observed value/timestamp to matter, per the data item's configured
// thresholds (spec §4.5 step 5). Either threshold independently
// suppresses (logical OR) — see DESIGN.md's Open Question resolution.
type DeltaFilter struct {
	buf     *buffer.CircularBuffer
	metrics *stats.Metrics
}

func (*DeltaFilter) Name() string { return "DeltaFilter" }
func (*DeltaFilter) Guard() Guard {
	return func(e *Entity) bool {
		if e.Item == nil || e.Observation == nil {
			return false
		}
		sp, ok := e.Observation.Payload.(observation.ScalarPayload)
		if !ok {
			return false
		}
		return sp.Value.Kind == observation.ScalarInt || sp.Value.Kind == observation.ScalarDouble
	}
}

func (d *DeltaFilter) Apply(e *Entity) (*Entity, bool) {
	filter := e.Item.Filter
	if filter.MinimumDelta <= 0 && filter.MinimumPeriod <= 0 {
		return e, true
	}
	prev, ok := d.buf.LatestObservation(e.Item.ID)
	if !ok {
		return e, true
	}
	prevScalar, ok := prev.Payload.(observation.ScalarPayload)
	if !ok {
		return e, true
	}

	cur := e.Observation.Payload.(observation.ScalarPayload)
	if filter.MinimumDelta > 0 {
		if math.Abs(numeric(cur.Value)-numeric(prevScalar.Value)) < filter.MinimumDelta {
			if d.metrics != nil {
				d.metrics.DropObservation("delta")
			}
			return nil, false
		}
	}
	if filter.MinimumPeriod > 0 {
		// TimestampExtractor runs after this stage (spec §4.5 steps 5/6),
		// so the adapter's raw timestamp is parsed here directly rather
		// than relying on e.Timestamp.
		if ts, err := time.Parse(time.RFC3339Nano, e.RawTimestamp); err == nil {
			if ts.Sub(prev.Timestamp).Seconds() < filter.MinimumPeriod {
				if d.metrics != nil {
					d.metrics.DropObservation("period")
				}
				return nil, false
			}
		}
	}
	return e, true
}

func numeric(s observation.Scalar) float64 {
	switch s.Kind {
	case observation.ScalarInt:
		return float64(s.Int)
	case observation.ScalarDouble:
		return s.Double
	default:
		return 0
	}
}

// TimestampExtractor normalizes/assigns the observation's timestamp,
// substituting ingest time when configured to ignore the adapter's own
// timestamp (spec §4.5 step 6).
type TimestampExtractor struct {
	cfg *config.Owner
}

func (*TimestampExtractor) Name() string { return "TimestampExtractor" }
func (*TimestampExtractor) Guard() Guard { return AnyEntity }

func (t *TimestampExtractor) Apply(e *Entity) (*Entity, bool) {
	now := time.Now()
	if t.cfg.Get().IgnoreTimestamps {
		e.Timestamp = now
	} else if ts, err := time.Parse(time.RFC3339Nano, e.RawTimestamp); err == nil {
		e.Timestamp = ts
	} else {
		e.Timestamp = now
	}
	e.TimestampSet = true
	if e.Observation != nil {
		e.Observation.Timestamp = e.Timestamp
	}
	return e, true
}

// DeliverObservation is the terminal transform: it hands the built
// Observation to the sink (spec §4.5 step 7 / §4.7).
type DeliverObservation struct {
	sink *sink.Sink
	log  *xlog.Logger
}

func (*DeliverObservation) Name() string { return "DeliverObservation" }
func (*DeliverObservation) Guard() Guard { return AnyEntity }

func (d *DeliverObservation) Apply(e *Entity) (*Entity, bool) {
	if e.Observation == nil {
		return e, false
	}
	seq := d.sink.Deliver(e.Observation)
	if d.log != nil && d.log.V(2) {
		d.log.Infof("delivered %s at sequence %d", e.Item.ID, seq)
	}
	return e, true
}

func withPayload(o *observation.Observation, p observation.Payload) *observation.Observation {
	cp := *o
	cp.Payload = p
	return &cp
}
