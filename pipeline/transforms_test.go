package pipeline_test

import (
	"testing"
	"time"

	"github.com/mtconnect/agent/asset"
	"github.com/mtconnect/agent/buffer"
	"github.com/mtconnect/agent/config"
	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/notify"
	"github.com/mtconnect/agent/observation"
	"github.com/mtconnect/agent/pipeline"
	"github.com/mtconnect/agent/sink"
)

func newHarness(t *testing.T, cfg *config.Config) (*pipeline.Pipeline, *buffer.CircularBuffer) {
	t.Helper()
	owner := config.NewOwner(cfg)
	buf := buffer.New(4, 4)
	store, err := asset.New(10)
	if err != nil {
		t.Fatalf("asset.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	signaler := notify.NewSignaler()
	snk := sink.New(buf, store, signaler, nil)
	pl := pipeline.Standard(owner, buf, snk, nil, nil)
	return pl, buf
}

func tsAt(secOffset int) string {
	return time.Unix(1700000000+int64(secOffset), 0).UTC().Format(time.RFC3339Nano)
}

func TestShdrTokenMapperScalarRoundTrip(t *testing.T) {
	pl, buf := newHarness(t, config.Default())
	h, _ := device.NewComponentHandle("c1")
	item := &device.DataItem{ID: "mode", Category: device.Event, Representation: device.Value, Component: h}

	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(0), RawValue: "AUTOMATIC"})

	obs, err := buf.GetAt(1)
	if err != nil || obs == nil {
		t.Fatalf("expected observation at sequence 1, got (%v, %v)", obs, err)
	}
	sp, ok := obs.Payload.(observation.ScalarPayload)
	if !ok {
		t.Fatalf("payload type = %T, want ScalarPayload", obs.Payload)
	}
	if sp.Value.Str != "AUTOMATIC" {
		t.Errorf("Value.Str = %q, want AUTOMATIC", sp.Value.Str)
	}
}

func TestConvertValueAppliesUnitConversion(t *testing.T) {
	cfg := config.Default()
	pl, buf := newHarness(t, cfg)
	h, _ := device.NewComponentHandle("c1")
	item := &device.DataItem{
		ID: "Xact", Category: device.Sample, Representation: device.Value,
		NativeUnits: "INCH", Units: "MILLIMETER", Component: h,
	}

	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(0), RawValue: "1"})

	obs, _ := buf.GetAt(1)
	sp := obs.Payload.(observation.ScalarPayload)
	if sp.Value.Kind != observation.ScalarDouble {
		t.Fatalf("Value.Kind = %v, want ScalarDouble after conversion", sp.Value.Kind)
	}
	if got := sp.Value.Double; got < 25.3 || got > 25.5 {
		t.Errorf("converted value = %v, want ~25.4", got)
	}
}

func TestDuplicateFilterDropsRepeatedValue(t *testing.T) {
	pl, buf := newHarness(t, config.Default())
	h, _ := device.NewComponentHandle("c1")
	item := &device.DataItem{ID: "avail", Category: device.Event, Representation: device.Value, Component: h}

	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(0), RawValue: "AVAILABLE"})
	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(1), RawValue: "AVAILABLE"})

	if got := buf.LastSequence(); got != 1 {
		t.Errorf("LastSequence() = %d, want 1 (the duplicate should have been dropped)", got)
	}
}

func TestDeltaFilterDropsWithinMinimumDelta(t *testing.T) {
	cfg := config.Default()
	cfg.FilterDuplicates = false
	pl, buf := newHarness(t, cfg)
	h, _ := device.NewComponentHandle("c1")
	item := &device.DataItem{
		ID: "Xact", Category: device.Sample, Representation: device.Value,
		NativeUnits: "MILLIMETER", Units: "MILLIMETER", Component: h,
		Filter: device.FilterConfig{MinimumDelta: 5},
	}

	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(0), RawValue: "10"})
	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(1), RawValue: "11"})
	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(2), RawValue: "20"})

	if got := buf.LastSequence(); got != 2 {
		t.Errorf("LastSequence() = %d, want 2 (only the 10->20 jump clears the delta threshold)", got)
	}
}

func TestDeltaFilterDropsWithinMinimumPeriod(t *testing.T) {
	cfg := config.Default()
	cfg.FilterDuplicates = false
	pl, buf := newHarness(t, cfg)
	h, _ := device.NewComponentHandle("c1")
	item := &device.DataItem{
		ID: "Xact", Category: device.Sample, Representation: device.Value,
		NativeUnits: "MILLIMETER", Units: "MILLIMETER", Component: h,
		Filter: device.FilterConfig{MinimumPeriod: 10},
	}

	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(0), RawValue: "1"})
	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(2), RawValue: "2"})
	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(15), RawValue: "3"})

	if got := buf.LastSequence(); got != 2 {
		t.Errorf("LastSequence() = %d, want 2 (only the >10s gap clears the period threshold)", got)
	}
}

func TestTimestampExtractorSubstitutesIngestTimeWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.IgnoreTimestamps = true
	pl, buf := newHarness(t, cfg)
	h, _ := device.NewComponentHandle("c1")
	item := &device.DataItem{ID: "mode", Category: device.Event, Representation: device.Value, Component: h}

	before := time.Now()
	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(0), RawValue: "AUTOMATIC"})
	after := time.Now()

	obs, _ := buf.GetAt(1)
	if obs.Timestamp.Before(before) || obs.Timestamp.After(after) {
		t.Errorf("Timestamp = %v, want ingest time between %v and %v", obs.Timestamp, before, after)
	}
}

func TestConditionFaultAppearsInLatestCheckpoint(t *testing.T) {
	pl, buf := newHarness(t, config.Default())
	h, _ := device.NewComponentHandle("c1")
	item := &device.DataItem{ID: "cond1", Category: device.Condition, Component: h}

	pl.Run(&pipeline.Entity{Item: item, RawTimestamp: tsAt(0), RawValue: "FAULT|A1|2||overtemp"})

	obs, ok := buf.Latest().Observation("cond1")
	if !ok {
		t.Fatal("expected cond1 present in latest checkpoint")
	}
	cond, ok := obs.Payload.(observation.ConditionPayload)
	if !ok {
		t.Fatalf("payload type = %T, want ConditionPayload", obs.Payload)
	}
	if cond.Level != observation.Fault || cond.NativeCode != "A1" || cond.Text != "overtemp" {
		t.Errorf("unexpected condition payload: %+v", cond)
	}
}
