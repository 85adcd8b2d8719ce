package ingest_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/ingest"
	"github.com/mtconnect/agent/pipeline"
)

func newItem(id string, category device.Category) *device.DataItem {
	handle, _ := device.NewComponentHandle("c1")
	return &device.DataItem{ID: id, Category: category, Representation: device.Value, Component: handle}
}

func TestSplitLineResolvesRegisteredItems(t *testing.T) {
	reg := map[string]*device.DataItem{"avail": newItem("avail", device.Event)}
	entities := ingest.SplitLine("2021-01-01T00:00:00Z|avail|AVAILABLE|unknown|7", reg)
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(entities))
	}
	if entities[0].Item.ID != "avail" || entities[0].RawValue != "AVAILABLE" {
		t.Errorf("entity = %+v, want avail/AVAILABLE", entities[0])
	}
}

func TestSplitLineConsumesConditionSubfieldsInPlace(t *testing.T) {
	reg := map[string]*device.DataItem{"c1": newItem("c1", device.Condition)}

	entities := ingest.SplitLine("T|c1|WARNING|CODE1|HIGH|Over...", reg)
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(entities))
	}
	if want := "WARNING|CODE1|HIGH|Over..."; entities[0].RawValue != want {
		t.Errorf("RawValue = %q, want %q", entities[0].RawValue, want)
	}

	entities = ingest.SplitLine("T|c1|NORMAL|CODE1||", reg)
	if len(entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(entities))
	}
	if want := "NORMAL|CODE1||"; entities[0].RawValue != want {
		t.Errorf("RawValue = %q, want %q", entities[0].RawValue, want)
	}
}

func TestSplitLineConditionFollowedByAnotherItem(t *testing.T) {
	reg := map[string]*device.DataItem{
		"c1": newItem("c1", device.Condition),
		"x":  newItem("x", device.Event),
	}
	entities := ingest.SplitLine("T|c1|WARNING|CODE1|HIGH|Over...|x|5", reg)
	if len(entities) != 2 {
		t.Fatalf("got %d entities, want 2: %+v", len(entities), entities)
	}
	if entities[0].Item.ID != "c1" || entities[0].RawValue != "WARNING|CODE1|HIGH|Over..." {
		t.Errorf("entity 0 = %+v, want c1/WARNING|CODE1|HIGH|Over...", entities[0])
	}
	if entities[1].Item.ID != "x" || entities[1].RawValue != "5" {
		t.Errorf("entity 1 = %+v, want x/5", entities[1])
	}
}

func TestSplitLineTooFewFieldsYieldsNothing(t *testing.T) {
	if got := ingest.SplitLine("2021-01-01T00:00:00Z|avail", nil); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

// recorder is a terminal Transform that appends every entity it sees, in
// the order its own strand delivers them, to a shared slice guarded by mu.
type recorder struct {
	mu   *sync.Mutex
	seen *[]string
}

func (recorder) Name() string         { return "recorder" }
func (recorder) Guard() pipeline.Guard { return pipeline.AnyEntity }
func (r recorder) Apply(e *pipeline.Entity) (*pipeline.Entity, bool) {
	r.mu.Lock()
	*r.seen = append(*r.seen, e.RawValue)
	r.mu.Unlock()
	return e, true
}

func TestExecutorRunsEachSourceToCompletion(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	pl := pipeline.New(recorder{mu: &mu, seen: &seen})

	reg := map[string]*device.DataItem{"x": newItem("x", device.Event)}
	src1 := ingest.Source{Name: "s1", Reader: strings.NewReader("t1|x|1\nt2|x|2\n"), Items: reg}
	src2 := ingest.Source{Name: "s2", Reader: strings.NewReader("t1|x|3\nt2|x|4\n"), Items: reg}

	exec := ingest.NewExecutor(pl, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := exec.Run(ctx, []ingest.Source{src1, src2}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 4 {
		t.Fatalf("got %d entities recorded, want 4: %v", len(seen), seen)
	}

	var s1Order, s2Order []string
	for _, v := range seen {
		switch v {
		case "1", "2":
			s1Order = append(s1Order, v)
		case "3", "4":
			s2Order = append(s2Order, v)
		}
	}
	if len(s1Order) != 2 || s1Order[0] != "1" || s1Order[1] != "2" {
		t.Errorf("source s1's own order was not preserved: %v", s1Order)
	}
	if len(s2Order) != 2 || s2Order[0] != "3" || s2Order[1] != "4" {
		t.Errorf("source s2's own order was not preserved: %v", s2Order)
	}
}

func TestExecutorPropagatesStrandError(t *testing.T) {
	pl := pipeline.New()
	reg := map[string]*device.DataItem{}
	src := ingest.Source{Name: "broken", Reader: &errReader{}, Items: reg}

	exec := ingest.NewExecutor(pl, nil)
	if err := exec.Run(context.Background(), []ingest.Source{src}); err == nil {
		t.Error("Run() = nil, want the reader's error propagated")
	}
}

type errReader struct{}

func (*errReader) Read([]byte) (int, error) { return 0, errBoom }

type boomErr string

func (e boomErr) Error() string { return string(e) }

var errBoom = boomErr("boom")
