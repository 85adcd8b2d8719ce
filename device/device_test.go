package device_test

import (
	"testing"

	"github.com/mtconnect/agent/device"
)

func TestComponentHandleResolveWhileAlive(t *testing.T) {
	h, teardown := device.NewComponentHandle("c1")
	defer teardown()

	id, ok := h.Resolve()
	if !ok || id != "c1" {
		t.Errorf("Resolve() = (%q, %v), want (c1, true)", id, ok)
	}
}

func TestComponentHandleResolveAfterTeardown(t *testing.T) {
	h, teardown := device.NewComponentHandle("c1")
	teardown()

	if _, ok := h.Resolve(); ok {
		t.Error("Resolve() = true after teardown, want false")
	}
}

func TestComponentHandleZeroValueIsNeverAlive(t *testing.T) {
	var h device.ComponentHandle
	if _, ok := h.Resolve(); ok {
		t.Error("zero-value ComponentHandle.Resolve() = true, want false")
	}
}

func TestDataItemOrphanedTracksComponentTeardown(t *testing.T) {
	h, teardown := device.NewComponentHandle("c1")
	item := &device.DataItem{ID: "x1", Component: h}

	if item.Orphaned() {
		t.Error("Orphaned() = true before teardown, want false")
	}
	teardown()
	if !item.Orphaned() {
		t.Error("Orphaned() = false after teardown, want true")
	}
}

func TestCategoryAndRepresentationStrings(t *testing.T) {
	if got := device.Condition.String(); got != "CONDITION" {
		t.Errorf("Condition.String() = %q, want CONDITION", got)
	}
	if got := device.DataSet.String(); got != "DATA_SET" {
		t.Errorf("DataSet.String() = %q, want DATA_SET", got)
	}
	if got := device.Representation(99).String(); got != "UNKNOWN" {
		t.Errorf("unknown representation.String() = %q, want UNKNOWN", got)
	}
}
