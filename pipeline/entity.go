// Package pipeline implements the ingest pipeline of spec §4.5: an
// ordered, splice-editable chain of named transforms carrying a value
// from raw adapter text to a delivered Observation. Grounded on spec.md
// §4.5 directly (the teacher has no analogous staged-transform chain);
// the splice/guard contract and per-transform naming follow the shape of
// the teacher's own request-handling middleware chains (e.g.
// `ais/prxtrybck.go`'s ordered handler wrapping), adapted to this
// domain.
package pipeline

import (
	"time"

	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/observation"
)

// Entity is the value threaded through the pipeline. It enters with
// Item/RawTimestamp/RawValue filled in; ShdrTokenMapper builds
// Observation; later stages refine it, TimestampExtractor sets
// Timestamp, and DeliverObservation hands it to the sink.
type Entity struct {
	Item *device.DataItem

	// RawTimestamp/RawValue are exactly what the adapter sent, before
	// TimestampExtractor and the representation-specific parse run.
	RawTimestamp string
	RawValue     string

	Timestamp    time.Time
	TimestampSet bool

	Observation *observation.Observation
}

// Guard describes the entity shapes a transform accepts. A transform
// whose guard rejects the incoming entity forwards it unchanged.
type Guard func(e *Entity) bool

// AnyEntity accepts every entity unconditionally.
func AnyEntity(*Entity) bool { return true }

// Transform is one named stage of the pipeline.
type Transform interface {
	Name() string
	Guard() Guard
	Apply(e *Entity) (*Entity, bool)
}
