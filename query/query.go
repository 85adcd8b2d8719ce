// Package query implements the snapshot/query facade of spec §4.8: a
// thin read-only layer over the circular buffer and asset store, used by
// request-handler threads. It holds no state of its own.
package query

import (
	"time"

	"github.com/mtconnect/agent/asset"
	"github.com/mtconnect/agent/buffer"
	"github.com/mtconnect/agent/checkpoint"
	"github.com/mtconnect/agent/observation"
)

// Service is the query-side facade over a buffer and asset store.
type Service struct {
	buffer *buffer.CircularBuffer
	assets *asset.Store
}

// New builds a query service over buf and store.
func New(buf *buffer.CircularBuffer, store *asset.Store) *Service {
	return &Service{buffer: buf, assets: store}
}

// Current returns the checkpoint for the current state (at is absent) or
// for the state as of sequence at, restricted to filter if non-nil.
func (s *Service) Current(filter map[string]struct{}, at uint64, hasAt bool) (*checkpoint.Checkpoint, error) {
	if !hasAt {
		return s.buffer.Latest().Copy(filter), nil
	}
	return s.buffer.CheckpointAt(at, filter)
}

// Sample delegates to the buffer's range walk.
func (s *Service) Sample(from uint64, hasFrom bool, count int, filter map[string]struct{}) (observations []*observation.Observation, next uint64, endOfBuffer bool) {
	return s.buffer.Range(from, hasFrom, count, filter)
}

// FirstSequence and LastSequence expose the buffer's retained window.
func (s *Service) FirstSequence() uint64 { return s.buffer.FirstSequence() }
func (s *Service) LastSequence() uint64  { return s.buffer.LastSequence() }

// Asset is a primary-index lookup on the asset store.
func (s *Service) Asset(id string) (asset.Asset, bool) { return s.assets.Get(id) }

// AssetsByDevice and AssetsByType delegate to the asset store's
// secondary indexes.
func (s *Service) AssetsByDevice(uuid string) map[string]asset.Asset { return s.assets.ByDevice(uuid) }
func (s *Service) AssetsByType(t string) map[string]asset.Asset       { return s.assets.ByType(t) }

// AssetCounts reports the per-type and per-device removed-asset counts.
func (s *Service) AssetCounts() (byType, byDevice map[string]int) {
	return s.assets.CountsByType(), s.assets.CountsByDevice()
}

// AssetUpdatedAt is a convenience accessor mirroring what a caller would
// otherwise compute from Asset(id).Timestamp; kept here since query code
// frequently needs "when was this last touched" without the rest of the
// document.
func (s *Service) AssetUpdatedAt(id string) (time.Time, bool) {
	a, ok := s.assets.Get(id)
	if !ok {
		return time.Time{}, false
	}
	return a.Timestamp, true
}
