// Package sink implements the observation sink of spec §4.7: the single
// terminal pipeline stage through which every observation enters the
// circular buffer. It assigns the sequence, updates checkpoints, mirrors
// asset-affecting observations into the asset store, and wakes
// registered change-notifier observers — all without blocking on
// whatever a query thread is doing with the result. Grounded on
// original_source's sink-adjacent wiring in circular_buffer.hpp (the
// push-then-signal shape) and change_observer.hpp (the signaler fan-out).
package sink

import (
	"time"

	"github.com/mtconnect/agent/asset"
	"github.com/mtconnect/agent/buffer"
	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/notify"
	"github.com/mtconnect/agent/observation"
	"github.com/mtconnect/agent/stats"
)

// Sink is the single point through which observations become durable
// and visible to readers.
type Sink struct {
	buffer   *buffer.CircularBuffer
	assets   *asset.Store
	signaler *notify.Signaler
	metrics  *stats.Metrics // optional; nil disables metrics recording
}

// New builds a sink over buf and store, fanning sequence notifications
// out through signaler. metrics may be nil.
func New(buf *buffer.CircularBuffer, store *asset.Store, signaler *notify.Signaler, metrics *stats.Metrics) *Sink {
	return &Sink{buffer: buf, assets: store, signaler: signaler, metrics: metrics}
}

// Deliver pushes obs onto the buffer and wakes every registered
// observer with the assigned sequence. Used for every observation that
// doesn't itself mutate the asset store.
func (s *Sink) Deliver(obs *observation.Observation) uint64 {
	seq := s.buffer.Push(obs)
	s.signaler.SignalAll(seq)
	if s.metrics != nil && obs.Item != nil {
		s.metrics.IngestObservation(obs.Item.Category.String())
		s.metrics.BufferSequence.Set(float64(s.buffer.Sequence()))
	}
	return seq
}

// DeliverAssetUpsert upserts a into the asset store, builds the
// AssetEvent observation mirroring the result (with the hash the store
// just computed), and delivers it.
func (s *Sink) DeliverAssetUpsert(item *device.DataItem, timestamp time.Time, a asset.Asset) (uint64, *asset.Asset, error) {
	prev, err := s.assets.Upsert(a)
	if err != nil {
		return 0, nil, err
	}
	stored, _ := s.assets.Get(a.ID)
	obs := &observation.Observation{
		Item:      item,
		Timestamp: timestamp,
		Payload: observation.AssetEventPayload{
			AssetID:   stored.ID,
			AssetType: stored.Type,
			Hash:      stored.Hash,
			Action:    observation.AssetChanged,
		},
	}
	return s.Deliver(obs), prev, nil
}

// DeliverAssetRemove marks id removed in the asset store and delivers
// the mirroring AssetEvent observation. A no-op (0, nil, nil) if the
// asset didn't exist or was already removed.
func (s *Sink) DeliverAssetRemove(item *device.DataItem, id string, timestamp time.Time) (uint64, *asset.Asset, error) {
	removed, err := s.assets.Remove(id, timestamp)
	if err != nil {
		return 0, nil, err
	}
	if removed == nil {
		return 0, nil, nil
	}
	obs := &observation.Observation{
		Item:      item,
		Timestamp: timestamp,
		Payload: observation.AssetEventPayload{
			AssetID:   removed.ID,
			AssetType: removed.Type,
			Hash:      removed.Hash,
			Action:    observation.AssetRemoved,
		},
	}
	return s.Deliver(obs), removed, nil
}

// DeliverAssetCount delivers an AssetEvent observation reporting the
// current count of assets of a type, without touching the store.
func (s *Sink) DeliverAssetCount(item *device.DataItem, timestamp time.Time, assetType string, count int) uint64 {
	obs := &observation.Observation{
		Item:      item,
		Timestamp: timestamp,
		Payload: observation.AssetEventPayload{
			AssetType: assetType,
			Action:    observation.AssetCount,
			Count:     count,
		},
	}
	return s.Deliver(obs)
}
