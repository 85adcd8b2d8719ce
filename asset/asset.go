// Package asset implements the bounded, indexed asset store of spec
// §4.4: a primary id index, type and device secondary indexes, and
// insertion-ordered eviction once capacity is exceeded. Grounded on
// original_source/src/asset_buffer.hpp for the index/eviction shape;
// the primary and secondary indexes are backed by an in-memory
// github.com/tidwall/buntdb database rather than hand-rolled maps, and
// content hashing uses github.com/OneOfOne/xxhash over a
// github.com/json-iterator/go canonicalized document — see
// DESIGN.md's Open Question resolution on hash canonicalization.
package asset

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/mtconnect/agent/coreerr"
	"github.com/mtconnect/agent/stats"
)

var canonicalJSON = jsoniter.Config{SortMapKeys: true}.Froze()

// Asset is one stored document: an opaque, as-delivered body plus the
// bookkeeping fields the store itself manages.
type Asset struct {
	ID         string
	Type       string
	DeviceUUID string
	Timestamp  time.Time
	Removed    bool
	Body       string // opaque document, exactly as the adapter delivered it
	Hash       string // content hash of the canonicalized Body
}

type record struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	DeviceUUID string    `json:"device"`
	Timestamp  time.Time `json:"timestamp"`
	Removed    bool      `json:"removed"`
	Body       string    `json:"body"`
	Hash       string    `json:"hash"`
}

func toRecord(a Asset) record {
	return record{a.ID, a.Type, a.DeviceUUID, a.Timestamp, a.Removed, a.Body, a.Hash}
}

func (r record) toAsset() Asset {
	return Asset{r.ID, r.Type, r.DeviceUUID, r.Timestamp, r.Removed, r.Body, r.Hash}
}

// Store is the bounded asset store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	db       *buntdb.DB
	capacity int

	order    *list.List               // insertion/touch order, front = oldest
	elements map[string]*list.Element // asset id -> its list element

	removedByType   map[string]int
	removedByDevice map[string]int

	metrics *stats.Metrics // optional; nil disables metrics recording
}

// New opens a store with the given capacity, backed by an in-memory
// buntdb database with secondary indexes on type and device.
func New(capacity int) (*Store, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex("by_type", "*", buntdb.IndexJSON("type")); err != nil {
		return nil, err
	}
	if err := db.CreateIndex("by_device", "*", buntdb.IndexJSON("device")); err != nil {
		return nil, err
	}
	return &Store{
		db:              db,
		capacity:        capacity,
		order:           list.New(),
		elements:        make(map[string]*list.Element),
		removedByType:   make(map[string]int),
		removedByDevice: make(map[string]int),
	}, nil
}

// Close releases the underlying buntdb database.
func (s *Store) Close() error { return s.db.Close() }

// SetMetrics wires m so store size and eviction counts are recorded.
// metrics may be nil, which disables recording.
func (s *Store) SetMetrics(m *stats.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

func (s *Store) reportSizeLocked() {
	if s.metrics != nil {
		s.metrics.AssetStoreSize.Set(float64(s.order.Len()))
	}
}

func canonicalize(body string) string {
	var v interface{}
	if err := jsoniter.UnmarshalFromString(body, &v); err != nil {
		// Not JSON (or not valid JSON): hash the raw bytes as delivered.
		return body
	}
	out, err := canonicalJSON.MarshalToString(v)
	if err != nil {
		return body
	}
	return out
}

func hashDoc(canonical string) string {
	return fmt.Sprintf("%016x", xxhash.ChecksumString64(canonical))
}

// Upsert stores asset, assigning a timestamp if none was given and
// computing its content hash. If an asset with this id already exists
// with the same hash and the incoming value isn't a removal, only the
// timestamp and list position are updated and the prior version is
// returned. Otherwise the asset is inserted or replaced; eviction runs
// first if a brand-new, non-removed asset would exceed capacity.
func (s *Store) Upsert(a Asset) (*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	a.Hash = hashDoc(canonicalize(a.Body))

	existing, exists := s.getLocked(a.ID)
	var prev *Asset
	if exists {
		p := existing
		prev = &p
	}

	if exists && existing.Type != a.Type {
		return nil, coreerr.DuplicateTypeMismatch(a.ID, existing.Type, a.Type)
	}

	if exists && existing.Hash == a.Hash && !a.Removed {
		existing.Timestamp = a.Timestamp
		if err := s.putLocked(existing); err != nil {
			return nil, err
		}
		s.touchLocked(a.ID)
		return prev, nil
	}

	if !exists && !a.Removed && s.order.Len() >= s.capacity && s.capacity > 0 {
		s.evictOldestLocked()
	}

	if err := s.putLocked(a); err != nil {
		return nil, err
	}
	s.touchLocked(a.ID)
	s.reportSizeLocked()

	wasRemoved := exists && existing.Removed
	if a.Removed && !wasRemoved {
		s.removedByType[a.Type]++
		s.removedByDevice[a.DeviceUUID]++
	} else if !a.Removed && wasRemoved {
		s.removedByType[existing.Type]--
		s.removedByDevice[existing.DeviceUUID]--
	}

	return prev, nil
}

// Remove marks the asset id as removed, assigning timestamp (or now, if
// zero) as its removal time, and returns a copy of the updated asset, from
// which the caller builds the AssetEvent. A no-op (nil, nil) if the asset
// doesn't exist or is already removed.
func (s *Store) Remove(id string, timestamp time.Time) (*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.getLocked(id)
	if !exists || existing.Removed {
		return nil, nil
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	existing.Removed = true
	existing.Timestamp = timestamp
	if err := s.putLocked(existing); err != nil {
		return nil, err
	}
	s.touchLocked(id)
	s.removedByType[existing.Type]++
	s.removedByDevice[existing.DeviceUUID]++
	cp := existing
	return &cp, nil
}

// Get is a primary-index lookup.
func (s *Store) Get(id string) (Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

// ByDevice returns a snapshot of every asset owned by device uuid.
func (s *Store) ByDevice(uuid string) map[string]Asset {
	return s.ascendEqual("by_device", fmt.Sprintf(`{"device":%q}`, uuid))
}

// ByType returns a snapshot of every asset of the given type.
func (s *Store) ByType(assetType string) map[string]Asset {
	return s.ascendEqual("by_type", fmt.Sprintf(`{"type":%q}`, assetType))
}

func (s *Store) ascendEqual(index, pivot string) map[string]Asset {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Asset)
	_ = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendEqual(index, pivot, func(key, value string) bool {
			var r record
			if err := jsoniter.UnmarshalFromString(value, &r); err == nil {
				out[key] = r.toAsset()
			}
			return true
		})
	})
	return out
}

// CountsByType returns a snapshot of the per-type removed-asset counts.
func (s *Store) CountsByType() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.removedByType))
	for k, v := range s.removedByType {
		out[k] = v
	}
	return out
}

// CountsByDevice returns a snapshot of the per-device removed-asset counts.
func (s *Store) CountsByDevice() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.removedByDevice))
	for k, v := range s.removedByDevice {
		out[k] = v
	}
	return out
}

// Len returns the number of assets currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Store) getLocked(id string) (Asset, bool) {
	var out Asset
	var found bool
	_ = s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(id)
		if err != nil {
			return nil
		}
		var r record
		if err := jsoniter.UnmarshalFromString(val, &r); err != nil {
			return err
		}
		out = r.toAsset()
		found = true
		return nil
	})
	return out, found
}

func (s *Store) putLocked(a Asset) error {
	encoded, err := jsoniter.MarshalToString(toRecord(a))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(a.ID, encoded, nil)
		return err
	})
}

func (s *Store) touchLocked(id string) {
	if elem, ok := s.elements[id]; ok {
		s.order.MoveToBack(elem)
		return
	}
	s.elements[id] = s.order.PushBack(id)
}

func (s *Store) evictOldestLocked() {
	oldest := s.order.Front()
	if oldest == nil {
		return
	}
	id := oldest.Value.(string)
	s.order.Remove(oldest)
	delete(s.elements, id)

	if a, ok := s.getLocked(id); ok {
		_ = s.db.Update(func(tx *buntdb.Tx) error {
			_, err := tx.Delete(id)
			return err
		})
		if a.Removed {
			s.removedByType[a.Type]--
			s.removedByDevice[a.DeviceUUID]--
		}
		if s.metrics != nil {
			s.metrics.AssetEvictions.Inc()
		}
		s.reportSizeLocked()
	}
}
