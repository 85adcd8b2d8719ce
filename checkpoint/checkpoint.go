// Package checkpoint implements the per-data-item snapshot of spec §4.2:
// condition-chain merge/clear, data-set/table accumulation, filtering,
// and orphan-skipping reads. Grounded directly on
// original_source/src/checkpoint.cpp's addObservation/dataSetDifference,
// translated to Go's persistent-list idiom for the condition chain per
// spec §9's Design Notes.
//
// Checkpoint is not internally synchronized: the CircularBuffer (§4.3)
// owns the lock that makes concurrent Add/Copy/read calls safe, exactly
// as the original's Checkpoint has no mutex of its own and relies on
// CircularBuffer's recursive lock.
package checkpoint

import (
	"sort"

	"github.com/mtconnect/agent/observation"
)

// Checkpoint is a mapping from data-item id to the most recent
// observation for that id (or, for conditions, the head of the active
// condition chain).
type Checkpoint struct {
	events    map[string]*observation.Observation
	filterSet map[string]struct{}
	hasFilter bool
}

// New returns an empty, unfiltered checkpoint.
func New() *Checkpoint {
	return &Checkpoint{events: make(map[string]*observation.Observation)}
}

// NewFiltered returns an empty checkpoint that only ever tracks ids in
// filterSet.
func NewFiltered(filterSet map[string]struct{}) *Checkpoint {
	c := New()
	if len(filterSet) > 0 {
		c.hasFilter = true
		c.filterSet = filterSet
	}
	return c
}

// Add inserts or merges obs by data-item id, per spec §4.2.
func (c *Checkpoint) Add(obs *observation.Observation) {
	id := obs.DataItemID()
	if c.hasFilter {
		if _, ok := c.filterSet[id]; !ok {
			return
		}
	}

	prev, exists := c.events[id]
	if !exists {
		c.events[id] = obs
		return
	}

	switch obs.Payload.(type) {
	case observation.ConditionPayload:
		c.events[id] = mergeCondition(prev, obs)
	case observation.DataSetPayload, observation.TablePayload:
		c.events[id] = mergeDataSetLike(prev, obs)
	default:
		c.events[id] = obs
	}
}

// Copy returns a new Checkpoint holding the same observations (shared by
// reference; observations are immutable so this is safe), restricted to
// filter if non-nil, or to this checkpoint's own filter otherwise.
func (c *Checkpoint) Copy(filter map[string]struct{}) *Checkpoint {
	effective := filter
	if effective == nil && c.hasFilter {
		effective = c.filterSet
	}
	nc := &Checkpoint{events: make(map[string]*observation.Observation, len(c.events))}
	if len(effective) > 0 {
		nc.hasFilter = true
		nc.filterSet = effective
	}
	for id, obs := range c.events {
		if len(effective) > 0 {
			if _, ok := effective[id]; !ok {
				continue
			}
		}
		nc.events[id] = obs
	}
	return nc
}

// Filter narrows this checkpoint in place to filterSet, dropping any
// tracked id not in it. An empty/nil filterSet clears filtering entirely
// (kept deliberately different from the original's apparent behavior of
// silently retaining stale entries on an empty filter).
func (c *Checkpoint) Filter(filterSet map[string]struct{}) {
	if len(filterSet) == 0 {
		c.hasFilter = false
		c.filterSet = nil
		return
	}
	c.hasFilter = true
	c.filterSet = filterSet
	for id := range c.events {
		if _, ok := filterSet[id]; !ok {
			delete(c.events, id)
		}
	}
}

// Observation does a direct lookup by data-item id.
func (c *Checkpoint) Observation(id string) (*observation.Observation, bool) {
	obs, ok := c.events[id]
	return obs, ok
}

// Observations returns, for each present key, the stored observation —
// for conditions, the chain unrolled oldest-to-newest so each active
// condition is reported individually (spec §4.2). Entries whose DataItem
// has been orphaned are silently skipped (spec §4.2 "Orphan handling").
// Results are ordered by data-item id for determinism.
func (c *Checkpoint) Observations() []*observation.Observation {
	ids := make([]string, 0, len(c.events))
	for id := range c.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*observation.Observation
	for _, id := range ids {
		obs := c.events[id]
		if obs.Item != nil && obs.Item.Orphaned() {
			continue
		}
		if _, ok := obs.Payload.(observation.ConditionPayload); ok {
			out = append(out, unrollChain(obs)...)
		} else {
			out = append(out, obs)
		}
	}
	return out
}

// unrollChain walks the condition chain from head (newest) to the root
// (oldest) and returns it reordered oldest-first.
func unrollChain(head *observation.Observation) []*observation.Observation {
	var newestFirst []*observation.Observation
	cur := head
	for cur != nil {
		newestFirst = append(newestFirst, cur)
		cp := cur.Payload.(observation.ConditionPayload)
		cur = cp.Prev
	}
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst
}

// mergeCondition implements the condition-chain merge algorithm of spec
// §4.2: NORMAL clears by code (or entirely, if no code); UNAVAILABLE
// replaces the whole chain; WARNING/FAULT replaces an existing entry with
// the same code in place, or else prepends as the new head.
func mergeCondition(prevHead, incoming *observation.Observation) *observation.Observation {
	cp := incoming.Payload.(observation.ConditionPayload)

	switch cp.Level {
	case observation.Normal:
		if cp.NativeCode == "" {
			return singleNormal(incoming)
		}
		newHead, found := spliceChain(prevHead, cp.NativeCode, nil)
		if !found {
			// Not sure whether to register a code-specific NORMAL when
			// no matching active condition exists; leave the chain as is.
			return prevHead
		}
		if newHead == nil {
			return singleNormal(incoming)
		}
		return newHead

	case observation.Unavailable:
		return &observation.Observation{
			Item:      incoming.Item,
			Timestamp: incoming.Timestamp,
			Sequence:  incoming.Sequence,
			Payload: observation.ConditionPayload{
				Level:          observation.Unavailable,
				NativeCode:     cp.NativeCode,
				NativeSeverity: cp.NativeSeverity,
				Qualifier:      cp.Qualifier,
				Text:           cp.Text,
			},
		}

	default: // Warning or Fault
		if newHead, found := spliceChain(prevHead, cp.NativeCode, incoming); found {
			return newHead
		}
		chained := cp
		chained.Prev = prevHead
		return &observation.Observation{
			Item:      incoming.Item,
			Timestamp: incoming.Timestamp,
			Sequence:  incoming.Sequence,
			Payload:   chained,
		}
	}
}

func singleNormal(like *observation.Observation) *observation.Observation {
	return &observation.Observation{
		Item:      like.Item,
		Timestamp: like.Timestamp,
		Sequence:  like.Sequence,
		Payload:   observation.ConditionPayload{Level: observation.Normal},
	}
}

// spliceChain finds the first node in the chain rooted at head whose
// NativeCode equals code. If replacement is nil, that node is removed
// (its Prev becomes the splice point); otherwise replacement takes its
// place, inheriting its Prev. Every node strictly newer than the match is
// cloned (copy-on-write); the unchanged tail is shared. Returns the new
// head and whether a match was found.
func spliceChain(head *observation.Observation, code string, replacement *observation.Observation) (*observation.Observation, bool) {
	if head == nil {
		return nil, false
	}
	cp := head.Payload.(observation.ConditionPayload)

	if cp.NativeCode == code {
		if replacement == nil {
			return cp.Prev, true
		}
		rp := replacement.Payload.(observation.ConditionPayload)
		rp.Prev = cp.Prev
		return &observation.Observation{
			Item:      replacement.Item,
			Timestamp: replacement.Timestamp,
			Sequence:  replacement.Sequence,
			Payload:   rp,
		}, true
	}

	newPrev, found := spliceChain(cp.Prev, code, replacement)
	if !found {
		return head, false
	}
	clonedPayload := cp
	clonedPayload.Prev = newPrev
	return &observation.Observation{
		Item:      head.Item,
		Timestamp: head.Timestamp,
		Sequence:  head.Sequence,
		Payload:   clonedPayload,
	}, true
}

// dataSetView is the common shape shared by DataSetPayload and
// TablePayload, used so merge logic doesn't need to be duplicated for
// both representations.
type dataSetView struct {
	Set            observation.DataSet
	ResetTriggered string
	Unavailable    bool
}

func extractDataSet(p observation.Payload) (dataSetView, bool) {
	switch v := p.(type) {
	case observation.DataSetPayload:
		return dataSetView{v.Set, v.ResetTriggered, v.Unavailable}, true
	case observation.TablePayload:
		return dataSetView{v.Set, v.ResetTriggered, v.Unavailable}, true
	default:
		return dataSetView{}, false
	}
}

// mergeDataSetLike implements the DataSet/Table merge rule of spec §4.2:
// replace wholesale on reset-trigger or UNAVAILABLE (either side); else
// union-merge, with incoming entries overriding same-key stored entries
// and removed entries deleting their key.
func mergeDataSetLike(prev, incoming *observation.Observation) *observation.Observation {
	prevView, _ := extractDataSet(prev.Payload)
	incView, ok := extractDataSet(incoming.Payload)
	if !ok {
		return incoming
	}

	if incView.ResetTriggered != "" || incView.Unavailable || prevView.Unavailable {
		return incoming
	}

	merged := prevView.Set.Clone()
	for _, e := range incView.Set.Entries {
		if e.Removed {
			removeEntry(merged, e.Key)
		} else {
			upsertEntry(merged, e)
		}
	}

	switch incoming.Payload.(type) {
	case observation.TablePayload:
		return &observation.Observation{
			Item:      incoming.Item,
			Timestamp: incoming.Timestamp,
			Sequence:  incoming.Sequence,
			Payload:   observation.TablePayload{Set: *merged, ResetTriggered: incView.ResetTriggered},
		}
	default:
		return &observation.Observation{
			Item:      incoming.Item,
			Timestamp: incoming.Timestamp,
			Sequence:  incoming.Sequence,
			Payload:   observation.DataSetPayload{Set: *merged, ResetTriggered: incView.ResetTriggered},
		}
	}
}

func removeEntry(set *observation.DataSet, key string) {
	for i, e := range set.Entries {
		if e.Key == key {
			set.Entries = append(set.Entries[:i], set.Entries[i+1:]...)
			return
		}
	}
}

func upsertEntry(set *observation.DataSet, e observation.Entry) {
	for i := range set.Entries {
		if set.Entries[i].Key == e.Key {
			set.Entries[i] = e
			return
		}
	}
	set.Entries = append(set.Entries, e)
}

// DataSetUnchanged reports whether obs — a DataSet/Table observation —
// would add nothing to what this checkpoint already has stored for its
// data item: every entry it carries already matches the stored value.
// Supplemented from original_source's Checkpoint::dataSetDifference (see
// SPEC_FULL.md). No ingest pipeline stage calls it: DeltaFilter's guard
// admits numeric scalar observations only.
func (c *Checkpoint) DataSetUnchanged(obs *observation.Observation) bool {
	incView, ok := extractDataSet(obs.Payload)
	if !ok || len(incView.Set.Entries) == 0 || incView.ResetTriggered != "" {
		return false
	}
	prev, exists := c.events[obs.DataItemID()]
	if !exists {
		return false
	}
	prevView, ok := extractDataSet(prev.Payload)
	if !ok {
		return false
	}
	for _, e := range incView.Set.Entries {
		old, found := prevView.Set.Get(e.Key)
		if !found {
			return false
		}
		if old.Removed != e.Removed {
			return false
		}
		if !e.Removed && !old.Value.Equal(e.Value) {
			return false
		}
	}
	return true
}
