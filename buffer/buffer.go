// Package buffer implements the fixed-capacity sequence ring of spec
// §4.3: the sliding window of retained observations plus the "latest",
// "first", and periodic checkpoints that make a checkpoint-at-sequence
// lookup cheap without replaying the whole buffer. Grounded directly on
// original_source/src/circular_buffer.hpp's CircularBuffer, translated
// from dlib's abstract-addressed sliding_buffer_kernel_1 to a plain Go
// slice ring (see SPEC_FULL.md's Design Notes — dlib isn't part of the
// adopted dependency stack).
package buffer

import (
	"sync"
	"time"

	"github.com/mtconnect/agent/checkpoint"
	"github.com/mtconnect/agent/coreerr"
	"github.com/mtconnect/agent/idgen"
	"github.com/mtconnect/agent/observation"
	"github.com/mtconnect/agent/stats"
)

// CircularBuffer is the single sequence-numbered store of record for
// every observation accepted by the sink. Safe for concurrent use.
type CircularBuffer struct {
	id string

	mu sync.Mutex

	slots    []*observation.Observation
	capacity uint64

	sequence uint64 // next sequence number to assign; starts at 1

	latest *checkpoint.Checkpoint
	first  *checkpoint.Checkpoint

	checkpoints     []*checkpoint.Checkpoint
	checkpointFreq  uint64
	checkpointCount uint64

	metrics *stats.Metrics // optional; nil disables metrics recording
}

// New builds a buffer with capacity 2^bufferSizeExp and the given
// checkpoint frequency (spec §4.3).
func New(bufferSizeExp uint, checkpointFreq int) *CircularBuffer {
	capacity := uint64(1) << bufferSizeExp
	freq := uint64(checkpointFreq)
	count := capacity/freq + 1

	b := &CircularBuffer{
		id:              idgen.NewOrEmpty(),
		slots:           make([]*observation.Observation, capacity),
		capacity:        capacity,
		sequence:        1,
		latest:          checkpoint.New(),
		first:           checkpoint.New(),
		checkpoints:     make([]*checkpoint.Checkpoint, count),
		checkpointFreq:  freq,
		checkpointCount: count,
	}
	for i := range b.checkpoints {
		b.checkpoints[i] = checkpoint.New()
	}
	return b
}

// ID is this buffer instance's generated identifier, useful for log lines
// distinguishing multiple buffers in the same process.
func (b *CircularBuffer) ID() string { return b.id }

// SetMetrics wires m so buffer occupancy and checkpoint-replay activity
// are recorded. metrics may be nil, which disables recording.
func (b *CircularBuffer) SetMetrics(m *stats.Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
}

func (b *CircularBuffer) reportOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	occupancy := b.sequence - 1
	if occupancy > b.capacity {
		occupancy = b.capacity
	}
	b.metrics.BufferOccupancy.Set(float64(occupancy))
}

func (b *CircularBuffer) idx(seq uint64) uint64 { return (seq - 1) % b.capacity }

// Push assigns the next sequence number to obs, stores it (evicting
// whatever occupied that slot), folds it into the live checkpoints, and
// returns the assigned sequence.
func (b *CircularBuffer) Push(obs *observation.Observation) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.sequence
	stamped := obs.WithSequence(seq)

	b.slots[b.idx(seq)] = stamped
	b.latest.Add(stamped)

	if seq == 1 {
		b.first.Add(stamped)
	}

	index := b.idx(seq)
	if b.checkpointCount > 0 && index%b.checkpointFreq == 0 {
		b.checkpoints[index/b.checkpointFreq] = b.latest.Copy(nil)
	}

	b.sequence++
	b.reportOccupancyLocked()

	// The window's oldest retained sequence just advanced by one (once
	// wraparound has begun); fold the observation that now anchors it
	// into the "first" checkpoint so it stays in sync incrementally.
	if b.sequence > b.capacity {
		newFirst := b.sequence - b.capacity
		if s := b.slots[b.idx(newFirst)]; s != nil {
			b.first.Add(s)
		}
	}

	return seq
}

// Sequence returns the next sequence number that will be assigned.
func (b *CircularBuffer) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequence
}

// Capacity returns the buffer's slot count.
func (b *CircularBuffer) Capacity() uint64 { return b.capacity }

func (b *CircularBuffer) firstSequenceLocked() uint64 {
	if b.sequence > b.capacity {
		return b.sequence - b.capacity
	}
	return 1
}

// FirstSequence returns the inclusive lower bound of the retained window.
func (b *CircularBuffer) FirstSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstSequenceLocked()
}

// LastSequence returns the inclusive upper bound of the retained window
// (0 if nothing has been pushed yet).
func (b *CircularBuffer) LastSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequence - 1
}

// GetAt returns the observation at sequence, O(1). A sequence older than
// FirstSequence fails with coreerr's OutOfRange; a sequence at or beyond
// the next-to-assign sequence simply returns not-found (no error).
func (b *CircularBuffer) GetAt(seq uint64) (*observation.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	first := b.firstSequenceLocked()
	if seq < first {
		return nil, coreerr.OutOfRange(seq, first)
	}
	if seq >= b.sequence {
		return nil, nil
	}
	return b.slots[b.idx(seq)], nil
}

// CheckpointAt builds a Checkpoint reflecting buffer state through seq
// inclusive, by copying the nearest periodic (or "first") checkpoint and
// replaying every buffered observation from there forward.
func (b *CircularBuffer) CheckpointAt(seq uint64, filter map[string]struct{}) (*checkpoint.Checkpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	first := b.firstSequenceLocked()
	if seq < first {
		return nil, coreerr.OutOfRange(seq, first)
	}
	if seq >= b.sequence {
		seq = b.sequence - 1
	}

	pos := b.idx(seq)
	firstIdx := b.idx(first)
	checkIndex := pos / b.checkpointFreq
	closestCp := checkIndex * b.checkpointFreq

	var base *checkpoint.Checkpoint
	var start uint64
	if firstIdx > closestCp && pos >= firstIdx {
		base = b.first
		start = firstIdx + 1
	} else {
		base = b.checkpoints[checkIndex]
		start = closestCp + 1
	}

	result := base.Copy(filter)
	if start <= pos {
		replayStart := time.Now()
		for i := start; i <= pos; i++ {
			if obs := b.slots[i]; obs != nil {
				result.Add(obs)
			}
		}
		if b.metrics != nil {
			b.metrics.ObserveCheckpointReplay(time.Since(replayStart))
		}
	}
	return result, nil
}

// Range walks the buffer forward (count >= 0) or backward (count < 0)
// starting at from (hasFrom distinguishes an explicit start from "use the
// window boundary"), collecting up to |count| observations whose
// data-item id passes filter. It returns the observations in the order
// visited, the first unvisited sequence, and whether the walk reached the
// window boundary.
func (b *CircularBuffer) Range(from uint64, hasFrom bool, count int, filter map[string]struct{}) ([]*observation.Observation, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	firstSeq := b.firstSequenceLocked()

	var start uint64
	var limit int
	var inc int64
	if count >= 0 {
		if !hasFrom || from <= firstSeq {
			start = firstSeq
		} else {
			start = from
		}
		limit = count
		inc = 1
	} else {
		if !hasFrom || from >= b.sequence {
			if b.sequence > 0 {
				start = b.sequence - 1
			}
		} else {
			start = from
		}
		limit = -count
		inc = -1
	}

	var results []*observation.Observation
	i := int64(start)
	for len(results) < limit && uint64(i) < b.sequence && i >= 0 && uint64(i) >= firstSeq {
		obs := b.slots[b.idx(uint64(i))]
		if obs != nil && passesFilter(obs, filter) {
			results = append(results, obs)
		}
		i += inc
	}

	next := uint64(i)
	var endOfBuffer bool
	if count >= 0 {
		endOfBuffer = uint64(i) >= b.sequence
	} else {
		endOfBuffer = i < int64(firstSeq)
	}
	return results, next, endOfBuffer
}

func passesFilter(obs *observation.Observation, filter map[string]struct{}) bool {
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[obs.DataItemID()]
	return ok
}

// Latest returns the continuously-updated checkpoint of current state.
// The returned Checkpoint is not itself synchronized (see package
// checkpoint's doc comment) and keeps receiving concurrent Push-driven
// updates, so callers that only need one data item's last-observed
// value should prefer LatestObservation instead of reading through the
// returned pointer unlocked.
func (b *CircularBuffer) Latest() *checkpoint.Checkpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// LatestObservation reads one data item's last-observed value out of
// the live checkpoint under the buffer's own lock, safe for concurrent
// use alongside Push.
func (b *CircularBuffer) LatestObservation(dataItemID string) (*observation.Observation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest.Observation(dataItemID)
}
