package jamstate

import "github.com/ethereum/go-ethereum/common"

// ReportMetadata is a report's scheduling footprint: enough to know when its
// dependencies are satisfied and which service it targets, without holding
// the full work report (§4.7).
type ReportMetadata struct {
	Slot         uint32
	ServiceID    uint32
	PackageHash  common.Hash
	Dependencies []common.Hash
}

func cloneMetadata(in []ReportMetadata) []ReportMetadata {
	if in == nil {
		return nil
	}
	out := make([]ReportMetadata, len(in))
	copy(out, in)
	for i := range out {
		out[i].Dependencies = append([]common.Hash(nil), in[i].Dependencies...)
	}
	return out
}

// ReadyQueue parks reports whose dependencies are not yet satisfied, as a
// ring buffer indexed by slot mod epoch length (§4.7, §9 "advanced each
// slot by a wrap-shift").
type ReadyQueue struct {
	EpochLength uint32
	slots       [][]ReportMetadata
}

func NewReadyQueue(epochLength uint32) *ReadyQueue {
	if epochLength == 0 {
		epochLength = 1
	}
	return &ReadyQueue{EpochLength: epochLength, slots: make([][]ReportMetadata, epochLength)}
}

func (q *ReadyQueue) Clone() *ReadyQueue {
	out := &ReadyQueue{EpochLength: q.EpochLength, slots: make([][]ReportMetadata, len(q.slots))}
	for i, bucket := range q.slots {
		out.slots[i] = cloneMetadata(bucket)
	}
	return out
}

// Park files a report under its target slot's bucket.
func (q *ReadyQueue) Park(r ReportMetadata) {
	idx := r.Slot % q.EpochLength
	q.slots[idx] = append(q.slots[idx], r)
}

// WrapShift evaluates dependency satisfaction for the bucket that newSlot
// now occupies: reports whose dependencies are all in the accumulated
// queue's recent window fire (are returned); the rest re-park in the next
// slot's bucket, carrying their dependencies with them.
func (q *ReadyQueue) WrapShift(newSlot uint32, accumulated *AccumulatedQueue) []ReportMetadata {
	idx := newSlot % q.EpochLength
	bucket := q.slots[idx]
	q.slots[idx] = nil

	var ready, parked []ReportMetadata
	for _, r := range bucket {
		if accumulated.SatisfiesAll(r.Dependencies) {
			ready = append(ready, r)
		} else {
			parked = append(parked, r)
		}
	}
	if len(parked) > 0 {
		nextIdx := (idx + 1) % q.EpochLength
		q.slots[nextIdx] = append(q.slots[nextIdx], parked...)
	}
	return ready
}

// AccumulatedQueue holds the package hashes of recently committed reports,
// capacity equal to the epoch length, consulted by the ready queue to
// resolve dependencies (§4.7).
type AccumulatedQueue struct {
	Capacity uint32
	recent   map[common.Hash]struct{}
	order    []common.Hash
}

func NewAccumulatedQueue(capacity uint32) *AccumulatedQueue {
	if capacity == 0 {
		capacity = 1
	}
	return &AccumulatedQueue{Capacity: capacity, recent: make(map[common.Hash]struct{})}
}

func (q *AccumulatedQueue) Clone() *AccumulatedQueue {
	out := &AccumulatedQueue{Capacity: q.Capacity, recent: make(map[common.Hash]struct{}, len(q.recent))}
	for h := range q.recent {
		out.recent[h] = struct{}{}
	}
	out.order = append([]common.Hash(nil), q.order...)
	return out
}

// Push records a newly committed report's package hash, evicting the oldest
// entry once the queue exceeds its capacity.
func (q *AccumulatedQueue) Push(h common.Hash) {
	if _, ok := q.recent[h]; ok {
		return
	}
	q.recent[h] = struct{}{}
	q.order = append(q.order, h)
	if uint32(len(q.order)) > q.Capacity {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.recent, oldest)
	}
}

func (q *AccumulatedQueue) SatisfiesAll(deps []common.Hash) bool {
	for _, d := range deps {
		if _, ok := q.recent[d]; !ok {
			return false
		}
	}
	return true
}
