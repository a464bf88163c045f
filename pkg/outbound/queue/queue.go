/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package queue implements the bounded per-connection priority queue and its admission and eviction rules.
//
// A `ConnectionQueue` keeps one FIFO per `types.PriorityClass`. Dequeue always serves the highest non-empty class, and
// within a class entries leave in admission sequence order. Occupancy is bounded by a global cap and by a cap per
// class. When the global cap is reached, a pluggable `EvictionPolicy` may free room by removing entries of strictly
// lower classes than the one being admitted.
//
// Next to the class FIFOs each queue has a small control lane for connection control messages. The lane skips
// admission and priority; the dispatch worker empties it ahead of the budgeted classes.
package queue

import (
	"sync"
	"sync/atomic"

	"k8s.io/utils/clock"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// ClassStats holds the occupancy and lifetime counters of one class.
type ClassStats struct {
	Len       int
	Capacity  int
	Enqueued  uint64
	Rejected  uint64
	Evicted   uint64
	Dequeued  uint64
	Discarded uint64
	Cleared   uint64
}

// Stats is a consistent snapshot of a `ConnectionQueue`.
type Stats struct {
	Len            int
	GlobalCapacity int
	ByClass        [types.NumClasses]ClassStats
	// ControlLen is the number of control messages waiting in the control lane.
	ControlLen int
}

// EnqueueResult describes the outcome of an admission attempt.
type EnqueueResult struct {
	Accepted bool
	// Entry is the admitted entry, nil when rejected.
	Entry *types.QueueEntry
	// Evicted holds the entries removed to make room, in eviction order.
	Evicted []*types.QueueEntry
}

// ConnectionQueue is the bounded priority queue of one connection. All methods are safe for concurrent use. Each queue
// has its own lock so contention on one connection never blocks another.
type ConnectionQueue struct {
	mu       sync.Mutex
	fifos    [types.NumClasses]*fifo
	counters [types.NumClasses]ClassStats
	nextSeq  uint64
	capacity Capacity
	policy   EvictionPolicy
	clock    clock.PassiveClock

	// length mirrors the total occupancy so that backlog scans do not take the lock.
	length atomic.Int64

	controlMu  sync.Mutex
	control    []types.Message
	controlLen atomic.Int64
}

// NewConnectionQueue creates an empty queue.
func NewConnectionQueue(capacity Capacity, policy EvictionPolicy, clk clock.PassiveClock) *ConnectionQueue {
	q := &ConnectionQueue{
		capacity: capacity,
		policy:   policy,
		clock:    clk,
	}
	for i := range q.fifos {
		q.fifos[i] = newFIFO()
	}
	return q
}

// Enqueue attempts to admit msg with the given class. Invalid classes are treated as `types.Normal`.
//
// Admission never blocks on anything but the queue's own lock. The rules are, in order:
//  1. The class is at its own cap: reject. Eviction is not attempted, since removing lower classes never frees room
//     under the cap of the incoming class.
//  2. The queue is below its global cap: accept.
//  3. Otherwise ask the eviction policy for victims of strictly lower class. If at least enough valid victims are
//     offered, evict all of them and accept; else reject without evicting anything.
//
// `types.Low` inserts can never evict anything, since no class is lower.
func (q *ConnectionQueue) Enqueue(msg types.Message, class types.PriorityClass) EnqueueResult {
	if msg == nil {
		return EnqueueResult{}
	}
	if !class.Valid() {
		class = types.Normal
	}
	now := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fifos[class].len() >= q.capacity.ForClass(class) {
		q.counters[class].Rejected++
		return EnqueueResult{}
	}

	var evicted []*types.QueueEntry
	if total := q.totalLocked(); total >= q.capacity.Global {
		if q.policy == nil {
			q.counters[class].Rejected++
			return EnqueueResult{}
		}
		need := total - q.capacity.Global + 1
		victims := q.validVictimsLocked(q.policy.SelectVictims(residentView{q: q}, class, need, now), class)
		if len(victims) < need {
			q.counters[class].Rejected++
			return EnqueueResult{}
		}
		for _, v := range victims {
			q.fifos[v.Class].remove(v)
			q.counters[v.Class].Evicted++
		}
		q.length.Add(-int64(len(victims)))
		evicted = victims
	}

	entry := &types.QueueEntry{
		Message:     msg,
		Class:       class,
		Sequence:    q.nextSeq,
		EnqueueTime: now,
	}
	q.nextSeq++
	q.fifos[class].pushBack(entry)
	q.counters[class].Enqueued++
	q.length.Add(1)
	return EnqueueResult{Accepted: true, Entry: entry, Evicted: evicted}
}

// validVictimsLocked filters the policy's selection down to distinct resident entries of strictly lower class than
// incoming.
func (q *ConnectionQueue) validVictimsLocked(selected []*types.QueueEntry, incoming types.PriorityClass) []*types.QueueEntry {
	if len(selected) == 0 {
		return nil
	}
	seen := make(map[*types.QueueEntry]struct{}, len(selected))
	valid := selected[:0:0]
	for _, e := range selected {
		if e == nil || !incoming.HigherThan(e.Class) || !e.Class.Valid() {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		if !q.fifos[e.Class].contains(e) {
			continue
		}
		seen[e] = struct{}{}
		valid = append(valid, e)
	}
	return valid
}

// Dequeue removes and returns the highest priority entry, or false if the queue is empty.
func (q *ConnectionQueue) Dequeue() (*types.QueueEntry, bool) {
	batch, _ := q.Drain(1, nil)
	if len(batch) == 0 {
		return nil, false
	}
	return batch[0], true
}

// Peek returns the entry the next `Dequeue` would return without removing it.
func (q *ConnectionQueue) Peek() (*types.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, class := range types.Classes() {
		if e := q.fifos[class].peekFront(); e != nil {
			return e, true
		}
	}
	return nil, false
}

// Drain removes up to limit entries in dispatch order and returns them as batch. Entries for which discard returns
// true are removed as well but returned separately and do not count toward limit. A nil discard keeps everything.
//
// The lock is held only while entries are moved out; callers send the batch after Drain returns.
func (q *ConnectionQueue) Drain(limit int, discard func(*types.QueueEntry) bool) (batch, discarded []*types.QueueEntry) {
	if limit <= 0 {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, class := range types.Classes() {
		f := q.fifos[class]
		for len(batch) < limit {
			e := f.popFront()
			if e == nil {
				break
			}
			if discard != nil && discard(e) {
				q.counters[class].Discarded++
				discarded = append(discarded, e)
				continue
			}
			q.counters[class].Dequeued++
			batch = append(batch, e)
		}
		if len(batch) >= limit {
			break
		}
	}
	q.length.Add(-int64(len(batch) + len(discarded)))
	return batch, discarded
}

// Clear drops every resident entry and returns how many were dropped.
func (q *ConnectionQueue) Clear() int {
	total := 0
	for _, n := range q.ClearByClass() {
		total += n
	}
	return total
}

// ClearByClass drops every resident entry and returns how many were dropped per class, indexed by
// `types.PriorityClass`. Pending control messages are dropped too and are not part of the result.
func (q *ConnectionQueue) ClearByClass() [types.NumClasses]int {
	q.DrainControl()

	q.mu.Lock()
	defer q.mu.Unlock()

	var dropped [types.NumClasses]int
	total := 0
	for _, class := range types.Classes() {
		n := q.fifos[class].clear()
		q.counters[class].Cleared += uint64(n)
		dropped[class] = n
		total += n
	}
	q.length.Add(-int64(total))
	return dropped
}

// Len returns the total number of resident entries. It does not take the queue lock.
func (q *ConnectionQueue) Len() int {
	return int(q.length.Load())
}

// ClassLen returns the number of resident entries of the class.
func (q *ConnectionQueue) ClassLen(class types.PriorityClass) int {
	if !class.Valid() {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fifos[class].len()
}

// SetCapacity replaces the occupancy limits. Entries already above a lowered cap are kept and drain normally; only
// later admissions observe the new limits.
func (q *ConnectionQueue) SetCapacity(capacity Capacity) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capacity = capacity
}

// SetPolicy replaces the eviction policy.
func (q *ConnectionQueue) SetPolicy(policy EvictionPolicy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.policy = policy
}

// Stats returns a consistent snapshot of occupancy and counters.
func (q *ConnectionQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{GlobalCapacity: q.capacity.Global, ControlLen: q.ControlLen()}
	for _, class := range types.Classes() {
		cs := q.counters[class]
		cs.Len = q.fifos[class].len()
		cs.Capacity = q.capacity.ForClass(class)
		s.ByClass[class] = cs
		s.Len += cs.Len
	}
	return s
}

// ResetStats zeroes the lifetime counters. Occupancy is unaffected.
func (q *ConnectionQueue) ResetStats() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counters = [types.NumClasses]ClassStats{}
}

// PushControl appends msg to the control lane. It reports false when msg is nil or the lane already holds
// `ControlLaneCapacity` messages.
func (q *ConnectionQueue) PushControl(msg types.Message) bool {
	if msg == nil {
		return false
	}
	q.controlMu.Lock()
	defer q.controlMu.Unlock()
	if len(q.control) >= ControlLaneCapacity {
		return false
	}
	q.control = append(q.control, msg)
	q.controlLen.Add(1)
	return true
}

// DrainControl removes and returns every pending control message in push order.
func (q *ConnectionQueue) DrainControl() []types.Message {
	q.controlMu.Lock()
	defer q.controlMu.Unlock()
	out := q.control
	q.control = nil
	q.controlLen.Add(-int64(len(out)))
	return out
}

// ControlLen returns the number of pending control messages. It does not take any lock.
func (q *ConnectionQueue) ControlLen() int {
	return int(q.controlLen.Load())
}

func (q *ConnectionQueue) totalLocked() int {
	total := 0
	for _, f := range q.fifos {
		total += f.len()
	}
	return total
}

// residentView exposes the queue to an `EvictionPolicy`. The queue lock is held for its whole lifetime.
type residentView struct {
	q *ConnectionQueue
}

var _ ResidentView = residentView{}

func (v residentView) Len(class types.PriorityClass) int {
	if !class.Valid() {
		return 0
	}
	return v.q.fifos[class].len()
}

func (v residentView) Oldest(class types.PriorityClass, fn func(*types.QueueEntry) bool) {
	if !class.Valid() {
		return
	}
	v.q.fifos[class].oldest(fn)
}
