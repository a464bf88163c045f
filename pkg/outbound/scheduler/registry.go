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

package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/dispatch"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/queue"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// dispatchCounters holds the dispatch outcomes of one class on one connection.
type dispatchCounters struct {
	sent   atomic.Uint64
	failed atomic.Uint64
}

// bypassCounters holds the control message outcomes of every connection.
type bypassCounters struct {
	sent   atomic.Uint64
	failed atomic.Uint64
}

// connection is the state owned by the Scheduler for one open connection.
type connection struct {
	id       types.ConnectionID
	queue    *queue.ConnectionQueue
	openedAt time.Time

	byClass [types.NumClasses]dispatchCounters
	bypass  *bypassCounters
}

var (
	_ dispatch.Recorder        = &connection{}
	_ dispatch.ControlRecorder = &connection{}
)

// RecordDispatch implements `dispatch.Recorder`. Filtered messages are already counted by the queue.
func (c *connection) RecordDispatch(class types.PriorityClass, outcome dispatch.Outcome, count int) {
	if !class.Valid() || count <= 0 {
		return
	}
	switch outcome {
	case dispatch.OutcomeSent:
		c.byClass[class].sent.Add(uint64(count))
	case dispatch.OutcomeTransportError:
		c.byClass[class].failed.Add(uint64(count))
	}
}

// RecordControl implements `dispatch.ControlRecorder`.
func (c *connection) RecordControl(outcome dispatch.Outcome) {
	if c.bypass == nil {
		return
	}
	switch outcome {
	case dispatch.OutcomeSent:
		c.bypass.sent.Add(1)
	case dispatch.OutcomeTransportError:
		c.bypass.failed.Add(1)
	}
}

func (c *connection) resetCounters() {
	for i := range c.byClass {
		c.byClass[i].sent.Store(0)
		c.byClass[i].failed.Store(0)
	}
}

// shard is one partition of the registry.
type shard struct {
	mu    sync.RWMutex
	conns map[types.ConnectionID]*connection
}

// registry maps connection ids to their state. Ids are spread over shards by hash so lookups from concurrent producers
// rarely touch the same lock.
type registry struct {
	shards []*shard
	size   atomic.Int64
}

func newRegistry(shards int) *registry {
	r := &registry{shards: make([]*shard, max(shards, 1))}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[types.ConnectionID]*connection)}
	}
	return r
}

func (r *registry) shardFor(id types.ConnectionID) *shard {
	return r.shards[xxhash.Sum64String(string(id))%uint64(len(r.shards))]
}

func (r *registry) get(id types.ConnectionID) (*connection, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// put stores c and returns the connection it replaced, if any.
func (r *registry) put(c *connection) (*connection, bool) {
	s := r.shardFor(c.id)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.conns[c.id]
	s.conns[c.id] = c
	if !ok {
		r.size.Add(1)
	}
	return prev, ok
}

// remove deletes the connection and returns it.
func (r *registry) remove(id types.ConnectionID) (*connection, bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if ok {
		delete(s.conns, id)
		r.size.Add(-1)
	}
	return c, ok
}

func (r *registry) len() int {
	return int(r.size.Load())
}

// forEach calls fn for every connection. fn runs under a shard read lock and must not call back into the registry.
func (r *registry) forEach(fn func(*connection)) {
	for _, s := range r.shards {
		s.mu.RLock()
		for _, c := range s.conns {
			fn(c)
		}
		s.mu.RUnlock()
	}
}

// Backlogged implements `dispatch.TargetSource`.
func (r *registry) Backlogged(dst []dispatch.Target) []dispatch.Target {
	r.forEach(func(c *connection) {
		if c.queue.Len() > 0 || c.queue.ControlLen() > 0 {
			dst = append(dst, dispatch.Target{ID: c.id, Queue: c.queue, Recorder: c})
		}
	})
	return dst
}
