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
	"time"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/queue"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/teleport"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// ClassSnapshot holds the occupancy and counters of one priority class.
type ClassSnapshot struct {
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
	Enqueued uint64 `json:"enqueued"`
	Sent     uint64 `json:"sent"`
	// Rejected counts admissions refused by a cap.
	Rejected uint64 `json:"rejected"`
	// Evicted counts resident messages removed to admit a higher class.
	Evicted uint64 `json:"evicted"`
	// Filtered counts non-essential messages dropped during a teleport boost.
	Filtered uint64 `json:"filtered"`
	// Failed counts messages dropped by a transport failure.
	Failed uint64 `json:"failed"`
	// Cleared counts messages dropped when the connection closed.
	Cleared uint64 `json:"cleared"`
}

// Dropped returns the number of messages of the class that were never delivered.
func (c ClassSnapshot) Dropped() uint64 {
	return c.Rejected + c.Evicted + c.Filtered + c.Failed + c.Cleared
}

func (c *ClassSnapshot) add(o ClassSnapshot) {
	c.Depth += o.Depth
	c.Capacity += o.Capacity
	c.Enqueued += o.Enqueued
	c.Sent += o.Sent
	c.Rejected += o.Rejected
	c.Evicted += o.Evicted
	c.Filtered += o.Filtered
	c.Failed += o.Failed
	c.Cleared += o.Cleared
}

// ConnectionSnapshot is a read-only view of one connection.
type ConnectionSnapshot struct {
	ID         types.ConnectionID    `json:"id"`
	OpenedAt   time.Time             `json:"openedAt"`
	Phase      types.Phase           `json:"phase"`
	Congestion types.ConnectionStats `json:"congestion"`
	// PreviousPhase is the phase interrupted by the open teleport boost. It is nil outside a boost.
	PreviousPhase *types.Phase `json:"previousPhase,omitempty"`
	// RampRate is the current join ramp budget. It is zero outside the joining phase.
	RampRate       int                                   `json:"rampRate,omitempty"`
	BytesSent      int64                                 `json:"bytesSent"`
	QueueDepth     int                                   `json:"queueDepth"`
	GlobalCapacity int                                   `json:"globalCapacity"`
	Classes        map[types.PriorityClass]ClassSnapshot `json:"classes"`
}

// Stats aggregates every open connection.
type Stats struct {
	Connections int                                   `json:"connections"`
	QueueDepth  int                                   `json:"queueDepth"`
	Phases      map[types.Phase]int                   `json:"phases"`
	Classes     map[types.PriorityClass]ClassSnapshot `json:"classes"`
	// Bypassed counts control messages sent from the control lanes, ahead of every class and outside any budget.
	Bypassed       uint64         `json:"bypassed"`
	BypassFailures uint64         `json:"bypassFailures"`
	RampsCompleted uint64         `json:"rampsCompleted"`
	DispatchTicks  uint64         `json:"dispatchTicks"`
	Teleport       teleport.Stats `json:"teleport"`
}

// classSnapshots merges the queue statistics with the dispatch counters of c.
func classSnapshots(c *connection, qs queue.Stats) map[types.PriorityClass]ClassSnapshot {
	out := make(map[types.PriorityClass]ClassSnapshot, types.NumClasses)
	for _, class := range types.Classes() {
		s := qs.ByClass[class]
		out[class] = ClassSnapshot{
			Depth:    s.Len,
			Capacity: s.Capacity,
			Enqueued: s.Enqueued,
			Sent:     c.byClass[class].sent.Load(),
			Rejected: s.Rejected,
			Evicted:  s.Evicted,
			Filtered: s.Discarded,
			Failed:   c.byClass[class].failed.Load(),
			Cleared:  s.Cleared,
		}
	}
	return out
}
