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

package queue

import (
	"time"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	// LowThenStaleNormalPolicyName evicts the oldest `types.Low` entries first, in a bounded batch, and then
	// `types.Normal` entries older than the staleness threshold. Stale `types.Normal` entries are only considered for
	// `types.Critical` and `types.High` inserts.
	LowThenStaleNormalPolicyName RegisteredPolicyName = "low-then-stale-normal"
	// LowestClassFirstPolicyName evicts the oldest entries of the lowest non-empty class below the insert, moving up one
	// class at a time, until enough room is freed. It ignores entry age and batch sizes.
	LowestClassFirstPolicyName RegisteredPolicyName = "lowest-class-first"
)

func init() {
	MustRegisterPolicy(LowThenStaleNormalPolicyName, func(cfg PolicyConfig) (EvictionPolicy, error) {
		return &lowThenStaleNormal{cfg: cfg}, nil
	})
	MustRegisterPolicy(LowestClassFirstPolicyName, func(_ PolicyConfig) (EvictionPolicy, error) {
		return &lowestClassFirst{}, nil
	})
}

// ResidentView is a read-only view of the entries resident in a connection queue, handed to an `EvictionPolicy` while
// the queue lock is held. It must not be retained after `SelectVictims` returns.
type ResidentView interface {
	// Len returns the number of resident entries of the class.
	Len(class types.PriorityClass) int
	// Oldest calls fn for each resident entry of the class from oldest to newest until fn returns false.
	Oldest(class types.PriorityClass, fn func(*types.QueueEntry) bool)
}

// EvictionPolicy selects resident entries to remove so that a new entry can be admitted when the queue is at its
// global cap.
//
// The queue validates every returned victim: entries that are not resident, or whose class is not strictly lower than
// the incoming class, are ignored. If fewer than `need` valid victims are returned the insert is rejected and nothing
// is evicted. Returning more than `need` victims evicts all of them (batch eviction).
//
// Implementations are called with the queue lock held and must not block.
type EvictionPolicy interface {
	Name() string
	SelectVictims(view ResidentView, incoming types.PriorityClass, need int, now time.Time) []*types.QueueEntry
}

type lowThenStaleNormal struct {
	cfg PolicyConfig
}

var _ EvictionPolicy = &lowThenStaleNormal{}

func (p *lowThenStaleNormal) Name() string { return string(LowThenStaleNormalPolicyName) }

func (p *lowThenStaleNormal) SelectVictims(
	view ResidentView,
	incoming types.PriorityClass,
	need int,
	now time.Time,
) []*types.QueueEntry {
	if need <= 0 || !incoming.HigherThan(types.Low) {
		return nil
	}

	batch := p.cfg.NormalEvictionBatch
	if incoming.HigherThan(types.Normal) {
		batch = p.cfg.HighPriorityEvictionBatch
	}
	limit := max(need, batch)

	victims := make([]*types.QueueEntry, 0, min(limit, view.Len(types.Low)))
	view.Oldest(types.Low, func(e *types.QueueEntry) bool {
		if len(victims) >= limit {
			return false
		}
		victims = append(victims, e)
		return true
	})

	if len(victims) >= need || !incoming.HigherThan(types.Normal) {
		return victims
	}

	// Normal entries are only taken to cover the remaining shortfall.
	view.Oldest(types.Normal, func(e *types.QueueEntry) bool {
		if len(victims) >= need || e.Age(now) <= p.cfg.StaleAfter {
			return false
		}
		victims = append(victims, e)
		return true
	})
	return victims
}

type lowestClassFirst struct{}

var _ EvictionPolicy = &lowestClassFirst{}

func (p *lowestClassFirst) Name() string { return string(LowestClassFirstPolicyName) }

func (p *lowestClassFirst) SelectVictims(
	view ResidentView,
	incoming types.PriorityClass,
	need int,
	_ time.Time,
) []*types.QueueEntry {
	if need <= 0 {
		return nil
	}
	victims := make([]*types.QueueEntry, 0, need)
	for class := types.Low; class < incoming && len(victims) < need; class++ {
		view.Oldest(class, func(e *types.QueueEntry) bool {
			if len(victims) >= need {
				return false
			}
			victims = append(victims, e)
			return true
		})
	}
	return victims
}
