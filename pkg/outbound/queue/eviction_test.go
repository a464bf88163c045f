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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// greedyPolicy offers every resident entry regardless of class.
type greedyPolicy struct{}

func (greedyPolicy) Name() string { return "greedy" }

func (greedyPolicy) SelectVictims(view ResidentView, _ types.PriorityClass, _ int, _ time.Time) []*types.QueueEntry {
	var all []*types.QueueEntry
	for _, class := range types.Classes() {
		view.Oldest(class, func(e *types.QueueEntry) bool {
			all = append(all, e, e) // duplicates must be ignored too
			return true
		})
	}
	return all
}

func TestConnectionQueue_QueueEnforcesStrictlyLowerVictims(t *testing.T) {
	t.Parallel()
	q := NewConnectionQueue(capacity(3, 3, 3, 3, 3), greedyPolicy{}, testclock.NewFakeClock(time.Now()))

	for _, class := range []types.PriorityClass{types.Critical, types.High, types.Normal} {
		require.True(t, q.Enqueue(&types.RawMessage{Tag: "x"}, class).Accepted)
	}

	res := q.Enqueue(&types.RawMessage{Tag: "x"}, types.High)
	require.True(t, res.Accepted, "the single normal entry is a valid victim")
	require.Len(t, res.Evicted, 1, "higher and equal class offers and duplicates are filtered out")
	assert.Equal(t, types.Normal, res.Evicted[0].Class)

	res = q.Enqueue(&types.RawMessage{Tag: "x"}, types.High)
	assert.False(t, res.Accepted, "no strictly lower entries remain")
	assert.Equal(t, 3, q.Len())
}

func TestLowestClassFirstPolicy(t *testing.T) {
	t.Parallel()
	cfg := configWith(capacity(5, 5, 5, 5, 5))
	cfg.EvictionPolicy = LowestClassFirstPolicyName
	h := newTestHarness(t, cfg)

	low := h.mustEnqueue(types.Low, 1)
	normal := h.mustEnqueue(types.Normal, 2)
	h.mustEnqueue(types.High, 2)

	res := h.enqueue(types.Critical)
	require.True(t, res.Accepted)
	require.Len(t, res.Evicted, 1, "only the shortfall is evicted")
	assert.Same(t, low[0], res.Evicted[0])

	res = h.enqueue(types.Critical)
	require.True(t, res.Accepted)
	require.Len(t, res.Evicted, 1)
	assert.Same(t, normal[0], res.Evicted[0], "fresh normal entries are eligible under this policy")

	res = h.enqueue(types.Normal)
	assert.False(t, res.Accepted, "nothing below normal remains")

	res = h.enqueue(types.Low)
	assert.False(t, res.Accepted)
}

func TestLowThenStaleNormalPolicy_SelectVictims(t *testing.T) {
	t.Parallel()
	now := time.Now()
	policy := &lowThenStaleNormal{cfg: PolicyConfig{
		StaleAfter:                time.Second,
		HighPriorityEvictionBatch: 3,
		NormalEvictionBatch:       2,
	}}
	view := fakeView{
		types.Low: {
			{Class: types.Low, Sequence: 1, EnqueueTime: now},
			{Class: types.Low, Sequence: 2, EnqueueTime: now},
			{Class: types.Low, Sequence: 3, EnqueueTime: now},
			{Class: types.Low, Sequence: 4, EnqueueTime: now},
		},
		types.Normal: {
			{Class: types.Normal, Sequence: 5, EnqueueTime: now.Add(-2 * time.Second)},
			{Class: types.Normal, Sequence: 6, EnqueueTime: now},
		},
	}

	testCases := []struct {
		name     string
		incoming types.PriorityClass
		need     int
		wantSeqs []uint64
	}{
		{name: "low gets nothing", incoming: types.Low, need: 1, wantSeqs: nil},
		{name: "normal uses the normal batch", incoming: types.Normal, need: 1, wantSeqs: []uint64{1, 2}},
		{name: "critical uses the high priority batch", incoming: types.Critical, need: 1, wantSeqs: []uint64{1, 2, 3}},
		{name: "need above batch takes all low", incoming: types.High, need: 4, wantSeqs: []uint64{1, 2, 3, 4}},
		{name: "shortfall is covered by stale normal", incoming: types.High, need: 5, wantSeqs: []uint64{1, 2, 3, 4, 5}},
		{name: "fresh normal stops the scan", incoming: types.High, need: 6, wantSeqs: []uint64{1, 2, 3, 4, 5}},
		{name: "normal insert never takes normal", incoming: types.Normal, need: 5, wantSeqs: []uint64{1, 2, 3, 4}},
		{name: "zero need", incoming: types.Critical, need: 0, wantSeqs: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var got []uint64
			for _, e := range policy.SelectVictims(view, tc.incoming, tc.need, now) {
				got = append(got, e.Sequence)
			}
			assert.Equal(t, tc.wantSeqs, got)
		})
	}
}

type fakeView map[types.PriorityClass][]*types.QueueEntry

func (v fakeView) Len(class types.PriorityClass) int { return len(v[class]) }

func (v fakeView) Oldest(class types.PriorityClass, fn func(*types.QueueEntry) bool) {
	for _, e := range v[class] {
		if !fn(e) {
			return
		}
	}
}

func TestPolicyRegistry(t *testing.T) {
	t.Parallel()

	assert.Contains(t, PolicyNames(), string(LowThenStaleNormalPolicyName))
	assert.Contains(t, PolicyNames(), string(LowestClassFirstPolicyName))
	assert.True(t, IsRegisteredPolicy(LowestClassFirstPolicyName))
	assert.False(t, IsRegisteredPolicy("does-not-exist"))

	p, err := NewPolicyFromName(LowestClassFirstPolicyName, PolicyConfig{})
	require.NoError(t, err)
	assert.Equal(t, string(LowestClassFirstPolicyName), p.Name())

	_, err = NewPolicyFromName("does-not-exist", PolicyConfig{})
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustRegisterPolicy(LowThenStaleNormalPolicyName, func(PolicyConfig) (EvictionPolicy, error) { return greedyPolicy{}, nil })
	})
}

func TestConfig_Clamp(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Capacity:       capacity(0, -1, 5000, 10, 0),
		EvictionPolicy: "unknown",
		Policy:         PolicyConfig{StaleAfter: -time.Second},
	}
	got, err := cfg.Clamp()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigurationInvalid)

	assert.Equal(t, DefaultGlobalCapacity, got.Capacity.Global)
	assert.Equal(t, 1, got.Capacity.ForClass(types.Critical))
	assert.Equal(t, DefaultGlobalCapacity, got.Capacity.ForClass(types.High))
	assert.Equal(t, 10, got.Capacity.ForClass(types.Normal))
	assert.Equal(t, 1, got.Capacity.ForClass(types.Low))
	assert.Equal(t, time.Duration(0), got.Policy.StaleAfter)
	assert.Equal(t, 1, got.Policy.HighPriorityEvictionBatch)
	assert.Equal(t, 1, got.Policy.NormalEvictionBatch)
	assert.Equal(t, LowThenStaleNormalPolicyName, got.EvictionPolicy)

	_, err = DefaultConfig().Clamp()
	assert.NoError(t, err)
}
