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

package teleport

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const conn types.ConnectionID = "conn-1"

func newTestTracker(t *testing.T) (*Tracker, *testclock.FakeClock) {
	t.Helper()
	clk := testclock.NewFakeClock(time.Now())
	return NewTracker(DefaultConfig(), clk, logr.Discard()), clk
}

// A teleport with no completion signal expires after the boost duration.
func TestTracker_AutoExpiry(t *testing.T) {
	t.Parallel()
	tr, clk := newTestTracker(t)
	start := clk.Now()

	tr.Start(conn, types.PhaseJoining, start)
	assert.True(t, tr.IsActive(conn, start))
	assert.True(t, tr.IsActive(conn, start.Add(4999*time.Millisecond)))
	prev, ok := tr.PreviousPhase(conn)
	require.True(t, ok)
	assert.Equal(t, types.PhaseJoining, prev)

	assert.False(t, tr.IsActive(conn, start.Add(10*time.Second)))
	_, ok = tr.PreviousPhase(conn)
	assert.False(t, ok, "expiry removes the window")
	assert.Equal(t, 0, tr.Active())

	stats := tr.Stats()
	assert.Equal(t, uint64(1), stats.Total)
	assert.Equal(t, uint64(1), stats.Expired)
	assert.Equal(t, DefaultBoostDuration, stats.MaxDelay, "expired windows are capped at the boost duration")

	assert.False(t, tr.IsActive(conn, start.Add(11*time.Second)))
	assert.Equal(t, uint64(1), tr.Stats().Expired, "expiry is recorded once")
}

func TestTracker_Complete(t *testing.T) {
	t.Parallel()
	tr, clk := newTestTracker(t)
	start := clk.Now()

	tr.Start("a", types.PhaseSteady, start)
	tr.Start("b", types.PhaseSteady, start)
	require.True(t, tr.Complete("a", true, start.Add(800*time.Millisecond)))
	require.True(t, tr.Complete("b", false, start.Add(2*time.Second)))
	assert.False(t, tr.IsActive("a", start.Add(time.Second)), "completion ends the window early")
	assert.False(t, tr.Complete("a", true, start.Add(3*time.Second)), "a second completion is a no-op")
	assert.False(t, tr.Complete("unknown", true, start))

	stats := tr.Stats()
	assert.Equal(t, Stats{
		Total:      2,
		Successful: 1,
		Failed:     1,
		TotalDelay: 2800 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}, stats)
	assert.Equal(t, 1400*time.Millisecond, stats.AverageDelay())

	tr.ResetStats()
	assert.Equal(t, Stats{}, tr.Stats())
	assert.Zero(t, tr.Stats().AverageDelay())
}

func TestTracker_RestartKeepsPreviousPhase(t *testing.T) {
	t.Parallel()
	tr, clk := newTestTracker(t)
	start := clk.Now()

	tr.Start(conn, types.PhaseJoining, start)
	tr.Start(conn, types.PhaseTeleporting, start.Add(4*time.Second))

	assert.True(t, tr.IsActive(conn, start.Add(8*time.Second)), "the restart extends the window")
	prev, ok := tr.PreviousPhase(conn)
	require.True(t, ok)
	assert.Equal(t, types.PhaseJoining, prev)
}

func TestTracker_IsNonEssential(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)

	assert.True(t, tr.IsNonEssential("level_particles"))
	assert.True(t, tr.IsNonEssential(" Set_Score "))
	assert.False(t, tr.IsNonEssential("player_position"))
	assert.False(t, tr.IsNonEssential("unknown_type"))

	cfg := DefaultConfig()
	cfg.NonEssential = []string{"weather", "keep_alive", "player_position"}
	tr.SetConfig(cfg)
	assert.True(t, tr.IsNonEssential("weather"))
	assert.False(t, tr.IsNonEssential("level_particles"), "the table is replaced, not merged")
	assert.False(t, tr.IsNonEssential("keep_alive"), "essential types override the table")
	assert.False(t, tr.IsNonEssential("player_position"))
}

func TestTracker_Sweep(t *testing.T) {
	t.Parallel()
	tr, clk := newTestTracker(t)
	start := clk.Now()

	tr.Start("old", types.PhaseSteady, start)
	tr.Start("new", types.PhaseSteady, start.Add(3*time.Second))
	assert.Equal(t, 1, tr.Sweep(start.Add(6*time.Second)))
	assert.Equal(t, 1, tr.Active())
	assert.True(t, tr.IsActive("new", start.Add(6*time.Second)))

	tr.Remove("new")
	assert.Equal(t, 0, tr.Active())
	assert.Equal(t, uint64(1), tr.Stats().Total, "removal records no outcome")
}

func TestTracker_Run(t *testing.T) {
	t.Parallel()
	tr, clk := newTestTracker(t)
	tr.Start(conn, types.PhaseSteady, clk.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Run(ctx)
	}()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond, "sweeper should wait on its ticker")
	clk.Step(DefaultBoostDuration + DefaultSweepInterval)
	require.Eventually(t, func() bool { return tr.Active() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(1), tr.Stats().Expired)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestTracker_RecordFiltered(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)
	tr.RecordFiltered(3)
	tr.RecordFiltered(0)
	tr.RecordFiltered(-1)
	assert.Equal(t, uint64(3), tr.Stats().Filtered)
	assert.Equal(t, DefaultBoostRate, tr.BoostRate())
}

func TestConfig_Clamp(t *testing.T) {
	t.Parallel()
	got, err := Config{BoostDuration: -time.Second}.Clamp()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigurationInvalid)
	assert.Equal(t, DefaultBoostDuration, got.BoostDuration)
	assert.Equal(t, 1, got.BoostRate)
	assert.Equal(t, DefaultSweepInterval, got.SweepInterval)

	_, err = DefaultConfig().Clamp()
	assert.NoError(t, err)
}
