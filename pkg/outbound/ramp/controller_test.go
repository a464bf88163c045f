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

package ramp

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const conn types.ConnectionID = "conn-1"

func TestController_RampShape(t *testing.T) {
	t.Parallel()
	start := time.Now()

	testCases := []struct {
		name        string
		elapsed     time.Duration
		wantRate    int
		wantJoining bool
	}{
		{name: "at open the initial rate applies", elapsed: 0, wantRate: 3, wantJoining: true},
		{name: "before the first step", elapsed: 1400 * time.Millisecond, wantRate: 3, wantJoining: true},
		{name: "first step", elapsed: 1500 * time.Millisecond, wantRate: 7, wantJoining: true},
		{name: "half way", elapsed: 7500 * time.Millisecond, wantRate: 26, wantJoining: true},
		{name: "last step", elapsed: 14 * time.Second, wantRate: 45, wantJoining: true},
		{name: "at duration the target rate applies", elapsed: 15 * time.Second, wantRate: 50, wantJoining: false},
		{name: "after duration", elapsed: time.Minute, wantRate: 50, wantJoining: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewController(DefaultConfig(), logr.Discard())
			c.Start(conn, start)
			rate, joining := c.CurrentRate(conn, start.Add(tc.elapsed))
			assert.Equal(t, tc.wantRate, rate)
			assert.Equal(t, tc.wantJoining, joining)
		})
	}
}

// Halfway through a 15s ramp of 10 steps from 3 to 50, the rate is the interpolated rate of step 5.
func TestController_HalfwayMatchesStepFive(t *testing.T) {
	t.Parallel()
	cfg := Config{InitialRate: 3, TargetRate: 50, Duration: 15 * time.Second, Steps: 10}
	c := NewController(cfg, logr.Discard())
	start := time.Now()
	c.Start(conn, start)

	rate, joining := c.CurrentRate(conn, start.Add(7500*time.Millisecond))
	require.True(t, joining)
	assert.Equal(t, cfg.RateAtStep(5), rate)
	assert.Equal(t, 26, rate)
}

func TestController_NonDecreasing(t *testing.T) {
	t.Parallel()
	cfg := Config{InitialRate: 5, TargetRate: 37, Duration: 9 * time.Second, Steps: 7}
	c := NewController(cfg, logr.Discard())
	start := time.Now()
	c.Start(conn, start)

	prev := 0
	for elapsed := time.Duration(0); elapsed <= cfg.Duration; elapsed += 37 * time.Millisecond {
		rate, _ := c.CurrentRate(conn, start.Add(elapsed))
		require.GreaterOrEqual(t, rate, prev, "rate decreased at %s", elapsed)
		require.GreaterOrEqual(t, rate, cfg.InitialRate)
		require.LessOrEqual(t, rate, cfg.TargetRate)
		prev = rate
	}
	rate, joining := c.CurrentRate(conn, start.Add(cfg.Duration))
	assert.Equal(t, cfg.TargetRate, rate)
	assert.False(t, joining)
}

func TestController_CompletionIsOneShot(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig(), logr.Discard())
	start := time.Now()
	c.Start(conn, start)
	require.True(t, c.IsJoining(conn, start))
	require.Equal(t, 1, c.Joining())

	end := start.Add(DefaultDuration)
	assert.False(t, c.IsJoining(conn, end))
	_, joining := c.CurrentRate(conn, end)
	assert.False(t, joining)
	assert.Equal(t, 0, c.Joining())
	assert.Equal(t, uint64(1), c.Completed())

	rate, joining := c.CurrentRate(conn, end.Add(time.Second))
	assert.Zero(t, rate, "a completed ramp no longer knows the connection")
	assert.False(t, joining)
	assert.Equal(t, uint64(1), c.Completed(), "completion is counted once")
}

func TestController_RestartAndRemove(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig(), logr.Discard())
	start := time.Now()
	c.Start(conn, start)
	rate, _ := c.CurrentRate(conn, start.Add(10*time.Second))
	require.Greater(t, rate, DefaultInitialRate)

	c.Start(conn, start.Add(10*time.Second))
	rate, joining := c.CurrentRate(conn, start.Add(10*time.Second))
	assert.True(t, joining)
	assert.Equal(t, DefaultInitialRate, rate, "a restart begins from the initial rate")

	c.Remove(conn)
	_, joining = c.CurrentRate(conn, start.Add(11*time.Second))
	assert.False(t, joining)
	assert.False(t, c.IsJoining(conn, start))
}

func TestController_SetConfigAppliesToNewRamps(t *testing.T) {
	t.Parallel()
	c := NewController(DefaultConfig(), logr.Discard())
	start := time.Now()
	c.Start("old", start)

	c.SetConfig(Config{InitialRate: 10, TargetRate: 20, Duration: 2 * time.Second, Steps: 2})
	c.Start("new", start)

	rate, _ := c.CurrentRate("old", start.Add(time.Second))
	assert.Equal(t, DefaultInitialRate, rate, "ramps in progress keep their captured shape")
	rate, _ = c.CurrentRate("new", start.Add(time.Second))
	assert.Equal(t, 15, rate)
}

func TestConfig_Clamp(t *testing.T) {
	t.Parallel()
	got, err := Config{InitialRate: 0, TargetRate: -4, Duration: 0, Steps: 0}.Clamp()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigurationInvalid)
	assert.Equal(t, Config{InitialRate: 1, TargetRate: 1, Duration: time.Second, Steps: 1}, got)

	_, err = DefaultConfig().Clamp()
	assert.NoError(t, err)

	got, err = Config{InitialRate: 3, TargetRate: 50, Duration: 15 * time.Second, Steps: 1 << 40}.Clamp()
	assert.ErrorIs(t, err, types.ErrConfigurationInvalid)
	assert.Equal(t, 15000, got.Steps, "at most one step per millisecond")
}

func TestController_HugeStepCountStillProgresses(t *testing.T) {
	t.Parallel()
	c := NewController(Config{InitialRate: 3, TargetRate: 50, Duration: 15 * time.Second, Steps: 1 << 40}, logr.Discard())
	assert.Equal(t, 15000, c.Config().Steps)
	start := time.Now()
	c.Start(conn, start)

	for _, tc := range []struct {
		elapsed time.Duration
		want    int
	}{
		{elapsed: 0, want: 3},
		{elapsed: time.Second, want: 6},
		{elapsed: 7500 * time.Millisecond, want: 26},
		{elapsed: 14 * time.Second, want: 46},
	} {
		rate, joining := c.CurrentRate(conn, start.Add(tc.elapsed))
		require.True(t, joining)
		assert.Equal(t, tc.want, rate, "rate at %s", tc.elapsed)
	}
}
