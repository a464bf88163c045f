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

// Package ramp implements the join ramp: a linear, stepped increase of the dispatch budget of a newly opened
// connection from an initial rate up to a target rate.
package ramp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const loggerName = "JoinRampController"

// state is the ramp of one connection. The configuration is captured when the ramp starts so that a reload never
// changes the shape of a ramp in progress.
type state struct {
	mu         sync.Mutex
	start      time.Time
	cfg        Config
	cachedStep int
	cachedRate int
}

// Controller tracks the ramps of all joining connections.
type Controller struct {
	logger logr.Logger
	config atomic.Pointer[Config]

	mu     sync.RWMutex
	ramps  map[types.ConnectionID]*state
	joined atomic.Uint64
}

// NewController creates a Controller. The configuration is expected to be clamped already.
func NewController(config Config, logger logr.Logger) *Controller {
	c := &Controller{
		logger: logger.WithName(loggerName),
		ramps:  make(map[types.ConnectionID]*state),
	}
	c.SetConfig(config)
	return c
}

// SetConfig replaces the ramp applied to connections that start joining afterwards. Out of range values are clamped
// silently; callers that need to report them call `Config.Clamp` first.
func (c *Controller) SetConfig(config Config) {
	config, _ = config.Clamp()
	c.config.Store(&config)
}

// Config returns the configuration applied to new ramps.
func (c *Controller) Config() Config {
	return *c.config.Load()
}

// Start puts the connection in the joining phase at step zero. Starting an already joining connection restarts its
// ramp.
func (c *Controller) Start(id types.ConnectionID, now time.Time) {
	cfg := c.Config()
	s := &state{start: now, cfg: cfg, cachedRate: cfg.InitialRate}
	c.mu.Lock()
	c.ramps[id] = s
	c.mu.Unlock()
	c.logger.V(logutil.DEBUG).Info("Join ramp started", "connectionID", id,
		"initialRate", cfg.InitialRate, "targetRate", cfg.TargetRate, "duration", cfg.Duration.String(), "steps", cfg.Steps)
}

// Remove drops the ramp of the connection, if any.
func (c *Controller) Remove(id types.ConnectionID) {
	c.mu.Lock()
	delete(c.ramps, id)
	c.mu.Unlock()
}

// CurrentRate returns the ramp rate of the connection at now and whether it is still joining.
//
// Once the ramp duration has elapsed the target rate is returned, the state is removed and the connection is steady
// from then on; repeated calls keep reporting not joining. The rate is only recomputed when the step advances. An
// unknown connection yields (0, false).
func (c *Controller) CurrentRate(id types.ConnectionID, now time.Time) (int, bool) {
	c.mu.RLock()
	s, ok := c.ramps[id]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}

	s.mu.Lock()
	elapsed := now.Sub(s.start)
	if elapsed >= s.cfg.Duration {
		rate := s.cfg.TargetRate
		s.mu.Unlock()
		c.complete(id, s)
		return rate, false
	}
	if elapsed < 0 {
		elapsed = 0
	}
	targetStep := int(min(int64(elapsed/s.cfg.stepLength()), int64(s.cfg.Steps)))
	if targetStep > s.cachedStep {
		s.cachedStep = targetStep
		s.cachedRate = s.cfg.RateAtStep(targetStep)
	}
	rate := s.cachedRate
	s.mu.Unlock()
	return rate, true
}

// complete removes s if it is still the registered ramp of id. A concurrent restart is left untouched.
func (c *Controller) complete(id types.ConnectionID, s *state) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ramps[id] != s {
		return
	}
	delete(c.ramps, id)
	c.joined.Add(1)
	c.logger.V(logutil.DEBUG).Info("Join ramp completed", "connectionID", id)
}

// IsJoining reports whether the connection is in its ramp at now. It does not complete an expired ramp.
func (c *Controller) IsJoining(id types.ConnectionID, now time.Time) bool {
	c.mu.RLock()
	s, ok := c.ramps[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.start) < s.cfg.Duration
}

// Joining returns the number of connections currently tracked.
func (c *Controller) Joining() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ramps)
}

// Completed returns the number of ramps that ran to completion.
func (c *Controller) Completed() uint64 {
	return c.joined.Load()
}
