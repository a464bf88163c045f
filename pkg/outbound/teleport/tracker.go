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

// Package teleport tracks teleport boost windows.
//
// A teleport forces the client to rebuild its view of the world. For a bounded window afterwards the dispatch budget
// of the connection is raised to at least a configured floor, and non-essential messages are dropped at dispatch so the
// budget is spent on what the client needs. The window closes on an explicit completion signal or, as a safety net,
// once the boost duration has elapsed.
package teleport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/metrics"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const loggerName = "TeleportBoostTracker"

// Stats aggregates teleport outcomes since the tracker was created or last reset.
type Stats struct {
	Total      uint64 `json:"total"`
	Successful uint64 `json:"successful"`
	Failed     uint64 `json:"failed"`
	Expired    uint64 `json:"expired"`
	// Filtered counts messages dropped at dispatch while a window was open.
	Filtered   uint64        `json:"filtered"`
	TotalDelay time.Duration `json:"totalDelay"`
	MaxDelay   time.Duration `json:"maxDelay"`
}

// AverageDelay returns the mean window length of completed and expired teleports.
func (s Stats) AverageDelay() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.TotalDelay / time.Duration(s.Total)
}

type window struct {
	start    time.Time
	previous types.Phase
}

type compiledConfig struct {
	Config
	filter filterTable
}

// Tracker holds the open boost windows of all connections.
type Tracker struct {
	clock  clock.WithTicker
	logger logr.Logger
	config atomic.Pointer[compiledConfig]

	mu      sync.Mutex
	windows map[types.ConnectionID]*window

	total, successful, failed, expired, filtered atomic.Uint64
	totalDelay, maxDelay                         atomic.Int64
}

// NewTracker creates a Tracker. The configuration is expected to be clamped already.
func NewTracker(config Config, clk clock.WithTicker, logger logr.Logger) *Tracker {
	t := &Tracker{
		clock:   clk,
		logger:  logger.WithName(loggerName),
		windows: make(map[types.ConnectionID]*window),
	}
	t.SetConfig(config)
	return t
}

// SetConfig replaces the configuration. Open windows are measured against the new boost duration.
func (t *Tracker) SetConfig(config Config) {
	t.config.Store(&compiledConfig{Config: config, filter: compile(config.NonEssential)})
}

// BoostRate returns the per-tick budget floor applied while a window is open.
func (t *Tracker) BoostRate() int {
	return t.config.Load().BoostRate
}

// Start opens a boost window for the connection, remembering the phase it interrupts. Starting while a window is
// already open restarts the window and keeps the originally recorded phase.
func (t *Tracker) Start(id types.ConnectionID, previous types.Phase, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[id]; ok {
		w.start = now
		t.logger.V(logutil.DEBUG).Info("Teleport boost restarted", "connectionID", id)
		return
	}
	t.windows[id] = &window{start: now, previous: previous}
	t.logger.V(logutil.DEBUG).Info("Teleport boost started", "connectionID", id, "previousPhase", previous)
}

// IsActive reports whether the connection has an open window at now. A window that outlived the boost duration is
// closed here and recorded as expired.
func (t *Tracker) IsActive(id types.ConnectionID, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	if !ok {
		return false
	}
	if now.Sub(w.start) < t.config.Load().BoostDuration {
		return true
	}
	t.expireLocked(id, w, now)
	return false
}

// Complete closes the window of the connection and records its outcome. It reports whether a window was open.
func (t *Tracker) Complete(id types.ConnectionID, success bool, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	if !ok {
		return false
	}
	delete(t.windows, id)

	delay := now.Sub(w.start)
	outcome := metrics.TeleportOutcomeFailure
	if success {
		t.successful.Add(1)
		outcome = metrics.TeleportOutcomeSuccess
	} else {
		t.failed.Add(1)
	}
	t.record(delay)
	metrics.RecordTeleport(outcome, delay)
	t.logger.V(logutil.DEBUG).Info("Teleport completed", "connectionID", id, "success", success, "delay", delay.String())
	return true
}

// PreviousPhase returns the phase interrupted by the open window of the connection.
func (t *Tracker) PreviousPhase(id types.ConnectionID) (types.Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	if !ok {
		return types.PhaseSteady, false
	}
	return w.previous, true
}

// Remove drops the window of the connection without recording an outcome.
func (t *Tracker) Remove(id types.ConnectionID) {
	t.mu.Lock()
	delete(t.windows, id)
	t.mu.Unlock()
}

// Sweep expires every window that outlived the boost duration and returns how many were expired.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	boost := t.config.Load().BoostDuration
	n := 0
	for id, w := range t.windows {
		if now.Sub(w.start) >= boost {
			t.expireLocked(id, w, now)
			n++
		}
	}
	return n
}

// Run expires abandoned windows every sweep interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.config.Load().SweepInterval
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()
	t.logger.V(logutil.DEFAULT).Info("Teleport sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			t.logger.V(logutil.DEFAULT).Info("Teleport sweeper stopped")
			return
		case <-ticker.C():
			if n := t.Sweep(t.clock.Now()); n > 0 {
				t.logger.V(logutil.VERBOSE).Info("Expired abandoned teleport boosts", "count", n)
			}
		}
	}
}

func (t *Tracker) expireLocked(id types.ConnectionID, w *window, now time.Time) {
	delete(t.windows, id)
	// An expired window lasted exactly the boost duration as far as the connection is concerned.
	delay := min(now.Sub(w.start), t.config.Load().BoostDuration)
	t.expired.Add(1)
	t.record(delay)
	metrics.RecordTeleport(metrics.TeleportOutcomeExpired, delay)
	t.logger.V(logutil.VERBOSE).Info("Teleport boost expired without completion", "connectionID", id,
		"restoredPhase", w.previous)
}

func (t *Tracker) record(delay time.Duration) {
	t.total.Add(1)
	t.totalDelay.Add(int64(delay))
	for {
		cur := t.maxDelay.Load()
		if int64(delay) <= cur || t.maxDelay.CompareAndSwap(cur, int64(delay)) {
			return
		}
	}
}

// IsNonEssential reports whether messages with the type tag are dropped during a boost.
func (t *Tracker) IsNonEssential(tag string) bool {
	_, ok := t.config.Load().filter[normalize(tag)]
	return ok
}

// RecordFiltered adds n to the count of messages dropped during boosts.
func (t *Tracker) RecordFiltered(n int) {
	if n > 0 {
		t.filtered.Add(uint64(n))
	}
}

// Active returns the number of open windows, including ones that expired but were not swept yet.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}

// Stats returns the aggregated outcomes.
func (t *Tracker) Stats() Stats {
	return Stats{
		Total:      t.total.Load(),
		Successful: t.successful.Load(),
		Failed:     t.failed.Load(),
		Expired:    t.expired.Load(),
		Filtered:   t.filtered.Load(),
		TotalDelay: time.Duration(t.totalDelay.Load()),
		MaxDelay:   time.Duration(t.maxDelay.Load()),
	}
}

// ResetStats zeroes the aggregated outcomes. Open windows are unaffected.
func (t *Tracker) ResetStats() {
	t.total.Store(0)
	t.successful.Store(0)
	t.failed.Store(0)
	t.expired.Store(0)
	t.filtered.Store(0)
	t.totalDelay.Store(0)
	t.maxDelay.Store(0)
}
