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

// Package congestion derives a per-connection congestion level from ping and bandwidth telemetry.
//
// Samples arrive from the transport on arbitrary goroutines. They are recorded with atomic operations only; the
// bandwidth estimate is recomputed at most once per window by whichever caller wins a compare-and-swap on the window
// start. The level is the maximum of an independent ping tier and bandwidth tier, so escalation by either metric alone
// is sufficient.
package congestion

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	// loggerName is the name to use for loggers created by this package.
	loggerName = "CongestionDetector"
)

// connStats is the telemetry state of one connection. All fields are accessed atomically.
type connStats struct {
	pingMillis  atomic.Int64
	windowBytes atomic.Int64
	// windowStart is the UnixNano instant the current bandwidth window opened.
	windowStart atomic.Int64
	bandwidth   atomic.Int64
	totalBytes  atomic.Int64
}

// Detector tracks telemetry per connection and derives `types.CongestionLevel`.
type Detector struct {
	clock  clock.PassiveClock
	logger logr.Logger
	config atomic.Pointer[Config]

	mu    sync.RWMutex
	conns map[types.ConnectionID]*connStats
}

// NewDetector creates a Detector. The configuration is expected to be clamped already.
func NewDetector(config Config, clk clock.PassiveClock, logger logr.Logger) *Detector {
	logger = logger.WithName(loggerName)
	logger.V(logutil.DEFAULT).Info("Creating new CongestionDetector",
		"highPingMillis", config.HighPingMillis,
		"criticalPingMillis", config.CriticalPingMillis,
		"highBandwidthBytesPerSec", config.HighBandwidthBytesPerSec,
		"bandwidthWindow", config.BandwidthWindow.String())

	d := &Detector{
		clock:  clk,
		logger: logger,
		conns:  make(map[types.ConnectionID]*connStats),
	}
	d.config.Store(&config)
	return d
}

// SetConfig replaces the thresholds. It takes effect on the next level computation.
func (d *Detector) SetConfig(config Config) {
	d.config.Store(&config)
}

// Add starts tracking a connection. Adding a tracked connection resets its telemetry.
func (d *Detector) Add(id types.ConnectionID) {
	s := &connStats{}
	s.windowStart.Store(d.clock.Now().UnixNano())
	d.mu.Lock()
	d.conns[id] = s
	d.mu.Unlock()
}

// Remove stops tracking a connection.
func (d *Detector) Remove(id types.ConnectionID) {
	d.mu.Lock()
	delete(d.conns, id)
	d.mu.Unlock()
}

func (d *Detector) get(id types.ConnectionID) *connStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conns[id]
}

// OnPingSample records the latest round-trip time. Samples for unknown connections and negative samples are ignored.
func (d *Detector) OnPingSample(id types.ConnectionID, pingMillis int64) {
	if pingMillis < 0 {
		return
	}
	if s := d.get(id); s != nil {
		s.pingMillis.Store(pingMillis)
	}
}

// OnBytesSent accumulates bytes written to the connection. The bandwidth estimate is recomputed only when the current
// window has lasted at least the configured window length.
func (d *Detector) OnBytesSent(id types.ConnectionID, delta int64) {
	if delta <= 0 {
		return
	}
	s := d.get(id)
	if s == nil {
		return
	}
	s.windowBytes.Add(delta)
	s.totalBytes.Add(delta)
	d.roll(s, d.clock.Now())
}

// roll closes the current bandwidth window if it has expired. Only the caller that wins the compare-and-swap on the
// window start publishes the new estimate.
func (d *Detector) roll(s *connStats, now time.Time) {
	window := d.config.Load().BandwidthWindow
	start := s.windowStart.Load()
	elapsed := now.UnixNano() - start
	if elapsed < int64(window) {
		return
	}
	if !s.windowStart.CompareAndSwap(start, now.UnixNano()) {
		return
	}
	bytes := s.windowBytes.Swap(0)
	s.bandwidth.Store(bytes * int64(time.Second) / elapsed)
}

// Level returns the congestion level of the connection, or `types.CongestionNone` if it is unknown. An expired window
// is closed first so an idle connection decays instead of keeping its last estimate.
func (d *Detector) Level(id types.ConnectionID) types.CongestionLevel {
	stats, ok := d.Stats(id)
	if !ok {
		return types.CongestionNone
	}
	return stats.Level
}

// Stats returns the telemetry view of the connection.
func (d *Detector) Stats(id types.ConnectionID) (types.ConnectionStats, bool) {
	s := d.get(id)
	if s == nil {
		return types.ConnectionStats{}, false
	}
	d.roll(s, d.clock.Now())
	cfg := d.config.Load()
	ping, bw := s.pingMillis.Load(), s.bandwidth.Load()
	return types.ConnectionStats{
		PingMillis:           ping,
		BandwidthBytesPerSec: bw,
		Level:                LevelFor(cfg, ping, bw),
	}, true
}

// TotalBytes returns the number of bytes reported for the connection since it was added.
func (d *Detector) TotalBytes(id types.ConnectionID) int64 {
	if s := d.get(id); s != nil {
		return s.totalBytes.Load()
	}
	return 0
}

// LevelFor computes the congestion level for the given samples. It is non-decreasing in each argument while the other
// is held fixed.
func LevelFor(cfg *Config, pingMillis, bandwidth int64) types.CongestionLevel {
	return types.MaxCongestion(pingTier(cfg, pingMillis), bandwidthTier(cfg, bandwidth))
}

func pingTier(cfg *Config, ping int64) types.CongestionLevel {
	switch {
	case ping >= cfg.CriticalPingMillis*2:
		return types.CongestionSevere
	case ping >= cfg.CriticalPingMillis:
		return types.CongestionHigh
	case ping >= cfg.HighPingMillis:
		return types.CongestionMedium
	case ping > 0 && ping >= cfg.HighPingMillis/2:
		return types.CongestionLow
	default:
		return types.CongestionNone
	}
}

func bandwidthTier(cfg *Config, bw int64) types.CongestionLevel {
	high := cfg.HighBandwidthBytesPerSec
	switch {
	case bw >= high*2:
		return types.CongestionSevere
	case bw*2 >= high*3:
		return types.CongestionHigh
	case bw >= high:
		return types.CongestionMedium
	case bw*2 >= high:
		return types.CongestionLow
	default:
		return types.CongestionNone
	}
}
