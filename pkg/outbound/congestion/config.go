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

package congestion

import (
	"time"

	"go.uber.org/multierr"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// Default configuration values
const (
	// DefaultHighPingMillis is the round-trip time at which a connection is at least moderately congested.
	DefaultHighPingMillis = 200
	// DefaultCriticalPingMillis is the round-trip time at which a connection is at least highly congested.
	DefaultCriticalPingMillis = 500
	// DefaultHighBandwidthBytesPerSec is the send rate at which a connection is at least moderately congested.
	DefaultHighBandwidthBytesPerSec = 1 << 20
	// DefaultBandwidthWindow is the minimum interval between bandwidth recomputations.
	DefaultBandwidthWindow = time.Second
)

// Config holds the thresholds of the Detector.
type Config struct {
	HighPingMillis           int64
	CriticalPingMillis       int64
	HighBandwidthBytesPerSec int64
	BandwidthWindow          time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		HighPingMillis:           DefaultHighPingMillis,
		CriticalPingMillis:       DefaultCriticalPingMillis,
		HighBandwidthBytesPerSec: DefaultHighBandwidthBytesPerSec,
		BandwidthWindow:          DefaultBandwidthWindow,
	}
}

// Clamp returns a copy with out-of-range values replaced. Each adjustment is reported as an error wrapping
// `types.ErrConfigurationInvalid`.
func (c Config) Clamp() (Config, error) {
	var errs error
	if c.HighPingMillis < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("congestion.highPingMillis", c.HighPingMillis, DefaultHighPingMillis))
		c.HighPingMillis = DefaultHighPingMillis
	}
	if c.CriticalPingMillis < c.HighPingMillis {
		errs = multierr.Append(errs, types.ClampedValueError("congestion.criticalPingMillis", c.CriticalPingMillis, c.HighPingMillis))
		c.CriticalPingMillis = c.HighPingMillis
	}
	if c.HighBandwidthBytesPerSec < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("congestion.highBandwidthBytesPerSec", c.HighBandwidthBytesPerSec,
			DefaultHighBandwidthBytesPerSec))
		c.HighBandwidthBytesPerSec = DefaultHighBandwidthBytesPerSec
	}
	if c.BandwidthWindow <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("congestion.bandwidthWindow", c.BandwidthWindow, DefaultBandwidthWindow))
		c.BandwidthWindow = DefaultBandwidthWindow
	}
	return c, errs
}
