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

package ratecontrol

import (
	"go.uber.org/multierr"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// Default configuration values
const (
	DefaultMediumThreshold  = 50
	DefaultHeavyThreshold   = 150
	DefaultExtremeThreshold = 400

	DefaultBaseRate    = 20
	DefaultMediumRate  = 40
	DefaultHeavyRate   = 80
	DefaultExtremeRate = 150
)

// Config holds the backlog tiers and congestion multipliers of the Controller.
type Config struct {
	// Backlog thresholds. A backlog strictly above a threshold selects the matching rate.
	MediumThreshold  int
	HeavyThreshold   int
	ExtremeThreshold int

	BaseRate    int
	MediumRate  int
	HeavyRate   int
	ExtremeRate int

	// CongestionMultipliers scale the backlog budget of steady connections, indexed by `types.CongestionLevel`.
	CongestionMultipliers [types.NumCongestionLevels]float64
}

// DefaultCongestionMultipliers returns the default scaling per congestion level.
func DefaultCongestionMultipliers() [types.NumCongestionLevels]float64 {
	var m [types.NumCongestionLevels]float64
	m[types.CongestionNone] = 1.0
	m[types.CongestionLow] = 0.85
	m[types.CongestionMedium] = 0.65
	m[types.CongestionHigh] = 0.45
	m[types.CongestionSevere] = 0.25
	return m
}

// DefaultConfig returns the default tiers.
func DefaultConfig() Config {
	return Config{
		MediumThreshold:       DefaultMediumThreshold,
		HeavyThreshold:        DefaultHeavyThreshold,
		ExtremeThreshold:      DefaultExtremeThreshold,
		BaseRate:              DefaultBaseRate,
		MediumRate:            DefaultMediumRate,
		HeavyRate:             DefaultHeavyRate,
		ExtremeRate:           DefaultExtremeRate,
		CongestionMultipliers: DefaultCongestionMultipliers(),
	}
}

// Clamp returns a copy where thresholds are non-negative and strictly increasing, rates are at least 1 and
// non-decreasing across tiers, and multipliers lie in (0, 1] and do not increase with the congestion level.
func (c Config) Clamp() (Config, error) {
	var errs error

	if c.MediumThreshold < 0 {
		errs = multierr.Append(errs, types.ClampedValueError("rate.mediumThreshold", c.MediumThreshold, 0))
		c.MediumThreshold = 0
	}
	if c.HeavyThreshold <= c.MediumThreshold {
		errs = multierr.Append(errs, types.ClampedValueError("rate.heavyThreshold", c.HeavyThreshold, c.MediumThreshold+1))
		c.HeavyThreshold = c.MediumThreshold + 1
	}
	if c.ExtremeThreshold <= c.HeavyThreshold {
		errs = multierr.Append(errs, types.ClampedValueError("rate.extremeThreshold", c.ExtremeThreshold, c.HeavyThreshold+1))
		c.ExtremeThreshold = c.HeavyThreshold + 1
	}

	if c.BaseRate < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("rate.baseRate", c.BaseRate, 1))
		c.BaseRate = 1
	}
	if c.MediumRate < c.BaseRate {
		errs = multierr.Append(errs, types.ClampedValueError("rate.mediumRate", c.MediumRate, c.BaseRate))
		c.MediumRate = c.BaseRate
	}
	if c.HeavyRate < c.MediumRate {
		errs = multierr.Append(errs, types.ClampedValueError("rate.heavyRate", c.HeavyRate, c.MediumRate))
		c.HeavyRate = c.MediumRate
	}
	if c.ExtremeRate < c.HeavyRate {
		errs = multierr.Append(errs, types.ClampedValueError("rate.extremeRate", c.ExtremeRate, c.HeavyRate))
		c.ExtremeRate = c.HeavyRate
	}

	defaults := DefaultCongestionMultipliers()
	ceiling := 1.0
	for _, level := range types.CongestionLevels() {
		m := c.CongestionMultipliers[level]
		field := "rate.congestionMultipliers." + level.String()
		switch {
		case m <= 0:
			used := min(defaults[level], ceiling)
			errs = multierr.Append(errs, types.ClampedValueError(field, m, used))
			m = used
		case m > ceiling:
			errs = multierr.Append(errs, types.ClampedValueError(field, m, ceiling))
			m = ceiling
		}
		c.CongestionMultipliers[level] = m
		ceiling = m
	}
	return c, errs
}
