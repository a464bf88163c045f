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
	"time"

	"go.uber.org/multierr"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// Default configuration values
const (
	// DefaultInitialRate is the per-tick budget granted right after a connection opens.
	DefaultInitialRate = 3
	// DefaultTargetRate is the per-tick budget reached when the ramp completes.
	DefaultTargetRate = 50
	// DefaultDuration is how long the ramp lasts.
	DefaultDuration = 15 * time.Second
	// DefaultSteps is the number of discrete increments between the initial and target rate.
	DefaultSteps = 10
	// MinStepDuration is the shortest step a ramp may have. It bounds Steps by the duration.
	MinStepDuration = time.Millisecond
)

// Config describes the linear ramp applied to newly opened connections.
type Config struct {
	InitialRate int
	TargetRate  int
	Duration    time.Duration
	Steps       int
}

// DefaultConfig returns the default ramp.
func DefaultConfig() Config {
	return Config{
		InitialRate: DefaultInitialRate,
		TargetRate:  DefaultTargetRate,
		Duration:    DefaultDuration,
		Steps:       DefaultSteps,
	}
}

// Clamp returns a copy where the initial rate is at least 1, the target rate is at least the initial rate, the
// duration is at least one second and the step count lies between one and one step per `MinStepDuration`.
func (c Config) Clamp() (Config, error) {
	var errs error
	if c.InitialRate < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("ramp.initialRate", c.InitialRate, 1))
		c.InitialRate = 1
	}
	if c.TargetRate < c.InitialRate {
		errs = multierr.Append(errs, types.ClampedValueError("ramp.targetRate", c.TargetRate, c.InitialRate))
		c.TargetRate = c.InitialRate
	}
	if c.Duration < time.Second {
		errs = multierr.Append(errs, types.ClampedValueError("ramp.duration", c.Duration, time.Second))
		c.Duration = time.Second
	}
	if c.Steps < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("ramp.steps", c.Steps, 1))
		c.Steps = 1
	}
	if maxSteps := int64(c.Duration / MinStepDuration); int64(c.Steps) > maxSteps {
		errs = multierr.Append(errs, types.ClampedValueError("ramp.steps", c.Steps, maxSteps))
		c.Steps = int(maxSteps)
	}
	return c, errs
}

// stepLength returns the duration of one step, never less than a nanosecond.
func (c Config) stepLength() time.Duration {
	return max(c.Duration/time.Duration(max(c.Steps, 1)), time.Nanosecond)
}

// RateAtStep returns the interpolated rate for the given step, floored to an integer.
func (c Config) RateAtStep(step int) int {
	if step >= c.Steps {
		return c.TargetRate
	}
	if step <= 0 {
		return c.InitialRate
	}
	return c.InitialRate + (c.TargetRate-c.InitialRate)*step/c.Steps
}
