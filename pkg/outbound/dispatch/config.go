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

package dispatch

import (
	"time"

	"go.uber.org/multierr"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// Default configuration values
const (
	// DefaultInterval is the scheduling tick.
	DefaultInterval = 50 * time.Millisecond
	// DefaultParallelism bounds how many connections are sent to concurrently within one tick.
	DefaultParallelism = 16
	// minInterval keeps a misconfigured tick from spinning the worker.
	minInterval = time.Millisecond
)

// Config configures the Worker.
type Config struct {
	Interval    time.Duration
	Parallelism int
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		Parallelism: DefaultParallelism,
	}
}

// Clamp returns a copy with out-of-range values replaced.
func (c Config) Clamp() (Config, error) {
	var errs error
	if c.Interval < minInterval {
		errs = multierr.Append(errs, types.ClampedValueError("dispatch.interval", c.Interval, DefaultInterval))
		c.Interval = DefaultInterval
	}
	if c.Parallelism < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("dispatch.parallelism", c.Parallelism, 1))
		c.Parallelism = 1
	}
	return c, errs
}
