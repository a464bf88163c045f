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
	"time"

	"go.uber.org/multierr"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	// DefaultGlobalCapacity is the default maximum number of resident entries per connection.
	DefaultGlobalCapacity = 1000
	// DefaultCriticalCapacity is the default cap for `types.Critical` entries.
	DefaultCriticalCapacity = 500
	// DefaultHighCapacity is the default cap for `types.High` entries.
	DefaultHighCapacity = 400
	// DefaultNormalCapacity is the default cap for `types.Normal` entries.
	DefaultNormalCapacity = 400
	// DefaultLowCapacity is the default cap for `types.Low` entries.
	DefaultLowCapacity = 200
	// DefaultStaleAfter is the default age after which a `types.Normal` entry may be evicted for a higher class.
	DefaultStaleAfter = 5 * time.Second
	// DefaultHighPriorityEvictionBatch bounds evictions performed to admit a `types.Critical` or `types.High` entry.
	DefaultHighPriorityEvictionBatch = 20
	// DefaultNormalEvictionBatch bounds evictions performed to admit a `types.Normal` entry.
	DefaultNormalEvictionBatch = 10
	// ControlLaneCapacity bounds the control messages waiting for the next tick on one connection.
	ControlLaneCapacity = 64
)

// Capacity holds the occupancy limits of a connection queue.
type Capacity struct {
	// Global bounds the total number of resident entries across all classes.
	Global int
	// PerClass bounds the resident entries of each class, indexed by `types.PriorityClass`.
	PerClass [types.NumClasses]int
}

// DefaultCapacity returns the default limits.
func DefaultCapacity() Capacity {
	var c Capacity
	c.Global = DefaultGlobalCapacity
	c.PerClass[types.Critical] = DefaultCriticalCapacity
	c.PerClass[types.High] = DefaultHighCapacity
	c.PerClass[types.Normal] = DefaultNormalCapacity
	c.PerClass[types.Low] = DefaultLowCapacity
	return c
}

// ForClass returns the cap of the given class.
func (c Capacity) ForClass(class types.PriorityClass) int {
	if !class.Valid() {
		return 0
	}
	return c.PerClass[class]
}

// Config configures connection queues and their eviction policy.
type Config struct {
	Capacity Capacity
	// EvictionPolicy is the registered name of the policy used to make room under global pressure.
	EvictionPolicy RegisteredPolicyName
	Policy         PolicyConfig
}

// PolicyConfig tunes the built-in eviction policies.
type PolicyConfig struct {
	// StaleAfter is the minimum age of a `types.Normal` entry before it may be evicted.
	StaleAfter time.Duration
	// HighPriorityEvictionBatch is the maximum number of `types.Low` entries evicted at once to admit a `types.Critical`
	// or `types.High` entry.
	HighPriorityEvictionBatch int
	// NormalEvictionBatch is the maximum number of `types.Low` entries evicted at once to admit a `types.Normal` entry.
	NormalEvictionBatch int
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity(),
		EvictionPolicy: LowThenStaleNormalPolicyName,
		Policy: PolicyConfig{
			StaleAfter:                DefaultStaleAfter,
			HighPriorityEvictionBatch: DefaultHighPriorityEvictionBatch,
			NormalEvictionBatch:       DefaultNormalEvictionBatch,
		},
	}
}

// Clamp returns a copy of the configuration with every out-of-range value replaced by the nearest safe bound. Each
// adjustment is reported as an error wrapping `types.ErrConfigurationInvalid`; the returned configuration is always
// usable.
func (c Config) Clamp() (Config, error) {
	var errs error
	if c.Capacity.Global < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("queue.capacity.global", c.Capacity.Global, DefaultGlobalCapacity))
		c.Capacity.Global = DefaultGlobalCapacity
	}
	for _, class := range types.Classes() {
		limit := c.Capacity.PerClass[class]
		switch {
		case limit < 1:
			errs = multierr.Append(errs, types.ClampedValueError("queue.capacity."+class.String(), limit, 1))
			c.Capacity.PerClass[class] = 1
		case limit > c.Capacity.Global:
			errs = multierr.Append(errs, types.ClampedValueError("queue.capacity."+class.String(), limit, c.Capacity.Global))
			c.Capacity.PerClass[class] = c.Capacity.Global
		}
	}
	if c.Policy.StaleAfter < 0 {
		errs = multierr.Append(errs, types.ClampedValueError("queue.eviction.staleAfter", c.Policy.StaleAfter, time.Duration(0)))
		c.Policy.StaleAfter = 0
	}
	if c.Policy.HighPriorityEvictionBatch < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("queue.eviction.highPriorityBatch", c.Policy.HighPriorityEvictionBatch, 1))
		c.Policy.HighPriorityEvictionBatch = 1
	}
	if c.Policy.NormalEvictionBatch < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("queue.eviction.normalBatch", c.Policy.NormalEvictionBatch, 1))
		c.Policy.NormalEvictionBatch = 1
	}
	if !IsRegisteredPolicy(c.EvictionPolicy) {
		errs = multierr.Append(errs, types.ClampedValueError("queue.eviction.policy", c.EvictionPolicy, LowThenStaleNormalPolicyName))
		c.EvictionPolicy = LowThenStaleNormalPolicyName
	}
	return c, errs
}
