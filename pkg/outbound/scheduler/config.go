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

package scheduler

import (
	"maps"
	"slices"

	"go.uber.org/multierr"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/classifier"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/congestion"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/dispatch"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/queue"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/ramp"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/ratecontrol"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/teleport"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	// DefaultShards is the default number of registry shards.
	DefaultShards = 32
	// maxShards bounds the registry fan-out.
	maxShards = 4096
)

// ClassifierConfig overrides the message type tables of the classifier.
type ClassifierConfig struct {
	// Table maps message type tags to classes. Nil selects the built-in table.
	Table map[string]types.PriorityClass
	// Bypass lists the control message type tags that skip admission and budgets. Nil selects the built-in list.
	Bypass []string
}

// Config is the complete, immutable configuration of a Scheduler. A reload replaces it as a whole.
type Config struct {
	Queue       queue.Config
	Congestion  congestion.Config
	Ramp        ramp.Config
	Teleport    teleport.Config
	RateControl ratecontrol.Config
	Dispatch    dispatch.Config
	Classifier  ClassifierConfig
	// Shards is the number of connection registry shards. It is fixed at construction and ignored on reload.
	Shards int
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Queue:       queue.DefaultConfig(),
		Congestion:  congestion.DefaultConfig(),
		Ramp:        ramp.DefaultConfig(),
		Teleport:    teleport.DefaultConfig(),
		RateControl: ratecontrol.DefaultConfig(),
		Dispatch:    dispatch.DefaultConfig(),
		Classifier: ClassifierConfig{
			Table:  classifier.DefaultTable(),
			Bypass: classifier.DefaultBypass(),
		},
		Shards: DefaultShards,
	}
}

// Clamp returns a copy of the configuration in which every out-of-range value of every component has been replaced by
// a safe bound. All adjustments are returned together; each wraps `types.ErrConfigurationInvalid`. The returned
// configuration is usable even when the error is non-nil.
func (c Config) Clamp() (Config, error) {
	var errs, err error
	out := c.deepCopy()
	out.Queue, err = c.Queue.Clamp()
	errs = multierr.Append(errs, err)
	out.Congestion, err = c.Congestion.Clamp()
	errs = multierr.Append(errs, err)
	out.Ramp, err = c.Ramp.Clamp()
	errs = multierr.Append(errs, err)
	out.Teleport, err = out.Teleport.Clamp()
	errs = multierr.Append(errs, err)
	out.RateControl, err = c.RateControl.Clamp()
	errs = multierr.Append(errs, err)
	out.Dispatch, err = c.Dispatch.Clamp()
	errs = multierr.Append(errs, err)

	for tag, class := range out.Classifier.Table {
		if !class.Valid() {
			errs = multierr.Append(errs, types.ClampedValueError("classifier.table."+tag, int(class), types.Normal))
			out.Classifier.Table[tag] = types.Normal
		}
	}
	switch {
	case out.Shards < 1:
		errs = multierr.Append(errs, types.ClampedValueError("shards", out.Shards, DefaultShards))
		out.Shards = DefaultShards
	case out.Shards > maxShards:
		errs = multierr.Append(errs, types.ClampedValueError("shards", out.Shards, maxShards))
		out.Shards = maxShards
	}
	return out, errs
}

// deepCopy copies the reference-typed fields so a caller mutating its Config cannot affect a running Scheduler.
func (c Config) deepCopy() Config {
	out := c
	if c.Classifier.Table != nil {
		out.Classifier.Table = maps.Clone(c.Classifier.Table)
	}
	if c.Classifier.Bypass != nil {
		out.Classifier.Bypass = slices.Clone(c.Classifier.Bypass)
	}
	if c.Teleport.NonEssential != nil {
		out.Teleport.NonEssential = slices.Clone(c.Teleport.NonEssential)
	}
	return out
}
