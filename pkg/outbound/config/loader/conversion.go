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

package loader

import (
	"fmt"
	"slices"
	"strings"

	configapi "sigs.k8s.io/outbound-scheduler/api/config/v1alpha1"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/queue"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/scheduler"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// convert translates a defaulted configuration into the internal form. Unknown class or congestion level names are
// errors; values are not range checked here.
func convert(cfg *configapi.SchedulerConfig) (scheduler.Config, error) {
	out := scheduler.DefaultConfig()

	q := cfg.Queue
	out.Queue.Capacity.Global = *q.GlobalCapacity
	for name, limit := range q.ClassCapacity {
		class, err := types.ParsePriorityClass(name)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("queue.classCapacity: %w", err)
		}
		out.Queue.Capacity.PerClass[class] = limit
	}
	out.Queue.EvictionPolicy = queue.RegisteredPolicyName(q.EvictionPolicy)
	out.Queue.Policy.StaleAfter = q.StaleAfter.Duration
	out.Queue.Policy.HighPriorityEvictionBatch = *q.HighPriorityEvictionBatch
	out.Queue.Policy.NormalEvictionBatch = *q.NormalEvictionBatch

	c := cfg.Congestion
	out.Congestion.HighPingMillis = *c.HighPingMillis
	out.Congestion.CriticalPingMillis = *c.CriticalPingMillis
	out.Congestion.HighBandwidthBytesPerSec = *c.HighBandwidthBytesPerSecond
	out.Congestion.BandwidthWindow = c.BandwidthWindow.Duration

	r := cfg.JoinRamp
	out.Ramp.InitialRate = *r.InitialRate
	out.Ramp.TargetRate = *r.TargetRate
	out.Ramp.Duration = r.Duration.Duration
	out.Ramp.Steps = *r.Steps

	t := cfg.Teleport
	out.Teleport.BoostDuration = t.BoostDuration.Duration
	out.Teleport.BoostRate = *t.BoostRate
	out.Teleport.NonEssential = slices.Clone(t.NonEssential)
	out.Teleport.SweepInterval = t.SweepInterval.Duration

	rc := cfg.RateControl
	out.RateControl.MediumThreshold = *rc.MediumThreshold
	out.RateControl.HeavyThreshold = *rc.HeavyThreshold
	out.RateControl.ExtremeThreshold = *rc.ExtremeThreshold
	out.RateControl.BaseRate = *rc.BaseRate
	out.RateControl.MediumRate = *rc.MediumRate
	out.RateControl.HeavyRate = *rc.HeavyRate
	out.RateControl.ExtremeRate = *rc.ExtremeRate
	for name, multiplier := range rc.CongestionMultipliers {
		level, err := parseCongestionLevel(name)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("rateControl.congestionMultipliers: %w", err)
		}
		out.RateControl.CongestionMultipliers[level] = multiplier
	}

	d := cfg.Dispatch
	out.Dispatch.Interval = d.Interval.Duration
	out.Dispatch.Parallelism = *d.Parallelism

	cl := cfg.Classifier
	out.Classifier.Table = make(map[string]types.PriorityClass)
	for name, tags := range cl.Classes {
		class, err := types.ParsePriorityClass(name)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("classifier.classes: %w", err)
		}
		for _, tag := range tags {
			if prev, dup := out.Classifier.Table[tag]; dup && prev != class {
				return scheduler.Config{}, fmt.Errorf("classifier.classes: type %q listed under both %s and %s", tag, prev, class)
			}
			out.Classifier.Table[tag] = class
		}
	}
	out.Classifier.Bypass = slices.Clone(cl.Bypass)

	out.Shards = *cfg.Shards
	return out, nil
}

func parseCongestionLevel(name string) (types.CongestionLevel, error) {
	for _, level := range types.CongestionLevels() {
		if strings.EqualFold(strings.TrimSpace(name), level.String()) {
			return level, nil
		}
	}
	return types.CongestionNone, fmt.Errorf("unknown congestion level %q", name)
}
