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
	"slices"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	configapi "sigs.k8s.io/outbound-scheduler/api/config/v1alpha1"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/scheduler"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// setDefaults fills every omitted field with the value used by `scheduler.DefaultConfig`. Fields that were set, even
// to out-of-range values, are left for clamping.
func setDefaults(cfg *configapi.SchedulerConfig) {
	configapi.SetDefaults_SchedulerConfig(cfg)
	def := scheduler.DefaultConfig()

	q := cfg.Queue
	setIfNil(&q.GlobalCapacity, def.Queue.Capacity.Global)
	if q.ClassCapacity == nil {
		q.ClassCapacity = map[string]int{}
	}
	for _, class := range types.Classes() {
		if _, ok := q.ClassCapacity[class.String()]; !ok {
			q.ClassCapacity[class.String()] = def.Queue.Capacity.ForClass(class)
		}
	}
	if q.EvictionPolicy == "" {
		q.EvictionPolicy = string(def.Queue.EvictionPolicy)
	}
	setDurationIfNil(&q.StaleAfter, def.Queue.Policy.StaleAfter)
	setIfNil(&q.HighPriorityEvictionBatch, def.Queue.Policy.HighPriorityEvictionBatch)
	setIfNil(&q.NormalEvictionBatch, def.Queue.Policy.NormalEvictionBatch)

	c := cfg.Congestion
	setIfNil(&c.HighPingMillis, def.Congestion.HighPingMillis)
	setIfNil(&c.CriticalPingMillis, def.Congestion.CriticalPingMillis)
	setIfNil(&c.HighBandwidthBytesPerSecond, def.Congestion.HighBandwidthBytesPerSec)
	setDurationIfNil(&c.BandwidthWindow, def.Congestion.BandwidthWindow)

	r := cfg.JoinRamp
	setIfNil(&r.InitialRate, def.Ramp.InitialRate)
	setIfNil(&r.TargetRate, def.Ramp.TargetRate)
	setDurationIfNil(&r.Duration, def.Ramp.Duration)
	setIfNil(&r.Steps, def.Ramp.Steps)

	t := cfg.Teleport
	setDurationIfNil(&t.BoostDuration, def.Teleport.BoostDuration)
	setIfNil(&t.BoostRate, def.Teleport.BoostRate)
	if t.NonEssential == nil {
		t.NonEssential = def.Teleport.NonEssential
	}
	setDurationIfNil(&t.SweepInterval, def.Teleport.SweepInterval)

	rc := cfg.RateControl
	setIfNil(&rc.MediumThreshold, def.RateControl.MediumThreshold)
	setIfNil(&rc.HeavyThreshold, def.RateControl.HeavyThreshold)
	setIfNil(&rc.ExtremeThreshold, def.RateControl.ExtremeThreshold)
	setIfNil(&rc.BaseRate, def.RateControl.BaseRate)
	setIfNil(&rc.MediumRate, def.RateControl.MediumRate)
	setIfNil(&rc.HeavyRate, def.RateControl.HeavyRate)
	setIfNil(&rc.ExtremeRate, def.RateControl.ExtremeRate)
	if rc.CongestionMultipliers == nil {
		rc.CongestionMultipliers = map[string]float64{}
	}
	for _, level := range types.CongestionLevels() {
		if _, ok := rc.CongestionMultipliers[level.String()]; !ok {
			rc.CongestionMultipliers[level.String()] = def.RateControl.CongestionMultipliers[level]
		}
	}

	d := cfg.Dispatch
	setDurationIfNil(&d.Interval, def.Dispatch.Interval)
	setIfNil(&d.Parallelism, def.Dispatch.Parallelism)

	cl := cfg.Classifier
	if cl.Classes == nil {
		cl.Classes = map[string][]string{}
		for tag, class := range def.Classifier.Table {
			cl.Classes[class.String()] = append(cl.Classes[class.String()], tag)
		}
		for name := range cl.Classes {
			slices.Sort(cl.Classes[name])
		}
	}
	if cl.Bypass == nil {
		cl.Bypass = def.Classifier.Bypass
	}

	setIfNil(&cfg.Shards, def.Shards)
}

func setIfNil[T any](field **T, value T) {
	if *field == nil {
		*field = ptr.To(value)
	}
}

func setDurationIfNil(field **metav1.Duration, value time.Duration) {
	if *field == nil {
		*field = &metav1.Duration{Duration: value}
	}
}
