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

package v1alpha1

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// +kubebuilder:object:root=true

// SchedulerConfig is the Schema for the outbound scheduler configuration file.
type SchedulerConfig struct {
	metav1.TypeMeta `json:",inline"`

	// +optional
	// Queue configures the per-connection queue caps and the eviction policy.
	Queue *QueueConfig `json:"queue,omitempty"`

	// +optional
	// Congestion configures the ping and bandwidth thresholds of the congestion detector.
	Congestion *CongestionConfig `json:"congestion,omitempty"`

	// +optional
	// JoinRamp configures the rate ramp applied to newly opened connections.
	JoinRamp *JoinRampConfig `json:"joinRamp,omitempty"`

	// +optional
	// Teleport configures the dispatch boost applied after a teleport.
	Teleport *TeleportConfig `json:"teleport,omitempty"`

	// +optional
	// RateControl configures the backlog tiers and the congestion multipliers.
	RateControl *RateControlConfig `json:"rateControl,omitempty"`

	// +optional
	// Dispatch configures the dispatch worker.
	Dispatch *DispatchConfig `json:"dispatch,omitempty"`

	// +optional
	// Classifier overrides the built-in message type tables.
	Classifier *ClassifierConfig `json:"classifier,omitempty"`

	// +optional
	// Shards is the number of connection registry shards. It is read at startup only.
	Shards *int `json:"shards,omitempty"`
}

func (cfg SchedulerConfig) String() string {
	return fmt.Sprintf(
		"{Queue: %v, Congestion: %v, JoinRamp: %v, Teleport: %v, RateControl: %v, Dispatch: %v, Classifier: %v, Shards: %v}",
		cfg.Queue,
		cfg.Congestion,
		cfg.JoinRamp,
		cfg.Teleport,
		cfg.RateControl,
		cfg.Dispatch,
		cfg.Classifier,
		deref(cfg.Shards),
	)
}

// QueueConfig holds the caps of every connection queue.
type QueueConfig struct {
	// +optional
	// GlobalCapacity bounds the number of queued messages of one connection.
	GlobalCapacity *int `json:"globalCapacity,omitempty"`

	// +optional
	// ClassCapacity bounds the queued messages of one connection per priority class. Keys are the class names
	// critical, high, normal and low. Omitted classes keep their default cap.
	ClassCapacity map[string]int `json:"classCapacity,omitempty"`

	// +optional
	// EvictionPolicy names the registered eviction policy.
	EvictionPolicy string `json:"evictionPolicy,omitempty"`

	// +optional
	// StaleAfter is the age after which a normal message may be evicted to admit a critical or high one.
	StaleAfter *metav1.Duration `json:"staleAfter,omitempty"`

	// +optional
	// HighPriorityEvictionBatch bounds evictions performed at once to admit a critical or high message.
	HighPriorityEvictionBatch *int `json:"highPriorityEvictionBatch,omitempty"`

	// +optional
	// NormalEvictionBatch bounds evictions performed at once to admit a normal message.
	NormalEvictionBatch *int `json:"normalEvictionBatch,omitempty"`
}

func (qc *QueueConfig) String() string {
	if qc == nil {
		return "nil"
	}
	return fmt.Sprintf("{GlobalCapacity: %v, ClassCapacity: %v, EvictionPolicy: %s, StaleAfter: %v, Batches: %v/%v}",
		deref(qc.GlobalCapacity), qc.ClassCapacity, qc.EvictionPolicy, durationString(qc.StaleAfter),
		deref(qc.HighPriorityEvictionBatch), deref(qc.NormalEvictionBatch))
}

// CongestionConfig holds the congestion thresholds.
type CongestionConfig struct {
	// +optional
	HighPingMillis *int64 `json:"highPingMillis,omitempty"`

	// +optional
	CriticalPingMillis *int64 `json:"criticalPingMillis,omitempty"`

	// +optional
	HighBandwidthBytesPerSecond *int64 `json:"highBandwidthBytesPerSecond,omitempty"`

	// +optional
	// BandwidthWindow is the length of the window over which the send rate is measured.
	BandwidthWindow *metav1.Duration `json:"bandwidthWindow,omitempty"`
}

func (cc *CongestionConfig) String() string {
	if cc == nil {
		return "nil"
	}
	return fmt.Sprintf("{HighPingMillis: %v, CriticalPingMillis: %v, HighBandwidthBytesPerSecond: %v, BandwidthWindow: %v}",
		deref(cc.HighPingMillis), deref(cc.CriticalPingMillis), deref(cc.HighBandwidthBytesPerSecond),
		durationString(cc.BandwidthWindow))
}

// JoinRampConfig describes the linear ramp applied after a connection opens.
type JoinRampConfig struct {
	// +optional
	InitialRate *int `json:"initialRate,omitempty"`

	// +optional
	TargetRate *int `json:"targetRate,omitempty"`

	// +optional
	Duration *metav1.Duration `json:"duration,omitempty"`

	// +optional
	Steps *int `json:"steps,omitempty"`
}

func (jc *JoinRampConfig) String() string {
	if jc == nil {
		return "nil"
	}
	return fmt.Sprintf("{InitialRate: %v, TargetRate: %v, Duration: %v, Steps: %v}",
		deref(jc.InitialRate), deref(jc.TargetRate), durationString(jc.Duration), deref(jc.Steps))
}

// TeleportConfig describes the boost window opened by a teleport.
type TeleportConfig struct {
	// +optional
	BoostDuration *metav1.Duration `json:"boostDuration,omitempty"`

	// +optional
	// BoostRate is the minimum per-tick budget while the window is open.
	BoostRate *int `json:"boostRate,omitempty"`

	// +optional
	// NonEssential lists the message types dropped while the window is open. When omitted the built-in list is used.
	NonEssential []string `json:"nonEssential,omitempty"`

	// +optional
	// SweepInterval is how often abandoned windows are expired.
	SweepInterval *metav1.Duration `json:"sweepInterval,omitempty"`
}

func (tc *TeleportConfig) String() string {
	if tc == nil {
		return "nil"
	}
	return fmt.Sprintf("{BoostDuration: %v, BoostRate: %v, NonEssential: %v, SweepInterval: %v}",
		durationString(tc.BoostDuration), deref(tc.BoostRate), tc.NonEssential, durationString(tc.SweepInterval))
}

// RateControlConfig holds the backlog tiers and the congestion scaling.
type RateControlConfig struct {
	// +optional
	MediumThreshold *int `json:"mediumThreshold,omitempty"`

	// +optional
	HeavyThreshold *int `json:"heavyThreshold,omitempty"`

	// +optional
	ExtremeThreshold *int `json:"extremeThreshold,omitempty"`

	// +optional
	BaseRate *int `json:"baseRate,omitempty"`

	// +optional
	MediumRate *int `json:"mediumRate,omitempty"`

	// +optional
	HeavyRate *int `json:"heavyRate,omitempty"`

	// +optional
	ExtremeRate *int `json:"extremeRate,omitempty"`

	// +optional
	// CongestionMultipliers scale the budget of steady connections. Keys are the level names none, low, medium, high
	// and severe. Omitted levels keep their default multiplier.
	CongestionMultipliers map[string]float64 `json:"congestionMultipliers,omitempty"`
}

func (rc *RateControlConfig) String() string {
	if rc == nil {
		return "nil"
	}
	return fmt.Sprintf("{Thresholds: %v/%v/%v, Rates: %v/%v/%v/%v, CongestionMultipliers: %v}",
		deref(rc.MediumThreshold), deref(rc.HeavyThreshold), deref(rc.ExtremeThreshold),
		deref(rc.BaseRate), deref(rc.MediumRate), deref(rc.HeavyRate), deref(rc.ExtremeRate),
		rc.CongestionMultipliers)
}

// DispatchConfig configures the dispatch worker.
type DispatchConfig struct {
	// +optional
	Interval *metav1.Duration `json:"interval,omitempty"`

	// +optional
	// Parallelism bounds how many connections are served concurrently within one tick.
	Parallelism *int `json:"parallelism,omitempty"`
}

func (dc *DispatchConfig) String() string {
	if dc == nil {
		return "nil"
	}
	return fmt.Sprintf("{Interval: %v, Parallelism: %v}", durationString(dc.Interval), deref(dc.Parallelism))
}

// ClassifierConfig overrides the message type tables.
type ClassifierConfig struct {
	// +optional
	// Classes maps a class name to the message types of that class. When present it replaces the built-in table;
	// types not listed anywhere are classified as normal.
	Classes map[string][]string `json:"classes,omitempty"`

	// +optional
	// Bypass lists the connection control message types sent ahead of every class, outside admission and budgets.
	// When omitted the built-in list is used.
	Bypass []string `json:"bypass,omitempty"`
}

func (cc *ClassifierConfig) String() string {
	if cc == nil {
		return "nil"
	}
	return fmt.Sprintf("{Classes: %v, Bypass: %v}", cc.Classes, cc.Bypass)
}

func deref[T any](p *T) any {
	if p == nil {
		return "nil"
	}
	return *p
}

func durationString(d *metav1.Duration) string {
	if d == nil {
		return "nil"
	}
	return d.Duration.String()
}
