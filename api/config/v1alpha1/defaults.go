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

// SetDefaults_SchedulerConfig allocates every omitted section of a SchedulerConfig so that later defaulting only has
// to fill individual fields.
//
// This naming convention is required by the defaulter-gen code.
func SetDefaults_SchedulerConfig(cfg *SchedulerConfig) {
	if cfg.Queue == nil {
		cfg.Queue = &QueueConfig{}
	}
	if cfg.Congestion == nil {
		cfg.Congestion = &CongestionConfig{}
	}
	if cfg.JoinRamp == nil {
		cfg.JoinRamp = &JoinRampConfig{}
	}
	if cfg.Teleport == nil {
		cfg.Teleport = &TeleportConfig{}
	}
	if cfg.RateControl == nil {
		cfg.RateControl = &RateControlConfig{}
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = &DispatchConfig{}
	}
	if cfg.Classifier == nil {
		cfg.Classifier = &ClassifierConfig{}
	}
}
