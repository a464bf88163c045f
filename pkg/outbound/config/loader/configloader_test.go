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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	configapi "sigs.k8s.io/outbound-scheduler/api/config/v1alpha1"
	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/queue"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/scheduler"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// --- Test: Raw Loading ---

func TestLoadRawConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configText string
		want       *configapi.SchedulerConfig
		wantErr    bool
	}{
		{
			name:       "Success - Partial Configuration",
			configText: successClampedText,
			want: &configapi.SchedulerConfig{
				Queue:       &configapi.QueueConfig{GlobalCapacity: ptr.To(-1)},
				Congestion:  &configapi.CongestionConfig{},
				JoinRamp:    &configapi.JoinRampConfig{InitialRate: ptr.To(0), Duration: &metav1.Duration{Duration: 100 * time.Millisecond}},
				Teleport:    &configapi.TeleportConfig{},
				RateControl: &configapi.RateControlConfig{MediumThreshold: ptr.To(500)},
				Dispatch:    &configapi.DispatchConfig{Parallelism: ptr.To(0)},
				Classifier:  &configapi.ClassifierConfig{},
			},
		},
		{
			name:       "Success - Only Type Information",
			configText: successEmptyText,
			want: &configapi.SchedulerConfig{
				Queue:       &configapi.QueueConfig{},
				Congestion:  &configapi.CongestionConfig{},
				JoinRamp:    &configapi.JoinRampConfig{},
				Teleport:    &configapi.TeleportConfig{},
				RateControl: &configapi.RateControlConfig{},
				Dispatch:    &configapi.DispatchConfig{},
				Classifier:  &configapi.ClassifierConfig{},
			},
		},
		{
			name:       "Success - Empty Text",
			configText: "  \n",
			want: &configapi.SchedulerConfig{
				Queue:       &configapi.QueueConfig{},
				Congestion:  &configapi.CongestionConfig{},
				JoinRamp:    &configapi.JoinRampConfig{},
				Teleport:    &configapi.TeleportConfig{},
				RateControl: &configapi.RateControlConfig{},
				Dispatch:    &configapi.DispatchConfig{},
				Classifier:  &configapi.ClassifierConfig{},
			},
		},
		{name: "Error - Invalid YAML", configText: errorBadYamlText, wantErr: true},
		{name: "Error - Unknown Field", configText: errorUnknownFieldText, wantErr: true},
		{name: "Error - Unregistered Kind", configText: errorWrongKindText, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := LoadRawConfig([]byte(tc.configText))
			if tc.wantErr {
				require.Error(t, err, "Expected LoadRawConfig to fail")
				return
			}
			require.NoError(t, err, "Expected LoadRawConfig to succeed")
			diff := cmp.Diff(tc.want, got, cmpopts.IgnoreFields(configapi.SchedulerConfig{}, "TypeMeta"))
			require.Empty(t, diff, "Config mismatch (-want +got):\n%s", diff)
		})
	}
}

// --- Test: Defaulting, Conversion and Clamping ---

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	full := scheduler.DefaultConfig()
	full.Queue.Capacity.Global = 2000
	full.Queue.Capacity.PerClass[types.Low] = 500
	full.Queue.EvictionPolicy = queue.LowestClassFirstPolicyName
	full.Queue.Policy.StaleAfter = 2 * time.Second
	full.Congestion.HighPingMillis = 150
	full.Congestion.BandwidthWindow = 500 * time.Millisecond
	full.Ramp.InitialRate = 5
	full.Ramp.TargetRate = 60
	full.Ramp.Duration = 20 * time.Second
	full.Ramp.Steps = 4
	full.Teleport.BoostDuration = 3 * time.Second
	full.Teleport.BoostRate = 200
	full.Teleport.NonEssential = []string{"level_particles", "sound"}
	full.RateControl.BaseRate = 25
	full.RateControl.CongestionMultipliers[types.CongestionSevere] = 0.1
	full.Dispatch.Interval = 20 * time.Millisecond
	full.Dispatch.Parallelism = 4
	full.Classifier.Table = map[string]types.PriorityClass{
		"player_position": types.Critical,
		"level_particles": types.Low,
	}
	full.Classifier.Bypass = []string{"keep_alive"}
	full.Shards = 8

	tests := []struct {
		name       string
		configText string
		want       scheduler.Config
		wantErr    bool
	}{
		{name: "Full Configuration", configText: successConfigText, want: full},
		{name: "Defaults Only", configText: successEmptyText, want: scheduler.DefaultConfig()},
		{name: "No Configuration", configText: "", want: scheduler.DefaultConfig()},
		{name: "Error - Unknown Class", configText: errorUnknownClassText, wantErr: true},
		{name: "Error - Unknown Congestion Level", configText: errorUnknownLevelText, wantErr: true},
		{name: "Error - Type Listed Twice", configText: errorDuplicateTypeText, wantErr: true},
		{name: "Error - Invalid YAML", configText: errorBadYamlText, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := LoadConfig([]byte(tc.configText), logutil.NewTestLogger())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfig_ClampsOutOfRangeValues(t *testing.T) {
	t.Parallel()
	got, err := LoadConfig([]byte(successClampedText), logutil.NewTestLogger())
	require.NoError(t, err, "out-of-range values never fail loading")

	assert.Equal(t, queue.DefaultGlobalCapacity, got.Queue.Capacity.Global)
	assert.Equal(t, 1, got.Ramp.InitialRate)
	assert.Equal(t, time.Second, got.Ramp.Duration)
	assert.Equal(t, 500, got.RateControl.MediumThreshold)
	assert.Greater(t, got.RateControl.HeavyThreshold, got.RateControl.MediumThreshold)
	assert.Greater(t, got.RateControl.ExtremeThreshold, got.RateControl.HeavyThreshold)
	assert.Equal(t, 1, got.Dispatch.Parallelism)

	_, err = got.Clamp()
	assert.NoError(t, err, "a loaded configuration is already in range")
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(successConfigText), 0o600))

	got, err := LoadConfigFile(path, logutil.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 2000, got.Queue.Capacity.Global)

	got, err = LoadConfigFile("", logutil.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, scheduler.DefaultConfig().Queue, got.Queue)

	_, err = LoadConfigFile(filepath.Join(dir, "missing.yaml"), logutil.NewTestLogger())
	require.Error(t, err)
}

func TestDefaultConfigYAML(t *testing.T) {
	t.Parallel()
	text, err := DefaultConfigYAML()
	require.NoError(t, err)
	assert.Contains(t, string(text), "kind: SchedulerConfig")

	got, err := LoadConfig(text, logutil.NewTestLogger())
	require.NoError(t, err, "the rendered defaults must load strictly")
	if diff := cmp.Diff(scheduler.DefaultConfig(), got); diff != "" {
		t.Errorf("rendered defaults do not load back to the defaults (-want +got):\n%s", diff)
	}
}
