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

// Package loader reads the outbound scheduler configuration file into a `scheduler.Config`.
package loader

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"sigs.k8s.io/yaml"

	configapi "sigs.k8s.io/outbound-scheduler/api/config/v1alpha1"
	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/scheduler"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(configapi.Install(scheme))
}

// LoadConfigFile reads and loads the configuration file at path. An empty path selects the defaults.
func LoadConfigFile(path string, logger logr.Logger) (scheduler.Config, error) {
	if path == "" {
		return LoadConfig(nil, logger)
	}
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("failed to read configuration file %q - %w", path, err)
	}
	return LoadConfig(configBytes, logger)
}

// LoadConfig decodes, defaults and converts the configuration text. Malformed text or unknown fields are errors.
// Out-of-range tuning values are not: they are clamped, logged as warnings and the clamped configuration is returned.
func LoadConfig(configBytes []byte, logger logr.Logger) (scheduler.Config, error) {
	rawConfig, err := LoadRawConfig(configBytes)
	if err != nil {
		return scheduler.Config{}, err
	}
	logger.V(logutil.VERBOSE).Info("Loaded configuration", "config", rawConfig)

	setDefaults(rawConfig)
	logger.V(logutil.VERBOSE).Info("Configuration with defaults set", "config", rawConfig)

	cfg, err := convert(rawConfig)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("the configuration is invalid - %w", err)
	}

	cfg, findings := cfg.Clamp()
	for _, finding := range multierr.Errors(findings) {
		logger.Info("Configuration value clamped", "warning", finding.Error())
	}
	return cfg, nil
}

// LoadRawConfig strictly decodes the configuration text. Empty text yields an empty configuration.
func LoadRawConfig(configBytes []byte) (*configapi.SchedulerConfig, error) {
	rawConfig := &configapi.SchedulerConfig{}
	if len(bytes.TrimSpace(configBytes)) == 0 {
		configapi.SetDefaults_SchedulerConfig(rawConfig)
		return rawConfig, nil
	}

	codecs := serializer.NewCodecFactory(scheme, serializer.EnableStrict)
	if err := runtime.DecodeInto(codecs.UniversalDecoder(), configBytes, rawConfig); err != nil {
		return nil, fmt.Errorf("the configuration is invalid - %w", err)
	}
	return rawConfig, nil
}

// DefaultConfigYAML renders the fully defaulted configuration as YAML.
func DefaultConfigYAML() ([]byte, error) {
	rawConfig := &configapi.SchedulerConfig{}
	rawConfig.APIVersion = configapi.GroupVersion.String()
	rawConfig.Kind = "SchedulerConfig"
	configapi.SetDefaults_SchedulerConfig(rawConfig)
	setDefaults(rawConfig)
	return yaml.Marshal(rawConfig)
}
