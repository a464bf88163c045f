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

package runner

import (
	"context"
	"errors"

	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/config/loader"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/metrics"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/scheduler"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

type configUpdater interface {
	UpdateConfig(config scheduler.Config) error
}

// reloadConfig loads the configuration file at path and applies it. A file that fails to load leaves the running
// configuration untouched.
func reloadConfig(ctx context.Context, path string, updater configUpdater) error {
	logger := log.FromContext(ctx).WithValues("path", path)

	cfg, err := loader.LoadConfigFile(path, logger)
	if err != nil {
		metrics.RecordConfigReload(false)
		logger.Error(err, "Failed to reload configuration, keeping the current one")
		return err
	}
	if err := updater.UpdateConfig(cfg); err != nil {
		if errors.Is(err, types.ErrConfigurationInvalid) {
			// Clamped values were applied and already logged.
			return nil
		}
		logger.Error(err, "Failed to apply reloaded configuration")
		return err
	}
	logger.V(logutil.DEFAULT).Info("Configuration reloaded")
	return nil
}
