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

// --- Valid Configurations ---

// successConfigText overrides a value in every section.
const successConfigText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
queue:
  globalCapacity: 2000
  classCapacity:
    low: 500
  evictionPolicy: lowest-class-first
  staleAfter: 2s
congestion:
  highPingMillis: 150
  bandwidthWindow: 500ms
joinRamp:
  initialRate: 5
  targetRate: 60
  duration: 20s
  steps: 4
teleport:
  boostDuration: 3s
  boostRate: 200
  nonEssential:
  - level_particles
  - sound
rateControl:
  baseRate: 25
  congestionMultipliers:
    severe: 0.1
dispatch:
  interval: 20ms
  parallelism: 4
classifier:
  classes:
    critical:
    - player_position
    low:
    - level_particles
  bypass:
  - keep_alive
shards: 8
`

// successEmptyText only carries the type information; every value is defaulted.
const successEmptyText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
`

// successClampedText holds out-of-range tuning values which are clamped with warnings.
const successClampedText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
queue:
  globalCapacity: -1
joinRamp:
  initialRate: 0
  duration: 100ms
rateControl:
  mediumThreshold: 500
dispatch:
  parallelism: 0
`

// --- Invalid Configurations ---

// errorBadYamlText is not valid YAML.
const errorBadYamlText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
queue:
  globalCapacity: [1
`

// errorUnknownFieldText contains a field the API does not define.
const errorUnknownFieldText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
queue:
  globalCapactiy: 10
`

// errorUnknownClassText references a class that does not exist.
const errorUnknownClassText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
queue:
  classCapacity:
    urgent: 10
`

// errorUnknownLevelText references a congestion level that does not exist.
const errorUnknownLevelText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
rateControl:
  congestionMultipliers:
    extreme: 0.1
`

// errorDuplicateTypeText lists one message type under two classes.
const errorDuplicateTypeText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: SchedulerConfig
classifier:
  classes:
    critical:
    - player_position
    low:
    - player_position
`

// errorWrongKindText has an unregistered kind.
const errorWrongKindText = `
apiVersion: outbound.scheduler.x-k8s.io/v1alpha1
kind: EndpointPickerConfig
`
