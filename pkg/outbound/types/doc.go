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

// Package types defines the core data types shared by every component of the outbound scheduler.
//
// The scheduler reshapes the stream of outbound messages produced for a set of network connections. Each message is
// classified into a `PriorityClass`, admitted into a bounded per-connection queue, and later dispatched to the
// transport by a periodic worker at a per-tick budget derived from the connection's `Phase` and `CongestionLevel`.
//
// The package holds no behavior beyond small value helpers. It exists so that leaf components (classifier, queue,
// congestion detector, ramp controller, teleport tracker) can agree on vocabulary without importing each other.
package types
