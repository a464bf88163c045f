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

package queue

import (
	"fmt"
	"sort"
	"sync"
)

// RegisteredPolicyName is the name under which an `EvictionPolicy` constructor is registered.
type RegisteredPolicyName string

// PolicyConstructor creates an `EvictionPolicy` from the shared policy tuning.
type PolicyConstructor func(cfg PolicyConfig) (EvictionPolicy, error)

var (
	// mu guards the registration map.
	mu sync.RWMutex
	// RegisteredPolicies stores the constructors for all registered eviction policies.
	RegisteredPolicies = make(map[RegisteredPolicyName]PolicyConstructor)
)

// MustRegisterPolicy registers a policy constructor, and panics if the name is already registered.
// This is intended to be called from init() functions.
func MustRegisterPolicy(name RegisteredPolicyName, constructor PolicyConstructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := RegisteredPolicies[name]; ok {
		panic(fmt.Sprintf("eviction policy already registered with name %q", name))
	}
	RegisteredPolicies[name] = constructor
}

// NewPolicyFromName creates the eviction policy registered under name.
func NewPolicyFromName(name RegisteredPolicyName, cfg PolicyConfig) (EvictionPolicy, error) {
	mu.RLock()
	defer mu.RUnlock()
	constructor, ok := RegisteredPolicies[name]
	if !ok {
		return nil, fmt.Errorf("no eviction policy registered with name %q", name)
	}
	return constructor(cfg)
}

// IsRegisteredPolicy reports whether a constructor is registered under name.
func IsRegisteredPolicy(name RegisteredPolicyName) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := RegisteredPolicies[name]
	return ok
}

// PolicyNames returns the registered policy names in sorted order.
func PolicyNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(RegisteredPolicies))
	for name := range RegisteredPolicies {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
