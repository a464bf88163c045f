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

// Package classifier maps outbound messages to priority classes.
package classifier

import (
	"strings"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// Classifier assigns a `types.PriorityClass` to a message by its type tag. It is immutable after construction and safe
// for concurrent use.
type Classifier struct {
	table  map[string]types.PriorityClass
	bypass map[string]struct{}
}

// New returns a Classifier using the given class table and bypass tags. Tags are matched case-insensitively. A nil
// table selects `DefaultTable`; a nil bypass list selects `DefaultBypass`.
func New(table map[string]types.PriorityClass, bypass []string) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	if bypass == nil {
		bypass = DefaultBypass()
	}
	c := &Classifier{
		table:  make(map[string]types.PriorityClass, len(table)),
		bypass: make(map[string]struct{}, len(bypass)),
	}
	for tag, class := range table {
		if !class.Valid() {
			continue
		}
		c.table[normalize(tag)] = class
	}
	for _, tag := range bypass {
		c.bypass[normalize(tag)] = struct{}{}
	}
	return c
}

// Classify returns the priority class of msg. Unrecognized types, and a nil message, map to `types.Normal`.
func (c *Classifier) Classify(msg types.Message) types.PriorityClass {
	if msg == nil {
		return types.Normal
	}
	if class, ok := c.table[normalize(msg.TypeTag())]; ok {
		return class
	}
	return types.Normal
}

// Bypass reports whether msg is a connection control message that skips admission, budgets and filtering.
func (c *Classifier) Bypass(msg types.Message) bool {
	if msg == nil {
		return false
	}
	_, ok := c.bypass[normalize(msg.TypeTag())]
	return ok
}

func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
