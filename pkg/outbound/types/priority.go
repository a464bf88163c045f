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

package types

import (
	"fmt"
	"strings"
)

// PriorityClass is the dispatch priority of a message. Classes are totally ordered: a larger value is dispatched
// first.
type PriorityClass int

const (
	// Low carries cosmetic and informational updates (particles, sounds, scoreboards). It is the first to be evicted.
	Low PriorityClass = iota
	// Normal carries bulk world data. It is the default for unrecognized message types.
	Normal
	// High carries world and entity changes the client must observe promptly.
	High
	// Critical carries state the client cannot function without (own position, health, inventory).
	Critical
)

// NumClasses is the number of priority classes.
const NumClasses = int(Critical) + 1

var classesHighestFirst = []PriorityClass{Critical, High, Normal, Low}

// Classes returns every priority class ordered from highest to lowest. The returned slice must not be modified.
func Classes() []PriorityClass { return classesHighestFirst }

// Valid reports whether the class is one of the defined classes.
func (c PriorityClass) Valid() bool { return c >= Low && c <= Critical }

// HigherThan reports whether c is dispatched strictly before other.
func (c PriorityClass) HigherThan(other PriorityClass) bool { return c > other }

// String returns the lower-case name of the class, suitable as a metric label.
func (c PriorityClass) String() string {
	switch c {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// ParsePriorityClass parses a class name as produced by `PriorityClass.String`. Matching is case-insensitive.
func ParsePriorityClass(s string) (PriorityClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return Critical, nil
	case "high":
		return High, nil
	case "normal":
		return Normal, nil
	case "low":
		return Low, nil
	default:
		return Normal, fmt.Errorf("unknown priority class %q", s)
	}
}

// MarshalText encodes the class by name.
func (c PriorityClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot marshal priority class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a class name.
func (c *PriorityClass) UnmarshalText(text []byte) error {
	parsed, err := ParsePriorityClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
