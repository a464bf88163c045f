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

import "fmt"

// Phase is the lifecycle phase of a connection that governs rate overrides. Exactly one phase is active per open
// connection.
type Phase int

const (
	// PhaseSteady applies backlog tiers scaled by congestion.
	PhaseSteady Phase = iota
	// PhaseJoining applies the linear ramp-up rate after the connection opened.
	PhaseJoining
	// PhaseTeleporting applies the boost floor and suppresses non-essential messages.
	PhaseTeleporting
)

func (p Phase) String() string {
	switch p {
	case PhaseSteady:
		return "Steady"
	case PhaseJoining:
		return "Joining"
	case PhaseTeleporting:
		return "Teleporting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// Phases returns every phase.
func Phases() []Phase { return []Phase{PhaseSteady, PhaseJoining, PhaseTeleporting} }

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
