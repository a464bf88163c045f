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

package teleport

import (
	"strings"
	"time"

	"go.uber.org/multierr"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// Default configuration values
const (
	// DefaultBoostDuration bounds a boost window when no completion signal arrives.
	DefaultBoostDuration = 5 * time.Second
	// DefaultBoostRate is the per-tick budget floor while a boost window is open.
	DefaultBoostRate = 150
	// DefaultSweepInterval is how often abandoned boost windows are expired in the background.
	DefaultSweepInterval = time.Second
)

var (
	defaultNonEssential = []string{
		"level_particles",
		"sound",
		"sound_entity",
		"set_subtitle_text",
		"set_title_text",
		"set_action_bar_text",
		"boss_event",
		"set_score",
		"set_display_objective",
		"set_objective",
		"set_player_team",
		"tab_list",
		"player_info_update",
		"move_entity",
		"rotate_head",
		"set_entity_motion",
	}
	// alwaysEssential overrides the non-essential table: these types re-establish the client's view and are never
	// filtered.
	alwaysEssential = []string{
		"player_position",
		"teleport_entity",
		"level_chunk_with_light",
		"forget_level_chunk",
		"set_chunk_cache_center",
		"set_health",
		"container_set_slot",
		"container_set_content",
		"keep_alive",
		"login",
		"disconnect",
	}
)

// Config tunes the teleport boost.
type Config struct {
	BoostDuration time.Duration
	BoostRate     int
	// NonEssential lists the message type tags dropped at dispatch while a boost window is open.
	NonEssential  []string
	SweepInterval time.Duration
}

// DefaultConfig returns the default boost configuration.
func DefaultConfig() Config {
	return Config{
		BoostDuration: DefaultBoostDuration,
		BoostRate:     DefaultBoostRate,
		NonEssential:  DefaultNonEssential(),
		SweepInterval: DefaultSweepInterval,
	}
}

// DefaultNonEssential returns a copy of the built-in non-essential type tags.
func DefaultNonEssential() []string {
	return append([]string(nil), defaultNonEssential...)
}

// Clamp returns a copy with out-of-range values replaced.
func (c Config) Clamp() (Config, error) {
	var errs error
	if c.BoostDuration <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("teleport.boostDuration", c.BoostDuration, DefaultBoostDuration))
		c.BoostDuration = DefaultBoostDuration
	}
	if c.BoostRate < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("teleport.boostRate", c.BoostRate, 1))
		c.BoostRate = 1
	}
	if c.SweepInterval <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("teleport.sweepInterval", c.SweepInterval, DefaultSweepInterval))
		c.SweepInterval = DefaultSweepInterval
	}
	return c, errs
}

// filterTable is the compiled form of the non-essential table.
type filterTable map[string]struct{}

func compile(nonEssential []string) filterTable {
	table := make(filterTable, len(nonEssential))
	for _, tag := range nonEssential {
		table[normalize(tag)] = struct{}{}
	}
	for _, tag := range alwaysEssential {
		delete(table, tag)
	}
	return table
}

func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
