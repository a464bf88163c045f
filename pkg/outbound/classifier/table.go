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

package classifier

import "sigs.k8s.io/outbound-scheduler/pkg/outbound/types"

var (
	criticalTags = []string{
		"container_set_slot",
		"container_set_content",
		"set_entity_data",
		"set_equipment",
		"set_health",
		"set_experience",
		"player_abilities",
		"player_position",
		"teleport_entity",
		"move_entity",
		"rotate_head",
	}
	highTags = []string{
		"add_entity",
		"remove_entities",
		"set_entity_motion",
		"block_update",
		"section_blocks_update",
		"block_entity_data",
		"explode",
		"damage_event",
		"hurt_animation",
	}
	normalTags = []string{
		"level_chunk_with_light",
		"light_update",
		"forget_level_chunk",
		"map_item_data",
		"set_chunk_cache_center",
		"set_chunk_cache_radius",
	}
	lowTags = []string{
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
	}
	bypassTags = []string{
		"login",
		"configuration",
		"disconnect",
		"keep_alive",
	}
)

// DefaultTable returns a fresh copy of the built-in type tag to class table.
func DefaultTable() map[string]types.PriorityClass {
	table := make(map[string]types.PriorityClass, len(criticalTags)+len(highTags)+len(normalTags)+len(lowTags))
	for class, tags := range map[types.PriorityClass][]string{
		types.Critical: criticalTags,
		types.High:     highTags,
		types.Normal:   normalTags,
		types.Low:      lowTags,
	} {
		for _, tag := range tags {
			table[tag] = class
		}
	}
	return table
}

// DefaultBypass returns the built-in control message tags that skip admission and budgets.
func DefaultBypass() []string {
	return append([]string(nil), bypassTags...)
}
