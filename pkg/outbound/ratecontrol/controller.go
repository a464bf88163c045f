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

// Package ratecontrol computes the per-tick dispatch budget of a connection from its backlog, phase and congestion
// level.
package ratecontrol

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/metrics"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const loggerName = "RateController"

// CongestionSource reports the congestion level of a connection.
type CongestionSource interface {
	Level(id types.ConnectionID) types.CongestionLevel
}

// RampSource reports the join ramp rate of a connection and whether it is still joining.
type RampSource interface {
	CurrentRate(id types.ConnectionID, now time.Time) (int, bool)
}

// BoostSource reports whether a connection is inside a teleport boost window.
type BoostSource interface {
	IsActive(id types.ConnectionID, now time.Time) bool
	BoostRate() int
}

// Decision is the budget of one connection for one tick, with what decided it.
type Decision struct {
	Budget int
	// Source is one of the metrics.BudgetSource* values.
	Source string
	// Base is the backlog tier rate before any override or scaling.
	Base  int
	Level types.CongestionLevel
}

// Controller combines backlog tiers, teleport boost, join ramp and congestion scaling into a dispatch budget.
type Controller struct {
	config     atomic.Pointer[Config]
	congestion CongestionSource
	ramp       RampSource
	boost      BoostSource
	logger     logr.Logger
}

// NewController creates a Controller. The configuration is expected to be clamped already.
func NewController(config Config, congestion CongestionSource, ramp RampSource, boost BoostSource, logger logr.Logger) *Controller {
	c := &Controller{
		congestion: congestion,
		ramp:       ramp,
		boost:      boost,
		logger:     logger.WithName(loggerName),
	}
	c.config.Store(&config)
	c.logger.V(logutil.DEFAULT).Info("Creating new RateController",
		"thresholds", []int{config.MediumThreshold, config.HeavyThreshold, config.ExtremeThreshold},
		"rates", []int{config.BaseRate, config.MediumRate, config.HeavyRate, config.ExtremeRate},
		"congestionMultipliers", config.CongestionMultipliers)
	return c
}

// SetConfig replaces the tiers and multipliers. It takes effect on the next budget computation.
func (c *Controller) SetConfig(config Config) {
	c.config.Store(&config)
}

// BacklogRate returns the tier rate for the backlog. Larger backlogs never get a smaller rate.
func (c *Controller) BacklogRate(backlog int) int {
	return backlogRate(c.config.Load(), backlog)
}

func backlogRate(cfg *Config, backlog int) int {
	switch {
	case backlog > cfg.ExtremeThreshold:
		return cfg.ExtremeRate
	case backlog > cfg.HeavyThreshold:
		return cfg.HeavyRate
	case backlog > cfg.MediumThreshold:
		return cfg.MediumRate
	default:
		return cfg.BaseRate
	}
}

// Budget returns the number of messages the connection may dispatch in the tick at now.
//
//  1. The backlog tier selects a base rate.
//  2. While joining, the ramp rate replaces the base rate.
//  3. Otherwise the base rate is scaled by the congestion multiplier and never drops below one.
//  4. During a teleport boost the budget is raised to at least the boost rate and the unscaled base rate. A boost
//     never lowers the budget computed in steps 2 and 3.
func (c *Controller) Budget(id types.ConnectionID, now time.Time, backlog int) Decision {
	cfg := c.config.Load()
	d := Decision{
		Base:  backlogRate(cfg, backlog),
		Level: c.congestion.Level(id),
	}

	if rate, joining := c.ramp.CurrentRate(id, now); joining {
		d.Budget = max(rate, 1)
		d.Source = metrics.BudgetSourceJoinRamp
	} else {
		d.Budget = scale(d.Base, multiplier(cfg, d.Level))
		d.Source = metrics.BudgetSourceBacklog
	}
	if c.boost.IsActive(id, now) {
		d.Budget = max(d.Budget, d.Base, c.boost.BoostRate())
		d.Source = metrics.BudgetSourceTeleportBoost
	}

	c.logger.V(logutil.TRACE).Info("Computed dispatch budget", "connectionID", id, "backlog", backlog,
		"base", d.Base, "budget", d.Budget, "source", d.Source, "congestion", d.Level)
	return d
}

func multiplier(cfg *Config, level types.CongestionLevel) float64 {
	if level < types.CongestionNone || int(level) >= types.NumCongestionLevels {
		return 1
	}
	return cfg.CongestionMultipliers[level]
}

func scale(rate int, multiplier float64) int {
	if multiplier <= 0 {
		return 1
	}
	return max(1, int(math.Floor(float64(rate)*multiplier)))
}
