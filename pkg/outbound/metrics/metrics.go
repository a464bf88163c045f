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

// Package metrics defines the Prometheus collectors of the outbound scheduler. Collectors are registered once into the
// controller-runtime registry and updated through the Record* helpers.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	compbasemetrics "k8s.io/component-base/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	metricsutil "sigs.k8s.io/outbound-scheduler/pkg/common/util/metrics"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	// OutboundScheduler is the subsystem of every collector in this package.
	OutboundScheduler = "outbound_scheduler"

	// RejectReasonCapacity labels admissions rejected by queue caps.
	RejectReasonCapacity = "capacity"
	// RejectReasonUnknownConnection labels enqueues for connections without state.
	RejectReasonUnknownConnection = "unknown_connection"

	// TeleportOutcomeSuccess labels teleports completed successfully.
	TeleportOutcomeSuccess = "success"
	// TeleportOutcomeFailure labels teleports completed unsuccessfully.
	TeleportOutcomeFailure = "failure"
	// TeleportOutcomeExpired labels boost windows that ran out without a completion signal.
	TeleportOutcomeExpired = "expired"

	// BudgetSourceBacklog labels budgets taken from the backlog tiers scaled by congestion.
	BudgetSourceBacklog = "backlog"
	// BudgetSourceTeleportBoost labels budgets raised to the teleport boost floor.
	BudgetSourceTeleportBoost = "teleport_boost"
	// BudgetSourceJoinRamp labels budgets overridden by the join ramp.
	BudgetSourceJoinRamp = "join_ramp"
)

var (
	ClassLabels  = []string{"class"}
	BudgetBucket = []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512}
	// TickDurationBuckets spans 10us to 1s; a dispatch tick is expected to stay well below its 50ms period.
	TickDurationBuckets = []float64{
		0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}
	TeleportDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 7.5, 10, 30}
)

// --- Message Metrics ---
var (
	messagesEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "messages_enqueued_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of messages admitted into connection queues, by priority class.", compbasemetrics.ALPHA),
		},
		ClassLabels,
	)

	messagesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "messages_rejected_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of messages rejected at admission, by priority class and reason.", compbasemetrics.ALPHA),
		},
		append(ClassLabels, "reason"),
	)

	messagesEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "messages_evicted_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of queued messages evicted to admit higher priority messages, by priority class of the evicted message.", compbasemetrics.ALPHA),
		},
		ClassLabels,
	)

	messagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "messages_dispatched_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of messages handed to the transport successfully, by priority class.", compbasemetrics.ALPHA),
		},
		ClassLabels,
	)

	messagesFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "messages_filtered_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of non-essential messages dropped at dispatch during a teleport boost, by priority class.", compbasemetrics.ALPHA),
		},
		ClassLabels,
	)

	messagesBypassed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "messages_bypassed_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of connection control messages sent ahead of the priority classes.", compbasemetrics.ALPHA),
		},
	)

	messagesCleared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "messages_cleared_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of queued messages dropped because their connection closed.", compbasemetrics.ALPHA),
		},
	)

	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "transport_errors_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of messages dropped because the transport failed to send them, by priority class.", compbasemetrics.ALPHA),
		},
		ClassLabels,
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: OutboundScheduler,
			Name:      "queue_depth",
			Help:      metricsutil.HelpMsgWithStability("Gauge of messages resident in connection queues summed over connections, by priority class.", compbasemetrics.ALPHA),
		},
		ClassLabels,
	)
)

// --- Connection and Dispatch Metrics ---
var (
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Subsystem: OutboundScheduler,
			Name:      "connections",
			Help:      metricsutil.HelpMsgWithStability("Gauge of open connections registered with the scheduler.", compbasemetrics.ALPHA),
		},
	)

	connectionsByPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: OutboundScheduler,
			Name:      "connections_by_phase",
			Help:      metricsutil.HelpMsgWithStability("Gauge of open connections by lifecycle phase, refreshed periodically.", compbasemetrics.ALPHA),
		},
		[]string{"phase"},
	)

	budgetDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "budget_decisions_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of per-connection dispatch budget decisions, by deciding source and congestion level.", compbasemetrics.ALPHA),
		},
		[]string{"source", "congestion_level"},
	)

	dispatchBudget = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Subsystem: OutboundScheduler,
			Name:      "dispatch_budget",
			Help:      metricsutil.HelpMsgWithStability("Distribution of per-connection dispatch budgets in messages per tick.", compbasemetrics.ALPHA),
			Buckets:   BudgetBucket,
		},
	)

	dispatchTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Subsystem: OutboundScheduler,
			Name:      "dispatch_tick_duration_seconds",
			Help:      metricsutil.HelpMsgWithStability("Distribution of the wall time spent in one dispatch tick.", compbasemetrics.ALPHA),
			Buckets:   TickDurationBuckets,
		},
	)

	teleportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: OutboundScheduler,
			Name:      "teleport_duration_seconds",
			Help:      metricsutil.HelpMsgWithStability("Distribution of teleport boost window lengths, by outcome.", compbasemetrics.ALPHA),
			Buckets:   TeleportDurationBuckets,
		},
		[]string{"outcome"},
	)

	configReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: OutboundScheduler,
			Name:      "config_reloads_total",
			Help:      metricsutil.HelpMsgWithStability("Counter of configuration reload attempts, by result.", compbasemetrics.ALPHA),
		},
		[]string{"result"},
	)

	info = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: OutboundScheduler,
			Name:      "info",
			Help:      metricsutil.HelpMsgWithStability("General information of the current build.", compbasemetrics.ALPHA),
		},
		[]string{"commit", "build_ref"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register(customCollectors ...prometheus.Collector) {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(messagesEnqueued)
		metrics.Registry.MustRegister(messagesRejected)
		metrics.Registry.MustRegister(messagesEvicted)
		metrics.Registry.MustRegister(messagesDispatched)
		metrics.Registry.MustRegister(messagesFiltered)
		metrics.Registry.MustRegister(messagesBypassed)
		metrics.Registry.MustRegister(messagesCleared)
		metrics.Registry.MustRegister(transportErrors)
		metrics.Registry.MustRegister(queueDepth)

		metrics.Registry.MustRegister(connections)
		metrics.Registry.MustRegister(connectionsByPhase)
		metrics.Registry.MustRegister(budgetDecisions)
		metrics.Registry.MustRegister(dispatchBudget)
		metrics.Registry.MustRegister(dispatchTickDuration)
		metrics.Registry.MustRegister(teleportDuration)
		metrics.Registry.MustRegister(configReloads)
		metrics.Registry.MustRegister(info)
		for _, collector := range customCollectors {
			metrics.Registry.MustRegister(collector)
		}
	})
}

// Reset clears every collector. Intended for tests.
func Reset() {
	messagesEnqueued.Reset()
	messagesRejected.Reset()
	messagesEvicted.Reset()
	messagesDispatched.Reset()
	messagesFiltered.Reset()
	transportErrors.Reset()
	queueDepth.Reset()
	connectionsByPhase.Reset()
	budgetDecisions.Reset()
	teleportDuration.Reset()
	configReloads.Reset()
	info.Reset()
	connections.Set(0)
}

// RecordEnqueued records an admitted message and raises the queue depth of its class.
func RecordEnqueued(class types.PriorityClass) {
	messagesEnqueued.WithLabelValues(class.String()).Inc()
	queueDepth.WithLabelValues(class.String()).Inc()
}

// RecordRejected records a message rejected at admission.
func RecordRejected(class types.PriorityClass, reason string) {
	messagesRejected.WithLabelValues(class.String(), reason).Inc()
}

// RecordEvicted records queued messages evicted to make room and lowers the queue depth of their class.
func RecordEvicted(class types.PriorityClass, count int) {
	if count <= 0 {
		return
	}
	messagesEvicted.WithLabelValues(class.String()).Add(float64(count))
	queueDepth.WithLabelValues(class.String()).Sub(float64(count))
}

// RecordDequeued lowers the queue depth of a class after messages left the queue for dispatch or filtering.
func RecordDequeued(class types.PriorityClass, count int) {
	if count <= 0 {
		return
	}
	queueDepth.WithLabelValues(class.String()).Sub(float64(count))
}

// RecordDispatched records a message accepted by the transport.
func RecordDispatched(class types.PriorityClass) {
	messagesDispatched.WithLabelValues(class.String()).Inc()
}

// RecordFiltered records non-essential messages dropped during a teleport boost.
func RecordFiltered(class types.PriorityClass, count int) {
	if count <= 0 {
		return
	}
	messagesFiltered.WithLabelValues(class.String()).Add(float64(count))
}

// RecordBypassed records a control message sent from a control lane.
func RecordBypassed() {
	messagesBypassed.Inc()
}

// RecordTransportError records a message dropped by a transport failure.
func RecordTransportError(class types.PriorityClass) {
	transportErrors.WithLabelValues(class.String()).Inc()
}

// RecordCleared records messages dropped because their connection closed and lowers the queue depth of their class.
func RecordCleared(class types.PriorityClass, count int) {
	if count <= 0 {
		return
	}
	messagesCleared.Add(float64(count))
	queueDepth.WithLabelValues(class.String()).Sub(float64(count))
}

// IncConnections records an opened connection.
func IncConnections() {
	connections.Inc()
}

// DecConnections records a closed connection.
func DecConnections() {
	connections.Dec()
}

// SetConnectionsByPhase sets the number of connections in each phase. Phases absent from counts are set to zero.
func SetConnectionsByPhase(counts map[types.Phase]int) {
	for _, phase := range types.Phases() {
		connectionsByPhase.WithLabelValues(phase.String()).Set(float64(counts[phase]))
	}
}

// RecordBudgetDecision records the budget computed for one connection in one tick.
func RecordBudgetDecision(source string, level types.CongestionLevel, budget int) {
	budgetDecisions.WithLabelValues(source, level.String()).Inc()
	dispatchBudget.Observe(float64(budget))
}

// RecordDispatchTick records the duration of one dispatch tick.
func RecordDispatchTick(duration time.Duration) {
	dispatchTickDuration.Observe(duration.Seconds())
}

// RecordTeleport records the length of a finished boost window.
func RecordTeleport(outcome string, duration time.Duration) {
	teleportDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordConfigReload records a configuration reload attempt.
func RecordConfigReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	configReloads.WithLabelValues(result).Inc()
}

// RecordInfo records build information.
func RecordInfo(commitSHA, buildRef string) {
	info.WithLabelValues(commitSHA, buildRef).Set(1)
}
