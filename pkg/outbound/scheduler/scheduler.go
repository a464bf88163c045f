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

// Package scheduler contains the `Scheduler`, the single entry point of the outbound message scheduler.
//
// A Scheduler owns the state of every open connection: its priority queue, its telemetry, its join ramp and its
// teleport boost window. Producers call `Scheduler.Enqueue` from any goroutine; admission is synchronous and never
// waits. A single `dispatch.Worker`, started by `Scheduler.Run`, drains the queues into the `types.Transport` on a
// fixed tick.
//
// All configuration is held in one immutable `Config` value. `Scheduler.UpdateConfig` swaps it as a whole; components
// pick up the new values on their next operation.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/classifier"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/congestion"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/dispatch"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/metrics"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/queue"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/ramp"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/ratecontrol"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/teleport"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	loggerName = "Scheduler"

	// phaseGaugeInterval is how often the connections-by-phase gauge is recomputed.
	phaseGaugeInterval = time.Second
)

// queueSettings are applied to every queue created after they were stored.
type queueSettings struct {
	capacity queue.Capacity
	policy   queue.EvictionPolicy
}

// Scheduler is the outbound message scheduler of one process.
type Scheduler struct {
	// --- Immutable dependencies (set at construction) ---

	clock  clock.WithTicker
	logger logr.Logger

	// --- Components ---

	congestion *congestion.Detector
	ramp       *ramp.Controller
	teleport   *teleport.Tracker
	rate       *ratecontrol.Controller
	worker     *dispatch.Worker

	// --- Concurrent state ---

	config     atomic.Pointer[Config]
	classifier atomic.Pointer[classifier.Classifier]
	queues     atomic.Pointer[queueSettings]
	registry   *registry

	running atomic.Bool
	stopped atomic.Bool

	bypass bypassCounters
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock. Intended for tests.
func WithClock(clk clock.WithTicker) Option {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

// New creates a Scheduler. The configuration is clamped first; every clamped value is logged as a warning and does not
// prevent construction.
func New(config Config, transport types.Transport, logger logr.Logger, opts ...Option) (*Scheduler, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	s := &Scheduler{
		clock:  clock.RealClock{},
		logger: logger.WithName(loggerName),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg, findings := config.Clamp()
	s.logFindings(findings)
	settings, err := newQueueSettings(cfg.Queue)
	if err != nil {
		return nil, err
	}

	s.config.Store(&cfg)
	s.queues.Store(settings)
	s.classifier.Store(classifier.New(cfg.Classifier.Table, cfg.Classifier.Bypass))
	s.registry = newRegistry(cfg.Shards)

	s.congestion = congestion.NewDetector(cfg.Congestion, s.clock, logger)
	s.ramp = ramp.NewController(cfg.Ramp, logger)
	s.teleport = teleport.NewTracker(cfg.Teleport, s.clock, logger)
	s.rate = ratecontrol.NewController(cfg.RateControl, s.congestion, s.ramp, s.teleport, logger)
	s.worker = dispatch.NewWorker(cfg.Dispatch, s.registry, s.rate, s.teleport, transport, s.clock, logger)

	s.logger.V(logutil.DEFAULT).Info("Scheduler created", "shards", cfg.Shards,
		"globalCapacity", cfg.Queue.Capacity.Global, "evictionPolicy", cfg.Queue.EvictionPolicy,
		"dispatchInterval", cfg.Dispatch.Interval.String())
	return s, nil
}

func newQueueSettings(cfg queue.Config) (*queueSettings, error) {
	policy, err := queue.NewPolicyFromName(cfg.EvictionPolicy, cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create eviction policy: %w", err)
	}
	return &queueSettings{capacity: cfg.Capacity, policy: policy}, nil
}

func (s *Scheduler) logFindings(findings error) {
	for _, err := range multierr.Errors(findings) {
		s.logger.Info("Configuration value clamped", "warning", err.Error())
	}
}

// Config returns the active configuration.
func (s *Scheduler) Config() Config {
	return s.config.Load().deepCopy()
}

// Run drives dispatch, expires abandoned teleport boosts and refreshes the phase gauge until ctx is done. After Run
// returns the Scheduler refuses new messages with `types.ErrSchedulerStopped`. Run may be called only once.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scheduler is already running")
	}
	defer s.stopped.Store(true)

	s.logger.V(logutil.DEFAULT).Info("Scheduler starting")
	defer s.logger.V(logutil.DEFAULT).Info("Scheduler stopped")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.worker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.teleport.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.runPhaseGauge(ctx)
		return nil
	})
	return g.Wait()
}

// Running reports whether Run is active.
func (s *Scheduler) Running() bool {
	return s.running.Load() && !s.stopped.Load()
}

func (s *Scheduler) runPhaseGauge(ctx context.Context) {
	ticker := s.clock.NewTicker(phaseGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			metrics.SetConnectionsByPhase(s.phaseCounts(s.clock.Now()))
		}
	}
}

// --- Lifecycle ---

// OnConnectionOpen registers the connection and starts its join ramp. Opening an id that is already open discards its
// previous state first, as if it had been closed.
func (s *Scheduler) OnConnectionOpen(id types.ConnectionID) {
	now := s.clock.Now()
	settings := s.queues.Load()
	c := &connection{
		id:       id,
		queue:    queue.NewConnectionQueue(settings.capacity, settings.policy, s.clock),
		openedAt: now,
		bypass:   &s.bypass,
	}

	s.congestion.Add(id)
	s.teleport.Remove(id)
	s.ramp.Start(id, now)
	if prev, reopened := s.registry.put(c); reopened {
		s.discard(prev)
		s.logger.V(logutil.VERBOSE).Info("Connection reopened, previous state discarded", "connectionID", id)
		return
	}
	metrics.IncConnections()
	s.logger.V(logutil.VERBOSE).Info("Connection opened", "connectionID", id)
}

// OnConnectionClose drops every queued message of the connection and forgets it. It reports whether the connection
// was open. A dispatch already in flight for the connection completes; later ticks no longer see it.
func (s *Scheduler) OnConnectionClose(id types.ConnectionID) bool {
	c, ok := s.registry.remove(id)
	if !ok {
		return false
	}
	dropped := s.discard(c)
	s.congestion.Remove(id)
	s.ramp.Remove(id)
	s.teleport.Remove(id)
	metrics.DecConnections()
	s.logger.V(logutil.VERBOSE).Info("Connection closed", "connectionID", id, "droppedMessages", dropped)
	return true
}

// discard clears the queue of c and returns the number of dropped messages.
func (s *Scheduler) discard(c *connection) int {
	total := 0
	for class, n := range c.queue.ClearByClass() {
		metrics.RecordCleared(types.PriorityClass(class), n)
		total += n
	}
	return total
}

// OnTeleportStart opens a teleport boost window for the connection. It reports whether the connection is open.
func (s *Scheduler) OnTeleportStart(id types.ConnectionID) bool {
	if _, ok := s.registry.get(id); !ok {
		return false
	}
	now := s.clock.Now()
	s.teleport.Start(id, s.phaseAt(id, now), now)
	return true
}

// OnTeleportComplete closes the boost window of the connection. It reports whether a window was open.
func (s *Scheduler) OnTeleportComplete(id types.ConnectionID, success bool) bool {
	return s.teleport.Complete(id, success, s.clock.Now())
}

// OnPingSample records a round-trip time sample. Samples for unknown connections are ignored.
func (s *Scheduler) OnPingSample(id types.ConnectionID, pingMillis int64) {
	s.congestion.OnPingSample(id, pingMillis)
}

// OnBytesSent records bytes written to the connection. Reports for unknown connections are ignored.
func (s *Scheduler) OnBytesSent(id types.ConnectionID, delta int64) {
	s.congestion.OnBytesSent(id, delta)
}

// --- Enqueue ---

// Enqueue submits msg for the connection and reports whether it was accepted. hint, when non-nil and valid, replaces
// the classifier's decision. Enqueue never blocks on dispatch and never panics; a refused message is simply dropped.
func (s *Scheduler) Enqueue(id types.ConnectionID, msg types.Message, hint *types.PriorityClass) bool {
	return s.TryEnqueue(id, msg, hint) == nil
}

// TryEnqueue is `Enqueue` returning why a message was refused. The error wraps `types.ErrUnknownConnection`,
// `types.ErrAdmissionRejected`, `types.ErrSchedulerStopped` or `types.ErrNilMessage`.
//
// Control messages skip admission and go to the control lane of the connection, which the dispatch worker sends ahead
// of every class on its next tick. A full control lane rejects the message.
func (s *Scheduler) TryEnqueue(id types.ConnectionID, msg types.Message, hint *types.PriorityClass) error {
	if msg == nil {
		return types.ErrNilMessage
	}
	if s.stopped.Load() {
		return types.ErrSchedulerStopped
	}

	cls := s.classifier.Load()
	class := cls.Classify(msg)
	if hint != nil && hint.Valid() {
		class = *hint
	}

	c, ok := s.registry.get(id)
	if !ok {
		metrics.RecordRejected(class, metrics.RejectReasonUnknownConnection)
		return fmt.Errorf("%w: %s", types.ErrUnknownConnection, id)
	}
	if cls.Bypass(msg) {
		if !c.queue.PushControl(msg) {
			metrics.RecordRejected(class, metrics.RejectReasonCapacity)
			s.logger.V(logutil.DEBUG).Info("Control lane full, control message rejected", "connectionID", id,
				"messageID", msg.ID(), "type", msg.TypeTag())
			return fmt.Errorf("%w: connection %s, control lane full", types.ErrAdmissionRejected, id)
		}
		return nil
	}

	res := c.queue.Enqueue(msg, class)
	var evicted [types.NumClasses]int
	for _, e := range res.Evicted {
		evicted[e.Class]++
	}
	for victim, n := range evicted {
		metrics.RecordEvicted(types.PriorityClass(victim), n)
	}
	if !res.Accepted {
		metrics.RecordRejected(class, metrics.RejectReasonCapacity)
		s.logger.V(logutil.TRACE).Info("Message rejected at admission", "connectionID", id, "messageID", msg.ID(),
			"class", class)
		return fmt.Errorf("%w: connection %s, class %s", types.ErrAdmissionRejected, id, class)
	}
	metrics.RecordEnqueued(class)
	if len(res.Evicted) > 0 {
		s.logger.V(logutil.DEBUG).Info("Evicted queued messages to admit a higher class", "connectionID", id,
			"class", class, "evicted", len(res.Evicted))
	}
	return nil
}

// --- Reads ---

// phaseAt derives the phase of the connection. A teleport boost wins over the join ramp.
func (s *Scheduler) phaseAt(id types.ConnectionID, now time.Time) types.Phase {
	switch {
	case s.teleport.IsActive(id, now):
		return types.PhaseTeleporting
	case s.ramp.IsJoining(id, now):
		return types.PhaseJoining
	default:
		return types.PhaseSteady
	}
}

// Phase returns the current phase of the connection, or false if it is not open.
func (s *Scheduler) Phase(id types.ConnectionID) (types.Phase, bool) {
	if _, ok := s.registry.get(id); !ok {
		return types.PhaseSteady, false
	}
	return s.phaseAt(id, s.clock.Now()), true
}

// QueueDepth returns the number of messages queued for the connection. It is zero for unknown connections.
func (s *Scheduler) QueueDepth(id types.ConnectionID) int {
	c, ok := s.registry.get(id)
	if !ok {
		return 0
	}
	return c.queue.Len()
}

// CongestionLevel returns the congestion level of the connection. It is `types.CongestionNone` for unknown
// connections.
func (s *Scheduler) CongestionLevel(id types.ConnectionID) types.CongestionLevel {
	return s.congestion.Level(id)
}

// Connections returns the number of open connections.
func (s *Scheduler) Connections() int {
	return s.registry.len()
}

// Snapshot returns a read-only view of the connection, or false if it is not open.
func (s *Scheduler) Snapshot(id types.ConnectionID) (ConnectionSnapshot, bool) {
	c, ok := s.registry.get(id)
	if !ok {
		return ConnectionSnapshot{}, false
	}
	return s.snapshot(c, s.clock.Now()), true
}

// Snapshots returns a view of every open connection ordered by id.
func (s *Scheduler) Snapshots() []ConnectionSnapshot {
	now := s.clock.Now()
	conns := s.connections()
	out := make([]ConnectionSnapshot, 0, len(conns))
	for _, c := range conns {
		out = append(out, s.snapshot(c, now))
	}
	slices.SortFunc(out, func(a, b ConnectionSnapshot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Scheduler) snapshot(c *connection, now time.Time) ConnectionSnapshot {
	qs := c.queue.Stats()
	stats, _ := s.congestion.Stats(c.id)
	snap := ConnectionSnapshot{
		ID:             c.id,
		OpenedAt:       c.openedAt,
		Phase:          s.phaseAt(c.id, now),
		Congestion:     stats,
		BytesSent:      s.congestion.TotalBytes(c.id),
		QueueDepth:     qs.Len,
		GlobalCapacity: qs.GlobalCapacity,
		Classes:        classSnapshots(c, qs),
	}
	if snap.Phase == types.PhaseTeleporting {
		if prev, ok := s.teleport.PreviousPhase(c.id); ok {
			snap.PreviousPhase = &prev
		}
	}
	if rate, joining := s.ramp.CurrentRate(c.id, now); joining {
		snap.RampRate = rate
	}
	return snap
}

// Stats aggregates every open connection together with the teleport and bypass counters.
func (s *Scheduler) Stats() Stats {
	now := s.clock.Now()
	st := Stats{
		Phases:         make(map[types.Phase]int, len(types.Phases())),
		Classes:        make(map[types.PriorityClass]ClassSnapshot, types.NumClasses),
		Bypassed:       s.bypass.sent.Load(),
		BypassFailures: s.bypass.failed.Load(),
		RampsCompleted: s.ramp.Completed(),
		DispatchTicks:  s.worker.Ticks(),
		Teleport:       s.teleport.Stats(),
	}
	for _, phase := range types.Phases() {
		st.Phases[phase] = 0
	}
	for _, c := range s.connections() {
		qs := c.queue.Stats()
		st.Connections++
		st.QueueDepth += qs.Len
		st.Phases[s.phaseAt(c.id, now)]++
		for class, cs := range classSnapshots(c, qs) {
			agg := st.Classes[class]
			agg.add(cs)
			st.Classes[class] = agg
		}
	}
	return st
}

// ResetStats zeroes every counter of every connection and of the teleport tracker. Occupancy is unaffected.
func (s *Scheduler) ResetStats() {
	for _, c := range s.connections() {
		c.queue.ResetStats()
		c.resetCounters()
	}
	s.teleport.ResetStats()
	s.bypass.sent.Store(0)
	s.bypass.failed.Store(0)
	s.logger.V(logutil.DEFAULT).Info("Statistics reset")
}

func (s *Scheduler) phaseCounts(now time.Time) map[types.Phase]int {
	counts := make(map[types.Phase]int, len(types.Phases()))
	for _, c := range s.connections() {
		counts[s.phaseAt(c.id, now)]++
	}
	return counts
}

func (s *Scheduler) connections() []*connection {
	conns := make([]*connection, 0, s.registry.len())
	s.registry.forEach(func(c *connection) {
		conns = append(conns, c)
	})
	return conns
}

// --- Configuration ---

// UpdateConfig replaces the configuration of every component. Values are clamped as in `New`; the clamp findings are
// logged and returned, and the clamped configuration is applied regardless.
//
// Queues keep their resident entries when caps shrink; new admissions observe the new caps. Ramps in progress keep the
// shape they started with. The number of registry shards cannot change.
func (s *Scheduler) UpdateConfig(config Config) error {
	cfg, findings := config.Clamp()
	s.logFindings(findings)
	settings, err := newQueueSettings(cfg.Queue)
	if err != nil {
		metrics.RecordConfigReload(false)
		return err
	}
	cfg.Shards = s.config.Load().Shards

	s.config.Store(&cfg)
	s.queues.Store(settings)
	s.classifier.Store(classifier.New(cfg.Classifier.Table, cfg.Classifier.Bypass))
	s.congestion.SetConfig(cfg.Congestion)
	s.ramp.SetConfig(cfg.Ramp)
	s.teleport.SetConfig(cfg.Teleport)
	s.rate.SetConfig(cfg.RateControl)
	s.worker.SetConfig(cfg.Dispatch)
	for _, c := range s.connections() {
		c.queue.SetCapacity(settings.capacity)
		c.queue.SetPolicy(settings.policy)
	}

	metrics.RecordConfigReload(true)
	s.logger.V(logutil.DEFAULT).Info("Configuration updated", "globalCapacity", cfg.Queue.Capacity.Global,
		"evictionPolicy", cfg.Queue.EvictionPolicy, "dispatchInterval", cfg.Dispatch.Interval.String())
	return findings
}

// Tick runs a single dispatch pass outside of `Run`.
func (s *Scheduler) Tick(ctx context.Context) dispatch.TickResult {
	return s.worker.Tick(ctx)
}
