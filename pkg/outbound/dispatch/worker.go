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

// Package dispatch implements the periodic worker that drains connection queues into the transport.
//
// Each tick the worker takes a snapshot of the connections with backlog. For each it first sends every pending control
// message, outside any budget, then computes a budget, moves up to that many entries out of the queue under the queue
// lock and sends them without holding any lock. The worker is the only caller of the transport. Connections are
// served concurrently up to a bound, so a slow transport on one connection occupies one slot and does not hold up the
// others. Send failures are logged and counted; the message is dropped and never retried.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/common/observability/tracing"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/metrics"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/queue"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/ratecontrol"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const loggerName = "DispatchWorker"

// Outcome is the fate of a message that left a queue through the worker.
type Outcome int

const (
	// OutcomeSent means the transport accepted the message.
	OutcomeSent Outcome = iota
	// OutcomeFiltered means the message was dropped as non-essential during a teleport boost.
	OutcomeFiltered
	// OutcomeTransportError means the transport failed and the message was dropped.
	OutcomeTransportError
)

// Recorder receives per-connection dispatch outcomes.
type Recorder interface {
	RecordDispatch(class types.PriorityClass, outcome Outcome, count int)
}

// ControlRecorder receives the outcomes of control messages. A `Recorder` may implement it.
type ControlRecorder interface {
	RecordControl(outcome Outcome)
}

// Target is a connection with backlog as seen by one tick.
type Target struct {
	ID    types.ConnectionID
	Queue *queue.ConnectionQueue
	// Recorder may be nil.
	Recorder Recorder
}

// TargetSource lists the connections that currently have queued messages.
type TargetSource interface {
	// Backlogged appends every connection with queued or control messages to dst and returns it.
	Backlogged(dst []Target) []Target
}

// Budgeter computes the per-tick budget of a connection.
type Budgeter interface {
	Budget(id types.ConnectionID, now time.Time, backlog int) ratecontrol.Decision
}

// Filter identifies messages to drop at dispatch while a teleport boost is open.
type Filter interface {
	IsActive(id types.ConnectionID, now time.Time) bool
	IsNonEssential(tag string) bool
	RecordFiltered(n int)
}

// TickResult summarizes one tick.
type TickResult struct {
	Connections int
	// Sent counts queued messages sent; Control counts control messages sent.
	Sent     int
	Control  int
	Filtered int
	Failed   int
}

// Worker drives dispatch on a fixed period.
type Worker struct {
	clock     clock.WithTicker
	logger    logr.Logger
	config    atomic.Pointer[Config]
	source    TargetSource
	budgeter  Budgeter
	filter    Filter
	transport types.Transport

	ticks atomic.Uint64
}

// NewWorker creates a Worker. filter may be nil to disable teleport filtering.
func NewWorker(
	config Config,
	source TargetSource,
	budgeter Budgeter,
	filter Filter,
	transport types.Transport,
	clk clock.WithTicker,
	logger logr.Logger,
) *Worker {
	w := &Worker{
		clock:     clk,
		logger:    logger.WithName(loggerName),
		source:    source,
		budgeter:  budgeter,
		filter:    filter,
		transport: transport,
	}
	w.config.Store(&config)
	return w
}

// SetConfig replaces the configuration. A new interval takes effect after the current tick.
func (w *Worker) SetConfig(config Config) {
	w.config.Store(&config)
}

// Ticks returns the number of completed ticks.
func (w *Worker) Ticks() uint64 {
	return w.ticks.Load()
}

// Run ticks until ctx is done. The context is also handed to every transport send.
func (w *Worker) Run(ctx context.Context) {
	interval := w.config.Load().Interval
	ticker := w.clock.NewTicker(interval)
	defer func() { ticker.Stop() }()

	w.logger.V(logutil.DEFAULT).Info("Dispatch worker started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.V(logutil.DEFAULT).Info("Dispatch worker stopped", "ticks", w.ticks.Load())
			return
		case <-ticker.C():
			res := w.Tick(ctx)
			if res.Connections > 0 {
				w.logger.V(logutil.DEBUG).Info("Dispatch tick", "connections", res.Connections,
					"sent", res.Sent, "filtered", res.Filtered, "failed", res.Failed)
			}
			if next := w.config.Load().Interval; next != interval {
				ticker.Stop()
				interval = next
				ticker = w.clock.NewTicker(interval)
				w.logger.V(logutil.DEFAULT).Info("Dispatch interval changed", "interval", interval.String())
			}
		}
	}
}

// Tick performs one scheduling pass over every connection with backlog. It returns once every send of the pass has
// returned.
func (w *Worker) Tick(ctx context.Context) TickResult {
	start := w.clock.Now()
	defer func() {
		w.ticks.Add(1)
		metrics.RecordDispatchTick(w.clock.Since(start))
	}()

	targets := w.source.Backlogged(nil)
	if len(targets) == 0 {
		return TickResult{}
	}

	ctx, span := tracing.Tracer().Start(ctx, "dispatch.tick", trace.WithAttributes(
		attribute.Int("outbound.connections", len(targets))))
	defer span.End()

	var sent, control, filtered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.config.Load().Parallelism)
	for _, target := range targets {
		g.Go(func() error {
			c, ce := w.dispatchControl(ctx, target)
			s, f, e := w.dispatch(ctx, target, start)
			control.Add(int64(c))
			sent.Add(int64(s))
			filtered.Add(int64(f))
			failed.Add(int64(e + ce))
			return nil
		})
	}
	_ = g.Wait()

	result := TickResult{
		Connections: len(targets),
		Sent:        int(sent.Load()),
		Control:     int(control.Load()),
		Filtered:    int(filtered.Load()),
		Failed:      int(failed.Load()),
	}
	span.SetAttributes(
		attribute.Int("outbound.sent", result.Sent),
		attribute.Int("outbound.control", result.Control),
		attribute.Int("outbound.filtered", result.Filtered),
		attribute.Int("outbound.failed", result.Failed))
	return result
}

// dispatchControl sends every pending control message of one connection. Control messages are neither budgeted nor
// filtered. It returns the number of sent and failed messages.
func (w *Worker) dispatchControl(ctx context.Context, target Target) (sent, failed int) {
	if target.Queue.ControlLen() == 0 {
		return 0, 0
	}
	recorder, _ := target.Recorder.(ControlRecorder)
	for _, msg := range target.Queue.DrainControl() {
		outcome := OutcomeSent
		if err := w.send(ctx, target.ID, msg); err != nil {
			w.logger.V(logutil.DEFAULT).Error(err, "Dropping control message after transport failure",
				"connectionID", target.ID, "messageID", msg.ID(), "type", msg.TypeTag())
			outcome = OutcomeTransportError
			failed++
		} else {
			metrics.RecordBypassed()
			sent++
		}
		if recorder != nil {
			recorder.RecordControl(outcome)
		}
	}
	return sent, failed
}

// dispatch serves one connection and returns the number of sent, filtered and failed messages.
func (w *Worker) dispatch(ctx context.Context, target Target, now time.Time) (sent, filtered, failed int) {
	logger := w.logger.WithValues("connectionID", target.ID)
	backlog := target.Queue.Len()
	if backlog == 0 {
		return 0, 0, 0
	}

	decision := w.budgeter.Budget(target.ID, now, backlog)
	metrics.RecordBudgetDecision(decision.Source, decision.Level, decision.Budget)

	var discard func(*types.QueueEntry) bool
	if w.filter != nil && w.filter.IsActive(target.ID, now) {
		discard = func(e *types.QueueEntry) bool {
			return w.filter.IsNonEssential(e.Message.TypeTag())
		}
	}

	batch, discarded := target.Queue.Drain(decision.Budget, discard)
	for _, e := range discarded {
		metrics.RecordDequeued(e.Class, 1)
		metrics.RecordFiltered(e.Class, 1)
		w.record(target, e.Class, OutcomeFiltered)
	}
	if len(discarded) > 0 {
		w.filter.RecordFiltered(len(discarded))
		logger.V(logutil.TRACE).Info("Dropped non-essential messages during teleport boost", "count", len(discarded))
	}

	for _, e := range batch {
		metrics.RecordDequeued(e.Class, 1)
		if err := w.send(ctx, target.ID, e.Message); err != nil {
			logger.V(logutil.DEFAULT).Error(err, "Dropping message after transport failure",
				"messageID", e.Message.ID(), "class", e.Class)
			metrics.RecordTransportError(e.Class)
			w.record(target, e.Class, OutcomeTransportError)
			failed++
			continue
		}
		logger.V(logutil.TRACE).Info("Dispatched message", "messageID", e.Message.ID(), "class", e.Class,
			"sequence", e.Sequence)
		metrics.RecordDispatched(e.Class)
		w.record(target, e.Class, OutcomeSent)
		sent++
	}
	return sent, len(discarded), failed
}

// send hands one message to the transport. A panicking transport is converted into an error.
func (w *Worker) send(ctx context.Context, id types.ConnectionID, msg types.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", types.ErrTransport, r)
		}
	}()
	if err := w.transport.Send(ctx, id, msg); err != nil {
		return fmt.Errorf("%w: %w", types.ErrTransport, err)
	}
	return nil
}

func (w *Worker) record(target Target, class types.PriorityClass, outcome Outcome) {
	if target.Recorder != nil {
		target.Recorder.RecordDispatch(class, outcome, 1)
	}
}
