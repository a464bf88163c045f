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

package metrics

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/component-base/metrics/testutil"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

const (
	MessagesEnqueuedMetric   = OutboundScheduler + "_messages_enqueued_total"
	MessagesRejectedMetric   = OutboundScheduler + "_messages_rejected_total"
	QueueDepthMetric         = OutboundScheduler + "_queue_depth"
	ConnectionsByPhaseMetric = OutboundScheduler + "_connections_by_phase"
)

func compareWithTestdata(t *testing.T, file string, metricName string) {
	t.Helper()
	want, err := os.Open("testdata/" + file)
	require.NoError(t, err)
	defer func() {
		if err := want.Close(); err != nil {
			t.Error(err)
		}
	}()
	if err := testutil.GatherAndCompare(metrics.Registry, want, metricName); err != nil {
		t.Error(err)
	}
}

// The collectors are package globals, so these tests do not run in parallel.

func TestQueueAccounting(t *testing.T) {
	Register()
	Reset()

	RecordEnqueued(types.Low)
	RecordEnqueued(types.Low)
	RecordEnqueued(types.Low)
	RecordEnqueued(types.Critical)
	RecordEvicted(types.Low, 1)
	RecordDequeued(types.Critical, 1)
	RecordCleared(types.Low, 1)
	RecordEvicted(types.Low, 0)

	compareWithTestdata(t, "messages_enqueued_total", MessagesEnqueuedMetric)
	compareWithTestdata(t, "queue_depth", QueueDepthMetric)
}

func TestRecordRejected(t *testing.T) {
	Register()
	Reset()

	RecordRejected(types.High, RejectReasonCapacity)
	RecordRejected(types.High, RejectReasonCapacity)
	RecordRejected(types.Normal, RejectReasonUnknownConnection)

	compareWithTestdata(t, "messages_rejected_total", MessagesRejectedMetric)
}

func TestSetConnectionsByPhase(t *testing.T) {
	Register()
	Reset()

	SetConnectionsByPhase(map[types.Phase]int{types.PhaseTeleporting: 3})
	SetConnectionsByPhase(map[types.Phase]int{types.PhaseSteady: 5, types.PhaseJoining: 2})

	compareWithTestdata(t, "connections_by_phase", ConnectionsByPhaseMetric)
}
