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

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

type fakeEvents struct {
	mu        sync.Mutex
	opened    []types.ConnectionID
	closed    []types.ConnectionID
	teleports []bool
	pings     int
	bytesSent int64
}

func (f *fakeEvents) OnConnectionOpen(id types.ConnectionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, id)
}

func (f *fakeEvents) OnConnectionClose(id types.ConnectionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return true
}

func (f *fakeEvents) OnTeleportComplete(_ types.ConnectionID, success bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teleports = append(f.teleports, success)
	return true
}

func (f *fakeEvents) OnPingSample(types.ConnectionID, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
}

func (f *fakeEvents) OnBytesSent(_ types.ConnectionID, delta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bytesSent += delta
}

func (f *fakeEvents) snapshot() fakeEvents {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeEvents{
		opened:    append([]types.ConnectionID(nil), f.opened...),
		closed:    append([]types.ConnectionID(nil), f.closed...),
		teleports: append([]bool(nil), f.teleports...),
		pings:     f.pings,
		bytesSent: f.bytesSent,
	}
}

type testHarness struct {
	t       *testing.T
	gateway *Gateway
	events  *fakeEvents
	server  *httptest.Server
}

func newTestHarness(t *testing.T, config Config) *testHarness {
	t.Helper()
	events := &fakeEvents{}
	g := NewGateway(config, logutil.NewTestLogger())
	g.Bind(events)
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return &testHarness{t: t, gateway: g, events: events, server: srv}
}

func (h *testHarness) dial(id string) *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	if id != "" {
		url += "?" + ConnectionParam + "=" + id
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(h.t, err, "failed to dial gateway")
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *testHarness) waitForPeers(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.gateway.Peers() == n }, 2*time.Second, 5*time.Millisecond,
		"gateway should have %d peers", n)
}

func TestGateway_SendDeliversFrame(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t, DefaultConfig())
	conn := h.dial("c1")
	h.waitForPeers(1)

	msg := &types.RawMessage{MessageID: "m1", Tag: "player_position", Payload: []byte(`{"x":1}`)}
	require.NoError(t, h.gateway.Send(context.Background(), "c1", msg))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got frame
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "player_position", got.Type)
	assert.JSONEq(t, `{"x":1}`, string(got.Payload))

	require.Eventually(t, func() bool { return h.events.snapshot().bytesSent == int64(len(data)) },
		time.Second, 5*time.Millisecond, "bytes written should be reported")
	assert.Equal(t, []types.ConnectionID{"c1"}, h.events.snapshot().opened)
}

func TestGateway_MintsConnectionID(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t, DefaultConfig())
	h.dial("")
	require.Eventually(t, func() bool { return len(h.events.snapshot().opened) == 1 }, time.Second, 5*time.Millisecond)

	opened := h.events.snapshot().opened
	assert.Len(t, opened[0].String(), 36, "minted id should be a uuid")
}

func TestGateway_SendUnknownConnection(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t, DefaultConfig())
	err := h.gateway.Send(context.Background(), "missing", &types.RawMessage{MessageID: "m"})
	assert.ErrorIs(t, err, types.ErrUnknownConnection)
}

func TestGateway_SendBufferFull(t *testing.T) {
	t.Parallel()
	g := NewGateway(DefaultConfig(), logutil.NewTestLogger())
	// A peer without a write pump never drains its buffer.
	g.peers["c1"] = &peer{id: "c1", out: make(chan []byte, 1), done: make(chan struct{})}

	msg := &types.RawMessage{MessageID: "m", Tag: "chat"}
	require.NoError(t, g.Send(context.Background(), "c1", msg))
	err := g.Send(context.Background(), "c1", msg)
	assert.True(t, errors.Is(err, ErrSendBufferFull), "second send should find the buffer full, got %v", err)

	g.peers["c1"].close()
	assert.ErrorIs(t, g.Send(context.Background(), "c1", msg), ErrPeerClosed)
}

func TestGateway_CloseNotifiesScheduler(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t, DefaultConfig())
	conn := h.dial("c1")
	h.waitForPeers(1)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	h.waitForPeers(0)
	require.Eventually(t, func() bool { return len(h.events.snapshot().closed) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []types.ConnectionID{"c1"}, h.events.snapshot().closed)
}

func TestGateway_ReusedIDReplacesPeer(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t, DefaultConfig())
	first := h.dial("c1")
	h.waitForPeers(1)
	h.dial("c1")
	require.Eventually(t, func() bool { return len(h.events.snapshot().opened) == 2 }, time.Second, 5*time.Millisecond)

	// The first socket is closed by the gateway.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 1, h.gateway.Peers())
	assert.Never(t, func() bool { return len(h.events.snapshot().closed) > 0 }, 100*time.Millisecond, 5*time.Millisecond,
		"replacing a peer must not close the connection state")
}

func TestGateway_TeleportCompleteControlFrame(t *testing.T) {
	t.Parallel()
	config := DefaultConfig()
	config.ControlRate = 0.001
	config.ControlBurst = 2
	h := newTestHarness(t, config)
	conn := h.dial("c1")
	h.waitForPeers(1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleportComplete","success":false}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleportComplete"}`)))
	// Over the burst.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleportComplete"}`)))

	require.Eventually(t, func() bool { return len(h.events.snapshot().teleports) == 2 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(h.events.snapshot().teleports) > 2 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []bool{false, true}, h.events.snapshot().teleports)
}

func TestGateway_PingSamples(t *testing.T) {
	t.Parallel()
	config := DefaultConfig()
	config.PingInterval = 10 * time.Millisecond
	h := newTestHarness(t, config)
	conn := h.dial("c1")
	h.waitForPeers(1)

	// The default client ping handler answers while the client reads.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	require.Eventually(t, func() bool { return h.events.snapshot().pings > 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestGateway_StartDisconnectsPeersOnShutdown(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t, DefaultConfig())
	h.dial("c1")
	h.dial("c2")
	h.waitForPeers(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.gateway.Start(ctx) }()
	cancel()
	require.NoError(t, <-done)
	h.waitForPeers(0)
	require.Eventually(t, func() bool { return len(h.events.snapshot().closed) == 2 }, time.Second, 5*time.Millisecond)
}

func TestGateway_NotReadyWithoutEvents(t *testing.T) {
	t.Parallel()
	g := NewGateway(DefaultConfig(), logutil.NewTestLogger())
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}

func TestEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  types.Message
		want string
	}{
		{
			name: "json payload is embedded",
			msg:  &types.RawMessage{MessageID: "1", Tag: "chat", Payload: []byte(`["hi"]`)},
			want: `{"id":"1","type":"chat","payload":["hi"]}`,
		},
		{
			name: "opaque payload is quoted",
			msg:  &types.RawMessage{MessageID: "2", Tag: "sound", Payload: []byte("boom")},
			want: `{"id":"2","type":"sound","payload":"boom"}`,
		},
		{
			name: "empty payload is omitted",
			msg:  &types.RawMessage{MessageID: "3", Tag: "keep_alive"},
			want: `{"id":"3","type":"keep_alive"}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := encode(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}

	_, err := encode(nil)
	assert.ErrorIs(t, err, types.ErrNilMessage)
}

func TestConfig_Clamp(t *testing.T) {
	t.Parallel()
	got, err := Config{PingInterval: time.Second, PongWait: time.Second}.Clamp()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigurationInvalid)
	assert.Equal(t, DefaultSendBuffer, got.SendBuffer)
	assert.Equal(t, 2*time.Second, got.PongWait)
	assert.Equal(t, 1, got.ControlBurst)

	got, err = DefaultConfig().Clamp()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), got)
}
