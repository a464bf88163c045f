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
	"time"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// Default configuration values
const (
	DefaultSendBuffer   = 256
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 5 * time.Second
	// DefaultPongWait bounds how long a peer may stay silent, pongs included, before it is dropped.
	DefaultPongWait      = 30 * time.Second
	DefaultReadLimit     = 4096
	DefaultControlRate   = rate.Limit(10)
	DefaultControlBurst  = 20
	DefaultHandshakeWait = 10 * time.Second
)

// Config tunes the WebSocket gateway.
type Config struct {
	// SendBuffer is the number of frames queued per peer between the scheduler and the socket. A full buffer fails
	// the send instead of blocking the dispatch worker.
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
	// ReadLimit caps the size of a frame sent by the client.
	ReadLimit int64
	// ControlRate and ControlBurst limit the control frames a client may send.
	ControlRate   rate.Limit
	ControlBurst  int
	HandshakeWait time.Duration
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		SendBuffer:    DefaultSendBuffer,
		WriteTimeout:  DefaultWriteTimeout,
		PingInterval:  DefaultPingInterval,
		PongWait:      DefaultPongWait,
		ReadLimit:     DefaultReadLimit,
		ControlRate:   DefaultControlRate,
		ControlBurst:  DefaultControlBurst,
		HandshakeWait: DefaultHandshakeWait,
	}
}

// Clamp returns a copy with out-of-range values replaced by defaults. A pong wait shorter than the ping interval
// would drop every healthy peer, so it is raised to twice the interval.
func (c Config) Clamp() (Config, error) {
	var errs error
	if c.SendBuffer < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("ws.sendBuffer", c.SendBuffer, DefaultSendBuffer))
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteTimeout <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("ws.writeTimeout", c.WriteTimeout, DefaultWriteTimeout))
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("ws.pingInterval", c.PingInterval, DefaultPingInterval))
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait <= c.PingInterval {
		errs = multierr.Append(errs, types.ClampedValueError("ws.pongWait", c.PongWait, 2*c.PingInterval))
		c.PongWait = 2 * c.PingInterval
	}
	if c.ReadLimit <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("ws.readLimit", c.ReadLimit, DefaultReadLimit))
		c.ReadLimit = DefaultReadLimit
	}
	if c.ControlRate <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("ws.controlRate", c.ControlRate, DefaultControlRate))
		c.ControlRate = DefaultControlRate
	}
	if c.ControlBurst < 1 {
		errs = multierr.Append(errs, types.ClampedValueError("ws.controlBurst", c.ControlBurst, 1))
		c.ControlBurst = 1
	}
	if c.HandshakeWait <= 0 {
		errs = multierr.Append(errs, types.ClampedValueError("ws.handshakeWait", c.HandshakeWait, DefaultHandshakeWait))
		c.HandshakeWait = DefaultHandshakeWait
	}
	return c, errs
}
