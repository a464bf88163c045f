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

import "time"

// ConnectionID identifies one network peer for the duration of one session.
type ConnectionID string

// String returns the identifier as a plain string.
func (id ConnectionID) String() string { return string(id) }

// Message is the opaque unit of transmission handed to the scheduler by producers.
//
// The scheduler never inspects payloads. It relies only on an identity for logging, an approximate size for bandwidth
// accounting, and a type tag used by the classifier and by teleport filtering.
type Message interface {
	// ID returns an identifier for the message, used for logging and tracing only.
	ID() string
	// Size returns the approximate encoded size of the message in bytes.
	Size() uint64
	// TypeTag returns the classification-relevant type of the message (for example "player_position").
	TypeTag() string
}

// RawMessage is a `Message` carrying an encoded payload.
type RawMessage struct {
	MessageID string
	Tag       string
	Payload   []byte
}

var _ Message = &RawMessage{}

// ID implements `Message`.
func (m *RawMessage) ID() string { return m.MessageID }

// Size implements `Message`.
func (m *RawMessage) Size() uint64 { return uint64(len(m.Payload)) }

// TypeTag implements `Message`.
func (m *RawMessage) TypeTag() string { return m.Tag }

// QueueEntry is a message resident in a connection queue.
type QueueEntry struct {
	Message Message
	Class   PriorityClass
	// Sequence is assigned at admission from a per-connection monotonic counter. It is the only tie-break between
	// entries of the same class; enqueue timestamps are informational.
	Sequence    uint64
	EnqueueTime time.Time
}

// Age returns how long the entry has been resident at the given instant.
func (e *QueueEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.EnqueueTime)
}
