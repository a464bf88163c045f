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

import "context"

// Transport hands messages to the real network layer.
//
// Send may block; it is only ever called from the dispatch worker, never from a producer. Implementations must be
// safe for concurrent use across different connections. A returned error drops the message; it is never retried.
type Transport interface {
	Send(ctx context.Context, id ConnectionID, msg Message) error
}

// TransportFunc adapts a function to the `Transport` interface.
type TransportFunc func(ctx context.Context, id ConnectionID, msg Message) error

// Send implements `Transport`.
func (f TransportFunc) Send(ctx context.Context, id ConnectionID, msg Message) error { return f(ctx, id, msg) }
