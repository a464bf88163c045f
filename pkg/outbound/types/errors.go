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

import (
	"errors"
	"fmt"
)

var (
	// ErrAdmissionRejected indicates a message could not be admitted because the connection's global cap or the
	// message's class cap was reached and eviction could not make room. The message is dropped.
	//
	// Callers should use `errors.Is(err, ErrAdmissionRejected)` to check for this condition.
	ErrAdmissionRejected = errors.New("admission rejected")

	// ErrUnknownConnection indicates an operation referenced a connection that has no registered state, either because
	// it was never opened or because it has already been closed.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrTransport wraps failures returned (or panics raised) by a `Transport` while sending a message.
	ErrTransport = errors.New("transport send failed")

	// ErrConfigurationInvalid marks a configuration value that was out of range and has been clamped to a safe bound.
	// It is reported as a warning and never prevents the scheduler from starting.
	ErrConfigurationInvalid = errors.New("invalid configuration value")

	// ErrSchedulerStopped indicates the scheduler's Run loop has returned. Messages are no longer dispatched, so new
	// admissions are refused.
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrNilMessage indicates a nil message was passed to an enqueue operation.
	ErrNilMessage = errors.New("message cannot be nil")
)

// ClampedValueError reports that field held got and was replaced with used. The returned error wraps
// `ErrConfigurationInvalid`.
func ClampedValueError(field string, got, used any) error {
	return fmt.Errorf("%w: %s=%v out of range, using %v", ErrConfigurationInvalid, field, got, used)
}
