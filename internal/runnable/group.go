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

// Package runnable adapts servers and background loops to `manager.Runnable` and runs them together.
package runnable

import (
	"context"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

// Run starts every runnable and blocks until all of them returned. The first failure cancels the context of the
// others; its error is returned.
func Run(ctx context.Context, runnables ...manager.Runnable) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, r := range runnables {
		g.Go(func() error {
			return r.Start(ctx)
		})
	}
	return g.Wait()
}

// Func converts a function without a result into a runnable that returns nil once fn does.
func Func(fn func(ctx context.Context)) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
