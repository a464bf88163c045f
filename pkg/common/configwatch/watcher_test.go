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

package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
)

func startWatcher(t *testing.T, path string) (*atomic.Int32, context.CancelFunc, <-chan error) {
	t.Helper()
	var calls atomic.Int32
	w := New(path, func(context.Context) { calls.Add(1) }).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(logutil.NewTestLoggerIntoContext(context.Background()))
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(cancel)
	// Give the watcher time to register before the test writes.
	time.Sleep(50 * time.Millisecond)
	return &calls, cancel, done
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1"), 0o600))

	calls, cancel, done := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("a: 2"), 0o600))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_CoalescesBursts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1"), 0o600))

	calls, _, _ := startWatcher(t, path)
	for i := range 5 {
		require.NoError(t, os.WriteFile(path, []byte{byte('0' + i)}, 0o600))
	}
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestWatcher_NotifiesOnAtomicReplace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1"), 0o600))

	calls, _, _ := startWatcher(t, path)
	tmp := filepath.Join(dir, "config.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("a: 2"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1"), 0o600))

	calls, _, _ := startWatcher(t, path)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600))
	assert.Never(t, func() bool { return calls.Load() > 0 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	t.Parallel()
	w := New(filepath.Join(t.TempDir(), "missing", "config.yaml"), func(context.Context) {})
	require.Error(t, w.Start(context.Background()))
}
