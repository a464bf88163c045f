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

package runnable

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"
)

// DefaultShutdownTimeout bounds the graceful shutdown of HTTP servers.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServer converts the given HTTP server into a runnable. srv.Addr is the listen address. When srv.TLSConfig is
// set the server serves TLS using the certificates it provides.
func HTTPServer(name string, srv *http.Server) manager.Runnable {
	return manager.RunnableFunc(func(ctx context.Context) error {
		logger := log.FromContext(ctx).WithValues("name", name)
		logger.Info("HTTP server starting")

		lis, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return fmt.Errorf("HTTP server %s failed to listen - %w", name, err)
		}
		logger.Info("HTTP server listening", "address", lis.Addr().String(), "tls", srv.TLSConfig != nil)

		doneCh := make(chan struct{})
		defer close(doneCh)
		go func() {
			select {
			case <-ctx.Done():
				logger.Info("HTTP server shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error(err, "HTTP server shutdown failed")
				}
			case <-doneCh:
			}
		}()

		if srv.TLSConfig != nil {
			err = srv.ServeTLS(lis, "", "")
		} else {
			err = srv.Serve(lis)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server %s failed - %w", name, err)
		}
		logger.Info("HTTP server terminated")
		return nil
	})
}
