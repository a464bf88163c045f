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

package common

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/common/configwatch"
)

const (
	certFile = "tls.crt"
	keyFile  = "tls.key"
)

// CertReloader serves the key pair stored in a directory as tls.crt and tls.key and reloads it whenever the
// directory changes. A pair that fails to load leaves the current certificate in place.
type CertReloader struct {
	dir     string
	cert    atomic.Pointer[tls.Certificate]
	watcher *configwatch.Watcher
}

// NewCertReloader loads the key pair from dir. Call Start to follow later changes.
func NewCertReloader(dir string) (*CertReloader, error) {
	cert, err := loadKeyPair(dir)
	if err != nil {
		return nil, err
	}
	r := &CertReloader{dir: dir}
	r.cert.Store(cert)
	r.watcher = configwatch.New(dir, r.reload)
	return r, nil
}

// Start follows changes of the directory until ctx is done.
func (r *CertReloader) Start(ctx context.Context) error {
	return r.watcher.Start(log.IntoContext(ctx, log.FromContext(ctx).WithName("cert-reloader")))
}

func (r *CertReloader) reload(ctx context.Context) {
	logger := log.FromContext(ctx).WithValues("path", r.dir)
	cert, err := loadKeyPair(r.dir)
	if err != nil {
		logger.Error(err, "Failed to reload TLS certificate")
		return
	}
	r.cert.Store(cert)
	logger.V(logutil.DEFAULT).Info("Reloaded TLS certificate")
}

// Get returns the current certificate.
func (r *CertReloader) Get() *tls.Certificate {
	return r.cert.Load()
}

// TLSConfig returns a server configuration that always presents the current certificate.
func (r *CertReloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return r.Get(), nil
		},
	}
}

func loadKeyPair(dir string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, certFile), filepath.Join(dir, keyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair from %q: %w", dir, err)
	}
	return &cert, nil
}
