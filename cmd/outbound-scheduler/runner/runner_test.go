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

package runner

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tlsutil "sigs.k8s.io/outbound-scheduler/internal/tls"
	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	runserver "sigs.k8s.io/outbound-scheduler/pkg/outbound/server"
)

func TestLoadSchedulerConfig(t *testing.T) {
	logger := logutil.NewTestLogger()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadSchedulerConfig(runserver.NewOptions(), logger)
		require.NoError(t, err)
		assert.Positive(t, cfg.Queue.Capacity.Global)
	})

	t.Run("inline text", func(t *testing.T) {
		opts := runserver.NewOptions()
		opts.ConfigText = reloadConfigText
		cfg, err := loadSchedulerConfig(opts, logger)
		require.NoError(t, err)
		assert.Equal(t, 321, cfg.Queue.Capacity.Global)
	})

	t.Run("file", func(t *testing.T) {
		opts := runserver.NewOptions()
		opts.ConfigFile = writeConfig(t, reloadConfigText)
		cfg, err := loadSchedulerConfig(opts, logger)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.RateControl.BaseRate)
	})

	t.Run("invalid text", func(t *testing.T) {
		opts := runserver.NewOptions()
		opts.ConfigText = "kind: [\n"
		_, err := loadSchedulerConfig(opts, logger)
		assert.Error(t, err)
	})
}

// writeCertDir stores a freshly generated key pair as tls.crt and tls.key.
func writeCertDir(t *testing.T) string {
	t.Helper()
	cert, err := tlsutil.CreateSelfSignedTLSCertificate(logr.Discard())
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tls.crt"),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]}), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tls.key"),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600))
	return dir
}

func TestServerTLSConfig(t *testing.T) {
	t.Run("self-signed", func(t *testing.T) {
		cfg, reloader, err := serverTLSConfig("", logr.Discard())
		require.NoError(t, err)
		assert.Nil(t, reloader)
		assert.Len(t, cfg.Certificates, 1)
	})

	t.Run("certificate directory", func(t *testing.T) {
		cfg, reloader, err := serverTLSConfig(writeCertDir(t), logr.Discard())
		require.NoError(t, err)
		require.NotNil(t, reloader)
		require.NotNil(t, cfg.GetCertificate)
		cert, err := cfg.GetCertificate(nil)
		require.NoError(t, err)
		assert.Same(t, reloader.Get(), cert)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := serverTLSConfig(filepath.Join(t.TempDir(), "absent"), logr.Discard())
		assert.Error(t, err)
	})
}

func TestRunner_Setup(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(t *testing.T, opts *runserver.Options)
		wantRunnables int
	}{
		{
			// scheduler, gateway, api, health, metrics
			name:          "defaults",
			mutate:        func(*testing.T, *runserver.Options) {},
			wantRunnables: 5,
		},
		{
			name: "watched config file",
			mutate: func(t *testing.T, opts *runserver.Options) {
				opts.ConfigFile = writeConfig(t, reloadConfigText)
			},
			wantRunnables: 6,
		},
		{
			name: "unwatched config file",
			mutate: func(t *testing.T, opts *runserver.Options) {
				opts.ConfigFile = writeConfig(t, reloadConfigText)
				opts.WatchConfig = false
			},
			wantRunnables: 5,
		},
		{
			name: "secure serving with rotating certificate",
			mutate: func(t *testing.T, opts *runserver.Options) {
				opts.SecureServing = true
				opts.CertPath = writeCertDir(t)
			},
			wantRunnables: 6,
		},
		{
			name: "secure serving with self-signed certificate",
			mutate: func(t *testing.T, opts *runserver.Options) {
				opts.SecureServing = true
			},
			wantRunnables: 5,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := runserver.NewOptions()
			opts.EnablePprof = false
			tc.mutate(t, opts)

			runnables, sched, err := NewRunner().setup(opts)
			require.NoError(t, err)
			require.NotNil(t, sched)
			assert.Len(t, runnables, tc.wantRunnables)
			assert.False(t, sched.Running())
		})
	}
}

func TestRunner_SetupInvalidConfig(t *testing.T) {
	opts := runserver.NewOptions()
	opts.ConfigFile = writeConfig(t, "bogus: true\n")
	_, _, err := NewRunner().setup(opts)
	assert.Error(t, err)
}
