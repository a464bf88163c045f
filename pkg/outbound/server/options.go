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

package server

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/transport/ws"
)

const (
	DefaultHTTPPort       = 8080
	DefaultGrpcHealthPort = 9005
	DefaultMetricsPort    = 9090
	ZapLogLevelFlagName   = "zap-log-level"
)

// Options contains the command-line configuration of the outbound scheduler server.
type Options struct {
	//
	// Serving.
	//
	HTTPPort      int    // Port of the HTTP API and the WebSocket gateway.
	SecureServing bool   // Serves the HTTP API over TLS.
	CertPath      string // Directory holding tls.crt and tls.key; a self-signed certificate is used when empty.
	//
	// Configuration.
	//
	ConfigFile         string // Path of the SchedulerConfig file.
	ConfigText         string // SchedulerConfig given inline, in lieu of a file.
	WatchConfig        bool   // Reloads ConfigFile when it changes.
	PrintDefaultConfig bool   // Prints the default SchedulerConfig and exits.
	//
	// WebSocket gateway.
	//
	WebSocket ws.Config
	//
	// Diagnostics.
	//
	LogVerbosity   int         // Number for the log level verbosity.
	ZapOptions     zap.Options // Zap logging options.
	MetricsPort    int         // The metrics port.
	GRPCHealthPort int         // The port for gRPC liveness and readiness probes.
	EnablePprof    bool        // Enables pprof handlers on the metrics port.
	Tracing        bool        // Enables OpenTelemetry tracing, configured through OTEL_* variables.

	// internal
	fs *pflag.FlagSet // FlagSet used in AddFlags() and consulted in Complete()
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		HTTPPort:       DefaultHTTPPort,
		WatchConfig:    true,
		WebSocket:      ws.DefaultConfig(),
		LogVerbosity:   logging.DEFAULT,
		ZapOptions:     zap.Options{Development: true},
		MetricsPort:    DefaultMetricsPort,
		GRPCHealthPort: DefaultGrpcHealthPort,
		EnablePprof:    true,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.IntVar(&opts.HTTPPort, "http-port", opts.HTTPPort,
		"The port of the HTTP API and the WebSocket gateway.")
	fs.BoolVar(&opts.SecureServing, "secure-serving", opts.SecureServing,
		"Serves the HTTP API and the WebSocket gateway over TLS.")
	fs.StringVar(&opts.CertPath, "cert-path", opts.CertPath,
		"The path to the certificate for secure serving. The certificate and private key files "+
			"are assumed to be named tls.crt and tls.key, respectively. If not set, and secureServing is enabled, "+
			"then a self-signed certificate is used.")

	fs.StringVar(&opts.ConfigFile, "config-file", opts.ConfigFile,
		"The path to the scheduler configuration file.")
	fs.StringVar(&opts.ConfigText, "config-text", opts.ConfigText,
		"The scheduler configuration specified as text, in lieu of a file.")
	fs.BoolVar(&opts.WatchConfig, "watch-config", opts.WatchConfig,
		"Reloads the configuration file when it changes.")
	fs.BoolVar(&opts.PrintDefaultConfig, "print-default-config", opts.PrintDefaultConfig,
		"Prints the default scheduler configuration and exits.")

	fs.IntVar(&opts.WebSocket.SendBuffer, "ws-send-buffer", opts.WebSocket.SendBuffer,
		"Frames buffered per WebSocket peer before sends fail.")
	fs.DurationVar(&opts.WebSocket.WriteTimeout, "ws-write-timeout", opts.WebSocket.WriteTimeout,
		"Deadline of a single WebSocket write.")
	fs.DurationVar(&opts.WebSocket.PingInterval, "ws-ping-interval", opts.WebSocket.PingInterval,
		"Interval of WebSocket pings used to sample latency.")
	fs.DurationVar(&opts.WebSocket.PongWait, "ws-pong-wait", opts.WebSocket.PongWait,
		"How long a silent WebSocket peer is kept.")
	fs.Float64Var((*float64)(&opts.WebSocket.ControlRate), "ws-control-rate", float64(opts.WebSocket.ControlRate),
		"Control frames per second accepted from a WebSocket peer.")
	fs.IntVar(&opts.WebSocket.ControlBurst, "ws-control-burst", opts.WebSocket.ControlBurst,
		"Burst of control frames accepted from a WebSocket peer.")

	fs.IntVar(&opts.MetricsPort, "metrics-port", opts.MetricsPort,
		"The metrics port.")
	fs.IntVar(&opts.GRPCHealthPort, "grpc-health-port", opts.GRPCHealthPort,
		"The port used for gRPC liveness and readiness probes.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")
	fs.BoolVar(&opts.EnablePprof, "enable-pprof", opts.EnablePprof,
		"Enables pprof handlers. Defaults to true. Set to false to disable pprof handlers.")
	fs.BoolVar(&opts.Tracing, "tracing", opts.Tracing,
		"Enables OpenTelemetry tracing. The exporter is configured with the standard OTEL_* environment variables.")

	// Bind zap flags (zap expects a standard Go FlagSet; pflag.FlagSet is not compatible).
	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs)
	fs.AddGoFlagSet(gofs)
}

// envFlags maps environment variables to the flags they soft-override.
var envFlags = map[string]string{
	"HTTP_PORT":        "http-port",
	"GRPC_HEALTH_PORT": "grpc-health-port",
	"METRICS_PORT":     "metrics-port",
	"CONFIG_FILE":      "config-file",
	"SECURE_SERVING":   "secure-serving",
	"CERT_PATH":        "cert-path",
}

// BindEnv applies environment variables to flags not set on the command line. It must run after parsing.
func (opts *Options) BindEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for env, name := range envFlags {
		v, ok := lookup(env)
		if !ok || v == "" {
			continue
		}
		f := opts.fs.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		if err := opts.fs.Set(name, v); err != nil {
			return fmt.Errorf("invalid value %q for environment variable %s: %w", v, env, err)
		}
	}
	return nil
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	// Derive the zap log level from the -v flag when --zap-log-level is not set explicitly.
	zapLogLevelFlag := opts.fs.Lookup(ZapLogLevelFlagName)
	if zapLogLevelFlag != nil && !zapLogLevelFlag.Changed {
		// See https://pkg.go.dev/sigs.k8s.io/controller-runtime/pkg/log/zap#Options.Level
		lvl := -1 * (opts.LogVerbosity)
		opts.ZapOptions.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(lvl)))
		zapLogLevelFlag.Changed = true
	}
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	for _, pc := range []struct {
		name string
		port int
	}{
		{"http-port", opts.HTTPPort},
		{"grpc-health-port", opts.GRPCHealthPort},
		{"metrics-port", opts.MetricsPort},
	} {
		if pc.port < 1 || pc.port > 65535 {
			return fmt.Errorf("invalid value %d for flag %q: must be between 1 and 65535", pc.port, pc.name)
		}
	}

	ports := map[int]string{
		opts.HTTPPort:       "http-port",
		opts.GRPCHealthPort: "grpc-health-port",
		opts.MetricsPort:    "metrics-port",
	}
	if len(ports) < 3 {
		return fmt.Errorf("port conflict: http-port (%d), grpc-health-port (%d), and metrics-port (%d) must all be different",
			opts.HTTPPort, opts.GRPCHealthPort, opts.MetricsPort)
	}

	if opts.ConfigText != "" && opts.ConfigFile != "" {
		return fmt.Errorf("both the %q and %q flags can not be set at the same time", "config-text", "config-file")
	}
	if opts.CertPath != "" && !opts.SecureServing {
		return fmt.Errorf("flag %q requires %q", "cert-path", "secure-serving")
	}
	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}
	if opts.WebSocket.ControlRate < 0 || opts.WebSocket.ControlRate == rate.Inf {
		return fmt.Errorf("invalid value %v for flag %q: must be a finite rate >= 0", opts.WebSocket.ControlRate, "ws-control-rate")
	}
	if opts.WebSocket.WriteTimeout < 0 || opts.WebSocket.PingInterval < 0 || opts.WebSocket.PongWait < 0 {
		return fmt.Errorf("WebSocket durations must be >= %v", time.Duration(0))
	}
	return nil
}
