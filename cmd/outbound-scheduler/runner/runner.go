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
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	healthPb "google.golang.org/grpc/health/grpc_health_v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"sigs.k8s.io/outbound-scheduler/internal/runnable"
	tlsutil "sigs.k8s.io/outbound-scheduler/internal/tls"
	"sigs.k8s.io/outbound-scheduler/pkg/common"
	"sigs.k8s.io/outbound-scheduler/pkg/common/configwatch"
	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/common/observability/profiling"
	"sigs.k8s.io/outbound-scheduler/pkg/common/observability/tracing"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/config/loader"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/metrics"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/scheduler"
	runserver "sigs.k8s.io/outbound-scheduler/pkg/outbound/server"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/transport/ws"
	"sigs.k8s.io/outbound-scheduler/version"
)

const readHeaderTimeout = 10 * time.Second

var (
	// Logging
	setupLog = ctrl.Log.WithName("setup")
)

func NewRunner() *Runner {
	return &Runner{
		executableName: "outbound-scheduler",
	}
}

// Runner wires the scheduler, its WebSocket gateway and the diagnostic servers together.
type Runner struct {
	executableName   string
	schedulerOptions []scheduler.Option
	gatewayOptions   []ws.Option
}

// WithExecutableName sets the name of the executable containing the runner.
// The name is used in the version log upon startup and is otherwise opaque.
func (r *Runner) WithExecutableName(exeName string) *Runner {
	r.executableName = exeName
	return r
}

// WithSchedulerOptions appends options passed to the scheduler on creation.
func (r *Runner) WithSchedulerOptions(opts ...scheduler.Option) *Runner {
	r.schedulerOptions = append(r.schedulerOptions, opts...)
	return r
}

// WithGatewayOptions appends options passed to the WebSocket gateway on creation.
func (r *Runner) WithGatewayOptions(opts ...ws.Option) *Runner {
	r.gatewayOptions = append(r.gatewayOptions, opts...)
	return r
}

// Run parses the command line and blocks until ctx is done or a server fails.
func (r *Runner) Run(ctx context.Context) error {
	opts := runserver.NewOptions()
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()

	if err := opts.BindEnv(os.LookupEnv); err != nil {
		setupLog.Error(err, "Failed to apply environment")
		return err
	}
	if err := opts.Complete(); err != nil {
		setupLog.Error(err, "Failed to complete options")
		return err
	}
	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Failed to validate options")
		return err
	}
	logutil.InitLogging(&opts.ZapOptions)

	setupLog.Info(r.executableName+" build", "commit-sha", version.CommitSHA, "build-ref", version.BuildRef)

	// Print all flag values
	flags := make(map[string]any)
	pflag.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value
	})
	setupLog.Info("Flags processed", "flags", flags)

	if opts.PrintDefaultConfig {
		out, err := loader.DefaultConfigYAML()
		if err != nil {
			setupLog.Error(err, "Failed to render default configuration")
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	if opts.Tracing {
		if err := tracing.Init(ctx, ctrl.Log, tracing.ConfigFromEnv(os.LookupEnv)); err != nil {
			setupLog.Error(err, "Failed to initialize tracing")
			return err
		}
	}

	metrics.Register()
	metrics.RecordInfo(version.CommitSHA, version.BuildRef)

	runnables, _, err := r.setup(opts)
	if err != nil {
		return err
	}

	// Runnables log through log.FromContext.
	ctx = log.IntoContext(ctx, ctrl.Log)
	setupLog.Info("Runnables starting", "count", len(runnables))
	if err := runnable.Run(ctx, runnables...); err != nil {
		setupLog.Error(err, "Error running servers")
		return err
	}
	setupLog.Info("Runnables terminated")
	return nil
}

// setup builds every component and returns the runnables that serve them. Nothing listens until the runnables start.
func (r *Runner) setup(opts *runserver.Options) ([]manager.Runnable, *scheduler.Scheduler, error) {
	cfg, err := loadSchedulerConfig(opts, ctrl.Log.WithName("config"))
	if err != nil {
		setupLog.Error(err, "Failed to load configuration")
		return nil, nil, err
	}

	gateway := ws.NewGateway(opts.WebSocket, ctrl.Log, r.gatewayOptions...)
	sched, err := scheduler.New(cfg, gateway, ctrl.Log, r.schedulerOptions...)
	if err != nil {
		setupLog.Error(err, "Failed to create scheduler")
		return nil, nil, err
	}
	gateway.Bind(sched)

	runnables := []manager.Runnable{manager.RunnableFunc(sched.Run), gateway}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.HTTPPort),
		Handler:           runserver.NewHandler(sched, gateway, ctrl.Log),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if opts.SecureServing {
		tlsConfig, reloader, err := serverTLSConfig(opts.CertPath, setupLog)
		if err != nil {
			setupLog.Error(err, "Failed to set up TLS")
			return nil, nil, err
		}
		httpServer.TLSConfig = tlsConfig
		if reloader != nil {
			runnables = append(runnables, reloader)
		}
	}
	runnables = append(runnables, runnable.HTTPServer("api", httpServer))

	healthSrv := grpc.NewServer()
	healthPb.RegisterHealthServer(healthSrv, &healthServer{
		logger:  ctrl.Log.WithName("health"),
		running: sched.Running,
	})
	runnables = append(runnables, runnable.GRPCServer("health", healthSrv, fmt.Sprintf(":%d", opts.GRPCHealthPort)))

	// Register metrics handler.
	// More info:
	// - https://pkg.go.dev/sigs.k8s.io/controller-runtime@v0.21.0/pkg/metrics/server
	metricsServerOptions := metricsserver.Options{
		BindAddress: fmt.Sprintf(":%d", opts.MetricsPort),
	}
	if opts.EnablePprof {
		setupLog.Info("Enabling pprof handlers")
		metricsServerOptions.ExtraHandlers = profiling.Handlers()
	}
	// No filter provider is set, so the server never needs a rest config.
	metricsServer, err := metricsserver.NewServer(metricsServerOptions, nil, nil)
	if err != nil {
		setupLog.Error(err, "Failed to create metrics server")
		return nil, nil, err
	}
	runnables = append(runnables, metricsServer)

	if opts.ConfigFile != "" && opts.WatchConfig {
		path := opts.ConfigFile
		runnables = append(runnables, configwatch.New(path, func(ctx context.Context) {
			_ = reloadConfig(ctx, path, sched)
		}))
	}
	return runnables, sched, nil
}

// loadSchedulerConfig loads the inline text, the file, or the defaults, in that order.
func loadSchedulerConfig(opts *runserver.Options, logger logr.Logger) (scheduler.Config, error) {
	if opts.ConfigText != "" {
		return loader.LoadConfig([]byte(opts.ConfigText), logger)
	}
	return loader.LoadConfigFile(opts.ConfigFile, logger)
}

// serverTLSConfig serves the certificate in certPath, following its rotations, or a self-signed certificate when
// certPath is empty.
func serverTLSConfig(certPath string, logger logr.Logger) (*tls.Config, *common.CertReloader, error) {
	if certPath != "" {
		reloader, err := common.NewCertReloader(certPath)
		if err != nil {
			return nil, nil, err
		}
		return reloader.TLSConfig(), reloader, nil
	}
	cert, err := tlsutil.CreateSelfSignedTLSCertificate(logger)
	if err != nil {
		return nil, nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil, nil
}
