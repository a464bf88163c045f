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

// Package tracing configures OpenTelemetry tracing from the standard OTEL_* environment variables.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/version"
)

const (
	// InstrumentationName names the tracer of every span emitted by this module.
	InstrumentationName = "sigs.k8s.io/outbound-scheduler"

	DefaultServiceName = "outbound-scheduler"
	DefaultEndpoint    = "http://localhost:4317"

	ExporterConsole = "console"
	ExporterOTLP    = "otlp"

	samplerParentRatio = "parentbased_traceidratio"
	defaultRatio       = 0.1
)

// Tracer returns the module tracer of the global provider. Spans are no-ops until Init ran.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Config selects the exporter and sampler.
type Config struct {
	ServiceName string
	Endpoint    string
	// Exporter is ExporterConsole or ExporterOTLP.
	Exporter   string
	Sampler    string
	SamplerArg string
}

// ConfigFromEnv reads the OTEL_* variables through lookup, falling back to defaults.
func ConfigFromEnv(lookup func(string) (string, bool)) Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	return Config{
		ServiceName: get("OTEL_SERVICE_NAME", DefaultServiceName),
		Endpoint:    get("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultEndpoint),
		Exporter:    get("OTEL_TRACES_EXPORTER", ExporterConsole),
		Sampler:     get("OTEL_TRACES_SAMPLER", samplerParentRatio),
		SamplerArg:  get("OTEL_TRACES_SAMPLER_ARG", strconv.FormatFloat(defaultRatio, 'f', -1, 64)),
	}
}

type errorHandler struct {
	logger logr.Logger
}

func (h *errorHandler) Handle(err error) {
	h.logger.V(logging.DEFAULT).Error(err, "trace error occurred")
}

// Init installs a global tracer provider. The provider is flushed and shut down when ctx is done.
func Init(ctx context.Context, logger logr.Logger, cfg Config) error {
	logger = logger.WithName("trace")
	handler := &errorHandler{logger: logger}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init trace exporter failed: %w", err)
	}
	sampler, err := newSampler(cfg)
	if err != nil {
		handler.Handle(err)
	}
	logger.V(logging.DEFAULT).Info("Tracing enabled", "exporter", cfg.Exporter, "service", cfg.ServiceName)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version.BuildRef),
		)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(handler)

	go func() {
		<-ctx.Done()
		if err := provider.Shutdown(context.Background()); err != nil {
			handler.Handle(fmt.Errorf("failed to shutdown TracerProvider: %w", err))
		}
		logger.V(logging.DEFAULT).Info("Trace provider shut down")
	}()
	return nil
}

// newSampler honors parentbased_traceidratio only. Anything else falls back to a 10% parent based ratio, reported as
// an error.
func newSampler(cfg Config) (sdktrace.Sampler, error) {
	fallback := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(defaultRatio))
	if cfg.Sampler != samplerParentRatio {
		return fallback, fmt.Errorf("unsupported sampler type %q, using %s with ratio %v", cfg.Sampler,
			samplerParentRatio, defaultRatio)
	}
	fraction, err := strconv.ParseFloat(cfg.SamplerArg, 64)
	if err != nil || fraction < 0 || fraction > 1 {
		return fallback, fmt.Errorf("invalid sampler ratio %q, using %v", cfg.SamplerArg, defaultRatio)
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(fraction)), nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterConsole:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		return otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpointURL(cfg.Endpoint))
	default:
		return nil, fmt.Errorf("unsupported exporter %q", cfg.Exporter)
	}
}
