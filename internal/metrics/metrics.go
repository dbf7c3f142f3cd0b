// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics wires the OpenTelemetry metrics graph and the push delivery
// instruments recorded by the request pipeline.
package metrics

import (
	"context"
	"fmt"
	"os"

	promregistry "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Metrics is the interface for OpenTelemetry metrics configuration.
type Metrics interface {
	// Meter returns the meter for creating metrics.
	Meter() metric.Meter
	// Registry returns the Prometheus registry if metrics are exported to Prometheus, nil otherwise.
	Registry() *promregistry.Registry
	// Shutdown shuts down the metrics provider.
	Shutdown(context.Context) error
}

var _ Metrics = (*metricsImpl)(nil)

type metricsImpl struct {
	meter    metric.Meter
	registry *promregistry.Registry
	// shutdown is nil when we didn't create mp.
	shutdown func(context.Context) error
}

// Meter implements the same method as documented on Metrics.
func (m *metricsImpl) Meter() metric.Meter {
	return m.meter
}

// Registry implements the same method as documented on Metrics.
func (m *metricsImpl) Registry() *promregistry.Registry {
	return m.registry
}

// Shutdown implements the same method as documented on Metrics.
func (m *metricsImpl) Shutdown(ctx context.Context) error {
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// NoopMetrics returns a no-op metrics implementation.
type NoopMetrics struct{}

// Meter returns a no-op meter.
func (NoopMetrics) Meter() metric.Meter { return noop.NewMeterProvider().Meter("noop") }

// Registry returns nil for no-op metrics.
func (NoopMetrics) Registry() *promregistry.Registry { return nil }

// Shutdown is a no-op.
func (NoopMetrics) Shutdown(context.Context) error { return nil }

// NewMetricsFromEnv configures OpenTelemetry metrics based on environment
// variables. Returns a metrics graph that is noop when disabled.
func NewMetricsFromEnv(ctx context.Context) (Metrics, error) {
	if os.Getenv("OTEL_SDK_DISABLED") == "true" {
		return NoopMetrics{}, nil
	}

	exporter := os.Getenv("OTEL_METRICS_EXPORTER")
	if exporter == "none" {
		return NoopMetrics{}, nil
	}
	if exporter == "" {
		// Default to prometheus unless an OTLP endpoint is configured; the
		// autoexport library handles the OTLP endpoint precedence itself.
		hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") != ""
		if !hasOTLPEndpoint {
			exporter = "prometheus"
		}
	}

	// Merge in order: default -> fallback -> env, so that OTEL_SERVICE_NAME
	// and OTEL_RESOURCE_ATTRIBUTES take precedence over our default name.
	defaultRes := resource.Default()
	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource from env: %w", err)
	}
	fallbackRes := resource.NewSchemaless(
		semconv.ServiceName("mobile-push"),
	)
	res, err := resource.Merge(defaultRes, fallbackRes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge default resources: %w", err)
	}
	res, err = resource.Merge(res, envRes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge env resource: %w", err)
	}

	var mp *sdkmetric.MeterProvider
	var registry *promregistry.Registry
	if exporter == "prometheus" {
		// Serve prometheus from our own HTTP server instead of autoexport's.
		registry = promregistry.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(promExporter),
			sdkmetric.WithResource(res),
		)
	} else {
		autoExporter, err := autoexport.NewMetricReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(autoExporter),
			sdkmetric.WithResource(res),
		)
	}

	return &metricsImpl{
		meter:    mp.Meter("home-assistant/mobile-push"),
		registry: registry,
		shutdown: mp.Shutdown, // we have to shut down what we create.
	}, nil
}
