// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Push is the interface for the push delivery metrics recorded by the request
// pipeline. All instruments carry the deployment region attribute.
type Push interface {
	// RecordRequest counts one finished request by variant and HTTP status.
	RecordRequest(ctx context.Context, variant string, status int)
	// RecordSend records one gateway send with its latency.
	RecordSend(ctx context.Context, label string, d time.Duration, success bool)
	// RecordRateLimited counts one request rejected at admission.
	RecordRateLimited(ctx context.Context, variant string)
	// RecordClassifiedError counts one classified send failure.
	RecordClassifiedError(ctx context.Context, errorType, step string)
}

type pushMetrics struct {
	region           attribute.KeyValue
	requests         metric.Int64Counter
	rateLimited      metric.Int64Counter
	classifiedErrors metric.Int64Counter
	sends            metric.Int64Counter
	sendLatency      metric.Float64Histogram
}

var _ Push = (*pushMetrics)(nil)

// NewPush creates the push delivery instruments on the given meter.
func NewPush(meter metric.Meter, region string) (Push, error) {
	p := &pushMetrics{region: attribute.String("region", region)}
	var err error
	if p.requests, err = meter.Int64Counter("push.requests",
		metric.WithDescription("Finished notification requests by variant and status."),
	); err != nil {
		return nil, fmt.Errorf("failed to create push.requests counter: %w", err)
	}
	if p.rateLimited, err = meter.Int64Counter("push.rate_limited",
		metric.WithDescription("Requests rejected at admission because the daily quota was spent."),
	); err != nil {
		return nil, fmt.Errorf("failed to create push.rate_limited counter: %w", err)
	}
	if p.classifiedErrors, err = meter.Int64Counter("push.errors",
		metric.WithDescription("Classified send failures by error type and step."),
	); err != nil {
		return nil, fmt.Errorf("failed to create push.errors counter: %w", err)
	}
	if p.sends, err = meter.Int64Counter("push.sends",
		metric.WithDescription("Gateway sends by analytics label and outcome."),
	); err != nil {
		return nil, fmt.Errorf("failed to create push.sends counter: %w", err)
	}
	if p.sendLatency, err = meter.Float64Histogram("push.send_latency",
		metric.WithDescription("Gateway send latency."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create push.send_latency histogram: %w", err)
	}
	return p, nil
}

// RecordRequest implements [Push.RecordRequest].
func (p *pushMetrics) RecordRequest(ctx context.Context, variant string, status int) {
	p.requests.Add(ctx, 1, metric.WithAttributes(
		p.region,
		attribute.String("variant", variant),
		attribute.Int("status", status),
	))
}

// RecordSend implements [Push.RecordSend].
func (p *pushMetrics) RecordSend(ctx context.Context, label string, d time.Duration, success bool) {
	attrs := metric.WithAttributes(
		p.region,
		attribute.String("label", label),
		attribute.Bool("success", success),
	)
	p.sends.Add(ctx, 1, attrs)
	p.sendLatency.Record(ctx, d.Seconds(), attrs)
}

// RecordRateLimited implements [Push.RecordRateLimited].
func (p *pushMetrics) RecordRateLimited(ctx context.Context, variant string) {
	p.rateLimited.Add(ctx, 1, metric.WithAttributes(
		p.region,
		attribute.String("variant", variant),
	))
}

// RecordClassifiedError implements [Push.RecordClassifiedError].
func (p *pushMetrics) RecordClassifiedError(ctx context.Context, errorType, step string) {
	p.classifiedErrors.Add(ctx, 1, metric.WithAttributes(
		p.region,
		attribute.String("error_type", errorType),
		attribute.String("step", step),
	))
}
