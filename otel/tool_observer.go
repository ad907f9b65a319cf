// Package otel records dispatcher signals into OpenTelemetry.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/tooldispatch/tool"
)

// ToolObserver records tool load and invocation outcomes as metrics and spans.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	loads       metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
// A nil tracer disables spans.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		"tooldispatch.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	loads, err := meter.Int64Counter(
		"tooldispatch.tool.loads",
		metric.WithDescription("Number of tool unit load attempts"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"tooldispatch.tool.latency",
		metric.WithDescription("Tool invocation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		loads:       loads,
		latency:     latency,
	}, nil
}

// ObserveLoad records one unit load attempt.
func (o *ToolObserver) ObserveLoad(observation tool.LoadObservation) {
	if o == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.Bool("success", observation.Success),
	}
	if observation.Origin != "" {
		attrs = append(attrs, attribute.String("origin", string(observation.Origin)))
	}
	o.loads.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// ObserveInvoke records one invocation result.
func (o *ToolObserver) ObserveInvoke(observation tool.InvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.String("origin", string(observation.Origin)),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	duration := time.Duration(observation.DurationMS) * time.Millisecond
	o.latency.Record(ctx, duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	end := time.Now()
	spanAttrs := attrs
	if observation.RequestID != "" {
		spanAttrs = append(spanAttrs, attribute.String("request_id", observation.RequestID))
	}
	_, span := o.tracer.Start(ctx, "tool.invoke",
		trace.WithTimestamp(end.Add(-duration)),
		trace.WithAttributes(spanAttrs...),
	)
	if observation.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, observation.Error)
	}
	span.End(trace.WithTimestamp(end))
}

var _ tool.Observer = (*ToolObserver)(nil)
