// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records Prometheus-compatible metrics for the hub's
// tool dispatch: call counts and latency by (server, tool), admission
// rejections, retries, rollback outcomes, composed-tool runs, and
// connection status transitions.
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	toolCallsTotal      metric.Int64Counter
	admissionRejections metric.Int64Counter
	retriesTotal        metric.Int64Counter
	rollbacksTotal      metric.Int64Counter
	composedRunsTotal   metric.Int64Counter
	statusChangesTotal  metric.Int64Counter

	// Histograms
	toolCallDuration    metric.Float64Histogram
	composedRunDuration metric.Float64Histogram
}

// NewMetricsCollector creates a metrics collector using the given meter
// provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("switchboard")

	mc := &MetricsCollector{meter: meter}

	var err error

	mc.toolCallsTotal, err = meter.Int64Counter(
		"switchboard_tool_calls_total",
		metric.WithDescription("Total number of tool calls dispatched"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	mc.admissionRejections, err = meter.Int64Counter(
		"switchboard_admission_rejections_total",
		metric.WithDescription("Tool calls rejected because the hub-wide concurrency cap was reached"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	mc.retriesTotal, err = meter.Int64Counter(
		"switchboard_tool_call_retries_total",
		metric.WithDescription("Dispatch attempts beyond the first, per tool call"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	mc.rollbacksTotal, err = meter.Int64Counter(
		"switchboard_rollbacks_total",
		metric.WithDescription("Compensating calls attempted after failures"),
		metric.WithUnit("{rollback}"),
	)
	if err != nil {
		return nil, err
	}

	mc.composedRunsTotal, err = meter.Int64Counter(
		"switchboard_composed_runs_total",
		metric.WithDescription("Composed-tool executions"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	mc.statusChangesTotal, err = meter.Int64Counter(
		"switchboard_connection_status_changes_total",
		metric.WithDescription("Connection status transitions by server and status"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	mc.toolCallDuration, err = meter.Float64Histogram(
		"switchboard_tool_call_duration_seconds",
		metric.WithDescription("Tool call latency by server and tool"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.composedRunDuration, err = meter.Float64Histogram(
		"switchboard_composed_run_duration_seconds",
		metric.WithDescription("Composed-tool run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordToolCall records one dispatched call's outcome and latency.
func (mc *MetricsCollector) RecordToolCall(ctx context.Context, server, tool string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
		attribute.Bool("success", success),
	)
	mc.toolCallsTotal.Add(ctx, 1, attrs)
	mc.toolCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAdmissionRejection records one fast-fail due to the concurrency
// cap.
func (mc *MetricsCollector) RecordAdmissionRejection(ctx context.Context, server string) {
	mc.admissionRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("server", server)))
}

// RecordRetry records one dispatch attempt beyond the first.
func (mc *MetricsCollector) RecordRetry(ctx context.Context, server, tool string) {
	mc.retriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("tool", tool),
	))
}

// RecordRollback records one compensating-call attempt and whether it
// succeeded.
func (mc *MetricsCollector) RecordRollback(ctx context.Context, server string, success bool) {
	mc.rollbacksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
		attribute.Bool("success", success),
	))
}

// RecordComposedRun records one composed-tool execution.
func (mc *MetricsCollector) RecordComposedRun(ctx context.Context, name string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("composed_tool", name),
		attribute.Bool("success", success),
	)
	mc.composedRunsTotal.Add(ctx, 1, attrs)
	mc.composedRunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStatusChange records one connection status transition.
func (mc *MetricsCollector) RecordStatusChange(ctx context.Context, server, status string) {
	mc.statusChangesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("status", status),
	))
}
