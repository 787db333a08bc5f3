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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectorWithReader(t *testing.T) (*MetricsCollector, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	mc, err := NewMetricsCollector(mp)
	require.NoError(t, err)
	return mc, reader
}

func metricNames(t *testing.T, reader *metric.ManualReader) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestRecordToolCallEmitsCountAndLatency(t *testing.T) {
	mc, reader := collectorWithReader(t)
	ctx := context.Background()

	mc.RecordToolCall(ctx, "github", "create_issue", true, 120*time.Millisecond)
	mc.RecordToolCall(ctx, "github", "create_issue", false, 5*time.Millisecond)

	names := metricNames(t, reader)
	assert.True(t, names["switchboard_tool_calls_total"])
	assert.True(t, names["switchboard_tool_call_duration_seconds"])
}

func TestRecordAuxiliaryMetrics(t *testing.T) {
	mc, reader := collectorWithReader(t)
	ctx := context.Background()

	mc.RecordAdmissionRejection(ctx, "github")
	mc.RecordRetry(ctx, "github", "create_issue")
	mc.RecordRollback(ctx, "github", true)
	mc.RecordComposedRun(ctx, "provision-repo", false, time.Second)
	mc.RecordStatusChange(ctx, "github", "connected")

	names := metricNames(t, reader)
	for _, want := range []string{
		"switchboard_admission_rejections_total",
		"switchboard_tool_call_retries_total",
		"switchboard_rollbacks_total",
		"switchboard_composed_runs_total",
		"switchboard_composed_run_duration_seconds",
		"switchboard_connection_status_changes_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}
