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

package commands

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	mcpserver "github.com/tombee/switchboard/internal/mcp/server"
	"github.com/tombee/switchboard/internal/tracing"
)

func newGatewayCommand(opts *rootOptions) *cobra.Command {
	var metricsAddr string
	var exporter string
	var otlpEndpoint string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve the aggregated catalog as a single MCP server on stdio",
		Long: `Connect to every configured backend, then speak MCP on stdin and
stdout, re-exporting each backend tool as <server>__<tool>. One gateway
connection gives an MCP client the whole fleet, with the hub's queueing
and admission control in between.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			provider, err := tracing.NewOTelProvider(ctx, tracing.Config{
				ServiceVersion: version,
				Exporter:       tracing.Exporter(exporter),
				Endpoint:       otlpEndpoint,
			})
			if err != nil {
				return err
			}
			defer func() { _ = provider.Shutdown(context.Background()) }()

			h, _, err := buildHubWithObservability(opts, provider.MetricsCollector(), provider.Tracer("switchboard.hub"))
			if err != nil {
				return err
			}
			// Persist completed spans next to the call history when a
			// history database is configured.
			if store := h.History(); store != nil {
				provider.SetSpanSink(store)
			}
			h.Initialize(ctx)
			defer h.Shutdown(context.Background())

			if metricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", provider.MetricsHandler())
					// Best effort; gateway keeps serving without metrics.
					_ = http.ListenAndServe(metricsAddr, mux)
				}()
			}

			gateway, err := mcpserver.NewServer(h, mcpserver.Config{Version: version})
			if err != nil {
				return err
			}
			return gateway.Serve()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (empty disables)")
	cmd.Flags().StringVar(&exporter, "trace-exporter", "", "span exporter: console, otlp-grpc, otlp-http (empty disables)")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP collector endpoint for the otlp exporters")

	return cmd
}
