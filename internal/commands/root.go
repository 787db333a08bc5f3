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

// Package commands implements the switchboard CLI: connect to the
// configured MCP backends, inspect their catalogs, dispatch tool calls,
// run composed tools, and serve the aggregated catalog as an MCP gateway.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/config"
	"github.com/tombee/switchboard/internal/history"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/tracing"
	"github.com/tombee/switchboard/pkg/errors"
	"github.com/tombee/switchboard/pkg/hub"
	"github.com/tombee/switchboard/pkg/observability"
)

// version information (injected via ldflags at build time).
var (
	version = "dev"
)

// SetVersion records the build-time version for the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// rootOptions carry the global flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	historyPath string
	yes         bool
}

// NewRootCommand builds the CLI's command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "switchboard",
		Short: "Tool dispatch hub for MCP backends",
		Long: `Switchboard supervises a fleet of MCP tool servers over stdio,
aggregates their catalogs, and dispatches tool calls with per-server
ordering, admission control, danger confirmation, and best-effort
rollback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "switchboard.yaml", "path to the hub configuration file")
	root.PersistentFlags().StringVar(&opts.historyPath, "history", "", "path to the call-history database (empty disables history)")
	root.PersistentFlags().BoolVarP(&opts.yes, "yes", "y", false, "auto-confirm dangerous tool calls")

	root.AddCommand(newServersCommand(opts))
	root.AddCommand(newToolsCommand(opts))
	root.AddCommand(newCallCommand(opts))
	root.AddCommand(newComposeCommand(opts))
	root.AddCommand(newGatewayCommand(opts))
	root.AddCommand(newHistoryCommand(opts))
	root.AddCommand(newVersionCommand())

	return root
}

// buildHub loads configuration and constructs (without connecting) the hub.
func buildHub(opts *rootOptions) (*hub.Hub, *config.Config, error) {
	return buildHubWithObservability(opts, nil, nil)
}

func buildHubWithObservability(opts *rootOptions, metrics *tracing.MetricsCollector, tracer observability.Tracer) (*hub.Hub, *config.Config, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := log.New(&log.Config{
		Level:  cfg.Log.Level,
		Format: log.Format(cfg.Log.Format),
		Output: os.Stderr,
	})

	hubOpts := hub.Options{
		Logger:           logger,
		ExecutorConfig:   cfg.Executor,
		ConcurrencyLimit: cfg.Concurrency,
		Approver:         newApprover(opts.yes),
		Metrics:          metrics,
		Tracer:           tracer,
	}

	if opts.historyPath != "" {
		store, err := history.New(history.Config{Path: opts.historyPath})
		if err != nil {
			return nil, nil, err
		}
		hubOpts.History = store
	}

	h := hub.Init(cfg.ServerConfigs(), hubOpts)
	cfg.ApplyContexts(h.Executor().Contexts())
	return h, cfg, nil
}

// HandleExitError prints a user-facing error and exits non-zero. Errors
// implementing UserVisibleError get their suggestion printed too.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var visible errors.UserVisibleError
	if errors.As(err, &visible) && visible.IsUserVisible() {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+visible.UserMessage())
		if suggestion := visible.Suggestion(); suggestion != "" {
			fmt.Fprintln(os.Stderr, dimStyle.Render("hint: "+suggestion))
		}
	} else {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
	}
	os.Exit(1)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the switchboard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "switchboard "+version)
		},
	}
}
