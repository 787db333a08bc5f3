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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/executor"
)

func newCallCommand(opts *rootOptions) *cobra.Command {
	var argPairs []string
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <server> <tool>",
		Short: "Dispatch one tool call through the executor pipeline",
		Long: `Dispatch one tool call through the full pipeline: danger
classification, confirmation, default injection, per-server queueing, and
best-effort rollback on failure.

Arguments are given as repeated --arg key=value pairs or as one --json
object; --json values keep their JSON types.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := parseCallArgs(argPairs, argsJSON)
			if err != nil {
				return err
			}

			h, _, err := buildHub(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer h.Shutdown(ctx)

			result := h.ExecuteTool(ctx, executor.Request{
				ServerName: args[0],
				ToolName:   args[1],
				Arguments:  callArgs,
			})

			out := cmd.OutOrStdout()
			if !result.OK {
				if len(result.MissingFields) > 0 {
					fmt.Fprintln(out, errStyle.Render("missing required fields: ")+strings.Join(result.MissingFields, ", "))
				}
				if result.RollbackError != "" {
					fmt.Fprintln(out, warnStyle.Render("rollback failed: ")+result.RollbackError)
				}
				return result.Err
			}

			encoded, err := json.MarshalIndent(result.Data, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(encoded))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "tool argument as key=value (repeatable)")
	cmd.Flags().StringVar(&argsJSON, "json", "", "tool arguments as a JSON object")

	return cmd
}

// parseCallArgs merges --json and --arg inputs; --arg pairs win on
// conflicts.
func parseCallArgs(pairs []string, argsJSON string) (map[string]interface{}, error) {
	out := make(map[string]interface{})

	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &out); err != nil {
			return nil, fmt.Errorf("--json is not a JSON object: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("--arg %q is not key=value", pair)
		}
		out[key] = value
	}

	return out, nil
}
