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
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/switchboard/pkg/workflow"
	"github.com/tombee/switchboard/pkg/workflow/schema"
)

func newComposeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Register and run composed tools",
	}

	var paramsJSON string
	run := &cobra.Command{
		Use:   "run <definition.yaml>",
		Short: "Register a composed tool from a file and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(args[0])
			if err != nil {
				return err
			}

			params := map[string]interface{}{}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("--params is not a JSON object: %w", err)
				}
			}

			h, _, err := buildHub(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			h.Initialize(ctx)
			defer h.Shutdown(ctx)

			if err := h.RegisterComposedTool(def); err != nil {
				return err
			}

			result, err := h.ExecuteComposedTool(ctx, def.Name, params)
			if err != nil {
				return err
			}

			printComposedResult(cmd, result)
			if !result.Success {
				return fmt.Errorf("composed tool %q failed", def.Name)
			}
			return nil
		},
	}
	run.Flags().StringVar(&paramsJSON, "params", "", "invocation parameters as a JSON object")

	validate := &cobra.Command{
		Use:   "validate <definition.yaml>",
		Short: "Check a composed tool definition without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(args[0])
			if err != nil {
				return err
			}

			// Structural check only; catalog resolution needs connected
			// servers and happens at registration.
			if err := workflow.Validate(def, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("valid ")+def.Name)
			return nil
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the composed tool JSON Schema",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), schema.GetEmbeddedSchemaString())
		},
	}

	cmd.AddCommand(run, validate, schemaCmd)
	return cmd
}

// loadDefinition reads a YAML (or JSON, which is YAML) composed-tool
// definition.
func loadDefinition(path string) (*workflow.ComposedTool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read definition %s: %w", path, err)
	}

	var def workflow.ComposedTool
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("definition %s does not parse: %w", path, err)
	}
	return &def, nil
}

func printComposedResult(cmd *cobra.Command, result *workflow.ComposedResult) {
	out := cmd.OutOrStdout()

	header := okStyle.Render("success")
	if !result.Success {
		header = errStyle.Render("failed")
	}
	fmt.Fprintf(out, "%s  %s (%dms)\n", header, result.ToolName, result.DurationMs)

	for _, step := range result.StepResults {
		line := fmt.Sprintf("  %-20s %s", step.Name, statusForStep(step.Status))
		if step.DurationMs > 0 {
			line += dimStyle.Render(fmt.Sprintf("  %dms", step.DurationMs))
		}
		fmt.Fprintln(out, line)
		if step.Error != "" {
			fmt.Fprintln(out, dimStyle.Render("    "+step.Error))
		}
	}

	if result.Rollback != nil && result.Rollback.Triggered {
		if result.Rollback.Successful {
			fmt.Fprintln(out, warnStyle.Render("rollback completed"))
		} else {
			fmt.Fprintln(out, errStyle.Render("rollback failed: ")+result.Rollback.Error)
		}
	}

	if len(result.Outputs) > 0 {
		encoded, err := json.MarshalIndent(result.Outputs, "", "  ")
		if err == nil {
			fmt.Fprintln(out, titleStyle.Render("OUTPUTS"))
			fmt.Fprintln(out, string(encoded))
		}
	}
}

func statusForStep(status workflow.StepStatus) string {
	switch status {
	case workflow.StepSuccess:
		return okStyle.Render(string(status))
	case workflow.StepFailed:
		return errStyle.Render(string(status))
	case workflow.StepSkipped:
		return dimStyle.Render(string(status))
	default:
		return string(status)
	}
}
