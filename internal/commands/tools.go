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
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newToolsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools <server>",
		Short: "List the tools a server advertises",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, _, err := buildHub(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer h.Shutdown(ctx)

			if err := h.EnsureConnection(ctx, args[0]); err != nil {
				return err
			}

			descs, err := h.ListTools(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("TOOLS on "+args[0]))
			for _, desc := range descs {
				fmt.Fprintf(out, "  %s\n", desc.Name)
				if desc.Description != "" {
					fmt.Fprintln(out, dimStyle.Render("    "+desc.Description))
				}
				if len(desc.InputSchema.Required) > 0 {
					fmt.Fprintln(out, dimStyle.Render("    required: "+strings.Join(desc.InputSchema.Required, ", ")))
				}
			}
			return nil
		},
	}
}
