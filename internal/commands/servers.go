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

	"github.com/spf13/cobra"
)

func newServersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Connect to the configured servers and show their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, _, err := buildHub(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			h.Initialize(ctx)
			defer h.Shutdown(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("SERVERS"))
			for _, conn := range h.ListConnections() {
				status := statusStyle(string(conn.Status)).Render(string(conn.Status))
				line := fmt.Sprintf("  %-20s %s", conn.Name, status)
				if conn.Capabilities.Tools {
					line += dimStyle.Render("  tools")
				}
				if conn.Capabilities.Resources {
					line += dimStyle.Render("  resources")
				}
				fmt.Fprintln(out, line)
				if conn.Error != "" {
					fmt.Fprintln(out, dimStyle.Render("    last error: "+conn.Error))
				}
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reconnect <server>",
		Short: "Reset a server's retry budget and reconnect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, _, err := buildHub(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer h.Shutdown(ctx)

			if err := h.ReconnectServer(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("reconnected ")+args[0])
			return nil
		},
	})

	return cmd
}
