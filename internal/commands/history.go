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
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/history"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var server string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded tool calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.historyPath == "" {
				return fmt.Errorf("no history database configured; pass --history")
			}

			store, err := history.New(history.Config{Path: opts.historyPath})
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Query(cmd.Context(), server, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, rec := range records {
				status := okStyle.Render("ok")
				if !rec.Success {
					status = errStyle.Render("fail")
				}
				line := fmt.Sprintf("%s  %-4s %-15s %-25s %4dms",
					rec.StartedAt.Format(time.RFC3339), status, rec.ServerName, rec.ToolName, rec.DurationMs)
				if rec.RolledBack {
					line += warnStyle.Render("  rolled-back")
				}
				fmt.Fprintln(out, line)
				if rec.Error != "" {
					fmt.Fprintln(out, dimStyle.Render("    "+rec.Error))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "only show calls to this server")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")

	var retention time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.historyPath == "" {
				return fmt.Errorf("no history database configured; pass --history")
			}

			store, err := history.New(history.Config{Path: opts.historyPath})
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", removed)
			return nil
		},
	}
	prune.Flags().DurationVar(&retention, "retention", 30*24*time.Hour, "keep records newer than this")
	cmd.AddCommand(prune)

	return cmd
}
