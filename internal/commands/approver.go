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
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/tombee/switchboard/pkg/tools/approval"
)

// newApprover picks the confirmation hook: --yes approves everything, an
// interactive terminal prompts with a form, and anything else denies (the
// unattended default never waves a dangerous call through).
func newApprover(autoYes bool) approval.Approver {
	if autoYes {
		return approval.Func(func(ctx context.Context, server, tool, message string, args map[string]interface{}) (bool, error) {
			return true, nil
		})
	}
	if !isInteractive() {
		return approval.NewUnattendedApprover(nil)
	}
	return approval.Func(promptConfirmation)
}

// promptConfirmation asks the user whether a dangerous call may proceed.
func promptConfirmation(ctx context.Context, server, tool, message string, args map[string]interface{}) (bool, error) {
	description := fmt.Sprintf("Tool %s on server %s", tool, server)
	if message != "" {
		description += "\n" + message
	}
	if len(args) > 0 {
		description += "\nArguments:"
		for k, v := range args {
			description += fmt.Sprintf("\n  %s: %v", k, v)
		}
	}

	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Run this dangerous tool call?").
			Description(description).
			Affirmative("Run it").
			Negative("Cancel").
			Value(&confirmed),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return confirmed, nil
}
