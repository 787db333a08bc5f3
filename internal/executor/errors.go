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

package executor

import (
	"fmt"
	"strings"
)

// MissingFieldsError is returned when required fields are still absent after
// default injection and (if enabled) LLM-assisted completion.
type MissingFieldsError struct {
	ServerName string
	ToolName   string
	Fields     []string

	// UserPrompt is the deterministic prompt callers can show to collect
	// the missing values.
	UserPrompt string
}

// Error implements the error interface.
func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("tool %q on %q is missing required fields: %s",
		e.ToolName, e.ServerName, strings.Join(e.Fields, ", "))
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *MissingFieldsError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MissingFieldsError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *MissingFieldsError) Suggestion() string {
	if e.UserPrompt != "" {
		return e.UserPrompt
	}
	return "supply the missing arguments and retry"
}

// UserDeniedError is returned when the confirmation hook rejects a
// dangerous tool call. No tools/call RPC is sent in that case.
type UserDeniedError struct {
	ServerName string
	ToolName   string
}

// Error implements the error interface.
func (e *UserDeniedError) Error() string {
	return fmt.Sprintf("user denied execution of %q on %q", e.ToolName, e.ServerName)
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *UserDeniedError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *UserDeniedError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *UserDeniedError) Suggestion() string { return "" }

// ToolCallFailedError wraps a backend or transport failure that survived the
// executor's retry budget. It carries the (server, tool) context and, when a
// rollback was attempted and itself failed, the rollback error.
type ToolCallFailedError struct {
	ServerName string
	ToolName   string
	Cause      error
}

// Error implements the error interface.
func (e *ToolCallFailedError) Error() string {
	return fmt.Sprintf("tool call %q on %q failed: %v", e.ToolName, e.ServerName, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ToolCallFailedError) Unwrap() error { return e.Cause }

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *ToolCallFailedError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *ToolCallFailedError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *ToolCallFailedError) Suggestion() string {
	return "check the server's status and last error with listConnections"
}
