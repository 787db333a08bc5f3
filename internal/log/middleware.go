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

package log

import (
	"log/slog"
	"time"
)

// ToolCall describes one tool invocation for logging purposes.
type ToolCall struct {
	// Server is the MCP server the call is dispatched to.
	Server string

	// Tool is the name of the tool being invoked.
	Tool string

	// Attempt is the 1-based attempt number for retried calls.
	Attempt int

	// Metadata contains additional call metadata.
	Metadata map[string]interface{}
}

// ToolCallOutcome describes the result of a tool invocation for logging purposes.
type ToolCallOutcome struct {
	// Success indicates whether the call succeeded.
	Success bool

	// Error is the error message if the call failed.
	Error string

	// RollbackAttempted indicates a compensating call was issued after failure.
	RollbackAttempted bool

	// RollbackError is the error message if the rollback itself failed.
	RollbackError string

	// DurationMs is the duration of the call in milliseconds.
	DurationMs int64

	// Metadata contains additional outcome metadata.
	Metadata map[string]interface{}
}

// LogToolCall logs a tool call at dispatch time.
func LogToolCall(logger *slog.Logger, call *ToolCall) {
	attrs := []any{
		EventKey, "tool_call",
		ServerKey, call.Server,
		ToolKey, call.Tool,
	}

	if call.Attempt > 1 {
		attrs = append(attrs, AttemptKey, call.Attempt)
	}

	for k, v := range call.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("tool call dispatched", attrs...)
}

// LogToolCallOutcome logs the completion of a tool call.
func LogToolCallOutcome(logger *slog.Logger, call *ToolCall, outcome *ToolCallOutcome) {
	attrs := []any{
		EventKey, "tool_call_done",
		ServerKey, call.Server,
		ToolKey, call.Tool,
		"success", outcome.Success,
		DurationKey, outcome.DurationMs,
	}

	if call.Attempt > 1 {
		attrs = append(attrs, AttemptKey, call.Attempt)
	}

	if outcome.Error != "" {
		attrs = append(attrs, "error", outcome.Error)
	}

	if outcome.RollbackAttempted {
		attrs = append(attrs, "rollback_attempted", true)
		if outcome.RollbackError != "" {
			attrs = append(attrs, "rollback_error", outcome.RollbackError)
		}
	}

	for k, v := range outcome.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "tool call completed"

	if !outcome.Success {
		level = slog.LevelError
		message = "tool call failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// ToolCallMiddleware wraps a tool-call dispatch function with logging.
// It logs the call when it is dispatched and the outcome when it completes.
type ToolCallMiddleware struct {
	logger *slog.Logger
}

// NewToolCallMiddleware creates a new tool-call logging middleware.
func NewToolCallMiddleware(logger *slog.Logger) *ToolCallMiddleware {
	return &ToolCallMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that dispatches one tool call.
// It logs the call and outcome automatically.
func (m *ToolCallMiddleware) Handler(call *ToolCall, handler func() error) error {
	start := time.Now()

	LogToolCall(m.logger, call)

	err := handler()

	duration := time.Since(start).Milliseconds()

	outcome := &ToolCallOutcome{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		outcome.Error = err.Error()
	}

	LogToolCallOutcome(m.logger, call, outcome)

	return err
}

// HandlerWithMetadata wraps a dispatch function that also returns metadata.
// It logs the call and outcome with the returned metadata.
func (m *ToolCallMiddleware) HandlerWithMetadata(call *ToolCall, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	LogToolCall(m.logger, call)

	metadata, err := handler()

	duration := time.Since(start).Milliseconds()

	outcome := &ToolCallOutcome{
		Success:    err == nil,
		DurationMs: duration,
		Metadata:   metadata,
	}

	if err != nil {
		outcome.Error = err.Error()
	}

	LogToolCallOutcome(m.logger, call, outcome)

	return metadata, err
}
