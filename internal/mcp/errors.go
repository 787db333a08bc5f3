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

package mcp

import (
	"fmt"
	"strings"
)

// MCPErrorCode represents a category of MCP hub error.
type MCPErrorCode string

const (
	// ErrorCodeConfigMissing indicates no configuration exists for a
	// requested server.
	ErrorCodeConfigMissing MCPErrorCode = "CONFIG_MISSING"
	// ErrorCodeSpawnFailed indicates the child process could not start.
	ErrorCodeSpawnFailed MCPErrorCode = "SPAWN_FAILED"
	// ErrorCodeConnectTimeout indicates a connection attempt exceeded
	// CONNECTION_TIMEOUT.
	ErrorCodeConnectTimeout MCPErrorCode = "CONNECT_TIMEOUT"
	// ErrorCodeMaxRetriesExceeded indicates the supervisor's retry budget
	// for a server is exhausted.
	ErrorCodeMaxRetriesExceeded MCPErrorCode = "MAX_RETRIES_EXCEEDED"
	// ErrorCodeNotConnected indicates a call was attempted while the
	// server's connection is not in the connected state.
	ErrorCodeNotConnected MCPErrorCode = "NOT_CONNECTED"
	// ErrorCodeProtocolMismatch indicates a reply did not match its
	// declared schema.
	ErrorCodeProtocolMismatch MCPErrorCode = "PROTOCOL_MISMATCH"
	// ErrorCodeMethodNotFound indicates a JSON-RPC -32601 reply; treated
	// as a soft absence by list methods.
	ErrorCodeMethodNotFound MCPErrorCode = "METHOD_NOT_FOUND"
	// ErrorCodeToolNotFound indicates a catalog lookup failed.
	ErrorCodeToolNotFound MCPErrorCode = "TOOL_NOT_FOUND"
)

// MCPError is an error type that includes suggestions for resolution.
type MCPError struct {
	// Code is the error category.
	Code MCPErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)

	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *MCPError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements pkg/errors.UserVisibleError. MCP errors are
// always user-visible.
func (e *MCPError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MCPError) UserMessage() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *MCPError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	return e.Suggestions[0]
}

// NewMCPError creates a new MCPError.
func NewMCPError(code MCPErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *MCPError) WithDetail(detail string) *MCPError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *MCPError) WithCause(cause error) *MCPError {
	e.Cause = cause
	return e
}

// ErrConfigMissing creates an error for a server with no configuration.
func ErrConfigMissing(name string) *MCPError {
	return NewMCPError(ErrorCodeConfigMissing, fmt.Sprintf("no configuration for server %q", name)).
		WithSuggestions("add the server to the hub's server configuration before connecting")
}

// ErrSpawnFailed creates an error for a process that failed to start.
func ErrSpawnFailed(name string, cause error) *MCPError {
	return NewMCPError(ErrorCodeSpawnFailed, fmt.Sprintf("failed to start server %q", name)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions("verify the command and arguments are correct and the binary is on PATH")
}

// ErrConnectTimeout creates an error for a connection attempt that exceeded
// its deadline.
func ErrConnectTimeout(name string, timeoutSeconds int) *MCPError {
	return NewMCPError(ErrorCodeConnectTimeout, fmt.Sprintf("connecting to %q timed out after %ds", name, timeoutSeconds)).
		WithSuggestions("check whether the server process is responsive on stdio")
}

// ErrMaxRetriesExceeded creates an error for a server that exhausted its
// reconnect budget.
func ErrMaxRetriesExceeded(name string, attempts int) *MCPError {
	return NewMCPError(ErrorCodeMaxRetriesExceeded, fmt.Sprintf("server %q failed to connect after %d attempts", name, attempts)).
		WithSuggestions("call reconnectServer to reset the retry counter and try again")
}

// ErrNotConnected creates an error for a call attempted against a
// disconnected server.
func ErrNotConnected(name string, status ConnectionStatus) *MCPError {
	return NewMCPError(ErrorCodeNotConnected, fmt.Sprintf("server %q is not connected", name)).
		WithDetail(fmt.Sprintf("current status: %s", status))
}

// ErrProtocolMismatch creates an error for a reply that failed schema
// validation.
func ErrProtocolMismatch(name, method string, cause error) *MCPError {
	e := NewMCPError(ErrorCodeProtocolMismatch, fmt.Sprintf("server %q returned a malformed reply to %s", name, method))
	if cause != nil {
		e = e.WithDetail(cause.Error()).WithCause(cause)
	}
	return e
}

// ErrMethodNotFound creates an error for a JSON-RPC -32601 reply.
func ErrMethodNotFound(name, method string) *MCPError {
	return NewMCPError(ErrorCodeMethodNotFound, fmt.Sprintf("server %q does not implement %s", name, method))
}

// ErrToolNotFound creates an error for a catalog lookup miss, reporting the
// available tool names for diagnostics.
func ErrToolNotFound(serverName, toolName string, available []string) *MCPError {
	e := NewMCPError(ErrorCodeToolNotFound, fmt.Sprintf("tool %q not found on server %q", toolName, serverName))
	if len(available) > 0 {
		e = e.WithDetail(fmt.Sprintf("available tools: %s", strings.Join(available, ", ")))
	}
	return e
}

// WrapError wraps a standard error in an MCPError if it isn't one already.
func WrapError(err error, code MCPErrorCode, message string) *MCPError {
	if mcpErr, ok := err.(*MCPError); ok {
		return mcpErr
	}
	return NewMCPError(code, message).WithDetail(err.Error()).WithCause(err)
}

// IsMCPError checks if an error is an MCPError.
func IsMCPError(err error) bool {
	_, ok := err.(*MCPError)
	return ok
}

// GetMCPError extracts an MCPError from an error chain.
func GetMCPError(err error) *MCPError {
	if mcpErr, ok := err.(*MCPError); ok {
		return mcpErr
	}
	return nil
}
