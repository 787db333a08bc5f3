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
	"context"
	"log/slog"
)

// ClientProvider is the interface the rest of the hub depends on instead of
// the concrete *Client, so tests can substitute a mock MCP connection
// without spawning a real child process.
type ClientProvider interface {
	// Initialize performs the MCP handshake and returns advertised
	// capabilities.
	Initialize(ctx context.Context, clientName, clientVersion string) (*ServerCapabilities, error)

	// ListTools retrieves the list of available tools from the MCP server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool executes an MCP tool with the given arguments.
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*ToolCallResponse, error)

	// OnClose registers a callback invoked once when the underlying
	// connection is lost or closed.
	OnClose(cb func())

	// Close closes the connection to the MCP server.
	Close() error
}

// ClientFactory spawns and connects one backend, returning a ready-to-use
// ClientProvider. The default factory starts a child process Transport; test
// factories return in-memory mocks.
type ClientFactory func(config ServerConfig, logger *slog.Logger) (ClientProvider, error)

// DefaultClientFactory spawns the configured command over a stdio Transport
// and wraps it in a Client. Transport frame errors are logged, not fatal.
func DefaultClientFactory(config ServerConfig, logger *slog.Logger) (ClientProvider, error) {
	transport := NewTransport(config.Name, config, logger)
	transport.OnError(func(err error) {
		logger.Error("transport frame error", "server", config.Name, "error", err)
	})

	if err := transport.Start(); err != nil {
		return nil, ErrSpawnFailed(config.Name, err)
	}

	return NewClient(config.Name, transport, logger), nil
}
