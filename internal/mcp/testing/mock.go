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

// Package testing provides mcp.ClientProvider test doubles so higher layers
// (the queue, the executor, the composition engine, the hub facade) can be
// exercised without spawning real child processes.
package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/switchboard/internal/mcp"
)

// MockClient implements mcp.ClientProvider for testing.
type MockClient struct {
	serverName   string
	tools        []mcp.ToolDefinition
	capabilities *mcp.ServerCapabilities
	initFunc     func(ctx context.Context, clientName, clientVersion string) (*mcp.ServerCapabilities, error)
	callFunc     func(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.ToolCallResponse, error)
	closeFunc    func() error
	callDelay    time.Duration
	closed       bool
	onClose      func()
	mu           sync.RWMutex
}

// NewMockClient creates a new mock MCP client pre-populated with tools.
func NewMockClient(serverName string, tools []mcp.ToolDefinition) *MockClient {
	return &MockClient{
		serverName:   serverName,
		tools:        tools,
		capabilities: &mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	}
}

// Initialize returns the configured capabilities, or delegates to a custom
// handler if one was set with SetInitFunc.
func (c *MockClient) Initialize(ctx context.Context, clientName, clientVersion string) (*mcp.ServerCapabilities, error) {
	c.mu.RLock()
	initFunc := c.initFunc
	caps := c.capabilities
	c.mu.RUnlock()

	if initFunc != nil {
		return initFunc(ctx, clientName, clientVersion)
	}
	return caps, nil
}

// ListTools returns the configured list of tools.
func (c *MockClient) ListTools(ctx context.Context) ([]mcp.ToolDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	toolsCopy := make([]mcp.ToolDefinition, len(c.tools))
	copy(toolsCopy, c.tools)
	return toolsCopy, nil
}

// CallTool executes a tool call using the configured handler, or echoes the
// request back as a default.
func (c *MockClient) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.ToolCallResponse, error) {
	c.mu.RLock()
	delay := c.callDelay
	callFunc := c.callFunc
	c.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if callFunc != nil {
		return callFunc(ctx, name, arguments)
	}

	return &mcp.ToolCallResponse{
		Content: []mcp.ContentItem{
			{Type: "text", Text: fmt.Sprintf("mock response for %s", name)},
		},
	}, nil
}

// OnClose registers the disconnect callback, mirroring a real transport.
func (c *MockClient) OnClose(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = cb
}

// TriggerClose simulates the backend dropping the connection, invoking the
// registered OnClose callback.
func (c *MockClient) TriggerClose() {
	c.mu.Lock()
	c.closed = true
	cb := c.onClose
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Close marks the mock closed and delegates to a custom handler if set.
func (c *MockClient) Close() error {
	c.mu.Lock()
	c.closed = true
	closeFunc := c.closeFunc
	c.mu.Unlock()

	if closeFunc != nil {
		return closeFunc()
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *MockClient) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SetInitFunc sets a custom Initialize handler.
func (c *MockClient) SetInitFunc(f func(ctx context.Context, clientName, clientVersion string) (*mcp.ServerCapabilities, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initFunc = f
}

// SetCallHandler sets a custom call handler for this client.
func (c *MockClient) SetCallHandler(f func(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.ToolCallResponse, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callFunc = f
}

// SetCallDelay sets a delay applied before every tool call.
func (c *MockClient) SetCallDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callDelay = d
}

// SetCloseFunc sets a custom close handler.
func (c *MockClient) SetCloseFunc(f func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFunc = f
}

// SetCapabilities overrides the capabilities returned by Initialize.
func (c *MockClient) SetCapabilities(caps *mcp.ServerCapabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities = caps
}
