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

// Package server implements the hub's MCP gateway: an MCP server over
// stdio that re-exports every backend's tools under namespaced names, so a
// single gateway connection reaches the whole fleet. Callers get the hub's
// queueing, admission control, and supervision for free.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	hubmcp "github.com/tombee/switchboard/internal/mcp"
)

// nameSeparator joins server and tool into a gateway tool name
// ("github__create_issue").
const nameSeparator = "__"

// Dispatcher is the slice of the hub the gateway needs; *hub.Hub
// satisfies it directly.
type Dispatcher interface {
	ListConnectionNames() []string
	ListTools(serverName string) ([]*hubmcp.ToolDescriptor, error)
	CallTool(ctx context.Context, serverName, toolName string, args map[string]interface{}) (interface{}, error)
}

// Server wraps the MCP server and exposes the hub's aggregated catalog.
type Server struct {
	mcpServer *server.MCPServer
	dispatch  Dispatcher
	name      string
	version   string
	logger    *slog.Logger
}

// Config configures the gateway.
type Config struct {
	// Name is the gateway's advertised server name (default:
	// "switchboard").
	Name string

	// Version is the advertised version.
	Version string

	// Logger writes to stderr by default, keeping stdout clean for the
	// MCP stdio protocol.
	Logger *slog.Logger
}

// NewServer creates a gateway over the given dispatcher. The hub's tools
// must already be cataloged (connect first, then serve).
func NewServer(dispatch Dispatcher, config Config) (*Server, error) {
	if dispatch == nil {
		return nil, fmt.Errorf("server: dispatcher is required")
	}
	if config.Name == "" {
		config.Name = "switchboard"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	s := &Server{
		mcpServer: server.NewMCPServer(config.Name, config.Version),
		dispatch:  dispatch,
		name:      config.Name,
		version:   config.Version,
		logger:    logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("server: register tools: %w", err)
	}

	return s, nil
}

// registerTools walks the hub's catalog and registers one gateway tool per
// backend tool, preserving each descriptor's schema.
func (s *Server) registerTools() error {
	for _, serverName := range s.dispatch.ListConnectionNames() {
		descriptors, err := s.dispatch.ListTools(serverName)
		if err != nil {
			s.logger.Warn("skipping server with unlistable tools",
				"server", serverName, "error", err)
			continue
		}

		for _, desc := range descriptors {
			gatewayName := serverName + nameSeparator + desc.Name

			properties := make(map[string]interface{}, len(desc.InputSchema.Properties))
			for field, prop := range desc.InputSchema.Properties {
				p := map[string]interface{}{"type": prop.Type}
				if prop.Description != "" {
					p["description"] = prop.Description
				}
				if len(prop.Enum) > 0 {
					enum := make([]interface{}, len(prop.Enum))
					for i, v := range prop.Enum {
						enum[i] = v
					}
					p["enum"] = enum
				}
				properties[field] = p
			}

			s.mcpServer.AddTool(mcp.Tool{
				Name:        gatewayName,
				Description: describeTool(serverName, desc),
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: properties,
					Required:   desc.InputSchema.Required,
				},
			}, s.handleCall(serverName, desc.Name))
		}
	}

	// Tool: switchboard_connections reports which backends the gateway
	// fronts.
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "switchboard_connections",
		Description: "List the backend servers aggregated by this gateway.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}, s.handleConnections)

	return nil
}

func describeTool(serverName string, desc *hubmcp.ToolDescriptor) string {
	if desc.Description != "" {
		return fmt.Sprintf("[%s] %s", serverName, desc.Description)
	}
	return fmt.Sprintf("Tool %s on server %s.", desc.Name, serverName)
}

// handleCall proxies one gateway tool to its backend through the hub.
func (s *Server) handleCall(serverName, toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		result, err := s.dispatch.CallTool(ctx, serverName, toolName, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		switch v := result.(type) {
		case nil:
			return mcp.NewToolResultText(""), nil
		case string:
			return mcp.NewToolResultText(v), nil
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
			}
			return mcp.NewToolResultText(string(encoded)), nil
		}
	}
}

func (s *Server) handleConnections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.dispatch.ListConnectionNames()
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

// Serve runs the gateway on stdio until the client disconnects.
func (s *Server) Serve() error {
	s.logger.Info("mcp gateway serving on stdio", "name", s.name, "version", s.version)
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server: stdio serve: %w", err)
	}
	return nil
}
