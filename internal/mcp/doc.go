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

/*
Package mcp implements the hub's side of the Model Context Protocol: spawning
tool server child processes, speaking line-delimited JSON-RPC to them over
stdio, supervising their connection lifecycle, and caching what tools they
advertise.

# Overview

The package is built from four pieces:

  - Transport: owns one child process's stdin/stdout/stderr pipes and
    frames JSON-RPC messages as newline-delimited lines.
  - Client: issues correlated JSON-RPC requests over a Transport and
    decodes typed MCP replies (initialize, tools/list, tools/call,
    resources/list, resources/read).
  - Supervisor: owns one server's Connection state machine
    (disconnected/connecting/connected), retrying failed connects up to a
    bounded attempt count and notifying subscribers of status changes.
  - Catalog: a concurrent-safe, server-keyed cache of the tools each
    connected server has advertised, consulted by callers that need a
    tool's schema and danger classification without talking to the
    server.

# Connecting to a server

	catalog := mcp.NewCatalog()
	sup := mcp.NewSupervisor(mcp.ServerConfig{
	    Name:    "filesystem",
	    Command: "npx",
	    Args:    []string{"-y", "@modelcontextprotocol/server-filesystem"},
	}, catalog, "hub", "1.0", logger)

	if err := sup.EnsureConnection(ctx); err != nil {
	    // spawn failed, handshake timed out, or retries are exhausted
	}

# Tool discovery and invocation

Once connected, the Supervisor has already populated the Catalog:

	tool, err := catalog.Lookup("filesystem", "read_file")

	client := sup.Client()
	result, err := client.CallTool(ctx, "read_file", map[string]any{
	    "path": "/etc/hosts",
	})

# Status changes

	sup.Subscribe(func(name string, status mcp.ConnectionStatus, err error, caps *mcp.ServerCapabilities) {
	    log.Printf("%s is now %s", name, status)
	})

Listeners must not block; the Supervisor does not wait on them.
*/
package mcp
