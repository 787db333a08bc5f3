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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// listMethodTimeout bounds initialize/tools-list/resources-list calls.
// tools/call has no internal timeout; higher layers (the Tool Executor's
// retry loop) enforce the call's effective deadline.
const listMethodTimeout = 5 * time.Second

// Client wraps a Transport with JSON-RPC request/response correlation and
// exposes typed MCP methods. One Client is owned by one Connection.
type Client struct {
	serverName string
	transport  *Transport
	correlator *correlator
	logger     *slog.Logger
}

// NewClient creates a Client over an already-started Transport. The caller
// remains responsible for calling transport.Start before issuing requests.
func NewClient(serverName string, transport *Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		serverName: serverName,
		transport:  transport,
		correlator: newCorrelator(logger),
		logger:     logger.With("server", serverName),
	}
	transport.OnMessage(c.handleMessage)
	return c
}

func (c *Client) handleMessage(raw []byte) {
	var resp jsonrpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("dropping reply that is not a JSON-RPC envelope", "error", err)
		return
	}
	c.correlator.dispatch(&resp)
}

// call issues one JSON-RPC request and waits for its matched reply, or for
// ctx to be done, whichever comes first.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id, replyCh := c.correlator.newRequest()

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		c.correlator.cancel(id)
		return nil, fmt.Errorf("mcp: encode %s request: %w", method, err)
	}

	if err := c.transport.Send(body); err != nil {
		c.correlator.cancel(id)
		return nil, err
	}

	select {
	case resp := <-replyCh:
		if resp.Error != nil {
			if resp.Error.Code == JSONRPCMethodNotFound {
				return nil, ErrMethodNotFound(c.serverName, method)
			}
			return nil, fmt.Errorf("mcp: %s returned error %d: %s", method, resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.correlator.cancel(id)
		return nil, ctx.Err()
	}
}

// Initialize issues the initialize handshake and returns the server's
// advertised capabilities.
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (*ServerCapabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, listMethodTimeout)
	defer cancel()

	params := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"clientInfo": map[string]string{
			"name":    clientName,
			"version": clientVersion,
		},
		"capabilities": map[string]interface{}{},
	}

	result, err := c.call(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}

	var reply struct {
		Capabilities ServerCapabilities `json:"capabilities"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return nil, ErrProtocolMismatch(c.serverName, "initialize", err)
	}

	return &reply.Capabilities, nil
}

// ListTools issues tools/list. A -32601 reply is soft: it returns an empty
// slice and no error.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, listMethodTimeout)
	defer cancel()

	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		if GetMCPError(err) != nil && GetMCPError(err).Code == ErrorCodeMethodNotFound {
			c.logger.Info("server does not implement tools/list")
			return nil, nil
		}
		return nil, err
	}

	var reply struct {
		Tools []ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return nil, ErrProtocolMismatch(c.serverName, "tools/list", err)
	}
	return reply.Tools, nil
}

// CallTool issues tools/call with the given name and arguments. There is
// no internal timeout; ctx governs how long the caller is willing to wait.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*ToolCallResponse, error) {
	params := ToolCallRequest{Name: name, Arguments: arguments}

	result, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var reply ToolCallResponse
	if err := json.Unmarshal(result, &reply); err != nil {
		return nil, ErrProtocolMismatch(c.serverName, "tools/call", err)
	}
	return &reply, nil
}

// ListResources issues resources/list. A -32601 reply is soft.
func (c *Client) ListResources(ctx context.Context) ([]ResourceDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, listMethodTimeout)
	defer cancel()

	result, err := c.call(ctx, "resources/list", nil)
	if err != nil {
		if GetMCPError(err) != nil && GetMCPError(err).Code == ErrorCodeMethodNotFound {
			return nil, nil
		}
		return nil, err
	}

	var reply struct {
		Resources []ResourceDefinition `json:"resources"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return nil, ErrProtocolMismatch(c.serverName, "resources/list", err)
	}
	return reply.Resources, nil
}

// ListResourceTemplates issues resources/templates/list. A -32601 reply is
// soft.
func (c *Client) ListResourceTemplates(ctx context.Context) ([]ResourceTemplateDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, listMethodTimeout)
	defer cancel()

	result, err := c.call(ctx, "resources/templates/list", nil)
	if err != nil {
		if GetMCPError(err) != nil && GetMCPError(err).Code == ErrorCodeMethodNotFound {
			return nil, nil
		}
		return nil, err
	}

	var reply struct {
		ResourceTemplates []ResourceTemplateDefinition `json:"resourceTemplates"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return nil, ErrProtocolMismatch(c.serverName, "resources/templates/list", err)
	}
	return reply.ResourceTemplates, nil
}

// ReadResource issues resources/read for a single URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ResourceReadResponse, error) {
	result, err := c.call(ctx, "resources/read", ResourceReadRequest{URI: uri})
	if err != nil {
		return nil, err
	}

	var reply ResourceReadResponse
	if err := json.Unmarshal(result, &reply); err != nil {
		return nil, ErrProtocolMismatch(c.serverName, "resources/read", err)
	}
	return &reply, nil
}

// OnClose registers a callback invoked once when the underlying transport
// closes.
func (c *Client) OnClose(cb func()) {
	c.transport.OnClose(cb)
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}
