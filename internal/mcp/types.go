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
	"encoding/json"
)

// ToolDefinition is the raw tool shape returned by a server's tools/list
// reply. It is converted into a ToolDescriptor (parsed schema plus safety
// classification) before being stored in the catalog.
type ToolDefinition struct {
	// Name is the unique identifier for this tool
	Name string `json:"name"`

	// Description explains what the tool does
	Description string `json:"description"`

	// InputSchema defines the expected input parameters using JSON Schema
	InputSchema json.RawMessage `json:"inputSchema"`

	// Safety carries server-advertised danger classification, when a
	// server includes it as an extension field alongside the schema.
	Safety *ToolSafety `json:"safety,omitempty"`
}

// ToolCallRequest represents a request to execute an MCP tool.
type ToolCallRequest struct {
	// Name is the tool to execute
	Name string `json:"name"`

	// Arguments contains the input parameters for the tool
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolCallResponse represents the result of an MCP tool execution.
type ToolCallResponse struct {
	// Content contains the tool's output
	Content []ContentItem `json:"content"`

	// IsError indicates if the tool execution failed
	IsError bool `json:"isError,omitempty"`
}

// ContentItem represents a piece of content in an MCP response.
type ContentItem struct {
	// Type is the content type (text, image, resource)
	Type string `json:"type"`

	// Text is the text content (for type="text")
	Text string `json:"text,omitempty"`

	// Data is the base64-encoded data (for type="image")
	Data string `json:"data,omitempty"`

	// MimeType is the MIME type for binary content
	MimeType string `json:"mimeType,omitempty"`
}

// ResourceDefinition represents an MCP resource definition.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplateDefinition represents a parameterized resource URI
// advertised by resources/templates/list.
type ResourceTemplateDefinition struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceReadRequest represents a request to read an MCP resource.
type ResourceReadRequest struct {
	URI string `json:"uri"`
}

// ResourceReadResponse represents the result of reading an MCP resource.
type ResourceReadResponse struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent represents the content of an MCP resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ServerCapabilities describes what features an MCP server supports, as
// advertised in its initialize reply.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

// ToolsCapability describes tool-related capabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resource-related capabilities.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability describes prompt-related capabilities.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ProtocolError represents an MCP JSON-RPC protocol-level error.
type ProtocolError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return e.Message
}

// Standard JSON-RPC 2.0 error codes, as opposed to the hub's own
// MCPErrorCode taxonomy in errors.go.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// ServerConfig is the declarative spec of one backend: a process command,
// optional argument vector, and optional environment overlay. Sourced from
// configuration at hub startup; immutable for the hub's lifetime.
type ServerConfig struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// ConnectionStatus is the state of a Connection's lifecycle state machine.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// DangerLevel is the ordinal classification governing whether a tool call
// requires confirmation before dispatch.
type DangerLevel string

const (
	DangerNone   DangerLevel = "none"
	DangerLow    DangerLevel = "low"
	DangerMedium DangerLevel = "medium"
	DangerHigh   DangerLevel = "high"
)

// ToolSafety carries a tool's danger classification, either advertised by
// the server or computed by the hub's danger-classification pass.
type ToolSafety struct {
	IsDangerous          *bool       `json:"isDangerous,omitempty"`
	DangerLevel          DangerLevel `json:"dangerLevel,omitempty"`
	DangerDescription    string      `json:"dangerDescription,omitempty"`
	RequiresConfirmation *bool       `json:"requiresConfirmation,omitempty"`
	ConfirmationMessage  string      `json:"confirmationMessage,omitempty"`
}

// PropertySchema describes one field of a ToolDescriptor's input schema.
type PropertySchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is a tool's declared argument shape.
type InputSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// ToolDescriptor is an immutable snapshot of one tool fetched from a
// backend's tools/list reply, cached in the Tool Catalog keyed by
// (serverName, toolName). Replacement after publication is a pointer swap.
type ToolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
	Safety      *ToolSafety `json:"safety,omitempty"`
}

// Connection is the runtime object for one configured server. It is
// exclusively owned and mutated by its Connection Supervisor; other
// components observe it only through the supervisor's published status.
type Connection struct {
	Name                    string
	Status                  ConnectionStatus
	Capabilities            *ServerCapabilities
	LastError               error
	LastSuccessfulConnectAt *int64 // unix nanos; nil if never connected
	RetryCount              int
}
