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
	"sync"
	"time"
)

// ServerType tags a server context with its backend family, which selects
// sensible default behavior (e.g. which argument defaults apply).
type ServerType string

const (
	ServerTypeDefault    ServerType = "default"
	ServerTypeGitHub     ServerType = "github"
	ServerTypeFilesystem ServerType = "filesystem"
)

// ServerCapabilities describes what the executor may attempt against a
// server beyond plain tool calls.
type ServerCapabilities struct {
	// SupportsRollback gates state capture and compensating calls.
	SupportsRollback bool `yaml:"supports_rollback" json:"supportsRollback"`

	// MaxConcurrentCalls is advisory; per-server serialization is enforced
	// by the call queue regardless.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls" json:"maxConcurrentCalls"`

	// SupportedOperations lists operation categories the server's tools
	// cover (informational).
	SupportedOperations []string `yaml:"supported_operations,omitempty" json:"supportedOperations,omitempty"`
}

// LastOperation records the most recent call dispatched through a server
// context.
type LastOperation struct {
	ToolName  string
	Timestamp time.Time
	Success   bool
}

// ServerContext is the executor's mutable per-server state: the default
// argument map consulted during enrichment, advisory capabilities, and a
// small trail of what happened last.
type ServerContext struct {
	Type         ServerType
	Config       map[string]interface{}
	Capabilities ServerCapabilities

	LastAccessed  time.Time
	LastOperation *LastOperation
}

// defaultFor resolves a default value for one required field: the per-tool
// override under config.tools.<toolName>.<field> wins over the server-wide
// config.<field>.
func (c *ServerContext) defaultFor(toolName, field string) (interface{}, bool) {
	if c == nil || c.Config == nil {
		return nil, false
	}

	if tools, ok := c.Config["tools"].(map[string]interface{}); ok {
		if toolCfg, ok := tools[toolName].(map[string]interface{}); ok {
			if v, ok := toolCfg[field]; ok {
				return v, true
			}
		}
	}

	if v, ok := c.Config[field]; ok {
		return v, true
	}
	return nil, false
}

// ContextStore holds the executor's ServerContexts, keyed by server name.
// Contexts are created lazily with ServerTypeDefault on first use.
type ContextStore struct {
	mu       sync.Mutex
	contexts map[string]*ServerContext
}

// NewContextStore creates an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{contexts: make(map[string]*ServerContext)}
}

// Configure installs or replaces a server's context.
func (s *ContextStore) Configure(serverName string, ctx *ServerContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Type == "" {
		ctx.Type = ServerTypeDefault
	}
	s.contexts[serverName] = ctx
}

// Get returns the context for a server, creating a default one on first
// access. LastAccessed is bumped on every call.
func (s *ContextStore) Get(serverName string) *ServerContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[serverName]
	if !ok {
		ctx = &ServerContext{Type: ServerTypeDefault}
		s.contexts[serverName] = ctx
	}
	ctx.LastAccessed = time.Now()
	return ctx
}

// RecordOperation notes the outcome of the latest call against a server.
func (s *ContextStore) RecordOperation(serverName, toolName string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[serverName]
	if !ok {
		ctx = &ServerContext{Type: ServerTypeDefault}
		s.contexts[serverName] = ctx
	}
	ctx.LastOperation = &LastOperation{
		ToolName:  toolName,
		Timestamp: time.Now(),
		Success:   success,
	}
}
