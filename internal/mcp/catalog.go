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
	"sort"
	"sync"
)

// Catalog maps serverName -> toolName -> ToolDescriptor. It is populated
// whenever a Supervisor reaches connected and is safe for concurrent,
// non-blocking lookups. Entries are immutable after publication; a
// re-population is a pointer swap of the per-server map.
type Catalog struct {
	mu      sync.RWMutex
	servers map[string]map[string]*ToolDescriptor
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{servers: make(map[string]map[string]*ToolDescriptor)}
}

// Replace swaps in a fresh tool set for a server, parsing each
// ToolDefinition's raw input schema into a typed InputSchema. Definitions
// whose schema fails to parse are skipped rather than failing the whole
// population.
func (c *Catalog) Replace(serverName string, defs []ToolDefinition) {
	tools := make(map[string]*ToolDescriptor, len(defs))
	for _, def := range defs {
		descriptor := &ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			Safety:      def.Safety,
		}
		if len(def.InputSchema) > 0 {
			var raw struct {
				Properties map[string]PropertySchema `json:"properties"`
				Required   []string                   `json:"required"`
			}
			if err := json.Unmarshal(def.InputSchema, &raw); err == nil {
				descriptor.InputSchema = InputSchema{
					Properties: raw.Properties,
					Required:   raw.Required,
				}
			}
		}
		tools[def.Name] = descriptor
	}

	c.mu.Lock()
	c.servers[serverName] = tools
	c.mu.Unlock()
}

// Lookup returns the descriptor for (serverName, toolName). On miss it
// returns ErrToolNotFound, populated with the server's available tool
// names for diagnostics.
func (c *Catalog) Lookup(serverName, toolName string) (*ToolDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools, ok := c.servers[serverName]
	if !ok {
		return nil, ErrToolNotFound(serverName, toolName, nil)
	}

	descriptor, ok := tools[toolName]
	if !ok {
		names := make([]string, 0, len(tools))
		for name := range tools {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, ErrToolNotFound(serverName, toolName, names)
	}

	return descriptor, nil
}

// ListTools returns all descriptors cached for a server, in name order.
func (c *Catalog) ListTools(serverName string) []*ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := c.servers[serverName]
	out := make([]*ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
