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
	"sort"

	"github.com/tombee/switchboard/internal/mcp"
)

// enrichArgs walks the descriptor's required fields and fills gaps from the
// server context's defaults: config.tools.<tool>.<field> first, then
// config.<field>. It returns the enriched argument map (a copy; the
// caller's map is never mutated) and the names of fields still missing, in
// sorted order. The call is valid when missing is empty.
func enrichArgs(desc *mcp.ToolDescriptor, args map[string]interface{}, serverCtx *ServerContext, autoFill bool) (map[string]interface{}, []string) {
	enriched := make(map[string]interface{}, len(args))
	for k, v := range args {
		enriched[k] = v
	}

	var missing []string
	for _, field := range desc.InputSchema.Required {
		if _, ok := enriched[field]; ok {
			continue
		}
		if autoFill {
			if v, ok := serverCtx.defaultFor(desc.Name, field); ok {
				enriched[field] = v
				continue
			}
		}
		missing = append(missing, field)
	}

	sort.Strings(missing)
	return enriched, missing
}
